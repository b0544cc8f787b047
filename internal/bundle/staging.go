package bundle

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/raysh454/sitedrop/internal/logging"
)

// Staging is a per-session directory holding uploaded files until the
// workflow finishes. Release must be called on every exit path.
type Staging struct {
	dir    string
	logger logging.Logger

	mu       sync.Mutex
	n        int
	released bool
}

// NewStaging creates root/sessionID.
func NewStaging(root, sessionID string, logger logging.Logger) (*Staging, error) {
	if root == "" {
		return nil, errors.New("staging root is required")
	}
	if sessionID == "" || strings.ContainsAny(sessionID, `/\`) || sessionID == "." || sessionID == ".." {
		return nil, fmt.Errorf("invalid session id %q", sessionID)
	}
	dir := filepath.Join(root, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &Staging{dir: dir, logger: logger}, nil
}

// Dir returns the staging directory.
func (s *Staging) Dir() string { return s.dir }

// Add copies r into the staging directory and returns the staged File under
// its original name. The on-disk name is an index so uploaded names never
// become paths.
func (s *Staging) Add(name string, r io.Reader) (File, error) {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return File{}, errors.New("staging already released")
	}
	s.n++
	path := filepath.Join(s.dir, fmt.Sprintf("%04d.upload", s.n))
	s.mu.Unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return File{}, fmt.Errorf("create staged file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return File{}, fmt.Errorf("write staged file %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return File{}, fmt.Errorf("close staged file %s: %w", name, err)
	}
	return File{Name: filepath.Base(filepath.ToSlash(name)), Path: path}, nil
}

// Release removes the staging directory. Failures are logged, not returned.
// Calling it more than once is safe.
func (s *Staging) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.released = true
	if err := os.RemoveAll(s.dir); err != nil && s.logger != nil {
		s.logger.Warn("could not delete staged upload",
			logging.Field{Key: "path", Value: s.dir}, logging.Err(err))
	}
}
