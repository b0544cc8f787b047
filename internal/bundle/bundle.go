// Package bundle holds the uploaded file set for one deployment: the file
// model, allow-list validation, on-disk staging and HTML reference inspection.
package bundle

import (
	"fmt"
	"os"
	"strings"
)

// EntryDocument is the root document a Pages site is served from.
const EntryDocument = "index.html"

// File is one uploaded file. Path is the staged copy on local disk; Data is
// used instead for files that only exist in memory (e.g. a synthesized entry
// document).
type File struct {
	Name string
	Path string
	Data []byte
}

// Content returns the file bytes, preferring in-memory data.
func (f File) Content() ([]byte, error) {
	if f.Data != nil {
		return f.Data, nil
	}
	if f.Path == "" {
		return nil, fmt.Errorf("file %s has no content", f.Name)
	}
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read staged file %s: %w", f.Name, err)
	}
	return b, nil
}

// Bundle is an upload session: the files plus who they belong to.
type Bundle struct {
	SessionID    string
	ProjectName  string
	ContactEmail string
	Files        []File
}

// HasEntryDocument reports whether any file is literally named index.html,
// ignoring case.
func HasEntryDocument(files []File) bool {
	for _, f := range files {
		if strings.EqualFold(f.Name, EntryDocument) {
			return true
		}
	}
	return false
}

// Names returns the file names in bundle order.
func Names(files []File) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.Name)
	}
	return out
}
