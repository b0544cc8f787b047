package bundle

import (
	"fmt"
	"path/filepath"
	"strings"
)

// AllowedExtensions is the upload allow-list, compared case-insensitively.
var AllowedExtensions = []string{".html", ".css", ".js"}

// ValidationError reports bad input. It is never retried.
type ValidationError struct {
	File   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.File == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.File)
}

func allowed(ext string) bool {
	for _, a := range AllowedExtensions {
		if ext == a {
			return true
		}
	}
	return false
}

// Validate checks every file's extension against AllowedExtensions and fails
// on the first one outside it.
func Validate(files []File) error {
	if len(files) == 0 {
		return &ValidationError{Reason: "no files uploaded"}
	}
	for _, f := range files {
		ext := strings.ToLower(filepath.Ext(f.Name))
		if !allowed(ext) {
			return &ValidationError{File: f.Name, Reason: "file type not allowed"}
		}
	}
	return nil
}

// ValidateBundle checks required fields and then the file list.
func ValidateBundle(b *Bundle) error {
	if b == nil {
		return &ValidationError{Reason: "empty upload"}
	}
	if strings.TrimSpace(b.ProjectName) == "" || strings.TrimSpace(b.ContactEmail) == "" || len(b.Files) == 0 {
		return &ValidationError{Reason: "please fill in all required fields and upload files"}
	}
	return Validate(b.Files)
}
