package demoserver

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"
)

type repo struct {
	ID            int64
	Owner         string
	Name          string
	Description   string
	Private       bool
	DefaultBranch string
	HasIssues     bool
	HasProjects   bool
	HasWiki       bool
	CreatedAt     time.Time

	files   map[string][]byte
	order   []string
	commits []commit
	pages   *pagesSite
}

type commit struct {
	SHA     string `json:"sha"`
	Message string `json:"message"`
	Path    string `json:"path"`
}

type pagesSite struct {
	BuildType string
	Branch    string
	Path      string
	reads     int
}

type fault struct {
	method string
	suffix string
	status int
	times  int
}

func blobSHA(content []byte) string {
	h := sha1.New()
	fmt.Fprintf(h, "blob %d\x00", len(content))
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

func (r *repo) putFile(path string, content []byte, message string) commit {
	if _, ok := r.files[path]; !ok {
		r.order = append(r.order, path)
	}
	r.files[path] = append([]byte(nil), content...)
	c := commit{
		SHA:     blobSHA([]byte(fmt.Sprintf("%s/%d/%s", r.Name, len(r.commits), message))),
		Message: message,
		Path:    path,
	}
	r.commits = append(r.commits, c)
	return c
}
