package demoserver

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"
)

type ownerJSON struct {
	Login string `json:"login"`
}

type repoJSON struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	FullName      string    `json:"full_name"`
	Owner         ownerJSON `json:"owner"`
	Description   string    `json:"description"`
	Private       bool      `json:"private"`
	HTMLURL       string    `json:"html_url"`
	DefaultBranch string    `json:"default_branch"`
	HasIssues     bool      `json:"has_issues"`
	HasProjects   bool      `json:"has_projects"`
	HasWiki       bool      `json:"has_wiki"`
	CreatedAt     time.Time `json:"created_at"`
}

type createRepoRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Private     bool   `json:"private"`
	AutoInit    bool   `json:"auto_init"`
	HasIssues   *bool  `json:"has_issues"`
	HasProjects *bool  `json:"has_projects"`
	HasWiki     *bool  `json:"has_wiki"`
}

type pagesSourceJSON struct {
	Branch string `json:"branch"`
	Path   string `json:"path"`
}

type pagesJSON struct {
	URL       string           `json:"url"`
	Status    string           `json:"status"`
	HTMLURL   string           `json:"html_url"`
	BuildType string           `json:"build_type"`
	Source    *pagesSourceJSON `json:"source,omitempty"`
	Public    bool             `json:"public"`
}

type pagesRequest struct {
	BuildType string           `json:"build_type"`
	Source    *pagesSourceJSON `json:"source"`
}

type contentJSON struct {
	Type     string `json:"type"`
	Encoding string `json:"encoding,omitempty"`
	Size     int    `json:"size"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	Content  string `json:"content,omitempty"`
	SHA      string `json:"sha"`
}

type putContentRequest struct {
	Message string `json:"message"`
	Content []byte `json:"content"`
	SHA     string `json:"sha"`
	Branch  string `json:"branch"`
}

func (s *DemoServer) toJSON(r *repo) repoJSON {
	return repoJSON{
		ID:            r.ID,
		Name:          r.Name,
		FullName:      r.Owner + "/" + r.Name,
		Owner:         ownerJSON{Login: r.Owner},
		Description:   r.Description,
		Private:       r.Private,
		HTMLURL:       "https://github.com/" + r.Owner + "/" + r.Name,
		DefaultBranch: r.DefaultBranch,
		HasIssues:     r.HasIssues,
		HasProjects:   r.HasProjects,
		HasWiki:       r.HasWiki,
		CreatedAt:     r.CreatedAt,
	}
}

func pagesToJSON(r *repo, status string) pagesJSON {
	return pagesJSON{
		URL:       fmt.Sprintf("https://api.github.com/repos/%s/%s/pages", r.Owner, r.Name),
		Status:    status,
		HTMLURL:   "https://" + strings.ToLower(r.Owner) + ".github.io/" + r.Name + "/",
		BuildType: r.pages.BuildType,
		Source:    &pagesSourceJSON{Branch: r.pages.Branch, Path: r.pages.Path},
		Public:    !r.Private,
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeMessage(w, http.StatusBadRequest, "Problems parsing JSON")
		return false
	}
	return true
}

// lookup must be called with s.mu held.
func (s *DemoServer) lookup(w http.ResponseWriter, r *http.Request) (*repo, bool) {
	rp, ok := s.repos[key(r.PathValue("owner"), r.PathValue("repo"))]
	if !ok {
		writeMessage(w, http.StatusNotFound, "Not Found")
		return nil, false
	}
	return rp, true
}

func (s *DemoServer) createRepoHandler(w http.ResponseWriter, r *http.Request) {
	var req createRepoRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeMessage(w, http.StatusUnprocessableEntity, "Repository creation failed.")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(s.cfg.Owner, req.Name)
	if _, exists := s.repos[k]; exists {
		writeMessage(w, http.StatusUnprocessableEntity, "Repository creation failed: name already exists on this account")
		return
	}

	s.nextID++
	rp := &repo{
		ID:            s.nextID,
		Owner:         s.cfg.Owner,
		Name:          req.Name,
		Description:   req.Description,
		Private:       req.Private,
		DefaultBranch: "main",
		HasIssues:     req.HasIssues == nil || *req.HasIssues,
		HasProjects:   req.HasProjects == nil || *req.HasProjects,
		HasWiki:       req.HasWiki == nil || *req.HasWiki,
		CreatedAt:     time.Now().UTC(),
		files:         make(map[string][]byte),
	}
	if req.AutoInit {
		rp.putFile("README.md", []byte("# "+req.Name+"\n\n"+req.Description+"\n"), "Initial commit")
	}
	s.repos[k] = rp
	writeJSON(w, http.StatusCreated, s.toJSON(rp))
}

func (s *DemoServer) getPagesHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rp, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if rp.pages == nil {
		writeMessage(w, http.StatusNotFound, "Not Found")
		return
	}
	rp.pages.reads++
	status := "built"
	if rp.pages.reads <= s.cfg.BuildPolls {
		status = "building"
	}
	writeJSON(w, http.StatusOK, pagesToJSON(rp, status))
}

func (s *DemoServer) createPagesHandler(w http.ResponseWriter, r *http.Request) {
	var req pagesRequest
	if !decodeBody(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rp, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if rp.pages != nil {
		writeMessage(w, http.StatusConflict, "GitHub Pages is already enabled.")
		return
	}
	if s.cfg.RequireRootIndex {
		if _, ok := rp.files["index.html"]; !ok {
			writeMessage(w, http.StatusUnprocessableEntity, "The main branch must exist and contain an index file before GitHub Pages can be enabled.")
			return
		}
	}

	site := &pagesSite{BuildType: req.BuildType, Branch: rp.DefaultBranch, Path: "/"}
	if site.BuildType == "" {
		site.BuildType = "legacy"
	}
	if req.Source != nil {
		if req.Source.Branch != "" {
			site.Branch = req.Source.Branch
		}
		if req.Source.Path != "" {
			site.Path = req.Source.Path
		}
	}
	rp.pages = site
	status := "built"
	if s.cfg.BuildPolls > 0 {
		status = "building"
	}
	writeJSON(w, http.StatusCreated, pagesToJSON(rp, status))
}

func (s *DemoServer) updatePagesHandler(w http.ResponseWriter, r *http.Request) {
	var req pagesRequest
	if !decodeBody(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rp, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if rp.pages == nil {
		writeMessage(w, http.StatusNotFound, "Not Found")
		return
	}
	if req.BuildType != "" {
		rp.pages.BuildType = req.BuildType
	}
	if req.Source != nil {
		if req.Source.Branch != "" {
			rp.pages.Branch = req.Source.Branch
		}
		if req.Source.Path != "" {
			rp.pages.Path = req.Source.Path
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *DemoServer) getContentHandler(w http.ResponseWriter, r *http.Request) {
	p := r.PathValue("path")

	s.mu.RLock()
	defer s.mu.RUnlock()
	rp, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if ref := r.URL.Query().Get("ref"); ref != "" && ref != rp.DefaultBranch {
		writeMessage(w, http.StatusNotFound, "No commit found for the ref "+ref)
		return
	}
	data, ok := rp.files[p]
	if !ok {
		writeMessage(w, http.StatusNotFound, "Not Found")
		return
	}
	writeJSON(w, http.StatusOK, contentJSON{
		Type:     "file",
		Encoding: "base64",
		Size:     len(data),
		Name:     path.Base(p),
		Path:     p,
		Content:  base64.StdEncoding.EncodeToString(data),
		SHA:      blobSHA(data),
	})
}

func (s *DemoServer) putContentHandler(w http.ResponseWriter, r *http.Request) {
	p := r.PathValue("path")
	var req putContentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Message == "" {
		writeMessage(w, http.StatusUnprocessableEntity, "Invalid request.\n\n\"message\" wasn't supplied.")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rp, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if req.Branch != "" && req.Branch != rp.DefaultBranch {
		writeMessage(w, http.StatusNotFound, "Branch "+req.Branch+" not found")
		return
	}

	status := http.StatusCreated
	if cur, exists := rp.files[p]; exists {
		if req.SHA == "" {
			writeMessage(w, http.StatusUnprocessableEntity, "Invalid request.\n\n\"sha\" wasn't supplied.")
			return
		}
		if req.SHA != blobSHA(cur) {
			writeMessage(w, http.StatusConflict, p+" does not match "+req.SHA)
			return
		}
		status = http.StatusOK
	}

	c := rp.putFile(p, req.Content, req.Message)
	writeJSON(w, status, map[string]any{
		"content": contentJSON{
			Type: "file",
			Size: len(req.Content),
			Name: path.Base(p),
			Path: p,
			SHA:  blobSHA(req.Content),
		},
		"commit": map[string]any{"sha": c.SHA, "message": c.Message},
	})
}
