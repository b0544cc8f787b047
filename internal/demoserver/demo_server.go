package demoserver

import (
	"encoding/json"
	"fmt"
	"html/template"
	"mime"
	"net/http"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

// DemoServer is an in-memory stand-in for the subset of the GitHub REST API
// the deploy workflow talks to. It also serves the published files so a
// local deployment can be browsed.
type DemoServer struct {
	cfg    Config
	repos  map[string]*repo // owner/name -> repo
	faults []*fault
	nextID int64
	mu     sync.RWMutex
}

// NewDemoServer creates a new demo server instance.
func NewDemoServer(cfg Config) *DemoServer {
	if cfg.Owner == "" {
		cfg.Owner = DefaultConfig().Owner
	}
	return &DemoServer{
		cfg:   cfg,
		repos: make(map[string]*repo),
	}
}

// Handler returns the server's routes.
func (s *DemoServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /user/repos", s.api(s.createRepoHandler))
	mux.HandleFunc("GET /repos/{owner}/{repo}/pages", s.api(s.getPagesHandler))
	mux.HandleFunc("POST /repos/{owner}/{repo}/pages", s.api(s.createPagesHandler))
	mux.HandleFunc("PUT /repos/{owner}/{repo}/pages", s.api(s.updatePagesHandler))
	mux.HandleFunc("GET /repos/{owner}/{repo}/contents/{path...}", s.api(s.getContentHandler))
	mux.HandleFunc("PUT /repos/{owner}/{repo}/contents/{path...}", s.api(s.putContentHandler))

	// Control panel
	mux.HandleFunc("GET /demo/control", s.controlPanelHandler)
	mux.HandleFunc("GET /demo/state", s.stateHandler)
	mux.HandleFunc("POST /demo/reset", s.resetHandler)

	// Published sites
	mux.HandleFunc("GET /sites/{owner}/{repo}/{path...}", s.siteHandler)

	return mux
}

// Start starts the demo server.
func (s *DemoServer) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	fmt.Printf("Demo server starting on http://localhost%s\n", addr)
	fmt.Printf("Control panel at http://localhost%s/demo/control\n", addr)
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	return srv.ListenAndServe()
}

// FailNext makes the next times API requests with the given method whose
// path ends in suffix fail with status.
func (s *DemoServer) FailNext(method, suffix string, status, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, &fault{method: method, suffix: suffix, status: status, times: times})
}

// Files returns the paths stored in owner/name in first-write order.
func (s *DemoServer) Files(owner, name string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.repos[key(owner, name)]
	if !ok {
		return nil
	}
	return append([]string(nil), r.order...)
}

// File returns the content stored at path in owner/name.
func (s *DemoServer) File(owner, name, path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.repos[key(owner, name)]
	if !ok {
		return nil, false
	}
	data, ok := r.files[path]
	return data, ok
}

// RepoNames returns every repository name, sorted.
func (s *DemoServer) RepoNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.repos))
	for _, r := range s.repos {
		out = append(out, r.Name)
	}
	sort.Strings(out)
	return out
}

func key(owner, name string) string {
	return strings.ToLower(owner) + "/" + name
}

// api wraps an API handler with latency, authentication and fault injection.
func (s *DemoServer) api(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Latency > 0 {
			select {
			case <-time.After(s.cfg.Latency):
			case <-r.Context().Done():
				return
			}
		}
		if s.cfg.Token != "" && r.Header.Get("Authorization") != "Bearer "+s.cfg.Token {
			writeMessage(w, http.StatusUnauthorized, "Bad credentials")
			return
		}
		if status, ok := s.takeFault(r); ok {
			writeMessage(w, status, http.StatusText(status))
			return
		}
		h(w, r)
	}
}

func (s *DemoServer) takeFault(r *http.Request) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, f := range s.faults {
		if f.method != r.Method || !strings.HasSuffix(r.URL.Path, f.suffix) {
			continue
		}
		f.times--
		if f.times <= 0 {
			s.faults = append(s.faults[:i], s.faults[i+1:]...)
		}
		return f.status, true
	}
	return 0, false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"message":           msg,
		"documentation_url": "https://docs.github.com/rest",
	})
}

// siteHandler serves a repository's files as its published site would.
func (s *DemoServer) siteHandler(w http.ResponseWriter, r *http.Request) {
	p := r.PathValue("path")
	if p == "" || strings.HasSuffix(p, "/") {
		p += "index.html"
	}
	data, ok := s.File(r.PathValue("owner"), r.PathValue("repo"), p)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if ct := mime.TypeByExtension(path.Ext(p)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	_, _ = w.Write(data)
}

type repoState struct {
	Name    string   `json:"name"`
	Owner   string   `json:"owner"`
	Files   []string `json:"files"`
	Commits []commit `json:"commits"`
	Pages   bool     `json:"pages"`
}

func (s *DemoServer) snapshot() []repoState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]repoState, 0, len(s.repos))
	for _, r := range s.repos {
		out = append(out, repoState{
			Name:    r.Name,
			Owner:   r.Owner,
			Files:   append([]string(nil), r.order...),
			Commits: append([]commit(nil), r.commits...),
			Pages:   r.pages != nil,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// stateHandler returns every repository with its files and commits.
func (s *DemoServer) stateHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshot())
}

// resetHandler drops all repositories and pending faults.
func (s *DemoServer) resetHandler(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	s.repos = make(map[string]*repo)
	s.faults = nil
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "All repositories removed",
	})
}

var controlPanel = template.Must(template.New("control").Parse(controlPanelHTML))

// controlPanelHandler serves an overview of the stored repositories.
func (s *DemoServer) controlPanelHandler(w http.ResponseWriter, _ *http.Request) {
	data := struct {
		Owner string
		Repos []repoState
	}{
		Owner: s.cfg.Owner,
		Repos: s.snapshot(),
	}
	w.Header().Set("Content-Type", "text/html")
	_ = controlPanel.Execute(w, data)
}

const controlPanelHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Demo Provider Control Panel</title>
    <style>
        body { font-family: system-ui, -apple-system, sans-serif; max-width: 1200px; margin: 0 auto; padding: 20px; background: #f5f5f5; }
        h1 { color: #333; border-bottom: 2px solid #007bff; padding-bottom: 10px; }
        .repo-card { background: white; border-radius: 8px; padding: 20px; margin: 15px 0; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        .repo-name { font-size: 1.2em; font-weight: bold; color: #007bff; text-decoration: none; }
        .pages { font-weight: bold; color: #28a745; }
        .reset-btn { padding: 10px 20px; border: none; border-radius: 4px; cursor: pointer; background: #dc3545; color: white; }
    </style>
</head>
<body>
    <h1>Repositories of {{.Owner}}</h1>
    <button class="reset-btn" onclick="fetch('/demo/reset', {method: 'POST'}).then(() => location.reload())">Remove all</button>
    {{range .Repos}}
    <div class="repo-card">
        <a class="repo-name" href="/sites/{{.Owner}}/{{.Name}}/" target="_blank">{{.Owner}}/{{.Name}}</a>
        {{if .Pages}}<span class="pages">pages enabled</span>{{end}}
        <ul>{{range .Files}}<li>{{.}}</li>{{end}}</ul>
        <ol>{{range .Commits}}<li>{{.Message}}</li>{{end}}</ol>
    </div>
    {{else}}
    <p>No repositories yet.</p>
    {{end}}
</body>
</html>`
