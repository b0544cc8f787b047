package demoserver_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/raysh454/sitedrop/internal/demoserver"
)

func newServer(t *testing.T, cfg demoserver.Config) (*demoserver.DemoServer, *httptest.Server) {
	t.Helper()
	ds := demoserver.NewDemoServer(cfg)
	ts := httptest.NewServer(ds.Handler())
	t.Cleanup(ts.Close)
	return ds, ts
}

func do(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req, _ := http.NewRequest(method, url, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestDemoServer_RejectsBadToken(t *testing.T) {
	cfg := demoserver.DefaultConfig()
	cfg.Token = "secret"
	_, ts := newServer(t, cfg)

	resp := do(t, http.MethodPost, ts.URL+"/user/repos", "wrong", map[string]any{"name": "x"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestDemoServer_RepoLifecycle(t *testing.T) {
	ds, ts := newServer(t, demoserver.DefaultConfig())

	resp := do(t, http.MethodPost, ts.URL+"/user/repos", "", map[string]any{"name": "site-1", "auto_init": true})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", resp.StatusCode)
	}
	resp = do(t, http.MethodPost, ts.URL+"/user/repos", "", map[string]any{"name": "site-1"})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("duplicate create: expected 422, got %d", resp.StatusCode)
	}

	resp = do(t, http.MethodGet, ts.URL+"/repos/demo-user/site-1/pages", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("pages before create: expected 404, got %d", resp.StatusCode)
	}
	resp = do(t, http.MethodPost, ts.URL+"/repos/demo-user/site-1/pages", "", map[string]any{"build_type": "workflow"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("pages create: expected 201, got %d", resp.StatusCode)
	}
	resp = do(t, http.MethodPost, ts.URL+"/repos/demo-user/site-1/pages", "", map[string]any{"build_type": "workflow"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("pages create twice: expected 409, got %d", resp.StatusCode)
	}

	resp = do(t, http.MethodPut, ts.URL+"/repos/demo-user/site-1/contents/index.html", "",
		map[string]any{"message": "Add index.html", "content": []byte("<h1>hi</h1>")})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("put: expected 201, got %d", resp.StatusCode)
	}
	resp = do(t, http.MethodPut, ts.URL+"/repos/demo-user/site-1/contents/index.html", "",
		map[string]any{"message": "again", "content": []byte("x")})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("put without sha: expected 422, got %d", resp.StatusCode)
	}

	got := ds.Files("demo-user", "site-1")
	if strings.Join(got, ",") != "README.md,index.html" {
		t.Fatalf("unexpected files %v", got)
	}

	site := do(t, http.MethodGet, ts.URL+"/sites/demo-user/site-1/", "", nil)
	body, _ := io.ReadAll(site.Body)
	if string(body) != "<h1>hi</h1>" {
		t.Fatalf("site root: got %q", body)
	}
}

func TestDemoServer_RequireRootIndex(t *testing.T) {
	cfg := demoserver.DefaultConfig()
	cfg.RequireRootIndex = true
	_, ts := newServer(t, cfg)

	do(t, http.MethodPost, ts.URL+"/user/repos", "", map[string]any{"name": "r"})
	resp := do(t, http.MethodPost, ts.URL+"/repos/demo-user/r/pages", "", map[string]any{"build_type": "workflow"})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 without index, got %d", resp.StatusCode)
	}
}

func TestDemoServer_FailNext(t *testing.T) {
	ds, ts := newServer(t, demoserver.DefaultConfig())
	ds.FailNext(http.MethodPost, "/user/repos", http.StatusServiceUnavailable, 1)

	resp := do(t, http.MethodPost, ts.URL+"/user/repos", "", map[string]any{"name": "r"})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected injected 503, got %d", resp.StatusCode)
	}
	resp = do(t, http.MethodPost, ts.URL+"/user/repos", "", map[string]any{"name": "r"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("fault should be consumed, got %d", resp.StatusCode)
	}
}

func TestDemoServer_StateAndReset(t *testing.T) {
	ds, ts := newServer(t, demoserver.DefaultConfig())
	do(t, http.MethodPost, ts.URL+"/user/repos", "", map[string]any{"name": "a"})

	resp := do(t, http.MethodGet, ts.URL+"/demo/state", "", nil)
	var state []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if len(state) != 1 || state[0]["name"] != "a" {
		t.Fatalf("unexpected state %v", state)
	}

	do(t, http.MethodPost, ts.URL+"/demo/reset", "", nil)
	if names := ds.RepoNames(); len(names) != 0 {
		t.Fatalf("expected no repos after reset, got %v", names)
	}
}
