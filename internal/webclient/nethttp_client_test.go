package webclient_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/raysh454/sitedrop/internal/testutil"
	"github.com/raysh454/sitedrop/internal/webclient"
)

// ─── round-trip via httptest ───────────────────────────────────────────

func TestNetHTTPClient_SetsUserAgent(t *testing.T) {
	t.Parallel()
	var gotUA string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = io.WriteString(w, "ok")
	}))
	defer ts.Close()

	client := webclient.NewNetHTTPClient(webclient.Config{UserAgent: "sitedrop-test"}, &testutil.DummyLogger{}, ts.Client())
	resp, err := client.Get(ts.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if gotUA != "sitedrop-test" {
		t.Errorf("expected User-Agent sitedrop-test, got %q", gotUA)
	}
	if string(body) != "ok" {
		t.Errorf("expected body ok, got %q", body)
	}
}

func TestNetHTTPClient_KeepsExplicitUserAgent(t *testing.T) {
	t.Parallel()
	var gotUA string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer ts.Close()

	client := webclient.NewNetHTTPClient(webclient.Config{UserAgent: "default"}, &testutil.DummyLogger{}, ts.Client())
	req, _ := http.NewRequest(http.MethodGet, ts.URL, nil)
	req.Header.Set("User-Agent", "explicit")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()

	if gotUA != "explicit" {
		t.Errorf("expected explicit User-Agent kept, got %q", gotUA)
	}
	if req.Header.Get("User-Agent") != "explicit" {
		t.Errorf("caller request mutated")
	}
}

func TestNetHTTPClient_LogsServerErrors(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	logger := &testutil.DummyLogger{}
	client := webclient.NewNetHTTPClient(webclient.Config{}, logger, ts.Client())
	resp, err := client.Get(ts.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", resp.StatusCode)
	}
	if logger.WarnCount() != 1 {
		t.Errorf("expected one warning, got %v", logger.Warns)
	}
}

func TestNetHTTPClient_ConnectionRefused_LogsAndFails(t *testing.T) {
	t.Parallel()
	logger := &testutil.DummyLogger{}
	client := webclient.NewNetHTTPClient(webclient.Config{Timeout: time.Second}, logger, nil)

	_, err := client.Get("http://127.0.0.1:1") // port 1 is unlikely to be open
	if err == nil {
		t.Fatal("expected error for connection refused")
	}
	if logger.WarnCount() != 1 {
		t.Errorf("expected one warning, got %v", logger.Warns)
	}
}

func TestNetHTTPClient_TimeoutApplied(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()

	client := webclient.NewNetHTTPClient(webclient.Config{Timeout: 50 * time.Millisecond}, &testutil.DummyLogger{}, ts.Client())
	if client.Timeout != 50*time.Millisecond {
		t.Fatalf("expected timeout 50ms, got %s", client.Timeout)
	}

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, ts.URL, nil)
	if _, err := client.Do(req); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestNetHTTPClient_DoesNotMutateBase(t *testing.T) {
	t.Parallel()
	base := &http.Client{Timeout: time.Minute}
	client := webclient.NewNetHTTPClient(webclient.Config{Timeout: time.Second}, &testutil.DummyLogger{}, base)
	if base.Timeout != time.Minute || base.Transport != nil {
		t.Error("base client was modified")
	}
	if client.Transport == nil {
		t.Error("expected wrapped transport")
	}
}
