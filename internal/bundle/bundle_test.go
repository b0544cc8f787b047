package bundle_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/raysh454/sitedrop/internal/bundle"
	"github.com/raysh454/sitedrop/internal/testutil"
)

func TestValidate_AllowsListedExtensions(t *testing.T) {
	files := []bundle.File{{Name: "index.html"}, {Name: "STYLE.CSS"}, {Name: "app.Js"}}
	if err := bundle.Validate(files); err != nil {
		t.Fatalf("expected valid bundle, got %v", err)
	}
}

func TestValidate_RejectsFirstDisallowedFile(t *testing.T) {
	files := []bundle.File{{Name: "index.html"}, {Name: "logo.png"}, {Name: "run.sh"}}

	err := bundle.Validate(files)

	var verr *bundle.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.File != "logo.png" {
		t.Errorf("expected offending file logo.png, got %q", verr.File)
	}
	if !strings.Contains(err.Error(), "logo.png") {
		t.Errorf("error should name the file: %v", err)
	}
}

func TestValidate_TableOfDisallowed(t *testing.T) {
	tests := []string{"README", "page.htm", "archive.zip", "x.html.exe", ".env"}
	for _, name := range tests {
		t.Run(name, func(t *testing.T) {
			err := bundle.Validate([]bundle.File{{Name: name}})
			var verr *bundle.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError for %q, got %v", name, err)
			}
		})
	}
}

func TestValidate_EmptyList(t *testing.T) {
	var verr *bundle.ValidationError
	if err := bundle.Validate(nil); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for empty bundle, got %v", err)
	}
}

func TestValidateBundle_RequiresFields(t *testing.T) {
	tests := []struct {
		name string
		b    *bundle.Bundle
	}{
		{"nil", nil},
		{"no project", &bundle.Bundle{ContactEmail: "a@b.c", Files: []bundle.File{{Name: "index.html"}}}},
		{"no email", &bundle.Bundle{ProjectName: "p", Files: []bundle.File{{Name: "index.html"}}}},
		{"no files", &bundle.Bundle{ProjectName: "p", ContactEmail: "a@b.c"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var verr *bundle.ValidationError
			if err := bundle.ValidateBundle(tc.b); !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestHasEntryDocument_CaseInsensitive(t *testing.T) {
	if !bundle.HasEntryDocument([]bundle.File{{Name: "INDEX.HTML"}}) {
		t.Error("expected INDEX.HTML to count as entry document")
	}
	if bundle.HasEntryDocument([]bundle.File{{Name: "home/index.html.bak"}, {Name: "main.html"}}) {
		t.Error("did not expect an entry document")
	}
}

func TestStaging_AddAndRelease(t *testing.T) {
	root := t.TempDir()
	logger := &testutil.DummyLogger{}

	st, err := bundle.NewStaging(root, "session-1", logger)
	if err != nil {
		t.Fatalf("NewStaging: %v", err)
	}

	f, err := st.Add("style.css", strings.NewReader("body{}"))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if f.Name != "style.css" {
		t.Errorf("expected original name, got %q", f.Name)
	}
	content, err := f.Content()
	if err != nil || string(content) != "body{}" {
		t.Fatalf("unexpected content %q err=%v", content, err)
	}

	st.Release()
	st.Release()

	if _, err := os.Stat(filepath.Join(root, "session-1")); !os.IsNotExist(err) {
		t.Errorf("expected staging dir removed, stat err=%v", err)
	}
	if _, err := st.Add("late.js", strings.NewReader("")); err == nil {
		t.Error("expected Add after Release to fail")
	}
	if len(logger.Warns) != 0 {
		t.Errorf("unexpected warnings: %v", logger.Warns)
	}
}

func TestStaging_RejectsPathLikeSession(t *testing.T) {
	for _, id := range []string{"", "..", "a/b"} {
		if _, err := bundle.NewStaging(t.TempDir(), id, nil); err == nil {
			t.Errorf("expected error for session id %q", id)
		}
	}
}

func TestFileContent_PrefersData(t *testing.T) {
	f := bundle.File{Name: "index.html", Path: "/does/not/exist", Data: []byte("<html></html>")}
	b, err := f.Content()
	if err != nil || string(b) != "<html></html>" {
		t.Fatalf("unexpected content %q err=%v", b, err)
	}
	if _, err := (bundle.File{Name: "x.js"}).Content(); err == nil {
		t.Error("expected error for file without content")
	}
}

func TestInspect_ReportsMissingLocalReferences(t *testing.T) {
	html := `<!DOCTYPE html><html><head>
<link rel="stylesheet" href="style.css">
<link rel="stylesheet" href="https://cdn.example.com/x.css">
<script src="./missing.js"></script>
</head><body><a href="#top">top</a><a href="about.html">About</a><img src="/logo.svg"></body></html>`
	files := []bundle.File{
		{Name: "index.html", Data: []byte(html)},
		{Name: "style.css", Data: []byte("body{}")},
	}

	warnings := bundle.Inspect(files)

	got := map[string]bool{}
	for _, w := range warnings {
		got[w.Ref] = true
		if w.File != "index.html" {
			t.Errorf("unexpected warning file %q", w.File)
		}
	}
	for _, ref := range []string{"./missing.js", "about.html", "/logo.svg"} {
		if !got[ref] {
			t.Errorf("expected warning for %s, got %v", ref, warnings)
		}
	}
	if got["style.css"] || got["https://cdn.example.com/x.css"] || got["#top"] {
		t.Errorf("unexpected warnings: %v", warnings)
	}
}

func TestInspect_IgnoresNonHTML(t *testing.T) {
	files := []bundle.File{{Name: "app.js", Data: []byte(`<script src="nope.js"></script>`)}}
	if w := bundle.Inspect(files); len(w) != 0 {
		t.Fatalf("expected no warnings, got %v", w)
	}
}
