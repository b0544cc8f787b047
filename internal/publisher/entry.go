package publisher

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"

	"github.com/raysh454/sitedrop/internal/bundle"
)

// DefaultTitle is used for entry documents created without a project name.
const DefaultTitle = "Website Project"

var entryTemplate = template.Must(template.New("entry").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
{{- if .Target}}
  <meta http-equiv="refresh" content="0; url=./{{.Target}}">
{{- end}}
  <title>{{.Title}}</title>
</head>
<body>
  <h1>{{.Title}}</h1>
{{- if .Target}}
  <p>Loading website... If you are not redirected, <a href="./{{.Target}}">click here</a>.</p>
{{- else}}
  <p>This site was published with sitedrop.</p>
{{- end}}
</body>
</html>
`))

// EntryDocument renders the synthesized index.html. With a target it
// redirects to that file; otherwise it only shows the title.
func EntryDocument(title, target string) ([]byte, error) {
	if title == "" {
		title = DefaultTitle
	}
	data := struct{ Title, Target string }{Title: title}
	if target != "" {
		data.Target = (&url.URL{Path: target}).EscapedPath()
	}
	var buf bytes.Buffer
	if err := entryTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("rendering %s: %w", bundle.EntryDocument, err)
	}
	return buf.Bytes(), nil
}

// WithEntryDocument returns files plus a synthesized index.html redirecting
// to the first file when none of them is named index.html. The input slice
// is not modified.
func WithEntryDocument(files []bundle.File, project string) ([]bundle.File, bool, error) {
	if bundle.HasEntryDocument(files) {
		return files, false, nil
	}
	target := ""
	if len(files) > 0 {
		target = files[0].Name
	}
	doc, err := EntryDocument(project, target)
	if err != nil {
		return nil, false, err
	}
	out := make([]bundle.File, 0, len(files)+1)
	out = append(out, files...)
	out = append(out, bundle.File{Name: bundle.EntryDocument, Data: doc})
	return out, true, nil
}
