package bundle

import (
	"bytes"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Warning is a non-fatal finding about the bundle.
type Warning struct {
	File    string `json:"file"`
	Ref     string `json:"ref"`
	Message string `json:"message"`
}

// referenceAttrs are the element/attribute pairs that load or link local assets.
var referenceAttrs = []struct {
	selector string
	attr     string
}{
	{"link[href]", "href"},
	{"script[src]", "src"},
	{"a[href]", "href"},
	{"img[src]", "src"},
}

// Inspect parses every HTML file and reports relative references to files
// that are not part of the bundle. Files that fail to parse are skipped.
func Inspect(files []File) []Warning {
	present := make(map[string]bool, len(files))
	for _, f := range files {
		present[strings.ToLower(f.Name)] = true
	}

	var warnings []Warning
	for _, f := range files {
		if !strings.EqualFold(path.Ext(f.Name), ".html") {
			continue
		}
		body, err := f.Content()
		if err != nil {
			continue
		}
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			continue
		}
		seen := map[string]bool{}
		for _, ra := range referenceAttrs {
			doc.Find(ra.selector).Each(func(_ int, s *goquery.Selection) {
				ref, _ := s.Attr(ra.attr)
				target, ok := localTarget(ref)
				if !ok || seen[target] {
					return
				}
				seen[target] = true
				if !present[strings.ToLower(target)] {
					warnings = append(warnings, Warning{
						File:    f.Name,
						Ref:     ref,
						Message: "referenced file is not part of the upload",
					})
				}
			})
		}
	}
	return warnings
}

// localTarget resolves ref to a root-level file name when it points inside
// the site. Absolute URLs, fragments, mailto: etc. are ignored.
func localTarget(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") || strings.HasPrefix(ref, "//") {
		return "", false
	}
	u, err := url.Parse(ref)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "", false
	}
	p := strings.TrimPrefix(path.Clean("/"+u.Path), "/")
	if p == "" || p == "." {
		return "", false
	}
	return p, true
}
