package render

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/use-agent/webgrabber/models"
)

func TestExportWritesMarkdownForHTMLResources(t *testing.T) {
	dir := t.TempDir()
	htmlPath := "pages/index.html"
	full := filepath.Join(dir, htmlPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}

	content := strings.Repeat("This is a long enough paragraph of article text to pass the minimum content length check used by the extractor. ", 3)
	page := "<html><head><title>Example</title></head><body><article><h1>Example</h1><p>" + content + "</p></article></body></html>"
	if err := os.WriteFile(full, []byte(page), 0o644); err != nil {
		t.Fatal(err)
	}

	resources := models.ResourceMap{
		"https://example.com/": {
			URL:        "https://example.com/",
			Kind:       models.KindHTML,
			SavePath:   htmlPath,
			HTTPStatus: 200,
		},
	}

	written := Export(dir, resources)
	if written != 1 {
		t.Fatalf("Export wrote %d files, want 1", written)
	}

	md, err := os.ReadFile(full + ".md")
	if err != nil {
		t.Fatalf("expected sibling markdown file: %v", err)
	}
	if len(md) == 0 {
		t.Error("markdown output is empty")
	}
}

func TestExportSkipsNonHTMLResources(t *testing.T) {
	dir := t.TempDir()
	resources := models.ResourceMap{
		"https://example.com/app.css": {
			Kind:     models.KindCSS,
			SavePath: "app.css",
		},
	}

	if written := Export(dir, resources); written != 0 {
		t.Errorf("Export wrote %d files for non-HTML resources, want 0", written)
	}
}

func TestExportSkipsResourcesWithNoSavePath(t *testing.T) {
	dir := t.TempDir()
	resources := models.ResourceMap{
		"https://example.com/": {Kind: models.KindHTML, SavePath: ""},
	}

	if written := Export(dir, resources); written != 0 {
		t.Errorf("Export wrote %d files for unsaved resources, want 0", written)
	}
}
