package collector

import (
	"reflect"
	"sort"
	"testing"
)

func TestExtractHTMLLinksTagTable(t *testing.T) {
	html := []byte(`<html><body>
		<img src="/a.png">
		<a href="/b.html">link</a>
		<link rel="stylesheet" href="/s.css">
		<script src="/app.js"></script>
		<iframe src="/frame.html"></iframe>
	</body></html>`)

	links, err := extractHTMLLinks(html)
	if err != nil {
		t.Fatalf("extractHTMLLinks: %v", err)
	}

	want := []string{"/a.png", "/b.html", "/s.css", "/app.js", "/frame.html"}
	sort.Strings(links)
	sort.Strings(want)
	if !reflect.DeepEqual(links, want) {
		t.Errorf("got %v, want %v", links, want)
	}
}

func TestExtractHTMLLinksSkipsDataAndJavascriptAndFragment(t *testing.T) {
	html := []byte(`<html><body>
		<img src="data:image/png;base64,abc">
		<a href="javascript:void(0)">x</a>
		<a href="#section">y</a>
		<a href="mailto:me@example.com">z</a>
		<a href="/real.html">real</a>
	</body></html>`)

	links, err := extractHTMLLinks(html)
	if err != nil {
		t.Fatalf("extractHTMLLinks: %v", err)
	}
	if len(links) != 1 || links[0] != "/real.html" {
		t.Errorf("expected only /real.html to survive filtering, got %v", links)
	}
}

func TestExtractHTMLLinksSrcsetTakesFirstToken(t *testing.T) {
	html := []byte(`<img srcset="/a-1x.png 1x, /a-2x.png 2x">`)
	links, err := extractHTMLLinks(html)
	if err != nil {
		t.Fatalf("extractHTMLLinks: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("expected 2 candidates from srcset, got %v", links)
	}
	found := map[string]bool{}
	for _, l := range links {
		found[l] = true
	}
	if !found["/a-1x.png"] || !found["/a-2x.png"] {
		t.Errorf("expected both srcset candidates, got %v", links)
	}
}

func TestExtractHTMLLinksInlineStyleURL(t *testing.T) {
	html := []byte(`<div style="background: url('/bg.png')"></div>`)
	links, err := extractHTMLLinks(html)
	if err != nil {
		t.Fatalf("extractHTMLLinks: %v", err)
	}
	if len(links) != 1 || links[0] != "/bg.png" {
		t.Errorf("got %v", links)
	}
}

func TestExtractCSSURLs(t *testing.T) {
	css := `body { background: url("/bg.png"); } .x { background-image: url(/other.jpg); }`
	links := extractCSSURLs(css)
	sort.Strings(links)
	want := []string{"/bg.png", "/other.jpg"}
	if !reflect.DeepEqual(links, want) {
		t.Errorf("got %v, want %v", links, want)
	}
}

func TestExtractCSSURLsIgnoresDataURIs(t *testing.T) {
	css := `.x { background: url(data:image/png;base64,Zm9v); }`
	links := extractCSSURLs(css)
	if len(links) != 0 {
		t.Errorf("expected data: url to be ignored, got %v", links)
	}
}

func TestParseSrcsetHandlesWhitespace(t *testing.T) {
	got := parseSrcset("  /a.png 1x ,  /b.png 2x  ")
	want := []string{"/a.png", "/b.png"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
