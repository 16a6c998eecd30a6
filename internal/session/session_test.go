package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-rod/rod/lib/proto"
)

func TestImportFromBrowserRejectsUnknownBrowser(t *testing.T) {
	_, err := ImportFromBrowser(context.Background(), BrowserID("opera"), "https://example.com")
	if err == nil {
		t.Fatal("expected error for unsupported browser id")
	}
}

func TestImportFromBrowserRejectsFirefox(t *testing.T) {
	_, err := ImportFromBrowser(context.Background(), BrowserFirefox, "https://example.com")
	if err == nil {
		t.Fatal("expected error for firefox (unsupported mechanism)")
	}
}

func TestFilterCookiesForHostKeepsMatchingDomainsOnly(t *testing.T) {
	cookies := []*proto.NetworkCookie{
		{Name: "session", Value: "a", Domain: "example.com"},
		{Name: "wide", Value: "b", Domain: ".example.com"},
		{Name: "other", Value: "c", Domain: "unrelated.test"},
		{Name: "suffix-trick", Value: "d", Domain: "evilexample.com"},
	}

	got := filterCookiesForHost(cookies, "https://example.com/path")

	names := make(map[string]bool)
	for _, c := range got {
		names[c.Name] = true
	}
	if !names["session"] || !names["wide"] {
		t.Errorf("expected matching-domain cookies kept, got %+v", got)
	}
	if names["other"] || names["suffix-trick"] {
		t.Errorf("expected unrelated-domain cookies dropped, got %+v", got)
	}
}

func TestImportFromBrowserMissingProfileErrors(t *testing.T) {
	// chrome profile dir is unlikely to exist in the test sandbox's HOME;
	// this documents the not-found path without touching a real browser.
	t.Setenv("HOME", t.TempDir())
	_, err := ImportFromBrowser(context.Background(), BrowserChrome, "https://example.com")
	if err == nil {
		t.Fatal("expected error when no local chrome profile exists")
	}
}

func TestCopyDirPreservesTree(t *testing.T) {
	src := t.TempDir()
	if err := os.MkdirAll(filepath.Join(src, "sub"), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "a.txt"), []byte("hello"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "sub", "b.txt"), []byte("world"), 0o600); err != nil {
		t.Fatal(err)
	}

	dst := t.TempDir()
	if err := copyDir(src, dst); err != nil {
		t.Fatalf("copyDir: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dst, "a.txt"))
	if err != nil || string(got) != "hello" {
		t.Fatalf("a.txt = %q, err %v", got, err)
	}
	got, err = os.ReadFile(filepath.Join(dst, "sub", "b.txt"))
	if err != nil || string(got) != "world" {
		t.Fatalf("sub/b.txt = %q, err %v", got, err)
	}
}
