package main

import (
	"testing"

	"github.com/use-agent/webgrabber/internal/credential"
	"github.com/use-agent/webgrabber/models"
)

func TestPersistSessionSavesUnderHost(t *testing.T) {
	store, err := credential.Open(t.TempDir())
	if err != nil {
		t.Fatalf("credential.Open: %v", err)
	}

	sess := models.Session{Cookies: []models.Cookie{{Name: "sid", Value: "abc", Domain: "example.com"}}}
	persistSession(store, "https://example.com/path", sess)

	got, ok, err := store.LoadSession("example.com")
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if !ok {
		t.Fatal("expected session to be persisted")
	}
	if len(got.Cookies) != 1 || got.Cookies[0].Value != "abc" {
		t.Errorf("got = %#v", got)
	}
}

func TestPersistSessionNilStoreIsNoop(t *testing.T) {
	// Must not panic when no credential store is available.
	persistSession(nil, "https://example.com", models.Session{})
}
