package strategy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/use-agent/webgrabber/models"
)

func TestDeploymentRefFromURL(t *testing.T) {
	if got := deploymentRef("https://my-app.vercel.app"); got != "my-app.vercel.app" {
		t.Errorf("deploymentRef = %q", got)
	}
}

func TestBearerTokenPrefersCache(t *testing.T) {
	dir := t.TempDir()
	store := mustOpenStore(t, dir)
	if err := store.Put("vercel", credentialRecordFor("vercel", "cached-token")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	s := NewPaasStrategy(Params{
		Credentials: store,
		Platform:    models.PlatformInfo{ID: "vercel", Name: "Vercel"},
	})

	got, err := s.bearerToken()
	if err != nil {
		t.Fatalf("bearerToken: %v", err)
	}
	if got != "cached-token" {
		t.Errorf("got %q", got)
	}
}

func TestBearerTokenNoCacheNoPromptIsAuthError(t *testing.T) {
	s := NewPaasStrategy(Params{Platform: models.PlatformInfo{ID: "vercel", Name: "Vercel"}})
	if _, err := s.bearerToken(); err == nil {
		t.Fatal("expected an auth error")
	}
}

func TestDownloadViaAPIListsAndFetchesFiles(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/files", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer token: %q", r.Header.Get("Authorization"))
		}
		_ = json.NewEncoder(w).Encode([]deployFile{
			{Name: "index.html", Path: "index.html", Type: "file"},
			{Name: "assets", Path: "assets", Type: "directory"},
		})
	})
	mux.HandleFunc("/files/index.html", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html></html>"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	outDir := t.TempDir()
	dir := t.TempDir()
	store := mustOpenStore(t, dir)
	if err := store.Put("vercel", credentialRecordFor("vercel", "tok")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	s := NewPaasStrategy(Params{
		OutputRoot:  outDir,
		Credentials: store,
		Platform:    models.PlatformInfo{ID: "vercel", Name: "Vercel"},
	})

	tree, err := s.downloadViaAPI(context.Background(), srv.URL+"/files")
	if err != nil {
		t.Fatalf("downloadViaAPI: %v", err)
	}
	if tree["index.html"] == "" {
		t.Errorf("tree missing index.html: %#v", tree)
	}
	if _, ok := tree["assets"]; ok {
		t.Errorf("directory entry should not appear in tree")
	}

	written, err := os.ReadFile(filepath.Join(outDir, "index.html"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(written) != "<html></html>" {
		t.Errorf("written content = %q", written)
	}
}
