package retryutil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/use-agent/webgrabber/models"
)

func TestRetrySucceedsOnFirstStage(t *testing.T) {
	origBase := backoffBase
	backoffBase = time.Millisecond
	defer func() { backoffBase = origBase }()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	outputRoot := t.TempDir()
	m := models.RunManifest{
		Resources: models.ResourceMap{
			srv.URL + "/a.html": {URL: srv.URL + "/a.html", HTTPStatus: 500, Kind: models.KindHTML},
		},
	}

	outcomes := Retry(context.Background(), m, outputRoot)
	if len(outcomes) != 1 {
		t.Fatalf("len(outcomes) = %d, want 1", len(outcomes))
	}
	if !outcomes[0].Succeeded {
		t.Fatalf("outcome = %#v, want succeeded", outcomes[0])
	}
	if outcomes[0].Stage != 1 {
		t.Errorf("Stage = %d, want 1", outcomes[0].Stage)
	}

	data, err := os.ReadFile(filepath.Join(outputRoot, outcomes[0].SavePath))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "ok" {
		t.Errorf("content = %q, want %q", data, "ok")
	}
}

func TestRetryAllStagesFailReturnsUnsucceeded(t *testing.T) {
	origBase := backoffBase
	backoffBase = time.Millisecond
	defer func() { backoffBase = origBase }()

	m := models.RunManifest{
		Resources: models.ResourceMap{
			"http://127.0.0.1:1/never-listens": {URL: "http://127.0.0.1:1/never-listens", HTTPStatus: 500, Kind: models.KindHTML},
		},
	}

	outcomes := Retry(context.Background(), m, t.TempDir())
	if len(outcomes) != 1 {
		t.Fatalf("len(outcomes) = %d, want 1", len(outcomes))
	}
	if outcomes[0].Succeeded {
		t.Errorf("outcome succeeded unexpectedly: %#v", outcomes[0])
	}
}

func TestDoGetNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := &http.Client{Timeout: 5 * time.Second}
	_, err := doGet(context.Background(), client, srv.URL, nil)
	if err == nil {
		t.Fatal("expected an error for a 404 response")
	}
}
