package collector

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/use-agent/webgrabber/internal/audit"
	"github.com/use-agent/webgrabber/models"
)

func newTestRunState(t *testing.T, outputRoot string, trail *audit.Trail) *runState {
	t.Helper()
	client, err := newHTTPClient("")
	if err != nil {
		t.Fatalf("newHTTPClient: %v", err)
	}
	return &runState{
		ctx:        context.Background(),
		client:     client,
		outputRoot: outputRoot,
		cancel:     &CancelToken{},
		audit:      trail,
		runID:      "run-test",
		visited:    make(map[string]struct{}),
		resources:  make(models.ResourceMap),
		queue:      newFifoQueue(),
		allDone:    make(chan struct{}),
	}
}

func TestHandleJobRecordsAuditEventOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	trailPath := filepath.Join(t.TempDir(), "audit.jsonl")
	trail, err := audit.Open(trailPath, audit.DefaultRotation)
	if err != nil {
		t.Fatalf("audit.Open: %v", err)
	}

	r := newTestRunState(t, t.TempDir(), trail)
	r.wg.Add(1)
	r.handleJob(job{url: srv.URL + "/index.html"})

	if len(r.resources) != 1 {
		t.Fatalf("expected 1 resource recorded, got %d", len(r.resources))
	}

	if err := trail.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	data, err := os.ReadFile(trailPath)
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	if !bytes.Contains(data, []byte("fetch_ok")) {
		t.Errorf("expected fetch_ok event in audit log, got %s", data)
	}
}

func TestHandleJobRecordsAuditEventOnFetchError(t *testing.T) {
	// A server started then immediately closed leaves its address
	// refusing connections, giving a fast, deterministic fetch failure.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := srv.URL + "/gone"
	srv.Close()

	trailPath := filepath.Join(t.TempDir(), "audit.jsonl")
	trail, err := audit.Open(trailPath, audit.DefaultRotation)
	if err != nil {
		t.Fatalf("audit.Open: %v", err)
	}

	r := newTestRunState(t, t.TempDir(), trail)
	r.wg.Add(1)
	r.handleJob(job{url: deadURL})

	res, ok := r.resources[deadURL]
	if !ok || res.HTTPStatus != models.StatusDownloadError {
		t.Fatalf("expected a download_error resource, got %+v (ok=%v)", res, ok)
	}

	if err := trail.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	data, err := os.ReadFile(trailPath)
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	if !bytes.Contains(data, []byte("fetch_error")) {
		t.Errorf("expected fetch_error event in audit log, got %s", data)
	}
}
