package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/use-agent/webgrabber/models"
)

func TestRecordAppendsJSONLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	trail, err := Open(path, DefaultRotation)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer trail.Close()

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	events := []models.AuditEvent{
		{Timestamp: ts, RunID: "run-1", Kind: "fetch_ok", URL: "https://example.com/a"},
		{Timestamp: ts, RunID: "run-1", Kind: "fetch_error", URL: "https://example.com/b", Detail: "timeout"},
	}
	for _, ev := range events {
		if err := trail.Record(ev); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if err := trail.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open log file: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var got []models.AuditEvent
	for scanner.Scan() {
		var ev models.AuditEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("Unmarshal line %q: %v", scanner.Text(), err)
		}
		got = append(got, ev)
	}
	if len(got) != len(events) {
		t.Fatalf("got %d lines, want %d", len(got), len(events))
	}
	for i, ev := range got {
		if ev.Kind != events[i].Kind || ev.URL != events[i].URL {
			t.Errorf("line %d = %#v, want %#v", i, ev, events[i])
		}
	}
}
