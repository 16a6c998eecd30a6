// Package audit implements the append-only run audit trail (C1): every
// AuditEvent is appended as one JSON line to a rotated log file and
// mirrored through log/slog the way the teacher's own command-line
// entry point configures its logger.
package audit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/use-agent/webgrabber/models"
)

// RotationConfig mirrors the rotation knobs lumberjack exposes, kept as
// a small struct so callers never import lumberjack directly.
type RotationConfig struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// DefaultRotation is used when a caller does not override rotation.
var DefaultRotation = RotationConfig{MaxSizeMB: 50, MaxBackups: 5, MaxAgeDays: 30, Compress: true}

// Trail appends AuditEvents as JSON lines to a rotated file and logs a
// human-readable line through slog for the same event.
type Trail struct {
	mu     sync.Mutex
	writer *lumberjack.Logger
	logger *slog.Logger
}

// Open creates (or appends to) the audit trail at path.
func Open(path string, rotation RotationConfig) (*Trail, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("audit: create log dir: %w", err)
	}

	w := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    rotation.MaxSizeMB,
		MaxBackups: rotation.MaxBackups,
		MaxAge:     rotation.MaxAgeDays,
		Compress:   rotation.Compress,
	}

	logger := slog.Default()

	return &Trail{writer: w, logger: logger}, nil
}

// Close flushes and closes the underlying rotated file.
func (t *Trail) Close() error {
	return t.writer.Close()
}

// Record appends one event, stamping nothing beyond what the caller
// supplied — timestamps are the caller's responsibility since this
// package never calls time.Now (callers may be replaying or testing).
func (t *Trail) Record(ev models.AuditEvent) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("audit: marshal event: %w", err)
	}
	line = append(line, '\n')
	if _, err := t.writer.Write(line); err != nil {
		return fmt.Errorf("audit: write event: %w", err)
	}

	t.logger.Info(ev.Kind,
		"run_id", ev.RunID,
		"url", ev.URL,
		"detail", ev.Detail,
		"ts", ev.Timestamp,
	)
	return nil
}
