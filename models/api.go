package models

import "time"

// RunRequest is the JSON body for POST /api/v1/runs.
type RunRequest struct {
	URL        string `json:"url"`
	OutputRoot string `json:"output_root"`
	Archive    string `json:"archive,omitempty"` // "zip", "tar.gz", or empty for none
}

// RunAcceptedResponse is returned immediately after a run is queued.
type RunAcceptedResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// RunStatusResponse is returned by GET /api/v1/runs/:id.
type RunStatusResponse struct {
	RunID       string       `json:"run_id"`
	Status      string       `json:"status"` // "running", "completed", "failed", "cancelled"
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at,omitempty"`
	FileCount   int          `json:"file_count"`
	ArchivePath string       `json:"archive_path,omitempty"`
	Error       *ErrorDetail `json:"error,omitempty"`
}

// APIErrorResponse is the JSON envelope for a failed API call.
type APIErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
}

// HealthResponse is returned by GET /api/v1/health.
type HealthResponse struct {
	Status     string `json:"status"`
	Uptime     string `json:"uptime"`
	Version    string `json:"version"`
	ActiveRuns int    `json:"active_runs"`
}
