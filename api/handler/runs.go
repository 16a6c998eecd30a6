package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/webgrabber/internal/archive"
	"github.com/use-agent/webgrabber/internal/audit"
	"github.com/use-agent/webgrabber/internal/browserpool"
	"github.com/use-agent/webgrabber/internal/collector"
	"github.com/use-agent/webgrabber/internal/config"
	"github.com/use-agent/webgrabber/internal/credential"
	"github.com/use-agent/webgrabber/internal/manifest"
	"github.com/use-agent/webgrabber/internal/orchestrator"
	"github.com/use-agent/webgrabber/models"
)

// runJob tracks one in-flight or completed run triggered through the API.
type runJob struct {
	mu          sync.Mutex
	id          string
	status      string
	startedAt   time.Time
	finishedAt  time.Time
	fileCount   int
	archivePath string
	err         *models.ErrorDetail
	cancel      *collector.CancelToken
}

func (j *runJob) snapshot() models.RunStatusResponse {
	j.mu.Lock()
	defer j.mu.Unlock()
	return models.RunStatusResponse{
		RunID:       j.id,
		Status:      j.status,
		StartedAt:   j.startedAt,
		FinishedAt:  j.finishedAt,
		FileCount:   j.fileCount,
		ArchivePath: j.archivePath,
		Error:       j.err,
	}
}

// runStore holds every job accepted by this process. Entries whose run
// finished more than an hour ago are evicted by a background goroutine;
// running jobs are kept. This mirrors the teacher's
// crawl-job expiry pattern.
var runStore sync.Map

func init() {
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			cutoff := time.Now().Add(-1 * time.Hour)
			runStore.Range(func(key, value any) bool {
				job := value.(*runJob)
				job.mu.Lock()
				finished := !job.finishedAt.IsZero() && job.finishedAt.Before(cutoff)
				job.mu.Unlock()
				if finished {
					runStore.Delete(key)
				}
				return true
			})
		}
	}()
}

// Deps bundles the shared, long-lived collaborators every run handler
// needs.
type Deps struct {
	Config      *config.Config
	Credentials *credential.Store
	Pool        *browserpool.Pool
	Manifests   *manifest.Store // optional; when set, every completed run is recorded
	Audit       *audit.Trail    // optional; when set, every run emits AuditEvents
}

// PostRun returns a handler for POST /api/v1/runs: it validates the
// request, registers a job, launches the run in the background, and
// returns the job's id immediately.
func PostRun(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.RunRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.APIErrorResponse{
				Error: &models.ErrorDetail{Code: models.ErrCodeInvalidInput, Message: err.Error()},
			})
			return
		}
		if req.URL == "" || req.OutputRoot == "" {
			c.JSON(http.StatusBadRequest, models.APIErrorResponse{
				Error: &models.ErrorDetail{Code: models.ErrCodeInvalidInput, Message: "url and output_root are required"},
			})
			return
		}

		job := &runJob{id: "run-" + randomID(), status: "running", startedAt: time.Now(), cancel: &collector.CancelToken{}}
		runStore.Store(job.id, job)

		go executeRun(deps, job, req)

		c.JSON(http.StatusAccepted, models.RunAcceptedResponse{RunID: job.id, Status: job.status})
	}
}

// GetRun returns a handler for GET /api/v1/runs/:id.
func GetRun() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		val, ok := runStore.Load(id)
		if !ok {
			c.JSON(http.StatusNotFound, models.APIErrorResponse{
				Error: &models.ErrorDetail{Code: models.ErrCodeInvalidInput, Message: "run not found"},
			})
			return
		}
		c.JSON(http.StatusOK, val.(*runJob).snapshot())
	}
}

// CancelRun returns a handler for POST /api/v1/runs/:id/cancel.
func CancelRun() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		val, ok := runStore.Load(id)
		if !ok {
			c.JSON(http.StatusNotFound, models.APIErrorResponse{
				Error: &models.ErrorDetail{Code: models.ErrCodeInvalidInput, Message: "run not found"},
			})
			return
		}
		val.(*runJob).cancel.Cancel()
		c.JSON(http.StatusOK, gin.H{"run_id": id, "cancelling": true})
	}
}

func executeRun(deps Deps, job *runJob, req models.RunRequest) {
	ctx := context.Background()
	startedAt := time.Now()

	tree, resources, err := orchestrator.Run(ctx, req.URL, req.OutputRoot, orchestrator.Options{
		Config:      deps.Config,
		Credentials: deps.Credentials,
		Cancel:      job.cancel,
		Pool:        deps.Pool,
		Audit:       deps.Audit,
		RunID:       job.id,
	})

	job.mu.Lock()
	defer job.mu.Unlock()
	job.finishedAt = time.Now()

	if err != nil {
		job.status = "failed"
		job.err = &models.ErrorDetail{Code: models.ErrCodeInternal, Message: err.Error()}
		if ge, ok := asGrabError(err); ok {
			job.err = ge.ToDetail()
		}
		return
	}
	if job.cancel.IsSet() {
		job.status = "cancelled"
		return
	}

	job.fileCount = len(tree)
	job.status = "completed"

	if req.Archive != "" {
		archivePath := req.OutputRoot + "." + req.Archive
		if archiveErr := archive.Pack(req.OutputRoot, archivePath, archive.Format(req.Archive)); archiveErr == nil {
			job.archivePath = archivePath
		}
	}

	if deps.Manifests != nil && resources != nil {
		m := models.RunManifest{
			RunID:      job.id,
			StartURL:   req.URL,
			StartedAt:  startedAt,
			FinishedAt: job.finishedAt,
			OutputRoot: req.OutputRoot,
			Resources:  resources,
		}
		if putErr := deps.Manifests.Put(m); putErr != nil {
			slog.Warn("failed to persist run manifest", "run_id", job.id, "error", putErr)
		}
	}
}

func asGrabError(err error) (*models.GrabError, bool) {
	ge, ok := err.(*models.GrabError)
	return ge, ok
}

func randomID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
