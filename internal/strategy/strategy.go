// Package strategy implements the acquisition strategy set (C6): one
// constructor-based strategy per hosting family, every one exposing the
// same download() → FileTree shape the orchestrator drives.
package strategy

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/use-agent/webgrabber/internal/audit"
	"github.com/use-agent/webgrabber/internal/collector"
	"github.com/use-agent/webgrabber/internal/config"
	"github.com/use-agent/webgrabber/internal/credential"
	"github.com/use-agent/webgrabber/models"
)

// subprocessTimeout bounds any single external command (spec §5:
// "subprocess per-command ≤ 70 s").
const subprocessTimeout = 70 * time.Second

// Prompt requests a secret from the operator; implementations must not
// echo it back (spec §6's prompt interface contract).
type Prompt func(kind, message string) (string, error)

// Logger is the small function-valued logging hook every strategy is
// given, per spec §9's "callbacks for logging and prompts become small
// function-valued parameters."
type Logger func(format string, args ...any)

// Params is the shared constructor argument shape spec §4.4 specifies:
// "constructor takes {url, output_root, config, session, log, prompt,
// cancel_token}".
type Params struct {
	URL         string
	OutputRoot  string
	Config      *config.Config
	Session     models.Session
	Log         Logger
	Prompt      Prompt
	Cancel      *collector.CancelToken
	Credentials *credential.Store
	Platform    models.PlatformInfo

	// Audit, if non-nil, receives one AuditEvent per saved file and per
	// per-URL fetch/save error (currently consumed by the website
	// strategy's collector, the only strategy with a per-asset loop).
	Audit *audit.Trail
	RunID string
}

// Strategy is the common shape every acquirer implements.
type Strategy interface {
	Download(ctx context.Context) (models.FileTree, error)
}

// ErrCancelled is returned by a strategy's Download when the cancel
// token was observed set before or during the download.
var ErrCancelled = models.NewGrabError(models.ErrCodeCancelled, "run cancelled", nil)

// checkCancelled returns ErrCancelled if p.Cancel is set, matching spec
// §4.4's "every strategy observes the cancellation token at the start
// and after each I/O-bound step."
func checkCancelled(p Params) error {
	if p.Cancel != nil && p.Cancel.IsSet() {
		return ErrCancelled
	}
	return nil
}

// requireTool checks PATH for name and returns a user-actionable
// MISSING_EXTERNAL_TOOL error naming an install suggestion if absent
// (spec §6: "missing-tool errors are user-actionable with suggested
// install text").
func requireTool(name, installHint string) error {
	if _, err := exec.LookPath(name); err != nil {
		return models.NewGrabError(models.ErrCodeMissingTool,
			fmt.Sprintf("%s not found on PATH (%s)", name, installHint), err)
	}
	return nil
}

// runSubprocess runs name with args under a bounded timeout, piping
// stdout/stderr into memory and attaching stderr to any returned error
// (spec §9: "stderr is captured and attached to any raised error").
func runSubprocess(ctx context.Context, name string, args ...string) (stdout []byte, err error) {
	ctx, cancel := context.WithTimeout(ctx, subprocessTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	if runErr := cmd.Run(); runErr != nil {
		return outBuf.Bytes(), models.NewGrabError(models.ErrCodeStrategyFailed,
			fmt.Sprintf("%s %v failed: %s", name, args, errBuf.String()), runErr)
	}
	return outBuf.Bytes(), nil
}

// ForFamily returns the strategy registered for family, or nil if none
// is registered (the orchestrator falls back to WebsiteCaptureStrategy
// in that case, per spec §4.5's dispatch table).
func ForFamily(family models.Family, p Params) Strategy {
	switch family {
	case models.FamilyGitHosting:
		return NewGitStrategy(p)
	case models.FamilySSHHosting:
		return NewSSHStrategy(p)
	case models.FamilyPaaS:
		return NewPaasStrategy(p)
	case models.FamilyContainerRegistry:
		return NewContainerStrategy(p)
	default:
		return nil
	}
}
