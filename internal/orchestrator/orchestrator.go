// Package orchestrator implements the run driver (C7): classify the
// target URL, resolve a cached session for its host, pick an
// acquisition strategy, and drive it to completion.
package orchestrator

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/use-agent/webgrabber/internal/audit"
	"github.com/use-agent/webgrabber/internal/browserpool"
	"github.com/use-agent/webgrabber/internal/collector"
	"github.com/use-agent/webgrabber/internal/config"
	"github.com/use-agent/webgrabber/internal/credential"
	"github.com/use-agent/webgrabber/internal/platform"
	"github.com/use-agent/webgrabber/internal/strategy"
	"github.com/use-agent/webgrabber/models"
)

// Logger is the run-wide logging hook, forwarded unchanged to whichever
// strategy executes.
type Logger = strategy.Logger

// Prompt is the run-wide secret-prompt hook, forwarded unchanged to
// whichever strategy executes.
type Prompt = strategy.Prompt

// Options configures one call to Run. Credentials and Config are shared
// across runs; Cancel, Log, Prompt, and OnFile are per-run.
type Options struct {
	Config      *config.Config
	Credentials *credential.Store
	Log         Logger
	Prompt      Prompt
	Cancel      *collector.CancelToken
	OnFile      collector.OnFile

	// Pool, if set, is shared across concurrent Run calls so they borrow
	// browser processes from it instead of each launching their own
	// (cmd/webgrabber-gui's use case); nil for single-shot callers.
	Pool *browserpool.Pool

	// Session, if non-nil, overrides the credential store's cached
	// session for this one run (e.g. cookies freshly imported from a
	// local browser profile, or captured via an interactive login). When
	// nil, Run falls back to the cached per-domain session.
	Session *models.Session

	// Audit, if set, receives one AuditEvent per run milestone
	// (classification, terminal outcome) plus, forwarded through Params,
	// one event per saved file and per per-URL fetch/save error from
	// whichever strategy executes. RunID stamps every event this run
	// produces.
	Audit *audit.Trail
	RunID string
}

// resourceProvider is implemented by strategies that track per-URL fetch
// status beyond the FileTree every strategy returns (currently only
// WebsiteCaptureStrategy); Run uses it to populate the ResourceMap it
// returns for manifest recording.
type resourceProvider interface {
	Resources() models.ResourceMap
}

// Run classifies url, resolves a session, selects a strategy, and
// returns the resulting FileTree plus, when the strategy tracks it, the
// underlying ResourceMap for manifest recording. A cancelled run returns
// an empty tree and a nil error, matching spec.md §4.5's "on_cancel:
// return empty tree" contract; every other failure is recorded as a
// run_failed audit event and returned unchanged.
func Run(ctx context.Context, rawURL, outputRoot string, opts Options) (models.FileTree, models.ResourceMap, error) {
	if opts.Cancel != nil && opts.Cancel.IsSet() {
		recordAudit(opts, "run_cancelled", rawURL, "cancelled before start")
		return models.FileTree{}, nil, nil
	}

	info := platform.Classify(ctx, rawURL)
	if opts.Log != nil {
		opts.Log("classified %s as platform=%s family=%s", rawURL, info.Name, info.Family)
	}
	recordAudit(opts, "classified", rawURL, fmt.Sprintf("platform=%s family=%s", info.Name, info.Family))

	var sess models.Session
	if opts.Session != nil {
		sess = *opts.Session
	} else {
		sess = sessionForDomain(rawURL, opts.Credentials)
	}

	params := strategy.Params{
		URL:         rawURL,
		OutputRoot:  outputRoot,
		Config:      opts.Config,
		Session:     sess,
		Log:         opts.Log,
		Prompt:      opts.Prompt,
		Cancel:      opts.Cancel,
		Credentials: opts.Credentials,
		Platform:    info,
		Audit:       opts.Audit,
		RunID:       opts.RunID,
	}

	var acquirer strategy.Strategy
	if s := strategy.ForFamily(info.Family, params); s != nil {
		acquirer = s
	} else {
		acquirer = strategy.NewWebsiteCaptureStrategy(params, opts.OnFile, opts.Pool)
	}

	tree, err := acquirer.Download(ctx)

	var resources models.ResourceMap
	if rp, ok := acquirer.(resourceProvider); ok {
		resources = rp.Resources()
	}

	if err != nil {
		if models.IsCancellation(err) {
			recordAudit(opts, "run_cancelled", rawURL, "")
			return models.FileTree{}, nil, nil
		}
		recordAudit(opts, "run_failed", rawURL, err.Error())
		return nil, nil, err
	}
	recordAudit(opts, "run_completed", rawURL, fmt.Sprintf("files=%d", len(tree)))
	return tree, resources, nil
}

// recordAudit appends one event to opts.Audit if one was configured,
// swallowing any write error the same way the collector's per-file
// audit calls do.
func recordAudit(opts Options, kind, rawURL, detail string) {
	if opts.Audit == nil {
		return
	}
	_ = opts.Audit.Record(models.AuditEvent{
		Timestamp: time.Now(),
		RunID:     opts.RunID,
		Kind:      kind,
		URL:       rawURL,
		Detail:    detail,
	})
}

// sessionForDomain loads any cookies previously saved for url's host via
// C4's per-domain session cache, returning an empty Session (anonymous
// access) if none exists or the store is unavailable.
func sessionForDomain(rawURL string, store *credential.Store) models.Session {
	if store == nil {
		return models.Session{}
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return models.Session{}
	}
	sess, ok, err := store.LoadSession(u.Hostname())
	if err != nil || !ok {
		return models.Session{}
	}
	return sess
}
