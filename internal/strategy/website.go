package strategy

import (
	"context"

	"github.com/use-agent/webgrabber/internal/browserpool"
	"github.com/use-agent/webgrabber/internal/collector"
	"github.com/use-agent/webgrabber/models"
)

// WebsiteCaptureStrategy is the fallback acquirer used when a URL's
// platform family has no dedicated strategy, or the family is
// FamilyUnknown: it drives the recursive crawling collector directly
// (spec §4.5's dispatch table).
type WebsiteCaptureStrategy struct {
	p             Params
	collector     *collector.Collector
	onFile        collector.OnFile
	lastResources models.ResourceMap
}

// NewWebsiteCaptureStrategy builds a WebsiteCaptureStrategy. onFile, if
// non-nil, is invoked once per file written to output_root, letting a
// caller stream progress without waiting for Download to return. pool,
// if non-nil, supplies the entry-page render's browser from a shared
// pool instead of launching a dedicated Chromium for this one run.
func NewWebsiteCaptureStrategy(p Params, onFile collector.OnFile, pool *browserpool.Pool) *WebsiteCaptureStrategy {
	return &WebsiteCaptureStrategy{
		p: p,
		collector: collector.New(collector.Options{
			Workers: collector.DefaultWorkers,
			Proxy:   proxyFor(p),
			Pool:    pool,
			Audit:   p.Audit,
			RunID:   p.RunID,
		}),
		onFile: onFile,
	}
}

func proxyFor(p Params) string {
	if p.Config == nil {
		return ""
	}
	return p.Config.General.Proxy
}

// Download hands the target URL, the session's cookies, and the shared
// cancel token to the collector and converts its ResourceMap into the
// FileTree shape every strategy returns.
func (s *WebsiteCaptureStrategy) Download(ctx context.Context) (models.FileTree, error) {
	if err := checkCancelled(s.p); err != nil {
		return nil, err
	}

	resources, err := s.collector.Capture(ctx, s.p.URL, s.p.OutputRoot, s.p.Session.Cookies, s.p.Cancel, s.onFile)
	s.lastResources = resources
	if err != nil && !models.IsCancellation(err) {
		return nil, err
	}
	if err == nil {
		err = checkCancelled(s.p)
	}

	return resources.ToFileTree(), err
}

// Resources returns the ResourceMap produced by the most recent Download
// call, letting the orchestrator populate a run manifest with per-URL
// status beyond what the FileTree every strategy returns can carry.
func (s *WebsiteCaptureStrategy) Resources() models.ResourceMap {
	return s.lastResources
}
