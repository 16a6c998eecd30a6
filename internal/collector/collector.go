// Package collector implements the asset collector (C5): the headless
// render of the entry page, the FIFO work-queue worker pool that crawls
// discovered assets, and the save-path/parsing rules that drive it.
package collector

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"golang.org/x/time/rate"

	"github.com/use-agent/webgrabber/internal/audit"
	"github.com/use-agent/webgrabber/internal/browserpool"
	"github.com/use-agent/webgrabber/models"
)

// navigateTimeout bounds the initial render (spec §4.3.1 / §5: "browser
// wait-idle 60 s").
const navigateTimeout = 60 * time.Second

// cancelPollInterval is how often the observer goroutine checks the
// cancellation token (spec §4.3.2: "polls the cancellation token every
// 500 ms").
const cancelPollInterval = 500 * time.Millisecond

// DefaultWorkers is N in spec §4.3.2's "fixed pool of N workers (default
// N=20, configurable)".
const DefaultWorkers = 20

// OnFile is called once per successfully saved resource, with the path
// relative to the output root.
type OnFile func(relPath string)

// CancelToken is the one-shot cancellation signal observable by every
// worker and the rendering step.
type CancelToken struct {
	mu        sync.Mutex
	cancelled bool
}

// Cancel sets the token. Safe to call more than once or concurrently.
func (t *CancelToken) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelled = true
}

// IsSet reports whether Cancel has been called.
func (t *CancelToken) IsSet() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Options configures a Capture run. The zero value is valid and uses
// every documented default.
type Options struct {
	Workers   int        // default DefaultWorkers
	Proxy     string     // empty disables proxying
	RateLimit rate.Limit // 0 disables throttling

	// Pool, if set, supplies the headless browser used for the entry-page
	// render from a shared, bounded set instead of launching a new
	// Chromium process per Capture call. cmd/webgrabber-gui sets this so
	// concurrent /runs requests share the pool; cmd/webgrabber leaves it
	// nil since a single-shot CLI run has nothing to share with.
	Pool *browserpool.Pool

	// Audit, if set, receives one AuditEvent per saved file and one per
	// per-URL fetch/save error, stamped with RunID (C1's audit trail).
	Audit *audit.Trail
	RunID string
}

// Collector runs one Capture at a time per instance; create a new
// Collector per run if concurrent runs are needed (the orchestrator
// does this).
type Collector struct {
	opts Options
}

// New returns a Collector configured with opts, applying defaults for
// zero-valued fields.
func New(opts Options) *Collector {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	return &Collector{opts: opts}
}

// job is one queue entry.
type job struct {
	url string
}

// Capture implements the C5 entry point: render url, crawl everything it
// references, and return the full resource map. cancel may be nil, in
// which case the run cannot be cancelled early.
func (c *Collector) Capture(ctx context.Context, rawURL, outputRoot string, cookies []models.Cookie, cancel *CancelToken, onFile OnFile) (models.ResourceMap, error) {
	if cancel == nil {
		cancel = &CancelToken{}
	}

	html, renderErr := renderEntryPage(ctx, rawURL, cookies, c.opts.Pool)
	if renderErr != nil {
		// spec §4.3.1: "On any other navigation error, return an empty
		// mapping" — not an error the orchestrator needs to see.
		return models.ResourceMap{}, nil
	}

	client, err := newHTTPClient(c.opts.Proxy)
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if c.opts.RateLimit > 0 {
		limiter = rate.NewLimiter(c.opts.RateLimit, c.opts.Workers)
	}

	run := &runState{
		ctx:        ctx,
		client:     client,
		limiter:    limiter,
		cookies:    cookies,
		outputRoot: outputRoot,
		onFile:     onFile,
		cancel:     cancel,
		audit:      c.opts.Audit,
		runID:      c.opts.RunID,
		visited:    make(map[string]struct{}),
		resources:  make(models.ResourceMap),
		queue:      newFifoQueue(),
		allDone:    make(chan struct{}),
	}

	run.markVisited(rawURL)
	run.recordEntryPage(rawURL, html)

	if links, err := extractHTMLLinks(html); err == nil {
		run.enqueueDiscovered(rawURL, links)
	}

	var workerWG sync.WaitGroup
	for i := 0; i < c.opts.Workers; i++ {
		workerWG.Add(1)
		go func() {
			defer workerWG.Done()
			run.worker()
		}()
	}

	observerDone := make(chan struct{})
	go func() {
		defer close(observerDone)
		ticker := time.NewTicker(cancelPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if cancel.IsSet() {
					run.drainQueue()
					return
				}
			case <-run.allDone:
				return
			}
		}
	}()

	go func() {
		run.wg.Wait()
		run.queue.close()
	}()

	workerWG.Wait()
	close(run.allDone)
	<-observerDone

	if cancel.IsSet() {
		return models.ResourceMap{}, nil
	}
	return run.resources, nil
}

// renderEntryPage navigates to rawURL with the supplied cookies, waits
// for the DOM to settle (bounded by navigateTimeout), and returns
// whatever HTML is available even on timeout (spec §4.3.1: "On timeout,
// proceed with whatever content is available"). When pool is non-nil, the
// browser process is borrowed from it and returned afterward instead of
// being launched and closed for this one render.
func renderEntryPage(ctx context.Context, rawURL string, cookies []models.Cookie, pool *browserpool.Pool) ([]byte, error) {
	if pool != nil {
		return renderEntryPageWithPool(ctx, rawURL, cookies, pool)
	}

	l := launcher.New().Headless(true).Set("no-sandbox").Set("disable-dev-shm-usage")
	controlURL, err := l.Launch()
	if err != nil {
		return nil, err
	}
	defer l.Cleanup()

	renderCtx, cancel := context.WithTimeout(ctx, navigateTimeout)
	defer cancel()

	browser := rod.New().ControlURL(controlURL).Context(renderCtx)
	if err := browser.Connect(); err != nil {
		return nil, err
	}
	defer browser.Close()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, err
	}

	return navigateAndRead(page, renderCtx, rawURL, cookies)
}

func renderEntryPageWithPool(ctx context.Context, rawURL string, cookies []models.Cookie, pool *browserpool.Pool) ([]byte, error) {
	handle, err := pool.Get()
	if err != nil {
		return nil, err
	}

	renderCtx, cancel := context.WithTimeout(ctx, navigateTimeout)
	defer cancel()

	page, err := handle.Browser.Context(renderCtx).Page(proto.TargetCreateTarget{})
	if err != nil {
		pool.Put(handle, false)
		return nil, err
	}
	defer page.Close()

	out, err := navigateAndRead(page, renderCtx, rawURL, cookies)
	pool.Put(handle, err == nil)
	return out, err
}

func navigateAndRead(page *rod.Page, renderCtx context.Context, rawURL string, cookies []models.Cookie) ([]byte, error) {
	for _, ck := range cookies {
		domain := ck.Domain
		if domain == "" {
			if u, perr := url.Parse(rawURL); perr == nil {
				domain = u.Host
			}
		}
		_, _ = proto.NetworkSetCookie{Name: ck.Name, Value: ck.Value, Domain: domain, Path: "/"}.Call(page)
	}

	p := page.Context(renderCtx)
	if err := p.Navigate(rawURL); err != nil {
		return nil, err
	}

	// A WaitDOMStable timeout is not fatal: proceed with whatever DOM
	// exists, matching the spec's "do not fail the run on timeout" rule.
	_ = p.WaitDOMStable(300*time.Millisecond, 0.1)

	out, err := p.HTML()
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

// runState holds everything shared across workers for one Capture call.
type runState struct {
	ctx        context.Context
	client     *http.Client
	limiter    *rate.Limiter
	cookies    []models.Cookie
	outputRoot string
	onFile     OnFile
	cancel     *CancelToken
	audit      *audit.Trail
	runID      string

	mu        sync.Mutex
	visited   map[string]struct{}
	resources models.ResourceMap

	wg      sync.WaitGroup
	queue   *fifoQueue
	allDone chan struct{}
}
