package collector

import (
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/use-agent/webgrabber/models"
)

// worker drains the queue until it is closed and empty, handling
// exactly one job_done call per dequeue (spec §4.3.2 invariant).
func (r *runState) worker() {
	for {
		j, ok := r.queue.pop()
		if !ok {
			return
		}
		r.handleJob(j)
	}
}

// handleJob fetches, saves, and (for HTML/CSS) parses one URL. Every
// failure mode is recorded as a Resource and never propagated, per
// spec §4.3.7.
func (r *runState) handleJob(j job) {
	defer r.wg.Done()

	if r.cancel.IsSet() {
		r.recordCancelledStub(j.url)
		return
	}

	fr, err := fetchURL(r.ctx, r.client, r.limiter, j.url, r.cookies)
	if err != nil {
		r.recordResource(j.url, models.Resource{
			URL:        j.url,
			Kind:       models.KindUnknown,
			HTTPStatus: models.StatusDownloadError,
			Source:     "download_error",
		})
		r.auditEvent("fetch_error", j.url, "download_error: "+err.Error())
		return
	}

	kind := deriveKind(fr.ContentType, j.url)
	savePath, perr := DerivePath(j.url, kind)
	if perr != nil {
		r.recordResource(j.url, models.Resource{
			URL:        j.url,
			Kind:       kind,
			HTTPStatus: models.StatusDownloadError,
			Source:     "save_error",
		})
		r.auditEvent("fetch_error", j.url, "save_error: "+perr.Error())
		return
	}

	fullPath := filepath.Join(r.outputRoot, filepath.FromSlash(savePath))
	if err := writeFile(fullPath, fr.Body); err != nil {
		r.recordResource(j.url, models.Resource{
			URL:        j.url,
			Kind:       kind,
			HTTPStatus: models.StatusDownloadError,
			Source:     "save_error",
		})
		r.auditEvent("fetch_error", j.url, "save_error: "+err.Error())
		return
	}

	r.recordResource(j.url, models.Resource{
		URL:        j.url,
		Kind:       kind,
		Bytes:      fr.Body,
		HTTPStatus: fr.StatusCode,
		SavePath:   savePath,
	})
	r.auditEvent("fetch_ok", j.url, savePath)
	if r.onFile != nil {
		r.onFile(savePath)
	}

	switch kind {
	case models.KindHTML:
		if links, err := extractHTMLLinks(fr.Body); err == nil {
			r.enqueueDiscovered(j.url, links)
		}
	case models.KindCSS:
		r.enqueueDiscovered(j.url, extractCSSURLs(string(fr.Body)))
	}
}

// recordEntryPage saves the HTML already fetched by the renderer,
// without going through the worker fetch path again (the browser, not a
// worker, performed that GET).
func (r *runState) recordEntryPage(rawURL string, html []byte) {
	savePath, err := DerivePath(rawURL, models.KindHTML)
	if err != nil {
		return
	}
	fullPath := filepath.Join(r.outputRoot, filepath.FromSlash(savePath))
	if err := writeFile(fullPath, html); err != nil {
		r.recordResource(rawURL, models.Resource{URL: rawURL, Kind: models.KindHTML, HTTPStatus: models.StatusDownloadError, Source: "save_error"})
		r.auditEvent("fetch_error", rawURL, "save_error: "+err.Error())
		return
	}
	r.recordResource(rawURL, models.Resource{
		URL:        rawURL,
		Kind:       models.KindHTML,
		Bytes:      html,
		HTTPStatus: http200,
		SavePath:   savePath,
	})
	r.auditEvent("fetch_ok", rawURL, savePath)
	if r.onFile != nil {
		r.onFile(savePath)
	}
}

// auditEvent appends one event to the audit trail if one was configured,
// swallowing any write error (the trail is best-effort bookkeeping, not
// something a run should fail over).
func (r *runState) auditEvent(kind, url, detail string) {
	if r.audit == nil {
		return
	}
	_ = r.audit.Record(models.AuditEvent{
		Timestamp: time.Now(),
		RunID:     r.runID,
		Kind:      kind,
		URL:       url,
		Detail:    detail,
	})
}

// http200 names the status recorded for the entry page, which was
// fetched by the browser rather than net/http and so has no
// *http.Response to read a real status from.
const http200 = 200

// markVisited adds rawURL to the visited-set and reports whether it was
// newly added.
func (r *runState) markVisited(rawURL string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.visited[rawURL]; ok {
		return false
	}
	r.visited[rawURL] = struct{}{}
	return true
}

// enqueueDiscovered resolves each raw link against baseURL and enqueues
// every one not already in the visited-set. The visited-set is updated
// before enqueue, per spec §4.3.2's dedup invariant.
func (r *runState) enqueueDiscovered(baseURL string, rawLinks []string) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return
	}

	for _, raw := range rawLinks {
		ref, err := url.Parse(raw)
		if err != nil {
			continue
		}
		resolved := base.ResolveReference(ref)
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			continue
		}
		resolved.Fragment = ""
		absURL := resolved.String()

		if !r.markVisited(absURL) {
			continue
		}

		r.wg.Add(1)
		if !r.queue.push(job{url: absURL}) {
			r.wg.Done()
		}
	}
}

// recordResource writes res into the shared resource map under
// res.URL's key.
func (r *runState) recordResource(rawURL string, res models.Resource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resources[rawURL] = res
}

// recordCancelledStub records the stub Resource spec §4.3.3 step 1
// requires when a worker observes cancellation before fetching.
func (r *runState) recordCancelledStub(rawURL string) {
	r.recordResource(rawURL, models.Resource{
		URL:        rawURL,
		Kind:       models.KindCancelled,
		HTTPStatus: models.StatusNotAttempted,
	})
}

// drainQueue records a cancelled stub for everything currently buffered
// and closes the queue, waking any worker blocked in pop(). Workers
// already mid-fetch still finish that fetch and check cancellation on
// their next dequeue, which now returns immediately with ok=false.
func (r *runState) drainQueue() {
	for _, j := range r.queue.drainPending() {
		r.recordCancelledStub(j.url)
		r.wg.Done()
	}
	r.queue.close()
}

// writeFile creates any missing parent directories and writes data,
// overwriting an existing file at path (round-trip re-runs are
// idempotent byte-for-byte per spec §8).
func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
