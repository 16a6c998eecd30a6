// Package retryutil implements the offline retry ladder (C8): given a
// run manifest's failed URLs, re-download each one through three
// escalating stages and overwrite its file at the same save path C5
// originally computed.
package retryutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/use-agent/webgrabber/internal/collector"
	"github.com/use-agent/webgrabber/models"
)

// Outcome records what happened to one URL's retry.
type Outcome struct {
	URL       string
	Succeeded bool
	Stage     int // 1, 2, or 3 — the stage that succeeded, 0 if none did
	SavePath  string
	Err       error
}

// Retry re-downloads every failed resource in m and overwrites its file
// under outputRoot, returning one Outcome per attempted URL.
func Retry(ctx context.Context, m models.RunManifest, outputRoot string) []Outcome {
	outcomes := make([]Outcome, 0, len(m.Resources))
	for _, url := range m.FailedURLs() {
		res := m.Resources[url]
		outcomes = append(outcomes, retryOne(ctx, url, res.Kind, outputRoot))
	}
	return outcomes
}

func retryOne(ctx context.Context, rawURL string, kind models.Kind, outputRoot string) Outcome {
	if body, err := stageAsyncBackoff(ctx, rawURL); err == nil {
		return finish(rawURL, kind, outputRoot, 1, body, nil)
	}

	if body, err := stageMethodVariants(ctx, rawURL); err == nil {
		return finish(rawURL, kind, outputRoot, 2, body, nil)
	}

	if body, err := stageSubprocess(ctx, rawURL); err == nil {
		return finish(rawURL, kind, outputRoot, 3, body, nil)
	}

	return Outcome{URL: rawURL, Succeeded: false, Err: fmt.Errorf("retryutil: all three stages failed for %s", rawURL)}
}

func finish(rawURL string, kind models.Kind, outputRoot string, stage int, body []byte, err error) Outcome {
	if err != nil {
		return Outcome{URL: rawURL, Succeeded: false, Err: err}
	}

	savePath, derr := collector.DerivePath(rawURL, kind)
	if derr != nil {
		return Outcome{URL: rawURL, Succeeded: false, Err: derr}
	}

	dest := filepath.Join(outputRoot, savePath)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return Outcome{URL: rawURL, Succeeded: false, Err: err}
	}
	if err := os.WriteFile(dest, body, 0o644); err != nil {
		return Outcome{URL: rawURL, Succeeded: false, Err: err}
	}

	return Outcome{URL: rawURL, Succeeded: true, Stage: stage, SavePath: savePath}
}

// backoffAttempts and backoffBase implement "5 attempts, exponential
// backoff starting at 2s" (spec.md §4.6, stages 1 and 2).
const backoffAttempts = 5

var backoffBase = 2 * time.Second

func withBackoff(ctx context.Context, attempt func() ([]byte, error)) ([]byte, error) {
	var lastErr error
	wait := backoffBase
	for i := 0; i < backoffAttempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
			wait *= 2
		}
		body, err := attempt()
		if err == nil {
			return body, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// stageAsyncBackoff is stage 1: a plain GET under exponential backoff.
func stageAsyncBackoff(ctx context.Context, rawURL string) ([]byte, error) {
	client := &http.Client{Timeout: 30 * time.Second}
	return withBackoff(ctx, func() ([]byte, error) {
		return doGet(ctx, client, rawURL, nil)
	})
}

// stageMethodVariants is stage 2: three method variants, each itself
// wrapped in its own backoff loop.
func stageMethodVariants(ctx context.Context, rawURL string) ([]byte, error) {
	client := &http.Client{Timeout: 30 * time.Second}

	variants := []func() ([]byte, error){
		func() ([]byte, error) { return doGet(ctx, client, rawURL, nil) },
		func() ([]byte, error) {
			if _, err := doHead(ctx, client, rawURL); err != nil {
				return nil, err
			}
			return doGet(ctx, client, rawURL, nil)
		},
		func() ([]byte, error) {
			return doGet(ctx, client, rawURL, map[string]string{"User-Agent": ""})
		},
	}

	var lastErr error
	for _, variant := range variants {
		body, err := withBackoff(ctx, variant)
		if err == nil {
			return body, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func doGet(ctx context.Context, client *http.Client, rawURL string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		if v == "" {
			continue
		}
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func doHead(ctx context.Context, client *http.Client, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return client.Do(req)
}

// subprocessTimeout bounds stage 3's curl/wget invocations.
const subprocessTimeout = 60 * time.Second

// stageSubprocess is stage 3: shell out to curl, falling back to wget.
func stageSubprocess(ctx context.Context, rawURL string) ([]byte, error) {
	if body, err := runCapture(ctx, "curl", "-fsSL", rawURL); err == nil {
		return body, nil
	}
	return runCapture(ctx, "wget", "-q", "-O", "-", rawURL)
}

func runCapture(ctx context.Context, name string, args ...string) ([]byte, error) {
	if _, err := exec.LookPath(name); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, subprocessTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s failed: %s: %w", name, errBuf.String(), err)
	}
	return out.Bytes(), nil
}
