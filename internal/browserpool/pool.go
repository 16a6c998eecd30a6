// Package browserpool maintains a bounded, auto-scaling set of reusable
// headless browser processes backing concurrent renders in
// cmd/webgrabber-gui: N simultaneous capture requests share this pool
// instead of each launching its own Chromium.
package browserpool

import (
	"log/slog"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// Handle wraps one pooled browser process with health-tracking metadata
// used to decide when it should be retired rather than reused.
type Handle struct {
	ID       int64
	Browser  *rod.Browser
	launch   *launcher.Launcher
	errScore float64
	useCount int
	created  time.Time
	mu       sync.Mutex
}

// RecordSuccess lowers the handle's error score after a clean render.
func (h *Handle) RecordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.useCount++
	h.errScore = math.Max(0, h.errScore-0.5)
}

// RecordFailure raises the handle's error score after a failed render.
func (h *Handle) RecordFailure() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.useCount++
	h.errScore += 1.0
}

// ShouldRetire reports whether the handle has accumulated enough errors,
// uses, or age to be closed and replaced rather than reused again.
func (h *Handle) ShouldRetire() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.errScore >= 3.0 {
		return true
	}
	if h.useCount >= 50 {
		return true
	}
	if time.Since(h.created) >= 50*time.Minute {
		return true
	}
	return false
}

// Config bounds how the pool grows and shrinks.
type Config struct {
	MinBrowsers  int
	HardMax      int
	MemThreshold float64 // 0.0-1.0, fraction of heap-in-use/heap-sys
	ScaleStep    float64 // 0.0-1.0, fraction of the pool to grow/shrink per tick
}

// Pool manages a set of headless browser processes, growing under load
// and shrinking under memory pressure.
type Pool struct {
	cfg Config

	idle    chan *Handle
	mu      sync.Mutex
	all     map[int64]*Handle
	nextID  atomic.Int64
	active  atomic.Int32
	stopped chan struct{}
}

// New creates and starts a pool, pre-launching cfg.MinBrowsers browsers.
func New(cfg Config) (*Pool, error) {
	if cfg.MinBrowsers < 1 {
		cfg.MinBrowsers = 1
	}
	if cfg.HardMax < cfg.MinBrowsers {
		cfg.HardMax = cfg.MinBrowsers
	}
	if cfg.MemThreshold <= 0 {
		cfg.MemThreshold = 0.9
	}
	if cfg.ScaleStep <= 0 {
		cfg.ScaleStep = 0.05
	}

	p := &Pool{
		cfg:     cfg,
		idle:    make(chan *Handle, cfg.HardMax),
		all:     make(map[int64]*Handle),
		stopped: make(chan struct{}),
	}

	for i := 0; i < cfg.MinBrowsers; i++ {
		h, err := p.createHandle()
		if err != nil {
			slog.Warn("browserpool: failed to pre-launch browser", "error", err)
			continue
		}
		p.idle <- h
	}

	go p.scalingLoop()
	return p, nil
}

// Get acquires a browser handle, launching a new one if under the hard
// max, or blocking for one to be returned otherwise.
func (p *Pool) Get() (*Handle, error) {
	select {
	case h := <-p.idle:
		p.active.Add(1)
		return h, nil
	default:
	}

	p.mu.Lock()
	if len(p.all) < p.cfg.HardMax {
		h, err := p.createHandleLocked()
		p.mu.Unlock()
		if err == nil {
			p.active.Add(1)
			return h, nil
		}
	} else {
		p.mu.Unlock()
	}

	h := <-p.idle
	p.active.Add(1)
	return h, nil
}

// Put returns a handle to the pool, retiring and replacing it if its
// health metrics say so.
func (p *Pool) Put(h *Handle, success bool) {
	p.active.Add(-1)

	if success {
		h.RecordSuccess()
	} else {
		h.RecordFailure()
	}

	if h.ShouldRetire() {
		slog.Debug("browserpool: retiring browser", "id", h.ID, "useCount", h.useCount)
		p.destroyHandle(h)

		p.mu.Lock()
		if len(p.all) < p.cfg.MinBrowsers {
			if newH, err := p.createHandleLocked(); err == nil {
				p.mu.Unlock()
				p.idle <- newH
				return
			}
		}
		p.mu.Unlock()
		return
	}

	p.idle <- h
}

// Size returns the number of live browser processes.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.all)
}

// ActiveCount returns the number of handles currently checked out.
func (p *Pool) ActiveCount() int {
	return int(p.active.Load())
}

// Stop closes every browser process and halts the scaling loop.
func (p *Pool) Stop() {
	close(p.stopped)

drainLoop:
	for {
		select {
		case h := <-p.idle:
			p.destroyHandle(h)
		default:
			break drainLoop
		}
	}

	p.mu.Lock()
	for id, h := range p.all {
		closeBrowser(h)
		delete(p.all, id)
	}
	p.mu.Unlock()
}

func (p *Pool) createHandle() (*Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.createHandleLocked()
}

func (p *Pool) createHandleLocked() (*Handle, error) {
	l := launcher.New().Headless(true).Set("no-sandbox").Set("disable-dev-shm-usage")
	controlURL, err := l.Launch()
	if err != nil {
		return nil, err
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return nil, err
	}

	h := &Handle{
		ID:      p.nextID.Add(1),
		Browser: browser,
		launch:  l,
		created: time.Now(),
	}
	p.all[h.ID] = h
	return h, nil
}

func (p *Pool) destroyHandle(h *Handle) {
	p.mu.Lock()
	delete(p.all, h.ID)
	p.mu.Unlock()
	closeBrowser(h)
}

func closeBrowser(h *Handle) {
	_ = h.Browser.Close()
	if h.launch != nil {
		h.launch.Cleanup()
	}
}

func (p *Pool) scalingLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopped:
			return
		case <-ticker.C:
			p.scaleCheck()
		}
	}
}

func (p *Pool) scaleCheck() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	var memPressure float64
	if m.HeapSys > 0 {
		memPressure = float64(m.HeapInuse) / float64(m.HeapSys)
	}

	p.mu.Lock()
	totalSize := len(p.all)
	p.mu.Unlock()

	active := int(p.active.Load())
	var activeRate float64
	if totalSize > 0 {
		activeRate = float64(active) / float64(totalSize)
	}

	if memPressure > p.cfg.MemThreshold {
		shrinkCount := int(math.Ceil(float64(totalSize) * p.cfg.ScaleStep))
		for i := 0; i < shrinkCount; i++ {
			p.mu.Lock()
			if len(p.all) <= p.cfg.MinBrowsers {
				p.mu.Unlock()
				break
			}
			p.mu.Unlock()

			select {
			case h := <-p.idle:
				slog.Debug("browserpool: shrinking, retiring browser", "id", h.ID)
				p.destroyHandle(h)
			default:
				return
			}
		}
	} else if activeRate > 0.8 {
		growCount := int(math.Ceil(float64(totalSize) * p.cfg.ScaleStep))
		for i := 0; i < growCount; i++ {
			p.mu.Lock()
			if len(p.all) >= p.cfg.HardMax {
				p.mu.Unlock()
				break
			}
			h, err := p.createHandleLocked()
			p.mu.Unlock()
			if err != nil {
				slog.Warn("browserpool: failed to grow", "error", err)
				break
			}
			slog.Debug("browserpool: grew pool", "id", h.ID)
			p.idle <- h
		}
	}
}
