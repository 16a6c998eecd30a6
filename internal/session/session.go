// Package session implements the session provider (C4): importing cookies
// from an installed browser's profile and driving an interactive login
// flow, both via a headless/visible go-rod browser rather than a
// hand-rolled cookie-store parser.
package session

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/use-agent/webgrabber/models"
)

// BrowserHandle is returned by InteractiveLogin. The session provider does
// not own the browser's lifetime: the caller closes it via Close (in this
// module, cmd/webgrabber's session cleanup after the run returns); the
// orchestrator never sees the handle.
type BrowserHandle struct {
	browser *rod.Browser
	launch  *launcher.Launcher
}

// Close releases the browser process started for an interactive login.
func (h *BrowserHandle) Close() error {
	if h == nil || h.browser == nil {
		return nil
	}
	err := h.browser.Close()
	if h.launch != nil {
		h.launch.Cleanup()
	}
	return err
}

// BrowserID names an installed browser whose profile cookies may be
// imported.
type BrowserID string

const (
	BrowserChrome  BrowserID = "chrome"
	BrowserFirefox BrowserID = "firefox"
	BrowserEdge    BrowserID = "edge"
	BrowserBrave   BrowserID = "brave"
)

// profileDirs lists the default profile directory for each browser this
// package can actually drive through a Chromium-based launcher, relative
// to the user's home directory. Firefox is handled separately in
// ImportFromBrowser since its profile format is incompatible with this
// mechanism.
var profileDirs = map[BrowserID]string{
	BrowserChrome: ".config/google-chrome",
	BrowserEdge:   ".config/microsoft-edge",
	BrowserBrave:  ".config/BraveSoftware/Brave-Browser",
}

// ImportFromBrowser copies browserID's profile directory into a scratch
// location and launches a headless Chromium against the copy, then reads
// back the cookies CDP reports for targetURL's origin. Launching against a
// copy (never the live profile) avoids the "profile already in use" lock
// error and avoids mutating the user's real browser state.
func ImportFromBrowser(ctx context.Context, browserID BrowserID, targetURL string) (models.Session, error) {
	if browserID == BrowserFirefox {
		return models.Session{}, models.NewGrabError(models.ErrCodeInvalidInput,
			"firefox cookie import is not supported: this importer launches a headless "+
				"Chromium against a copy of the source profile and reads cookies back over CDP, "+
				"which only understands a Chromium user-data-dir, not Firefox's cookies.sqlite format", nil)
	}

	srcDir, ok := profileDirs[browserID]
	if !ok {
		return models.Session{}, models.NewGrabError(models.ErrCodeInvalidInput,
			fmt.Sprintf("unsupported browser %q for cookie import", browserID), nil)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return models.Session{}, fmt.Errorf("session: resolve home dir: %w", err)
	}
	srcPath := filepath.Join(home, srcDir)
	if _, err := os.Stat(srcPath); err != nil {
		return models.Session{}, models.NewGrabError(models.ErrCodeInvalidInput,
			fmt.Sprintf("no local profile found for %q at %s", browserID, srcPath), err)
	}

	scratch, err := os.MkdirTemp("", "webgrabber-profile-*")
	if err != nil {
		return models.Session{}, fmt.Errorf("session: create scratch profile dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	if err := copyDir(srcPath, scratch); err != nil {
		return models.Session{}, fmt.Errorf("session: copy profile: %w", err)
	}

	l := launcher.New().
		Headless(true).
		UserDataDir(scratch).
		Set("no-first-run").
		Set("disable-sync")

	controlURL, err := l.Launch()
	if err != nil {
		return models.Session{}, fmt.Errorf("session: launch browser against profile copy: %w", err)
	}
	defer l.Cleanup()

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return models.Session{}, fmt.Errorf("session: connect to browser: %w", err)
	}
	defer browser.Close()

	cookies, err := proto.NetworkGetCookies{}.Call(browser)
	if err != nil {
		return models.Session{}, fmt.Errorf("session: read cookies: %w", err)
	}

	return models.Session{Cookies: filterCookiesForHost(cookies.Cookies, targetURL)}, nil
}

// loginInstructionPage is a self-contained data: URL HTML document shown in
// a second tab so the user has a visible cue to finish logging in and
// then close this tab themselves.
const loginInstructionPage = `data:text/html,<html><body style="font-family:sans-serif;padding:2em">` +
	`<h2>webgrabber: interactive login</h2>` +
	`<p>Log in using the other tab, then close this tab to continue.</p>` +
	`</body></html>`

// InteractiveLogin opens a visible browser at targetURL plus an
// instruction tab, and blocks until the user closes the instruction tab
// (observed as that tab's Target.targetDestroyed event). It returns the
// captured session and a handle the caller must Close once it is done
// with the browser; the handle crosses the call boundary because the
// browser's cookies may still be needed after this function returns
// (e.g. to seed the collector's render context directly rather than only
// via the returned Session).
func InteractiveLogin(ctx context.Context, targetURL string) (models.Session, *BrowserHandle, error) {
	l := launcher.New().Headless(false)

	controlURL, err := l.Launch()
	if err != nil {
		return models.Session{}, nil, fmt.Errorf("session: launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return models.Session{}, nil, fmt.Errorf("session: connect to browser: %w", err)
	}

	handle := &BrowserHandle{browser: browser, launch: l}

	if _, err := browser.Page(proto.TargetCreateTarget{URL: targetURL}); err != nil {
		return models.Session{}, handle, fmt.Errorf("session: open login page: %w", err)
	}

	instructionPage, err := browser.Page(proto.TargetCreateTarget{URL: loginInstructionPage})
	if err != nil {
		return models.Session{}, handle, fmt.Errorf("session: open instruction page: %w", err)
	}

	// TargetTargetDestroyed is a browser-wide event; wait until it names the
	// instruction tab specifically so closing another tab (including the
	// login tab) does not end the flow early.
	destroyed := &proto.TargetTargetDestroyed{}
	wait := browser.Context(ctx).WaitEvent(destroyed)
	for {
		wait()
		if destroyed.TargetID == instructionPage.TargetID {
			break
		}
		wait = browser.Context(ctx).WaitEvent(destroyed)
	}

	cookies, err := proto.NetworkGetCookies{}.Call(browser)
	if err != nil {
		return models.Session{}, handle, fmt.Errorf("session: read cookies after login: %w", err)
	}

	return models.Session{Cookies: filterCookiesForHost(cookies.Cookies, targetURL)}, handle, nil
}

// filterCookiesForHost keeps only the cookies whose domain matches or is
// a parent of targetURL's host (spec §4.2), the same rule the collector's
// attachCookies applies at fetch time. Filtering here too means an
// imported session never carries cookies for unrelated domains that
// happened to share the browser profile.
func filterCookiesForHost(cookies []*proto.NetworkCookie, targetURL string) []models.Cookie {
	u, err := url.Parse(targetURL)
	if err != nil {
		return nil
	}
	host := u.Hostname()

	out := make([]models.Cookie, 0, len(cookies))
	for _, c := range cookies {
		domain := strings.TrimPrefix(c.Domain, ".")
		if domain != host && !strings.HasSuffix(host, "."+domain) {
			continue
		}
		out = append(out, models.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  time.Unix(int64(c.Expires), 0),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		})
	}
	return out
}

// copyDir recursively copies src into dst, which must already exist.
func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0o700)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
