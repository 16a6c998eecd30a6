package collector

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/use-agent/webgrabber/models"
)

// fetchTimeout bounds a single HTTP fetch (spec §5: "per-fetch 30 s").
const fetchTimeout = 30 * time.Second

// desktopUserAgent is sent on the page render and reused on every
// worker's plain HTTP fetch for consistency with what the server saw on
// the initial navigation.
const desktopUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// newHTTPClient builds the shared client every worker fetches through.
// TLS verification is disabled to match the spec's "no certificate
// verification" fallback behavior: the collector exists to retrieve
// content from sites the operator does not control and cannot always
// fix a broken certificate chain for.
func newHTTPClient(proxyURL string) (*http.Client, error) {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, err
		}
		transport.Proxy = http.ProxyURL(u)
	}
	return &http.Client{Transport: transport}, nil
}

// contentTypeKinds maps a Content-Type substring to a Kind, checked in the
// order listed (spec: "first match of html/css/javascript/image/font").
var contentTypeKinds = []struct {
	prefix string
	kind   models.Kind
}{
	{"text/html", models.KindHTML},
	{"text/css", models.KindCSS},
	{"javascript", models.KindJS},
	{"application/javascript", models.KindJS},
	{"image/", models.KindImage},
	{"font/", models.KindFont},
}

// extensionKinds is the fallback table used when Content-Type does not
// match any entry above.
var extensionKinds = map[string]models.Kind{
	".js":    models.KindJS,
	".css":   models.KindCSS,
	".html":  models.KindHTML,
	".htm":   models.KindHTML,
	".png":   models.KindImage,
	".jpg":   models.KindImage,
	".jpeg":  models.KindImage,
	".gif":   models.KindImage,
	".svg":   models.KindImage,
	".woff":  models.KindFont,
	".woff2": models.KindFont,
	".ttf":   models.KindFont,
	".eot":   models.KindFont,
}

// deriveKind implements spec §4.3.3 step 3: Content-Type first, then
// path extension, else unknown.
func deriveKind(contentType, rawURL string) models.Kind {
	ct := strings.ToLower(contentType)
	for _, entry := range contentTypeKinds {
		if strings.Contains(ct, entry.prefix) {
			return entry.kind
		}
	}

	u, err := url.Parse(rawURL)
	if err == nil {
		ext := strings.ToLower(path.Ext(u.Path))
		if kind, ok := extensionKinds[ext]; ok {
			return kind
		}
	}
	return models.KindUnknown
}

// fetchResult is the outcome of one worker's GET, before save-path
// derivation and disk write.
type fetchResult struct {
	Body        []byte
	ContentType string
	StatusCode  int
}

// fetchURL performs the per-worker HTTP GET described in spec §4.3.3
// steps 2-3: connection-reused client, bounded timeout, cookies
// attached, body streamed fully into memory.
func fetchURL(ctx context.Context, client *http.Client, limiter *rate.Limiter, rawURL string, cookies []models.Cookie) (fetchResult, error) {
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return fetchResult{}, err
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fetchResult{}, err
	}
	req.Header.Set("User-Agent", desktopUserAgent)
	attachCookies(req, rawURL, cookies)

	resp, err := client.Do(req)
	if err != nil {
		return fetchResult{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fetchResult{}, err
	}

	return fetchResult{
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
	}, nil
}

// attachCookies sets a Cookie header from any session cookie whose
// domain matches or is a parent of rawURL's host.
func attachCookies(req *http.Request, rawURL string, cookies []models.Cookie) {
	if len(cookies) == 0 {
		return
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return
	}
	host := u.Hostname()

	for _, c := range cookies {
		domain := strings.TrimPrefix(c.Domain, ".")
		if domain == host || strings.HasSuffix(host, "."+domain) {
			req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
		}
	}
}
