// Package platform maps a URL's host to a PlatformInfo by longest
// host-suffix match against a static table, falling back to a bounded
// HEAD probe of the Server header and finally to family "unknown".
package platform

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/use-agent/webgrabber/models"
)

// probeTimeout bounds the optional HEAD probe per spec.md §4.1: "must
// never block the pipeline for more than a short bounded time (≤ 5s)".
const probeTimeout = 5 * time.Second

// entry is one row of the static classification table.
type entry struct {
	suffix string
	info   models.PlatformInfo
}

// table lists known hosting platforms by domain suffix. Longest suffix
// wins, so more specific entries do not need to precede general ones.
var table = []entry{
	{"github.com", models.PlatformInfo{ID: "github", Family: models.FamilyGitHosting, Name: "GitHub", ExternalTool: "git"}},
	{"gitlab.com", models.PlatformInfo{ID: "gitlab", Family: models.FamilyGitHosting, Name: "GitLab", ExternalTool: "git"}},
	{"bitbucket.org", models.PlatformInfo{ID: "bitbucket", Family: models.FamilyGitHosting, Name: "Bitbucket", ExternalTool: "git"}},
	{"codeberg.org", models.PlatformInfo{ID: "codeberg", Family: models.FamilyGitHosting, Name: "Codeberg", ExternalTool: "git"}},
	{"sr.ht", models.PlatformInfo{ID: "sourcehut", Family: models.FamilyGitHosting, Name: "sourcehut", ExternalTool: "git"}},

	{"vercel.app", models.PlatformInfo{ID: "vercel", Family: models.FamilyPaaS, Name: "Vercel"}},
	{"netlify.app", models.PlatformInfo{ID: "netlify", Family: models.FamilyPaaS, Name: "Netlify"}},
	{"herokuapp.com", models.PlatformInfo{ID: "heroku", Family: models.FamilyPaaS, Name: "Heroku", ExternalTool: "heroku"}},
	{"onrender.com", models.PlatformInfo{ID: "render", Family: models.FamilyPaaS, Name: "Render"}},
	{"fly.dev", models.PlatformInfo{ID: "fly", Family: models.FamilyPaaS, Name: "Fly.io"}},

	{"ghcr.io", models.PlatformInfo{ID: "ghcr", Family: models.FamilyContainerRegistry, Name: "GitHub Container Registry", ExternalTool: "docker"}},
	{"docker.io", models.PlatformInfo{ID: "dockerhub", Family: models.FamilyContainerRegistry, Name: "Docker Hub", ExternalTool: "docker"}},
	{"registry.hub.docker.com", models.PlatformInfo{ID: "dockerhub", Family: models.FamilyContainerRegistry, Name: "Docker Hub", ExternalTool: "docker"}},

	{"git.sr.ht", models.PlatformInfo{ID: "sourcehut-ssh", Family: models.FamilySSHHosting, Name: "sourcehut (SSH)", ExternalTool: "ssh"}},
}

func init() {
	// Longest suffix first so the first match in Classify is always the
	// most specific one.
	sort.Slice(table, func(i, j int) bool {
		return len(table[i].suffix) > len(table[j].suffix)
	})
}

var unknown = models.PlatformInfo{ID: "unknown", Family: models.FamilyUnknown, Name: "unknown"}

// Classify returns the PlatformInfo for rawURL. It never blocks for more
// than probeTimeout and never returns an error: classification failure is
// represented as family "unknown", which callers route to the website
// capture strategy.
func Classify(ctx context.Context, rawURL string) models.PlatformInfo {
	u, err := url.Parse(rawURL)
	if err != nil {
		return unknown
	}
	host := strings.ToLower(u.Hostname())

	if info, ok := matchSuffix(host); ok {
		return info
	}

	if info, ok := probeServerHeader(ctx, rawURL); ok {
		return info
	}

	return unknown
}

func matchSuffix(host string) (models.PlatformInfo, bool) {
	for _, e := range table {
		if host == e.suffix || strings.HasSuffix(host, "."+e.suffix) {
			return e.info, true
		}
	}
	return models.PlatformInfo{}, false
}

// serverHeaderFamilies maps substrings of a Server response header to a
// family, used only when no suffix in the static table matches.
var serverHeaderFamilies = map[string]models.PlatformInfo{
	"vercel":  {ID: "vercel", Family: models.FamilyPaaS, Name: "Vercel"},
	"netlify": {ID: "netlify", Family: models.FamilyPaaS, Name: "Netlify"},
	"heroku":  {ID: "heroku", Family: models.FamilyPaaS, Name: "Heroku", ExternalTool: "heroku"},
}

func probeServerHeader(ctx context.Context, rawURL string) (models.PlatformInfo, bool) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return models.PlatformInfo{}, false
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return models.PlatformInfo{}, false
	}
	defer resp.Body.Close()

	server := strings.ToLower(resp.Header.Get("Server"))
	for substr, info := range serverHeaderFamilies {
		if strings.Contains(server, substr) {
			return info, true
		}
	}
	return models.PlatformInfo{}, false
}
