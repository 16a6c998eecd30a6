package strategy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/use-agent/webgrabber/models"
)

// paasAPITimeout bounds the REST calls made to a PaaS provider's API.
const paasAPITimeout = 30 * time.Second

// PaasStrategy retrieves a deployment's source through a provider's REST
// API or, for providers that expose no such API, by delegating to the
// linked Git repository (spec §4.4).
type PaasStrategy struct {
	p Params
}

// NewPaasStrategy builds a PaasStrategy.
func NewPaasStrategy(p Params) *PaasStrategy {
	return &PaasStrategy{p: p}
}

// Download dispatches on the classified platform ID.
func (s *PaasStrategy) Download(ctx context.Context) (models.FileTree, error) {
	if err := checkCancelled(s.p); err != nil {
		return nil, err
	}

	switch s.p.Platform.ID {
	case "vercel":
		return s.downloadViaAPI(ctx, "https://api.vercel.com/v13/deployments/"+deploymentRef(s.p.URL)+"/files")
	case "netlify":
		return s.downloadViaAPI(ctx, "https://api.netlify.com/api/v1/sites/"+deploymentRef(s.p.URL)+"/files")
	case "heroku":
		return s.downloadViaHerokuGit(ctx)
	case "render":
		return s.downloadViaLinkedGitRepo(ctx)
	default:
		return nil, models.NewGrabError(models.ErrCodeStrategyFailed,
			fmt.Sprintf("no PaaS handler registered for platform %q", s.p.Platform.ID), nil)
	}
}

// deploymentRef returns the last slash-separated element of rawURL, used
// as the key into a provider's deployment-files API; for a bare
// deployment URL that is the whole host (e.g. "my-app.vercel.app" from
// https://my-app.vercel.app).
func deploymentRef(rawURL string) string {
	name := filepath.Base(rawURL)
	return name
}

// bearerToken looks up a cached API token for the current platform,
// prompting and caching it if none is cached yet.
func (s *PaasStrategy) bearerToken() (string, error) {
	if s.p.Credentials != nil {
		if rec, ok, err := s.p.Credentials.Get(s.p.Platform.ID); err == nil && ok {
			return rec.Secret, nil
		}
	}
	if s.p.Prompt == nil {
		return "", models.NewGrabError(models.ErrCodeAuthRequired,
			fmt.Sprintf("no cached API token for %s and no prompt available", s.p.Platform.Name), nil)
	}
	token, err := s.p.Prompt("api_token", fmt.Sprintf("%s API token", s.p.Platform.Name))
	if err != nil {
		return "", models.NewGrabError(models.ErrCodeAuthRequired, "api token prompt failed", err)
	}
	if s.p.Credentials != nil {
		_ = s.p.Credentials.Put(s.p.Platform.ID, models.CredentialRecord{
			PlatformID: s.p.Platform.ID,
			Secret:     token,
		})
	}
	return token, nil
}

// deployFile is one entry in a Vercel/Netlify deployment-files listing.
type deployFile struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"`
}

// downloadViaAPI lists a deployment's files then fetches each one's
// content, writing it under output_root. Vercel and Netlify both expose
// a files-listing endpoint of this approximate shape; either's quirks
// beyond what this lister assumes are out of scope (spec's PaaS section
// targets the common "list then fetch" pattern, not every provider
// special case).
func (s *PaasStrategy) downloadViaAPI(ctx context.Context, listURL string) (models.FileTree, error) {
	token, err := s.bearerToken()
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: paasAPITimeout}

	files, err := s.listFiles(ctx, client, listURL, token)
	if err != nil {
		return nil, err
	}

	tree := make(models.FileTree)
	for _, f := range files {
		if f.Type != "file" {
			continue
		}
		if err := checkCancelled(s.p); err != nil {
			return tree, err
		}
		body, err := s.fetchFile(ctx, client, listURL, f.Path, token)
		if err != nil {
			if s.p.Log != nil {
				s.p.Log("paas: failed to fetch %s: %v", f.Path, err)
			}
			continue
		}
		dest := filepath.Join(s.p.OutputRoot, f.Path)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return tree, err
		}
		if err := os.WriteFile(dest, body, 0o644); err != nil {
			return tree, err
		}
		tree[f.Path] = "paas"
	}
	return tree, nil
}

func (s *PaasStrategy) listFiles(ctx context.Context, client *http.Client, listURL, token string) ([]deployFile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return nil, models.NewGrabError(models.ErrCodeFetchFailed, "listing deployment files", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, models.NewGrabError(models.ErrCodeFetchFailed,
			fmt.Sprintf("listing deployment files: status %d", resp.StatusCode), nil)
	}

	var files []deployFile
	if err := json.NewDecoder(resp.Body).Decode(&files); err != nil {
		return nil, models.NewGrabError(models.ErrCodeFetchFailed, "decoding file listing", err)
	}
	return files, nil
}

func (s *PaasStrategy) fetchFile(ctx context.Context, client *http.Client, listURL, path, token string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL+"/"+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// downloadViaHerokuGit runs `heroku git:clone` under HEROKU_API_KEY then
// reuses the git strategy's tree walk.
func (s *PaasStrategy) downloadViaHerokuGit(ctx context.Context) (models.FileTree, error) {
	if err := requireTool("heroku", "install the Heroku CLI: https://devcenter.heroku.com/articles/heroku-cli"); err != nil {
		return nil, err
	}

	appName := s.p.Config.PaasStrategy.Heroku.AppName
	if appName == "" {
		appName = deploymentRef(s.p.URL)
	}

	token, err := s.bearerToken()
	if err != nil {
		return nil, err
	}

	dest := filepath.Join(s.p.OutputRoot, appName)

	if s.p.Log != nil {
		s.p.Log("heroku: cloning app %s into %s", appName, dest)
	}

	if err := runHerokuClone(ctx, appName, dest, token); err != nil {
		return nil, err
	}

	if err := checkCancelled(s.p); err != nil {
		return nil, err
	}

	return treeExcludingVCS(dest)
}

// runHerokuClone runs `heroku git:clone -a <app> <dest>` with
// HEROKU_API_KEY set for this process only, since the Heroku CLI reads
// credentials from that environment variable rather than a CLI flag.
func runHerokuClone(ctx context.Context, app, dest, token string) error {
	ctx, cancel := context.WithTimeout(ctx, subprocessTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "heroku", "git:clone", "-a", app, dest)
	cmd.Env = append(os.Environ(), "HEROKU_API_KEY="+token)
	var errBuf bytes.Buffer
	cmd.Stderr = &errBuf

	if err := cmd.Run(); err != nil {
		return models.NewGrabError(models.ErrCodeStrategyFailed,
			fmt.Sprintf("heroku git:clone failed: %s", errBuf.String()), err)
	}
	return nil
}

// downloadViaLinkedGitRepo is the Render fallback: Render exposes no
// source-download API, so the linked Git repository is cloned instead
// via GitStrategy (spec §4.4's "Render returns the linked Git repo URL
// and delegates").
func (s *PaasStrategy) downloadViaLinkedGitRepo(ctx context.Context) (models.FileTree, error) {
	repoURL, err := s.renderLinkedRepoURL(ctx)
	if err != nil {
		return nil, err
	}

	delegate := s.p
	delegate.URL = repoURL
	delegate.Platform = models.PlatformInfo{ID: "git-delegate", Family: models.FamilyGitHosting, Name: "git", ExternalTool: "git"}

	return NewGitStrategy(delegate).Download(ctx)
}

func (s *PaasStrategy) renderLinkedRepoURL(ctx context.Context) (string, error) {
	token, err := s.bearerToken()
	if err != nil {
		return "", err
	}

	client := &http.Client{Timeout: paasAPITimeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"https://api.render.com/v1/services/"+deploymentRef(s.p.URL), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return "", models.NewGrabError(models.ErrCodeFetchFailed, "querying Render service", err)
	}
	defer resp.Body.Close()

	var service struct {
		Repo string `json:"repo"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&service); err != nil {
		return "", models.NewGrabError(models.ErrCodeFetchFailed, "decoding Render service", err)
	}
	if service.Repo == "" {
		return "", models.NewGrabError(models.ErrCodeStrategyFailed, "Render service has no linked repository", nil)
	}
	return service.Repo, nil
}
