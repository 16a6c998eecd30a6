package strategy

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/use-agent/webgrabber/models"
)

// SSHStrategy retrieves a remote path over SCP using a private key
// cached per-host (spec §4.4).
type SSHStrategy struct {
	p Params
}

// NewSSHStrategy builds an SSHStrategy.
func NewSSHStrategy(p Params) *SSHStrategy {
	return &SSHStrategy{p: p}
}

// Download scp -r's the configured remote path into output_root.
func (s *SSHStrategy) Download(ctx context.Context) (models.FileTree, error) {
	if err := checkCancelled(s.p); err != nil {
		return nil, err
	}
	if err := requireTool("scp", "install an OpenSSH client: https://www.openssh.com/"); err != nil {
		return nil, err
	}

	cfg := s.p.Config.SSHStrategy
	if cfg.Host == "" {
		return nil, models.NewGrabError(models.ErrCodeInvalidInput,
			"ssh_strategy.host is not set in config.json", nil)
	}

	keyPath, err := s.resolvePrivateKeyPath()
	if err != nil {
		return nil, err
	}

	port := cfg.Port
	if port == 0 {
		port = 22
	}

	dest := filepath.Join(s.p.OutputRoot, cfg.Host)
	remote := fmt.Sprintf("%s@%s:%s", cfg.User, cfg.Host, cfg.RemotePath)

	if s.p.Log != nil {
		s.p.Log("ssh: copying %s to %s", remote, dest)
	}

	args := []string{
		"-P", fmt.Sprint(port),
		"-i", keyPath,
		"-o", "StrictHostKeyChecking=accept-new",
		"-r", remote, dest,
	}
	if _, err := runSubprocess(ctx, "scp", args...); err != nil {
		return nil, err
	}

	if err := checkCancelled(s.p); err != nil {
		return nil, err
	}

	return treeFrom(dest, cfg.Exclude)
}

// resolvePrivateKeyPath returns the configured private key path, or
// prompts once for it and caches the answer per-host via C2 (spec
// §4.4: "requires a local private-key path fetched via prompt(...) and
// cached per-host in C2").
func (s *SSHStrategy) resolvePrivateKeyPath() (string, error) {
	cfg := s.p.Config.SSHStrategy
	if cfg.PrivateKeyPath != "" {
		return cfg.PrivateKeyPath, nil
	}

	if s.p.Credentials != nil {
		if rec, ok, err := s.p.Credentials.Get("ssh_" + cfg.Host); err == nil && ok {
			return rec.Secret, nil
		}
	}

	if s.p.Prompt == nil {
		return "", models.NewGrabError(models.ErrCodeAuthRequired,
			"no ssh_strategy.private_key_path configured and no prompt available", nil)
	}

	keyPath, err := s.p.Prompt("ssh_key", fmt.Sprintf("private key path for %s", cfg.Host))
	if err != nil {
		return "", models.NewGrabError(models.ErrCodeAuthRequired, "ssh key prompt failed", err)
	}

	if s.p.Credentials != nil {
		_ = s.p.Credentials.Put("ssh_"+cfg.Host, models.CredentialRecord{
			PlatformID: "ssh_" + cfg.Host,
			Secret:     keyPath,
		})
	}
	return keyPath, nil
}

// treeFrom walks dir and returns every file not matching an exclude
// pattern (matched against the base name, shell-glob style via
// filepath.Match).
func treeFrom(dir string, exclude []string) (models.FileTree, error) {
	tree := make(models.FileTree)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		for _, pattern := range exclude {
			if ok, _ := filepath.Match(pattern, d.Name()); ok {
				return nil
			}
		}
		rel, relErr := filepath.Rel(filepath.Dir(dir), path)
		if relErr != nil {
			return relErr
		}
		tree[filepath.ToSlash(rel)] = "ssh"
		return nil
	})
	return tree, err
}
