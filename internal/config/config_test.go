package config

import (
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefaultWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GitStrategy.Branch != "main" {
		t.Errorf("GitStrategy.Branch = %q, want %q", cfg.GitStrategy.Branch, "main")
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload after creation: %v", err)
	}
	if reloaded.GitStrategy.Branch != cfg.GitStrategy.Branch {
		t.Errorf("config file was not persisted correctly")
	}
}

func TestLoadReadsExistingOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	seed := Default()
	seed.General.Proxy = "http://proxy.internal:8080"
	seed.PaasStrategy.Heroku.AppName = "my-app"
	if err := Save(path, seed); err != nil {
		t.Fatalf("Save: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.General.Proxy != "http://proxy.internal:8080" {
		t.Errorf("General.Proxy = %q", cfg.General.Proxy)
	}
	if cfg.PaasStrategy.Heroku.AppName != "my-app" {
		t.Errorf("Heroku.AppName = %q", cfg.PaasStrategy.Heroku.AppName)
	}
}
