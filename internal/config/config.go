// Package config loads and persists webgrabber's JSON configuration file,
// following the same load-with-defaults-and-create-if-missing posture the
// teacher's environment-variable config loader uses, adapted to a file on
// disk per the on-disk config contract.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// GitStrategyConfig holds settings for git_strategy.
type GitStrategyConfig struct {
	Branch string `json:"branch"`
}

// SSHStrategyConfig holds settings for ssh_strategy.
type SSHStrategyConfig struct {
	User           string   `json:"user"`
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	RemotePath     string   `json:"remote_path"`
	PrivateKeyPath string   `json:"private_key_path"`
	Exclude        []string `json:"exclude"`
}

// HerokuConfig holds settings for paas_strategy.heroku.
type HerokuConfig struct {
	AppName string `json:"app_name"`
}

// PaasStrategyConfig holds settings for paas_strategy.
type PaasStrategyConfig struct {
	Heroku HerokuConfig `json:"heroku"`
}

// GeneralConfig holds settings applying across every strategy.
type GeneralConfig struct {
	Proxy string `json:"proxy"`
}

// Config is the full recognized shape of config.json (spec §6).
type Config struct {
	GitStrategy  GitStrategyConfig  `json:"git_strategy"`
	SSHStrategy  SSHStrategyConfig  `json:"ssh_strategy"`
	PaasStrategy PaasStrategyConfig `json:"paas_strategy"`
	General      GeneralConfig      `json:"general"`
}

// Default returns the configuration used to populate a missing
// config.json.
func Default() *Config {
	return &Config{
		GitStrategy: GitStrategyConfig{Branch: "main"},
		SSHStrategy: SSHStrategyConfig{Port: 22},
	}
}

// Load reads path, creating it with Default() if it does not exist.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := Default()
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, mkErr
		}
		if writeErr := Save(path, cfg); writeErr != nil {
			return nil, writeErr
		}
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path as indented JSON.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
