package config

import (
	"fmt"
	"os"
	"time"

	"github.com/vnvoice-dev/govoxsync/src/pkg/models"
	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*models.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg models.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults
	setDefaults(&cfg)

	// Validate configuration
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration
func setDefaults(cfg *models.Config) {
	// Polling defaults mirror the desktop app: binary checks every 6 hours,
	// model checks daily, first check delayed past startup.
	if cfg.Check.AppInterval == 0 {
		cfg.Check.AppInterval = 6 * time.Hour
	}
	if cfg.Check.ModelInterval == 0 {
		cfg.Check.ModelInterval = 24 * time.Hour
	}
	if cfg.Check.StartupDelay == 0 {
		cfg.Check.StartupDelay = 30 * time.Second
	}

	// Backup defaults
	if cfg.Backup.Dir == "" {
		cfg.Backup.Dir = ".backup"
	}
	if cfg.Backup.Retention == 0 {
		cfg.Backup.Retention = 1
	}

	// Network defaults
	if cfg.Network.Timeout == 0 {
		cfg.Network.Timeout = 30 * time.Second
	}
	if cfg.Network.MaxRetries == 0 {
		cfg.Network.MaxRetries = 3
	}

	// Path defaults
	if cfg.Paths.StateFile == "" {
		cfg.Paths.StateFile = ".cache/installed_state.json"
	}
	if cfg.Paths.StagingDir == "" {
		cfg.Paths.StagingDir = ".cache/staging"
	}

	// Model defaults
	if cfg.Models.Dir == "" {
		cfg.Models.Dir = "models"
	}

	// Token can come from the environment instead of the config file
	if cfg.Release.Token == "" {
		cfg.Release.Token = os.Getenv("GITHUB_TOKEN")
	}
}

// validate validates the configuration
func validate(cfg *models.Config) error {
	if cfg.Release.Repository == "" && cfg.Release.FeedURL == "" {
		return fmt.Errorf("release: repository or feed_url is required")
	}
	if cfg.Models.ManifestURL == "" {
		return fmt.Errorf("models: manifest_url is required")
	}
	if cfg.Backup.Retention < 1 {
		return fmt.Errorf("backup: retention must be at least 1")
	}
	if cfg.Network.MaxRetries < 0 {
		return fmt.Errorf("network: max_retries must not be negative")
	}
	return nil
}
