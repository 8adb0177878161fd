package models

import "time"

// Config is the main configuration for govoxsync.
type Config struct {
	Release ReleaseConfig `yaml:"release"`
	Models  ModelsConfig  `yaml:"models"`
	Check   CheckConfig   `yaml:"check"`
	Backup  BackupConfig  `yaml:"backup"`
	Network NetworkConfig `yaml:"network"`
	Paths   PathsConfig   `yaml:"paths"`
}

// ReleaseConfig describes the remote application release feed.
type ReleaseConfig struct {
	// Repository in owner/name form; releases are read from the standard
	// GitHub releases API unless FeedURL overrides it.
	Repository string `yaml:"repository"`
	FeedURL    string `yaml:"feed_url,omitempty"`
	Token      string `yaml:"token,omitempty"`
}

// ModelsConfig describes the remote model manifest source and the live
// model directory the synthesis engine reads from.
type ModelsConfig struct {
	ManifestURL string `yaml:"manifest_url"`
	Dir         string `yaml:"dir"`
	// KeyPath points at the symmetric key used to decrypt entries marked
	// encrypted. Key provisioning itself is handled elsewhere.
	KeyPath string `yaml:"key_path,omitempty"`
}

// CheckConfig controls the background polling cadence.
type CheckConfig struct {
	AppInterval   time.Duration `yaml:"app_interval"`
	ModelInterval time.Duration `yaml:"model_interval"`
	StartupDelay  time.Duration `yaml:"startup_delay"`
}

// BackupConfig controls the backup vault.
type BackupConfig struct {
	Dir       string `yaml:"dir"`
	Retention int    `yaml:"retention"`
}

// NetworkConfig bounds remote calls.
type NetworkConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// PathsConfig locates the engine's local working files.
type PathsConfig struct {
	StateFile  string `yaml:"state_file"`
	StagingDir string `yaml:"staging_dir"`
	BinaryPath string `yaml:"binary_path"`
}
