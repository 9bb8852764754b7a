// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads swmd's static settings (swmd.yaml) and owns the
// durable status-file path. It follows the predecessor's settings.go
// pattern: YAML-first with environment overrides and a Default() that
// fills every field a minimal or missing file would otherwise leave zero.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// TrackerConfig configures the Launchpad-shaped tracker/archive API client.
type TrackerConfig struct {
	BaseURL       string  `yaml:"base_url"`
	ArchiveURL    string  `yaml:"archive_url"`
	RateLimit     float64 `yaml:"rate_limit,omitempty"`
	ConsumerKey   string  `yaml:"consumer_key,omitempty"`
	CredentialDir string  `yaml:"credential_dir,omitempty"`
}

// SnapStoreConfig configures the Snap Store channel-map client.
type SnapStoreConfig struct {
	BaseURL string `yaml:"base_url,omitempty"`
}

// MessagingConfig configures the C7 test-request publisher.
type MessagingConfig struct {
	WebhookURL    string `yaml:"webhook_url,omitempty"`
	SigningKeyEnv string `yaml:"signing_key_env,omitempty"`
}

// CatalogConfig locates the kernel-series.yaml source-of-truth catalog.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// StatusConfig locates the durable status.yaml crank ledger and its lock.
type StatusConfig struct {
	Path     string `yaml:"path"`
	LockPath string `yaml:"lock_path"`
}

// S3MirrorConfig holds settings for mirroring status.yaml to S3. It is
// parsed from swmd.yaml, but nothing reads it: no flag enables it and no
// upload is performed.
type S3MirrorConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bucket  string `yaml:"bucket,omitempty"`
	Key     string `yaml:"key,omitempty"`
	RoleARN string `yaml:"role_arn,omitempty"`
	Region  string `yaml:"region,omitempty"`
}

// MetricsConfig configures the Prometheus exporter.
type MetricsConfig struct {
	Listen string `yaml:"listen,omitempty"`
}

// ArchiveCacheConfig configures the local sqlite cache C3 consults before
// re-querying the archive for a source's publication history. Empty Path
// disables the cache; every PublishedSources call goes straight through.
type ArchiveCacheConfig struct {
	Path string        `yaml:"path,omitempty"`
	TTL  time.Duration `yaml:"ttl,omitempty"`
}

// TracingConfig configures the OpenTelemetry tracer provider a crank
// pass spans through.
type TracingConfig struct {
	Exporter     string `yaml:"exporter,omitempty"` // none, stdout, otlp-grpc, otlp-http
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`
}

// Config is the full swmd.yaml shape.
type Config struct {
	Version int `yaml:"version,omitempty"`

	Tracker   TrackerConfig   `yaml:"tracker"`
	SnapStore SnapStoreConfig `yaml:"snap_store,omitempty"`
	Messaging MessagingConfig `yaml:"messaging,omitempty"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Status    StatusConfig    `yaml:"status"`
	S3Mirror  S3MirrorConfig  `yaml:"s3_mirror,omitempty"`
	Metrics   MetricsConfig   `yaml:"metrics,omitempty"`
	Tracing   TracingConfig   `yaml:"tracing,omitempty"`
	ArchiveCache ArchiveCacheConfig `yaml:"archive_cache,omitempty"`

	// ScanInterval is how long a full unattended scan sleeps between
	// passes when invoked without explicit tracker ids (§4.5).
	ScanInterval time.Duration `yaml:"scan_interval,omitempty"`
}

// Default returns a Config with every field a bare-minimum deployment
// needs filled in.
func Default() *Config {
	return &Config{
		Version: 1,
		Tracker: TrackerConfig{
			BaseURL:     "https://api.launchpad.net/devel",
			ArchiveURL:  "https://api.launchpad.net/devel/ubuntu/+archive/primary",
			RateLimit:   5,
			CredentialDir: "",
		},
		SnapStore: SnapStoreConfig{
			BaseURL: "https://api.snapcraft.io/v2",
		},
		Catalog: CatalogConfig{
			Path: "kernel-series.yaml",
		},
		Status: StatusConfig{
			Path:     "status.yaml",
			LockPath: "swm.lock",
		},
		Metrics: MetricsConfig{
			Listen: ":9120",
		},
		Tracing: TracingConfig{
			Exporter: "none",
		},
		ArchiveCache: ArchiveCacheConfig{
			TTL: 10 * time.Minute,
		},
		ScanInterval: 5 * time.Minute,
	}
}

// ConfigDir returns the XDG config directory for swm: ~/.config/swm,
// honoring XDG_CONFIG_HOME, mirroring the predecessor's ConfigDir.
func ConfigDir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if runtime.GOOS == "darwin" {
			base = filepath.Join(home, ".config")
		} else {
			base = filepath.Join(home, ".config")
		}
	}
	dir := filepath.Join(base, "swm")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

// DefaultConfigPath returns ~/.config/swm/swmd.yaml.
func DefaultConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "swmd.yaml"), nil
}

// Load reads swmd.yaml from configPath (or the default location, if
// configPath is empty and that file exists), applying defaults for any
// zero-valued field and environment overrides last.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath == "" {
		if def, err := DefaultConfigPath(); err == nil {
			if _, statErr := os.Stat(def); statErr == nil {
				configPath = def
			}
		}
	}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", configPath, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults fills any field Load left at its zero value.
func (c *Config) applyDefaults() {
	d := Default()
	if c.Tracker.BaseURL == "" {
		c.Tracker.BaseURL = d.Tracker.BaseURL
	}
	if c.Tracker.ArchiveURL == "" {
		c.Tracker.ArchiveURL = d.Tracker.ArchiveURL
	}
	if c.Tracker.RateLimit == 0 {
		c.Tracker.RateLimit = d.Tracker.RateLimit
	}
	if c.SnapStore.BaseURL == "" {
		c.SnapStore.BaseURL = d.SnapStore.BaseURL
	}
	if c.Catalog.Path == "" {
		c.Catalog.Path = d.Catalog.Path
	}
	if c.Status.Path == "" {
		c.Status.Path = d.Status.Path
	}
	if c.Status.LockPath == "" {
		c.Status.LockPath = d.Status.LockPath
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = d.Metrics.Listen
	}
	if c.ScanInterval == 0 {
		c.ScanInterval = d.ScanInterval
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = d.Tracing.Exporter
	}
	if c.ArchiveCache.Path != "" && c.ArchiveCache.TTL == 0 {
		c.ArchiveCache.TTL = d.ArchiveCache.TTL
	}
}

// applyEnv overrides select fields from the environment without requiring
// a config file edit: the tracker base URL, the credential directory, the
// messaging webhook URL, and the status and catalog paths.
func (c *Config) applyEnv() {
	if v := os.Getenv("SWM_TRACKER_BASE_URL"); v != "" {
		c.Tracker.BaseURL = v
	}
	if v := os.Getenv("SWM_TRACKER_CREDENTIAL_DIR"); v != "" {
		c.Tracker.CredentialDir = v
	}
	if v := os.Getenv("SWM_MESSAGING_WEBHOOK_URL"); v != "" {
		c.Messaging.WebhookURL = v
	}
	if v := os.Getenv("SWM_STATUS_PATH"); v != "" {
		c.Status.Path = v
	}
	if v := os.Getenv("SWM_CATALOG_PATH"); v != "" {
		c.Catalog.Path = v
	}
}
