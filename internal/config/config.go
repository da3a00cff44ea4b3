package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all engine configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Remote server
	ServerURL   string        `envconfig:"MIRROR_SERVER_URL" default:"http://localhost:4096"`
	EventURL    string        `envconfig:"MIRROR_EVENT_URL"` // ws:// URL; derived from ServerURL if empty
	ServerToken string        `envconfig:"MIRROR_SERVER_TOKEN"`
	HTTPTimeout time.Duration `envconfig:"MIRROR_HTTP_TIMEOUT" default:"30s"`

	// Event stream reconnect
	ReconnectInterval    time.Duration `envconfig:"MIRROR_RECONNECT_INTERVAL" default:"1s"`
	MaxReconnectInterval time.Duration `envconfig:"MIRROR_MAX_RECONNECT_INTERVAL" default:"30s"`

	// Retention
	SessionLimit int           `envconfig:"MIRROR_SESSION_LIMIT" default:"100"`
	RecentCap    int           `envconfig:"MIRROR_RECENT_CAP" default:"50"`
	RecentWindow time.Duration `envconfig:"MIRROR_RECENT_WINDOW" default:"4h"`

	// Pagination
	MessagePageSize int `envconfig:"MIRROR_MESSAGE_PAGE_SIZE" default:"400"`

	// Bounded caches
	FileCacheEntries int   `envconfig:"MIRROR_FILE_CACHE_ENTRIES" default:"40"`
	FileCacheBytes   int64 `envconfig:"MIRROR_FILE_CACHE_BYTES" default:"20971520"` // 20 MiB
	ViewStateEntries int   `envconfig:"MIRROR_VIEW_STATE_ENTRIES" default:"50"`
	SubCacheEntries  int   `envconfig:"MIRROR_SUB_CACHE_ENTRIES" default:"20"`

	// Bootstrap scheduler
	BootstrapConcurrency int `envconfig:"MIRROR_BOOTSTRAP_CONCURRENCY" default:"2"`

	// Persistence
	DBPath            string        `envconfig:"MIRROR_DB_PATH" default:"mirror.db"`
	PersistMaxAge     time.Duration `envconfig:"MIRROR_PERSIST_MAX_AGE" default:"720h"`
	PersistSweepEvery time.Duration `envconfig:"MIRROR_PERSIST_SWEEP_INTERVAL" default:"1h"`

	// Status API and metrics listener
	StatusListenAddr  string `envconfig:"MIRROR_STATUS_ADDR" default:":8091"`
	MetricsListenAddr string `envconfig:"MIRROR_METRICS_ADDR" default:":9091"`

	// WorkspaceManifest is an optional YAML file listing workspace
	// directories to track at startup.
	WorkspaceManifest string `envconfig:"MIRROR_WORKSPACE_MANIFEST"`
}

// Manifest is the YAML workspace manifest format.
type Manifest struct {
	Workspaces []string `yaml:"workspaces"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}

// LoadWithPrefix reads configuration with a prefix.
func LoadWithPrefix(prefix string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return nil, fmt.Errorf("loading config with prefix %s: %w", prefix, err)
	}
	return &cfg, nil
}

// LoadManifest parses the workspace manifest, returning the absolute
// directories to track. A missing manifest path returns an empty list.
func (c *Config) LoadManifest() ([]string, error) {
	if c.WorkspaceManifest == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(c.WorkspaceManifest)
	if err != nil {
		return nil, fmt.Errorf("reading workspace manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parsing workspace manifest: %w", err)
	}
	dirs := make([]string, 0, len(m.Workspaces))
	for _, d := range m.Workspaces {
		abs, err := filepath.Abs(d)
		if err != nil {
			return nil, fmt.Errorf("resolving workspace %q: %w", d, err)
		}
		dirs = append(dirs, abs)
	}
	return dirs, nil
}
