package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ResolveMode names whether an agent's hostname is resolved once, at
// configuration load time, or re-resolved on every dispatch attempt. It is
// loaded and defaulted here, but pkg/agent does not read it: the dialer
// resolves a hostname on every attempt whatever the mode.
type ResolveMode string

const (
	ResolveOnce         ResolveMode = "once"
	ResolveEachAttempt  ResolveMode = "each_attempt"
	defaultResolveMode              = ResolveOnce
)

// Default process-wide knobs, matching the reference daemon's defaults
// (g_iPingInterval, g_uHAPeriodKarma, g_iPersistentPoolSize).
const (
	DefaultPingIntervalMS      = 1000
	DefaultKarmaPeriodSeconds  = 60
	DefaultPersistentPoolSize  = 0
	DefaultMaxPacketSize       = 8 * 1024 * 1024
	DefaultMetricsListenAddr   = ":9312"
	DefaultPersistSnapshotPath = "dashboards.db"
	DefaultPersistInterval     = 30 * time.Second
)

// PersistConfig controls the optional bbolt-backed dashboard snapshot store
// (SPEC_FULL.md §2.2, §3.1). Disabled by default: the reference dashboard is
// purely in-memory, and this is an additive capability.
type PersistConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Path     string        `yaml:"path"`
	Interval time.Duration `yaml:"interval"`
}

// MetricsConfig controls the Prometheus exporter wired in pkg/metrics.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// Config holds every process-wide dispatcher knob named in SPEC_FULL.md §6.
type Config struct {
	PingIntervalMS         int           `yaml:"ping_interval_ms"`
	KarmaPeriodSeconds     int           `yaml:"karma_period_seconds"`
	PersistentPoolCapacity int           `yaml:"persistent_pool_capacity"`
	MaxPacketSize          int           `yaml:"max_packet_size"`
	ResolveMode            ResolveMode   `yaml:"resolve_mode"`
	Persist                PersistConfig `yaml:"persist"`
	Metrics                MetricsConfig `yaml:"metrics"`
}

// KarmaPeriod is the duration form of KarmaPeriodSeconds, used directly by
// pkg/dashboard's ring-bucket indexing.
func (c *Config) KarmaPeriod() time.Duration {
	return time.Duration(c.KarmaPeriodSeconds) * time.Second
}

// Default returns a Config with the reference daemon's defaults applied.
func Default() Config {
	return Config{
		PingIntervalMS:         DefaultPingIntervalMS,
		KarmaPeriodSeconds:     DefaultKarmaPeriodSeconds,
		PersistentPoolCapacity: DefaultPersistentPoolSize,
		MaxPacketSize:          DefaultMaxPacketSize,
		ResolveMode:            defaultResolveMode,
		Persist: PersistConfig{
			Enabled:  false,
			Path:     DefaultPersistSnapshotPath,
			Interval: DefaultPersistInterval,
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: DefaultMetricsListenAddr,
		},
	}
}

// applyDefaults fills any zero-valued field left unset by the YAML document.
func (c *Config) applyDefaults() {
	d := Default()
	if c.PingIntervalMS <= 0 {
		c.PingIntervalMS = d.PingIntervalMS
	}
	if c.KarmaPeriodSeconds <= 0 {
		c.KarmaPeriodSeconds = d.KarmaPeriodSeconds
	}
	if c.MaxPacketSize <= 0 {
		c.MaxPacketSize = d.MaxPacketSize
	}
	if c.ResolveMode == "" {
		c.ResolveMode = d.ResolveMode
	}
	if c.Persist.Path == "" {
		c.Persist.Path = d.Persist.Path
	}
	if c.Persist.Interval <= 0 {
		c.Persist.Interval = d.Persist.Interval
	}
	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = d.Metrics.ListenAddr
	}
}

// Load reads a Config from a YAML file at path, applying defaults for any
// knob the document leaves unset.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}
