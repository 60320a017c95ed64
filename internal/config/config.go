// Savora - Recipe Recommendation and Model Monitoring Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/savora

// Package config loads layered service configuration with koanf v2:
// struct defaults, then an optional YAML file, then SAVORA_* environment
// variables, highest layer winning.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/savora/internal/backend"
	"github.com/tomtom215/savora/internal/monitor"
	"github.com/tomtom215/savora/internal/recommend"
	"github.com/tomtom215/savora/internal/retrain"
	"github.com/tomtom215/savora/internal/search"
)

// DefaultConfigPaths lists where config files are searched, first hit wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/savora/config.yaml",
	"/etc/savora/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "SAVORA_CONFIG_PATH"

// envPrefix namespaces environment overrides: SAVORA_SERVER_PORT, etc.
const envPrefix = "SAVORA_"

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// CatalogConfig holds the recipe catalog store settings.
type CatalogConfig struct {
	// Path is the BadgerDB directory.
	Path string `koanf:"path"`
	// SeedPath optionally points at a JSON recipe file imported at startup.
	SeedPath string `koanf:"seed_path"`
}

// MonitorConfig holds metric collection and health thresholds.
type MonitorConfig struct {
	LogPath       string             `koanf:"log_path"`
	MaxPoints     int                `koanf:"max_points"`
	WindowMinutes int                `koanf:"window_minutes"`
	Thresholds    monitor.Thresholds `koanf:"thresholds"`
}

// RegistryConfig holds model registry persistence settings.
type RegistryConfig struct {
	Path string `koanf:"path"`
}

// RetrainConfig mirrors the orchestrator config and adds scheduler wiring.
type RetrainConfig struct {
	Enabled              bool    `koanf:"enabled"`
	IntervalDays         int     `koanf:"interval_days"`
	MinSamples           int     `koanf:"min_samples"`
	TestSize             float64 `koanf:"test_size"`
	CVFolds              int     `koanf:"cv_folds"`
	PerformanceThreshold float64 `koanf:"performance_threshold"`
	AutoApprove          bool    `koanf:"auto_approve"`
	ImprovementMargin    float64 `koanf:"improvement_margin"`
	PromotionMetric      string  `koanf:"promotion_metric"`

	// Models lists the lineages the scheduler sweeps.
	Models []string `koanf:"models"`
	// SweepInterval is how often the scheduler checks for due retraining.
	SweepInterval time.Duration `koanf:"sweep_interval"`
	// ReportDir receives evaluation report JSON files.
	ReportDir string `koanf:"report_dir"`
}

// Orchestrator converts the section into the retraining orchestrator config.
func (c RetrainConfig) Orchestrator() retrain.Config {
	return retrain.Config{
		Enabled:              c.Enabled,
		IntervalDays:         c.IntervalDays,
		MinSamples:           c.MinSamples,
		TestSize:             c.TestSize,
		CVFolds:              c.CVFolds,
		PerformanceThreshold: c.PerformanceThreshold,
		AutoApprove:          c.AutoApprove,
		ImprovementMargin:    c.ImprovementMargin,
		PromotionMetric:      c.PromotionMetric,
		ReportDir:            c.ReportDir,
	}
}

// Config is the full service configuration.
type Config struct {
	Server      ServerConfig              `koanf:"server"`
	Logging     LoggingConfig             `koanf:"logging"`
	Catalog     CatalogConfig             `koanf:"catalog"`
	Search      search.Config             `koanf:"search"`
	Embedding   backend.EmbeddingConfig   `koanf:"embedding"`
	Translation backend.TranslationConfig `koanf:"translation"`
	Monitor     MonitorConfig             `koanf:"monitor"`
	Registry    RegistryConfig            `koanf:"registry"`
	Recommend   recommend.Config          `koanf:"recommend"`
	Retrain     RetrainConfig             `koanf:"retrain"`
}

// defaultConfig returns the built-in defaults, overridden by file and env.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Catalog: CatalogConfig{
			Path: "/data/catalog",
		},
		Search: search.Config{
			URL:        "http://localhost:6333",
			Collection: "recipes",
			Dims:       384,
		},
		Embedding: backend.EmbeddingConfig{
			URL:     "http://localhost:8501",
			Timeout: 10 * time.Second,
			Dims:    384,
		},
		Translation: backend.TranslationConfig{
			URL:     "http://localhost:8502",
			Timeout: 15 * time.Second,
			Enabled: true,
		},
		Monitor: MonitorConfig{
			LogPath:       "/data/metrics/metrics.jsonl",
			MaxPoints:     monitor.DefaultMaxPoints,
			WindowMinutes: 60,
			Thresholds:    monitor.DefaultThresholds(),
		},
		Registry: RegistryConfig{
			Path: "/data/registry/models.json",
		},
		Recommend: recommend.DefaultConfig(),
		Retrain: retrainDefaults(),
	}
}

// retrainDefaults flattens the orchestrator defaults into the config section.
func retrainDefaults() RetrainConfig {
	d := retrain.DefaultConfig()
	return RetrainConfig{
		Enabled:              d.Enabled,
		IntervalDays:         d.IntervalDays,
		MinSamples:           d.MinSamples,
		TestSize:             d.TestSize,
		CVFolds:              d.CVFolds,
		PerformanceThreshold: d.PerformanceThreshold,
		AutoApprove:          d.AutoApprove,
		ImprovementMargin:    d.ImprovementMargin,
		PromotionMetric:      d.PromotionMetric,
		Models:               []string{"hybrid_ranker"},
		SweepInterval:        time.Hour,
		ReportDir:            "/data/reports",
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// SAVORA_* environment variables, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first config file that exists, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// envTransformFunc maps SAVORA_SECTION_KEY_NAME to section.key_name.
// Every top-level section is a single word, so the first underscore after
// the prefix separates section from key. The monitor thresholds subsection
// is the one nested group reachable by env vars:
// SAVORA_MONITOR_THRESHOLDS_MAX_ERROR_RATE -> monitor.thresholds.max_error_rate.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))

	parts := strings.SplitN(key, "_", 2)
	if len(parts) != 2 {
		return key
	}
	section, rest := parts[0], parts[1]

	if section == "monitor" && strings.HasPrefix(rest, "thresholds_") {
		return "monitor.thresholds." + strings.TrimPrefix(rest, "thresholds_")
	}
	return section + "." + rest
}

// sliceConfigPaths lists config paths parsed as comma-separated slices when
// supplied through environment variables.
var sliceConfigPaths = []string{
	"retrain.models",
}

// processSliceFields converts comma-separated env strings to slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("set %s: %w", path, err)
			}
		}
	}
	return nil
}

// Validate checks the assembled configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Catalog.Path == "" {
		return fmt.Errorf("catalog.path is required")
	}
	if c.Registry.Path == "" {
		return fmt.Errorf("registry.path is required")
	}
	if c.Search.URL == "" || c.Search.Collection == "" {
		return fmt.Errorf("search.url and search.collection are required")
	}
	if c.Search.Dims == 0 {
		return fmt.Errorf("search.dims must be positive")
	}
	if c.Embedding.URL == "" {
		return fmt.Errorf("embedding.url is required")
	}
	if c.Translation.Enabled && c.Translation.URL == "" {
		return fmt.Errorf("translation.url is required when translation is enabled")
	}
	if c.Monitor.WindowMinutes <= 0 {
		return fmt.Errorf("monitor.window_minutes must be positive")
	}
	if err := c.Recommend.Validate(); err != nil {
		return err
	}
	if c.Retrain.Enabled {
		if len(c.Retrain.Models) == 0 {
			return fmt.Errorf("retrain.models must not be empty when retraining is enabled")
		}
		if c.Retrain.SweepInterval <= 0 {
			return fmt.Errorf("retrain.sweep_interval must be positive")
		}
	}
	return nil
}
