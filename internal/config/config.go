// Package config loads the recording tool's YAML configuration with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kontex-neuro/thorvision-go/pkg/recorder"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Recording RecordingConfig `yaml:"recording"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	// URL is the ThorVision server base URL, e.g. "http://192.168.177.100:8000".
	URL string `yaml:"url"`
	// MetricsAddr, when set, exposes Prometheus metrics on this listen address.
	MetricsAddr string `yaml:"metrics_address"`
}

type RecordingConfig struct {
	OutputDir   string        `yaml:"output_dir"`
	MaxDuration time.Duration `yaml:"max_duration"`
	MaxBytes    int64         `yaml:"max_bytes"`
	MaxFiles    int           `yaml:"max_files"`
	LogMode     string        `yaml:"log_mode"`
	LatencyMS   int           `yaml:"latency_ms"`
}

// Rotation converts the segment limits into the recorder's policy form.
func (r RecordingConfig) Rotation() recorder.RotationPolicy {
	return recorder.RotationPolicy{
		MaxDuration: r.MaxDuration,
		MaxBytes:    r.MaxBytes,
		MaxFiles:    r.MaxFiles,
	}
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from a YAML file and applies environment variable
// overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	return cfg, nil
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	cfg := &Config{}
	applyEnvOverrides(cfg)
	setDefaults(cfg)
	return cfg
}

func setDefaults(cfg *Config) {
	if cfg.Server.URL == "" {
		cfg.Server.URL = "http://localhost:8000"
	}
	if cfg.Recording.OutputDir == "" {
		cfg.Recording.OutputDir = "./recordings"
	}
	if cfg.Recording.LogMode == "" {
		cfg.Recording.LogMode = "file"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("THORVISION_SERVER_URL"); v != "" {
		cfg.Server.URL = v
	}
	if v := os.Getenv("THORVISION_METRICS_ADDR"); v != "" {
		cfg.Server.MetricsAddr = v
	}
	if v := os.Getenv("THORVISION_OUTPUT_DIR"); v != "" {
		cfg.Recording.OutputDir = v
	}
	if v := os.Getenv("THORVISION_LOG_MODE"); v != "" {
		cfg.Recording.LogMode = v
	}
	if v := os.Getenv("THORVISION_MAX_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Recording.MaxDuration = d
		}
	}
	if v := os.Getenv("THORVISION_MAX_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Recording.MaxBytes = n
		}
	}
	if v := os.Getenv("THORVISION_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
