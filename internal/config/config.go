// Package config loads csvload settings.
//
// Precedence (highest to lowest): explicitly set flags > CSVLOAD_* env vars >
// legacy env vars > config file > defaults. A .env file in the working
// directory is loaded into the environment first.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const (
	DefaultFile            = "csvload.yaml"
	DefaultMetadataDir     = "metadata"
	DefaultConnectionsPath = "connections.json"
	DefaultEngine          = "duckdb"
	EnvPrefix              = "CSVLOAD_"
)

// Config is the resolved application configuration.
type Config struct {
	MetadataDir       string  `koanf:"metadata_dir"`
	ConnectionsPath   string  `koanf:"connections_path"`
	Engine            string  `koanf:"engine"`
	BooleanSampleSize int     `koanf:"boolean_sample_size"`
	LogLevel          string  `koanf:"log_level"`
	LogFormat         string  `koanf:"log_format"`
	Metrics           Metrics `koanf:"metrics"`
}

// Metrics selects and configures the metrics backend.
type Metrics struct {
	Backend    string        `koanf:"backend"`
	Tags       string        `koanf:"tags"`
	FlushEvery time.Duration `koanf:"flush_every"`
}

// legacyEnv maps environment names used by earlier releases to keys.
var legacyEnv = map[string]string{
	"METADATA_DIR":      "metadata_dir",
	"MYSQL_CONFIG_PATH": "connections_path",
}

func defaults() map[string]any {
	return map[string]any{
		"metadata_dir":        DefaultMetadataDir,
		"connections_path":    DefaultConnectionsPath,
		"engine":              DefaultEngine,
		"boolean_sample_size": 5,
		"log_level":           "info",
		"log_format":          "console",
		"metrics.backend":     "none",
		"metrics.tags":        "",
		"metrics.flush_every": "60s",
	}
}

// Load resolves the configuration. cfgFile may be empty, in which case
// csvload.yaml in the working directory is used when present. flags may be
// nil; only flags the user actually set take part.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("config: defaults: %w", err)
	}

	if cfgFile == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			cfgFile = DefaultFile
		}
	}
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", cfgFile, err)
		}
	}

	legacy := map[string]any{}
	for name, key := range legacyEnv {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			legacy[key] = v
		}
	}
	if err := k.Load(confmap.Provider(legacy, "."), nil); err != nil {
		return nil, fmt.Errorf("config: legacy env: %w", err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("config: env: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			return flagKey(f.Name), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("config: flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps CSVLOAD_METRICS_FLUSH_EVERY to metrics.flush_every.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	if rest, ok := strings.CutPrefix(key, "metrics_"); ok {
		return "metrics." + rest
	}
	return key
}

// flagKey maps --metrics-backend to metrics.backend and --log-level to log_level.
func flagKey(name string) string {
	key := strings.ReplaceAll(name, "-", "_")
	if rest, ok := strings.CutPrefix(key, "metrics_"); ok {
		return "metrics." + rest
	}
	return key
}

// Validate checks values that have no safe fallback.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.MetadataDir) == "" {
		errs = append(errs, fmt.Errorf("metadata_dir is empty"))
	}
	if strings.TrimSpace(c.Engine) == "" {
		errs = append(errs, fmt.Errorf("engine is empty"))
	}
	if c.BooleanSampleSize <= 0 {
		errs = append(errs, fmt.Errorf("boolean_sample_size must be positive, got %d", c.BooleanSampleSize))
	}
	switch c.Metrics.Backend {
	case "", "none", "datadog":
	default:
		errs = append(errs, fmt.Errorf("metrics.backend %q is not one of none, datadog", c.Metrics.Backend))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
