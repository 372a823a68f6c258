// Package config loads and validates settings for the geode command line.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Sentinel validation errors.
var (
	ErrInvalidMemory     = errors.New("invalid memory budget")
	ErrInvalidLogLevel   = errors.New("invalid log level")
	ErrInvalidLogFormat  = errors.New("invalid log format")
	ErrInvalidStoreKind  = errors.New("invalid store kind")
	ErrInvalidCompressor = errors.New("invalid compressor")
)

// Default configuration values.
const (
	defaultMemory     = "64MiB"
	defaultLogLevel   = "info"
	defaultLogFormat  = "text"
	defaultStoreKind  = StoreLocal
	defaultStorePath  = "./geode.zarr"
	defaultCompressor = "zstd"
)

// Store kinds.
const (
	StoreLocal  = "local"
	StoreMemory = "memory"
)

// Config holds all configuration for the geode command line.
type Config struct {
	Engine  EngineConfig  `mapstructure:"engine" yaml:"engine"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
}

// EngineConfig holds evaluation settings.
type EngineConfig struct {
	// Memory is a human readable byte size such as "64MiB" or "2GB".
	Memory string `mapstructure:"memory" yaml:"memory"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig holds the prometheus endpoint. An empty address disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// StoreConfig selects where arrays are read from and written to.
type StoreConfig struct {
	Kind       string `mapstructure:"kind" yaml:"kind"`
	Path       string `mapstructure:"path" yaml:"path"`
	Compressor string `mapstructure:"compressor" yaml:"compressor"`
	// ChunkSteps is the number of leading-axis steps per written chunk.
	ChunkSteps int `mapstructure:"chunk_steps" yaml:"chunk_steps"`
}

// Default returns the configuration used when nothing else is supplied.
func Default() *Config {
	return &Config{
		Engine:  EngineConfig{Memory: defaultMemory},
		Logging: LoggingConfig{Level: defaultLogLevel, Format: defaultLogFormat},
		Store: StoreConfig{
			Kind:       defaultStoreKind,
			Path:       defaultStorePath,
			Compressor: defaultCompressor,
			ChunkSteps: 1,
		},
	}
}

// Load reads configuration from an optional file and GEODE_* environment
// variables on top of the defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("geode")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/geode")
	}

	v.SetEnvPrefix("GEODE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("engine.memory", d.Engine.Memory)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)

	v.SetDefault("metrics.addr", d.Metrics.Addr)

	v.SetDefault("store.kind", d.Store.Kind)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.compressor", d.Store.Compressor)
	v.SetDefault("store.chunk_steps", d.Store.ChunkSteps)
}

// Validate checks every field, returning the first problem found.
func (c *Config) Validate() error {
	if _, err := c.MemoryBudget(); err != nil {
		return err
	}

	if _, err := c.LogLevel(); err != nil {
		return err
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Logging.Format)
	}

	switch c.Store.Kind {
	case StoreLocal, StoreMemory:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStoreKind, c.Store.Kind)
	}

	switch c.Store.Compressor {
	case "", "none", "zstd":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidCompressor, c.Store.Compressor)
	}

	return nil
}

// MemoryBudget parses the engine memory setting into bytes.
func (c *Config) MemoryBudget() (int64, error) {
	n, err := humanize.ParseBytes(c.Engine.Memory)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %s", ErrInvalidMemory, c.Engine.Memory, err)
	}
	if n == 0 || n > 1<<62 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidMemory, c.Engine.Memory)
	}
	return int64(n), nil
}

// LogLevel parses the logging level.
func (c *Config) LogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging.Level)
	}
	return lvl, nil
}

// Save writes cfg as yaml to path, creating parent directories.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
