// Package config handles serval.toml host configuration.
//
// Values come from, in increasing precedence: built-in defaults, the
// serval.toml file, and SERVAL_* environment variables. CLI flags are
// applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// FileName is the config file looked up in a project directory.
const FileName = "serval.toml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SERVAL_"

// Config is the host configuration.
type Config struct {
	// Workers is the default dispatch pool size per scheduler.
	Workers int `toml:"workers" env:"WORKERS"`

	// FrameInterval is how often the host loop advances its schedulers.
	FrameInterval time.Duration `toml:"frame_interval" env:"FRAME_INTERVAL"`

	// MaxCatchUp caps the ticks one scheduler may run in a single frame.
	MaxCatchUp int `toml:"max_catch_up" env:"MAX_CATCH_UP"`

	LogLevel string `toml:"log_level" env:"LOG_LEVEL"`

	// Database is the sqlite path for run records. Empty disables recording.
	Database string `toml:"database" env:"DATABASE"`

	// Schedulers overrides settings of schedulers registered by name.
	Schedulers map[string]Scheduler `toml:"schedulers" env:"-"`

	// Path is the file the config was read from, empty for defaults.
	Path string `toml:"-" env:"-"`
}

// Scheduler holds per-scheduler overrides. Zero fields keep the value the
// extension registered with.
type Scheduler struct {
	Interval time.Duration `toml:"interval"`
	Workers  int           `toml:"workers"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Workers:       runtime.GOMAXPROCS(0),
		FrameInterval: 4 * time.Millisecond,
		MaxCatchUp:    4,
		LogLevel:      "info",
	}
}

// Load reads dir/serval.toml over the defaults, then applies environment
// overrides. A missing file is not an error.
func Load(dir string) (Config, error) {
	cfg := Default()
	path := filepath.Join(dir, FileName)
	if err := cfg.readFile(path); err != nil {
		return Config{}, err
	}
	if err := ApplyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// LoadFile reads an explicit config file. Unlike Load, the file must exist.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); err != nil {
		return Config{}, fmt.Errorf("cannot read %s: %w", path, err)
	}
	if err := cfg.readFile(path); err != nil {
		return Config{}, err
	}
	if err := ApplyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", path, err)
	}
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}
	c.Path = path
	return nil
}

// ApplyEnv overlays SERVAL_* environment variables onto cfg. Unset
// variables leave fields unchanged.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs []error
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be >= 1, got %d", c.Workers))
	}
	if c.FrameInterval <= 0 {
		errs = append(errs, fmt.Errorf("frame_interval must be > 0, got %s", c.FrameInterval))
	}
	if c.MaxCatchUp < 1 {
		errs = append(errs, fmt.Errorf("max_catch_up must be >= 1, got %d", c.MaxCatchUp))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	for name, s := range c.Schedulers {
		if s.Interval < 0 || s.Workers < 0 {
			errs = append(errs, fmt.Errorf("scheduler %q: negative override", name))
		}
	}
	return errors.Join(errs...)
}

// SchedulerFor returns the overrides for name.
func (c Config) SchedulerFor(name string) Scheduler {
	return c.Schedulers[name]
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}

// Level returns the configured slog level, falling back to info.
func (c Config) Level() slog.Level {
	l, _ := ParseLevel(c.LogLevel)
	return l
}
