package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/symforge/glee"
	"gopkg.in/yaml.v3"
)

// Config is the contents of the command line configuration file.
type Config struct {
	glee.Config `yaml:",inline"`

	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`

	// Directory exposed to explored programs as their filesystem. Empty
	// disables file access.
	Root string `yaml:"root"`

	// Architecture used for type layout. Empty means the host.
	Arch string `yaml:"arch"`

	// Limit on a single solver call. Zero means no limit.
	SolverTimeout time.Duration `yaml:"solver_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Config: glee.DefaultConfig(),
		Log:    LogConfig{Level: "info", Format: "console"},
	}
}

// ReadConfigFile reads a YAML configuration file over the defaults.
func ReadConfigFile(path string) (Config, error) {
	config := DefaultConfig()
	buf, err := os.ReadFile(path)
	if err != nil {
		return config, err
	}
	if err := yaml.Unmarshal(buf, &config); err != nil {
		return config, fmt.Errorf("parse config %s: %w", path, err)
	}
	return config, nil
}

// registerFlags binds the flags that override the configuration file.
func registerFlags(fs *pflag.FlagSet) {
	fs.StringP("config", "c", "", "configuration file")
	fs.String("arch", "", "target architecture")
	fs.String("search", "", "search strategy (dfs, bfs, random)")
	fs.Int64("seed", 0, "random search seed")
	fs.IntP("workers", "w", 0, "number of workers")
	fs.Int("max-paths", 0, "stop after this many paths")
	fs.String("root", "", "filesystem root for explored programs")
	fs.Duration("solver-timeout", 0, "limit on a single solver call")
	fs.String("log-level", "", "log level")
	fs.String("log-format", "", "log format (console, json)")
	fs.String("metrics-addr", "", "serve prometheus metrics on this address")
}

// loadConfig reads the configuration file named by the flags, if any, and
// applies the flags that were set.
func loadConfig(fs *pflag.FlagSet) (Config, error) {
	config := DefaultConfig()
	if path, _ := fs.GetString("config"); path != "" {
		var err error
		if config, err = ReadConfigFile(path); err != nil {
			return config, err
		}
	}

	var err error
	fs.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "arch":
			config.Arch = f.Value.String()
		case "search":
			config.Search = f.Value.String()
		case "seed":
			config.Seed, err = fs.GetInt64(f.Name)
		case "workers":
			config.Workers, err = fs.GetInt(f.Name)
		case "max-paths":
			config.MaxPaths, err = fs.GetInt(f.Name)
		case "root":
			config.Root = f.Value.String()
		case "solver-timeout":
			config.SolverTimeout, err = fs.GetDuration(f.Name)
		case "log-level":
			config.Log.Level = f.Value.String()
		case "log-format":
			config.Log.Format = f.Value.String()
		case "metrics-addr":
			config.Metrics.Addr = f.Value.String()
		}
	})
	if err != nil {
		return config, err
	}
	return config, nil
}

// NewLogger returns a logger writing to w as configured.
func NewLogger(config LogConfig, w io.Writer) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if config.Level != "" {
		var err error
		if level, err = zerolog.ParseLevel(strings.ToLower(config.Level)); err != nil {
			return zerolog.Nop(), fmt.Errorf("invalid log level: %q", config.Level)
		}
	}

	switch config.Format {
	case "", "console":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	case "json":
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format: %q", config.Format)
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}
