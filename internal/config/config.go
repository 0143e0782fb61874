// Package config loads the demo host configuration from a YAML file, a .env
// file and OWINBRIDGE_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "OWINBRIDGE_"

// ErrInvalidConfig wraps validation failures.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the effective demo host configuration.
type Config struct {
	Server struct {
		Addr            string        `yaml:"addr" validate:"required,hostname_port"`
		PathBase        string        `yaml:"path_base" validate:"omitempty,startswith=/"`
		ReadTimeout     time.Duration `yaml:"read_timeout" validate:"gte=0"`
		WriteTimeout    time.Duration `yaml:"write_timeout" validate:"gte=0"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gte=0"`
	} `yaml:"server"`
	Backend string `yaml:"backend" validate:"oneof=mux gorilla chi gin echo fiber"`
	Bridge  struct {
		ClientCertificates  bool `yaml:"client_certificates"`
		ValidateEnvironment bool `yaml:"validate_environment"`
	} `yaml:"bridge"`
	Logging struct {
		Level  string `yaml:"level" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" validate:"oneof=text json"`
	} `yaml:"logging"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path" validate:"required_if=Enabled true,omitempty,startswith=/"`
	} `yaml:"metrics"`
	RateLimit struct {
		RPS   float64 `yaml:"rps" validate:"gte=0"`
		Burst int     `yaml:"burst" validate:"gte=0"`
	} `yaml:"rate_limit"`
	Auth struct {
		Realm        string `yaml:"realm"`
		User         string `yaml:"user"`
		PasswordHash string `yaml:"password_hash" validate:"required_with=User"`
	} `yaml:"auth"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Addr = "127.0.0.1:8080"
	cfg.Backend = "mux"
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"
	cfg.Metrics.Enabled = true
	cfg.Metrics.Path = "/metrics"
	cfg.Auth.Realm = "owinbridge"
	return cfg
}

// LoadDotEnv loads path into the process environment without overriding
// variables already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: loading %s: %w", path, err)
	}
	return nil
}

// Load builds the effective configuration: defaults, then the YAML file at
// path when given, then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration with its struct tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

var validate = validator.New()

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	str("ADDR", &c.Server.Addr)
	str("PATH_BASE", &c.Server.PathBase)
	str("BACKEND", &c.Backend)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)
	str("METRICS_PATH", &c.Metrics.Path)
	str("AUTH_USER", &c.Auth.User)
	str("AUTH_PASSWORD_HASH", &c.Auth.PasswordHash)

	var errs []error
	parse := func(name string, fn func(string) error) {
		if v, ok := lookup(EnvPrefix + name); ok {
			if err := fn(strings.TrimSpace(v)); err != nil {
				errs = append(errs, fmt.Errorf("config: %s%s: %w", EnvPrefix, name, err))
			}
		}
	}
	parse("METRICS", func(v string) (err error) {
		c.Metrics.Enabled, err = strconv.ParseBool(v)
		return err
	})
	parse("VALIDATE_ENVIRONMENT", func(v string) (err error) {
		c.Bridge.ValidateEnvironment, err = strconv.ParseBool(v)
		return err
	})
	parse("CLIENT_CERTIFICATES", func(v string) (err error) {
		c.Bridge.ClientCertificates, err = strconv.ParseBool(v)
		return err
	})
	parse("RATE_RPS", func(v string) (err error) {
		c.RateLimit.RPS, err = strconv.ParseFloat(v, 64)
		return err
	})
	parse("RATE_BURST", func(v string) (err error) {
		c.RateLimit.Burst, err = strconv.Atoi(v)
		return err
	})
	parse("SHUTDOWN_TIMEOUT", func(v string) (err error) {
		c.Server.ShutdownTimeout, err = time.ParseDuration(v)
		return err
	})
	return errors.Join(errs...)
}

// Level maps Logging.Level to a slog level.
func (c *Config) Level() slog.Level {
	switch c.Logging.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger builds the slog logger described by Logging.
func (c *Config) Logger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.Level()}
	if c.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
