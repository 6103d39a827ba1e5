// Package config loads the autorest YAML configuration file.
//
// Values are resolved in order: built-in defaults, then the file, then
// ${VAR} references expanded from the environment. Command-line flags are
// applied afterwards by the caller.
package config

import (
	"errors"
	"os"
	"runtime"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/koustreak/autorest/internal/database"
	"github.com/koustreak/autorest/internal/emit"
	"github.com/koustreak/autorest/internal/endpoint"
	"github.com/koustreak/autorest/internal/errs"
	"github.com/koustreak/autorest/internal/filestore"
	"github.com/koustreak/autorest/internal/logger"
	"github.com/koustreak/autorest/internal/naming"
	"github.com/koustreak/autorest/internal/typemap"
)

// Server configures the read API.
type Server struct {
	Addr string `yaml:"addr"`

	// RegisterWorkers bounds how many tables are configured concurrently
	// at startup. Default GOMAXPROCS.
	RegisterWorkers int `yaml:"register_workers"`

	// Namespace is the optional prefix of endpoint references.
	Namespace string `yaml:"namespace"`
}

// Config is the whole configuration file.
type Config struct {
	Database database.Config  `yaml:"database"`
	Log      logger.Config    `yaml:"log"`
	Naming   naming.Config    `yaml:"naming"`
	Typemap  typemap.Config   `yaml:"typemap"`
	Endpoint endpoint.Config  `yaml:"endpoint"`
	Emit     emit.Config      `yaml:"emit"`
	Publish  filestore.Config `yaml:"publish"`
	Server   Server           `yaml:"server"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Database: *database.DefaultConfig(""),
		Log:      *logger.DefaultConfig(),
		Naming:   naming.DefaultConfig(),
		Typemap:  typemap.DefaultConfig(),
		Endpoint: endpoint.DefaultConfig(),
		Emit:     emit.DefaultConfig(),
		Publish:  *filestore.DefaultConfig("", "", ""),
		Server: Server{
			Addr:            ":8080",
			RegisterWorkers: runtime.GOMAXPROCS(0),
		},
	}
}

// Load reads path on top of Default. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errs.Newf(errs.ErrKindNotFound, "config file %s not found", path)
		}
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "read config file", err)
	}
	if err := Parse(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes data into cfg, expands ${VAR} references and validates
// the result. Keys missing from data keep their value in cfg.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal([]byte(expandEnv(string(data))), cfg); err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, "parse config file", err)
	}
	return cfg.Validate()
}

// expandEnv replaces ${VAR} and $VAR with environment values. Unset
// variables expand to the empty string.
func expandEnv(s string) string {
	return os.Expand(s, os.Getenv)
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case database.DriverPgxPool, database.DriverStdlib:
	default:
		return errs.Newf(errs.ErrKindInvalidInput, "database.driver must be %q or %q, got %q",
			database.DriverPgxPool, database.DriverStdlib, c.Database.Driver)
	}

	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		return errs.Newf(errs.ErrKindInvalidInput, "log.format must be json or console, got %q", c.Log.Format)
	}

	if c.Endpoint.Threshold < 0 {
		return errs.New(errs.ErrKindInvalidInput, "endpoint.threshold must not be negative")
	}
	if c.Endpoint.DefaultLimit <= 0 || c.Endpoint.MaxLimit < c.Endpoint.DefaultLimit {
		return errs.Newf(errs.ErrKindInvalidInput,
			"endpoint limits must satisfy 0 < default_limit <= max_limit, got %d and %d",
			c.Endpoint.DefaultLimit, c.Endpoint.MaxLimit)
	}

	if c.Emit.Package == "" || !isIdent(c.Emit.Package) {
		return errs.Newf(errs.ErrKindInvalidInput, "emit.package %q is not a Go package name", c.Emit.Package)
	}

	if c.Publish.Enabled() {
		if c.Publish.Provider != filestore.ProviderMinIO {
			return errs.Newf(errs.ErrKindInvalidInput, "publish.provider %q is not supported", c.Publish.Provider)
		}
		if c.Publish.Bucket == "" {
			return errs.New(errs.ErrKindInvalidInput, "publish.bucket is required when publishing is enabled")
		}
	}

	if _, err := typemap.New(c.Typemap); err != nil {
		return err
	}
	return nil
}

func isIdent(s string) bool {
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
