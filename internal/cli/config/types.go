// Package config provides configuration management for the fhirsql CLI.
//
// Shared types (TargetConfig and friends) live in pkg/core and are
// re-exported here via type aliases.
package config

import (
	"context"
	"fmt"

	sharedcfg "github.com/leapstack-labs/fhirsql/internal/config"
	"github.com/leapstack-labs/fhirsql/pkg/core"
)

// TargetConfig is an alias for the shared target configuration.
type TargetConfig = core.TargetConfig

// ConformanceConfig is an alias for the shared conformance configuration.
type ConformanceConfig = core.ConformanceConfig

// ServerConfig is an alias for the shared server configuration.
type ServerConfig = core.ServerConfig

// Config holds all CLI configuration options.
type Config struct {
	Table        string               `koanf:"table"`
	Environment  string               `koanf:"environment"`
	Verbose      bool                 `koanf:"verbose"`
	OutputFormat string               `koanf:"output"`
	Target       *TargetConfig        `koanf:"target"`
	Conformance  *ConformanceConfig   `koanf:"conformance"`
	Server       *ServerConfig        `koanf:"server"`
	Environments map[string]EnvConfig `koanf:"environments"`
}

// EnvConfig holds environment-specific overrides.
type EnvConfig struct {
	Table  string        `koanf:"table"`
	Target *TargetConfig `koanf:"target"`
}

// Default configuration values, shared with internal/config.
const (
	DefaultTable  = sharedcfg.DefaultTable
	DefaultOutput = sharedcfg.DefaultOutput
	DefaultEnv    = "dev"
)

// Project returns the configuration as the shared project type.
func (c *Config) Project() *core.ProjectConfig {
	p := &core.ProjectConfig{
		Target:      c.Target,
		Table:       c.Table,
		Output:      c.OutputFormat,
		Conformance: c.Conformance,
		Server:      c.Server,
	}
	sharedcfg.ApplyDefaults(p)
	return p
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Table == "" {
		return fmt.Errorf("table is required")
	}
	return sharedcfg.ValidateTarget(c.Target)
}

type configKey struct{}

// NewContext returns a context carrying cfg.
func NewContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// FromContext returns the configuration stored in ctx, or the defaults when
// none was loaded.
func FromContext(ctx context.Context) *Config {
	if c, ok := ctx.Value(configKey{}).(*Config); ok {
		return c
	}
	target := &TargetConfig{}
	sharedcfg.ApplyTargetDefaults(target)
	return &Config{
		Table:        DefaultTable,
		Environment:  DefaultEnv,
		OutputFormat: DefaultOutput,
		Target:       target,
	}
}
