package config

import (
	"strings"

	"github.com/leapstack-labs/fhirsql/pkg/core"
)

// Default configuration values.
const (
	DefaultTable      = "resources"
	DefaultOutput     = "auto" // TTY=table, non-TTY=markdown
	DefaultTargetType = "duckdb"
	DefaultServerAddr = ":8080"
	DefaultParallel   = 4
)

// ApplyDefaults applies default values to a ProjectConfig.
func ApplyDefaults(c *core.ProjectConfig) {
	if c == nil {
		return
	}
	if c.Table == "" {
		c.Table = DefaultTable
	}
	if c.Output == "" {
		c.Output = DefaultOutput
	}
	if c.Target == nil {
		c.Target = &core.TargetConfig{Type: DefaultTargetType}
	}
	ApplyTargetDefaults(c.Target)

	if c.Server == nil {
		c.Server = &core.ServerConfig{}
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}

	if c.Conformance == nil {
		c.Conformance = &core.ConformanceConfig{}
	}
	if c.Conformance.Parallel <= 0 {
		c.Conformance.Parallel = DefaultParallel
	}
	for _, t := range c.Conformance.Targets {
		ApplyTargetDefaults(t)
	}
}

// ApplyTargetDefaults applies default values to a TargetConfig based on the target type.
func ApplyTargetDefaults(t *core.TargetConfig) {
	if t == nil {
		return
	}
	t.Type = strings.ToLower(t.Type)
	if t.Type == "" {
		t.Type = DefaultTargetType
	}
	if t.Type == "postgres" && t.Port == 0 {
		t.Port = 5432
	}
}
