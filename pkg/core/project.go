package core

// ProjectConfig holds the fhirsql configuration file contents.
type ProjectConfig struct {
	Target *TargetConfig `koanf:"target"`

	// Table is the resource table compiled queries read from.
	Table string `koanf:"table"`

	// Output is the default result format (table, json, csv, markdown).
	Output string `koanf:"output"`

	Conformance *ConformanceConfig `koanf:"conformance"`
	Server      *ServerConfig      `koanf:"server"`
}

// TargetConfig holds database target configuration.
type TargetConfig struct {
	Type string `koanf:"type"` // duckdb, postgres

	// File-based databases (DuckDB)
	Database string `koanf:"database"` // file path or database name

	// Network databases
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`

	// Additional driver-specific options
	Options map[string]string `koanf:"options"`

	// Params holds adapter-specific configuration (e.g., DuckDB extensions, settings)
	Params map[string]any `koanf:"params"`
}

// ConformanceConfig configures the conformance runner.
type ConformanceConfig struct {
	// Suites are YAML files or directories of YAML files.
	Suites []string `koanf:"suites"`

	// Targets lists the engines every case runs against.
	Targets []*TargetConfig `koanf:"targets"`

	// Parallel bounds the number of concurrently running cases.
	Parallel int `koanf:"parallel"`

	// History is the SQLite file runs are recorded in. Empty disables it.
	History string `koanf:"history"`
}

// ServerConfig configures the HTTP compile endpoint.
type ServerConfig struct {
	Addr string `koanf:"addr"`
}

// AdapterConfig converts the target to adapter connection settings.
func (t *TargetConfig) AdapterConfig() AdapterConfig {
	cfg := AdapterConfig{
		Type:     t.Type,
		Host:     t.Host,
		Port:     t.Port,
		Database: t.Database,
		Username: t.User,
		Password: t.Password,
		Options:  t.Options,
		Params:   t.Params,
	}
	if t.Type == "duckdb" {
		cfg.Path = t.Database
	}
	return cfg
}
