package duckdb

import (
	"fmt"
	"regexp"

	"github.com/go-viper/mapstructure/v2"
)

// Params holds DuckDB-specific configuration.
// Parsed from adapter.Config.Params using mapstructure.
type Params struct {
	// Extensions to install and load (e.g., "icu", "httpfs")
	Extensions []string `mapstructure:"extensions"`

	// Settings to apply at session level (e.g., memory_limit, threads)
	Settings map[string]string `mapstructure:"settings"`
}

var settingName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ParseParams decodes the target's params block.
func ParseParams(raw map[string]any) (*Params, error) {
	p := &Params{}
	if len(raw) == 0 {
		return p, nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           p,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("duckdb params: %w", err)
	}

	for _, ext := range p.Extensions {
		if !settingName.MatchString(ext) {
			return nil, fmt.Errorf("duckdb params: invalid extension name %q", ext)
		}
	}
	for name := range p.Settings {
		if !settingName.MatchString(name) {
			return nil, fmt.Errorf("duckdb params: invalid setting name %q", name)
		}
	}
	return p, nil
}

// statements returns the session setup SQL, extensions first.
func (p *Params) statements() []string {
	seen := make(map[string]bool, len(p.Extensions))

	var stmts []string
	for _, ext := range p.Extensions {
		if seen[ext] {
			continue
		}
		seen[ext] = true
		stmts = append(stmts, "INSTALL "+ext, "LOAD "+ext)
	}
	for _, name := range sortedKeys(p.Settings) {
		stmts = append(stmts, fmt.Sprintf("SET %s = %s", name, quote(p.Settings[name])))
	}
	return stmts
}
