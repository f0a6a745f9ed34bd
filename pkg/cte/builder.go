// Package cte turns translator fragments into named common table expressions
// and assembles them into one SQL statement.
//
// Every CTE has the columns id, resource and value: one row per resource,
// with value holding that resource's FHIRPath collection at this step.
package cte

import (
	"fmt"
	"strconv"

	"github.com/leapstack-labs/fhirsql/pkg/core"
	"github.com/leapstack-labs/fhirsql/pkg/dialect"
)

// Base describes the resource table the first CTE reads.
type Base struct {
	Table        string
	ResourceType string
	Dialect      dialect.Dialect
}

// Build renders one CTE per fragment, in order. A fragment reads either the
// resource table, filtered to Base.ResourceType, or an earlier CTE; a
// joined fragment also reads the CTE named in core.MetaJoin as rhs.
func Build(frags []core.Fragment, base Base) ([]core.CTE, error) {
	if len(frags) == 0 {
		return nil, fmt.Errorf("build: no fragments")
	}
	if base.Dialect == nil {
		return nil, fmt.Errorf("build: dialect is required")
	}

	d := base.Dialect
	known := make(map[string]bool, len(frags))
	ctes := make([]core.CTE, 0, len(frags))

	for i, f := range frags {
		name := f.Meta(core.MetaName)
		if name == "" {
			name = "cte_" + strconv.Itoa(i+1)
		}
		if known[name] {
			return nil, &AssemblyError{CTE: name, Err: ErrDuplicateName}
		}

		var from string
		switch {
		case known[f.SourceTable]:
			from = f.SourceTable + " AS src"
		case f.SourceTable == base.Table:
			from = fmt.Sprintf("%s AS src WHERE %s = %s",
				d.QuoteIdentifier(base.Table),
				d.ItemText(d.ItemField("src.resource", "resourceType")),
				d.StringLiteral(base.ResourceType))
		default:
			return nil, &AssemblyError{CTE: name, Dependency: f.SourceTable, Err: ErrMissingDependency}
		}

		if rhs := f.Meta(core.MetaJoin); rhs != "" {
			if !known[rhs] {
				return nil, &AssemblyError{CTE: name, Dependency: rhs, Err: ErrMissingDependency}
			}
			from = fmt.Sprintf("%s JOIN %s AS rhs ON src.id = rhs.id", from, rhs)
		}

		ctes = append(ctes, core.CTE{
			Name:      name,
			Body:      fmt.Sprintf("SELECT src.id, src.resource, %s AS value FROM %s", f.Expression, from),
			DependsOn: append([]string(nil), f.Dependencies...),
		})
		known[name] = true
	}
	return ctes, nil
}
