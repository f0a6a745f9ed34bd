package cte

import (
	"errors"
	"fmt"
	"strings"

	"github.com/leapstack-labs/fhirsql/internal/dag"
	"github.com/leapstack-labs/fhirsql/pkg/core"
)

// Chain failures.
var (
	ErrMissingDependency = errors.New("depends on an unknown CTE")
	ErrForwardDependency = errors.New("depends on a later CTE")
	ErrCycle             = errors.New("dependency cycle")
	ErrDuplicateName     = errors.New("duplicate CTE name")
)

// AssemblyError reports a CTE list that cannot form a valid statement.
type AssemblyError struct {
	CTE        string
	Dependency string
	Cycle      []string
	Err        error
}

func (e *AssemblyError) Error() string {
	switch {
	case len(e.Cycle) > 0:
		return fmt.Sprintf("assemble %s: %s: %s", e.CTE, e.Err, strings.Join(e.Cycle, " -> "))
	case e.Dependency != "":
		return fmt.Sprintf("assemble %s: %s %s", e.CTE, e.Err, e.Dependency)
	default:
		return fmt.Sprintf("assemble %s: %s", e.CTE, e.Err)
	}
}

func (e *AssemblyError) Unwrap() error {
	return e.Err
}

// Assemble joins the CTEs into one statement that returns, per resource id,
// the value of the last CTE. Dependencies are checked before any SQL is
// produced: each must name a CTE defined earlier in the list. CTEs the last
// one does not depend on are left out.
func Assemble(ctes []core.CTE) (string, error) {
	if len(ctes) == 0 {
		return "", errors.New("assemble: no CTEs")
	}

	g := dag.NewGraph()
	for _, c := range ctes {
		if _, dup := g.Node(c.Name); dup {
			return "", &AssemblyError{CTE: c.Name, Err: ErrDuplicateName}
		}
		g.AddNode(c.Name, c)
	}
	for _, c := range ctes {
		for _, dep := range c.DependsOn {
			if _, ok := g.Node(dep); !ok {
				return "", &AssemblyError{CTE: c.Name, Dependency: dep, Err: ErrMissingDependency}
			}
			if dep == c.Name {
				return "", &AssemblyError{CTE: c.Name, Cycle: []string{c.Name, c.Name}, Err: ErrCycle}
			}
			if err := g.AddEdge(dep, c.Name); err != nil {
				return "", fmt.Errorf("assemble %s: %w", c.Name, err)
			}
		}
	}
	if has, cycle := g.HasCycle(); has {
		return "", &AssemblyError{CTE: cycle[0], Cycle: cycle, Err: ErrCycle}
	}

	position := make(map[string]int, len(ctes))
	for i, c := range ctes {
		position[c.Name] = i
	}
	for i, c := range ctes {
		for _, dep := range c.DependsOn {
			if position[dep] > i {
				return "", &AssemblyError{CTE: c.Name, Dependency: dep, Err: ErrForwardDependency}
			}
		}
	}

	final := ctes[len(ctes)-1]
	keep := make(map[string]bool)
	for _, name := range g.Upstream(final.Name) {
		keep[name] = true
	}
	keep[final.Name] = true

	var sb strings.Builder
	sb.WriteString("WITH ")
	first := true
	for _, c := range ctes {
		if !keep[c.Name] {
			continue
		}
		if !first {
			sb.WriteString(",\n")
		}
		first = false
		fmt.Fprintf(&sb, "%s AS (%s)", c.Name, c.Body)
	}
	fmt.Fprintf(&sb, "\nSELECT id, value AS result FROM %s ORDER BY id", final.Name)
	return sb.String(), nil
}
