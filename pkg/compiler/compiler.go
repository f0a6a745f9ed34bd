// Package compiler runs the full pipeline from FHIRPath text to one SQL
// statement: parse, validate, translate, build CTEs and assemble.
package compiler

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/fhirsql/pkg/core"
	"github.com/leapstack-labs/fhirsql/pkg/cte"
	"github.com/leapstack-labs/fhirsql/pkg/dialect"
	"github.com/leapstack-labs/fhirsql/pkg/fhirpath"
	"github.com/leapstack-labs/fhirsql/pkg/translator"
)

// Result is a compiled expression.
type Result struct {
	// SQL returns one row (id, result) per resource of the requested type;
	// result is the FHIRPath collection as a JSON array.
	SQL          string
	Fragments    []core.Fragment
	CTEs         []core.CTE
	Type         core.ValueType
	IsCollection bool
}

// Compiler compiles expressions for one dialect. It holds no per-compilation
// state and is safe for concurrent use.
type Compiler struct {
	d      dialect.Dialect
	table  string
	logger *slog.Logger
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Compiler) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTable sets the name of the table holding the resources.
func WithTable(table string) Option {
	return func(c *Compiler) {
		if table != "" {
			c.table = table
		}
	}
}

// New creates a compiler for d.
func New(d dialect.Dialect, opts ...Option) *Compiler {
	c := &Compiler{
		d:      d,
		table:  translator.DefaultTable,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ForDialect creates a compiler for a registered dialect.
func ForDialect(name string, opts ...Option) (*Compiler, error) {
	d, err := dialect.Lookup(name)
	if err != nil {
		return nil, fmt.Errorf("compiler: %w", err)
	}
	return New(d, opts...), nil
}

// Dialect returns the target dialect.
func (c *Compiler) Dialect() dialect.Dialect {
	return c.d
}

// Table returns the resource table compiled statements read.
func (c *Compiler) Table() string {
	return c.table
}

// Compile compiles expr, evaluated against every resource of resourceType.
// No SQL is returned when any stage fails.
func (c *Compiler) Compile(expr, resourceType string) (*Result, error) {
	node, err := fhirpath.Parse(expr)
	if err != nil {
		return nil, err
	}
	return c.CompileNode(node, resourceType)
}

// CompileNode compiles an already parsed expression.
func (c *Compiler) CompileNode(node fhirpath.Node, resourceType string) (*Result, error) {
	log := c.logger.With(slog.String("dialect", c.d.Name()), slog.String("resource", resourceType))

	if err := translator.Validate(node, resourceType); err != nil {
		return nil, err
	}

	t := translator.New(c.d, translator.WithLogger(c.logger), translator.WithTable(c.table))
	frags, err := t.Translate(node, resourceType)
	if err != nil {
		return nil, err
	}
	log.Debug("translated", slog.Int("fragments", len(frags)))

	ctes, err := cte.Build(frags, cte.Base{Table: c.table, ResourceType: resourceType, Dialect: c.d})
	if err != nil {
		return nil, err
	}
	sql, err := cte.Assemble(ctes)
	if err != nil {
		return nil, err
	}
	log.Debug("assembled", slog.Int("ctes", len(ctes)), slog.Int("bytes", len(sql)))

	last := frags[len(frags)-1]
	return &Result{
		SQL:          sql,
		Fragments:    frags,
		CTEs:         ctes,
		Type:         last.Type,
		IsCollection: last.IsCollection,
	}, nil
}

// Failure stages reported by Stage.
const (
	StageParse     = "parse"
	StageValidate  = "validate"
	StageTranslate = "translate"
	StageAssemble  = "assemble"
)

// Stage names the pipeline stage that produced a Compile error.
func Stage(err error) string {
	var (
		pe *fhirpath.ParseError
		le *fhirpath.LexError
		ie *translator.IncompatibleError
		ae *cte.AssemblyError
	)
	switch {
	case errors.As(err, &pe), errors.As(err, &le):
		return StageParse
	case errors.As(err, &ie):
		return StageValidate
	case errors.As(err, &ae):
		return StageAssemble
	default:
		return StageTranslate
	}
}
