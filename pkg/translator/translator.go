// Package translator compiles a FHIRPath AST into an ordered list of SQL
// fragments, one per CTE of the final statement.
//
// Every fragment expression is evaluated against one row of its source
// table, aliased src, which carries the columns id, resource and (for CTEs)
// value. The value column always holds the FHIRPath collection as a JSON
// array. The main path of an expression is split into CTEs at each
// filtering, slicing, combining or aggregating function; member paths and
// scalar functions fold into the CTE that consumes them. Operands and
// lambda bodies are translated inline as correlated subqueries.
package translator

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/fhirsql/pkg/core"
	"github.com/leapstack-labs/fhirsql/pkg/dialect"
	"github.com/leapstack-labs/fhirsql/pkg/fhirpath"
)

// DefaultTable is the resource table read by the first CTE.
const DefaultTable = "resources"

// Boundary categories recorded in core.MetaBoundary.
const (
	boundaryPath      = "path"
	boundaryFilter    = "filter"
	boundarySlice     = "slice"
	boundaryCombine   = "combine"
	boundaryAggregate = "aggregate"
	boundaryJoin      = "join"
)

// Translator turns one expression at a time into fragments.
// A Translator is not safe for concurrent use; create one per compilation.
type Translator struct {
	d      dialect.Dialect
	logger *slog.Logger
	table  string

	ctx          *Context
	resourceType string
	fragments    []core.Fragment
}

// Option configures a Translator.
type Option func(*Translator)

// WithLogger sets the logger used for trace() output and debug lines.
func WithLogger(l *slog.Logger) Option {
	return func(t *Translator) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithTable sets the resource table name.
func WithTable(table string) Option {
	return func(t *Translator) {
		if table != "" {
			t.table = table
		}
	}
}

// New creates a translator for a dialect.
func New(d dialect.Dialect, opts ...Option) *Translator {
	t := &Translator{
		d:      d,
		logger: slog.New(slog.DiscardHandler),
		table:  DefaultTable,
		ctx:    NewContext(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Context returns the context of the last translation.
func (t *Translator) Context() *Context {
	return t.ctx
}

// Translate compiles root, evaluated against resources of resourceType, into
// fragments. The last fragment holds the result.
func (t *Translator) Translate(root fhirpath.Node, resourceType string) ([]core.Fragment, error) {
	if root == nil {
		return nil, fmt.Errorf("translate: %w", ErrUnsupported)
	}
	if resourceType == "" {
		return nil, fmt.Errorf("translate: resource type is required")
	}

	t.ctx = NewContext()
	t.resourceType = resourceType
	t.fragments = nil

	v, err := t.top(root)
	if err != nil {
		return nil, err
	}
	t.cut(v)

	t.logger.Debug("translated expression",
		slog.String("expression", root.String()),
		slog.Int("fragments", len(t.fragments)))
	return t.fragments, nil
}

// top splits a top-level binary operator or union whose operands both
// contain CTE boundaries into two chains joined on id.
func (t *Translator) top(node fhirpath.Node) (value, error) {
	var left, right fhirpath.Node
	switch n := node.(type) {
	case *fhirpath.Binary:
		left, right = n.Left, n.Right
	case *fhirpath.Union:
		left, right = n.Left, n.Right
	default:
		return t.chain(node)
	}

	lc, rc := hasBoundary(left), hasBoundary(right)
	switch {
	case lc && rc:
		return t.join(node, left, right)
	case lc:
		l, err := t.chain(left)
		if err != nil {
			return value{}, err
		}
		l = t.settle(l)
		r, err := t.expr(right, t.root())
		if err != nil {
			return value{}, err
		}
		return t.combine(node, l, r)
	case rc:
		r, err := t.chain(right)
		if err != nil {
			return value{}, err
		}
		r = t.settle(r)
		l, err := t.expr(left, t.root())
		if err != nil {
			return value{}, err
		}
		return t.combine(node, l, r)
	default:
		return t.chain(node)
	}
}

func (t *Translator) join(node, left, right fhirpath.Node) (value, error) {
	snap := t.ctx.Snapshot()

	l, err := t.chain(left)
	if err != nil {
		return value{}, err
	}
	l = t.cut(l)
	lhs := t.ctx.CurrentTable
	t.ctx.Restore(snap)

	r, err := t.chain(right)
	if err != nil {
		return value{}, err
	}
	r = t.cut(r)
	rhs := t.ctx.CurrentTable
	t.ctx.Restore(snap)

	t.ctx.CurrentTable = lhs
	r.sql = "rhs.value"

	res, err := t.combine(node, l, r)
	if err != nil {
		return value{}, err
	}
	res = t.materialize(res)
	res.bare = false
	res.join = rhs
	res.boundary = boundaryJoin
	return res, nil
}

func (t *Translator) combine(node fhirpath.Node, l, r value) (value, error) {
	if n, ok := node.(*fhirpath.Binary); ok {
		return t.binary(n, l, r)
	}
	return t.union(l, r), nil
}

// chain translates the main path of an expression, emitting CTEs.
func (t *Translator) chain(node fhirpath.Node) (value, error) {
	switch n := node.(type) {
	case *fhirpath.Identifier:
		v, err := t.identifier(t.root(), n)
		if err == nil && v.isPath() {
			t.ctx.PushPath(n.Name)
		}
		return v, err

	case *fhirpath.Member:
		v, err := t.chain(n.Target)
		if err != nil {
			return value{}, err
		}
		v = t.settle(v)
		res, err := t.member(v, n.Name, n.At)
		if err != nil {
			return value{}, err
		}
		t.ctx.PushPath(n.Name)
		return res, nil

	case *fhirpath.Invocation:
		focus := t.root()
		if n.Target != nil {
			v, err := t.chain(n.Target)
			if err != nil {
				return value{}, err
			}
			focus = v
		}
		return t.call(n, focus, true)

	case *fhirpath.Indexer:
		v, err := t.chain(n.Target)
		if err != nil {
			return value{}, err
		}
		v = t.cut(v)
		res, err := t.index(v, n)
		if err != nil {
			return value{}, err
		}
		res.boundary = boundarySlice
		return res, nil

	default:
		return t.expr(node, t.root())
	}
}

// settle cuts a value produced by a boundary function so the next step reads
// it from its own CTE.
func (t *Translator) settle(v value) value {
	if v.boundary != "" {
		return t.cut(v)
	}
	return v
}

// cut emits v as a fragment and returns a value reading it back.
func (t *Translator) cut(v value) value {
	if v.bare {
		return v
	}

	name := t.ctx.NextCTE()
	f := core.Fragment{
		Expression:   t.coll(v),
		SourceTable:  t.table,
		IsAggregate:  v.boundary == boundaryAggregate,
		IsCollection: !v.single,
		Type:         v.typ,
	}
	if t.ctx.CurrentTable != "" {
		f.SourceTable = t.ctx.CurrentTable
		f.AddDependency(t.ctx.CurrentTable)
	}
	if v.join != "" {
		f.AddDependency(v.join)
		f.SetMeta(core.MetaJoin, v.join)
	}
	f.SetMeta(core.MetaName, name)
	boundary := v.boundary
	if boundary == "" {
		boundary = boundaryPath
	}
	f.SetMeta(core.MetaBoundary, boundary)
	if v.fn != "" {
		f.SetMeta(core.MetaFunction, v.fn)
	}
	if len(t.ctx.PathStack) > 0 {
		f.SetMeta(core.MetaPath, strings.Join(t.ctx.PathStack, "."))
	}
	if v.fhirType != "" {
		f.SetMeta(core.MetaFHIRType, v.fhirType)
	}
	t.fragments = append(t.fragments, f)

	t.logger.Debug("emitted fragment",
		slog.String("cte", name),
		slog.String("source", f.SourceTable),
		slog.String("boundary", boundary))

	t.ctx.CurrentTable = name
	t.ctx.ResetPath()
	return value{
		sql:      "src.value",
		form:     formCollection,
		typ:      v.typ,
		fhirType: v.fhirType,
		single:   v.single,
		bare:     true,
	}
}

// root is the resource of the current row.
func (t *Translator) root() value {
	return value{
		sql:      "src.resource",
		form:     formItem,
		typ:      core.TypeComplex,
		fhirType: t.resourceType,
		single:   true,
	}
}

// scope is the focus function arguments are evaluated against: $this inside
// an iteration, the resource otherwise.
func (t *Translator) scope() value {
	if f, ok := t.ctx.Lookup(BindThis); ok {
		return valueOf(f)
	}
	return t.root()
}

// hasBoundary reports whether the main path of node contains a function
// call or indexer that starts a CTE.
func hasBoundary(node fhirpath.Node) bool {
	for node != nil {
		switch n := node.(type) {
		case *fhirpath.Member:
			node = n.Target
		case *fhirpath.Indexer:
			return true
		case *fhirpath.Invocation:
			if id, ok := functionIDs[n.Name]; ok && functionTable[id].Boundary != "" {
				return true
			}
			node = n.Target
		default:
			return false
		}
	}
	return false
}
