package translator

import (
	"maps"
	"strconv"

	"github.com/leapstack-labs/fhirsql/pkg/core"
)

// Binding names of the iteration variables.
const (
	BindThis  = "this"
	BindIndex = "index"
	BindTotal = "total"
)

// Context is the mutable state of one compilation. A Translator owns exactly
// one; scoped sub-translations save it with Snapshot and put it back with
// Restore so nothing they do leaks into the enclosing expression.
type Context struct {
	// CurrentTable is the CTE the pending expression reads from as "src".
	// Empty means the resource table itself.
	CurrentTable string
	// PathStack holds the member names folded into the pending expression
	// since the last CTE boundary.
	PathStack []string
	// CTECounter numbers generated CTEs. It only ever grows.
	CTECounter int
	// Bindings maps iteration variable names to the fragment they stand for.
	Bindings map[string]core.Fragment

	aliasCounter int
}

// Snapshot is a saved copy of the scoped part of a Context.
type Snapshot struct {
	currentTable string
	pathStack    []string
	bindings     map[string]core.Fragment
}

// NewContext returns an empty context.
func NewContext() *Context {
	return &Context{Bindings: make(map[string]core.Fragment)}
}

// Snapshot saves the current table, path stack and bindings.
// Counters are not part of a snapshot: names stay unique after Restore.
func (c *Context) Snapshot() Snapshot {
	return Snapshot{
		currentTable: c.CurrentTable,
		pathStack:    append([]string(nil), c.PathStack...),
		bindings:     maps.Clone(c.Bindings),
	}
}

// Restore puts back a snapshot taken from this context.
func (c *Context) Restore(s Snapshot) {
	c.CurrentTable = s.currentTable
	c.PathStack = s.pathStack
	c.Bindings = s.bindings
	if c.Bindings == nil {
		c.Bindings = make(map[string]core.Fragment)
	}
}

// NextCTE returns a new CTE name.
func (c *Context) NextCTE() string {
	c.CTECounter++
	return "cte_" + strconv.Itoa(c.CTECounter)
}

// NextAlias returns a new table alias for enumerations and subqueries.
func (c *Context) NextAlias() string {
	c.aliasCounter++
	return "e" + strconv.Itoa(c.aliasCounter)
}

// Bind binds an iteration variable.
func (c *Context) Bind(name string, f core.Fragment) {
	c.Bindings[name] = f
}

// Lookup returns the fragment bound to name.
func (c *Context) Lookup(name string) (core.Fragment, bool) {
	f, ok := c.Bindings[name]
	return f, ok
}

// PushPath appends a member name to the path stack.
func (c *Context) PushPath(name string) {
	c.PathStack = append(c.PathStack, name)
}

// ResetPath clears the path stack at a CTE boundary.
func (c *Context) ResetPath() {
	c.PathStack = nil
}
