package core

// Metadata keys recorded on fragments.
const (
	MetaFunction = "function" // FHIRPath function or operator that produced the fragment
	MetaBoundary = "boundary" // why the fragment starts a new CTE (path, filter, slice, aggregate, join)
	MetaJoin     = "join"     // comma-separated CTE names joined on id
	MetaPath     = "path"     // dotted member path folded into the fragment
	MetaName     = "name"     // CTE name assigned to the fragment
	MetaFHIRType = "fhirType" // FHIR type of the produced items, when known
)

// Fragment is one translated piece of SQL plus the metadata needed to chain it.
//
// Expression evaluates, for one row of SourceTable, to a JSON array holding the
// FHIRPath collection. An empty collection is the literal empty array, never NULL.
type Fragment struct {
	Expression   string
	SourceTable  string
	IsAggregate  bool
	IsCollection bool
	Dependencies []string
	Type         ValueType
	Metadata     map[string]string
}

// AddDependency appends name to the dependency list unless it is already present.
func (f *Fragment) AddDependency(name string) {
	if name == "" {
		return
	}
	for _, d := range f.Dependencies {
		if d == name {
			return
		}
	}
	f.Dependencies = append(f.Dependencies, name)
}

// SetMeta sets a metadata key, allocating the map on first use.
func (f *Fragment) SetMeta(key, value string) {
	if f.Metadata == nil {
		f.Metadata = make(map[string]string)
	}
	f.Metadata[key] = value
}

// Meta returns a metadata value or "".
func (f *Fragment) Meta(key string) string {
	if f.Metadata == nil {
		return ""
	}
	return f.Metadata[key]
}

// CTE is one named intermediate query of the compiled statement.
type CTE struct {
	Name      string
	Body      string
	DependsOn []string
}
