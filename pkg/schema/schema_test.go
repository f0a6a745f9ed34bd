package schema_test

import (
	"testing"

	"github.com/leapstack-labs/fhirsql/pkg/core"
	"github.com/leapstack-labs/fhirsql/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name       string
		resource   string
		path       []string
		wantType   string
		collection bool
		valueType  core.ValueType
	}{
		{"singleton date", "Patient", []string{"birthDate"}, "date", false, core.TypeDate},
		{"repeating complex", "Patient", []string{"name"}, "HumanName", true, core.TypeComplex},
		{"nested string", "Patient", []string{"name", "family"}, "string", false, core.TypeString},
		{"nested repeating", "Patient", []string{"name", "given"}, "string", true, core.TypeString},
		{"inherited id", "Observation", []string{"id"}, "id", false, core.TypeString},
		{"backbone element", "Patient", []string{"contact", "name", "family"}, "string", false, core.TypeString},
		{"quantity value", "Observation", []string{"valueQuantity", "value"}, "decimal", false, core.TypeDecimal},
		{"datatype extension", "HumanName", []string{"extension", "url"}, "uri", false, core.TypeString},
		{"age is a quantity", "Age", []string{"unit"}, "string", false, core.TypeString},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, ok := schema.Resolve(tt.resource, tt.path...)
			require.True(t, ok)
			assert.Equal(t, tt.wantType, e.Type)
			assert.Equal(t, tt.collection, e.IsCollection())
			assert.Equal(t, tt.valueType, e.ValueType())
		})
	}
}

func TestResolveUnknown(t *testing.T) {
	_, ok := schema.Resolve("Patient", "nonexistent")
	assert.False(t, ok)

	_, ok = schema.Resolve("NotAResource", "id")
	assert.False(t, ok)

	_, ok = schema.Resolve("Patient")
	assert.False(t, ok)
}

func TestChoiceElements(t *testing.T) {
	e, ok := schema.Lookup("Observation", "value")
	require.True(t, ok)
	assert.True(t, e.IsChoice())
	assert.Equal(t, core.TypeAny, e.ValueType())
	assert.Contains(t, e.ChoiceKeys(), "valueQuantity")
	assert.Contains(t, e.ChoiceKeys(), "valueDateTime")
	assert.Equal(t, "valueQuantity", e.ChoiceKeys()[0])

	concrete, ok := schema.Lookup("Observation", "valueString")
	require.True(t, ok)
	assert.False(t, concrete.IsChoice())
	assert.Equal(t, "string", concrete.Type)

	assert.Equal(t, "deceasedBoolean", schema.ChoiceKey("deceased", "boolean"))
}

func TestIsResource(t *testing.T) {
	assert.True(t, schema.IsResource("Patient"))
	assert.True(t, schema.IsResource("Observation"))
	assert.False(t, schema.IsResource("HumanName"))
	assert.False(t, schema.IsResource("name"))

	assert.True(t, schema.IsKnownType("HumanName"))
	assert.True(t, schema.IsKnownType("System.Integer"))
	assert.Contains(t, schema.Resources(), "Encounter")
}
