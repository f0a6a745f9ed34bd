package translator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/fhirsql/pkg/core"
	"github.com/leapstack-labs/fhirsql/pkg/fhirpath"
	"github.com/leapstack-labs/fhirsql/pkg/translator"
)

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name  string
		expr  string
		op    string
		left  core.ValueType
		right core.ValueType
	}{
		{"time against date field", "Patient.birthDate = @T10:00", "=", core.TypeDate, core.TypeTime},
		{"time against datetime", "@T10:00 < @2020-01-01T10:00:00", "<", core.TypeTime, core.TypeDateTime},
		{"date against number", "Patient.birthDate > 5", ">", core.TypeDate, core.TypeInteger},
		{"boolean against number", "Patient.active = 1", "=", core.TypeBoolean, core.TypeInteger},
		{"inside a lambda", "Patient.name.where(period.start ~ @T08:00).exists()", "~", core.TypeDateTime, core.TypeTime},
		{"converted value", "Patient.gender.toDate() != @T08:00", "!=", core.TypeDate, core.TypeTime},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := translator.Validate(fhirpath.MustParse(tt.expr), "Patient")
			require.Error(t, err)

			var ie *translator.IncompatibleError
			require.ErrorAs(t, err, &ie)
			assert.Equal(t, tt.op, ie.Op)
			assert.Equal(t, tt.left, ie.Left)
			assert.Equal(t, tt.right, ie.Right)
			assert.Contains(t, err.Error(), tt.left.String())
			assert.Contains(t, err.Error(), tt.right.String())
		})
	}
}

func TestValidateAccepts(t *testing.T) {
	tests := []string{
		"Patient.birthDate = @2020-01-01",
		"Patient.birthDate < @2020-01-01T00:00:00",
		"Patient.birthDate > '2000'",
		"1 = 1.0",
		"Patient.name.given = 'Peter'",
		"Patient.deceased = true",
		"Patient.unknownElement = @T10:00",
		"@T10:00 = @T10:00:00",
		"Patient.name.where(use = 'official').family",
	}
	for _, expr := range tests {
		t.Run(expr, func(t *testing.T) {
			assert.NoError(t, translator.Validate(fhirpath.MustParse(expr), "Patient"))
		})
	}
}
