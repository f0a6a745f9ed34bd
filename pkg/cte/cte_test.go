package cte_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/fhirsql/pkg/core"
	"github.com/leapstack-labs/fhirsql/pkg/cte"
	"github.com/leapstack-labs/fhirsql/pkg/dialects/postgres"
)

func fragment(name, source, expr string, deps ...string) core.Fragment {
	f := core.Fragment{Expression: expr, SourceTable: source}
	for _, d := range deps {
		f.AddDependency(d)
	}
	f.SetMeta(core.MetaName, name)
	return f
}

var base = cte.Base{Table: "resources", ResourceType: "Patient", Dialect: postgres.Postgres}

func TestBuild(t *testing.T) {
	join := fragment("cte_3", "cte_1", "(src.value || rhs.value)", "cte_1", "cte_2")
	join.SetMeta(core.MetaJoin, "cte_2")

	ctes, err := cte.Build([]core.Fragment{
		fragment("cte_1", "resources", "a"),
		fragment("cte_2", "cte_1", "b", "cte_1"),
		join,
	}, base)
	require.NoError(t, err)
	require.Len(t, ctes, 3)

	assert.Equal(t, core.CTE{
		Name:      "cte_1",
		Body:      `SELECT src.id, src.resource, a AS value FROM "resources" AS src WHERE ((src.resource -> 'resourceType') #>> '{}') = 'Patient'`,
		DependsOn: nil,
	}, ctes[0])
	assert.Equal(t, "SELECT src.id, src.resource, b AS value FROM cte_1 AS src", ctes[1].Body)
	assert.Equal(t, []string{"cte_1"}, ctes[1].DependsOn)
	assert.Equal(t, "SELECT src.id, src.resource, (src.value || rhs.value) AS value FROM cte_1 AS src JOIN cte_2 AS rhs ON src.id = rhs.id", ctes[2].Body)
}

func TestBuildNamesUnnamedFragments(t *testing.T) {
	ctes, err := cte.Build([]core.Fragment{{Expression: "x", SourceTable: "resources"}}, base)
	require.NoError(t, err)
	assert.Equal(t, "cte_1", ctes[0].Name)
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name  string
		frags []core.Fragment
		want  error
	}{
		{"unknown source", []core.Fragment{fragment("cte_1", "cte_9", "a", "cte_9")}, cte.ErrMissingDependency},
		{"duplicate", []core.Fragment{fragment("cte_1", "resources", "a"), fragment("cte_1", "resources", "b")}, cte.ErrDuplicateName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := cte.Build(tt.frags, base)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	_, err := cte.Build(nil, base)
	assert.Error(t, err)
}

func TestAssemble(t *testing.T) {
	sql, err := cte.Assemble([]core.CTE{
		{Name: "cte_1", Body: "SELECT 1"},
		{Name: "cte_2", Body: "SELECT 2", DependsOn: []string{"cte_1"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "WITH cte_1 AS (SELECT 1),\ncte_2 AS (SELECT 2)\nSELECT id, value AS result FROM cte_2 ORDER BY id", sql)
}

func TestAssembleDropsUnreachable(t *testing.T) {
	sql, err := cte.Assemble([]core.CTE{
		{Name: "cte_1", Body: "SELECT 1"},
		{Name: "cte_2", Body: "SELECT 2"},
		{Name: "cte_3", Body: "SELECT 3", DependsOn: []string{"cte_2"}},
	})
	require.NoError(t, err)
	assert.False(t, strings.Contains(sql, "cte_1"))
	assert.True(t, strings.HasPrefix(sql, "WITH cte_2 AS"))
}

func TestAssembleErrors(t *testing.T) {
	tests := []struct {
		name string
		ctes []core.CTE
		want error
		msg  string
	}{
		{
			name: "missing",
			ctes: []core.CTE{{Name: "cte_1", DependsOn: []string{"cte_0"}}},
			want: cte.ErrMissingDependency,
			msg:  "assemble cte_1: depends on an unknown CTE cte_0",
		},
		{
			name: "forward",
			ctes: []core.CTE{
				{Name: "cte_1", DependsOn: []string{"cte_2"}},
				{Name: "cte_2"},
			},
			want: cte.ErrForwardDependency,
			msg:  "assemble cte_1: depends on a later CTE cte_2",
		},
		{
			name: "cycle",
			ctes: []core.CTE{
				{Name: "cte_1", DependsOn: []string{"cte_2"}},
				{Name: "cte_2", DependsOn: []string{"cte_1"}},
			},
			want: cte.ErrCycle,
			msg:  "cte_1 -> cte_2 -> cte_1",
		},
		{
			name: "self",
			ctes: []core.CTE{{Name: "cte_1", DependsOn: []string{"cte_1"}}},
			want: cte.ErrCycle,
			msg:  "cte_1 -> cte_1",
		},
		{
			name: "duplicate",
			ctes: []core.CTE{{Name: "cte_1"}, {Name: "cte_1"}},
			want: cte.ErrDuplicateName,
			msg:  "duplicate CTE name",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, err := cte.Assemble(tt.ctes)
			require.Error(t, err)
			assert.Empty(t, sql)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.Contains(t, err.Error(), tt.msg)

			var ae *cte.AssemblyError
			assert.ErrorAs(t, err, &ae)
		})
	}
}
