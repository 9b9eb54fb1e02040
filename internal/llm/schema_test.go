package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeSchemaImpact(t *testing.T) {
	current := map[string]interface{}{"a": 1, "b": 2}
	proposed := map[string]interface{}{"a": 1, "c": 3}

	impact := AnalyzeSchemaImpact(current, proposed)

	require.Len(t, impact.BreakingChanges, 1)
	assert.Equal(t, "Removed field: b", impact.BreakingChanges[0])
	require.Len(t, impact.AdditiveChanges, 1)
	assert.Equal(t, "Added field: c", impact.AdditiveChanges[0])
	assert.Empty(t, impact.ModifiedFields)
}

func TestAnalyzeSchemaImpactNoCurrentSchema(t *testing.T) {
	impact := AnalyzeSchemaImpact(nil, map[string]interface{}{"a": 1})

	assert.Empty(t, impact.BreakingChanges)
	assert.Empty(t, impact.AdditiveChanges)
}

func TestAnalyzeSchemaImpactIdenticalSchemas(t *testing.T) {
	schema := map[string]interface{}{"a": 1, "b": 2}
	impact := AnalyzeSchemaImpact(schema, schema)

	assert.Empty(t, impact.BreakingChanges)
	assert.Empty(t, impact.AdditiveChanges)
}

func TestCheckSchemaRejectsNil(t *testing.T) {
	issues := CheckSchema(nil)

	require.Len(t, issues, 1)
	assert.Equal(t, "error", issues[0].Severity)
	assert.Equal(t, "root", issues[0].Field)
}

func TestCheckSchemaAcceptsNestedStructures(t *testing.T) {
	issues := CheckSchema(map[string]interface{}{
		"claims": []interface{}{
			map[string]interface{}{"text": "string"},
		},
		"meta": map[string]interface{}{"version": 1},
	})

	assert.Empty(t, issues)
}
