package change

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func schemaEvent(oldSchema, newSchema map[string]interface{}) *Event {
	return &Event{
		ConstructType: "engine",
		ConstructKey:  "argument_mapper",
		ChangeType:    "update",
		Diff:          map[string]interface{}{"canonical_schema": true},
		OldValue:      map[string]interface{}{"canonical_schema": oldSchema},
		NewValue:      map[string]interface{}{"canonical_schema": newSchema},
	}
}

func TestHintsForAddedAndRemovedSchemaKeys(t *testing.T) {
	e := schemaEvent(
		map[string]interface{}{"a": 1, "b": 2},
		map[string]interface{}{"a": 1, "c": 3},
	)

	hints := HintsFor(e)
	require.Len(t, hints, 2)

	assert.Equal(t, "additive", hints[0].MigrationType)
	assert.Equal(t, "none_required", hints[0].ConsumerAction)
	assert.Contains(t, hints[0].Change, "c")

	assert.Equal(t, "breaking", hints[1].MigrationType)
	assert.Equal(t, "required", hints[1].ConsumerAction)
	assert.Contains(t, hints[1].Change, "b")
}

func TestHintsForPromptChange(t *testing.T) {
	e := &Event{
		ConstructType: "engine",
		ConstructKey:  "argument_mapper",
		ChangeType:    "update",
		Diff:          map[string]interface{}{"extraction_prompt": true},
	}

	hints := HintsFor(e)
	require.Len(t, hints, 1)
	assert.Equal(t, "compatible", hints[0].MigrationType)
	assert.Equal(t, "recommended", hints[0].ConsumerAction)
	assert.Equal(t, "Updated extraction prompt", hints[0].Change)
}

func TestHintsForFallsBackToGenericHint(t *testing.T) {
	summary := "Renamed the engine"
	e := &Event{
		ConstructType: "engine",
		ConstructKey:  "argument_mapper",
		ChangeType:    "update",
		ChangeSummary: &summary,
	}

	hints := HintsFor(e)
	require.Len(t, hints, 1)
	assert.Equal(t, "compatible", hints[0].MigrationType)
	assert.Equal(t, summary, hints[0].Change)
}

func TestHintsForIgnoresNonEngineDiffs(t *testing.T) {
	e := &Event{
		ConstructType: "paradigm",
		ConstructKey:  "systems_thinking",
		ChangeType:    "update",
		Diff:          map[string]interface{}{"canonical_schema": true},
	}

	hints := HintsFor(e)
	require.Len(t, hints, 1)
	assert.Equal(t, "General update", hints[0].Change)
}

func TestHintsForSkipsSchemaComparisonWhenSideMissing(t *testing.T) {
	e := schemaEvent(nil, map[string]interface{}{"a": 1})

	hints := HintsFor(e)
	require.Len(t, hints, 1)
	assert.Equal(t, "General update", hints[0].Change)
}
