package composer

import (
	"testing"

	"github.com/analyzerhq/analyzer-console/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestComposer(t *testing.T) *Composer {
	log := logger.New("composer-test", "test")
	log.DisableConsoleOutput()
	c, err := New(log)
	require.NoError(t, err)
	return c
}

func sampleContext() map[string]interface{} {
	return map[string]interface{}{
		"framework":        "argument_mapping",
		"core_question":    "What claims does the text advance?",
		"extraction_steps": []interface{}{"Identify claims", "Identify warrants"},
		"curation_guidance": []interface{}{
			"Merge duplicate claims",
			"Drop claims without textual support",
		},
		"output_format": "nested bullet list",
	}
}

func TestComposeExtraction(t *testing.T) {
	c := newTestComposer(t)

	res, err := c.Compose(Request{
		Stage:        StageExtraction,
		EngineKey:    "argument_mapper",
		StageContext: sampleContext(),
		Audience:     "analyst",
		CanonicalSchema: map[string]interface{}{
			"claims": []interface{}{},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "argument_mapping", res.FrameworkUsed)
	assert.False(t, res.Skipped)
	assert.Contains(t, res.Prompt, "extraction stage")
	assert.Contains(t, res.Prompt, "argument_mapper")
	assert.Contains(t, res.Prompt, "What claims does the text advance?")
	assert.Contains(t, res.Prompt, "1. Identify claims")
	assert.Contains(t, res.Prompt, "2. Identify warrants")
	assert.Contains(t, res.Prompt, `"claims"`)
	assert.Contains(t, res.Prompt, "professional analyst")
}

func TestComposeCuration(t *testing.T) {
	c := newTestComposer(t)

	res, err := c.Compose(Request{
		Stage:        StageCuration,
		EngineKey:    "argument_mapper",
		StageContext: sampleContext(),
	})
	require.NoError(t, err)

	assert.Equal(t, "researcher", res.Audience)
	assert.Contains(t, res.Prompt, "curation stage")
	assert.Contains(t, res.Prompt, "- Merge duplicate claims")
	assert.Contains(t, res.Prompt, "Output format: nested bullet list")
	assert.Contains(t, res.Prompt, "academic researcher")
}

func TestComposeSkipsConcretization(t *testing.T) {
	c := newTestComposer(t)

	ctx := sampleContext()
	ctx["skip_concretization"] = true

	res, err := c.Compose(Request{
		Stage:        StageConcretization,
		EngineKey:    "argument_mapper",
		StageContext: ctx,
	})
	require.NoError(t, err)

	assert.True(t, res.Skipped)
	assert.Empty(t, res.Prompt)
	assert.Equal(t, "argument_mapping", res.FrameworkUsed)
}

func TestComposeConcretizationWhenNotSkipped(t *testing.T) {
	c := newTestComposer(t)

	res, err := c.Compose(Request{
		Stage:        StageConcretization,
		EngineKey:    "argument_mapper",
		StageContext: sampleContext(),
		Audience:     "executive",
	})
	require.NoError(t, err)

	assert.False(t, res.Skipped)
	assert.Contains(t, res.Prompt, "concretization stage")
	assert.Contains(t, res.Prompt, "executive reader")
}

func TestComposeDefaultsFramework(t *testing.T) {
	c := newTestComposer(t)

	res, err := c.Compose(Request{
		Stage:     StageExtraction,
		EngineKey: "argument_mapper",
		StageContext: map[string]interface{}{
			"core_question": "q",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "general", res.FrameworkUsed)
}

func TestComposeRejectsUnknownStage(t *testing.T) {
	c := newTestComposer(t)

	_, err := c.Compose(Request{Stage: "synthesis", StageContext: sampleContext()})
	assert.Error(t, err)
}

func TestComposeRejectsUnknownAudience(t *testing.T) {
	c := newTestComposer(t)

	_, err := c.Compose(Request{
		Stage:        StageExtraction,
		StageContext: sampleContext(),
		Audience:     "robot",
	})
	assert.Error(t, err)
}

func TestComposeRequiresStageContext(t *testing.T) {
	c := newTestComposer(t)

	_, err := c.Compose(Request{Stage: StageExtraction, EngineKey: "argument_mapper"})
	assert.Error(t, err)
}

func TestValidStage(t *testing.T) {
	assert.True(t, ValidStage("extraction"))
	assert.True(t, ValidStage("curation"))
	assert.True(t, ValidStage("concretization"))
	assert.False(t, ValidStage("blend"))
}
