package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSuggestionsDirectJSON(t *testing.T) {
	set := ParseSuggestions(`{"suggestions":[{"title":"t","content":"c","rationale":"r"}],"analysis_summary":"ok"}`)

	require.Len(t, set.Suggestions, 1)
	s := set.Suggestions[0]
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "t", s.Title)
	assert.Equal(t, "c", s.Content)
	assert.Equal(t, "r", s.Rationale)
	assert.Equal(t, 0.8, s.Confidence)
	assert.Equal(t, "ok", set.AnalysisSummary)
}

func TestParseSuggestionsKeepsExplicitFields(t *testing.T) {
	set := ParseSuggestions(`{"suggestions":[{"id":"abc","title":"t","content":"c","confidence":0.95,"connections":["x","y"]}]}`)

	require.Len(t, set.Suggestions, 1)
	s := set.Suggestions[0]
	assert.Equal(t, "abc", s.ID)
	assert.Equal(t, 0.95, s.Confidence)
	assert.Equal(t, []string{"x", "y"}, s.Connections)
}

func TestParseSuggestionsFencedBlock(t *testing.T) {
	response := "Here is my analysis:\n```json\n{\"suggestions\":[{\"title\":\"t\",\"content\":\"c\"}]}\n```\nHope this helps."
	set := ParseSuggestions(response)

	require.Len(t, set.Suggestions, 1)
	assert.Equal(t, "t", set.Suggestions[0].Title)
	assert.Equal(t, 0.8, set.Suggestions[0].Confidence)
}

func TestParseSuggestionsBraceScan(t *testing.T) {
	response := `The result is {"suggestions":[{"title":"t","content":"c"}]} as requested.`
	set := ParseSuggestions(response)

	require.Len(t, set.Suggestions, 1)
	assert.Equal(t, "t", set.Suggestions[0].Title)
}

func TestParseSuggestionsRawTextFallback(t *testing.T) {
	set := ParseSuggestions("hello")

	require.Len(t, set.Suggestions, 1)
	s := set.Suggestions[0]
	assert.Equal(t, "hello", s.Content)
	assert.Equal(t, 0.6, s.Confidence)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "Response was returned as raw text.", set.AnalysisSummary)
}

func TestParseSuggestionsJSONWithoutSuggestionsKey(t *testing.T) {
	set := ParseSuggestions(`{"answer": 42}`)

	require.Len(t, set.Suggestions, 1)
	assert.Equal(t, 0.6, set.Suggestions[0].Confidence)
}

func TestParseSuggestionsEmptyResponse(t *testing.T) {
	set := ParseSuggestions("")

	assert.Empty(t, set.Suggestions)
	assert.Equal(t, "No response received.", set.AnalysisSummary)
}
