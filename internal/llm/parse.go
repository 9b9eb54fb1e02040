package llm

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// Suggestion is one structured item parsed from a completion
type Suggestion struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	Rationale   string   `json:"rationale"`
	Connections []string `json:"connections"`
	Confidence  float64  `json:"confidence"`
}

// SuggestionSet is the parsed shape of a suggestions completion
type SuggestionSet struct {
	Suggestions     []Suggestion `json:"suggestions"`
	AnalysisSummary string       `json:"analysis_summary"`
}

// ParseSuggestions extracts a SuggestionSet from a completion. Parse attempts
// run in order: direct JSON, fenced json block, first-{ to last-} substring.
// When all fail the raw text is wrapped as a single low-confidence suggestion,
// so the result is always usable. Parsed suggestions get an id and a default
// confidence of 0.8 when missing.
func ParseSuggestions(response string) SuggestionSet {
	if response == "" {
		return SuggestionSet{
			Suggestions:     []Suggestion{},
			AnalysisSummary: "No response received.",
		}
	}

	if set, ok := tryParseSet(response); ok {
		return set
	}

	if idx := strings.Index(response, "```json"); idx != -1 {
		rest := response[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end != -1 {
			if set, ok := tryParseSet(strings.TrimSpace(rest[:end])); ok {
				return set
			}
		}
	}

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start != -1 && end > start {
		if set, ok := tryParseSet(response[start : end+1]); ok {
			return set
		}
	}

	return SuggestionSet{
		Suggestions: []Suggestion{
			{
				ID:          uuid.New().String(),
				Title:       "AI Suggestion",
				Content:     response,
				Rationale:   "Raw response from AI (structured parsing failed)",
				Connections: []string{},
				Confidence:  0.6,
			},
		},
		AnalysisSummary: "Response was returned as raw text.",
	}
}

func tryParseSet(text string) (SuggestionSet, bool) {
	var raw struct {
		Suggestions     []map[string]interface{} `json:"suggestions"`
		AnalysisSummary string                   `json:"analysis_summary"`
	}
	dec := json.NewDecoder(strings.NewReader(text))
	if err := dec.Decode(&raw); err != nil {
		return SuggestionSet{}, false
	}
	if raw.Suggestions == nil {
		return SuggestionSet{}, false
	}

	set := SuggestionSet{
		Suggestions:     make([]Suggestion, 0, len(raw.Suggestions)),
		AnalysisSummary: raw.AnalysisSummary,
	}
	for _, item := range raw.Suggestions {
		s := Suggestion{
			ID:          stringValue(item, "id"),
			Title:       stringValue(item, "title"),
			Content:     stringValue(item, "content"),
			Rationale:   stringValue(item, "rationale"),
			Connections: stringListValue(item, "connections"),
			Confidence:  0.8,
		}
		if s.ID == "" {
			s.ID = uuid.New().String()
		}
		if v, ok := item["confidence"].(float64); ok {
			s.Confidence = v
		}
		if s.Connections == nil {
			s.Connections = []string{}
		}
		set.Suggestions = append(set.Suggestions, s)
	}
	return set, true
}

func stringValue(m map[string]interface{}, key string) string {
	v, _ := m[key].(string)
	return v
}

func stringListValue(m map[string]interface{}, key string) []string {
	raw, ok := m[key].([]interface{})
	if !ok {
		return nil
	}
	items := make([]string, 0, len(raw))
	for _, entry := range raw {
		if s, ok := entry.(string); ok {
			items = append(items, s)
		}
	}
	return items
}
