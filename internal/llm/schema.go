package llm

import (
	"context"
	"fmt"
	"sort"
)

// SchemaValidateRequest asks for validation of a proposed engine schema
type SchemaValidateRequest struct {
	EngineKey         string                 `json:"engine_key"`
	ProposedSchema    map[string]interface{} `json:"proposed_schema"`
	ChangeDescription string                 `json:"change_description"`
}

// SchemaIssue is one structural problem found in a proposed schema
type SchemaIssue struct {
	Severity string `json:"severity"`
	Field    string `json:"field"`
	Message  string `json:"message"`
}

// SchemaImpact classifies the differences between the current and proposed
// schema key sets
type SchemaImpact struct {
	BreakingChanges []string `json:"breaking_changes"`
	AdditiveChanges []string `json:"additive_changes"`
	ModifiedFields  []string `json:"modified_fields"`
}

// SchemaValidateResponse carries the validation verdict and impact analysis
type SchemaValidateResponse struct {
	EngineKey      string        `json:"engine_key"`
	IsValid        bool          `json:"is_valid"`
	Issues         []SchemaIssue `json:"issues"`
	ImpactAnalysis SchemaImpact  `json:"impact_analysis"`
	Suggestions    []string      `json:"suggestions"`
}

// CheckSchema validates a proposed schema. Validation is shallow: only the
// top-level shape is checked; nested structures are not inspected further.
func CheckSchema(proposed map[string]interface{}) []SchemaIssue {
	issues := []SchemaIssue{}
	if proposed == nil {
		issues = append(issues, SchemaIssue{
			Severity: "error",
			Field:    "root",
			Message:  "Schema must be a mapping",
		})
	}
	return issues
}

// AnalyzeSchemaImpact compares top-level key sets between the current and
// proposed schemas. Removed keys are breaking, added keys are additive. No
// deep structural diff is attempted.
func AnalyzeSchemaImpact(current, proposed map[string]interface{}) SchemaImpact {
	impact := SchemaImpact{
		BreakingChanges: []string{},
		AdditiveChanges: []string{},
		ModifiedFields:  []string{},
	}
	if len(current) == 0 {
		return impact
	}

	removed := []string{}
	for k := range current {
		if _, ok := proposed[k]; !ok {
			removed = append(removed, k)
		}
	}
	added := []string{}
	for k := range proposed {
		if _, ok := current[k]; !ok {
			added = append(added, k)
		}
	}
	sort.Strings(removed)
	sort.Strings(added)

	for _, k := range removed {
		impact.BreakingChanges = append(impact.BreakingChanges, fmt.Sprintf("Removed field: %s", k))
	}
	for _, k := range added {
		impact.AdditiveChanges = append(impact.AdditiveChanges, fmt.Sprintf("Added field: %s", k))
	}
	return impact
}

// ValidateSchema validates a proposed schema change against an engine's
// current schema and asks the completion API for a deeper written assessment
func (h *Helpers) ValidateSchema(ctx context.Context, req SchemaValidateRequest) (*SchemaValidateResponse, error) {
	e, err := h.engines.Get(ctx, req.EngineKey)
	if err != nil {
		return nil, err
	}

	issues := CheckSchema(req.ProposedSchema)
	impact := AnalyzeSchemaImpact(e.CanonicalSchema, req.ProposedSchema)

	systemPrompt := `You are an expert in JSON schema design for analytical engines.
Analyze schema changes and provide impact assessment and suggestions.`

	userPrompt := fmt.Sprintf(`Analyze this schema change for the "%s" engine:

**Engine Description**: %s
**Change Description**: %s

**Current Schema**:
%s

**Proposed Schema**:
%s

Provide:
1. Is this a valid, well-structured schema?
2. What are the implications of this change?
3. Any suggestions for improvement?`,
		e.EngineName, e.Description, req.ChangeDescription,
		compactJSON(e.CanonicalSchema), compactJSON(req.ProposedSchema))

	response, err := h.llm.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}

	isValid := true
	for _, issue := range issues {
		if issue.Severity == "error" {
			isValid = false
		}
	}

	suggestions := []string{}
	if response != "" {
		suggestions = append(suggestions, response)
	}

	return &SchemaValidateResponse{
		EngineKey:      req.EngineKey,
		IsValid:        isValid,
		Issues:         issues,
		ImpactAnalysis: impact,
		Suggestions:    suggestions,
	}, nil
}
