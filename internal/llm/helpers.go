package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/analyzerhq/analyzer-console/internal/services/engine"
	"github.com/analyzerhq/analyzer-console/internal/services/paradigm"
	"github.com/analyzerhq/analyzer-console/pkg/logger"
)

// Completer abstracts the completion call so helpers can be tested without
// the live API
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Helpers implements the AI-assisted editing operations. Each helper fetches
// entity state, builds one system+user prompt pair, makes a single completion
// call and parses the result.
type Helpers struct {
	engines   *engine.Service
	paradigms *paradigm.Service
	llm       Completer
	logger    *logger.Logger
}

// NewHelpers creates the helper set
func NewHelpers(engines *engine.Service, paradigms *paradigm.Service, llm Completer, logger *logger.Logger) *Helpers {
	return &Helpers{
		engines:   engines,
		paradigms: paradigms,
		llm:       llm,
		logger:    logger,
	}
}

// ParadigmSuggestionRequest asks for extension suggestions for a paradigm
type ParadigmSuggestionRequest struct {
	ParadigmKey string  `json:"paradigm_key"`
	Query       string  `json:"query"`
	Layer       *string `json:"layer,omitempty"`
	Field       *string `json:"field,omitempty"`
}

// ParadigmSuggestionResponse carries the parsed suggestions
type ParadigmSuggestionResponse struct {
	ParadigmKey     string       `json:"paradigm_key"`
	Query           string       `json:"query"`
	Layer           *string      `json:"layer,omitempty"`
	Field           *string      `json:"field,omitempty"`
	Suggestions     []Suggestion `json:"suggestions"`
	AnalysisSummary string       `json:"analysis_summary"`
}

const paradigmOntologyPrompt = `You are an expert in philosophical paradigms and theoretical frameworks.
You help users extend and improve paradigm definitions in a 4-layer ontology system.

The 4 layers are:
- Foundational: Core assumptions (assumptions), tensions (core_tensions), and scope conditions (scope_conditions)
- Structural: Primary entities (primary_entities), relations (relations), and levels of analysis (levels_of_analysis)
- Dynamic: Change mechanisms (change_mechanisms), temporal patterns (temporal_patterns), transformation processes (transformation_processes)
- Explanatory: Key concepts (key_concepts), analytical methods (analytical_methods), problem diagnosis (problem_diagnosis), ideal state (ideal_state)

IMPORTANT: Return your response as valid JSON in this EXACT format:

{
  "suggestions": [
    {
      "title": "Short label (3-5 words)",
      "content": "The COMPLETE item to add - this exact text will be saved",
      "rationale": "Why this should be added (2-3 sentences)",
      "connections": ["related_field_1", "related_field_2"]
    }
  ],
  "analysis_summary": "Brief overall analysis (1-2 sentences)"
}
%s
Return 3-5 specific, actionable suggestions. The content field is what gets saved - make it complete and properly formatted.
Do NOT include any text outside the JSON structure. Only output valid JSON.`

func fieldFormatGuide(field string) string {
	switch field {
	case "core_tensions":
		return `
For core_tensions, format content as: "X vs Y - brief description"
Example: "Reform vs Revolution - gradual change within system versus complete overthrow"
The content field should contain the COMPLETE tension in this format.`
	case "assumptions", "scope_conditions":
		return `
Format content as a complete, standalone statement that can be added directly.`
	case "primary_entities", "key_concepts":
		return `
Format content as: "Name - brief definition or description"
Example: "Surplus Value - the difference between what workers produce and what they're paid"
For title, just use the name, don't add words like "Entity" or "Concept".`
	case "relations", "change_mechanisms":
		return `
Format content as a complete description of the relation or mechanism.`
	}
	return ""
}

// ParadigmSuggestions generates structured extension suggestions for a
// paradigm, optionally focused on one layer or field
func (h *Helpers) ParadigmSuggestions(ctx context.Context, req ParadigmSuggestionRequest) (*ParadigmSuggestionResponse, error) {
	p, err := h.paradigms.Get(ctx, req.ParadigmKey)
	if err != nil {
		return nil, err
	}

	field := ""
	if req.Field != nil {
		field = *req.Field
	}
	systemPrompt := fmt.Sprintf(paradigmOntologyPrompt, fieldFormatGuide(field))

	layerFocus := ""
	if req.Layer != nil {
		layerFocus = fmt.Sprintf("\n**Focus on layer**: %s", *req.Layer)
		if req.Field != nil {
			layerFocus += fmt.Sprintf("\n**Focus on field**: %s", *req.Field)
		}
	}

	userPrompt := fmt.Sprintf(`Analyze this paradigm and generate suggestions:

**Paradigm**: %s
**Guiding Thinkers**: %s
**Description**: %s

**Current Definition**:
- Foundational: %s
- Structural: %s
- Dynamic: %s
- Explanatory: %s

**User Query**: %s%s

Generate 3-5 suggestions that could be added to strengthen this paradigm. Each suggestion should be a discrete, standalone item suitable for direct addition.`,
		p.ParadigmName, p.GuidingThinkers, p.Description,
		compactJSON(p.Foundational), compactJSON(p.Structural),
		compactJSON(p.Dynamic), compactJSON(p.Explanatory),
		req.Query, layerFocus)

	response, err := h.llm.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}
	parsed := ParseSuggestions(response)

	return &ParadigmSuggestionResponse{
		ParadigmKey:     req.ParadigmKey,
		Query:           req.Query,
		Layer:           req.Layer,
		Field:           req.Field,
		Suggestions:     parsed.Suggestions,
		AnalysisSummary: parsed.AnalysisSummary,
	}, nil
}

// PromptImproveRequest asks for improvements to one engine prompt
type PromptImproveRequest struct {
	EngineKey       string  `json:"engine_key"`
	PromptType      string  `json:"prompt_type"`
	ImprovementGoal string  `json:"improvement_goal"`
	CurrentPrompt   *string `json:"current_prompt,omitempty"`
}

// PromptImproveResponse carries the improved prompt text
type PromptImproveResponse struct {
	EngineKey      string   `json:"engine_key"`
	PromptType     string   `json:"prompt_type"`
	OriginalPrompt string   `json:"original_prompt"`
	ImprovedPrompt string   `json:"improved_prompt"`
	ChangesMade    []string `json:"changes_made"`
	Explanation    string   `json:"explanation"`
}

// ImprovePrompt generates an improved version of one of an engine's stage
// prompts
func (h *Helpers) ImprovePrompt(ctx context.Context, req PromptImproveRequest) (*PromptImproveResponse, error) {
	e, err := h.engines.Get(ctx, req.EngineKey)
	if err != nil {
		return nil, err
	}

	var stored *string
	switch req.PromptType {
	case "extraction":
		stored = e.ExtractionPrompt
	case "curation":
		stored = e.CurationPrompt
	case "concretization":
		stored = e.ConcretizationPrompt
	default:
		return nil, fmt.Errorf("invalid prompt type: %s", req.PromptType)
	}

	currentPrompt := ""
	if req.CurrentPrompt != nil && *req.CurrentPrompt != "" {
		currentPrompt = *req.CurrentPrompt
	} else if stored != nil {
		currentPrompt = *stored
	}
	if currentPrompt == "" {
		return nil, fmt.Errorf("no %s prompt found", req.PromptType)
	}

	systemPrompt := `You are an expert prompt engineer specializing in analytical extraction prompts.
You help improve prompts for analysis engines that extract structured insights from documents.

Key principles:
- Clarity and specificity in instructions
- Proper handling of edge cases
- Consistent output formatting
- Avoiding common pitfalls (hallucination, over-extraction, etc.)

Provide the improved prompt along with a clear explanation of changes made.`

	userPrompt := fmt.Sprintf(`Improve this %s prompt for the "%s" engine.

**Engine Description**: %s
**Improvement Goal**: %s

**Current Prompt**:
`+"```\n%s\n```"+`

Provide:
1. The improved prompt
2. A list of specific changes made
3. Explanation of why each change helps`,
		req.PromptType, e.EngineName, e.Description, req.ImprovementGoal,
		truncate(currentPrompt, 8000))

	response, err := h.llm.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}

	original := currentPrompt
	if len(original) > 2000 {
		original = original[:2000] + "..."
	}

	return &PromptImproveResponse{
		EngineKey:      req.EngineKey,
		PromptType:     req.PromptType,
		OriginalPrompt: original,
		ImprovedPrompt: response,
		ChangesMade: []string{
			fmt.Sprintf("Analyzed and improved based on goal: %s", req.ImprovementGoal),
		},
		Explanation: "Improvements generated based on prompt engineering practices.",
	}, nil
}

// CompareParadigmsRequest asks for a comparison of two paradigms
type CompareParadigmsRequest struct {
	ParadigmA string  `json:"paradigm_a"`
	ParadigmB string  `json:"paradigm_b"`
	FocusArea *string `json:"focus_area,omitempty"`
}

// CompareParadigmsResponse carries the comparison text and the engines both
// paradigms can drive
type CompareParadigmsResponse struct {
	ParadigmA     string   `json:"paradigm_a"`
	ParadigmB     string   `json:"paradigm_b"`
	Comparison    string   `json:"comparison"`
	SharedEngines []string `json:"shared_engines"`
}

// CompareParadigms analyzes two paradigms for complementarities, tensions and
// synthesis opportunities
func (h *Helpers) CompareParadigms(ctx context.Context, req CompareParadigmsRequest) (*CompareParadigmsResponse, error) {
	a, err := h.paradigms.Get(ctx, req.ParadigmA)
	if err != nil {
		return nil, err
	}
	b, err := h.paradigms.Get(ctx, req.ParadigmB)
	if err != nil {
		return nil, err
	}

	systemPrompt := `You are an expert in comparative philosophy and theoretical frameworks.
Analyze paradigms to identify:
- Complementarities (where they work together)
- Tensions (where they conflict)
- Blind spots (what each misses that the other captures)
- Synthesis opportunities (how they might be combined)`

	focus := ""
	if req.FocusArea != nil && *req.FocusArea != "" {
		focus = fmt.Sprintf("**Focus Area**: %s\n\n", *req.FocusArea)
	}

	userPrompt := fmt.Sprintf(`Compare these two paradigms:

**Paradigm A: %s**
%s

**Paradigm B: %s**
%s

%sProvide a structured comparison covering:
1. Key complementarities
2. Fundamental tensions
3. Blind spots each fills for the other
4. Potential synthesis points`,
		a.ParadigmName, a.Primer(), b.ParadigmName, b.Primer(), focus)

	response, err := h.llm.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}

	return &CompareParadigmsResponse{
		ParadigmA:     req.ParadigmA,
		ParadigmB:     req.ParadigmB,
		Comparison:    response,
		SharedEngines: intersect(a.CompatibleEngines, b.CompatibleEngines),
	}, nil
}

// CritiquePatternsResponse carries suggested new critique patterns alongside
// the existing ones
type CritiquePatternsResponse struct {
	ParadigmKey       string                     `json:"paradigm_key"`
	ExistingPatterns  []paradigm.CritiquePattern `json:"existing_patterns"`
	SuggestedPatterns string                     `json:"suggested_patterns"`
}

// GenerateCritiquePatterns generates new critique patterns complementing a
// paradigm's existing ones
func (h *Helpers) GenerateCritiquePatterns(ctx context.Context, paradigmKey string) (*CritiquePatternsResponse, error) {
	p, err := h.paradigms.Get(ctx, paradigmKey)
	if err != nil {
		return nil, err
	}

	systemPrompt := `You are an expert in philosophical critique and argument analysis.
Generate reusable critique patterns that identify common analytical gaps from a specific paradigm's perspective.

Each pattern should have:
- pattern: A short identifier
- diagnostic: What the pattern identifies as problematic
- fix: A template for fixing the issue with {placeholders} for specific content`

	userPrompt := fmt.Sprintf(`Generate critique patterns for the %s paradigm:

**Current patterns**:
%s

**Paradigm Overview**:
%s

Generate 3-5 NEW critique patterns that complement the existing ones.
Focus on common analytical gaps that this paradigm would identify.`,
		p.ParadigmName, compactJSON(p.CritiquePatterns), p.Primer())

	response, err := h.llm.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}

	return &CritiquePatternsResponse{
		ParadigmKey:       paradigmKey,
		ExistingPatterns:  p.CritiquePatterns,
		SuggestedPatterns: response,
	}, nil
}

// ProfileGenerateRequest asks for a generated engine profile
type ProfileGenerateRequest struct {
	EngineKey string  `json:"engine_key"`
	Emphasis  *string `json:"emphasis,omitempty"`
}

// ProfileGenerateResponse carries the generated profile document
type ProfileGenerateResponse struct {
	EngineKey string                 `json:"engine_key"`
	Profile   map[string]interface{} `json:"profile"`
	RawText   string                 `json:"raw_text,omitempty"`
}

// GenerateProfile drafts an engine profile document (strengths, limitations,
// ideal inputs) from the engine's stored definition. The parsed JSON object is
// returned when the completion is well-formed, otherwise the raw text is
// passed through for manual editing.
func (h *Helpers) GenerateProfile(ctx context.Context, req ProfileGenerateRequest) (*ProfileGenerateResponse, error) {
	e, err := h.engines.Get(ctx, req.EngineKey)
	if err != nil {
		return nil, err
	}

	systemPrompt := `You are an expert in analytical methodology documentation.
Generate an engine profile as a JSON object with these keys:
- "strengths": list of what this engine does well
- "limitations": list of known blind spots
- "ideal_inputs": description of documents this engine suits best
- "output_characteristics": what its output looks like
Only output valid JSON.`

	emphasis := ""
	if req.Emphasis != nil && *req.Emphasis != "" {
		emphasis = fmt.Sprintf("\n**Emphasis**: %s", *req.Emphasis)
	}

	userPrompt := fmt.Sprintf(`Generate a profile for the "%s" engine.

**Description**: %s
**Category**: %s
**Extraction Focus**: %s
**Canonical Schema**: %s%s`,
		e.EngineName, e.Description, e.Category,
		strings.Join(e.ExtractionFocus, ", "), compactJSON(e.CanonicalSchema), emphasis)

	response, err := h.llm.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}

	result := &ProfileGenerateResponse{EngineKey: req.EngineKey}
	if profile, ok := tryParseObject(response); ok {
		result.Profile = profile
	} else {
		result.RawText = response
	}
	return result, nil
}

// StageContextImproveRequest asks for improvements to an engine's stage
// context
type StageContextImproveRequest struct {
	EngineKey       string `json:"engine_key"`
	ImprovementGoal string `json:"improvement_goal"`
}

// StageContextImproveResponse carries the suggested stage context changes
type StageContextImproveResponse struct {
	EngineKey       string       `json:"engine_key"`
	CurrentContext  interface{}  `json:"current_context"`
	Suggestions     []Suggestion `json:"suggestions"`
	AnalysisSummary string       `json:"analysis_summary"`
}

// ImproveStageContext suggests improvements to an engine's structured stage
// context fields
func (h *Helpers) ImproveStageContext(ctx context.Context, req StageContextImproveRequest) (*StageContextImproveResponse, error) {
	e, err := h.engines.Get(ctx, req.EngineKey)
	if err != nil {
		return nil, err
	}
	if e.StageContext == nil {
		return nil, fmt.Errorf("engine has no stage context")
	}

	systemPrompt := `You are an expert in analytical prompt design.
You improve structured stage context documents with fields like core_question, extraction_steps, curation_guidance and output_format.

IMPORTANT: Return your response as valid JSON:
{
  "suggestions": [
    {
      "title": "Short label",
      "content": "The improved field value - this exact text will be saved",
      "rationale": "Why this improves the stage context",
      "connections": ["field_name"]
    }
  ],
  "analysis_summary": "Brief overall analysis"
}
Only output valid JSON.`

	userPrompt := fmt.Sprintf(`Improve the stage context for the "%s" engine.

**Engine Description**: %s
**Improvement Goal**: %s

**Current Stage Context**:
%s

Generate 3-5 concrete field-level improvements.`,
		e.EngineName, e.Description, req.ImprovementGoal, compactJSON(e.StageContext))

	response, err := h.llm.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}
	parsed := ParseSuggestions(response)

	return &StageContextImproveResponse{
		EngineKey:       req.EngineKey,
		CurrentContext:  e.StageContext,
		Suggestions:     parsed.Suggestions,
		AnalysisSummary: parsed.AnalysisSummary,
	}, nil
}

func compactJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}

func tryParseObject(text string) (map[string]interface{}, bool) {
	attempt := func(s string) (map[string]interface{}, bool) {
		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(s), &obj); err != nil {
			return nil, false
		}
		return obj, true
	}

	if obj, ok := attempt(text); ok {
		return obj, true
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end > start {
		return attempt(text[start : end+1])
	}
	return nil, false
}

func intersect(a, b []string) []string {
	inA := make(map[string]bool, len(a))
	for _, k := range a {
		inA[k] = true
	}
	shared := []string{}
	for _, k := range b {
		if inA[k] {
			shared = append(shared, k)
		}
	}
	sort.Strings(shared)
	return shared
}
