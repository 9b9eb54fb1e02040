package paradigm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/analyzerhq/analyzer-console/pkg/logger"
	"github.com/google/uuid"
)

// Completer is the external completion capability consumed by the branch
// generation workflow.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// GenerationStore is the persistence surface the branch generator needs.
// Service implements it; tests substitute a fake.
type GenerationStore interface {
	Get(ctx context.Context, paradigmKey string) (*Paradigm, error)
	BeginGeneration(ctx context.Context, paradigmKey string) error
	SaveGenerated(ctx context.Context, p *Paradigm) error
}

type fieldShape int

const (
	shapeText fieldShape = iota
	shapeStringList
	shapeTraitList
	shapeCritiqueList
)

type branchField struct {
	Path        string
	Layer       string
	Description string
	Shape       fieldShape
}

// branchFields is the fixed generation order. Identity fields come first so
// later layer fields can build on them through the accumulated context.
var branchFields = []branchField{
	{"description", "identity", "A 2-3 sentence description of what this paradigm is and how it differs from its parent", shapeText},
	{"guiding_thinkers", "identity", "The key thinkers whose work grounds this paradigm, as a comma-separated list with short qualifiers", shapeText},
	{"historical_context", "identity", "The intellectual and historical context this paradigm emerged from", shapeText},
	{"foundational.assumptions", "foundational", "Core assumptions this paradigm makes about how the world works", shapeStringList},
	{"foundational.core_tensions", "foundational", "Central tensions or contradictions the paradigm grapples with", shapeStringList},
	{"foundational.scope_conditions", "foundational", "Conditions under which the paradigm's claims apply", shapeStringList},
	{"structural.primary_entities", "structural", "The primary entities or units of analysis the paradigm recognizes", shapeStringList},
	{"structural.relations", "structural", "The relations between entities the paradigm treats as significant", shapeStringList},
	{"structural.levels_of_analysis", "structural", "The levels of analysis the paradigm operates at", shapeStringList},
	{"dynamic.change_mechanisms", "dynamic", "Mechanisms through which change occurs according to the paradigm", shapeStringList},
	{"dynamic.temporal_patterns", "dynamic", "Temporal patterns the paradigm expects (cycles, ruptures, gradual drift)", shapeStringList},
	{"dynamic.transformation_processes", "dynamic", "Processes by which systems transform from one state to another", shapeStringList},
	{"explanatory.key_concepts", "explanatory", "Key analytical concepts the paradigm contributes", shapeStringList},
	{"explanatory.analytical_methods", "explanatory", "Analytical methods practitioners of this paradigm use", shapeStringList},
	{"explanatory.problem_diagnosis", "explanatory", "How the paradigm diagnoses what is going wrong in its domain", shapeStringList},
	{"explanatory.ideal_state", "explanatory", "What a good or resolved state looks like under this paradigm", shapeStringList},
	{"trait_definitions", "traits", "Named traits of this paradigm, each with a description and concrete items", shapeTraitList},
	{"critique_patterns", "critique", "Recurring critique patterns: what the paradigm spots, how it diagnoses it, what fix it proposes", shapeCritiqueList},
}

const (
	maxPrimerChars  = 6000
	maxContextChars = 3000
	maxContextItems = 5
)

// FieldError records one failed field during generation
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// GenerationResult summarizes a completed branch generation run
type GenerationResult struct {
	ParadigmKey      string       `json:"paradigm_key"`
	GenerationStatus string       `json:"generation_status"`
	GeneratedFields  []string     `json:"generated_fields"`
	Errors           []FieldError `json:"errors"`
}

// FieldProgress reports completion for one generation field
type FieldProgress struct {
	Field    string `json:"field"`
	Layer    string `json:"layer"`
	Complete bool   `json:"complete"`
}

// Progress reports derived branch generation progress
type Progress struct {
	ParadigmKey      string          `json:"paradigm_key"`
	GenerationStatus string          `json:"generation_status"`
	TotalFields      int             `json:"total_fields"`
	CompletedFields  int             `json:"completed_fields"`
	Fields           []FieldProgress `json:"fields"`
}

// Generator runs the sequential branch generation workflow
type Generator struct {
	store  GenerationStore
	llm    Completer
	logger *logger.Logger
}

// NewGenerator creates a branch generator
func NewGenerator(store GenerationStore, llm Completer, logger *logger.Logger) *Generator {
	return &Generator{
		store:  store,
		llm:    llm,
		logger: logger,
	}
}

// BranchRequest holds the fields accepted when creating a branch paradigm
type BranchRequest struct {
	ParadigmKey        string `json:"paradigm_key"`
	ParadigmName       string `json:"paradigm_name"`
	SynthesisDirective string `json:"synthesis_directive"`
}

// CreateBranch creates a pending branch paradigm under a parent. Field content
// is filled in later by the generation workflow.
func (s *Service) CreateBranch(ctx context.Context, parentKey string, req BranchRequest) (*Paradigm, error) {
	parent, err := s.Get(ctx, parentKey)
	if err != nil {
		return nil, err
	}

	var exists bool
	err = s.db.Pool().QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM paradigms WHERE paradigm_key = $1)", req.ParadigmKey).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check paradigm existence: %w", err)
	}
	if exists {
		return nil, errors.New("paradigm already exists")
	}

	metadata := map[string]interface{}{
		"synthesis_directive": req.SynthesisDirective,
		"branched_from":       parentKey,
		"branched_at":         time.Now().UTC().Format(time.RFC3339),
	}

	query := fmt.Sprintf(`INSERT INTO paradigms (
		id, paradigm_key, version, paradigm_name, description, guiding_thinkers,
		foundational, structural, dynamic, explanatory,
		active_traits, trait_definitions, critique_patterns,
		related_paradigms, primary_engines, compatible_engines,
		status, parent_paradigm_key, branch_metadata, branch_depth, generation_status
	) VALUES ($1, $2, '1.0.0', $3, '', '',
		'{}', '{}', '{}', '{}', '[]', '[]', '[]', '[]', '[]', '[]',
		'draft', $4, $5, $6, 'pending')
	RETURNING %s`, paradigmColumns)

	p, err := scanParadigm(s.db.Pool().QueryRow(ctx, query,
		uuid.New().String(), req.ParadigmKey, req.ParadigmName,
		parentKey, metadata, parent.BranchDepth+1,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create branch paradigm: %w", err)
	}

	s.logger.Infof("Created branch paradigm %s from %s (depth %d)",
		p.ParadigmKey, parentKey, p.BranchDepth)
	return p, nil
}

// BeginGeneration flips a branch paradigm to in_progress. The conditional
// update rejects a second trigger while a run is in flight, and a re-trigger
// of an already complete branch.
func (s *Service) BeginGeneration(ctx context.Context, paradigmKey string) error {
	commandTag, err := s.db.Pool().Exec(ctx,
		`UPDATE paradigms SET generation_status = 'in_progress', updated_at = now()
		 WHERE paradigm_key = $1 AND generation_status IN ('pending', 'failed')`, paradigmKey)
	if err != nil {
		return fmt.Errorf("failed to start branch generation: %w", err)
	}
	if commandTag.RowsAffected() == 0 {
		var exists bool
		if err := s.db.Pool().QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM paradigms WHERE paradigm_key = $1)", paradigmKey).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check paradigm existence: %w", err)
		}
		if !exists {
			return errors.New("paradigm not found")
		}
		return errors.New("branch generation already in progress or complete")
	}
	return nil
}

// SaveGenerated persists every generation-owned field of the paradigm
func (s *Service) SaveGenerated(ctx context.Context, p *Paradigm) error {
	commandTag, err := s.db.Pool().Exec(ctx,
		`UPDATE paradigms SET
			description = $1, guiding_thinkers = $2, historical_context = $3,
			foundational = $4, structural = $5, dynamic = $6, explanatory = $7,
			trait_definitions = $8, critique_patterns = $9,
			branch_metadata = $10, generation_status = $11, status = $12,
			updated_at = now()
		 WHERE paradigm_key = $13`,
		p.Description, p.GuidingThinkers, p.HistoricalContext,
		p.Foundational, p.Structural, p.Dynamic, p.Explanatory,
		p.TraitDefinitions, p.CritiquePatterns,
		p.BranchMetadata, p.GenerationStatus, p.Status,
		p.ParadigmKey)
	if err != nil {
		return fmt.Errorf("failed to save generated paradigm fields: %w", err)
	}
	if commandTag.RowsAffected() == 0 {
		return errors.New("paradigm not found")
	}
	return nil
}

// Generate runs the full sequential workflow: one completion call per field in
// the fixed order, persisting after every field so each later prompt sees the
// earlier results. A single field failure is recorded and skipped.
func (g *Generator) Generate(ctx context.Context, paradigmKey string) (*GenerationResult, error) {
	p, err := g.store.Get(ctx, paradigmKey)
	if err != nil {
		return nil, err
	}
	if p.ParentParadigmKey == nil || *p.ParentParadigmKey == "" {
		return nil, errors.New("paradigm is not a branch")
	}

	parent, err := g.store.Get(ctx, *p.ParentParadigmKey)
	if err != nil {
		return nil, errors.New("parent paradigm not found")
	}

	if err := g.store.BeginGeneration(ctx, paradigmKey); err != nil {
		return nil, err
	}
	p.GenerationStatus = "in_progress"

	directive := ""
	if p.BranchMetadata != nil {
		if d, ok := p.BranchMetadata["synthesis_directive"].(string); ok {
			directive = d
		}
	}
	parentPrimer := truncateTo(parent.Primer(), maxPrimerChars)

	generated := []string{}
	fieldErrors := []FieldError{}

	for _, field := range branchFields {
		value, err := g.generateField(ctx, p, field, parentPrimer, directive)
		if err != nil {
			g.logger.Warnf("Branch %s field %s failed: %v", paradigmKey, field.Path, err)
			fieldErrors = append(fieldErrors, FieldError{Field: field.Path, Error: err.Error()})
			continue
		}
		applyField(p, field, value)

		if err := g.store.SaveGenerated(ctx, p); err != nil {
			g.logger.Errorf("Branch %s field %s persist failed: %v", paradigmKey, field.Path, err)
			fieldErrors = append(fieldErrors, FieldError{Field: field.Path, Error: err.Error()})
			continue
		}
		generated = append(generated, field.Path)
	}

	if len(generated) == 0 {
		p.GenerationStatus = "failed"
	} else {
		p.GenerationStatus = "complete"
		p.Status = "active"
	}

	if p.BranchMetadata == nil {
		p.BranchMetadata = map[string]interface{}{}
	}
	p.BranchMetadata["completed_at"] = time.Now().UTC().Format(time.RFC3339)
	p.BranchMetadata["generated_fields"] = generated
	errorMaps := make([]map[string]interface{}, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		errorMaps = append(errorMaps, map[string]interface{}{"field": fe.Field, "error": fe.Error})
	}
	p.BranchMetadata["errors"] = errorMaps

	if err := g.store.SaveGenerated(ctx, p); err != nil {
		return nil, err
	}

	g.logger.Infof("Branch generation for %s finished: %d/%d fields, status %s",
		paradigmKey, len(generated), len(branchFields), p.GenerationStatus)

	return &GenerationResult{
		ParadigmKey:      paradigmKey,
		GenerationStatus: p.GenerationStatus,
		GeneratedFields:  generated,
		Errors:           fieldErrors,
	}, nil
}

func (g *Generator) generateField(ctx context.Context, p *Paradigm, field branchField, parentPrimer, directive string) (interface{}, error) {
	accumulated := truncateTo(buildContext(p), maxContextChars)

	systemPrompt := fmt.Sprintf(`You are synthesizing a new analytical paradigm branched from a parent paradigm.

PARENT PARADIGM:
%s

SYNTHESIS DIRECTIVE:
%s

You generate one field at a time. Respond with only the requested field content, %s.`,
		parentPrimer, directive, shapeInstruction(field.Shape))

	userPrompt := fmt.Sprintf("Generate the field %q (layer: %s).\n%s", field.Path, field.Layer, field.Description)
	if accumulated != "" {
		userPrompt += "\n\nFIELDS GENERATED SO FAR:\n" + accumulated
	}

	response, err := g.llm.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}

	switch field.Shape {
	case shapeText:
		return parseTextResponse(response), nil
	case shapeStringList:
		return parseStringListResponse(response)
	case shapeTraitList:
		var traits []TraitDefinition
		if err := parseObjectListResponse(response, &traits); err != nil {
			return nil, err
		}
		return traits, nil
	case shapeCritiqueList:
		var patterns []CritiquePattern
		if err := parseObjectListResponse(response, &patterns); err != nil {
			return nil, err
		}
		return patterns, nil
	}
	return nil, fmt.Errorf("unknown field shape for %s", field.Path)
}

func shapeInstruction(shape fieldShape) string {
	switch shape {
	case shapeText:
		return "as plain text"
	case shapeStringList:
		return "as a JSON array of strings"
	case shapeTraitList:
		return `as a JSON array of objects with keys "trait_name", "trait_description", "trait_items"`
	case shapeCritiqueList:
		return `as a JSON array of objects with keys "pattern", "diagnostic", "fix"`
	}
	return ""
}

// buildContext summarizes the identity fields and layer content generated so
// far, bounded per list for prompt size.
func buildContext(p *Paradigm) string {
	var parts []string

	if p.Description != "" {
		parts = append(parts, "description: "+p.Description)
	}
	if p.GuidingThinkers != "" {
		parts = append(parts, "guiding_thinkers: "+p.GuidingThinkers)
	}
	if p.HistoricalContext != nil && *p.HistoricalContext != "" {
		parts = append(parts, "historical_context: "+*p.HistoricalContext)
	}

	for _, field := range branchFields {
		if field.Shape != shapeStringList {
			continue
		}
		items := stringListAt(p, field.Path)
		if len(items) == 0 {
			continue
		}
		shown := items
		suffix := ""
		if len(shown) > maxContextItems {
			shown = shown[:maxContextItems]
			suffix = fmt.Sprintf(" (+%d more)", len(items)-maxContextItems)
		}
		parts = append(parts, field.Path+": "+strings.Join(shown, "; ")+suffix)
	}

	return strings.Join(parts, "\n")
}

func stringListAt(p *Paradigm, path string) []string {
	switch path {
	case "foundational.assumptions":
		return p.Foundational.Assumptions
	case "foundational.core_tensions":
		return p.Foundational.CoreTensions
	case "foundational.scope_conditions":
		return p.Foundational.ScopeConditions
	case "structural.primary_entities":
		return p.Structural.PrimaryEntities
	case "structural.relations":
		return p.Structural.Relations
	case "structural.levels_of_analysis":
		return p.Structural.LevelsOfAnalysis
	case "dynamic.change_mechanisms":
		return p.Dynamic.ChangeMechanisms
	case "dynamic.temporal_patterns":
		return p.Dynamic.TemporalPatterns
	case "dynamic.transformation_processes":
		return p.Dynamic.TransformationProcesses
	case "explanatory.key_concepts":
		return p.Explanatory.KeyConcepts
	case "explanatory.analytical_methods":
		return p.Explanatory.AnalyticalMethods
	case "explanatory.problem_diagnosis":
		return p.Explanatory.ProblemDiagnosis
	case "explanatory.ideal_state":
		return p.Explanatory.IdealState
	}
	return nil
}

func applyField(p *Paradigm, field branchField, value interface{}) {
	switch field.Shape {
	case shapeText:
		text, _ := value.(string)
		switch field.Path {
		case "description":
			p.Description = text
		case "guiding_thinkers":
			p.GuidingThinkers = text
		case "historical_context":
			p.HistoricalContext = &text
		}
	case shapeStringList:
		items, _ := value.([]string)
		switch field.Path {
		case "foundational.assumptions":
			p.Foundational.Assumptions = items
		case "foundational.core_tensions":
			p.Foundational.CoreTensions = items
		case "foundational.scope_conditions":
			p.Foundational.ScopeConditions = items
		case "structural.primary_entities":
			p.Structural.PrimaryEntities = items
		case "structural.relations":
			p.Structural.Relations = items
		case "structural.levels_of_analysis":
			p.Structural.LevelsOfAnalysis = items
		case "dynamic.change_mechanisms":
			p.Dynamic.ChangeMechanisms = items
		case "dynamic.temporal_patterns":
			p.Dynamic.TemporalPatterns = items
		case "dynamic.transformation_processes":
			p.Dynamic.TransformationProcesses = items
		case "explanatory.key_concepts":
			p.Explanatory.KeyConcepts = items
		case "explanatory.analytical_methods":
			p.Explanatory.AnalyticalMethods = items
		case "explanatory.problem_diagnosis":
			p.Explanatory.ProblemDiagnosis = items
		case "explanatory.ideal_state":
			p.Explanatory.IdealState = items
		}
	case shapeTraitList:
		traits, _ := value.([]TraitDefinition)
		p.TraitDefinitions = traits
	case shapeCritiqueList:
		patterns, _ := value.([]CritiquePattern)
		p.CritiquePatterns = patterns
	}
}

// DeriveProgress re-derives per-field completion from current field values.
// A non-empty string or non-empty list counts as complete; no separate
// step-tracking state is persisted.
func DeriveProgress(p *Paradigm) Progress {
	fields := make([]FieldProgress, 0, len(branchFields))
	completed := 0
	for _, field := range branchFields {
		complete := fieldComplete(p, field)
		if complete {
			completed++
		}
		fields = append(fields, FieldProgress{
			Field:    field.Path,
			Layer:    field.Layer,
			Complete: complete,
		})
	}
	return Progress{
		ParadigmKey:      p.ParadigmKey,
		GenerationStatus: p.GenerationStatus,
		TotalFields:      len(branchFields),
		CompletedFields:  completed,
		Fields:           fields,
	}
}

func fieldComplete(p *Paradigm, field branchField) bool {
	switch field.Shape {
	case shapeText:
		switch field.Path {
		case "description":
			return p.Description != ""
		case "guiding_thinkers":
			return p.GuidingThinkers != ""
		case "historical_context":
			return p.HistoricalContext != nil && *p.HistoricalContext != ""
		}
	case shapeStringList:
		return len(stringListAt(p, field.Path)) > 0
	case shapeTraitList:
		return len(p.TraitDefinitions) > 0
	case shapeCritiqueList:
		return len(p.CritiquePatterns) > 0
	}
	return false
}

// stripCodeFence removes a surrounding markdown code fence if present
func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// parseTextResponse extracts a plain string from a completion response,
// tolerating code fences, JSON string quoting and object wrapping.
func parseTextResponse(response string) string {
	text := stripCodeFence(response)

	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal([]byte(text), &s); err == nil {
			return s
		}
	}
	if strings.HasPrefix(text, "{") {
		var wrapper map[string]interface{}
		if err := json.Unmarshal([]byte(text), &wrapper); err == nil {
			for _, key := range []string{"value", "text", "content"} {
				if s, ok := wrapper[key].(string); ok {
					return s
				}
			}
		}
	}
	return text
}

// parseStringListResponse extracts a string array, falling back to scanning
// from the first '[' to the last ']' when the direct parse fails.
func parseStringListResponse(response string) ([]string, error) {
	text := stripCodeFence(response)

	var items []string
	if err := json.Unmarshal([]byte(text), &items); err == nil {
		return items, nil
	}

	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(text[start:end+1]), &items); err == nil {
			return items, nil
		}
	}
	return nil, fmt.Errorf("response is not a string array")
}

// parseObjectListResponse extracts a typed object array with the same
// bracket-scanning fallback as string lists.
func parseObjectListResponse(response string, target interface{}) error {
	text := stripCodeFence(response)

	if err := json.Unmarshal([]byte(text), target); err == nil {
		return nil
	}

	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(text[start:end+1]), target); err == nil {
			return nil
		}
	}
	return fmt.Errorf("response is not an object array")
}

func truncateTo(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return text[:max] + "\n[truncated]"
}
