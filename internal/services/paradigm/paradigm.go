package paradigm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/analyzerhq/analyzer-console/pkg/database"
	"github.com/analyzerhq/analyzer-console/pkg/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Service provides paradigm management operations
type Service struct {
	db     *database.PostgreSQL
	logger *logger.Logger
}

// NewService creates a new paradigm service
func NewService(db *database.PostgreSQL, logger *logger.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger,
	}
}

// FoundationalLayer holds the ground assumptions of a paradigm
type FoundationalLayer struct {
	Assumptions     []string `json:"assumptions"`
	CoreTensions    []string `json:"core_tensions"`
	ScopeConditions []string `json:"scope_conditions"`
}

// StructuralLayer holds the entities and relations a paradigm recognizes
type StructuralLayer struct {
	PrimaryEntities  []string `json:"primary_entities"`
	Relations        []string `json:"relations"`
	LevelsOfAnalysis []string `json:"levels_of_analysis"`
}

// DynamicLayer holds the change processes a paradigm describes
type DynamicLayer struct {
	ChangeMechanisms        []string `json:"change_mechanisms"`
	TemporalPatterns        []string `json:"temporal_patterns"`
	TransformationProcesses []string `json:"transformation_processes"`
}

// ExplanatoryLayer holds the analytical apparatus of a paradigm
type ExplanatoryLayer struct {
	KeyConcepts       []string `json:"key_concepts"`
	AnalyticalMethods []string `json:"analytical_methods"`
	ProblemDiagnosis  []string `json:"problem_diagnosis"`
	IdealState        []string `json:"ideal_state"`
}

// TraitDefinition describes a named trait a paradigm can carry
type TraitDefinition struct {
	TraitName        string   `json:"trait_name"`
	TraitDescription string   `json:"trait_description"`
	TraitItems       []string `json:"trait_items"`
}

// CritiquePattern is a recurring critique the paradigm applies
type CritiquePattern struct {
	Pattern    string `json:"pattern"`
	Diagnostic string `json:"diagnostic"`
	Fix        string `json:"fix"`
}

// Paradigm represents a 4-layer ontology paradigm definition
type Paradigm struct {
	ID                string                 `json:"id"`
	ParadigmKey       string                 `json:"paradigm_key"`
	Version           string                 `json:"version"`
	ParadigmName      string                 `json:"paradigm_name"`
	Description       string                 `json:"description"`
	GuidingThinkers   string                 `json:"guiding_thinkers"`
	Foundational      FoundationalLayer      `json:"foundational"`
	Structural        StructuralLayer        `json:"structural"`
	Dynamic           DynamicLayer           `json:"dynamic"`
	Explanatory       ExplanatoryLayer       `json:"explanatory"`
	ActiveTraits      []string               `json:"active_traits"`
	TraitDefinitions  []TraitDefinition      `json:"trait_definitions"`
	CritiquePatterns  []CritiquePattern      `json:"critique_patterns"`
	HistoricalContext *string                `json:"historical_context"`
	RelatedParadigms  []string               `json:"related_paradigms"`
	PrimaryEngines    []string               `json:"primary_engines"`
	CompatibleEngines []string               `json:"compatible_engines"`
	Status            string                 `json:"status"`
	ParentParadigmKey *string                `json:"parent_paradigm_key"`
	BranchMetadata    map[string]interface{} `json:"branch_metadata"`
	BranchDepth       int                    `json:"branch_depth"`
	GenerationStatus  string                 `json:"generation_status"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
}

// Summary is the reduced shape used in listings
type Summary struct {
	ParadigmKey       string   `json:"paradigm_key"`
	ParadigmName      string   `json:"paradigm_name"`
	Version           string   `json:"version"`
	Description       string   `json:"description"`
	GuidingThinkers   string   `json:"guiding_thinkers"`
	ActiveTraits      []string `json:"active_traits"`
	Status            string   `json:"status"`
	EngineCount       int      `json:"engine_count"`
	ParentParadigmKey *string  `json:"parent_paradigm_key"`
	BranchDepth       int      `json:"branch_depth"`
	GenerationStatus  string   `json:"generation_status"`
}

// CreateRequest holds the fields accepted when creating a paradigm
type CreateRequest struct {
	ParadigmKey       string            `json:"paradigm_key"`
	ParadigmName      string            `json:"paradigm_name"`
	Description       string            `json:"description"`
	GuidingThinkers   string            `json:"guiding_thinkers"`
	Version           string            `json:"version"`
	Foundational      FoundationalLayer `json:"foundational"`
	Structural        StructuralLayer   `json:"structural"`
	Dynamic           DynamicLayer      `json:"dynamic"`
	Explanatory       ExplanatoryLayer  `json:"explanatory"`
	ActiveTraits      []string          `json:"active_traits,omitempty"`
	TraitDefinitions  []TraitDefinition `json:"trait_definitions,omitempty"`
	CritiquePatterns  []CritiquePattern `json:"critique_patterns,omitempty"`
	HistoricalContext *string           `json:"historical_context,omitempty"`
	RelatedParadigms  []string          `json:"related_paradigms,omitempty"`
	PrimaryEngines    []string          `json:"primary_engines,omitempty"`
	CompatibleEngines []string          `json:"compatible_engines,omitempty"`
}

// UpdateRequest holds the fields accepted when updating a paradigm.
// Nil pointers mean "leave untouched".
type UpdateRequest struct {
	ParadigmName      *string            `json:"paradigm_name,omitempty"`
	Description       *string            `json:"description,omitempty"`
	GuidingThinkers   *string            `json:"guiding_thinkers,omitempty"`
	Version           *string            `json:"version,omitempty"`
	Foundational      *FoundationalLayer `json:"foundational,omitempty"`
	Structural        *StructuralLayer   `json:"structural,omitempty"`
	Dynamic           *DynamicLayer      `json:"dynamic,omitempty"`
	Explanatory       *ExplanatoryLayer  `json:"explanatory,omitempty"`
	ActiveTraits      *[]string          `json:"active_traits,omitempty"`
	TraitDefinitions  *[]TraitDefinition `json:"trait_definitions,omitempty"`
	CritiquePatterns  *[]CritiquePattern `json:"critique_patterns,omitempty"`
	HistoricalContext *string            `json:"historical_context,omitempty"`
	RelatedParadigms  *[]string          `json:"related_paradigms,omitempty"`
	PrimaryEngines    *[]string          `json:"primary_engines,omitempty"`
	CompatibleEngines *[]string          `json:"compatible_engines,omitempty"`
	Status            *string            `json:"status,omitempty"`
}

// ValidLayerNames are the four ontology layer identifiers
var ValidLayerNames = []string{"foundational", "structural", "dynamic", "explanatory"}

// IsValidLayerName reports whether name is one of the four ontology layers
func IsValidLayerName(name string) bool {
	for _, n := range ValidLayerNames {
		if n == name {
			return true
		}
	}
	return false
}

const paradigmColumns = `id, paradigm_key, version, paradigm_name, description, guiding_thinkers,
	foundational, structural, dynamic, explanatory,
	active_traits, trait_definitions, critique_patterns,
	historical_context, related_paradigms, primary_engines, compatible_engines,
	status, parent_paradigm_key, branch_metadata, branch_depth, generation_status,
	created_at, updated_at`

func scanParadigm(row pgx.Row) (*Paradigm, error) {
	var p Paradigm
	err := row.Scan(
		&p.ID,
		&p.ParadigmKey,
		&p.Version,
		&p.ParadigmName,
		&p.Description,
		&p.GuidingThinkers,
		&p.Foundational,
		&p.Structural,
		&p.Dynamic,
		&p.Explanatory,
		&p.ActiveTraits,
		&p.TraitDefinitions,
		&p.CritiquePatterns,
		&p.HistoricalContext,
		&p.RelatedParadigms,
		&p.PrimaryEngines,
		&p.CompatibleEngines,
		&p.Status,
		&p.ParentParadigmKey,
		&p.BranchMetadata,
		&p.BranchDepth,
		&p.GenerationStatus,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Get retrieves a paradigm by its key
func (s *Service) Get(ctx context.Context, paradigmKey string) (*Paradigm, error) {
	query := fmt.Sprintf("SELECT %s FROM paradigms WHERE paradigm_key = $1", paradigmColumns)
	p, err := scanParadigm(s.db.Pool().QueryRow(ctx, query, paradigmKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.New("paradigm not found")
		}
		return nil, fmt.Errorf("failed to get paradigm: %w", err)
	}
	return p, nil
}

// List retrieves paradigms matching the status and search filters
func (s *Service) List(ctx context.Context, status, search string) ([]Summary, error) {
	whereParts := []string{}
	args := []interface{}{}
	argIndex := 1

	if status != "" {
		whereParts = append(whereParts, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, status)
		argIndex++
	}
	if search != "" {
		whereParts = append(whereParts, fmt.Sprintf(
			"(paradigm_name ILIKE $%d OR description ILIKE $%d)", argIndex, argIndex))
		args = append(args, "%"+search+"%")
		argIndex++
	}

	where := ""
	if len(whereParts) > 0 {
		where = " WHERE " + strings.Join(whereParts, " AND ")
	}

	query := fmt.Sprintf("SELECT %s FROM paradigms%s ORDER BY paradigm_name", paradigmColumns, where)
	rows, err := s.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list paradigms: %w", err)
	}
	defer rows.Close()

	summaries := []Summary{}
	for rows.Next() {
		p, err := scanParadigm(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan paradigm: %w", err)
		}
		summaries = append(summaries, p.ToSummary())
	}
	return summaries, nil
}

// ToSummary converts a paradigm to its listing shape
func (p *Paradigm) ToSummary() Summary {
	description := p.Description
	if len(description) > 200 {
		description = description[:200] + "..."
	}
	return Summary{
		ParadigmKey:       p.ParadigmKey,
		ParadigmName:      p.ParadigmName,
		Version:           p.Version,
		Description:       description,
		GuidingThinkers:   p.GuidingThinkers,
		ActiveTraits:      p.ActiveTraits,
		Status:            p.Status,
		EngineCount:       len(p.PrimaryEngines) + len(p.CompatibleEngines),
		ParentParadigmKey: p.ParentParadigmKey,
		BranchDepth:       p.BranchDepth,
		GenerationStatus:  p.GenerationStatus,
	}
}

// Layer returns the named ontology layer as a generic mapping
func (p *Paradigm) Layer(name string) map[string][]string {
	switch name {
	case "foundational":
		return map[string][]string{
			"assumptions":      p.Foundational.Assumptions,
			"core_tensions":    p.Foundational.CoreTensions,
			"scope_conditions": p.Foundational.ScopeConditions,
		}
	case "structural":
		return map[string][]string{
			"primary_entities":   p.Structural.PrimaryEntities,
			"relations":          p.Structural.Relations,
			"levels_of_analysis": p.Structural.LevelsOfAnalysis,
		}
	case "dynamic":
		return map[string][]string{
			"change_mechanisms":        p.Dynamic.ChangeMechanisms,
			"temporal_patterns":        p.Dynamic.TemporalPatterns,
			"transformation_processes": p.Dynamic.TransformationProcesses,
		}
	case "explanatory":
		return map[string][]string{
			"key_concepts":       p.Explanatory.KeyConcepts,
			"analytical_methods": p.Explanatory.AnalyticalMethods,
			"problem_diagnosis":  p.Explanatory.ProblemDiagnosis,
			"ideal_state":        p.Explanatory.IdealState,
		}
	}
	return map[string][]string{}
}

// Primer renders LLM-ready primer text from the paradigm definition
func (p *Paradigm) Primer() string {
	var sections []string

	sections = append(sections, fmt.Sprintf("# %s Paradigm", p.ParadigmName))
	sections = append(sections, fmt.Sprintf("\n%s\n", p.Description))
	sections = append(sections, fmt.Sprintf("**Guiding Thinkers**: %s\n", p.GuidingThinkers))

	sections = append(sections, "## Foundational Layer")
	if len(p.Foundational.Assumptions) > 0 {
		sections = append(sections, "\n### Core Assumptions")
		for _, assumption := range p.Foundational.Assumptions {
			sections = append(sections, "- "+assumption)
		}
	}
	if len(p.Foundational.CoreTensions) > 0 {
		sections = append(sections, "\n### Core Tensions")
		for _, tension := range p.Foundational.CoreTensions {
			sections = append(sections, "- "+tension)
		}
	}

	sections = append(sections, "\n## Structural Layer")
	if len(p.Structural.PrimaryEntities) > 0 {
		sections = append(sections, "\n### Primary Entities")
		for _, entity := range p.Structural.PrimaryEntities {
			sections = append(sections, "- "+entity)
		}
	}
	if len(p.Structural.Relations) > 0 {
		sections = append(sections, "\n### Relations")
		for _, relation := range p.Structural.Relations {
			sections = append(sections, "- "+relation)
		}
	}

	sections = append(sections, "\n## Dynamic Layer")
	if len(p.Dynamic.ChangeMechanisms) > 0 {
		sections = append(sections, "\n### Change Mechanisms")
		for _, mechanism := range p.Dynamic.ChangeMechanisms {
			sections = append(sections, "- "+mechanism)
		}
	}

	sections = append(sections, "\n## Explanatory Layer")
	if len(p.Explanatory.KeyConcepts) > 0 {
		sections = append(sections, "\n### Key Concepts")
		for _, concept := range p.Explanatory.KeyConcepts {
			sections = append(sections, "- "+concept)
		}
	}
	if len(p.Explanatory.AnalyticalMethods) > 0 {
		sections = append(sections, "\n### Analytical Methods")
		for _, method := range p.Explanatory.AnalyticalMethods {
			sections = append(sections, "- "+method)
		}
	}

	return strings.Join(sections, "\n")
}

// Create creates a new paradigm
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Paradigm, error) {
	var exists bool
	err := s.db.Pool().QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM paradigms WHERE paradigm_key = $1)", req.ParadigmKey).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check paradigm existence: %w", err)
	}
	if exists {
		return nil, errors.New("paradigm already exists")
	}

	if req.Version == "" {
		req.Version = "1.0.0"
	}
	if req.ActiveTraits == nil {
		req.ActiveTraits = []string{}
	}
	if req.TraitDefinitions == nil {
		req.TraitDefinitions = []TraitDefinition{}
	}
	if req.CritiquePatterns == nil {
		req.CritiquePatterns = []CritiquePattern{}
	}
	if req.RelatedParadigms == nil {
		req.RelatedParadigms = []string{}
	}
	if req.PrimaryEngines == nil {
		req.PrimaryEngines = []string{}
	}
	if req.CompatibleEngines == nil {
		req.CompatibleEngines = []string{}
	}

	query := fmt.Sprintf(`INSERT INTO paradigms (
		id, paradigm_key, version, paradigm_name, description, guiding_thinkers,
		foundational, structural, dynamic, explanatory,
		active_traits, trait_definitions, critique_patterns,
		historical_context, related_paradigms, primary_engines, compatible_engines,
		status, branch_depth, generation_status
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
		'active', 0, 'complete')
	RETURNING %s`, paradigmColumns)

	p, err := scanParadigm(s.db.Pool().QueryRow(ctx, query,
		uuid.New().String(), req.ParadigmKey, req.Version, req.ParadigmName,
		req.Description, req.GuidingThinkers,
		req.Foundational, req.Structural, req.Dynamic, req.Explanatory,
		req.ActiveTraits, req.TraitDefinitions, req.CritiquePatterns,
		req.HistoricalContext, req.RelatedParadigms, req.PrimaryEngines, req.CompatibleEngines,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create paradigm: %w", err)
	}

	s.logger.Infof("Created paradigm %s", p.ParadigmKey)
	return p, nil
}

// Update applies a partial update to a paradigm
func (s *Service) Update(ctx context.Context, paradigmKey string, req UpdateRequest) (*Paradigm, error) {
	setParts := []string{}
	args := []interface{}{}
	argIndex := 1

	appendSet := func(column string, value interface{}) {
		setParts = append(setParts, fmt.Sprintf("%s = $%d", column, argIndex))
		args = append(args, value)
		argIndex++
	}

	if req.ParadigmName != nil {
		appendSet("paradigm_name", *req.ParadigmName)
	}
	if req.Description != nil {
		appendSet("description", *req.Description)
	}
	if req.GuidingThinkers != nil {
		appendSet("guiding_thinkers", *req.GuidingThinkers)
	}
	if req.Version != nil {
		appendSet("version", *req.Version)
	}
	if req.Foundational != nil {
		appendSet("foundational", *req.Foundational)
	}
	if req.Structural != nil {
		appendSet("structural", *req.Structural)
	}
	if req.Dynamic != nil {
		appendSet("dynamic", *req.Dynamic)
	}
	if req.Explanatory != nil {
		appendSet("explanatory", *req.Explanatory)
	}
	if req.ActiveTraits != nil {
		appendSet("active_traits", *req.ActiveTraits)
	}
	if req.TraitDefinitions != nil {
		appendSet("trait_definitions", *req.TraitDefinitions)
	}
	if req.CritiquePatterns != nil {
		appendSet("critique_patterns", *req.CritiquePatterns)
	}
	if req.HistoricalContext != nil {
		appendSet("historical_context", *req.HistoricalContext)
	}
	if req.RelatedParadigms != nil {
		appendSet("related_paradigms", *req.RelatedParadigms)
	}
	if req.PrimaryEngines != nil {
		appendSet("primary_engines", *req.PrimaryEngines)
	}
	if req.CompatibleEngines != nil {
		appendSet("compatible_engines", *req.CompatibleEngines)
	}
	if req.Status != nil {
		appendSet("status", *req.Status)
	}

	if len(setParts) == 0 {
		return nil, errors.New("no fields to update")
	}
	setParts = append(setParts, "updated_at = now()")

	query := fmt.Sprintf("UPDATE paradigms SET %s WHERE paradigm_key = $%d RETURNING %s",
		strings.Join(setParts, ", "), argIndex, paradigmColumns)
	args = append(args, paradigmKey)

	p, err := scanParadigm(s.db.Pool().QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.New("paradigm not found")
		}
		return nil, fmt.Errorf("failed to update paradigm: %w", err)
	}

	s.logger.Infof("Updated paradigm %s", p.ParadigmKey)
	return p, nil
}

// UpdateLayer replaces one ontology layer wholesale
func (s *Service) UpdateLayer(ctx context.Context, paradigmKey, layerName string, layerData map[string]interface{}) (*Paradigm, error) {
	if !IsValidLayerName(layerName) {
		return nil, errors.New("invalid layer name")
	}

	query := fmt.Sprintf("UPDATE paradigms SET %s = $1, updated_at = now() WHERE paradigm_key = $2 RETURNING %s",
		layerName, paradigmColumns)
	p, err := scanParadigm(s.db.Pool().QueryRow(ctx, query, layerData, paradigmKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.New("paradigm not found")
		}
		return nil, fmt.Errorf("failed to update paradigm layer: %w", err)
	}

	s.logger.Infof("Updated paradigm %s layer %s", paradigmKey, layerName)
	return p, nil
}

// Archive soft-deletes a paradigm by flipping its status
func (s *Service) Archive(ctx context.Context, paradigmKey string) error {
	commandTag, err := s.db.Pool().Exec(ctx,
		"UPDATE paradigms SET status = 'archived', updated_at = now() WHERE paradigm_key = $1", paradigmKey)
	if err != nil {
		return fmt.Errorf("failed to archive paradigm: %w", err)
	}
	if commandTag.RowsAffected() == 0 {
		return errors.New("paradigm not found")
	}
	s.logger.Infof("Archived paradigm %s", paradigmKey)
	return nil
}
