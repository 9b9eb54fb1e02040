package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/analyzerhq/analyzer-console/pkg/database"
	"github.com/analyzerhq/analyzer-console/pkg/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Service provides engine management operations
type Service struct {
	db     *database.PostgreSQL
	logger *logger.Logger
}

// NewService creates a new engine service
func NewService(db *database.PostgreSQL, logger *logger.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger,
	}
}

// Engine represents an analysis engine definition
type Engine struct {
	ID                   string                 `json:"id"`
	EngineKey            string                 `json:"engine_key"`
	EngineName           string                 `json:"engine_name"`
	Description          string                 `json:"description"`
	Version              int                    `json:"version"`
	Category             string                 `json:"category"`
	Kind                 string                 `json:"kind"`
	ReasoningDomain      *string                `json:"reasoning_domain"`
	ResearcherQuestion   *string                `json:"researcher_question"`
	StageContext         map[string]interface{} `json:"stage_context"`
	ExtractionPrompt     *string                `json:"extraction_prompt"`
	CurationPrompt       *string                `json:"curation_prompt"`
	ConcretizationPrompt *string                `json:"concretization_prompt"`
	CanonicalSchema      map[string]interface{} `json:"canonical_schema"`
	ExtractionFocus      []string               `json:"extraction_focus"`
	PrimaryOutputModes   []string               `json:"primary_output_modes"`
	ParadigmKeys         []string               `json:"paradigm_keys"`
	EngineProfile        map[string]interface{} `json:"engine_profile,omitempty"`
	Status               string                 `json:"status"`
	CreatedAt            time.Time              `json:"created_at"`
	UpdatedAt            time.Time              `json:"updated_at"`
}

// Summary is the reduced shape used in listings
type Summary struct {
	EngineKey       string   `json:"engine_key"`
	EngineName      string   `json:"engine_name"`
	Description     string   `json:"description"`
	Version         int      `json:"version"`
	Category        string   `json:"category"`
	Kind            string   `json:"kind"`
	ParadigmKeys    []string `json:"paradigm_keys"`
	Status          string   `json:"status"`
	HasStageContext bool     `json:"has_stage_context"`
}

// Version is a stored snapshot of an engine at a specific version
type Version struct {
	ID            string                 `json:"id"`
	EngineID      string                 `json:"engine_id"`
	Version       int                    `json:"version"`
	FullSnapshot  map[string]interface{} `json:"full_snapshot"`
	ChangeSummary *string                `json:"change_summary"`
	ChangedBy     *string                `json:"changed_by"`
	CreatedAt     time.Time              `json:"created_at"`
}

// ListFilter holds the filtering and paging options for List
type ListFilter struct {
	Category string
	Kind     string
	Paradigm string
	Status   string
	Search   string
	Limit    int
	Offset   int
}

// CreateRequest holds the fields accepted when creating an engine
type CreateRequest struct {
	EngineKey            string                 `json:"engine_key"`
	EngineName           string                 `json:"engine_name"`
	Description          string                 `json:"description"`
	Category             string                 `json:"category"`
	Kind                 string                 `json:"kind"`
	ReasoningDomain      *string                `json:"reasoning_domain,omitempty"`
	ResearcherQuestion   *string                `json:"researcher_question,omitempty"`
	StageContext         map[string]interface{} `json:"stage_context,omitempty"`
	ExtractionPrompt     *string                `json:"extraction_prompt,omitempty"`
	CurationPrompt       *string                `json:"curation_prompt,omitempty"`
	ConcretizationPrompt *string                `json:"concretization_prompt,omitempty"`
	CanonicalSchema      map[string]interface{} `json:"canonical_schema"`
	ExtractionFocus      []string               `json:"extraction_focus,omitempty"`
	PrimaryOutputModes   []string               `json:"primary_output_modes,omitempty"`
	ParadigmKeys         []string               `json:"paradigm_keys,omitempty"`
}

// UpdateRequest holds the fields accepted when updating an engine.
// Nil pointers mean "leave untouched"; non-nil values are applied even when
// they point at a zero value.
type UpdateRequest struct {
	EngineName           *string                 `json:"engine_name,omitempty"`
	Description          *string                 `json:"description,omitempty"`
	Category             *string                 `json:"category,omitempty"`
	Kind                 *string                 `json:"kind,omitempty"`
	ReasoningDomain      *string                 `json:"reasoning_domain,omitempty"`
	ResearcherQuestion   *string                 `json:"researcher_question,omitempty"`
	StageContext         *map[string]interface{} `json:"stage_context,omitempty"`
	ExtractionPrompt     *string                 `json:"extraction_prompt,omitempty"`
	CurationPrompt       *string                 `json:"curation_prompt,omitempty"`
	ConcretizationPrompt *string                 `json:"concretization_prompt,omitempty"`
	CanonicalSchema      *map[string]interface{} `json:"canonical_schema,omitempty"`
	ExtractionFocus      *[]string               `json:"extraction_focus,omitempty"`
	PrimaryOutputModes   *[]string               `json:"primary_output_modes,omitempty"`
	ParadigmKeys         *[]string               `json:"paradigm_keys,omitempty"`
	EngineProfile        *map[string]interface{} `json:"engine_profile,omitempty"`
	Status               *string                 `json:"status,omitempty"`
	ChangeSummary        *string                 `json:"change_summary,omitempty"`
}

const engineColumns = `id, engine_key, engine_name, description, version, category, kind,
	reasoning_domain, researcher_question, stage_context,
	extraction_prompt, curation_prompt, concretization_prompt,
	canonical_schema, extraction_focus, primary_output_modes, paradigm_keys,
	engine_profile, status, created_at, updated_at`

func scanEngine(row pgx.Row) (*Engine, error) {
	var e Engine
	err := row.Scan(
		&e.ID,
		&e.EngineKey,
		&e.EngineName,
		&e.Description,
		&e.Version,
		&e.Category,
		&e.Kind,
		&e.ReasoningDomain,
		&e.ResearcherQuestion,
		&e.StageContext,
		&e.ExtractionPrompt,
		&e.CurationPrompt,
		&e.ConcretizationPrompt,
		&e.CanonicalSchema,
		&e.ExtractionFocus,
		&e.PrimaryOutputModes,
		&e.ParadigmKeys,
		&e.EngineProfile,
		&e.Status,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Get retrieves an engine by its key
func (s *Service) Get(ctx context.Context, engineKey string) (*Engine, error) {
	query := fmt.Sprintf("SELECT %s FROM engines WHERE engine_key = $1", engineColumns)
	e, err := scanEngine(s.db.Pool().QueryRow(ctx, query, engineKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.New("engine not found")
		}
		return nil, fmt.Errorf("failed to get engine: %w", err)
	}
	return e, nil
}

// List retrieves engines matching the filter, returning the page and the
// total count of matching rows
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Summary, int, error) {
	whereParts := []string{}
	args := []interface{}{}
	argIndex := 1

	if filter.Category != "" {
		whereParts = append(whereParts, fmt.Sprintf("category = $%d", argIndex))
		args = append(args, filter.Category)
		argIndex++
	}
	if filter.Kind != "" {
		whereParts = append(whereParts, fmt.Sprintf("kind = $%d", argIndex))
		args = append(args, filter.Kind)
		argIndex++
	}
	if filter.Status != "" {
		whereParts = append(whereParts, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, filter.Status)
		argIndex++
	}
	if filter.Search != "" {
		whereParts = append(whereParts, fmt.Sprintf(
			"(engine_name ILIKE $%d OR description ILIKE $%d OR engine_key ILIKE $%d)",
			argIndex, argIndex, argIndex))
		args = append(args, "%"+filter.Search+"%")
		argIndex++
	}
	if filter.Paradigm != "" {
		whereParts = append(whereParts, fmt.Sprintf("paradigm_keys @> $%d", argIndex))
		args = append(args, []string{filter.Paradigm})
		argIndex++
	}

	where := ""
	if len(whereParts) > 0 {
		where = " WHERE " + strings.Join(whereParts, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM engines" + where
	if err := s.db.Pool().QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count engines: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT engine_key, engine_name, description, version, category, kind,
		paradigm_keys, status, stage_context IS NOT NULL
		FROM engines%s ORDER BY engine_key OFFSET $%d LIMIT $%d`, where, argIndex, argIndex+1)
	args = append(args, filter.Offset, limit)

	rows, err := s.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list engines: %w", err)
	}
	defer rows.Close()

	summaries := []Summary{}
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(
			&sum.EngineKey, &sum.EngineName, &sum.Description, &sum.Version,
			&sum.Category, &sum.Kind, &sum.ParadigmKeys, &sum.Status,
			&sum.HasStageContext,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan engine: %w", err)
		}
		sum.Description = truncateDescription(sum.Description)
		summaries = append(summaries, sum)
	}
	return summaries, total, nil
}

// Categories returns each category present in the catalog with its engine count
func (s *Service) Categories(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.Pool().Query(ctx,
		"SELECT category, COUNT(id) FROM engines GROUP BY category")
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	categories := map[string]int{}
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories[category] = count
	}
	return categories, nil
}

// Versions retrieves the full version history for an engine, newest first
func (s *Service) Versions(ctx context.Context, engineKey string) (int, []Version, error) {
	e, err := s.Get(ctx, engineKey)
	if err != nil {
		return 0, nil, err
	}

	rows, err := s.db.Pool().Query(ctx,
		`SELECT id, engine_id, version, full_snapshot, change_summary, changed_by, created_at
		 FROM engine_versions WHERE engine_id = $1 ORDER BY version DESC`, e.ID)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to list engine versions: %w", err)
	}
	defer rows.Close()

	versions := []Version{}
	for rows.Next() {
		var v Version
		if err := rows.Scan(&v.ID, &v.EngineID, &v.Version, &v.FullSnapshot,
			&v.ChangeSummary, &v.ChangedBy, &v.CreatedAt); err != nil {
			return 0, nil, fmt.Errorf("failed to scan engine version: %w", err)
		}
		versions = append(versions, v)
	}
	return e.Version, versions, nil
}

// Create creates a new engine together with its version-1 snapshot
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Engine, error) {
	var exists bool
	err := s.db.Pool().QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM engines WHERE engine_key = $1)", req.EngineKey).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check engine existence: %w", err)
	}
	if exists {
		return nil, errors.New("engine already exists")
	}

	if req.Kind == "" {
		req.Kind = "primitive"
	}
	if req.ExtractionFocus == nil {
		req.ExtractionFocus = []string{}
	}
	if req.PrimaryOutputModes == nil {
		req.PrimaryOutputModes = []string{}
	}
	if req.ParadigmKeys == nil {
		req.ParadigmKeys = []string{}
	}

	tx, err := s.db.Pool().Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	id := uuid.New().String()
	query := fmt.Sprintf(`INSERT INTO engines (
		id, engine_key, engine_name, description, version, category, kind,
		reasoning_domain, researcher_question, stage_context,
		extraction_prompt, curation_prompt, concretization_prompt,
		canonical_schema, extraction_focus, primary_output_modes, paradigm_keys, status
	) VALUES ($1, $2, $3, $4, 1, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, 'active')
	RETURNING %s`, engineColumns)

	e, err := scanEngine(tx.QueryRow(ctx, query,
		id, req.EngineKey, req.EngineName, req.Description, req.Category, req.Kind,
		req.ReasoningDomain, req.ResearcherQuestion, req.StageContext,
		req.ExtractionPrompt, req.CurationPrompt, req.ConcretizationPrompt,
		req.CanonicalSchema, req.ExtractionFocus, req.PrimaryOutputModes, req.ParadigmKeys,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	if err := insertSnapshot(ctx, tx, e, "Initial creation"); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Infof("Created engine %s (version 1)", e.EngineKey)
	return e, nil
}

// Update applies a partial update, increments the version and writes a new
// snapshot row
func (s *Service) Update(ctx context.Context, engineKey string, req UpdateRequest) (*Engine, error) {
	setParts := []string{}
	args := []interface{}{}
	argIndex := 1
	changed := []string{}

	appendSet := func(column string, value interface{}) {
		setParts = append(setParts, fmt.Sprintf("%s = $%d", column, argIndex))
		args = append(args, value)
		argIndex++
		changed = append(changed, column)
	}

	if req.EngineName != nil {
		appendSet("engine_name", *req.EngineName)
	}
	if req.Description != nil {
		appendSet("description", *req.Description)
	}
	if req.Category != nil {
		appendSet("category", *req.Category)
	}
	if req.Kind != nil {
		appendSet("kind", *req.Kind)
	}
	if req.ReasoningDomain != nil {
		appendSet("reasoning_domain", *req.ReasoningDomain)
	}
	if req.ResearcherQuestion != nil {
		appendSet("researcher_question", *req.ResearcherQuestion)
	}
	if req.StageContext != nil {
		appendSet("stage_context", *req.StageContext)
	}
	if req.ExtractionPrompt != nil {
		appendSet("extraction_prompt", *req.ExtractionPrompt)
	}
	if req.CurationPrompt != nil {
		appendSet("curation_prompt", *req.CurationPrompt)
	}
	if req.ConcretizationPrompt != nil {
		appendSet("concretization_prompt", *req.ConcretizationPrompt)
	}
	if req.CanonicalSchema != nil {
		appendSet("canonical_schema", *req.CanonicalSchema)
	}
	if req.ExtractionFocus != nil {
		appendSet("extraction_focus", *req.ExtractionFocus)
	}
	if req.PrimaryOutputModes != nil {
		appendSet("primary_output_modes", *req.PrimaryOutputModes)
	}
	if req.ParadigmKeys != nil {
		appendSet("paradigm_keys", *req.ParadigmKeys)
	}
	if req.EngineProfile != nil {
		appendSet("engine_profile", *req.EngineProfile)
	}
	if req.Status != nil {
		appendSet("status", *req.Status)
	}

	if len(setParts) == 0 {
		return nil, errors.New("no fields to update")
	}

	setParts = append(setParts, "version = version + 1", "updated_at = now()")

	tx, err := s.db.Pool().Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := fmt.Sprintf("UPDATE engines SET %s WHERE engine_key = $%d RETURNING %s",
		strings.Join(setParts, ", "), argIndex, engineColumns)
	args = append(args, engineKey)

	e, err := scanEngine(tx.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.New("engine not found")
		}
		return nil, fmt.Errorf("failed to update engine: %w", err)
	}

	summary := fmt.Sprintf("Updated fields: %s", strings.Join(changed, ", "))
	if req.ChangeSummary != nil && *req.ChangeSummary != "" {
		summary = *req.ChangeSummary
	}
	if err := insertSnapshot(ctx, tx, e, summary); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Infof("Updated engine %s to version %d", e.EngineKey, e.Version)
	return e, nil
}

// Archive soft-deletes an engine by flipping its status
func (s *Service) Archive(ctx context.Context, engineKey string) error {
	commandTag, err := s.db.Pool().Exec(ctx,
		"UPDATE engines SET status = 'archived', updated_at = now() WHERE engine_key = $1", engineKey)
	if err != nil {
		return fmt.Errorf("failed to archive engine: %w", err)
	}
	if commandTag.RowsAffected() == 0 {
		return errors.New("engine not found")
	}
	s.logger.Infof("Archived engine %s", engineKey)
	return nil
}

// restorableFields are the snapshot fields copied back onto the live row by
// Restore. Status and version are deliberately not restored.
var restorableFields = []string{
	"engine_name", "description", "category", "kind", "reasoning_domain",
	"researcher_question", "extraction_prompt", "curation_prompt",
	"concretization_prompt", "canonical_schema", "extraction_focus",
	"primary_output_modes", "paradigm_keys",
}

// Restore copies the whitelisted fields from a stored snapshot onto the live
// row. Restoring is itself a new version, never a rewind of the counter.
func (s *Service) Restore(ctx context.Context, engineKey string, version int) (*Engine, error) {
	e, err := s.Get(ctx, engineKey)
	if err != nil {
		return nil, err
	}

	var snapshot map[string]interface{}
	err = s.db.Pool().QueryRow(ctx,
		"SELECT full_snapshot FROM engine_versions WHERE engine_id = $1 AND version = $2",
		e.ID, version).Scan(&snapshot)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.New("version not found")
		}
		return nil, fmt.Errorf("failed to get engine version: %w", err)
	}

	setParts := []string{}
	args := []interface{}{}
	argIndex := 1
	for _, field := range restorableFields {
		value, ok := snapshot[field]
		if !ok {
			continue
		}
		setParts = append(setParts, fmt.Sprintf("%s = $%d", field, argIndex))
		args = append(args, value)
		argIndex++
	}
	setParts = append(setParts, "version = version + 1", "updated_at = now()")

	tx, err := s.db.Pool().Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := fmt.Sprintf("UPDATE engines SET %s WHERE engine_key = $%d RETURNING %s",
		strings.Join(setParts, ", "), argIndex, engineColumns)
	args = append(args, engineKey)

	restored, err := scanEngine(tx.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("failed to restore engine: %w", err)
	}

	summary := fmt.Sprintf("Restored from version %d", version)
	if err := insertSnapshot(ctx, tx, restored, summary); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Infof("Restored engine %s from version %d (now version %d)",
		engineKey, version, restored.Version)
	return restored, nil
}

func insertSnapshot(ctx context.Context, tx pgx.Tx, e *Engine, changeSummary string) error {
	snapshot, err := snapshotOf(e)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO engine_versions (id, engine_id, version, full_snapshot, change_summary)
		 VALUES ($1, $2, $3, $4, $5)`,
		uuid.New().String(), e.ID, e.Version, snapshot, changeSummary)
	if err != nil {
		return fmt.Errorf("failed to write engine version snapshot: %w", err)
	}
	return nil
}

// snapshotOf serializes the full engine state for the history table
func snapshotOf(e *Engine) (map[string]interface{}, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize engine snapshot: %w", err)
	}
	var snapshot map[string]interface{}
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to build engine snapshot: %w", err)
	}
	return snapshot, nil
}

func truncateDescription(description string) string {
	if len(description) > 200 {
		return description[:200] + "..."
	}
	return description
}
