package pipeline

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

// Service provides pipeline management operations
type Service struct {
	db     *database.PostgreSQL
	logger *logger.Logger
}

// NewService creates a new pipeline service
func NewService(db *database.PostgreSQL, logger *logger.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger,
	}
}

// Pipeline represents a multi-stage analysis pipeline definition
type Pipeline struct {
	ID               string                   `json:"id"`
	PipelineKey      string                   `json:"pipeline_key"`
	PipelineName     string                   `json:"pipeline_name"`
	Description      string                   `json:"description"`
	StageDefinitions []map[string]interface{} `json:"stage_definitions"`
	BlendMode        string                   `json:"blend_mode"`
	Category         *string                  `json:"category"`
	Status           string                   `json:"status"`
	Stages           []Stage                  `json:"stages"`
	CreatedAt        time.Time                `json:"created_at"`
	UpdatedAt        time.Time                `json:"updated_at"`
}

// Stage represents a single stage of a pipeline
type Stage struct {
	ID                string                 `json:"id"`
	PipelineID        string                 `json:"pipeline_id"`
	StageOrder        int                    `json:"stage_order"`
	StageName         string                 `json:"stage_name"`
	EngineKey         *string                `json:"engine_key"`
	SubPipelineID     *string                `json:"sub_pipeline_id"`
	BlendMode         *string                `json:"blend_mode"`
	SubPassEngineKeys []string               `json:"sub_pass_engine_keys"`
	PassContext       bool                   `json:"pass_context"`
	Config            map[string]interface{} `json:"config"`
}

// Summary is the reduced shape used in listings
type Summary struct {
	PipelineKey  string  `json:"pipeline_key"`
	PipelineName string  `json:"pipeline_name"`
	Description  string  `json:"description"`
	BlendMode    string  `json:"blend_mode"`
	Category     *string `json:"category"`
	StageCount   int     `json:"stage_count"`
	Status       string  `json:"status"`
}

// StageRequest holds the fields accepted when creating a stage
type StageRequest struct {
	StageOrder        int                    `json:"stage_order"`
	StageName         string                 `json:"stage_name"`
	EngineKey         *string                `json:"engine_key,omitempty"`
	SubPipelineID     *string                `json:"sub_pipeline_id,omitempty"`
	BlendMode         *string                `json:"blend_mode,omitempty"`
	SubPassEngineKeys []string               `json:"sub_pass_engine_keys,omitempty"`
	PassContext       *bool                  `json:"pass_context,omitempty"`
	Config            map[string]interface{} `json:"config,omitempty"`
}

// StageUpdateRequest holds the fields accepted when updating a stage
type StageUpdateRequest struct {
	StageName         *string                 `json:"stage_name,omitempty"`
	EngineKey         *string                 `json:"engine_key,omitempty"`
	BlendMode         *string                 `json:"blend_mode,omitempty"`
	SubPassEngineKeys *[]string               `json:"sub_pass_engine_keys,omitempty"`
	PassContext       *bool                   `json:"pass_context,omitempty"`
	Config            *map[string]interface{} `json:"config,omitempty"`
}

// CreateRequest holds the fields accepted when creating a pipeline
type CreateRequest struct {
	PipelineKey  string         `json:"pipeline_key"`
	PipelineName string         `json:"pipeline_name"`
	Description  string         `json:"description"`
	BlendMode    string         `json:"blend_mode"`
	Category     *string        `json:"category,omitempty"`
	Stages       []StageRequest `json:"stages,omitempty"`
}

// UpdateRequest holds the fields accepted when updating a pipeline
type UpdateRequest struct {
	PipelineName *string `json:"pipeline_name,omitempty"`
	Description  *string `json:"description,omitempty"`
	BlendMode    *string `json:"blend_mode,omitempty"`
	Category     *string `json:"category,omitempty"`
	Status       *string `json:"status,omitempty"`
}

const pipelineColumns = `id, pipeline_key, pipeline_name, description, stage_definitions,
	blend_mode, category, status, created_at, updated_at`

const stageColumns = `id, pipeline_id, stage_order, stage_name, engine_key, sub_pipeline_id,
	blend_mode, sub_pass_engine_keys, pass_context, config`

func scanPipeline(row pgx.Row) (*Pipeline, error) {
	var p Pipeline
	err := row.Scan(
		&p.ID,
		&p.PipelineKey,
		&p.PipelineName,
		&p.Description,
		&p.StageDefinitions,
		&p.BlendMode,
		&p.Category,
		&p.Status,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Stages = []Stage{}
	return &p, nil
}

func scanStage(row pgx.Row) (*Stage, error) {
	var st Stage
	err := row.Scan(
		&st.ID,
		&st.PipelineID,
		&st.StageOrder,
		&st.StageName,
		&st.EngineKey,
		&st.SubPipelineID,
		&st.BlendMode,
		&st.SubPassEngineKeys,
		&st.PassContext,
		&st.Config,
	)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Service) loadStages(ctx context.Context, p *Pipeline) error {
	rows, err := s.db.Pool().Query(ctx, fmt.Sprintf(
		"SELECT %s FROM pipeline_stages WHERE pipeline_id = $1 ORDER BY stage_order", stageColumns), p.ID)
	if err != nil {
		return fmt.Errorf("failed to load pipeline stages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		st, err := scanStage(rows)
		if err != nil {
			return fmt.Errorf("failed to scan pipeline stage: %w", err)
		}
		p.Stages = append(p.Stages, *st)
	}
	return nil
}

// Get retrieves a pipeline with its stages by key
func (s *Service) Get(ctx context.Context, pipelineKey string) (*Pipeline, error) {
	query := fmt.Sprintf("SELECT %s FROM pipelines WHERE pipeline_key = $1", pipelineColumns)
	p, err := scanPipeline(s.db.Pool().QueryRow(ctx, query, pipelineKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.New("pipeline not found")
		}
		return nil, fmt.Errorf("failed to get pipeline: %w", err)
	}
	if err := s.loadStages(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// List retrieves pipelines matching the category and status filters
func (s *Service) List(ctx context.Context, category, status string) ([]Summary, error) {
	whereParts := []string{}
	args := []interface{}{}
	argIndex := 1

	if category != "" {
		whereParts = append(whereParts, fmt.Sprintf("category = $%d", argIndex))
		args = append(args, category)
		argIndex++
	}
	if status != "" {
		whereParts = append(whereParts, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, status)
		argIndex++
	}

	where := ""
	if len(whereParts) > 0 {
		where = " WHERE " + strings.Join(whereParts, " AND ")
	}

	query := fmt.Sprintf(`SELECT p.pipeline_key, p.pipeline_name, p.description, p.blend_mode,
		p.category, p.status,
		(SELECT COUNT(*) FROM pipeline_stages st WHERE st.pipeline_id = p.id)
		FROM pipelines p%s ORDER BY p.pipeline_name`, where)

	rows, err := s.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pipelines: %w", err)
	}
	defer rows.Close()

	summaries := []Summary{}
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.PipelineKey, &sum.PipelineName, &sum.Description,
			&sum.BlendMode, &sum.Category, &sum.Status, &sum.StageCount); err != nil {
			return nil, fmt.Errorf("failed to scan pipeline: %w", err)
		}
		if len(sum.Description) > 200 {
			sum.Description = sum.Description[:200] + "..."
		}
		summaries = append(summaries, sum)
	}
	return summaries, nil
}

// Categories returns the distinct non-null pipeline categories
func (s *Service) Categories(ctx context.Context) ([]string, error) {
	rows, err := s.db.Pool().Query(ctx,
		"SELECT DISTINCT category FROM pipelines WHERE category IS NOT NULL ORDER BY category")
	if err != nil {
		return nil, fmt.Errorf("failed to list pipeline categories: %w", err)
	}
	defer rows.Close()

	categories := []string{}
	for rows.Next() {
		var category string
		if err := rows.Scan(&category); err != nil {
			return nil, fmt.Errorf("failed to scan pipeline category: %w", err)
		}
		categories = append(categories, category)
	}
	return categories, nil
}

// Create creates a pipeline together with its stages
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Pipeline, error) {
	var exists bool
	err := s.db.Pool().QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM pipelines WHERE pipeline_key = $1)", req.PipelineKey).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check pipeline existence: %w", err)
	}
	if exists {
		return nil, errors.New("pipeline already exists")
	}

	if req.BlendMode == "" {
		req.BlendMode = "sequential"
	}

	// stage_definitions keeps the creation-time stage snapshot on the row
	stageDefinitions := make([]map[string]interface{}, 0, len(req.Stages))
	for _, st := range req.Stages {
		passContext := true
		if st.PassContext != nil {
			passContext = *st.PassContext
		}
		stageDefinitions = append(stageDefinitions, map[string]interface{}{
			"stage_order":          st.StageOrder,
			"stage_name":           st.StageName,
			"engine_key":           st.EngineKey,
			"sub_pipeline_id":      st.SubPipelineID,
			"blend_mode":           st.BlendMode,
			"sub_pass_engine_keys": st.SubPassEngineKeys,
			"pass_context":         passContext,
			"config":               st.Config,
		})
	}

	tx, err := s.db.Pool().Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := fmt.Sprintf(`INSERT INTO pipelines (
		id, pipeline_key, pipeline_name, description, stage_definitions, blend_mode, category, status
	) VALUES ($1, $2, $3, $4, $5, $6, $7, 'active')
	RETURNING %s`, pipelineColumns)

	p, err := scanPipeline(tx.QueryRow(ctx, query,
		uuid.New().String(), req.PipelineKey, req.PipelineName, req.Description,
		stageDefinitions, req.BlendMode, req.Category))
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	for _, st := range req.Stages {
		if err := insertStage(ctx, tx, p.ID, st); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	if err := s.loadStages(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Infof("Created pipeline %s with %d stages", p.PipelineKey, len(p.Stages))
	return p, nil
}

func insertStage(ctx context.Context, tx pgx.Tx, pipelineID string, req StageRequest) error {
	passContext := true
	if req.PassContext != nil {
		passContext = *req.PassContext
	}
	if req.SubPassEngineKeys == nil {
		req.SubPassEngineKeys = []string{}
	}
	if req.Config == nil {
		req.Config = map[string]interface{}{}
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO pipeline_stages (id, pipeline_id, stage_order, stage_name, engine_key,
			sub_pipeline_id, blend_mode, sub_pass_engine_keys, pass_context, config)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		uuid.New().String(), pipelineID, req.StageOrder, req.StageName, req.EngineKey,
		req.SubPipelineID, req.BlendMode, req.SubPassEngineKeys, passContext, req.Config)
	if err != nil {
		return fmt.Errorf("failed to create pipeline stage: %w", err)
	}
	return nil
}

// Update applies a partial update to a pipeline
func (s *Service) Update(ctx context.Context, pipelineKey string, req UpdateRequest) (*Pipeline, error) {
	setParts := []string{}
	args := []interface{}{}
	argIndex := 1

	appendSet := func(column string, value interface{}) {
		setParts = append(setParts, fmt.Sprintf("%s = $%d", column, argIndex))
		args = append(args, value)
		argIndex++
	}

	if req.PipelineName != nil {
		appendSet("pipeline_name", *req.PipelineName)
	}
	if req.Description != nil {
		appendSet("description", *req.Description)
	}
	if req.BlendMode != nil {
		appendSet("blend_mode", *req.BlendMode)
	}
	if req.Category != nil {
		appendSet("category", *req.Category)
	}
	if req.Status != nil {
		appendSet("status", *req.Status)
	}

	if len(setParts) == 0 {
		return nil, errors.New("no fields to update")
	}
	setParts = append(setParts, "updated_at = now()")

	query := fmt.Sprintf("UPDATE pipelines SET %s WHERE pipeline_key = $%d RETURNING %s",
		strings.Join(setParts, ", "), argIndex, pipelineColumns)
	args = append(args, pipelineKey)

	p, err := scanPipeline(s.db.Pool().QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.New("pipeline not found")
		}
		return nil, fmt.Errorf("failed to update pipeline: %w", err)
	}
	if err := s.loadStages(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Infof("Updated pipeline %s", p.PipelineKey)
	return p, nil
}

// AddStage appends a stage to an existing pipeline
func (s *Service) AddStage(ctx context.Context, pipelineKey string, req StageRequest) (*Stage, error) {
	p, err := s.Get(ctx, pipelineKey)
	if err != nil {
		return nil, err
	}

	passContext := true
	if req.PassContext != nil {
		passContext = *req.PassContext
	}
	if req.SubPassEngineKeys == nil {
		req.SubPassEngineKeys = []string{}
	}
	if req.Config == nil {
		req.Config = map[string]interface{}{}
	}

	query := fmt.Sprintf(`INSERT INTO pipeline_stages (id, pipeline_id, stage_order, stage_name,
		engine_key, sub_pipeline_id, blend_mode, sub_pass_engine_keys, pass_context, config)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING %s`, stageColumns)

	st, err := scanStage(s.db.Pool().QueryRow(ctx, query,
		uuid.New().String(), p.ID, req.StageOrder, req.StageName, req.EngineKey,
		req.SubPipelineID, req.BlendMode, req.SubPassEngineKeys, passContext, req.Config))
	if err != nil {
		return nil, fmt.Errorf("failed to add pipeline stage: %w", err)
	}

	s.logger.Infof("Added stage %d to pipeline %s", st.StageOrder, pipelineKey)
	return st, nil
}

// UpdateStage applies a partial update to one stage, addressed by its order
func (s *Service) UpdateStage(ctx context.Context, pipelineKey string, stageOrder int, req StageUpdateRequest) (*Stage, error) {
	p, err := s.Get(ctx, pipelineKey)
	if err != nil {
		return nil, err
	}

	setParts := []string{}
	args := []interface{}{}
	argIndex := 1

	appendSet := func(column string, value interface{}) {
		setParts = append(setParts, fmt.Sprintf("%s = $%d", column, argIndex))
		args = append(args, value)
		argIndex++
	}

	if req.StageName != nil {
		appendSet("stage_name", *req.StageName)
	}
	if req.EngineKey != nil {
		appendSet("engine_key", *req.EngineKey)
	}
	if req.BlendMode != nil {
		appendSet("blend_mode", *req.BlendMode)
	}
	if req.SubPassEngineKeys != nil {
		appendSet("sub_pass_engine_keys", *req.SubPassEngineKeys)
	}
	if req.PassContext != nil {
		appendSet("pass_context", *req.PassContext)
	}
	if req.Config != nil {
		appendSet("config", *req.Config)
	}

	if len(setParts) == 0 {
		return nil, errors.New("no fields to update")
	}

	query := fmt.Sprintf("UPDATE pipeline_stages SET %s WHERE pipeline_id = $%d AND stage_order = $%d RETURNING %s",
		strings.Join(setParts, ", "), argIndex, argIndex+1, stageColumns)
	args = append(args, p.ID, stageOrder)

	st, err := scanStage(s.db.Pool().QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.New("stage not found")
		}
		return nil, fmt.Errorf("failed to update pipeline stage: %w", err)
	}

	s.logger.Infof("Updated stage %d of pipeline %s", stageOrder, pipelineKey)
	return st, nil
}

// DeleteStage removes a stage from a pipeline. Stages are hard-deleted.
func (s *Service) DeleteStage(ctx context.Context, pipelineKey string, stageOrder int) error {
	p, err := s.Get(ctx, pipelineKey)
	if err != nil {
		return err
	}

	commandTag, err := s.db.Pool().Exec(ctx,
		"DELETE FROM pipeline_stages WHERE pipeline_id = $1 AND stage_order = $2", p.ID, stageOrder)
	if err != nil {
		return fmt.Errorf("failed to delete pipeline stage: %w", err)
	}
	if commandTag.RowsAffected() == 0 {
		return errors.New("stage not found")
	}

	s.logger.Infof("Deleted stage %d from pipeline %s", stageOrder, pipelineKey)
	return nil
}

// Reorder renumbers the stages of a pipeline. The provided order must contain
// exactly the current stage_order values; each listed value is assigned its
// position in the list as its new order.
func (s *Service) Reorder(ctx context.Context, pipelineKey string, newOrder []int) (*Pipeline, error) {
	p, err := s.Get(ctx, pipelineKey)
	if err != nil {
		return nil, err
	}

	current := map[int]bool{}
	for _, st := range p.Stages {
		current[st.StageOrder] = true
	}
	requested := map[int]bool{}
	for _, order := range newOrder {
		requested[order] = true
	}
	if len(requested) != len(current) {
		return nil, errors.New("invalid stage order - must include all current stages")
	}
	for order := range requested {
		if !current[order] {
			return nil, errors.New("invalid stage order - must include all current stages")
		}
	}

	tx, err := s.db.Pool().Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Two passes avoid collisions between old and new order values.
	for position, oldOrder := range newOrder {
		if _, err := tx.Exec(ctx,
			"UPDATE pipeline_stages SET stage_order = $1 WHERE pipeline_id = $2 AND stage_order = $3",
			-(position + 1), p.ID, oldOrder); err != nil {
			return nil, fmt.Errorf("failed to reorder pipeline stages: %w", err)
		}
	}
	if _, err := tx.Exec(ctx,
		"UPDATE pipeline_stages SET stage_order = -stage_order - 1 WHERE pipeline_id = $1 AND stage_order < 0",
		p.ID); err != nil {
		return nil, fmt.Errorf("failed to reorder pipeline stages: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Infof("Reordered stages of pipeline %s", pipelineKey)
	return s.Get(ctx, pipelineKey)
}

// Archive soft-deletes a pipeline by flipping its status
func (s *Service) Archive(ctx context.Context, pipelineKey string) error {
	commandTag, err := s.db.Pool().Exec(ctx,
		"UPDATE pipelines SET status = 'archived', updated_at = now() WHERE pipeline_key = $1", pipelineKey)
	if err != nil {
		return fmt.Errorf("failed to archive pipeline: %w", err)
	}
	if commandTag.RowsAffected() == 0 {
		return errors.New("pipeline not found")
	}
	s.logger.Infof("Archived pipeline %s", pipelineKey)
	return nil
}
