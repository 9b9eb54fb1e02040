package grid

import (
	"context"
	"crypto/md5"
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

// Service provides strategy grid operations
type Service struct {
	db     *database.PostgreSQL
	cache  *database.Redis // optional, nil when no cache is configured
	logger *logger.Logger
}

// NewService creates a new grid service. cache may be nil.
func NewService(db *database.PostgreSQL, cache *database.Redis, logger *logger.Logger) *Service {
	return &Service{
		db:     db,
		cache:  cache,
		logger: logger,
	}
}

const dimensionsCacheTTL = 5 * time.Minute

// Dimension is one condition or axis entry of a grid
type Dimension struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	AddedVersion int    `json:"added_version"`
}

// Grid represents a track's strategy dimensions (conditions x axes)
type Grid struct {
	ID          string      `json:"id"`
	GridKey     string      `json:"grid_key"`
	GridName    string      `json:"grid_name"`
	Description string      `json:"description"`
	Track       string      `json:"track"`
	Conditions  []Dimension `json:"conditions"`
	Axes        []Dimension `json:"axes"`
	Version     int         `json:"version"`
	Status      string      `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Summary is the reduced shape used in listings
type Summary struct {
	GridKey        string `json:"grid_key"`
	GridName       string `json:"grid_name"`
	Track          string `json:"track"`
	ConditionCount int    `json:"condition_count"`
	AxisCount      int    `json:"axis_count"`
	Version        int    `json:"version"`
	Status         string `json:"status"`
}

// Dimensions is the consumer view: names only, plus a short content hash so
// consumers can detect dimension drift cheaply
type Dimensions struct {
	GridKey       string   `json:"grid_key"`
	Version       int      `json:"version"`
	Conditions    []string `json:"conditions"`
	Axes          []string `json:"axes"`
	DimensionHash string   `json:"dimension_hash"`
}

// Version is a stored snapshot of a grid at a specific version
type Version struct {
	ID            string                 `json:"id"`
	GridID        string                 `json:"grid_id"`
	Version       int                    `json:"version"`
	FullSnapshot  map[string]interface{} `json:"full_snapshot"`
	ChangeSummary *string                `json:"change_summary"`
	CreatedAt     time.Time              `json:"created_at"`
}

// Wildcard is a suggested new dimension from a consumer project
type Wildcard struct {
	ID                string    `json:"id"`
	GridID            string    `json:"grid_id"`
	DimensionType     string    `json:"dimension_type"`
	Name              string    `json:"name"`
	Description       string    `json:"description"`
	Rationale         string    `json:"rationale"`
	Confidence        float64   `json:"confidence"`
	Scope             string    `json:"scope"`
	SourceProject     *string   `json:"source_project"`
	SourceSessionID   *string   `json:"source_session_id"`
	EvidenceQuestions []string  `json:"evidence_questions"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// CreateRequest holds the fields accepted when creating a grid
type CreateRequest struct {
	GridKey     string      `json:"grid_key"`
	GridName    string      `json:"grid_name"`
	Description string      `json:"description"`
	Track       string      `json:"track"`
	Conditions  []Dimension `json:"conditions,omitempty"`
	Axes        []Dimension `json:"axes,omitempty"`
}

// UpdateRequest holds the fields accepted when updating a grid
type UpdateRequest struct {
	GridName      *string      `json:"grid_name,omitempty"`
	Description   *string      `json:"description,omitempty"`
	Conditions    *[]Dimension `json:"conditions,omitempty"`
	Axes          *[]Dimension `json:"axes,omitempty"`
	Status        *string      `json:"status,omitempty"`
	ChangeSummary *string      `json:"change_summary,omitempty"`
}

// WildcardRequest holds the fields accepted when submitting a wildcard
type WildcardRequest struct {
	DimensionType     string   `json:"dimension_type"`
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	Rationale         string   `json:"rationale"`
	Confidence        float64  `json:"confidence"`
	Scope             string   `json:"scope"`
	SourceProject     *string  `json:"source_project,omitempty"`
	SourceSessionID   *string  `json:"source_session_id,omitempty"`
	EvidenceQuestions []string `json:"evidence_questions,omitempty"`
}

// PromotionResult reports a wildcard added to the grid
type PromotionResult struct {
	Grid           *Grid     `json:"grid"`
	AddedDimension Dimension `json:"added_dimension"`
	Wildcard       *Wildcard `json:"wildcard"`
}

const gridColumns = `id, grid_key, grid_name, description, track, conditions, axes,
	version, status, created_at, updated_at`

const wildcardColumns = `id, grid_id, dimension_type, name, description, rationale, confidence,
	scope, source_project, source_session_id, evidence_questions, status, created_at, updated_at`

func scanGrid(row pgx.Row) (*Grid, error) {
	var g Grid
	err := row.Scan(
		&g.ID,
		&g.GridKey,
		&g.GridName,
		&g.Description,
		&g.Track,
		&g.Conditions,
		&g.Axes,
		&g.Version,
		&g.Status,
		&g.CreatedAt,
		&g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func scanWildcard(row pgx.Row) (*Wildcard, error) {
	var w Wildcard
	err := row.Scan(
		&w.ID,
		&w.GridID,
		&w.DimensionType,
		&w.Name,
		&w.Description,
		&w.Rationale,
		&w.Confidence,
		&w.Scope,
		&w.SourceProject,
		&w.SourceSessionID,
		&w.EvidenceQuestions,
		&w.Status,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// Get retrieves a grid by its key
func (s *Service) Get(ctx context.Context, gridKey string) (*Grid, error) {
	query := fmt.Sprintf("SELECT %s FROM grids WHERE grid_key = $1", gridColumns)
	g, err := scanGrid(s.db.Pool().QueryRow(ctx, query, gridKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.New("grid not found")
		}
		return nil, fmt.Errorf("failed to get grid: %w", err)
	}
	return g, nil
}

// List retrieves grids matching the track and status filters
func (s *Service) List(ctx context.Context, track, status string) ([]Summary, error) {
	whereParts := []string{}
	args := []interface{}{}
	argIndex := 1

	if track != "" {
		whereParts = append(whereParts, fmt.Sprintf("track = $%d", argIndex))
		args = append(args, track)
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

	query := fmt.Sprintf("SELECT %s FROM grids%s ORDER BY grid_key", gridColumns, where)
	rows, err := s.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list grids: %w", err)
	}
	defer rows.Close()

	summaries := []Summary{}
	for rows.Next() {
		g, err := scanGrid(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan grid: %w", err)
		}
		summaries = append(summaries, Summary{
			GridKey:        g.GridKey,
			GridName:       g.GridName,
			Track:          g.Track,
			ConditionCount: len(g.Conditions),
			AxisCount:      len(g.Axes),
			Version:        g.Version,
			Status:         g.Status,
		})
	}
	return summaries, nil
}

// DimensionsOf computes the consumer view of a grid's dimensions
func DimensionsOf(g *Grid) Dimensions {
	conditionNames := make([]string, 0, len(g.Conditions))
	for _, c := range g.Conditions {
		conditionNames = append(conditionNames, c.Name)
	}
	axisNames := make([]string, 0, len(g.Axes))
	for _, a := range g.Axes {
		axisNames = append(axisNames, a.Name)
	}

	content := strings.Join(append(append([]string{}, conditionNames...), axisNames...), "|")
	hash := fmt.Sprintf("%x", md5.Sum([]byte(content)))[:8]

	return Dimensions{
		GridKey:       g.GridKey,
		Version:       g.Version,
		Conditions:    conditionNames,
		Axes:          axisNames,
		DimensionHash: hash,
	}
}

// Dimensions returns the consumer dimension view, served from the cache when
// one is configured
func (s *Service) Dimensions(ctx context.Context, gridKey string) (*Dimensions, error) {
	cacheKey := "grid:dimensions:" + gridKey

	if s.cache != nil {
		if cached, err := s.cache.Client().Get(ctx, cacheKey).Result(); err == nil {
			var d Dimensions
			if err := json.Unmarshal([]byte(cached), &d); err == nil {
				return &d, nil
			}
		}
	}

	g, err := s.Get(ctx, gridKey)
	if err != nil {
		return nil, err
	}
	d := DimensionsOf(g)

	if s.cache != nil {
		if data, err := json.Marshal(d); err == nil {
			if err := s.cache.Client().Set(ctx, cacheKey, data, dimensionsCacheTTL).Err(); err != nil {
				s.logger.Warnf("Failed to cache grid dimensions for %s: %v", gridKey, err)
			}
		}
	}
	return &d, nil
}

func (s *Service) invalidateDimensions(ctx context.Context, gridKey string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Client().Del(ctx, "grid:dimensions:"+gridKey).Err(); err != nil {
		s.logger.Warnf("Failed to invalidate grid dimensions cache for %s: %v", gridKey, err)
	}
}

// Versions retrieves a grid's snapshot history, newest first
func (s *Service) Versions(ctx context.Context, gridKey string) (int, []Version, error) {
	g, err := s.Get(ctx, gridKey)
	if err != nil {
		return 0, nil, err
	}

	rows, err := s.db.Pool().Query(ctx,
		`SELECT id, grid_id, version, full_snapshot, change_summary, created_at
		 FROM grid_versions WHERE grid_id = $1 ORDER BY version DESC`, g.ID)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to list grid versions: %w", err)
	}
	defer rows.Close()

	versions := []Version{}
	for rows.Next() {
		var v Version
		if err := rows.Scan(&v.ID, &v.GridID, &v.Version, &v.FullSnapshot,
			&v.ChangeSummary, &v.CreatedAt); err != nil {
			return 0, nil, fmt.Errorf("failed to scan grid version: %w", err)
		}
		versions = append(versions, v)
	}
	return g.Version, versions, nil
}

// Create creates a grid together with its version-1 snapshot
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Grid, error) {
	if req.Track != "ideas" && req.Track != "process" {
		return nil, errors.New("invalid track")
	}

	var exists bool
	err := s.db.Pool().QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM grids WHERE grid_key = $1)", req.GridKey).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check grid existence: %w", err)
	}
	if exists {
		return nil, errors.New("grid already exists")
	}

	if req.Conditions == nil {
		req.Conditions = []Dimension{}
	}
	if req.Axes == nil {
		req.Axes = []Dimension{}
	}

	tx, err := s.db.Pool().Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := fmt.Sprintf(`INSERT INTO grids (id, grid_key, grid_name, description, track,
		conditions, axes, version, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 1, 'active') RETURNING %s`, gridColumns)
	g, err := scanGrid(tx.QueryRow(ctx, query,
		uuid.New().String(), req.GridKey, req.GridName, req.Description, req.Track,
		req.Conditions, req.Axes))
	if err != nil {
		return nil, fmt.Errorf("failed to create grid: %w", err)
	}

	if err := insertSnapshot(ctx, tx, g, "Initial creation"); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Infof("Created grid %s (track %s)", g.GridKey, g.Track)
	return g, nil
}

// Update applies a partial update, increments the version and writes a new
// snapshot row
func (s *Service) Update(ctx context.Context, gridKey string, req UpdateRequest) (*Grid, error) {
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

	if req.GridName != nil {
		appendSet("grid_name", *req.GridName)
	}
	if req.Description != nil {
		appendSet("description", *req.Description)
	}
	if req.Conditions != nil {
		appendSet("conditions", *req.Conditions)
	}
	if req.Axes != nil {
		appendSet("axes", *req.Axes)
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

	query := fmt.Sprintf("UPDATE grids SET %s WHERE grid_key = $%d RETURNING %s",
		strings.Join(setParts, ", "), argIndex, gridColumns)
	args = append(args, gridKey)

	g, err := scanGrid(tx.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.New("grid not found")
		}
		return nil, fmt.Errorf("failed to update grid: %w", err)
	}

	summary := fmt.Sprintf("Updated fields: %s", strings.Join(changed, ", "))
	if req.ChangeSummary != nil && *req.ChangeSummary != "" {
		summary = *req.ChangeSummary
	}
	if err := insertSnapshot(ctx, tx, g, summary); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.invalidateDimensions(ctx, gridKey)
	s.logger.Infof("Updated grid %s to version %d", g.GridKey, g.Version)
	return g, nil
}

// Archive soft-deletes a grid by flipping its status
func (s *Service) Archive(ctx context.Context, gridKey string) error {
	commandTag, err := s.db.Pool().Exec(ctx,
		"UPDATE grids SET status = 'archived', updated_at = now() WHERE grid_key = $1", gridKey)
	if err != nil {
		return fmt.Errorf("failed to archive grid: %w", err)
	}
	if commandTag.RowsAffected() == 0 {
		return errors.New("grid not found")
	}
	s.logger.Infof("Archived grid %s", gridKey)
	return nil
}

// SubmitWildcard stores a new wildcard suggestion for a grid
func (s *Service) SubmitWildcard(ctx context.Context, gridKey string, req WildcardRequest) (*Wildcard, error) {
	if req.DimensionType != "condition" && req.DimensionType != "axis" {
		return nil, errors.New("invalid dimension type")
	}

	g, err := s.Get(ctx, gridKey)
	if err != nil {
		return nil, err
	}

	scope := req.Scope
	if scope == "" {
		scope = "project_specific"
	}
	if scope != "universal" && scope != "project_specific" {
		return nil, errors.New("invalid scope")
	}

	query := fmt.Sprintf(`INSERT INTO wildcard_suggestions (id, grid_id, dimension_type, name,
		description, rationale, confidence, scope, source_project, source_session_id,
		evidence_questions, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 'suggested')
		RETURNING %s`, wildcardColumns)
	w, err := scanWildcard(s.db.Pool().QueryRow(ctx, query,
		uuid.New().String(), g.ID, req.DimensionType, req.Name, req.Description,
		req.Rationale, req.Confidence, scope, req.SourceProject, req.SourceSessionID,
		req.EvidenceQuestions))
	if err != nil {
		return nil, fmt.Errorf("failed to submit wildcard suggestion: %w", err)
	}

	s.logger.Infof("Wildcard %s suggested for grid %s (%s %q)", w.ID, gridKey, w.DimensionType, w.Name)
	return w, nil
}

// Wildcards lists a grid's wildcard suggestions, newest first
func (s *Service) Wildcards(ctx context.Context, gridKey, status, scope string) ([]Wildcard, error) {
	g, err := s.Get(ctx, gridKey)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM wildcard_suggestions WHERE grid_id = $1", wildcardColumns)
	args := []interface{}{g.ID}
	argIndex := 2
	if status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIndex)
		args = append(args, status)
		argIndex++
	}
	if scope != "" {
		query += fmt.Sprintf(" AND scope = $%d", argIndex)
		args = append(args, scope)
		argIndex++
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list wildcard suggestions: %w", err)
	}
	defer rows.Close()

	wildcards := []Wildcard{}
	for rows.Next() {
		w, err := scanWildcard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wildcard suggestion: %w", err)
		}
		wildcards = append(wildcards, *w)
	}
	return wildcards, nil
}

func (s *Service) setWildcardStatus(ctx context.Context, gridKey, wildcardID, status string) (*Wildcard, error) {
	g, err := s.Get(ctx, gridKey)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`UPDATE wildcard_suggestions SET status = $1, updated_at = now()
		WHERE id = $2 AND grid_id = $3 RETURNING %s`, wildcardColumns)
	w, err := scanWildcard(s.db.Pool().QueryRow(ctx, query, status, wildcardID, g.ID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.New("wildcard suggestion not found")
		}
		return nil, fmt.Errorf("failed to update wildcard suggestion: %w", err)
	}
	return w, nil
}

// PromoteWildcard moves a suggestion into review
func (s *Service) PromoteWildcard(ctx context.Context, gridKey, wildcardID string) (*Wildcard, error) {
	return s.setWildcardStatus(ctx, gridKey, wildcardID, "review")
}

// RejectWildcard marks a suggestion rejected
func (s *Service) RejectWildcard(ctx context.Context, gridKey, wildcardID string) (*Wildcard, error) {
	return s.setWildcardStatus(ctx, gridKey, wildcardID, "rejected")
}

// AddWildcardToGrid appends a reviewed wildcard as a new dimension, bumping
// the grid version and writing a snapshot. The new dimension is tagged with
// the post-promotion version.
func (s *Service) AddWildcardToGrid(ctx context.Context, gridKey, wildcardID string) (*PromotionResult, error) {
	g, err := s.Get(ctx, gridKey)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM wildcard_suggestions WHERE id = $1 AND grid_id = $2", wildcardColumns)
	w, err := scanWildcard(s.db.Pool().QueryRow(ctx, query, wildcardID, g.ID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.New("wildcard suggestion not found")
		}
		return nil, fmt.Errorf("failed to get wildcard suggestion: %w", err)
	}

	newVersion := g.Version + 1
	dimension := Dimension{
		Name:         w.Name,
		Description:  w.Description,
		AddedVersion: newVersion,
	}

	conditions := g.Conditions
	axes := g.Axes
	if w.DimensionType == "condition" {
		conditions = append(conditions, dimension)
	} else {
		axes = append(axes, dimension)
	}

	tx, err := s.db.Pool().Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	updateQuery := fmt.Sprintf(`UPDATE grids SET conditions = $1, axes = $2,
		version = $3, updated_at = now() WHERE id = $4 RETURNING %s`, gridColumns)
	updated, err := scanGrid(tx.QueryRow(ctx, updateQuery, conditions, axes, newVersion, g.ID))
	if err != nil {
		return nil, fmt.Errorf("failed to add dimension to grid: %w", err)
	}

	summary := fmt.Sprintf("Added %s '%s' from wildcard suggestion", w.DimensionType, w.Name)
	if err := insertSnapshot(ctx, tx, updated, summary); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx,
		"UPDATE wildcard_suggestions SET status = 'promoted', updated_at = now() WHERE id = $1",
		w.ID); err != nil {
		return nil, fmt.Errorf("failed to mark wildcard promoted: %w", err)
	}
	w.Status = "promoted"

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.invalidateDimensions(ctx, gridKey)
	s.logger.Infof("Promoted wildcard %s into grid %s as %s %q (version %d)",
		w.ID, gridKey, w.DimensionType, w.Name, newVersion)
	return &PromotionResult{Grid: updated, AddedDimension: dimension, Wildcard: w}, nil
}

func insertSnapshot(ctx context.Context, tx pgx.Tx, g *Grid, changeSummary string) error {
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("failed to serialize grid snapshot: %w", err)
	}
	var snapshot map[string]interface{}
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("failed to build grid snapshot: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO grid_versions (id, grid_id, version, full_snapshot, change_summary)
		 VALUES ($1, $2, $3, $4, $5)`,
		uuid.New().String(), g.ID, g.Version, snapshot, changeSummary)
	if err != nil {
		return fmt.Errorf("failed to write grid version snapshot: %w", err)
	}
	return nil
}
