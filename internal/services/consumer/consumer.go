package consumer

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

// Service provides consumer registry operations
type Service struct {
	db     *database.PostgreSQL
	logger *logger.Logger
}

// NewService creates a new consumer service
func NewService(db *database.PostgreSQL, logger *logger.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger,
	}
}

// Consumer is a registered service depending on catalog constructs
type Consumer struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	ConsumerType    string    `json:"consumer_type"`
	RepoURL         *string   `json:"repo_url"`
	WebhookURL      *string   `json:"webhook_url"`
	ContactEmail    *string   `json:"contact_email"`
	AutoUpdate      bool      `json:"auto_update"`
	DependencyCount int       `json:"dependency_count"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Dependency records one construct a consumer depends on
type Dependency struct {
	ID            string    `json:"id"`
	ConsumerID    string    `json:"consumer_id"`
	ConstructType string    `json:"construct_type"`
	ConstructKey  string    `json:"construct_key"`
	UsageLocation *string   `json:"usage_location"`
	UsageType     string    `json:"usage_type"`
	DiscoveredAt  time.Time `json:"discovered_at"`
	LastVerified  time.Time `json:"last_verified"`
	IsActive      bool      `json:"is_active"`
}

// ConstructConsumer pairs a consumer with the dependency linking it to a
// construct, for by-construct lookups
type ConstructConsumer struct {
	Consumer   Consumer   `json:"consumer"`
	Dependency Dependency `json:"dependency"`
}

// DependencyRequest holds the fields accepted when declaring a dependency
type DependencyRequest struct {
	ConstructType string  `json:"construct_type"`
	ConstructKey  string  `json:"construct_key"`
	UsageLocation *string `json:"usage_location,omitempty"`
	UsageType     string  `json:"usage_type,omitempty"`
}

// RegisterRequest holds the fields accepted when registering a consumer
type RegisterRequest struct {
	Name         string              `json:"name"`
	ConsumerType string              `json:"consumer_type"`
	RepoURL      *string             `json:"repo_url,omitempty"`
	WebhookURL   *string             `json:"webhook_url,omitempty"`
	ContactEmail *string             `json:"contact_email,omitempty"`
	AutoUpdate   bool                `json:"auto_update"`
	Dependencies []DependencyRequest `json:"dependencies,omitempty"`
}

// UpdateRequest holds the fields accepted when updating a consumer
type UpdateRequest struct {
	Name         *string `json:"name,omitempty"`
	ConsumerType *string `json:"consumer_type,omitempty"`
	RepoURL      *string `json:"repo_url,omitempty"`
	WebhookURL   *string `json:"webhook_url,omitempty"`
	ContactEmail *string `json:"contact_email,omitempty"`
	AutoUpdate   *bool   `json:"auto_update,omitempty"`
}

const consumerColumns = `c.id, c.name, c.consumer_type, c.repo_url, c.webhook_url, c.contact_email,
	c.auto_update,
	(SELECT COUNT(*) FROM consumer_dependencies d WHERE d.consumer_id = c.id),
	c.created_at, c.updated_at`

const dependencyColumns = `id, consumer_id, construct_type, construct_key, usage_location,
	usage_type, discovered_at, last_verified, is_active`

func scanConsumer(row pgx.Row) (*Consumer, error) {
	var c Consumer
	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.ConsumerType,
		&c.RepoURL,
		&c.WebhookURL,
		&c.ContactEmail,
		&c.AutoUpdate,
		&c.DependencyCount,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func scanDependency(row pgx.Row) (*Dependency, error) {
	var d Dependency
	err := row.Scan(
		&d.ID,
		&d.ConsumerID,
		&d.ConstructType,
		&d.ConstructKey,
		&d.UsageLocation,
		&d.UsageType,
		&d.DiscoveredAt,
		&d.LastVerified,
		&d.IsActive,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// validateID rejects malformed consumer ids before they reach the database
func validateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid consumer ID format")
	}
	return nil
}

// Get retrieves a consumer by id
func (s *Service) Get(ctx context.Context, consumerID string) (*Consumer, error) {
	if err := validateID(consumerID); err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM consumers c WHERE c.id = $1", consumerColumns)
	c, err := scanConsumer(s.db.Pool().QueryRow(ctx, query, consumerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.New("consumer not found")
		}
		return nil, fmt.Errorf("failed to get consumer: %w", err)
	}
	return c, nil
}

// List retrieves all registered consumers, optionally filtered by type
func (s *Service) List(ctx context.Context, consumerType string) ([]Consumer, error) {
	query := fmt.Sprintf("SELECT %s FROM consumers c", consumerColumns)
	args := []interface{}{}
	if consumerType != "" {
		query += " WHERE c.consumer_type = $1"
		args = append(args, consumerType)
	}
	query += " ORDER BY c.name"

	rows, err := s.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list consumers: %w", err)
	}
	defer rows.Close()

	consumers := []Consumer{}
	for rows.Next() {
		c, err := scanConsumer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan consumer: %w", err)
		}
		consumers = append(consumers, *c)
	}
	return consumers, nil
}

// Dependencies lists a consumer's declared dependencies, optionally filtered
// by construct type
func (s *Service) Dependencies(ctx context.Context, consumerID, constructType string) ([]Dependency, error) {
	if err := validateID(consumerID); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM consumer_dependencies WHERE consumer_id = $1", dependencyColumns)
	args := []interface{}{consumerID}
	if constructType != "" {
		query += " AND construct_type = $2"
		args = append(args, constructType)
	}

	rows, err := s.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list consumer dependencies: %w", err)
	}
	defer rows.Close()

	dependencies := []Dependency{}
	for rows.Next() {
		d, err := scanDependency(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan consumer dependency: %w", err)
		}
		dependencies = append(dependencies, *d)
	}
	return dependencies, nil
}

// ByConstruct finds all consumers with an active dependency on a construct
func (s *Service) ByConstruct(ctx context.Context, constructType, constructKey string) ([]ConstructConsumer, error) {
	query := fmt.Sprintf(`SELECT %s FROM consumer_dependencies
		WHERE construct_type = $1 AND construct_key = $2 AND is_active = true`, dependencyColumns)
	rows, err := s.db.Pool().Query(ctx, query, constructType, constructKey)
	if err != nil {
		return nil, fmt.Errorf("failed to look up consumers by construct: %w", err)
	}
	defer rows.Close()

	dependencies := []Dependency{}
	for rows.Next() {
		d, err := scanDependency(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan consumer dependency: %w", err)
		}
		dependencies = append(dependencies, *d)
	}

	results := []ConstructConsumer{}
	for _, d := range dependencies {
		c, err := s.Get(ctx, d.ConsumerID)
		if err != nil {
			// Dependency rows can outlive their consumer; skip them.
			continue
		}
		results = append(results, ConstructConsumer{Consumer: *c, Dependency: d})
	}
	return results, nil
}

// ActiveConsumerIDs returns the distinct ids of consumers with an active
// dependency on the construct. Used by the change tracker at record time.
func (s *Service) ActiveConsumerIDs(ctx context.Context, constructType, constructKey string) ([]string, error) {
	rows, err := s.db.Pool().Query(ctx,
		`SELECT DISTINCT consumer_id FROM consumer_dependencies
		 WHERE construct_type = $1 AND construct_key = $2 AND is_active = true`,
		constructType, constructKey)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve affected consumers: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan consumer id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Register creates a consumer together with its declared dependencies
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Consumer, error) {
	tx, err := s.db.Pool().Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	id := uuid.New().String()
	_, err = tx.Exec(ctx,
		`INSERT INTO consumers (id, name, consumer_type, repo_url, webhook_url, contact_email, auto_update)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, req.Name, req.ConsumerType, req.RepoURL, req.WebhookURL, req.ContactEmail, req.AutoUpdate)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	for _, dep := range req.Dependencies {
		usageType := dep.UsageType
		if usageType == "" {
			usageType = "direct"
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO consumer_dependencies (id, consumer_id, construct_type, construct_key, usage_location, usage_type)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.New().String(), id, dep.ConstructType, dep.ConstructKey, dep.UsageLocation, usageType)
		if err != nil {
			return nil, fmt.Errorf("failed to register consumer dependency: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Infof("Registered consumer %s (%s) with %d dependencies",
		req.Name, id, len(req.Dependencies))
	return s.Get(ctx, id)
}

// Update applies a partial update to a consumer
func (s *Service) Update(ctx context.Context, consumerID string, req UpdateRequest) (*Consumer, error) {
	if err := validateID(consumerID); err != nil {
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

	if req.Name != nil {
		appendSet("name", *req.Name)
	}
	if req.ConsumerType != nil {
		appendSet("consumer_type", *req.ConsumerType)
	}
	if req.RepoURL != nil {
		appendSet("repo_url", *req.RepoURL)
	}
	if req.WebhookURL != nil {
		appendSet("webhook_url", *req.WebhookURL)
	}
	if req.ContactEmail != nil {
		appendSet("contact_email", *req.ContactEmail)
	}
	if req.AutoUpdate != nil {
		appendSet("auto_update", *req.AutoUpdate)
	}

	if len(setParts) == 0 {
		return nil, errors.New("no fields to update")
	}
	setParts = append(setParts, "updated_at = now()")

	query := fmt.Sprintf("UPDATE consumers SET %s WHERE id = $%d",
		strings.Join(setParts, ", "), argIndex)
	args = append(args, consumerID)

	commandTag, err := s.db.Pool().Exec(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update consumer: %w", err)
	}
	if commandTag.RowsAffected() == 0 {
		return nil, errors.New("consumer not found")
	}
	return s.Get(ctx, consumerID)
}

// AddDependency declares a new dependency for a consumer
func (s *Service) AddDependency(ctx context.Context, consumerID string, req DependencyRequest) (*Dependency, error) {
	if _, err := s.Get(ctx, consumerID); err != nil {
		return nil, err
	}

	usageType := req.UsageType
	if usageType == "" {
		usageType = "direct"
	}

	query := fmt.Sprintf(`INSERT INTO consumer_dependencies
		(id, consumer_id, construct_type, construct_key, usage_location, usage_type)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING %s`, dependencyColumns)
	d, err := scanDependency(s.db.Pool().QueryRow(ctx, query,
		uuid.New().String(), consumerID, req.ConstructType, req.ConstructKey,
		req.UsageLocation, usageType))
	if err != nil {
		return nil, fmt.Errorf("failed to add consumer dependency: %w", err)
	}

	s.logger.Infof("Consumer %s now depends on %s/%s", consumerID, d.ConstructType, d.ConstructKey)
	return d, nil
}

// RemoveDependency soft-deletes a dependency by flipping is_active
func (s *Service) RemoveDependency(ctx context.Context, consumerID, dependencyID string) error {
	if err := validateID(consumerID); err != nil {
		return err
	}
	if _, err := uuid.Parse(dependencyID); err != nil {
		return errors.New("invalid dependency ID format")
	}

	commandTag, err := s.db.Pool().Exec(ctx,
		"UPDATE consumer_dependencies SET is_active = false WHERE id = $1 AND consumer_id = $2",
		dependencyID, consumerID)
	if err != nil {
		return fmt.Errorf("failed to remove consumer dependency: %w", err)
	}
	if commandTag.RowsAffected() == 0 {
		return errors.New("dependency not found")
	}
	return nil
}

// Delete hard-deletes a consumer and its dependencies
func (s *Service) Delete(ctx context.Context, consumerID string) error {
	if err := validateID(consumerID); err != nil {
		return err
	}
	commandTag, err := s.db.Pool().Exec(ctx, "DELETE FROM consumers WHERE id = $1", consumerID)
	if err != nil {
		return fmt.Errorf("failed to delete consumer: %w", err)
	}
	if commandTag.RowsAffected() == 0 {
		return errors.New("consumer not found")
	}
	s.logger.Infof("Deleted consumer %s", consumerID)
	return nil
}
