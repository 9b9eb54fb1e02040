package change

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/analyzerhq/analyzer-console/internal/services/consumer"
	"github.com/analyzerhq/analyzer-console/pkg/database"
	"github.com/analyzerhq/analyzer-console/pkg/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Service provides change tracking and propagation operations
type Service struct {
	db        *database.PostgreSQL
	consumers *consumer.Service
	logger    *logger.Logger
}

// NewService creates a new change tracking service
func NewService(db *database.PostgreSQL, consumers *consumer.Service, logger *logger.Logger) *Service {
	return &Service{
		db:        db,
		consumers: consumers,
		logger:    logger,
	}
}

// Event records one change to a construct
type Event struct {
	ID                string                 `json:"id"`
	ConstructType     string                 `json:"construct_type"`
	ConstructKey      string                 `json:"construct_key"`
	ChangeType        string                 `json:"change_type"`
	OldValue          map[string]interface{} `json:"old_value"`
	NewValue          map[string]interface{} `json:"new_value"`
	Diff              map[string]interface{} `json:"diff"`
	ChangedBy         *string                `json:"changed_by"`
	ChangeSummary     *string                `json:"change_summary"`
	PropagationStatus string                 `json:"propagation_status"`
	AffectedConsumers []string               `json:"affected_consumers"`
	ChangedAt         time.Time              `json:"changed_at"`
}

// Notification records one consumer's notification trail for an event
type Notification struct {
	ID              string     `json:"id"`
	ChangeEventID   string     `json:"change_event_id"`
	ConsumerID      string     `json:"consumer_id"`
	NotifiedAt      *time.Time `json:"notified_at"`
	AcknowledgedAt  *time.Time `json:"acknowledged_at"`
	ActionTaken     string     `json:"action_taken"`
	ResponseMessage *string    `json:"response_message"`
}

// RecordRequest holds the fields accepted when recording a change event
type RecordRequest struct {
	ConstructType string                 `json:"construct_type"`
	ConstructKey  string                 `json:"construct_key"`
	ChangeType    string                 `json:"change_type"`
	OldValue      map[string]interface{} `json:"old_value,omitempty"`
	NewValue      map[string]interface{} `json:"new_value,omitempty"`
	Diff          map[string]interface{} `json:"diff,omitempty"`
	ChangedBy     *string                `json:"changed_by,omitempty"`
	ChangeSummary *string                `json:"change_summary,omitempty"`
}

// ListFilter holds the filtering and paging options for List
type ListFilter struct {
	ConstructType string
	ConstructKey  string
	ChangeType    string
	Status        string
	Limit         int
	Offset        int
}

// NotifiedConsumer summarizes one consumer reached during propagation
type NotifiedConsumer struct {
	ConsumerName string  `json:"consumer_name"`
	WebhookURL   *string `json:"webhook_url"`
	AutoUpdate   bool    `json:"auto_update"`
}

// PropagationResult reports the outcome of a propagation run
type PropagationResult struct {
	ChangeID          string             `json:"change_id"`
	PropagationStatus string             `json:"propagation_status"`
	NotificationsSent int                `json:"notifications_sent"`
	Notifications     []NotifiedConsumer `json:"notifications"`
}

// validActions are the acknowledgment actions a consumer may report
var validActions = map[string]bool{
	"updated":            true,
	"ignored":            true,
	"rollback_requested": true,
}

const eventColumns = `id, construct_type, construct_key, change_type, old_value, new_value, diff,
	changed_by, change_summary, propagation_status, affected_consumers, changed_at`

const notificationColumns = `id, change_event_id, consumer_id, notified_at, acknowledged_at,
	action_taken, response_message`

func scanEvent(row pgx.Row) (*Event, error) {
	var e Event
	err := row.Scan(
		&e.ID,
		&e.ConstructType,
		&e.ConstructKey,
		&e.ChangeType,
		&e.OldValue,
		&e.NewValue,
		&e.Diff,
		&e.ChangedBy,
		&e.ChangeSummary,
		&e.PropagationStatus,
		&e.AffectedConsumers,
		&e.ChangedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func scanNotification(row pgx.Row) (*Notification, error) {
	var n Notification
	err := row.Scan(
		&n.ID,
		&n.ChangeEventID,
		&n.ConsumerID,
		&n.NotifiedAt,
		&n.AcknowledgedAt,
		&n.ActionTaken,
		&n.ResponseMessage,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func validateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid change ID format")
	}
	return nil
}

// Get retrieves a change event by id
func (s *Service) Get(ctx context.Context, changeID string) (*Event, error) {
	if err := validateID(changeID); err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM change_events WHERE id = $1", eventColumns)
	e, err := scanEvent(s.db.Pool().QueryRow(ctx, query, changeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.New("change event not found")
		}
		return nil, fmt.Errorf("failed to get change event: %w", err)
	}
	return e, nil
}

// List retrieves change events matching the filter, newest first
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Event, error) {
	whereParts := []string{}
	args := []interface{}{}
	argIndex := 1

	appendWhere := func(column, value string) {
		whereParts = append(whereParts, fmt.Sprintf("%s = $%d", column, argIndex))
		args = append(args, value)
		argIndex++
	}

	if filter.ConstructType != "" {
		appendWhere("construct_type", filter.ConstructType)
	}
	if filter.ConstructKey != "" {
		appendWhere("construct_key", filter.ConstructKey)
	}
	if filter.ChangeType != "" {
		appendWhere("change_type", filter.ChangeType)
	}
	if filter.Status != "" {
		appendWhere("propagation_status", filter.Status)
	}

	where := ""
	if len(whereParts) > 0 {
		where = " WHERE " + strings.Join(whereParts, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf("SELECT %s FROM change_events%s ORDER BY changed_at DESC OFFSET $%d LIMIT $%d",
		eventColumns, where, argIndex, argIndex+1)
	args = append(args, filter.Offset, limit)

	rows, err := s.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list change events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan change event: %w", err)
		}
		events = append(events, *e)
	}
	return events, nil
}

// PendingCount returns the number of change events awaiting propagation
func (s *Service) PendingCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.Pool().QueryRow(ctx,
		"SELECT COUNT(*) FROM change_events WHERE propagation_status = 'pending'").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending changes: %w", err)
	}
	return count, nil
}

// History retrieves the change events for one construct, newest first
func (s *Service) History(ctx context.Context, constructType, constructKey string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT %s FROM change_events
		WHERE construct_type = $1 AND construct_key = $2
		ORDER BY changed_at DESC LIMIT $3`, eventColumns)
	rows, err := s.db.Pool().Query(ctx, query, constructType, constructKey, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load construct history: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan change event: %w", err)
		}
		events = append(events, *e)
	}
	return events, nil
}

// Notifications retrieves the notification trail for a change event
func (s *Service) Notifications(ctx context.Context, changeID string) ([]Notification, error) {
	if err := validateID(changeID); err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM change_notifications WHERE change_event_id = $1", notificationColumns)
	rows, err := s.db.Pool().Query(ctx, query, changeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list change notifications: %w", err)
	}
	defer rows.Close()

	notifications := []Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan change notification: %w", err)
		}
		notifications = append(notifications, *n)
	}
	return notifications, nil
}

// Record stores a change event. The affected consumer set is resolved from
// the active dependencies at record time; consumers registered later are not
// picked up by a subsequent propagation.
func (s *Service) Record(ctx context.Context, req RecordRequest) (*Event, error) {
	affected, err := s.consumers.ActiveConsumerIDs(ctx, req.ConstructType, req.ConstructKey)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`INSERT INTO change_events (
		id, construct_type, construct_key, change_type, old_value, new_value, diff,
		changed_by, change_summary, propagation_status, affected_consumers
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'pending', $10)
	RETURNING %s`, eventColumns)

	e, err := scanEvent(s.db.Pool().QueryRow(ctx, query,
		uuid.New().String(), req.ConstructType, req.ConstructKey, req.ChangeType,
		req.OldValue, req.NewValue, req.Diff, req.ChangedBy, req.ChangeSummary, affected))
	if err != nil {
		return nil, fmt.Errorf("failed to record change event: %w", err)
	}

	s.logger.Infof("Recorded %s change for %s/%s affecting %d consumers",
		e.ChangeType, e.ConstructType, e.ConstructKey, len(affected))
	return e, nil
}

// Propagate creates one notification per affected consumer. A consumer id
// that no longer resolves is skipped silently; the event always completes.
func (s *Service) Propagate(ctx context.Context, changeID string, notifyOnly bool) (*PropagationResult, error) {
	e, err := s.Get(ctx, changeID)
	if err != nil {
		return nil, err
	}

	if _, err := s.db.Pool().Exec(ctx,
		"UPDATE change_events SET propagation_status = 'in_progress' WHERE id = $1", changeID); err != nil {
		return nil, fmt.Errorf("failed to mark change in progress: %w", err)
	}

	notified := []NotifiedConsumer{}
	for _, consumerID := range e.AffectedConsumers {
		c, err := s.consumers.Get(ctx, consumerID)
		if err != nil {
			continue
		}

		_, err = s.db.Pool().Exec(ctx,
			`INSERT INTO change_notifications (id, change_event_id, consumer_id, notified_at, action_taken)
			 VALUES ($1, $2, $3, now(), 'pending')`,
			uuid.New().String(), changeID, consumerID)
		if err != nil {
			return nil, fmt.Errorf("failed to create change notification: %w", err)
		}

		notified = append(notified, NotifiedConsumer{
			ConsumerName: c.Name,
			WebhookURL:   c.WebhookURL,
			AutoUpdate:   c.AutoUpdate && !notifyOnly,
		})
	}

	if _, err := s.db.Pool().Exec(ctx,
		"UPDATE change_events SET propagation_status = 'completed' WHERE id = $1", changeID); err != nil {
		return nil, fmt.Errorf("failed to mark change completed: %w", err)
	}

	s.logger.Infof("Propagated change %s to %d consumers", changeID, len(notified))
	return &PropagationResult{
		ChangeID:          changeID,
		PropagationStatus: "completed",
		NotificationsSent: len(notified),
		Notifications:     notified,
	}, nil
}

// Acknowledge records a consumer's response to a change notification
func (s *Service) Acknowledge(ctx context.Context, changeID, consumerID, action string, message *string) (*Notification, error) {
	if err := validateID(changeID); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(consumerID); err != nil {
		return nil, errors.New("invalid consumer ID format")
	}
	if !validActions[action] {
		return nil, errors.New("invalid action")
	}

	query := fmt.Sprintf(`UPDATE change_notifications
		SET acknowledged_at = now(), action_taken = $1, response_message = $2
		WHERE change_event_id = $3 AND consumer_id = $4
		RETURNING %s`, notificationColumns)

	n, err := scanNotification(s.db.Pool().QueryRow(ctx, query, action, message, changeID, consumerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.New("notification not found")
		}
		return nil, fmt.Errorf("failed to acknowledge notification: %w", err)
	}
	return n, nil
}

// MigrationHints derives the hints for a stored change event
func (s *Service) MigrationHints(ctx context.Context, changeID string) (*Event, []MigrationHint, error) {
	e, err := s.Get(ctx, changeID)
	if err != nil {
		return nil, nil, err
	}
	return e, HintsFor(e), nil
}
