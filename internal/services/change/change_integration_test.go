package change

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/analyzerhq/analyzer-console/internal/services/consumer"
	"github.com/analyzerhq/analyzer-console/pkg/database"
	"github.com/analyzerhq/analyzer-console/pkg/logger"
)

// newTestServices connects to the database named by ANALYZER_TEST_DATABASE_URL
// and ensures the schema. Tests needing a live database skip when it is unset.
func newTestServices(t *testing.T) (*Service, *consumer.Service) {
	t.Helper()
	url := os.Getenv("ANALYZER_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("ANALYZER_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := database.NewFromURL(ctx, url)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.EnsureSchema(ctx))

	log := logger.New("change-test", "test")
	log.DisableConsoleOutput()
	consumers := consumer.NewService(db, log)
	return NewService(db, consumers, log), consumers
}

func uniqueConstructKey(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
}

func TestRecordResolvesConsumersAtRecordTime(t *testing.T) {
	changes, consumers := newTestServices(t)
	ctx := context.Background()
	constructKey := uniqueConstructKey("engine_under_change")

	early, err := consumers.Register(ctx, consumer.RegisterRequest{
		Name:         "early-" + constructKey,
		ConsumerType: "project",
		Dependencies: []consumer.DependencyRequest{
			{ConstructType: "engine", ConstructKey: constructKey},
		},
	})
	require.NoError(t, err)

	event, err := changes.Record(ctx, RecordRequest{
		ConstructType: "engine",
		ConstructKey:  constructKey,
		ChangeType:    "updated",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{early.ID}, event.AffectedConsumers)

	// A consumer registered after the record is not picked up by propagation.
	_, err = consumers.Register(ctx, consumer.RegisterRequest{
		Name:         "late-" + constructKey,
		ConsumerType: "project",
		Dependencies: []consumer.DependencyRequest{
			{ConstructType: "engine", ConstructKey: constructKey},
		},
	})
	require.NoError(t, err)

	result, err := changes.Propagate(ctx, event.ID, false)
	require.NoError(t, err)
	assert.Equal(t, "completed", result.PropagationStatus)
	require.Equal(t, 1, result.NotificationsSent)
	assert.Equal(t, early.Name, result.Notifications[0].ConsumerName)

	trail, err := changes.Notifications(ctx, event.ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, early.ID, trail[0].ConsumerID)
}

func TestRecordSkipsDeactivatedDependency(t *testing.T) {
	changes, consumers := newTestServices(t)
	ctx := context.Background()
	constructKey := uniqueConstructKey("engine_dropped")

	c, err := consumers.Register(ctx, consumer.RegisterRequest{
		Name:         "dormant-" + constructKey,
		ConsumerType: "project",
	})
	require.NoError(t, err)

	dep, err := consumers.AddDependency(ctx, c.ID, consumer.DependencyRequest{
		ConstructType: "engine",
		ConstructKey:  constructKey,
	})
	require.NoError(t, err)
	require.NoError(t, consumers.RemoveDependency(ctx, c.ID, dep.ID))

	event, err := changes.Record(ctx, RecordRequest{
		ConstructType: "engine",
		ConstructKey:  constructKey,
		ChangeType:    "updated",
	})
	require.NoError(t, err)
	assert.Empty(t, event.AffectedConsumers)
}

func TestPendingCountTracksRecordedEvents(t *testing.T) {
	changes, _ := newTestServices(t)
	ctx := context.Background()

	before, err := changes.PendingCount(ctx)
	require.NoError(t, err)

	event, err := changes.Record(ctx, RecordRequest{
		ConstructType: "engine",
		ConstructKey:  uniqueConstructKey("pending_count"),
		ChangeType:    "updated",
	})
	require.NoError(t, err)

	after, err := changes.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, before+1, after)

	_, err = changes.Propagate(ctx, event.ID, false)
	require.NoError(t, err)

	settled, err := changes.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, settled)
}
