package engine

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/analyzerhq/analyzer-console/pkg/database"
	"github.com/analyzerhq/analyzer-console/pkg/logger"
)

// newTestService connects to the database named by ANALYZER_TEST_DATABASE_URL
// and ensures the schema. Tests needing a live database skip when it is unset.
func newTestService(t *testing.T) *Service {
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

	log := logger.New("engine-test", "test")
	log.DisableConsoleOutput()
	return NewService(db, log)
}

func uniqueKey(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
}

func TestUpdateIncrementsVersionWithDenseSnapshots(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	key := uniqueKey("version_walk")

	created, err := svc.Create(ctx, CreateRequest{
		EngineKey:       key,
		EngineName:      "Version Walk",
		Description:     "initial",
		Category:        "analytical",
		CanonicalSchema: map[string]interface{}{"type": "object"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, created.Version)

	const updates = 3
	for i := 1; i <= updates; i++ {
		description := fmt.Sprintf("revision %d", i)
		e, err := svc.Update(ctx, key, UpdateRequest{Description: &description})
		require.NoError(t, err)
		assert.Equal(t, 1+i, e.Version)
	}

	current, versions, err := svc.Versions(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 1+updates, current)
	require.Len(t, versions, updates+1)

	// Newest first, one snapshot per version with no gaps.
	for i, v := range versions {
		assert.Equal(t, 1+updates-i, v.Version)
		assert.NotEmpty(t, v.FullSnapshot)
	}
}

func TestRestoreProducesNewVersionNotARewind(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	key := uniqueKey("restore")

	_, err := svc.Create(ctx, CreateRequest{
		EngineKey:       key,
		EngineName:      "Original Name",
		Description:     "as first written",
		Category:        "analytical",
		CanonicalSchema: map[string]interface{}{"type": "object"},
	})
	require.NoError(t, err)

	renamed := "Renamed"
	updated, err := svc.Update(ctx, key, UpdateRequest{EngineName: &renamed})
	require.NoError(t, err)
	require.Equal(t, 2, updated.Version)

	restored, err := svc.Restore(ctx, key, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, restored.Version)
	assert.Equal(t, "Original Name", restored.EngineName)

	current, versions, err := svc.Versions(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 3, current)
	require.Len(t, versions, 3)
	require.NotNil(t, versions[0].ChangeSummary)
	assert.Equal(t, "Restored from version 1", *versions[0].ChangeSummary)
}
