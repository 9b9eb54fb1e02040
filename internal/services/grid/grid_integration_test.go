package grid

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

	log := logger.New("grid-test", "test")
	log.DisableConsoleOutput()
	return NewService(db, nil, log)
}

func uniqueGridKey(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
}

func TestUpdateIncrementsVersionWithDenseSnapshots(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	key := uniqueGridKey("version_walk")

	created, err := svc.Create(ctx, CreateRequest{
		GridKey:    key,
		GridName:   "Version Walk",
		Track:      "ideas",
		Conditions: []Dimension{{Name: "novelty"}},
		Axes:       []Dimension{{Name: "impact"}},
	})
	require.NoError(t, err)
	require.Equal(t, 1, created.Version)

	const updates = 2
	for i := 1; i <= updates; i++ {
		description := fmt.Sprintf("revision %d", i)
		g, err := svc.Update(ctx, key, UpdateRequest{Description: &description})
		require.NoError(t, err)
		assert.Equal(t, 1+i, g.Version)
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

func TestAddWildcardToGridBumpsVersionAndTagsDimension(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	key := uniqueGridKey("wildcard_add")

	created, err := svc.Create(ctx, CreateRequest{
		GridKey:    key,
		GridName:   "Wildcard Add",
		Track:      "ideas",
		Conditions: []Dimension{{Name: "novelty"}},
		Axes:       []Dimension{{Name: "impact"}},
	})
	require.NoError(t, err)

	wildcard, err := svc.SubmitWildcard(ctx, key, WildcardRequest{
		DimensionType: "condition",
		Name:          "feasibility",
		Rationale:     "kept coming up in sessions",
	})
	require.NoError(t, err)
	require.Equal(t, "suggested", wildcard.Status)

	_, err = svc.PromoteWildcard(ctx, key, wildcard.ID)
	require.NoError(t, err)

	result, err := svc.AddWildcardToGrid(ctx, key, wildcard.ID)
	require.NoError(t, err)

	// The new dimension carries the post-bump grid version.
	assert.Equal(t, created.Version+1, result.Grid.Version)
	assert.Equal(t, result.Grid.Version, result.AddedDimension.AddedVersion)
	assert.Equal(t, "promoted", result.Wildcard.Status)
	require.Len(t, result.Grid.Conditions, 2)
	assert.Equal(t, "feasibility", result.Grid.Conditions[1].Name)

	current, versions, err := svc.Versions(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, result.Grid.Version, current)
	require.Len(t, versions, 2)
	require.NotNil(t, versions[0].ChangeSummary)
	assert.Contains(t, *versions[0].ChangeSummary, "from wildcard suggestion")
}
