package grid

import (
	"crypto/md5"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGrid() *Grid {
	return &Grid{
		GridKey: "ideas_grid",
		Track:   "ideas",
		Version: 3,
		Conditions: []Dimension{
			{Name: "novelty", Description: "How new the idea is", AddedVersion: 1},
			{Name: "feasibility", Description: "How buildable it is", AddedVersion: 2},
		},
		Axes: []Dimension{
			{Name: "impact", Description: "Expected effect size", AddedVersion: 1},
		},
	}
}

func TestDimensionsOf(t *testing.T) {
	d := DimensionsOf(testGrid())

	assert.Equal(t, "ideas_grid", d.GridKey)
	assert.Equal(t, 3, d.Version)
	assert.Equal(t, []string{"novelty", "feasibility"}, d.Conditions)
	assert.Equal(t, []string{"impact"}, d.Axes)

	expected := fmt.Sprintf("%x", md5.Sum([]byte("novelty|feasibility|impact")))[:8]
	assert.Equal(t, expected, d.DimensionHash)
	assert.Len(t, d.DimensionHash, 8)
}

func TestDimensionsOfEmptyGrid(t *testing.T) {
	g := &Grid{GridKey: "empty", Version: 1}
	d := DimensionsOf(g)

	assert.Empty(t, d.Conditions)
	assert.Empty(t, d.Axes)
	assert.Len(t, d.DimensionHash, 8)
}

func TestDimensionHashChangesWithNames(t *testing.T) {
	g := testGrid()
	before := DimensionsOf(g).DimensionHash

	g.Axes = append(g.Axes, Dimension{Name: "effort", AddedVersion: 4})
	after := DimensionsOf(g).DimensionHash

	require.NotEqual(t, before, after)
}

func TestDimensionHashIgnoresDescriptions(t *testing.T) {
	g := testGrid()
	before := DimensionsOf(g).DimensionHash

	g.Conditions[0].Description = "rewritten"
	after := DimensionsOf(g).DimensionHash

	assert.Equal(t, before, after)
}

func TestDimensionHashIsOrderSensitive(t *testing.T) {
	g := testGrid()
	before := DimensionsOf(g).DimensionHash

	g.Conditions[0], g.Conditions[1] = g.Conditions[1], g.Conditions[0]
	after := DimensionsOf(g).DimensionHash

	assert.NotEqual(t, before, after)
}
