package paradigm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/analyzerhq/analyzer-console/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	paradigms    map[string]*Paradigm
	saves        int
	beginErr     error
	saveFailures map[int]error // save call index -> error
}

func (f *fakeStore) Get(ctx context.Context, key string) (*Paradigm, error) {
	p, ok := f.paradigms[key]
	if !ok {
		return nil, errors.New("paradigm not found")
	}
	return p, nil
}

func (f *fakeStore) BeginGeneration(ctx context.Context, key string) error {
	if f.beginErr != nil {
		return f.beginErr
	}
	f.paradigms[key].GenerationStatus = "in_progress"
	return nil
}

func (f *fakeStore) SaveGenerated(ctx context.Context, p *Paradigm) error {
	idx := f.saves
	f.saves++
	if err, ok := f.saveFailures[idx]; ok {
		return err
	}
	f.paradigms[p.ParadigmKey] = p
	return nil
}

type scriptedCompleter struct {
	calls    int
	failures map[int]error // call index -> error
}

func (c *scriptedCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	idx := c.calls
	c.calls++
	if err, ok := c.failures[idx]; ok {
		return "", err
	}
	// The generation order is fixed: 3 text fields, 13 string lists, traits,
	// critique patterns.
	switch {
	case idx < 3:
		return fmt.Sprintf("generated text %d", idx), nil
	case idx < 16:
		return fmt.Sprintf(`["item a %d", "item b %d"]`, idx, idx), nil
	case idx == 16:
		return `[{"trait_name": "t", "trait_description": "d", "trait_items": ["i"]}]`, nil
	default:
		return `[{"pattern": "p", "diagnostic": "d", "fix": "f"}]`, nil
	}
}

func testParent() *Paradigm {
	return &Paradigm{
		ParadigmKey:      "parent",
		ParadigmName:     "Parent",
		Description:      "A parent paradigm",
		GuidingThinkers:  "Thinker One",
		Foundational:     FoundationalLayer{Assumptions: []string{"everything is connected"}},
		Status:           "active",
		GenerationStatus: "complete",
	}
}

func testBranch() *Paradigm {
	parentKey := "parent"
	return &Paradigm{
		ParadigmKey:       "branch",
		ParadigmName:      "Branch",
		ParentParadigmKey: &parentKey,
		BranchDepth:       1,
		Status:            "draft",
		GenerationStatus:  "pending",
		BranchMetadata: map[string]interface{}{
			"synthesis_directive": "emphasize temporal dynamics",
		},
	}
}

func newTestGenerator(store *fakeStore, llm Completer) *Generator {
	log := logger.New("test", "0.0.0")
	log.DisableConsoleOutput()
	return NewGenerator(store, llm, log)
}

func TestGenerateAllFieldsSucceed(t *testing.T) {
	store := &fakeStore{paradigms: map[string]*Paradigm{
		"parent": testParent(),
		"branch": testBranch(),
	}}
	llm := &scriptedCompleter{}
	gen := newTestGenerator(store, llm)

	result, err := gen.Generate(context.Background(), "branch")
	require.NoError(t, err)

	assert.Equal(t, "complete", result.GenerationStatus)
	assert.Len(t, result.GeneratedFields, len(branchFields))
	assert.Empty(t, result.Errors)
	assert.Equal(t, len(branchFields), llm.calls)

	p := store.paradigms["branch"]
	assert.Equal(t, "active", p.Status)
	assert.Equal(t, "complete", p.GenerationStatus)
	assert.NotEmpty(t, p.Description)
	assert.NotEmpty(t, p.GuidingThinkers)
	require.NotNil(t, p.HistoricalContext)
	assert.NotEmpty(t, *p.HistoricalContext)
	assert.NotEmpty(t, p.Foundational.Assumptions)
	assert.NotEmpty(t, p.Explanatory.IdealState)
	assert.NotEmpty(t, p.TraitDefinitions)
	assert.NotEmpty(t, p.CritiquePatterns)

	assert.Equal(t, p.BranchMetadata["generated_fields"].([]string), result.GeneratedFields)
	assert.NotEmpty(t, p.BranchMetadata["completed_at"])

	progress := DeriveProgress(p)
	assert.Equal(t, len(branchFields), progress.CompletedFields)
}

func TestGenerateSingleFieldFailureIsIsolated(t *testing.T) {
	store := &fakeStore{paradigms: map[string]*Paradigm{
		"parent": testParent(),
		"branch": testBranch(),
	}}
	// Fail the fourth call (foundational.assumptions).
	llm := &scriptedCompleter{failures: map[int]error{3: errors.New("model overloaded")}}
	gen := newTestGenerator(store, llm)

	result, err := gen.Generate(context.Background(), "branch")
	require.NoError(t, err)

	assert.Equal(t, "complete", result.GenerationStatus)
	assert.Len(t, result.GeneratedFields, len(branchFields)-1)
	assert.NotContains(t, result.GeneratedFields, "foundational.assumptions")
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "foundational.assumptions", result.Errors[0].Field)
	assert.Contains(t, result.Errors[0].Error, "model overloaded")

	// The failed field stays empty and the loop still reached the end.
	p := store.paradigms["branch"]
	assert.Empty(t, p.Foundational.Assumptions)
	assert.NotEmpty(t, p.CritiquePatterns)
}

func TestGenerateAllFieldsFail(t *testing.T) {
	failures := map[int]error{}
	for i := range branchFields {
		failures[i] = errors.New("unavailable")
	}
	store := &fakeStore{paradigms: map[string]*Paradigm{
		"parent": testParent(),
		"branch": testBranch(),
	}}
	gen := newTestGenerator(store, &scriptedCompleter{failures: failures})

	result, err := gen.Generate(context.Background(), "branch")
	require.NoError(t, err)

	assert.Equal(t, "failed", result.GenerationStatus)
	assert.Empty(t, result.GeneratedFields)
	assert.Len(t, result.Errors, len(branchFields))
	assert.Equal(t, "draft", store.paradigms["branch"].Status)
}

func TestGenerateRejectsNonBranch(t *testing.T) {
	store := &fakeStore{paradigms: map[string]*Paradigm{
		"parent": testParent(),
	}}
	gen := newTestGenerator(store, &scriptedCompleter{})

	_, err := gen.Generate(context.Background(), "parent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a branch")
}

func TestGenerateRejectsMissingParent(t *testing.T) {
	branch := testBranch()
	missing := "gone"
	branch.ParentParadigmKey = &missing
	store := &fakeStore{paradigms: map[string]*Paradigm{
		"branch": branch,
	}}
	gen := newTestGenerator(store, &scriptedCompleter{})

	_, err := gen.Generate(context.Background(), "branch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parent paradigm not found")
}

func TestGenerateRespectsInProgressGuard(t *testing.T) {
	store := &fakeStore{
		paradigms: map[string]*Paradigm{
			"parent": testParent(),
			"branch": testBranch(),
		},
		beginErr: errors.New("branch generation already in progress or complete"),
	}
	llm := &scriptedCompleter{}
	gen := newTestGenerator(store, llm)

	_, err := gen.Generate(context.Background(), "branch")
	require.Error(t, err)
	assert.Zero(t, llm.calls)
}

func TestGeneratePersistsAfterEveryField(t *testing.T) {
	store := &fakeStore{paradigms: map[string]*Paradigm{
		"parent": testParent(),
		"branch": testBranch(),
	}}
	gen := newTestGenerator(store, &scriptedCompleter{})

	_, err := gen.Generate(context.Background(), "branch")
	require.NoError(t, err)

	// One save per generated field plus the final metadata save.
	assert.Equal(t, len(branchFields)+1, store.saves)
}

func TestGenerateSaveFailureIsAnErrorNotAGeneratedField(t *testing.T) {
	store := &fakeStore{
		paradigms: map[string]*Paradigm{
			"parent": testParent(),
			"branch": testBranch(),
		},
		// Fail the persist after the first field (description).
		saveFailures: map[int]error{0: errors.New("connection reset")},
	}
	gen := newTestGenerator(store, &scriptedCompleter{})

	result, err := gen.Generate(context.Background(), "branch")
	require.NoError(t, err)

	// The field must land in exactly one of the two outcome lists.
	assert.NotContains(t, result.GeneratedFields, "description")
	assert.Len(t, result.GeneratedFields, len(branchFields)-1)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "description", result.Errors[0].Field)
	assert.Contains(t, result.Errors[0].Error, "connection reset")

	p := store.paradigms["branch"]
	assert.NotContains(t, p.BranchMetadata["generated_fields"].([]string), "description")
}

func TestDeriveProgressOnFreshBranch(t *testing.T) {
	progress := DeriveProgress(testBranch())
	assert.Equal(t, len(branchFields), progress.TotalFields)
	assert.Zero(t, progress.CompletedFields)
	assert.Equal(t, "pending", progress.GenerationStatus)
}

func TestParseStringListResponseFallbacks(t *testing.T) {
	items, err := parseStringListResponse(`["a", "b"]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, items)

	items, err = parseStringListResponse("```json\n[\"a\", \"b\"]\n```")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, items)

	items, err = parseStringListResponse(`Here are the items: ["a", "b"] as requested.`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, items)

	_, err = parseStringListResponse("no list here")
	assert.Error(t, err)
}

func TestParseTextResponseTolerance(t *testing.T) {
	assert.Equal(t, "plain", parseTextResponse("plain"))
	assert.Equal(t, "quoted", parseTextResponse(`"quoted"`))
	assert.Equal(t, "wrapped", parseTextResponse(`{"value": "wrapped"}`))
	assert.Equal(t, "fenced", parseTextResponse("```\nfenced\n```"))
}

func TestParseObjectListResponse(t *testing.T) {
	var traits []TraitDefinition
	err := parseObjectListResponse(
		"Sure: ```json\n[{\"trait_name\": \"t\", \"trait_description\": \"d\", \"trait_items\": []}]\n```",
		&traits)
	require.NoError(t, err)
	require.Len(t, traits, 1)
	assert.Equal(t, "t", traits[0].TraitName)
}
