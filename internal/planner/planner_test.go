package planner

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"github.com/seekerlab/deepresearch/internal/search"
)

// testModels assigns each role a distinct id so the fake can tell the
// planning, parse and summary calls apart.
var testModels = Models{
	Planning: "planning-model",
	JSON:     "json-model",
	Summary:  "summary-model",
}

// fakeLLM replies per model id. The parse and summary calls run
// concurrently, so call recording is guarded.
type fakeLLM struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	calls     []string
}

func (f *fakeLLM) Generate(_ context.Context, model string, _ []llms.MessageContent, _ ...llms.CallOption) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, model)
	if err := f.errs[model]; err != nil {
		return "", err
	}
	return f.responses[model], nil
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newPlanner(llm *fakeLLM) *Planner {
	return New(llm, testModels, zap.NewNop())
}

func TestGenerateQueries(t *testing.T) {
	llm := &fakeLLM{responses: map[string]string{
		testModels.Planning: "step 1: look at X\nstep 2: look at Y",
		testModels.JSON:     `{"queries": ["golang schedulers", "Golang  Schedulers", "GMP model", "work stealing"]}`,
		testModels.Summary:  "  We will study Go scheduling.  ",
	}}

	plan, err := newPlanner(llm).GenerateQueries(context.Background(), "Go scheduler", 3)
	require.NoError(t, err)

	// Duplicate differing only in case and whitespace is dropped, then
	// the list is capped at maxQueries.
	assert.Equal(t, []string{"golang schedulers", "GMP model", "work stealing"}, plan.Queries)
	assert.Equal(t, "step 1: look at X\nstep 2: look at Y", plan.Plan)
	assert.Equal(t, "We will study Go scheduling.", plan.SummarisedPlan)
	assert.Equal(t, 3, llm.callCount())
}

func TestGenerateQueriesPlanningError(t *testing.T) {
	llm := &fakeLLM{errs: map[string]error{
		testModels.Planning: errors.New("provider down"),
	}}

	_, err := newPlanner(llm).GenerateQueries(context.Background(), "topic", 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "planning call")
	assert.Equal(t, 1, llm.callCount())
}

func TestGenerateQueriesSchemaViolationIsFatal(t *testing.T) {
	llm := &fakeLLM{responses: map[string]string{
		testModels.Planning: "plan",
		testModels.JSON:     `{"results": ["not the right key"]}`,
		testModels.Summary:  "summary",
	}}

	_, err := newPlanner(llm).GenerateQueries(context.Background(), "topic", 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queries")
}

func TestGenerateQueriesMalformedJSONIsFatal(t *testing.T) {
	llm := &fakeLLM{responses: map[string]string{
		testModels.Planning: "plan",
		testModels.JSON:     `queries: one two three`,
		testModels.Summary:  "summary",
	}}

	_, err := newPlanner(llm).GenerateQueries(context.Background(), "topic", 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema")
}

func TestGenerateQueriesSummaryError(t *testing.T) {
	llm := &fakeLLM{
		responses: map[string]string{
			testModels.Planning: "plan",
			testModels.JSON:     `{"queries": ["a"]}`,
		},
		errs: map[string]error{
			testModels.Summary: errors.New("timeout"),
		},
	}

	_, err := newPlanner(llm).GenerateQueries(context.Background(), "topic", 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plan summary call")
}

func TestRefineQueries(t *testing.T) {
	llm := &fakeLLM{responses: map[string]string{
		testModels.JSON: `{"queries": ["preemption history", "preemption history", "sysmon thread"]}`,
	}}

	results := []search.Result{{Title: "Scheduling in Go", Link: "https://example.com/a", Content: "long article"}}
	queries, err := newPlanner(llm).RefineQueries(context.Background(), "Go scheduler", []string{"golang schedulers"}, results, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"preemption history", "sysmon thread"}, queries)
}

func TestRefineQueriesEmptyMeansDone(t *testing.T) {
	llm := &fakeLLM{responses: map[string]string{
		testModels.JSON: `{"queries": []}`,
	}}

	queries, err := newPlanner(llm).RefineQueries(context.Background(), "topic", nil, nil, 5)
	require.NoError(t, err)
	assert.Empty(t, queries)
}
