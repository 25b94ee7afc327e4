package workflow

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/seekerlab/deepresearch/internal/metrics"
	"github.com/seekerlab/deepresearch/internal/search"
	"github.com/seekerlab/deepresearch/internal/state"
)

// roundOutcome is one gather round's checkpoint: the state after the round
// plus the queries the next round will run. Empty Next means the loop is
// done.
type roundOutcome struct {
	State state.ResearchState `json:"state"`
	Next  []string            `json:"next"`
}

// runGather executes the iterative gather loop for the session. Each round
// is checkpointed individually, so a resumed run loses at most the in-flight
// round. Rounds run on ctx; cancelSignal is only consulted between rounds,
// so a round already in flight runs to completion. Returns the final state.
func (o *Orchestrator) runGather(ctx, cancelSignal context.Context, sessionID string, st *state.ResearchState) (*state.ResearchState, error) {
	pending := append([]string(nil), st.AllQueries...)

	for round := 0; ; round++ {
		if err := cancelSignal.Err(); err != nil {
			return nil, err
		}

		out, err := runStep(ctx, o.checkpoints, o.logger, sessionID, fmt.Sprintf("gather-round-%d", round),
			func(ctx context.Context) (roundOutcome, error) {
				return o.gatherRound(ctx, sessionID, st, pending)
			})
		if err != nil {
			return nil, fmt.Errorf("gather round %d: %w", round, err)
		}

		replayed := out.State
		st = &replayed
		if len(out.Next) == 0 {
			metrics.GatherRounds.Observe(float64(st.Iteration))
			return st, nil
		}
		pending = out.Next
	}
}

// gatherRound runs one Searching -> Merging -> Deciding cycle. The merged
// state is persisted before continuation is decided, and again after the
// decision so the budget decrement is durable.
func (o *Orchestrator) gatherRound(ctx context.Context, sessionID string, st *state.ResearchState, queries []string) (roundOutcome, error) {
	results := o.searchAll(ctx, queries)
	added := st.MergeResults(results)
	st.Iteration++

	if err := o.states.Save(ctx, sessionID, st); err != nil {
		return roundOutcome{}, fmt.Errorf("persist round results: %w", err)
	}
	o.logger.Info("gather round completed",
		zap.String("session_id", sessionID),
		zap.Int("iteration", st.Iteration),
		zap.Int("queries", len(queries)),
		zap.Int("new_results", added),
		zap.Int("total_results", len(st.SearchResults)),
		zap.Int("budget", st.Budget),
	)

	if st.Budget == 0 {
		return roundOutcome{State: *st}, nil
	}

	refined, err := o.planner.RefineQueries(ctx, st.Topic, st.AllQueries, st.SearchResults, o.cfg.MaxQueries)
	if err != nil {
		return roundOutcome{}, fmt.Errorf("refine queries: %w", err)
	}

	next := st.AppendQueries(refined)
	if len(next) == 0 {
		o.logger.Info("no new queries, gather complete",
			zap.String("session_id", sessionID),
			zap.Int("iteration", st.Iteration),
		)
		return roundOutcome{State: *st}, nil
	}

	st.Budget--
	if err := o.states.Save(ctx, sessionID, st); err != nil {
		return roundOutcome{}, fmt.Errorf("persist continuation: %w", err)
	}
	return roundOutcome{State: *st, Next: next}, nil
}

// searchAll fans out one aggregator call per query with settle-all
// semantics: a failed query logs and contributes nothing.
func (o *Orchestrator) searchAll(ctx context.Context, queries []string) []search.Result {
	var (
		wg       sync.WaitGroup
		perQuery = make([][]search.Result, len(queries))
	)
	for i, q := range queries {
		wg.Add(1)
		go func(i int, q string) {
			defer wg.Done()
			results, err := o.searcher.Search(ctx, q)
			if err != nil {
				o.logger.Warn("search query failed",
					zap.String("query", q),
					zap.Error(err),
				)
				return
			}
			perQuery[i] = results
		}(i, q)
	}
	wg.Wait()

	var merged []search.Result
	for _, results := range perQuery {
		merged = append(merged, results...)
	}
	return search.Dedupe(merged)
}
