// Package workflow sequences the research pipeline: plan, gather, cover and
// report in parallel, finalize. Every completed step is checkpointed so a
// retried run replays finished work instead of repeating side effects.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seekerlab/deepresearch/internal/metrics"
	"github.com/seekerlab/deepresearch/internal/planner"
	"github.com/seekerlab/deepresearch/internal/records"
	"github.com/seekerlab/deepresearch/internal/report"
	"github.com/seekerlab/deepresearch/internal/search"
	"github.com/seekerlab/deepresearch/internal/state"
	"github.com/seekerlab/deepresearch/internal/streaming"
)

// Step names double as checkpoint keys.
const (
	stepPlan     = "generate-initial-plan"
	stepGather   = "invoke-gather"
	stepCover    = "generate-cover-asset"
	stepReport   = "generate-final-report"
	stepFinalize = "finalize"
)

// Searcher runs one aggregated search.
type Searcher interface {
	Search(ctx context.Context, query string) ([]search.Result, error)
}

// Planner produces and refines query sets.
type Planner interface {
	GenerateQueries(ctx context.Context, topic string, maxQueries int) (planner.Plan, error)
	RefineQueries(ctx context.Context, topic string, executed []string, results []search.Result, maxQueries int) ([]string, error)
}

// Reporter writes the final report.
type Reporter interface {
	Generate(ctx context.Context, sessionID, topic string, results []search.Result) (string, error)
}

// CoverGenerator produces the cover asset URL. Nil disables covers.
type CoverGenerator interface {
	Generate(ctx context.Context, sessionID, topic, plan string) (string, error)
}

// Config bounds a run.
type Config struct {
	// Budget is the number of refinement rounds after the first.
	Budget int
	// MaxQueries caps queries per planning or refinement call.
	MaxQueries int
	// MaxSources caps the results handed to the report generator.
	// Zero means unlimited.
	MaxSources int
	// RunDeadline is how long a run may go before out-of-band cancellation.
	RunDeadline time.Duration
}

// DefaultConfig matches the production defaults.
func DefaultConfig() Config {
	return Config{
		Budget:      2,
		MaxQueries:  5,
		MaxSources:  25,
		RunDeadline: 15 * time.Minute,
	}
}

// Orchestrator drives research runs end to end.
type Orchestrator struct {
	cfg         Config
	records     records.Store
	quota       records.UsageLimiter
	states      *state.Store
	events      *streaming.Manager
	checkpoints *CheckpointLog
	planner     Planner
	searcher    Searcher
	reporter    Reporter
	cover       CoverGenerator
	scheduler   CancelScheduler
	runs        *cancelRegistry
	logger      *zap.Logger
}

// New wires an orchestrator. cover may be nil.
func New(
	cfg Config,
	recs records.Store,
	quota records.UsageLimiter,
	states *state.Store,
	events *streaming.Manager,
	checkpoints *CheckpointLog,
	pl Planner,
	searcher Searcher,
	reporter Reporter,
	cover CoverGenerator,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.RunDeadline <= 0 {
		cfg.RunDeadline = 15 * time.Minute
	}
	o := &Orchestrator{
		cfg:         cfg,
		records:     recs,
		quota:       quota,
		states:      states,
		events:      events,
		checkpoints: checkpoints,
		planner:     pl,
		searcher:    searcher,
		reporter:    reporter,
		cover:       cover,
		runs:        newCancelRegistry(),
		logger:      logger,
	}
	o.scheduler = NewTimerScheduler(o, logger)
	return o
}

// Cancel requests cooperative cancellation of an in-flight run. It is safe
// to call after the run finished; that is a no-op. Reports whether a run
// was signalled.
func (o *Orchestrator) Cancel(runID string) bool {
	return o.runs.cancel(runID)
}

// planOutcome is the checkpointed result of the planning step.
type planOutcome struct {
	Queries []string `json:"queries"`
	Plan    string   `json:"plan"`
	Summary string   `json:"summary"`
}

// Run executes the research pipeline for a persisted research record. The
// returned error is the terminal cause; the record and event log already
// reflect it.
func (o *Orchestrator) Run(ctx context.Context, id uuid.UUID) error {
	sessionID := id.String()

	rec, err := o.records.Get(ctx, id)
	if err != nil {
		return o.fail(ctx, id, sessionID, records.StatusFailed, "load-record", err)
	}
	topic := rec.ResearchTopic()

	allowed, err := o.quota.Allow(ctx, rec.UserID)
	if err != nil {
		return o.fail(ctx, id, sessionID, records.StatusFailed, "quota-check", err)
	}
	if !allowed {
		return o.fail(ctx, id, sessionID, records.StatusFailed, "quota-check",
			errors.New("daily research quota exceeded"))
	}

	if err := o.records.MarkStarted(ctx, id); err != nil {
		return o.fail(ctx, id, sessionID, records.StatusFailed, "load-record", err)
	}

	// cancelSignal carries only the cancellation signal. Steps run on the
	// parent context so an in-flight external call completes; the signal is
	// observed between steps and between gather rounds.
	cancelSignal, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.runs.register(sessionID, cancel)
	defer o.runs.remove(sessionID)
	o.scheduler.Schedule(sessionID, o.cfg.RunDeadline)

	metrics.RunsStarted.Inc()
	o.logger.Info("research run started",
		zap.String("session_id", sessionID),
		zap.String("topic", topic),
		zap.Int("budget", o.cfg.Budget),
	)

	plan, err := runStep(ctx, o.checkpoints, o.logger, sessionID, stepPlan,
		func(ctx context.Context) (planOutcome, error) {
			return o.planStep(ctx, sessionID, topic)
		})
	if err != nil {
		return o.fail(ctx, id, sessionID, records.StatusFailed, stepPlan, err)
	}

	if err := o.checkCancelled(ctx, cancelSignal, id, sessionID); err != nil {
		return err
	}

	st := state.New(topic, plan.Queries, o.cfg.Budget)
	st, err = o.runGather(ctx, cancelSignal, sessionID, st)
	if err != nil {
		return o.fail(ctx, id, sessionID, records.StatusFailed, stepGather, err)
	}

	if err := o.checkCancelled(ctx, cancelSignal, id, sessionID); err != nil {
		return err
	}

	results := st.SearchResults
	if o.cfg.MaxSources > 0 && len(results) > o.cfg.MaxSources {
		results = results[:o.cfg.MaxSources]
	}

	coverCh := make(chan string, 1)
	go func() {
		coverCh <- o.coverStep(ctx, sessionID, topic, plan.Plan)
	}()

	reportText, reportErr := runStep(ctx, o.checkpoints, o.logger, sessionID, stepReport,
		func(ctx context.Context) (string, error) {
			return o.reportStep(ctx, sessionID, topic, results)
		})
	coverURL := <-coverCh
	if reportErr != nil {
		return o.fail(ctx, id, sessionID, records.StatusFailed, stepReport, reportErr)
	}

	if err := o.checkCancelled(ctx, cancelSignal, id, sessionID); err != nil {
		return err
	}

	_, err = runStep(ctx, o.checkpoints, o.logger, sessionID, stepFinalize,
		func(ctx context.Context) (bool, error) {
			return true, o.finalizeStep(ctx, id, sessionID, topic, reportText, coverURL, st)
		})
	if err != nil {
		return o.fail(ctx, id, sessionID, records.StatusFailed, stepFinalize, err)
	}

	metrics.RunsCompleted.WithLabelValues(string(records.StatusCompleted)).Inc()
	o.logger.Info("research run completed",
		zap.String("session_id", sessionID),
		zap.Int("iterations", st.Iteration),
		zap.Int("results", len(st.SearchResults)),
	)
	return nil
}

// planStep generates the initial query set and seeds the session state.
func (o *Orchestrator) planStep(ctx context.Context, sessionID, topic string) (planOutcome, error) {
	if err := o.events.Append(ctx, sessionID, streaming.PlanningStarted{
		Topic:     topic,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		return planOutcome{}, err
	}

	plan, err := o.planner.GenerateQueries(ctx, topic, o.cfg.MaxQueries)
	if err != nil {
		return planOutcome{}, err
	}
	if len(plan.Queries) == 0 {
		return planOutcome{}, errors.New("planning produced no queries")
	}

	if err := o.states.Save(ctx, sessionID, state.New(topic, plan.Queries, o.cfg.Budget)); err != nil {
		return planOutcome{}, err
	}

	if err := o.events.Append(ctx, sessionID, streaming.PlanningCompleted{
		Queries:   plan.Queries,
		Plan:      plan.SummarisedPlan,
		Iteration: 0,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		return planOutcome{}, err
	}
	return planOutcome{Queries: plan.Queries, Plan: plan.Plan, Summary: plan.SummarisedPlan}, nil
}

// coverStep is tolerated on failure: a run without a cover still completes.
func (o *Orchestrator) coverStep(ctx context.Context, sessionID, topic, plan string) string {
	if o.cover == nil {
		return ""
	}
	url, err := runStep(ctx, o.checkpoints, o.logger, sessionID, stepCover,
		func(ctx context.Context) (string, error) {
			return o.cover.Generate(ctx, sessionID, topic, plan)
		})
	if err != nil {
		o.logger.Warn("cover generation failed, continuing without cover",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return ""
	}
	return url
}

func (o *Orchestrator) reportStep(ctx context.Context, sessionID, topic string, results []search.Result) (string, error) {
	if err := o.events.Append(ctx, sessionID, streaming.ReportStarted{
		Timestamp: time.Now().UTC(),
	}); err != nil {
		return "", err
	}

	text, err := o.reporter.Generate(ctx, sessionID, topic, results)
	if err != nil {
		return "", err
	}

	if err := o.events.Append(ctx, sessionID, streaming.ReportGenerated{
		Report:    text,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		return "", err
	}
	return text, nil
}

// finalizeStep persists the finished run and closes the event log.
func (o *Orchestrator) finalizeStep(ctx context.Context, id uuid.UUID, sessionID, topic, reportText, coverURL string, st *state.ResearchState) error {
	err := o.records.Complete(ctx, id, records.CompleteParams{
		Title:    report.Title(reportText, topic),
		Report:   reportText,
		CoverURL: coverURL,
		Sources:  records.SourcesFromResults(st.SearchResults),
	})
	if err != nil {
		return err
	}

	return o.events.Append(ctx, sessionID, streaming.ResearchCompleted{
		FinalResultCount: len(st.SearchResults),
		TotalIterations:  st.Iteration,
		Timestamp:        time.Now().UTC(),
	})
}

// checkCancelled stops the pipeline between steps once cancellation has been
// observed. A step already in flight runs to completion.
func (o *Orchestrator) checkCancelled(parent, cancelSignal context.Context, id uuid.UUID, sessionID string) error {
	if cancelSignal.Err() == nil {
		return nil
	}
	return o.fail(parent, id, sessionID, records.StatusCancelled, "cancelled",
		errors.New("run cancelled"))
}

// fail records a terminal failure: error event, record status, metric. The
// run context may already be cancelled, so bookkeeping uses a detached
// context.
func (o *Orchestrator) fail(ctx context.Context, id uuid.UUID, sessionID string, status records.Status, step string, cause error) error {
	if status == records.StatusFailed && errors.Is(cause, context.Canceled) {
		status = records.StatusCancelled
	}
	bg := context.WithoutCancel(ctx)

	if err := o.events.Append(bg, sessionID, streaming.ErrorEvent{
		Message:   cause.Error(),
		Step:      step,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		o.logger.Error("failed to append error event",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
	if err := o.records.MarkFailed(bg, id, status, cause.Error()); err != nil {
		o.logger.Error("failed to mark research failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}

	metrics.RunsCompleted.WithLabelValues(string(status)).Inc()
	o.logger.Error("research run ended",
		zap.String("session_id", sessionID),
		zap.String("status", string(status)),
		zap.String("step", step),
		zap.Error(cause),
	)
	return fmt.Errorf("%s: %w", step, cause)
}
