package workflow

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// cancelRegistry tracks the cancel funcs of in-flight runs so out-of-band
// cancellation can reach them. Cancel after completion is a no-op.
type cancelRegistry struct {
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func newCancelRegistry() *cancelRegistry {
	return &cancelRegistry{cancels: make(map[string]context.CancelFunc)}
}

func (r *cancelRegistry) register(runID string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancels[runID] = cancel
}

func (r *cancelRegistry) remove(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cancels, runID)
}

// cancel signals the run if it is still in flight. Returns whether a run
// was found.
func (r *cancelRegistry) cancel(runID string) bool {
	r.mu.Lock()
	cancel, ok := r.cancels[runID]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// CancelScheduler arranges for a run to be cancelled after a delay, bounding
// how long a stuck run can hold resources.
type CancelScheduler interface {
	Schedule(runID string, delay time.Duration)
}

// TimerScheduler cancels runs with in-process timers.
type TimerScheduler struct {
	orchestrator *Orchestrator
	logger       *zap.Logger
}

// NewTimerScheduler creates a scheduler targeting the orchestrator.
func NewTimerScheduler(o *Orchestrator, logger *zap.Logger) *TimerScheduler {
	return &TimerScheduler{orchestrator: o, logger: logger}
}

// Schedule fires a cancellation after delay. Cancelling an already-finished
// run does nothing.
func (s *TimerScheduler) Schedule(runID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		if s.orchestrator.Cancel(runID) {
			s.logger.Warn("run cancelled by deadline",
				zap.String("run_id", runID),
				zap.Duration("deadline", delay),
			)
		}
	})
}
