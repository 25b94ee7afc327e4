package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/seekerlab/deepresearch/internal/metrics"
)

const checkpointTTL = 24 * time.Hour

// CheckpointLog records each completed step's result keyed by
// (sessionID, stepName). A re-executed workflow replays completed steps
// from here instead of re-running their side effects.
type CheckpointLog struct {
	client *redis.Client
	logger *zap.Logger
}

// NewCheckpointLog creates a checkpoint log on the given Redis client.
func NewCheckpointLog(client *redis.Client, logger *zap.Logger) *CheckpointLog {
	return &CheckpointLog{client: client, logger: logger}
}

func (l *CheckpointLog) key(sessionID string) string {
	return "research:checkpoints:" + sessionID
}

// Get returns the stored result for a step, if any.
func (l *CheckpointLog) Get(ctx context.Context, sessionID, step string) ([]byte, bool, error) {
	data, err := l.client.HGet(ctx, l.key(sessionID), step).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read checkpoint %s/%s: %w", sessionID, step, err)
	}
	return data, true, nil
}

// Put durably records a step's result. The next step must not start before
// this returns.
func (l *CheckpointLog) Put(ctx context.Context, sessionID, step string, data []byte) error {
	key := l.key(sessionID)
	if err := l.client.HSet(ctx, key, step, data).Err(); err != nil {
		return fmt.Errorf("write checkpoint %s/%s: %w", sessionID, step, err)
	}
	l.client.Expire(ctx, key, checkpointTTL)
	return nil
}

// runStep executes fn once per (sessionID, step): a previously checkpointed
// result is returned without re-running fn. Failed steps are not
// checkpointed, so a retried run re-executes them.
func runStep[T any](ctx context.Context, log *CheckpointLog, logger *zap.Logger, sessionID, step string, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	data, ok, err := log.Get(ctx, sessionID, step)
	if err != nil {
		return zero, err
	}
	if ok {
		var replayed T
		if err := json.Unmarshal(data, &replayed); err != nil {
			// Undecodable checkpoints are discarded and the step re-runs.
			logger.Warn("discarding undecodable checkpoint",
				zap.String("session_id", sessionID),
				zap.String("step", step),
				zap.Error(err),
			)
		} else {
			metrics.StepsReplayed.WithLabelValues(step).Inc()
			logger.Info("step replayed from checkpoint",
				zap.String("session_id", sessionID),
				zap.String("step", step),
			)
			return replayed, nil
		}
	}

	result, err := fn(ctx)
	if err != nil {
		metrics.StepsExecuted.WithLabelValues(step, "error").Inc()
		return zero, err
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return zero, fmt.Errorf("encode checkpoint %s/%s: %w", sessionID, step, err)
	}
	if err := log.Put(ctx, sessionID, step, encoded); err != nil {
		return zero, err
	}
	metrics.StepsExecuted.WithLabelValues(step, "success").Inc()
	return result, nil
}
