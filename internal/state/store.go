package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrNotFound is returned when no state exists for a session.
var ErrNotFound = errors.New("research state not found")

const defaultTTL = 24 * time.Hour

// Store persists one ResearchState record per session in Redis. Records
// survive process restarts so a resumed run picks up where it left off; they
// expire after the TTL once a run is long finished.
type Store struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewStore creates a state store on the given Redis client.
func NewStore(client *redis.Client, logger *zap.Logger) *Store {
	return &Store{client: client, ttl: defaultTTL, logger: logger}
}

func (s *Store) key(sessionID string) string {
	return fmt.Sprintf("research:state:%s", sessionID)
}

// Save writes the whole record for the session.
func (s *Store) Save(ctx context.Context, sessionID string, st *ResearchState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal research state: %w", err)
	}
	if err := s.client.Set(ctx, s.key(sessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save research state: %w", err)
	}
	s.logger.Debug("saved research state",
		zap.String("session_id", sessionID),
		zap.Int("queries", len(st.AllQueries)),
		zap.Int("results", len(st.SearchResults)),
		zap.Int("iteration", st.Iteration),
	)
	return nil
}

// Get reads the record for the session, or ErrNotFound.
func (s *Store) Get(ctx context.Context, sessionID string) (*ResearchState, error) {
	data, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("get research state: %w", err)
	}
	var st ResearchState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("unmarshal research state: %w", err)
	}
	return &st, nil
}
