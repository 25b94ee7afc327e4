package streaming

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/seekerlab/deepresearch/internal/metrics"
)

const streamTTL = 24 * time.Hour

// Manager appends events to the durable per-session log and fans them out
// to in-process subscribers. Append order within a session is the order
// events become readable; consumers poll Events or hold a Subscribe channel.
type Manager struct {
	client *redis.Client
	logger *zap.Logger

	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
}

// NewManager creates an event stream manager on the given Redis client.
func NewManager(client *redis.Client, logger *zap.Logger) *Manager {
	return &Manager{
		client:      client,
		logger:      logger,
		subscribers: make(map[string]map[chan Event]struct{}),
	}
}

func (m *Manager) key(sessionID string) string {
	return fmt.Sprintf("research:events:%s", sessionID)
}

// Append adds the event to the session's log and notifies subscribers.
// Appends for one session are causally consistent with step execution order
// because steps run one at a time per session.
func (m *Manager) Append(ctx context.Context, sessionID string, e Event) error {
	data, err := Marshal(e)
	if err != nil {
		return err
	}

	key := m.key(sessionID)
	if err := m.client.XAdd(ctx, &redis.XAddArgs{
		Stream: key,
		Values: map[string]interface{}{"event": string(data)},
	}).Err(); err != nil {
		return fmt.Errorf("append %s event: %w", e.Kind(), err)
	}
	m.client.Expire(ctx, key, streamTTL)
	metrics.EventsPublished.WithLabelValues(string(e.Kind())).Inc()

	m.logger.Debug("event appended",
		zap.String("session_id", sessionID),
		zap.String("type", string(e.Kind())),
	)

	// best-effort fan-out; slow subscribers are skipped, they can
	// re-read from the durable log
	m.mu.RLock()
	subs := m.subscribers[sessionID]
	for ch := range subs {
		select {
		case ch <- e:
		default:
		}
	}
	m.mu.RUnlock()
	return nil
}

// Events returns every event appended for the session, in append order.
func (m *Manager) Events(ctx context.Context, sessionID string) ([]Event, error) {
	entries, err := m.client.XRange(ctx, m.key(sessionID), "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("read event log: %w", err)
	}
	events := make([]Event, 0, len(entries))
	for _, entry := range entries {
		raw, ok := entry.Values["event"].(string)
		if !ok {
			continue
		}
		e, err := Unmarshal([]byte(raw))
		if err != nil {
			m.logger.Warn("skipping undecodable event",
				zap.String("session_id", sessionID),
				zap.String("stream_id", entry.ID),
				zap.Error(err),
			)
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

// Subscribe registers a live-event channel for the session. The caller must
// drain it and call Unsubscribe when done.
func (m *Manager) Subscribe(sessionID string, buffer int) chan Event {
	ch := make(chan Event, buffer)
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subscribers[sessionID]
	if subs == nil {
		subs = make(map[chan Event]struct{})
		m.subscribers[sessionID] = subs
	}
	subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes the channel.
func (m *Manager) Unsubscribe(sessionID string, ch chan Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if subs, ok := m.subscribers[sessionID]; ok {
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(m.subscribers, sessionID)
		}
	}
}
