// Package providers routes LLM calls across interchangeable backends with
// per-backend health tracking. A backend that errors enters a cooldown
// window; the next call is routed to the alternate backend while the window
// lasts. Failover is proactive-on-next-call: the failing call itself still
// surfaces its error to the caller.
package providers

import (
	"fmt"
	"sync"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/seekerlab/deepresearch/internal/metrics"
)

// Name identifies an LLM backend.
type Name string

const (
	Together   Name = "together"
	OpenRouter Name = "openrouter"
)

const defaultErrorCooldown = 30 * time.Second

// Status is the health record for one backend. One Status exists per backend
// for the lifetime of the process.
type Status struct {
	Available       bool
	LastError       error
	LastErrorTime   time.Time
	RequestCount    int64
	LastRequestTime time.Time
}

// Endpoint holds the connection settings for one backend.
type Endpoint struct {
	BaseURL string
	APIKey  string
}

// Config configures the manager. Primary is tried first; the other backend
// is the failover target.
type Config struct {
	Primary       Name
	Together      Endpoint
	OpenRouter    Endpoint
	ErrorCooldown time.Duration
	Models        *ModelTable
}

// Manager owns the per-backend status records and the current-provider
// pointer. It is constructed once per process and shared by reference across
// all concurrent sessions.
type Manager struct {
	mu       sync.Mutex
	statuses map[Name]*Status
	current  Name
	cooldown time.Duration
	cfg      Config
	models   *ModelTable
	logger   *zap.Logger
	clock    func() time.Time
}

// NewManager creates a failover manager with both backends healthy and the
// configured primary selected.
func NewManager(cfg Config, logger *zap.Logger) *Manager {
	if cfg.Primary == "" {
		cfg.Primary = Together
	}
	if cfg.ErrorCooldown == 0 {
		cfg.ErrorCooldown = defaultErrorCooldown
	}
	models := cfg.Models
	if models == nil {
		models = DefaultModelTable()
	}
	return &Manager{
		statuses: map[Name]*Status{
			Together:   {Available: true},
			OpenRouter: {Available: true},
		},
		current:  cfg.Primary,
		cooldown: cfg.ErrorCooldown,
		cfg:      cfg,
		models:   models,
		logger:   logger,
		clock:    time.Now,
	}
}

// alternate returns the other backend.
func alternate(p Name) Name {
	if p == Together {
		return OpenRouter
	}
	return Together
}

// availableLocked reports whether the backend is usable, clearing expired
// cooldowns as a side effect. Caller holds m.mu.
func (m *Manager) availableLocked(p Name) bool {
	st, ok := m.statuses[p]
	if !ok {
		return false
	}
	if !st.LastErrorTime.IsZero() {
		if m.clock().Sub(st.LastErrorTime) < m.cooldown {
			return false
		}
		st.LastError = nil
		st.LastErrorTime = time.Time{}
	}
	return st.Available
}

// SelectProvider returns the backend the next call should use. When the
// current backend is cooling down it switches to the alternate; when both
// are cooling down it returns the current backend anyway, degrading to a
// certain failure rather than stalling.
func (m *Manager) SelectProvider() Name {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.availableLocked(m.current) {
		return m.current
	}
	alt := alternate(m.current)
	if m.availableLocked(alt) {
		m.logger.Info("switching LLM provider",
			zap.String("from", string(m.current)),
			zap.String("to", string(alt)),
		)
		metrics.ProviderFailovers.Inc()
		m.current = alt
		return alt
	}
	return m.current
}

// MarkError records a failed call, putting the backend into cooldown.
func (m *Manager) MarkError(p Name, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.statuses[p]
	if !ok {
		return
	}
	st.LastError = err
	st.LastErrorTime = m.clock()
	metrics.ProviderRequests.WithLabelValues(string(p), "error").Inc()
	m.logger.Warn("LLM provider call failed",
		zap.String("provider", string(p)),
		zap.Error(err),
	)
}

// MarkSuccess records a successful call.
func (m *Manager) MarkSuccess(p Name) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.statuses[p]
	if !ok {
		return
	}
	st.RequestCount++
	st.LastRequestTime = m.clock()
	metrics.ProviderRequests.WithLabelValues(string(p), "ok").Inc()
}

// Status returns a copy of the backend's health record.
func (m *Manager) Status(p Name) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.statuses[p]; ok {
		return *st
	}
	return Status{}
}

// Client selects a backend, resolves the logical model to the backend's
// native identifier, and returns a ready client for it. apiKey overrides the
// configured key when the caller brings their own.
func (m *Manager) Client(model, apiKey string) (llms.Model, Name, error) {
	provider := m.SelectProvider()
	native := m.models.Resolve(model, provider)
	if native != model {
		m.logger.Debug("mapped logical model",
			zap.String("model", model),
			zap.String("native", native),
			zap.String("provider", string(provider)),
		)
	}

	ep := m.cfg.Together
	if provider == OpenRouter {
		ep = m.cfg.OpenRouter
	}
	key := ep.APIKey
	if apiKey != "" {
		key = apiKey
	}

	client, err := openai.New(
		openai.WithToken(key),
		openai.WithBaseURL(ep.BaseURL),
		openai.WithModel(native),
	)
	if err != nil {
		return nil, provider, fmt.Errorf("build %s client: %w", provider, err)
	}
	return client, provider, nil
}
