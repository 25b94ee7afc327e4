package providers

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestManager(t *testing.T) (*Manager, *time.Time) {
	t.Helper()
	now := time.Now()
	m := NewManager(Config{
		Primary:    Together,
		Together:   Endpoint{BaseURL: "https://api.together.xyz/v1", APIKey: "tk"},
		OpenRouter: Endpoint{BaseURL: "https://openrouter.ai/api/v1", APIKey: "ok"},
	}, zap.NewNop())
	m.clock = func() time.Time { return now }
	return m, &now
}

func TestSelectProviderPrefersPrimary(t *testing.T) {
	m, _ := newTestManager(t)
	assert.Equal(t, Together, m.SelectProvider())
}

func TestSelectProviderFailsOverDuringCooldown(t *testing.T) {
	m, now := newTestManager(t)

	m.MarkError(Together, errors.New("rate limited"))
	assert.Equal(t, OpenRouter, m.SelectProvider())

	// cooldown expiry clears the error and re-admits the backend
	*now = now.Add(31 * time.Second)
	assert.True(t, m.availableOK(Together))
	st := m.Status(Together)
	assert.Nil(t, st.LastError)
}

// availableOK exposes cooldown checking for tests.
func (m *Manager) availableOK(p Name) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.availableLocked(p)
}

func TestSelectProviderReturnsCurrentWhenBothCooling(t *testing.T) {
	m, _ := newTestManager(t)
	m.MarkError(Together, errors.New("a"))
	m.MarkError(OpenRouter, errors.New("b"))
	// degrade to certain failure rather than stall
	assert.Equal(t, Together, m.SelectProvider())
}

func TestSelectNeverReturnsCoolingProviderWhenAlternateHealthy(t *testing.T) {
	m, _ := newTestManager(t)
	m.MarkError(Together, errors.New("boom"))

	p := m.SelectProvider()
	st := m.Status(p)
	assert.True(t, st.LastErrorTime.IsZero(),
		"selected provider %s is inside its cooldown window", p)
}

func TestMarkSuccessBumpsCounters(t *testing.T) {
	m, _ := newTestManager(t)
	m.MarkSuccess(Together)
	m.MarkSuccess(Together)
	st := m.Status(Together)
	assert.Equal(t, int64(2), st.RequestCount)
	assert.False(t, st.LastRequestTime.IsZero())
}

func TestWithTrackingRecordsOutcome(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := WithTracking(m, Together, func() (string, error) {
		return "", errors.New("provider down")
	})
	require.Error(t, err)
	assert.NotNil(t, m.Status(Together).LastError)
	assert.Equal(t, OpenRouter, m.SelectProvider())

	v, err := WithTracking(m, OpenRouter, func() (string, error) {
		return "hello", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", v)
	assert.Equal(t, int64(1), m.Status(OpenRouter).RequestCount)
}

func TestFailoverRoutesMappedModel(t *testing.T) {
	m, _ := newTestManager(t)

	// primary errors on call 1
	m.MarkError(Together, errors.New("boom"))

	// call 2 for the same logical model routes to the alternate with its
	// native model id
	_, provider, err := m.Client("meta-llama/Llama-3.3-70B-Instruct-Turbo", "")
	require.NoError(t, err)
	assert.Equal(t, OpenRouter, provider)
	assert.Equal(t, "meta-llama/llama-3.3-70b-instruct",
		m.models.Resolve("meta-llama/Llama-3.3-70B-Instruct-Turbo", provider))
}

func TestResolveIdentityFallback(t *testing.T) {
	tbl := DefaultModelTable()
	assert.Equal(t, "some/unknown-model", tbl.Resolve("some/unknown-model", Together))
}

func TestResolveRoleKeys(t *testing.T) {
	tbl := DefaultModelTable()
	assert.Equal(t, "deepseek-ai/DeepSeek-V3", tbl.Resolve("answer", Together))
	assert.Equal(t, "deepseek/deepseek-chat", tbl.Resolve("answer", OpenRouter))
}
