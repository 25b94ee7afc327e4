package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/seekerlab/deepresearch/internal/ratelimit"
)

func TestTavilySearchParsesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "k", body["api_key"])
		assert.Equal(t, "coral reefs", body["query"])
		_, _ = w.Write([]byte(`{"results":[
			{"title":"Reef study","url":"https://example.com/reef","content":"full text","score":0.91},
			{"title":"Empty","url":"https://example.com/empty","content":""}
		]}`))
	}))
	defer srv.Close()

	tv := NewTavily("k", "basic", zap.NewNop())
	tv.endpoint = srv.URL

	results, err := tv.Search(context.Background(), "coral reefs")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Reef study", results[0].Title)
	assert.Equal(t, 0.91, results[0].Score)
}

func TestTavilyMissingKeyDegradesToEmpty(t *testing.T) {
	tv := NewTavily("", "basic", zap.NewNop())
	results, err := tv.Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestBraveSearchParsesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.Header.Get("X-Subscription-Token"))
		assert.Equal(t, "coral reefs", r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(`{"web":{"results":[
			{"title":"Reef news","url":"https://example.com/news","description":"short","extra_snippets":["one","two"]}
		]}}`))
	}))
	defer srv.Close()

	b := NewBrave("k", ratelimit.New("brave", 100, zap.NewNop()), zap.NewNop())
	b.endpoint = srv.URL

	results, err := b.Search(context.Background(), "coral reefs")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "one two", results[0].Content)
}

func TestBraveMissingKeyDegradesToEmpty(t *testing.T) {
	b := NewBrave("", ratelimit.New("brave", 100, zap.NewNop()), zap.NewNop())
	results, err := b.Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestBraveNon200IsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	b := NewBrave("k", ratelimit.New("brave", 100, zap.NewNop()), zap.NewNop())
	b.endpoint = srv.URL
	_, err := b.Search(context.Background(), "q")
	require.Error(t, err)
}
