package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const tavilyEndpoint = "https://api.tavily.com/search"

// Tavily queries the Tavily search API. Responses include extracted page
// content, so Tavily results need no enrichment and it is tried first.
type Tavily struct {
	apiKey     string
	depth      string
	maxResults int
	endpoint   string
	client     *http.Client
	logger     *zap.Logger
}

// NewTavily constructs a Tavily backend. depth is "basic" or "advanced".
func NewTavily(apiKey, depth string, logger *zap.Logger) *Tavily {
	if depth == "" {
		depth = "basic"
	}
	return &Tavily{
		apiKey:     apiKey,
		depth:      depth,
		maxResults: 5,
		endpoint:   tavilyEndpoint,
		client:     &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

func (t *Tavily) Name() string        { return "tavily" }
func (t *Tavily) InlineContent() bool { return true }

// Search posts a query to Tavily. A missing API key degrades to an empty
// result set rather than an error.
func (t *Tavily) Search(ctx context.Context, query string) ([]Result, error) {
	if strings.TrimSpace(t.apiKey) == "" {
		t.logger.Warn("tavily API key missing, returning no results")
		return nil, nil
	}

	body, err := json.Marshal(map[string]any{
		"api_key":      t.apiKey,
		"query":        query,
		"search_depth": t.depth,
		"max_results":  t.maxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal tavily request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build tavily request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tavily request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tavily returned %d", resp.StatusCode)
	}

	var payload struct {
		Results []struct {
			Title   string  `json:"title"`
			URL     string  `json:"url"`
			Content string  `json:"content"`
			Score   float64 `json:"score"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode tavily response: %w", err)
	}

	results := make([]Result, 0, len(payload.Results))
	for _, r := range payload.Results {
		if r.URL == "" || r.Content == "" {
			continue
		}
		results = append(results, Result{Title: r.Title, Link: r.URL, Content: r.Content, Score: r.Score})
		if len(results) >= t.maxResults {
			break
		}
	}
	return results, nil
}
