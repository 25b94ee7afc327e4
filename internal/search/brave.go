package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/seekerlab/deepresearch/internal/ratelimit"
)

const braveEndpoint = "https://api.search.brave.com/res/v1/web/search"

// Brave queries the Brave web-search API. Brave returns snippets only, so
// results are enriched by the aggregator. The free tier allows one request
// per second; calls go through the shared limiter before hitting the API.
type Brave struct {
	apiKey   string
	count    int
	endpoint string
	client   *http.Client
	limiter  *ratelimit.Limiter
	logger   *zap.Logger
}

// NewBrave constructs a Brave backend sharing the given limiter.
func NewBrave(apiKey string, limiter *ratelimit.Limiter, logger *zap.Logger) *Brave {
	return &Brave{
		apiKey:   apiKey,
		count:    5,
		endpoint: braveEndpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
		limiter:  limiter,
		logger:   logger,
	}
}

func (b *Brave) Name() string        { return "brave" }
func (b *Brave) InlineContent() bool { return false }

// Search runs one Brave query. A missing API key degrades to an empty result
// set rather than an error.
func (b *Brave) Search(ctx context.Context, query string) ([]Result, error) {
	if strings.TrimSpace(b.apiKey) == "" {
		b.logger.Warn("brave API key missing, returning no results")
		return nil, nil
	}

	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s?q=%s&count=%d&result_filter=web", b.endpoint, url.QueryEscape(query), b.count)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build brave request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("brave request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("brave returned %d", resp.StatusCode)
	}

	var payload struct {
		Web struct {
			Results []struct {
				Title         string   `json:"title"`
				URL           string   `json:"url"`
				Description   string   `json:"description"`
				ExtraSnippets []string `json:"extra_snippets"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode brave response: %w", err)
	}

	results := make([]Result, 0, len(payload.Web.Results))
	for _, r := range payload.Web.Results {
		if r.URL == "" {
			continue
		}
		snippet := r.Description
		if len(r.ExtraSnippets) > 0 {
			snippet = strings.Join(r.ExtraSnippets, " ")
		}
		results = append(results, Result{Title: r.Title, Link: r.URL, Content: snippet})
		if len(results) >= b.count {
			break
		}
	}
	return results, nil
}
