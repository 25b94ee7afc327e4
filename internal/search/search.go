// Package search aggregates web-search backends behind a single query
// interface. Backends are tried in priority order; the first one returning
// results wins. Snippet-only backends are enriched with page content fetched
// through the content-extraction service.
package search

import "context"

// Result is one normalized search hit. Link is the unique key within an
// aggregated result set.
type Result struct {
	Title   string  `json:"title"`
	Link    string  `json:"link"`
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
}

// Backend is one web-search provider.
type Backend interface {
	// Name identifies the backend in logs and metrics.
	Name() string
	// Search runs one query. An empty slice with a nil error means the
	// backend answered but found nothing; the aggregator falls through.
	Search(ctx context.Context, query string) ([]Result, error)
	// InlineContent reports whether results already carry full page content.
	// When false the aggregator enriches each result through the extractor.
	InlineContent() bool
}

// Dedupe returns results with duplicate links removed, first occurrence wins.
func Dedupe(results []Result) []Result {
	seen := make(map[string]struct{}, len(results))
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if _, ok := seen[r.Link]; ok {
			continue
		}
		seen[r.Link] = struct{}{}
		out = append(out, r)
	}
	return out
}
