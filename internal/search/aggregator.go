package search

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/seekerlab/deepresearch/internal/extract"
	"github.com/seekerlab/deepresearch/internal/metrics"
)

// Aggregator runs one query against a priority-ordered backend list and
// normalizes the winner's results. An empty result set is a valid outcome,
// never an error: callers treat "no results" as terminal-but-successful.
type Aggregator struct {
	backends  []Backend
	extractor extract.Extractor
	logger    *zap.Logger
}

// NewAggregator builds an aggregator. Backends are tried in the given order;
// the extractor enriches results from backends without inline content.
func NewAggregator(backends []Backend, extractor extract.Extractor, logger *zap.Logger) *Aggregator {
	return &Aggregator{backends: backends, extractor: extractor, logger: logger}
}

// Search queries backends in priority order and returns the first non-empty
// result set, deduplicated by link. Backend failures fall through to the
// next backend; when every backend fails or is unconfigured the aggregator
// returns an empty slice and a nil error.
func (a *Aggregator) Search(ctx context.Context, query string) ([]Result, error) {
	for i, backend := range a.backends {
		if i > 0 {
			metrics.SearchFallbacks.Inc()
		}
		results, err := backend.Search(ctx, query)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			metrics.SearchRequests.WithLabelValues(backend.Name(), "error").Inc()
			a.logger.Warn("search backend failed, falling through",
				zap.String("backend", backend.Name()),
				zap.String("query", query),
				zap.Error(err),
			)
			continue
		}
		if len(results) == 0 {
			metrics.SearchRequests.WithLabelValues(backend.Name(), "empty").Inc()
			a.logger.Info("search backend returned no results, falling through",
				zap.String("backend", backend.Name()),
				zap.String("query", query),
			)
			continue
		}
		metrics.SearchRequests.WithLabelValues(backend.Name(), "ok").Inc()

		results = Dedupe(results)
		if !backend.InlineContent() {
			results = a.enrich(ctx, results)
		}
		if len(results) == 0 {
			continue
		}
		a.logger.Info("search completed",
			zap.String("backend", backend.Name()),
			zap.String("query", query),
			zap.Int("results", len(results)),
		)
		return results, nil
	}
	return []Result{}, nil
}

// enrich fetches page content for each result concurrently. Failures are
// isolated per URL: a failing scrape drops only its own result, never the
// rest of the batch.
func (a *Aggregator) enrich(ctx context.Context, results []Result) []Result {
	enriched := make([]Result, len(results))
	ok := make([]bool, len(results))

	var wg sync.WaitGroup
	for i, r := range results {
		wg.Add(1)
		go func(i int, r Result) {
			defer wg.Done()
			content, err := a.extractor.Extract(ctx, r.Link)
			if err != nil {
				metrics.ScrapeFailures.Inc()
				a.logger.Warn("failed to extract page content",
					zap.String("url", r.Link),
					zap.Error(err),
				)
				return
			}
			if content == "" {
				return
			}
			r.Content = content
			enriched[i] = r
			ok[i] = true
		}(i, r)
	}
	wg.Wait()

	out := make([]Result, 0, len(results))
	for i := range enriched {
		if ok[i] {
			out = append(out, enriched[i])
		}
	}
	return out
}
