package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline metrics
	RunsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deepresearch_runs_started_total",
			Help: "Total number of research runs started",
		},
	)

	RunsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepresearch_runs_completed_total",
			Help: "Total number of research runs finished",
		},
		[]string{"status"},
	)

	StepsExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepresearch_steps_executed_total",
			Help: "Total number of workflow steps executed",
		},
		[]string{"step", "outcome"},
	)

	StepsReplayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepresearch_steps_replayed_total",
			Help: "Total number of workflow steps served from a checkpoint",
		},
		[]string{"step"},
	)

	GatherRounds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deepresearch_gather_rounds",
			Help:    "Number of gather rounds per run",
			Buckets: []float64{1, 2, 3, 4, 5, 6},
		},
	)

	// Provider metrics
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepresearch_provider_requests_total",
			Help: "Total number of LLM provider calls",
		},
		[]string{"provider", "outcome"},
	)

	ProviderFailovers = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deepresearch_provider_failovers_total",
			Help: "Total number of provider switches due to cooldown",
		},
	)

	RateLimitWaits = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deepresearch_rate_limit_wait_seconds",
			Help:    "Time spent waiting on outbound rate limiters",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5},
		},
	)

	// Search metrics
	SearchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepresearch_search_requests_total",
			Help: "Total number of search backend calls",
		},
		[]string{"backend", "outcome"},
	)

	SearchFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deepresearch_search_fallbacks_total",
			Help: "Total number of times a search fell through to the next backend",
		},
	)

	ScrapeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deepresearch_scrape_failures_total",
			Help: "Total number of failed content-extraction fetches",
		},
	)

	// Event stream metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepresearch_events_published_total",
			Help: "Total number of progress events appended",
		},
		[]string{"type"},
	)
)
