// Package planner turns a research topic into a bounded set of web search
// queries, and refines that set between gather rounds.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"

	"github.com/seekerlab/deepresearch/internal/providers"
	"github.com/seekerlab/deepresearch/internal/search"
	"github.com/seekerlab/deepresearch/internal/state"
)

// Models names the logical model for each planner call.
type Models struct {
	Planning string
	JSON     string
	Summary  string
}

// DefaultModels returns the standard model assignment.
func DefaultModels() Models {
	return Models{
		Planning: providers.ModelPlanning,
		JSON:     providers.ModelJSON,
		Summary:  providers.ModelSummary,
	}
}

// Plan is the outcome of initial query planning.
type Plan struct {
	// Queries is deduplicated and capped at the caller's maxQueries.
	Queries []string
	// Plan is the full free-form planning text.
	Plan string
	// SummarisedPlan is the short human-readable version shown to clients.
	SummarisedPlan string
}

// Planner issues the LLM calls for query generation and refinement.
type Planner struct {
	llm    providers.LLM
	models Models
	logger *zap.Logger
}

// New creates a planner.
func New(llm providers.LLM, models Models, logger *zap.Logger) *Planner {
	return &Planner{llm: llm, models: models, logger: logger}
}

// queriesSchema is the structured shape both parsing calls must produce.
type queriesSchema struct {
	Queries []string `json:"queries"`
}

// parseQueries validates the structured output. A schema violation is fatal
// for the attempt; it is never silently coerced.
func parseQueries(content string) ([]string, error) {
	var parsed queriesSchema
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &parsed); err != nil {
		return nil, fmt.Errorf("structured query output violates schema: %w", err)
	}
	if parsed.Queries == nil {
		return nil, fmt.Errorf("structured query output missing queries field")
	}
	return parsed.Queries, nil
}

// GenerateQueries produces the initial query set for a topic: one planning
// call, then a parallel pair of calls parsing the plan into queries and
// summarising it.
func (p *Planner) GenerateQueries(ctx context.Context, topic string, maxQueries int) (Plan, error) {
	planText, err := p.llm.Generate(ctx, p.models.Planning, []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, planningPrompt),
		llms.TextParts(schema.ChatMessageTypeHuman, "Research Topic: "+topic),
	})
	if err != nil {
		return Plan{}, fmt.Errorf("planning call: %w", err)
	}
	p.logger.Debug("planning text generated", zap.Int("chars", len(planText)))

	type parseOut struct {
		queries []string
		err     error
	}
	type summaryOut struct {
		text string
		err  error
	}
	parseCh := make(chan parseOut, 1)
	summaryCh := make(chan summaryOut, 1)

	go func() {
		content, err := p.llm.Generate(ctx, p.models.JSON, []llms.MessageContent{
			llms.TextParts(schema.ChatMessageTypeSystem, planParsingPrompt),
			llms.TextParts(schema.ChatMessageTypeHuman, planText),
		}, llms.WithJSONMode())
		if err != nil {
			parseCh <- parseOut{err: fmt.Errorf("plan parsing call: %w", err)}
			return
		}
		queries, err := parseQueries(content)
		parseCh <- parseOut{queries: queries, err: err}
	}()

	go func() {
		text, err := p.llm.Generate(ctx, p.models.Summary, []llms.MessageContent{
			llms.TextParts(schema.ChatMessageTypeSystem, planSummaryPrompt),
			llms.TextParts(schema.ChatMessageTypeHuman, planText),
		})
		if err != nil {
			err = fmt.Errorf("plan summary call: %w", err)
		}
		summaryCh <- summaryOut{text: text, err: err}
	}()

	parsed := <-parseCh
	summary := <-summaryCh
	if parsed.err != nil {
		return Plan{}, parsed.err
	}
	if summary.err != nil {
		return Plan{}, summary.err
	}

	queries := state.DedupeQueries(parsed.queries)
	if len(queries) > maxQueries {
		queries = queries[:maxQueries]
	}
	p.logger.Info("research queries generated",
		zap.Strings("queries", queries),
	)

	return Plan{
		Queries:        queries,
		Plan:           planText,
		SummarisedPlan: strings.TrimSpace(summary.text),
	}, nil
}

// RefineQueries asks for follow-up queries conditioned on what earlier
// rounds found. An empty list means the research is judged complete.
// Returned queries are deduplicated and capped, but not yet filtered
// against the ever-seen set; the gather loop owns that.
func (p *Planner) RefineQueries(ctx context.Context, topic string, executed []string, results []search.Result, maxQueries int) ([]string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Research Topic: %s\n\nSearches already executed:\n", topic)
	for _, q := range executed {
		fmt.Fprintf(&sb, "- %s\n", q)
	}
	sb.WriteString("\nFindings so far:\n")
	for _, r := range results {
		summary := r.Content
		if len(summary) > 500 {
			summary = summary[:500]
		}
		fmt.Fprintf(&sb, "- %s: %s\n", r.Title, summary)
	}

	content, err := p.llm.Generate(ctx, p.models.JSON, []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, refinePrompt),
		llms.TextParts(schema.ChatMessageTypeHuman, sb.String()),
	}, llms.WithJSONMode())
	if err != nil {
		return nil, fmt.Errorf("refinement call: %w", err)
	}

	queries, err := parseQueries(content)
	if err != nil {
		return nil, err
	}
	queries = state.DedupeQueries(queries)
	if len(queries) > maxQueries {
		queries = queries[:maxQueries]
	}
	return queries, nil
}
