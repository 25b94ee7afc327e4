// Package report writes the final research report from gathered sources,
// streaming partial text to the session's event log as it is produced.
package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"

	"github.com/seekerlab/deepresearch/internal/providers"
	"github.com/seekerlab/deepresearch/internal/search"
	"github.com/seekerlab/deepresearch/internal/streaming"
)

const reportPrompt = `You are a research analyst. Write a thorough, well-structured
research report in Markdown answering the research topic below, based only on
the provided sources. Start with a single level-one heading that titles the
report. Cite sources inline by linking their URLs. Be factual and specific;
do not invent sources.`

// partialEvery is how many stream chunks accumulate between
// report_generating events.
const partialEvery = 250

// Events is the slice of the event log the generator needs.
type Events interface {
	Append(ctx context.Context, sessionID string, e streaming.Event) error
}

// Generator produces the final report text.
type Generator struct {
	llm       providers.LLM
	model     string
	maxTokens int
	events    Events
	logger    *zap.Logger
}

// New creates a report generator. model is the logical answer model;
// maxTokens bounds the generated report length.
func New(llm providers.LLM, model string, maxTokens int, events Events, logger *zap.Logger) *Generator {
	if maxTokens <= 0 {
		maxTokens = 8192
	}
	return &Generator{llm: llm, model: model, maxTokens: maxTokens, events: events, logger: logger}
}

// formatSources renders gathered results for the prompt, one block per source.
func formatSources(results []search.Result) string {
	var sb strings.Builder
	for _, r := range results {
		fmt.Fprintf(&sb, "- Link: %s\nTitle: %s\nSummary: %s\n\n", r.Link, r.Title, r.Content)
	}
	return sb.String()
}

// Generate streams the report for the session. Every partialEvery chunks the
// accumulated text so far is appended as a report_generating event; failures
// to append partials are logged but do not abort generation.
func (g *Generator) Generate(ctx context.Context, sessionID, topic string, results []search.Result) (string, error) {
	var (
		partial strings.Builder
		chunks  int
	)
	stream := func(ctx context.Context, chunk []byte) error {
		partial.Write(chunk)
		chunks++
		if chunks%partialEvery == 0 {
			ev := streaming.ReportGenerating{
				PartialReport: partial.String(),
				Timestamp:     time.Now().UTC(),
			}
			if err := g.events.Append(ctx, sessionID, ev); err != nil {
				g.logger.Warn("failed to append partial report event",
					zap.String("session_id", sessionID),
					zap.Error(err),
				)
			}
		}
		return nil
	}

	user := fmt.Sprintf("Research Topic: %s\n\nSources:\n%s", topic, formatSources(results))
	text, err := g.llm.Generate(ctx, g.model, []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, reportPrompt),
		llms.TextParts(schema.ChatMessageTypeHuman, user),
	}, llms.WithStreamingFunc(stream), llms.WithMaxTokens(g.maxTokens))
	if err != nil {
		return "", fmt.Errorf("report generation: %w", err)
	}

	report := strings.TrimSpace(text)
	g.logger.Info("report generated",
		zap.String("session_id", sessionID),
		zap.Int("chars", len(report)),
		zap.Int("sources", len(results)),
	)
	return report, nil
}

// Title extracts the report title from its first level-one heading. It
// falls back to the topic when the report has none.
func Title(reportText, topic string) string {
	for _, line := range strings.Split(reportText, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return topic
}
