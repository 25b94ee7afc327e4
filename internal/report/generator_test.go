package report

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"github.com/seekerlab/deepresearch/internal/search"
	"github.com/seekerlab/deepresearch/internal/streaming"
)

// streamingLLM feeds chunks through the provided streaming func, then
// returns the joined text like the real client does.
type streamingLLM struct {
	chunks    []string
	err       error
	prompt    string
	maxTokens int
}

func (s *streamingLLM) Generate(ctx context.Context, _ string, messages []llms.MessageContent, opts ...llms.CallOption) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	for _, m := range messages {
		for _, part := range m.Parts {
			if tp, ok := part.(llms.TextContent); ok {
				s.prompt += tp.Text + "\n"
			}
		}
	}
	var co llms.CallOptions
	for _, opt := range opts {
		opt(&co)
	}
	s.maxTokens = co.MaxTokens
	for _, c := range s.chunks {
		if co.StreamingFunc != nil {
			if err := co.StreamingFunc(ctx, []byte(c)); err != nil {
				return "", err
			}
		}
	}
	return strings.Join(s.chunks, ""), nil
}

type eventSink struct {
	events []streaming.Event
	err    error
}

func (s *eventSink) Append(_ context.Context, _ string, e streaming.Event) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, e)
	return nil
}

func TestGeneratePublishesPartials(t *testing.T) {
	chunks := make([]string, 510)
	for i := range chunks {
		chunks[i] = "x"
	}
	llm := &streamingLLM{chunks: chunks}
	sink := &eventSink{}
	g := New(llm, "answer-model", 8192, sink, zap.NewNop())

	text, err := g.Generate(context.Background(), "sess-1", "topic", nil)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("x", 510), text)

	// Partials at chunk 250 and 500.
	require.Len(t, sink.events, 2)
	first, ok := sink.events[0].(streaming.ReportGenerating)
	require.True(t, ok)
	assert.Equal(t, strings.Repeat("x", 250), first.PartialReport)
	second := sink.events[1].(streaming.ReportGenerating)
	assert.Equal(t, strings.Repeat("x", 500), second.PartialReport)
}

func TestGenerateTrimsAndFormatsSources(t *testing.T) {
	llm := &streamingLLM{chunks: []string{"  # Report\n\nbody  "}}
	g := New(llm, "answer-model", 8192, &eventSink{}, zap.NewNop())

	results := []search.Result{
		{Title: "Source A", Link: "https://example.com/a", Content: "summary a"},
	}
	text, err := g.Generate(context.Background(), "sess-1", "my topic", results)
	require.NoError(t, err)
	assert.Equal(t, "# Report\n\nbody", text)
	assert.Contains(t, llm.prompt, "Research Topic: my topic")
	assert.Contains(t, llm.prompt, "- Link: https://example.com/a\nTitle: Source A\nSummary: summary a")
}

func TestGenerateSurvivesEventAppendFailure(t *testing.T) {
	chunks := make([]string, 260)
	for i := range chunks {
		chunks[i] = "y"
	}
	llm := &streamingLLM{chunks: chunks}
	g := New(llm, "answer-model", 8192, &eventSink{err: errors.New("redis down")}, zap.NewNop())

	text, err := g.Generate(context.Background(), "sess-1", "topic", nil)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("y", 260), text)
}

func TestGenerateError(t *testing.T) {
	g := New(&streamingLLM{err: errors.New("provider down")}, "answer-model", 8192, &eventSink{}, zap.NewNop())
	_, err := g.Generate(context.Background(), "sess-1", "topic", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "report generation")
}

func TestGenerateAppliesConfiguredMaxTokens(t *testing.T) {
	llm := &streamingLLM{chunks: []string{"text"}}
	g := New(llm, "answer-model", 2048, &eventSink{}, zap.NewNop())

	_, err := g.Generate(context.Background(), "sess-1", "topic", nil)
	require.NoError(t, err)
	assert.Equal(t, 2048, llm.maxTokens)

	// A non-positive bound falls back to the default instead of
	// disabling the limit.
	llm = &streamingLLM{chunks: []string{"text"}}
	g = New(llm, "answer-model", 0, &eventSink{}, zap.NewNop())
	_, err = g.Generate(context.Background(), "sess-1", "topic", nil)
	require.NoError(t, err)
	assert.Equal(t, 8192, llm.maxTokens)
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "Go Schedulers", Title("intro\n# Go Schedulers\nbody", "fallback"))
	assert.Equal(t, "fallback", Title("## only subheadings", "fallback"))
	assert.Equal(t, "fallback", Title("", "fallback"))
}
