// Package cover generates a report cover image: an LLM turns the research
// plan into an image prompt, an image backend renders it, and the result is
// stored as an asset.
package cover

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"

	"github.com/seekerlab/deepresearch/internal/assets"
	"github.com/seekerlab/deepresearch/internal/providers"
	"github.com/seekerlab/deepresearch/internal/streaming"
)

const imagePromptSystem = `You write prompts for an image generation model.
Given a research topic and plan, write one vivid, concrete prompt for an
abstract editorial cover illustration of the subject. No text in the image.
Reply with the prompt only.`

// ImageBackend renders a prompt into image bytes.
type ImageBackend interface {
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
}

// Events is the slice of the event log the generator needs.
type Events interface {
	Append(ctx context.Context, sessionID string, e streaming.Event) error
}

// Generator produces and stores cover images.
type Generator struct {
	llm    providers.LLM
	model  string
	images ImageBackend
	assets assets.Store
	events Events
	logger *zap.Logger
}

// New creates a cover generator. model is the logical model used for the
// image prompt.
func New(llm providers.LLM, model string, images ImageBackend, store assets.Store, events Events, logger *zap.Logger) *Generator {
	return &Generator{llm: llm, model: model, images: images, assets: store, events: events, logger: logger}
}

// Generate produces the cover for a session and returns its URL. Callers
// treat failure as non-fatal for the run.
func (g *Generator) Generate(ctx context.Context, sessionID, topic, plan string) (string, error) {
	prompt, err := g.llm.Generate(ctx, g.model, []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, imagePromptSystem),
		llms.TextParts(schema.ChatMessageTypeHuman, fmt.Sprintf("Research Topic: %s\n\nPlan:\n%s", topic, plan)),
	}, llms.WithMaxTokens(256))
	if err != nil {
		return "", fmt.Errorf("image prompt generation: %w", err)
	}
	prompt = strings.TrimSpace(prompt)

	if err := g.events.Append(ctx, sessionID, streaming.CoverGenerationStarted{
		Prompt:    prompt,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		g.logger.Warn("failed to append cover start event", zap.Error(err))
	}

	img, err := g.images.GenerateImage(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("cover image generation: %w", err)
	}

	url, err := g.assets.Put(ctx, fmt.Sprintf("covers/%s.png", sessionID), img)
	if err != nil {
		return "", fmt.Errorf("store cover image: %w", err)
	}

	if err := g.events.Append(ctx, sessionID, streaming.CoverGenerationCompleted{
		CoverURL:  url,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		g.logger.Warn("failed to append cover completed event", zap.Error(err))
	}

	g.logger.Info("cover generated",
		zap.String("session_id", sessionID),
		zap.String("url", url),
	)
	return url, nil
}
