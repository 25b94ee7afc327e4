// Package extract fetches readable text for a URL through a
// content-extraction service. The search aggregator uses it to enrich
// snippet-only results with page content.
package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

// MaxContentChars bounds the extracted text kept per page.
const MaxContentChars = 80_000

// Extractor returns readable text for a URL, or an error when the page could
// not be fetched or yielded nothing useful.
type Extractor interface {
	Extract(ctx context.Context, url string) (string, error)
}

// JinaReader extracts page content through the Jina Reader service
// (https://r.jina.ai/<url>), which returns the page as markdown.
type JinaReader struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// NewJinaReader creates a reader client. apiKey may be empty; Jina serves
// unauthenticated requests at a lower rate.
func NewJinaReader(apiKey string, logger *zap.Logger) *JinaReader {
	return &JinaReader{
		baseURL: "https://r.jina.ai/",
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 20 * time.Second},
		logger:  logger,
	}
}

// NewJinaReaderWithBaseURL overrides the service URL, for tests.
func NewJinaReaderWithBaseURL(baseURL, apiKey string, logger *zap.Logger) *JinaReader {
	r := NewJinaReader(apiKey, logger)
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	r.baseURL = baseURL
	return r
}

// Extract fetches the page as markdown, strips link noise, and truncates to
// MaxContentChars.
func (j *JinaReader) Extract(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.baseURL+pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("build reader request: %w", err)
	}
	if j.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+j.apiKey)
	}
	req.Header.Set("X-Return-Format", "markdown")
	req.Header.Set("X-Timeout", "15")

	resp, err := j.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reader returned %d for %s", resp.StatusCode, pageURL)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4*MaxContentChars))
	if err != nil {
		return "", fmt.Errorf("read body for %s: %w", pageURL, err)
	}

	text := Truncate(StripLinks(string(raw)), MaxContentChars)
	j.logger.Debug("extracted page content",
		zap.String("url", pageURL),
		zap.Int("chars", len(text)),
	)
	return text, nil
}

// Truncate cuts s at max bytes without splitting a rune.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
