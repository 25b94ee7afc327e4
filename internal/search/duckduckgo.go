package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/seekerlab/deepresearch/internal/ratelimit"
)

const ddgEndpoint = "https://lite.duckduckgo.com/lite/"

// DuckDuckGo scrapes DuckDuckGo's lite HTML interface. It needs no API key,
// which makes it the last-resort backend when the keyed ones are
// unconfigured or empty. Snippets only; results are enriched downstream.
type DuckDuckGo struct {
	endpoint string
	client   *http.Client
	limiter  *ratelimit.Limiter
	logger   *zap.Logger
}

// NewDuckDuckGo constructs a DuckDuckGo backend sharing the given limiter.
func NewDuckDuckGo(limiter *ratelimit.Limiter, logger *zap.Logger) *DuckDuckGo {
	return &DuckDuckGo{
		endpoint: ddgEndpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
		limiter:  limiter,
		logger:   logger,
	}
}

func (d *DuckDuckGo) Name() string        { return "duckduckgo" }
func (d *DuckDuckGo) InlineContent() bool { return false }

var (
	ddgLinkRe    = regexp.MustCompile(`<a rel="nofollow" href="([^"]+)"[^>]*>(.*?)</a>`)
	ddgSnippetRe = regexp.MustCompile(`<td class="result-snippet">(.*?)</td>`)
	htmlTagRe    = regexp.MustCompile(`<[^>]+>`)
)

// Search scrapes the lite results page for links and snippets.
func (d *DuckDuckGo) Search(ctx context.Context, query string) ([]Result, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("q", query)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build duckduckgo request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; deepresearch/1.0)")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read duckduckgo response: %w", err)
	}

	links := ddgLinkRe.FindAllStringSubmatch(string(body), -1)
	snippets := ddgSnippetRe.FindAllStringSubmatch(string(body), -1)

	var results []Result
	for i, m := range links {
		link := decodeDDGRedirect(m[1])
		if link == "" {
			continue
		}
		snippet := ""
		if i < len(snippets) {
			snippet = strings.TrimSpace(htmlTagRe.ReplaceAllString(snippets[i][1], ""))
		}
		results = append(results, Result{
			Title:   strings.TrimSpace(htmlTagRe.ReplaceAllString(m[2], "")),
			Link:    link,
			Content: snippet,
		})
		if len(results) >= 5 {
			break
		}
	}
	return results, nil
}

// decodeDDGRedirect unwraps DuckDuckGo's //duckduckgo.com/l/?uddg= redirect
// URLs into the target URL.
func decodeDDGRedirect(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme == "http" || u.Scheme == "https" {
		return href
	}
	return ""
}
