package capability

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/google/uuid"

	"github.com/clonar-ai/answer-engine/config"
	"github.com/clonar-ai/answer-engine/internal/answer"
)

// WebFetchProvider fetches pages named in step args and extracts readable
// main content. Pages and bytes per page are bounded; a page that fails to
// fetch or parse contributes nothing rather than failing the step.
type WebFetchProvider struct {
	cfg    config.WebFetchConfig
	client *http.Client
	logger *log.Logger
}

func NewWebFetchProvider(cfg config.WebFetchConfig) *WebFetchProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &WebFetchProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: log.New(log.Writer(), "[FETCH] ", log.LstdFlags),
	}
}

func (p *WebFetchProvider) Name() string           { return "web_fetch" }
func (p *WebFetchProvider) Capabilities() []string { return []string{"web_fetch"} }

func (p *WebFetchProvider) Search(ctx context.Context, capability string, args map[string]interface{}) (answer.CapabilityResult, error) {
	if capability != "web_fetch" {
		return answer.CapabilityResult{}, fmt.Errorf("web_fetch: unsupported capability %s", capability)
	}

	urls := urlArgs(args)
	maxPages := p.cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 3
	}
	if len(urls) > maxPages {
		urls = urls[:maxPages]
	}

	var chunks []answer.Chunk
	for _, link := range urls {
		c, err := p.fetchOne(ctx, link)
		if err != nil {
			p.logger.Printf("fetch %s failed: %v", link, err)
			continue
		}
		chunks = append(chunks, c)
	}
	return answer.CapabilityResult{Chunks: chunks}, nil
}

func (p *WebFetchProvider) fetchOne(ctx context.Context, link string) (answer.Chunk, error) {
	parsed, err := url.Parse(link)
	if err != nil || parsed.Scheme == "" {
		return answer.Chunk{}, fmt.Errorf("invalid url %q", link)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", link, nil)
	if err != nil {
		return answer.Chunk{}, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return answer.Chunk{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return answer.Chunk{}, fmt.Errorf("status %d", resp.StatusCode)
	}

	maxBytes := p.cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
	if err != nil {
		return answer.Chunk{}, err
	}

	article, err := readability.FromReader(strings.NewReader(string(body)), parsed)
	if err != nil {
		return answer.Chunk{}, fmt.Errorf("readability: %w", err)
	}
	content := strings.TrimSpace(article.TextContent)
	if content == "" {
		return answer.Chunk{}, fmt.Errorf("no readable content")
	}

	c := answer.Chunk{
		ID:        uuid.NewString(),
		Title:     strings.TrimSpace(article.Title),
		URL:       link,
		Author:    strings.TrimSpace(article.Byline),
		Content:   content,
		Thumbnail: article.Image,
		Source:    p.Name(),
	}
	if article.Image != "" {
		c.Images = []string{article.Image}
	}
	return c, nil
}

// urlArgs accepts "url" (string) or "urls" (list) step arguments.
func urlArgs(args map[string]interface{}) []string {
	var out []string
	if u := strArg(args, "url"); u != "" {
		out = append(out, u)
	}
	if list, ok := args["urls"].([]interface{}); ok {
		for _, v := range list {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	}
	return out
}
