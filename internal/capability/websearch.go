package capability

import (
	"context"
	"fmt"
	"log"
	"net/url"

	"github.com/google/uuid"

	"github.com/clonar-ai/answer-engine/config"
	"github.com/clonar-ai/answer-engine/internal/answer"
)

// BraveProvider serves web_search through the Brave Search API.
type BraveProvider struct {
	cfg    config.WebSearchConfig
	client *answer.HTTPClient
	logger *log.Logger
}

func NewBraveProvider(cfg config.WebSearchConfig, client *answer.HTTPClient) *BraveProvider {
	return &BraveProvider{
		cfg:    cfg,
		client: client,
		logger: log.New(log.Writer(), "[BRAVE] ", log.LstdFlags),
	}
}

func (p *BraveProvider) Name() string           { return "brave" }
func (p *BraveProvider) Capabilities() []string { return []string{"web_search"} }

func (p *BraveProvider) Search(ctx context.Context, capability string, args map[string]interface{}) (answer.CapabilityResult, error) {
	if capability != "web_search" {
		return answer.CapabilityResult{}, fmt.Errorf("brave: unsupported capability %s", capability)
	}
	if p.cfg.BraveAPIKey == "" {
		p.logger.Printf("warning: no api key configured, web_search returns empty")
		return answer.CapabilityResult{}, nil
	}
	k := p.cfg.MaxResults
	if k <= 0 {
		k = 8
	}

	endpoint := fmt.Sprintf("https://api.search.brave.com/res/v1/web/search?q=%s&count=%d",
		url.QueryEscape(strArg(args, "query")), k)
	headers := map[string]string{
		"Accept":               "application/json",
		"X-Subscription-Token": p.cfg.BraveAPIKey,
	}

	var raw struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := p.client.DoJSON(ctx, "GET", endpoint, headers, nil, &raw); err != nil {
		return answer.CapabilityResult{}, fmt.Errorf("brave search: %w", err)
	}

	var chunks []answer.Chunk
	for i, r := range raw.Web.Results {
		if i >= k {
			break
		}
		chunks = append(chunks, answer.Chunk{
			ID:      uuid.NewString(),
			Title:   r.Title,
			URL:     r.URL,
			Content: r.Description,
			Source:  p.Name(),
		})
	}
	return answer.CapabilityResult{Chunks: chunks}, nil
}

// SerperProvider serves web_search through serper.dev.
type SerperProvider struct {
	cfg    config.WebSearchConfig
	client *answer.HTTPClient
	logger *log.Logger
}

func NewSerperProvider(cfg config.WebSearchConfig, client *answer.HTTPClient) *SerperProvider {
	return &SerperProvider{
		cfg:    cfg,
		client: client,
		logger: log.New(log.Writer(), "[SERPER] ", log.LstdFlags),
	}
}

func (p *SerperProvider) Name() string           { return "serper" }
func (p *SerperProvider) Capabilities() []string { return []string{"web_search"} }

func (p *SerperProvider) Search(ctx context.Context, capability string, args map[string]interface{}) (answer.CapabilityResult, error) {
	if capability != "web_search" {
		return answer.CapabilityResult{}, fmt.Errorf("serper: unsupported capability %s", capability)
	}
	if p.cfg.SerperAPIKey == "" {
		p.logger.Printf("warning: no api key configured, web_search returns empty")
		return answer.CapabilityResult{}, nil
	}
	k := p.cfg.MaxResults
	if k <= 0 {
		k = 8
	}

	payload := map[string]any{"q": strArg(args, "query"), "num": k}
	headers := map[string]string{"X-API-KEY": p.cfg.SerperAPIKey}

	var raw struct {
		Organic []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic"`
	}
	if err := p.client.DoJSON(ctx, "POST", "https://google.serper.dev/search", headers, payload, &raw); err != nil {
		return answer.CapabilityResult{}, fmt.Errorf("serper search: %w", err)
	}

	var chunks []answer.Chunk
	for i, r := range raw.Organic {
		if i >= k {
			break
		}
		chunks = append(chunks, answer.Chunk{
			ID:      uuid.NewString(),
			Title:   r.Title,
			URL:     r.Link,
			Content: r.Snippet,
			Source:  p.Name(),
		})
	}
	return answer.CapabilityResult{Chunks: chunks}, nil
}
