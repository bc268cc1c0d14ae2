package answer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/clonar-ai/answer-engine/config"
	"github.com/clonar-ai/answer-engine/internal/telemetry"
)

// NewLLMProvider creates a new LLM provider based on configuration.
func NewLLMProvider(cfg config.LLMConfig) (LLMProvider, error) {
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("no LLM providers configured")
	}
	for _, provider := range cfg.Providers {
		switch provider.Type {
		case "openai":
			return NewOpenAIProvider(provider), nil
		default:
			return nil, fmt.Errorf("unsupported LLM provider type: %s", provider.Type)
		}
	}
	return nil, fmt.Errorf("no valid LLM providers found")
}

// RouteModel resolves the model for a pipeline stage, falling back to the
// routing fallback when the stage has no explicit assignment.
func RouteModel(routing config.LLMRoutingConfig, stage string) string {
	var m string
	switch stage {
	case "classify":
		m = routing.Classify
	case "rewrite":
		m = routing.Rewrite
	case "planning":
		m = routing.Planning
	case "synthesis":
		m = routing.Synthesis
	case "rerank":
		m = routing.Rerank
	case "critique":
		m = routing.Critique
	case "light":
		m = routing.Light
	case "embedding":
		m = routing.Embedding
	}
	if m == "" {
		m = routing.Fallback
	}
	return m
}

// OpenAIProvider implements LLMProvider for OpenAI
type OpenAIProvider struct {
	config    config.LLMProvider
	rawModels map[string]config.LLMModel
	client    *http.Client
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(cfg config.LLMProvider) *OpenAIProvider {
	return &OpenAIProvider{
		config:    cfg,
		rawModels: cfg.Models,
		client:    &http.Client{Timeout: cfg.Timeout},
	}
}

func (p *OpenAIProvider) apiKey() string {
	if p.config.APIKey != "" {
		return p.config.APIKey
	}
	return os.Getenv("OPENAI_API_KEY")
}

func (p *OpenAIProvider) baseURL() string {
	if p.config.BaseURL != "" {
		return p.config.BaseURL
	}
	return "https://api.openai.com/v1"
}

type chatMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatReq struct {
	Model       string    `json:"model"`
	Messages    []chatMsg `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

func (p *OpenAIProvider) buildRequest(prompt, model string, options map[string]interface{}, stream bool) (chatReq, error) {
	m, ok := p.rawModels[model]
	if !ok {
		return chatReq{}, fmt.Errorf("model %s not configured", model)
	}
	apiModel := m.APIName
	if apiModel == "" {
		apiModel = m.Name
	}
	temperature := m.Temperature
	if t, ok := options["temperature"].(float64); ok {
		temperature = t
	}
	maxTokens := m.MaxTokens
	if mt, ok := options["max_tokens"].(int); ok {
		maxTokens = mt
	}
	return chatReq{
		Model:       apiModel,
		Messages:    []chatMsg{{Role: "user", Content: prompt}},
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Stream:      stream,
	}, nil
}

// Generate generates text using OpenAI
func (p *OpenAIProvider) Generate(ctx context.Context, prompt string, model string, options map[string]interface{}) (text string, err error) {
	defer func() { observeLLMCall("generate", err) }()
	apiKey := p.apiKey()
	if apiKey == "" {
		return "", fmt.Errorf("OpenAI API key not configured")
	}

	reqBody, err := p.buildRequest(prompt, model, options, false)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL()+"/chat/completions", bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("OpenAI status %d", resp.StatusCode)
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("no choices")
	}
	return out.Choices[0].Message.Content, nil
}

// GenerateStream generates text with server-sent deltas. onDelta receives
// each content increment; the concatenated text is returned at the end.
func (p *OpenAIProvider) GenerateStream(ctx context.Context, prompt string, model string, options map[string]interface{}, onDelta func(string)) (text string, err error) {
	defer func() { observeLLMCall("generate_stream", err) }()
	apiKey := p.apiKey()
	if apiKey == "" {
		return "", fmt.Errorf("OpenAI API key not configured")
	}

	reqBody, err := p.buildRequest(prompt, model, options, true)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL()+"/chat/completions", bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("OpenAI status %d", resp.StatusCode)
	}

	var full strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			continue
		}
		var delta struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(payload), &delta); err != nil {
			continue
		}
		if len(delta.Choices) == 0 || delta.Choices[0].Delta.Content == "" {
			continue
		}
		full.WriteString(delta.Choices[0].Delta.Content)
		if onDelta != nil {
			onDelta(delta.Choices[0].Delta.Content)
		}
		select {
		case <-ctx.Done():
			return full.String(), ctx.Err()
		default:
		}
	}
	if err := scanner.Err(); err != nil {
		return full.String(), fmt.Errorf("stream read: %w", err)
	}
	return full.String(), nil
}

// Embed generates vector embeddings for the provided inputs.
func (p *OpenAIProvider) Embed(ctx context.Context, model string, input []string) (vecs [][]float32, err error) {
	if len(input) == 0 {
		return nil, nil
	}
	defer func() { observeLLMCall("embed", err) }()
	apiKey := p.apiKey()
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key not configured")
	}

	apiModel := model
	if m, ok := p.rawModels[model]; ok {
		if m.APIName != "" {
			apiModel = m.APIName
		} else if m.Name != "" {
			apiModel = m.Name
		}
	}

	body, err := json.Marshal(map[string]interface{}{
		"model": apiModel,
		"input": input,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL()+"/embeddings", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OpenAI status %d", resp.StatusCode)
	}

	var out struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	// The API may return data out of order; index keeps vectors aligned
	// with the input.
	vecs = make([][]float32, len(input))
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}

func observeLLMCall(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	telemetry.LLMCalls.WithLabelValues(op, outcome).Inc()
}

// GetAvailableModels returns available models
func (p *OpenAIProvider) GetAvailableModels() []string {
	var models []string
	for name := range p.rawModels {
		models = append(models, name)
	}
	return models
}
