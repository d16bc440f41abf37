// Package openaichat adapts any OpenAI-compatible chat completion endpoint
// (OpenAI, DeepSeek, Qwen via DashScope compatible mode) to the provider
// port. The vendor is picked purely by base URL and model name.
package openaichat

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/shortreel/shortreel/internal/ports"
)

type Adapter struct {
	name   string
	model  string
	client *openai.Client
}

// New builds a provider named name. baseURL may be empty for api.openai.com.
func New(name, apiKey, model, baseURL string) *Adapter {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &Adapter{
		name:   name,
		model:  model,
		client: openai.NewClientWithConfig(cfg),
	}
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) Capabilities() []ports.Capability {
	return []ports.Capability{
		ports.CapScoreHighlight,
		ports.CapScoreRelevance,
		ports.CapClassifyTopic,
		ports.CapClassifySentiment,
		ports.CapSummarize,
	}
}

func (a *Adapter) Infer(ctx context.Context, req ports.ModelRequest) (ports.ModelResult, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.model,
		Temperature: 0,
		MaxTokens:   maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Input},
		},
	})
	if err != nil {
		return ports.ModelResult{}, classify(err)
	}
	if len(resp.Choices) == 0 {
		return ports.ModelResult{}, fmt.Errorf("%s: empty choices: %w", a.name, ports.ErrTransient)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return ports.ModelResult{}, fmt.Errorf("%s: empty completion: %w", a.name, ports.ErrTransient)
	}
	return ports.ModelResult{Text: text}, nil
}

// classify maps wire failures onto the gateway's retry semantics: rate
// limits, server errors and transport failures are transient; auth and
// request errors are not.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500 {
			return fmt.Errorf("status %d: %w", apiErr.HTTPStatusCode, ports.ErrTransient)
		}
		return err
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%v: %w", urlErr, ports.ErrTransient)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("call timeout: %w", ports.ErrTransient)
	}
	return err
}
