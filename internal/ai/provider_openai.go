package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	groqBaseURL       = "https://api.groq.com/openai/v1"
	deepSeekBaseURL   = "https://api.deepseek.com/v1"
	openRouterBaseURL = "https://openrouter.ai/api/v1"
)

// ErrRateLimited is returned when a provider answers 429.
var ErrRateLimited = errors.New("rate limited")

// OpenAIProvider implements Provider for OpenAI and any OpenAI-compatible
// endpoint (Groq, DeepSeek, OpenRouter, Ollama).
type OpenAIProvider struct {
	client *openai.Client
	name   string
	model  string
}

// OpenAIOption configures an OpenAIProvider.
type OpenAIOption func(*openai.ClientConfig, *OpenAIProvider)

// WithBaseURL overrides the API base URL, including the /v1 suffix.
func WithBaseURL(url string) OpenAIOption {
	return func(c *openai.ClientConfig, _ *OpenAIProvider) { c.BaseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(client *http.Client) OpenAIOption {
	return func(c *openai.ClientConfig, _ *OpenAIProvider) { c.HTTPClient = client }
}

// WithProviderName sets the name reported in errors.
func WithProviderName(name string) OpenAIOption {
	return func(_ *openai.ClientConfig, p *OpenAIProvider) { p.name = name }
}

// NewOpenAIProvider creates a provider for the OpenAI API. model is used when
// a request does not name one.
func NewOpenAIProvider(apiKey, model string, opts ...OpenAIOption) *OpenAIProvider {
	p := &OpenAIProvider{name: "openai", model: model}
	config := openai.DefaultConfig(apiKey)
	for _, opt := range opts {
		opt(&config, p)
	}
	p.client = openai.NewClientWithConfig(config)
	return p
}

// NewGroqProvider creates a provider for Groq's OpenAI-compatible API.
func NewGroqProvider(apiKey, model string, opts ...OpenAIOption) *OpenAIProvider {
	opts = append([]OpenAIOption{WithBaseURL(groqBaseURL), WithProviderName("groq")}, opts...)
	return NewOpenAIProvider(apiKey, model, opts...)
}

// NewDeepSeekProvider creates a provider for DeepSeek's OpenAI-compatible API.
func NewDeepSeekProvider(apiKey, model string, opts ...OpenAIOption) *OpenAIProvider {
	opts = append([]OpenAIOption{WithBaseURL(deepSeekBaseURL), WithProviderName("deepseek")}, opts...)
	return NewOpenAIProvider(apiKey, model, opts...)
}

// NewOpenRouterProvider creates a provider for OpenRouter.
func NewOpenRouterProvider(apiKey, model string, opts ...OpenAIOption) *OpenAIProvider {
	opts = append([]OpenAIOption{WithBaseURL(openRouterBaseURL), WithProviderName("openrouter")}, opts...)
	return NewOpenAIProvider(apiKey, model, opts...)
}

// NewOllamaProvider creates a provider for a local Ollama server through its
// OpenAI-compatible endpoint. Ollama ignores the API key.
func NewOllamaProvider(baseURL, model string, opts ...OpenAIOption) *OpenAIProvider {
	opts = append([]OpenAIOption{WithBaseURL(strings.TrimRight(baseURL, "/") + "/v1"), WithProviderName("ollama")}, opts...)
	return NewOpenAIProvider("ollama", model, opts...)
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string { return p.name }

func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openAIRole(m.Role),
			Content: m.Content,
		})
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:               model,
		Messages:            messages,
		MaxCompletionTokens: req.MaxTokens,
		Temperature:         float32(req.Temperature),
	})
	if err != nil {
		return CompletionResponse{}, p.mapError(err)
	}
	if len(resp.Choices) == 0 {
		return CompletionResponse{}, fmt.Errorf("%s: no choices in response", p.name)
	}

	return CompletionResponse{
		Content:      resp.Choices[0].Message.Content,
		Model:        resp.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

// HealthCheck lists models to verify the key and endpoint.
func (p *OpenAIProvider) HealthCheck(ctx context.Context) error {
	if _, err := p.client.ListModels(ctx); err != nil {
		return p.mapError(err)
	}
	return nil
}

func (p *OpenAIProvider) mapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%s: %w: %v", p.name, ErrRateLimited, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%s: %w: %v", p.name, ErrRateLimited, err)
	}
	return fmt.Errorf("%s: %w", p.name, err)
}

func openAIRole(role string) string {
	switch role {
	case RoleSystem:
		return openai.ChatMessageRoleSystem
	case RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}
