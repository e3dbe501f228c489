package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicDefaultMaxTokens = 1024

// AnthropicProvider implements Provider for the Anthropic Messages API.
type AnthropicProvider struct {
	client *anthropic.Client
	model  string
}

// AnthropicOption configures an AnthropicProvider.
type AnthropicOption func(*[]option.RequestOption)

// WithAnthropicBaseURL overrides the API base URL.
func WithAnthropicBaseURL(url string) AnthropicOption {
	return func(opts *[]option.RequestOption) { *opts = append(*opts, option.WithBaseURL(url)) }
}

// WithAnthropicHTTPClient sets the HTTP client used for requests.
func WithAnthropicHTTPClient(client *http.Client) AnthropicOption {
	return func(opts *[]option.RequestOption) { *opts = append(*opts, option.WithHTTPClient(client)) }
}

// NewAnthropicProvider creates a new Anthropic provider. The SDK's own retries
// are disabled; fallback is handled by the Router.
func NewAnthropicProvider(apiKey, model string, opts ...AnthropicOption) *AnthropicProvider {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	for _, opt := range opts {
		opt(&reqOpts)
	}
	client := anthropic.NewClient(reqOpts...)
	return &AnthropicProvider{client: &client, model: model}
}

func (p *AnthropicProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	system, rest := req.System()
	messages := make([]anthropic.MessageParam, 0, len(rest))
	for _, m := range rest {
		role := anthropic.MessageParamRoleUser
		if m.Role == RoleAssistant {
			role = anthropic.MessageParamRoleAssistant
		}
		messages = append(messages, anthropic.MessageParam{
			Role:    role,
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(m.Content)},
		})
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return CompletionResponse{}, mapAnthropicError(err)
	}

	var content strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	if content.Len() == 0 {
		return CompletionResponse{}, fmt.Errorf("anthropic: no text content in response")
	}

	return CompletionResponse{
		Content:      content.String(),
		Model:        string(msg.Model),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}, nil
}

// HealthCheck lists models to verify the key and endpoint.
func (p *AnthropicProvider) HealthCheck(ctx context.Context) error {
	if _, err := p.client.Models.List(ctx, anthropic.ModelListParams{}); err != nil {
		return mapAnthropicError(err)
	}
	return nil
}

func mapAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("anthropic: %w: %v", ErrRateLimited, err)
	}
	return fmt.Errorf("anthropic: %w", err)
}
