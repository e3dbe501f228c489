package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

// GoogleProvider implements Provider for the Gemini API.
type GoogleProvider struct {
	client *genai.Client
	model  string
}

// GoogleOption configures a GoogleProvider.
type GoogleOption func(*genai.ClientConfig)

// WithGoogleBaseURL overrides the API base URL.
func WithGoogleBaseURL(url string) GoogleOption {
	return func(c *genai.ClientConfig) { c.HTTPOptions.BaseURL = url }
}

// WithGoogleHTTPClient sets the HTTP client used for requests.
func WithGoogleHTTPClient(client *http.Client) GoogleOption {
	return func(c *genai.ClientConfig) { c.HTTPClient = client }
}

// NewGoogleProvider creates a new Gemini provider.
func NewGoogleProvider(ctx context.Context, apiKey, model string, opts ...GoogleOption) (*GoogleProvider, error) {
	config := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	for _, opt := range opts {
		opt(config)
	}

	client, err := genai.NewClient(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &GoogleProvider{client: client, model: model}, nil
}

func (p *GoogleProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	config := &genai.GenerateContentConfig{}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		temp := float32(req.Temperature)
		config.Temperature = &temp
	}

	system, rest := req.System()
	if system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	contents := make([]*genai.Content, 0, len(rest))
	for _, m := range rest {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}

	result, err := p.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return CompletionResponse{}, mapGoogleError(err)
	}

	resp := CompletionResponse{
		Content: result.Text(),
		Model:   model,
	}
	if resp.Content == "" {
		return CompletionResponse{}, fmt.Errorf("google: no text content in response")
	}
	if result.UsageMetadata != nil {
		resp.InputTokens = int(result.UsageMetadata.PromptTokenCount)
		resp.OutputTokens = int(result.UsageMetadata.CandidatesTokenCount)
	}
	return resp, nil
}

// HealthCheck fetches the configured model's metadata.
func (p *GoogleProvider) HealthCheck(ctx context.Context) error {
	if _, err := p.client.Models.Get(ctx, p.model, nil); err != nil {
		return mapGoogleError(err)
	}
	return nil
}

func mapGoogleError(err error) error {
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
		return fmt.Errorf("google: %w: %v", ErrRateLimited, err)
	}
	return fmt.Errorf("google: %w", err)
}
