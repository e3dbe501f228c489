package ai

import (
	"context"
	"sync"
)

// MockProvider is a test double for AI providers. Queued Responses are
// returned first, one per call; after that Response is returned every time.
type MockProvider struct {
	Response  string
	Responses []string
	Err       error

	// LastRequest captures the last request for inspection.
	LastRequest *CompletionRequest
	Calls       int

	mu sync.Mutex
}

// NewMockProvider creates a MockProvider that returns the given response.
func NewMockProvider(response string) *MockProvider {
	return &MockProvider{Response: response}
}

func (m *MockProvider) Complete(_ context.Context, req CompletionRequest) (CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastRequest = &req
	m.Calls++
	if m.Err != nil {
		return CompletionResponse{}, m.Err
	}

	content := m.Response
	if len(m.Responses) > 0 {
		content = m.Responses[0]
		m.Responses = m.Responses[1:]
	}
	return CompletionResponse{
		Content:      content,
		Model:        "mock",
		InputTokens:  10,
		OutputTokens: len(content),
	}, nil
}

func (m *MockProvider) HealthCheck(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Err
}
