package chat

import (
	"context"
	"sync"
)

// MockChannel is a test double for Channel.
type MockChannel struct {
	SentMessages []OutboundMessage
	SendErr      error

	handler Handler
	stopped bool
	mu      sync.Mutex
}

func (m *MockChannel) Send(_ context.Context, msg OutboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		return m.SendErr
	}
	m.SentMessages = append(m.SentMessages, msg)
	return nil
}

func (m *MockChannel) Start(_ context.Context, handler Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
	return nil
}

func (m *MockChannel) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	return nil
}

// Deliver simulates an inbound message by invoking the started handler.
func (m *MockChannel) Deliver(ctx context.Context, msg InboundMessage) {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	if h != nil {
		h(ctx, msg)
	}
}

// Sent returns a copy of the messages sent so far.
func (m *MockChannel) Sent() []OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]OutboundMessage(nil), m.SentMessages...)
}

// Stopped reports whether Stop was called.
func (m *MockChannel) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}
