// Package chat provides a unified interface for messaging channels (Telegram, WebSocket).
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"
)

// Channel names.
const (
	ChannelTelegram  = "telegram"
	ChannelWebSocket = "websocket"
)

// Kind tells what a user did to produce an InboundMessage.
type Kind int

const (
	KindText Kind = iota
	KindCommand
	KindCallback
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindCommand:
		return "command"
	case KindCallback:
		return "callback"
	default:
		return "unknown"
	}
}

// InboundMessage is a message received from any channel.
type InboundMessage struct {
	Channel string
	ChatID  string // where replies go
	UserID  int64
	Kind    Kind

	Command string // without the leading slash, lower-cased
	Args    string // text after the command
	Text    string // free text, or the full command line

	Payload    string // callback data
	CallbackID string

	FirstName string
	Username  string
}

// Button is an inline choice attached to an outbound message.
type Button struct {
	Text    string `json:"text"`
	Payload string `json:"payload"`
}

// Document is a file attached to an outbound message.
type Document struct {
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// OutboundMessage is a message to send via any channel.
type OutboundMessage struct {
	Channel  string
	ChatID   string
	Text     string
	Buttons  []Button // rendered one per row
	Document *Document
}

// Handler processes an inbound message.
type Handler func(ctx context.Context, msg InboundMessage)

// Channel is the interface each messaging platform must implement.
type Channel interface {
	Send(ctx context.Context, msg OutboundMessage) error
	Start(ctx context.Context, handler Handler) error
	Stop() error
}

// Gateway routes messages to/from registered channels.
type Gateway struct {
	channels map[string]Channel
	mu       sync.RWMutex
}

// NewGateway creates a new chat gateway.
func NewGateway() *Gateway {
	return &Gateway{
		channels: make(map[string]Channel),
	}
}

// Register adds a channel to the gateway.
func (g *Gateway) Register(name string, ch Channel) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.channels[name] = ch
	slog.Info("chat channel registered", "channel", name)
}

// HasChannel returns true if the named channel is registered.
func (g *Gateway) HasChannel(name string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.channels[name]
	return ok
}

// Send dispatches a message to the appropriate channel.
func (g *Gateway) Send(ctx context.Context, msg OutboundMessage) error {
	g.mu.RLock()
	ch, ok := g.channels[msg.Channel]
	g.mu.RUnlock()

	if !ok {
		return fmt.Errorf("unknown channel: %s", msg.Channel)
	}
	return ch.Send(ctx, msg)
}

// StartAll starts all registered channels with the given message handler.
func (g *Gateway) StartAll(ctx context.Context, handler Handler) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for name, ch := range g.channels {
		slog.Info("starting channel", "channel", name)
		if err := ch.Start(ctx, handler); err != nil {
			return fmt.Errorf("starting channel %s: %w", name, err)
		}
	}
	return nil
}

// StopAll stops every registered channel and returns the joined errors.
func (g *Gateway) StopAll() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var errs []error
	for name, ch := range g.channels {
		if err := ch.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stopping channel %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// ParseCommand splits "/learn Machine Learning" into ("learn", "Machine
// Learning"). A "@botname" suffix on the command is dropped.
func ParseCommand(text string) (command, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") || len(text) == 1 {
		return "", "", false
	}

	command, args, _ = strings.Cut(text[1:], " ")
	command, _, _ = strings.Cut(command, "@")
	if command == "" {
		return "", "", false
	}
	return strings.ToLower(command), strings.TrimSpace(args), true
}

// SplitMessage splits text into chunks of at most maxLen bytes, preferring
// newline then space boundaries and never cutting through a UTF-8 sequence.
func SplitMessage(text string, maxLen int) []string {
	if text == "" {
		return nil
	}
	if len(text) <= maxLen {
		return []string{text}
	}

	var parts []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			parts = append(parts, text)
			break
		}
		cutAt := maxLen
		for cutAt > 0 && !utf8.RuneStart(text[cutAt]) {
			cutAt--
		}
		if idx := strings.LastIndex(text[:cutAt], "\n"); idx > 0 {
			cutAt = idx + 1
		} else if idx := strings.LastIndex(text[:cutAt], " "); idx > 0 {
			cutAt = idx + 1
		}
		if cutAt == 0 {
			cutAt = maxLen
		}
		parts = append(parts, text[:cutAt])
		text = text[cutAt:]
	}
	return parts
}
