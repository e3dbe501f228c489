package chat

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

const wsWriteTimeout = 10 * time.Second

// Frame types exchanged with web clients.
const (
	FrameMessage  = "message"
	FrameCallback = "callback"
	FrameWelcome  = "welcome"
)

// WSInbound is a JSON frame sent by a web client. A message frame carries
// Text (commands start with "/"); a callback frame carries the Payload of a
// button the client received earlier.
type WSInbound struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Payload string `json:"payload,omitempty"`
}

// WSOutbound is a JSON frame sent to a web client.
type WSOutbound struct {
	Type         string    `json:"type"`
	ConnectionID string    `json:"connection_id,omitempty"`
	Text         string    `json:"text,omitempty"`
	Buttons      []Button  `json:"buttons,omitempty"`
	Document     *Document `json:"document,omitempty"`
}

// WebSocketChannel serves a web chat widget. Each connection identifies its
// user with the user_id query parameter and is addressed by a generated
// connection id, which becomes the ChatID of its messages.
type WebSocketChannel struct {
	token string

	mu      sync.RWMutex
	conns   map[string]*websocket.Conn
	handler Handler
	ctx     context.Context
}

// NewWebSocketChannel creates a WebSocket channel. If token is non-empty
// clients must present it in the token query parameter.
func NewWebSocketChannel(token string) *WebSocketChannel {
	return &WebSocketChannel{
		token: token,
		conns: make(map[string]*websocket.Conn),
	}
}

// Start records the handler; connections are accepted by ServeHTTP.
func (w *WebSocketChannel) Start(ctx context.Context, handler Handler) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handler = handler
	w.ctx = ctx
	return nil
}

// Stop closes every open connection.
func (w *WebSocketChannel) Stop() error {
	w.mu.Lock()
	conns := w.conns
	w.conns = make(map[string]*websocket.Conn)
	w.mu.Unlock()

	for _, c := range conns {
		_ = c.Close(websocket.StatusGoingAway, "server shutting down")
	}
	return nil
}

// ConnectionCount returns the number of open connections.
func (w *WebSocketChannel) ConnectionCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.conns)
}

func (w *WebSocketChannel) Send(ctx context.Context, msg OutboundMessage) error {
	w.mu.RLock()
	conn, ok := w.conns[msg.ChatID]
	w.mu.RUnlock()
	if !ok {
		return fmt.Errorf("websocket connection %s not found", msg.ChatID)
	}

	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, WSOutbound{
		Type:     FrameMessage,
		Text:     msg.Text,
		Buttons:  msg.Buttons,
		Document: msg.Document,
	})
}

// ServeHTTP upgrades the request and reads frames until the client leaves.
func (w *WebSocketChannel) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if w.token != "" && subtle.ConstantTimeCompare([]byte(r.URL.Query().Get("token")), []byte(w.token)) != 1 {
		http.Error(rw, "unauthorized", http.StatusUnauthorized)
		return
	}
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		http.Error(rw, "user_id query parameter is required", http.StatusBadRequest)
		return
	}

	w.mu.RLock()
	handler, baseCtx := w.handler, w.ctx
	w.mu.RUnlock()
	if handler == nil {
		http.Error(rw, "chat is not ready", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(rw, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	id := uuid.NewString()
	w.mu.Lock()
	w.conns[id] = conn
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		delete(w.conns, id)
		w.mu.Unlock()
	}()

	slog.Info("websocket client connected", "connection_id", id, "user_id", userID)

	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()
	stop := context.AfterFunc(r.Context(), cancel)
	defer stop()

	if err := wsjson.Write(ctx, conn, WSOutbound{Type: FrameWelcome, ConnectionID: id}); err != nil {
		return
	}

	for {
		var frame WSInbound
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && !errors.Is(err, context.Canceled) {
				slog.Warn("websocket read failed", "connection_id", id, "error", err)
			}
			slog.Info("websocket client disconnected", "connection_id", id, "user_id", userID)
			return
		}

		msg, ok := mapWebSocketFrame(frame, id, userID)
		if !ok {
			slog.Warn("ignoring websocket frame", "connection_id", id, "type", frame.Type)
			continue
		}
		handler(ctx, msg)
	}
}

func mapWebSocketFrame(f WSInbound, connID string, userID int64) (InboundMessage, bool) {
	msg := InboundMessage{
		Channel: ChannelWebSocket,
		ChatID:  connID,
		UserID:  userID,
	}
	switch f.Type {
	case FrameCallback:
		if f.Payload == "" {
			return InboundMessage{}, false
		}
		msg.Kind = KindCallback
		msg.Payload = f.Payload
	case FrameMessage:
		if f.Text == "" {
			return InboundMessage{}, false
		}
		msg.Text = f.Text
		if cmd, args, ok := ParseCommand(f.Text); ok {
			msg.Kind = KindCommand
			msg.Command = cmd
			msg.Args = args
		}
	default:
		return InboundMessage{}, false
	}
	return msg, true
}
