package chat_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/p-n-ai/tutor-bot/internal/chat"
)

func startWebSocket(t *testing.T, token string) (*chat.WebSocketChannel, string, chan chat.InboundMessage) {
	t.Helper()
	ch := chat.NewWebSocketChannel(token)
	received := make(chan chat.InboundMessage, 8)
	if err := ch.Start(t.Context(), func(_ context.Context, msg chat.InboundMessage) {
		received <- msg
	}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	server := httptest.NewServer(ch)
	t.Cleanup(server.Close)
	return ch, "ws" + strings.TrimPrefix(server.URL, "http"), received
}

func dial(t *testing.T, url string) (*websocket.Conn, string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })

	var welcome chat.WSOutbound
	if err := wsjson.Read(ctx, conn, &welcome); err != nil {
		t.Fatalf("reading welcome frame: %v", err)
	}
	if welcome.Type != chat.FrameWelcome || welcome.ConnectionID == "" {
		t.Fatalf("welcome = %+v", welcome)
	}
	return conn, welcome.ConnectionID
}

func receive(t *testing.T, ch <-chan chat.InboundMessage) chat.InboundMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for inbound message")
		return chat.InboundMessage{}
	}
}

func TestWebSocketChannel_RoundTrip(t *testing.T) {
	ch, url, received := startWebSocket(t, "")
	conn, connID := dial(t, url+"?user_id=7")
	ctx := t.Context()

	if err := wsjson.Write(ctx, conn, chat.WSInbound{Type: chat.FrameMessage, Text: "/learn Go lang"}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	msg := receive(t, received)
	if msg.Kind != chat.KindCommand || msg.Command != "learn" || msg.Args != "Go lang" {
		t.Errorf("command message = %+v", msg)
	}
	if msg.UserID != 7 || msg.ChatID != connID || msg.Channel != chat.ChannelWebSocket {
		t.Errorf("addressing = user %d chat %q channel %q", msg.UserID, msg.ChatID, msg.Channel)
	}

	if err := wsjson.Write(ctx, conn, chat.WSInbound{Type: chat.FrameMessage, Text: "what is a goroutine?"}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if msg := receive(t, received); msg.Kind != chat.KindText || msg.Text != "what is a goroutine?" {
		t.Errorf("text message = %+v", msg)
	}

	if err := wsjson.Write(ctx, conn, chat.WSInbound{Type: chat.FrameCallback, Payload: "quiz:0:1"}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if msg := receive(t, received); msg.Kind != chat.KindCallback || msg.Payload != "quiz:0:1" {
		t.Errorf("callback message = %+v", msg)
	}

	err := ch.Send(ctx, chat.OutboundMessage{
		Channel: chat.ChannelWebSocket,
		ChatID:  connID,
		Text:    "✅ Correct!",
		Buttons: []chat.Button{{Text: "Learn Rust", Payload: chat.LearnPayload(0)}},
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	var out chat.WSOutbound
	if err := wsjson.Read(ctx, conn, &out); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if out.Type != chat.FrameMessage || out.Text != "✅ Correct!" || len(out.Buttons) != 1 || out.Buttons[0].Payload != "learn:0" {
		t.Errorf("outbound frame = %+v", out)
	}
}

func TestWebSocketChannel_IgnoresUnknownFrames(t *testing.T) {
	_, url, received := startWebSocket(t, "")
	conn, _ := dial(t, url+"?user_id=7")

	for _, f := range []chat.WSInbound{{Type: "typing"}, {Type: chat.FrameMessage}, {Type: chat.FrameMessage, Text: "hello"}} {
		if err := wsjson.Write(t.Context(), conn, f); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if msg := receive(t, received); msg.Text != "hello" {
		t.Errorf("first delivered message = %+v, want the text frame", msg)
	}
}

func TestWebSocketChannel_Rejects(t *testing.T) {
	_, url, _ := startWebSocket(t, "secret")
	httpURL := "http" + strings.TrimPrefix(url, "ws")

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"missing token", "?user_id=7", http.StatusUnauthorized},
		{"wrong token", "?user_id=7&token=nope", http.StatusUnauthorized},
		{"missing user", "?token=secret", http.StatusBadRequest},
		{"bad user", "?token=secret&user_id=abc", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(httpURL + tt.query)
			if err != nil {
				t.Fatalf("GET error = %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}

	conn, _ := dial(t, url+"?user_id=7&token=secret")
	conn.Close(websocket.StatusNormalClosure, "")
}

func TestWebSocketChannel_SendUnknownConnection(t *testing.T) {
	ch := chat.NewWebSocketChannel("")
	if err := ch.Send(t.Context(), chat.OutboundMessage{ChatID: "missing", Text: "hi"}); err == nil {
		t.Error("Send() should fail for an unknown connection")
	}
}

func TestWebSocketChannel_Stop(t *testing.T) {
	ch, url, _ := startWebSocket(t, "")
	conn, _ := dial(t, url+"?user_id=7")

	if ch.ConnectionCount() != 1 {
		t.Fatalf("ConnectionCount() = %d, want 1", ch.ConnectionCount())
	}
	if err := ch.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	var frame chat.WSOutbound
	err := wsjson.Read(ctx, conn, &frame)
	if websocket.CloseStatus(err) != websocket.StatusGoingAway {
		t.Errorf("read after Stop error = %v, want going-away close", err)
	}
}
