package chat_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/p-n-ai/tutor-bot/internal/chat"
)

func TestGateway_RegisterChannel(t *testing.T) {
	gw := chat.NewGateway()
	gw.Register(chat.ChannelTelegram, &chat.MockChannel{})

	if !gw.HasChannel(chat.ChannelTelegram) {
		t.Error("HasChannel(telegram) should be true after Register")
	}
	if gw.HasChannel(chat.ChannelWebSocket) {
		t.Error("HasChannel(websocket) should be false when not registered")
	}
}

func TestGateway_Send(t *testing.T) {
	gw := chat.NewGateway()
	mock := &chat.MockChannel{}
	gw.Register(chat.ChannelTelegram, mock)

	err := gw.Send(t.Context(), chat.OutboundMessage{
		Channel: chat.ChannelTelegram,
		ChatID:  "123",
		Text:    "Hello!",
		Buttons: []chat.Button{{Text: "A", Payload: chat.QuizAnswerPayload(0, 0)}},
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	sent := mock.Sent()
	if len(sent) != 1 || sent[0].ChatID != "123" || len(sent[0].Buttons) != 1 {
		t.Errorf("Sent() = %+v", sent)
	}
}

func TestGateway_Send_UnknownChannel(t *testing.T) {
	gw := chat.NewGateway()
	err := gw.Send(t.Context(), chat.OutboundMessage{Channel: "whatsapp", ChatID: "123", Text: "Hello!"})
	if err == nil {
		t.Error("Send() should error for unknown channel")
	}
}

func TestGateway_StartAndStopAll(t *testing.T) {
	gw := chat.NewGateway()
	mock := &chat.MockChannel{}
	gw.Register(chat.ChannelTelegram, mock)

	var got []chat.InboundMessage
	err := gw.StartAll(t.Context(), func(_ context.Context, msg chat.InboundMessage) {
		got = append(got, msg)
	})
	if err != nil {
		t.Fatalf("StartAll() error = %v", err)
	}

	mock.Deliver(t.Context(), chat.InboundMessage{Channel: chat.ChannelTelegram, UserID: 1, Text: "hi"})
	if len(got) != 1 || got[0].Text != "hi" {
		t.Errorf("handler received %+v", got)
	}

	if err := gw.StopAll(); err != nil {
		t.Fatalf("StopAll() error = %v", err)
	}
	if !mock.Stopped() {
		t.Error("channel not stopped")
	}
}

func TestMockChannel_SendErr(t *testing.T) {
	errSend := errors.New("blocked by user")
	mock := &chat.MockChannel{SendErr: errSend}
	if err := mock.Send(t.Context(), chat.OutboundMessage{}); !errors.Is(err, errSend) {
		t.Errorf("Send() error = %v, want %v", err, errSend)
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text     string
		wantCmd  string
		wantArgs string
		wantOK   bool
	}{
		{"/learn Machine Learning", "learn", "Machine Learning", true},
		{"/quiz", "quiz", "", true},
		{"  /QUIZ   focus on loops ", "quiz", "focus on loops", true},
		{"/start@tutor_bot", "start", "", true},
		{"hello", "", "", false},
		{"/", "", "", false},
		{"/@bot", "", "", false},
	}
	for _, tt := range tests {
		cmd, args, ok := chat.ParseCommand(tt.text)
		if cmd != tt.wantCmd || args != tt.wantArgs || ok != tt.wantOK {
			t.Errorf("ParseCommand(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.text, cmd, args, ok, tt.wantCmd, tt.wantArgs, tt.wantOK)
		}
	}
}

func TestSplitMessage(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		maxLen    int
		wantParts int
	}{
		{"short", "Hello", 4096, 1},
		{"exact", "Hello", 5, 1},
		{"split-needed", "Hello World, this is a test", 10, 4},
		{"empty", "", 4096, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts := chat.SplitMessage(tt.text, tt.maxLen)
			if len(parts) != tt.wantParts {
				t.Errorf("SplitMessage() = %d parts, want %d", len(parts), tt.wantParts)
			}
		})
	}
}

func TestSplitMessage_PartsNotExceedMax(t *testing.T) {
	text := "This is a longer message that needs to be split into multiple parts for Telegram delivery."
	parts := chat.SplitMessage(text, 20)

	for i, part := range parts {
		if len(part) > 20 {
			t.Errorf("part[%d] len=%d exceeds maxLen=20: %q", i, len(part), part)
		}
	}
	if strings.Join(parts, "") != text {
		t.Error("parts do not reassemble into the original text")
	}
}

func TestSplitMessage_KeepsRunesWhole(t *testing.T) {
	text := strings.Repeat("🟢", 10) // 4 bytes each, no spaces
	parts := chat.SplitMessage(text, 10)

	for i, part := range parts {
		if !utf8.ValidString(part) {
			t.Errorf("part[%d] = %q is not valid UTF-8", i, part)
		}
	}
	if strings.Join(parts, "") != text {
		t.Error("parts do not reassemble into the original text")
	}
}
