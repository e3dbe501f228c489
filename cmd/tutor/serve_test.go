package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/p-n-ai/tutor-bot/internal/agent"
	"github.com/p-n-ai/tutor-bot/internal/ai"
	"github.com/p-n-ai/tutor-bot/internal/chat"
	"github.com/p-n-ai/tutor-bot/internal/platform/config"
	"github.com/p-n-ai/tutor-bot/internal/quizgen"
)

func TestHealthEndpoints(t *testing.T) {
	healthy := func(context.Context) error { return nil }
	broken := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name       string
		path       string
		checks     map[string]func(context.Context) error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "healthz returns 200",
			path:       "/healthz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ok"}`,
		},
		{
			name:       "readyz returns 200 when checks pass",
			path:       "/readyz",
			checks:     map[string]func(context.Context) error{"store": healthy, "ai": healthy},
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ready"}`,
		},
		{
			name:       "readyz returns 503 when a check fails",
			path:       "/readyz",
			checks:     map[string]func(context.Context) error{"store": healthy, "cache": broken},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   `{"failed":{"cache":"connection refused"},"status":"unavailable"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()

			newMux(tt.checks, nil).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Body.String(); got != tt.wantBody+"\n" {
				t.Errorf("body = %q, want %q", got, tt.wantBody)
			}
		})
	}
}

func TestMux_WebSocketRoute(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)

	rec := httptest.NewRecorder()
	newMux(nil, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("without websocket status = %d, want 404", rec.Code)
	}

	ws := chat.NewWebSocketChannel("")
	rec = httptest.NewRecorder()
	newMux(nil, ws).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing user_id status = %d, want 400", rec.Code)
	}
}

func TestNewRouter(t *testing.T) {
	cfg := config.AIConfig{
		Timeout:   time.Second,
		Groq:      config.ProviderConfig{APIKey: "gsk", Model: "deepseek-r1-distill-llama-70b"},
		Anthropic: config.ProviderConfig{APIKey: "sk-ant", Model: "claude-3-5-haiku-latest"},
		Ollama:    config.OllamaConfig{Enabled: true, URL: "http://localhost:11434", Model: "llama3.1"},
	}
	router, err := newRouter(t.Context(), cfg)
	if err != nil {
		t.Fatalf("newRouter() error = %v", err)
	}
	got := router.Names()
	want := []string{"groq", "anthropic", "ollama"}
	if len(got) != len(want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if _, err := newRouter(t.Context(), config.AIConfig{}); !errors.Is(err, ai.ErrNoProviders) {
		t.Errorf("empty config error = %v, want ErrNoProviders", err)
	}
}

func TestDispatch_SendsRepliesThroughGateway(t *testing.T) {
	cfg := &config.Config{
		Database:    config.DatabaseConfig{URL: "memory://"},
		Quiz:        config.QuizConfig{QuestionCount: 3, GenerationTimeout: time.Second},
		CatalogPath: "",
	}
	a, err := openApp(t.Context(), cfg)
	if err != nil {
		t.Fatalf("openApp() error = %v", err)
	}
	defer a.Close()

	gen := quizgen.New(ai.NewMockProvider("Goroutines are lightweight threads."))
	engine := agent.NewEngine(newEngineConfig(cfg, a, gen))

	mock := &chat.MockChannel{}
	gw := chat.NewGateway()
	gw.Register(chat.ChannelTelegram, mock)
	if err := gw.StartAll(t.Context(), dispatch(engine, gw)); err != nil {
		t.Fatalf("StartAll() error = %v", err)
	}

	base := chat.InboundMessage{Channel: chat.ChannelTelegram, ChatID: "9", UserID: 9}
	learn := base
	learn.Kind, learn.Command, learn.Args = chat.KindCommand, "learn", "golang"
	question := base
	question.Kind, question.Text = chat.KindText, "what is a goroutine?"

	mock.Deliver(t.Context(), learn)
	mock.Deliver(t.Context(), question)

	sent := mock.Sent()
	if len(sent) != 2 {
		t.Fatalf("sent %d messages, want 2", len(sent))
	}
	if sent[0].ChatID != "9" || sent[0].Text != "Great! You're now learning Golang. Use /quiz to test your knowledge!" {
		t.Errorf("learn reply = %+v", sent[0])
	}
	if sent[1].Text != "Goroutines are lightweight threads." {
		t.Errorf("answer reply = %q", sent[1].Text)
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		cfg       config.LogConfig
		wantDebug bool
	}{
		{config.LogConfig{Level: "debug", Format: "json"}, true},
		{config.LogConfig{Level: "warn", Format: "text"}, false},
		{config.LogConfig{Level: "nonsense", Format: "json"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.cfg.Level, func(t *testing.T) {
			logger := newLogger(tt.cfg)
			if got := logger.Enabled(t.Context(), -4); got != tt.wantDebug {
				t.Errorf("debug enabled = %v, want %v", got, tt.wantDebug)
			}
		})
	}
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusTeapot, map[string]int{"n": 1})

	if rec.Code != http.StatusTeapot || rec.Header().Get("Content-Type") != "application/json" {
		t.Errorf("response = %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	var body map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["n"] != 1 {
		t.Errorf("body = %q (%v)", rec.Body.String(), err)
	}
}
