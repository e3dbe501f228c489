package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/tutor-bot/internal/agent"
	"github.com/p-n-ai/tutor-bot/internal/ai"
	"github.com/p-n-ai/tutor-bot/internal/chat"
	"github.com/p-n-ai/tutor-bot/internal/platform/config"
	"github.com/p-n-ai/tutor-bot/internal/quiz"
	"github.com/p-n-ai/tutor-bot/internal/quizgen"
	"github.com/p-n-ai/tutor-bot/internal/store"
)

const (
	shutdownTimeout = 10 * time.Second
	readyTimeout    = 5 * time.Second
	recommendTTL    = 7 * 24 * time.Hour
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot, the web chat endpoint and the health server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := configFrom(cmd)
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	router, err := newRouter(ctx, cfg.AI)
	if err != nil {
		return err
	}
	slog.Info("AI providers registered", "providers", router.Names())

	var budget ai.BudgetChecker = ai.NewInMemoryBudget(int64(cfg.Budget.DailyTokens))
	if a.cache != nil {
		budget = ai.NewRedisBudget(a.cache, int64(cfg.Budget.DailyTokens))
	}

	genOpts := []quizgen.Option{
		quizgen.WithTemperature(cfg.AI.Temperature),
		quizgen.WithQuestionCount(cfg.Quiz.QuestionCount),
	}
	if cfg.AI.Model != "" {
		genOpts = append(genOpts, quizgen.WithModel(cfg.AI.Model))
	}
	gen := quizgen.New(ai.NewBudgetedProvider(router, budget), genOpts...)

	engine := agent.NewEngine(newEngineConfig(cfg, a, gen))

	gw := chat.NewGateway()
	var ws *chat.WebSocketChannel
	if cfg.Telegram.BotToken != "" {
		tg, err := chat.NewTelegramChannel(cfg.Telegram.BotToken)
		if err != nil {
			return fmt.Errorf("connecting telegram: %w", err)
		}
		if err := tg.SyncCommands(); err != nil {
			slog.Warn("registering telegram commands failed", "error", err)
		}
		gw.Register(chat.ChannelTelegram, tg)
	}
	if cfg.WebSocket.Enabled {
		ws = chat.NewWebSocketChannel(cfg.WebSocket.Token)
		gw.Register(chat.ChannelWebSocket, ws)
	}

	if err := gw.StartAll(ctx, dispatch(engine, gw)); err != nil {
		return fmt.Errorf("starting channels: %w", err)
	}
	defer func() {
		if err := gw.StopAll(); err != nil {
			slog.Warn("stopping channels", "error", err)
		}
	}()

	checks := map[string]func(context.Context) error{
		"store": a.store.HealthCheck,
		"ai":    router.HealthCheck,
	}
	if a.cache != nil {
		checks["cache"] = a.cache.HealthCheck
	}

	var wsHandler http.Handler
	if ws != nil {
		wsHandler = ws
	}
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      newMux(checks, wsHandler),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	return nil
}

// newRouter registers every configured provider in fallback order.
func newRouter(ctx context.Context, cfg config.AIConfig) (*ai.Router, error) {
	client := &http.Client{Timeout: cfg.Timeout}
	router := ai.NewRouter()

	if p := cfg.Groq; p.APIKey != "" {
		router.Register("groq", ai.NewGroqProvider(p.APIKey, p.Model, ai.WithHTTPClient(client)))
	}
	if p := cfg.OpenAI; p.APIKey != "" {
		router.Register("openai", ai.NewOpenAIProvider(p.APIKey, p.Model, ai.WithHTTPClient(client)))
	}
	if p := cfg.Anthropic; p.APIKey != "" {
		router.Register("anthropic", ai.NewAnthropicProvider(p.APIKey, p.Model, ai.WithAnthropicHTTPClient(client)))
	}
	if p := cfg.DeepSeek; p.APIKey != "" {
		router.Register("deepseek", ai.NewDeepSeekProvider(p.APIKey, p.Model, ai.WithHTTPClient(client)))
	}
	if p := cfg.Google; p.APIKey != "" {
		google, err := ai.NewGoogleProvider(ctx, p.APIKey, p.Model, ai.WithGoogleHTTPClient(client))
		if err != nil {
			return nil, fmt.Errorf("creating google provider: %w", err)
		}
		router.Register("google", google)
	}
	if p := cfg.OpenRouter; p.APIKey != "" {
		router.Register("openrouter", ai.NewOpenRouterProvider(p.APIKey, p.Model, ai.WithHTTPClient(client)))
	}
	if cfg.Ollama.Enabled {
		router.Register("ollama", ai.NewOllamaProvider(cfg.Ollama.URL, cfg.Ollama.Model, ai.WithHTTPClient(client)))
	}

	if !router.HasProvider() {
		return nil, ai.ErrNoProviders
	}
	return router, nil
}

// newEngineConfig picks Redis-backed session and recommendation state when a
// cache is configured, and Postgres event logging on a Postgres store.
func newEngineConfig(cfg *config.Config, a *app, gen *quizgen.LLMGenerator) agent.EngineConfig {
	var sessions quiz.SessionStore = quiz.NewMemorySessionStore()
	var recs agent.RecommendationStore = agent.NewMemoryRecommendationStore()
	if a.cache != nil {
		sessions = quiz.NewRedisSessionStore(a.cache, cfg.Quiz.SessionTTL)
		recs = agent.NewRedisRecommendationStore(a.cache, recommendTTL)
	}

	var events agent.EventLogger = agent.NopEventLogger{}
	if pg, ok := a.store.(*store.PostgresStore); ok {
		events = agent.NewPostgresEventLogger(pg.DB())
	}

	return agent.EngineConfig{
		Progress:        a.tracker,
		Quiz:            quiz.NewService(gen, a.tracker, sessions, cfg.Quiz.GenerationTimeout),
		Tutor:           gen,
		Events:          events,
		Recommendations: recs,
	}
}

// dispatch runs inbound messages through the engine and sends every reply
// back over the gateway.
func dispatch(engine *agent.Engine, gw *chat.Gateway) chat.Handler {
	return func(ctx context.Context, msg chat.InboundMessage) {
		replies, _ := engine.ProcessMessage(ctx, msg)
		for _, reply := range replies {
			if err := gw.Send(ctx, reply); err != nil {
				slog.Error("sending reply failed",
					"channel", reply.Channel,
					"chat_id", reply.ChatID,
					"error", err,
				)
			}
		}
	}
}

// newMux creates the HTTP router with health check endpoints and, when ws is
// non-nil, the web chat endpoint.
func newMux(checks map[string]func(context.Context) error, ws http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", readyzHandler(checks))
	if ws != nil {
		mux.Handle("GET /ws", ws)
	}
	return mux
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func readyzHandler(checks map[string]func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		failed := map[string]string{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				slog.Warn("readiness check failed", "check", name, "error", err)
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("writing response failed", "error", err)
	}
}
