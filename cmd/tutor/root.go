package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/tutor-bot/internal/curriculum"
	"github.com/p-n-ai/tutor-bot/internal/platform/cache"
	"github.com/p-n-ai/tutor-bot/internal/platform/config"
	"github.com/p-n-ai/tutor-bot/internal/progress"
	"github.com/p-n-ai/tutor-bot/internal/store"
)

type cfgKey struct{}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tutor",
		Short:         "AI tutor chat bot",
		Long:          "tutor runs an AI tutoring bot that teaches topics, quizzes learners and tracks their progress.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			envFile, _ := cmd.Flags().GetString("env-file")
			if err := config.LoadDotEnv(envFile); err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if dbURL, _ := cmd.Flags().GetString("db"); dbURL != "" {
				cfg.Database.URL = dbURL
			}
			slog.SetDefault(newLogger(cfg.Log))
			cmd.SetContext(context.WithValue(cmd.Context(), cfgKey{}, cfg))
			return nil
		},
	}

	root.PersistentFlags().String("env-file", ".env", "Path to a .env file loaded before reading TUTOR_* variables")
	root.PersistentFlags().String("db", "", "Database URL (overrides TUTOR_DATABASE_URL)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newTopicsCmd())
	root.AddCommand(newProgressCmd())
	root.AddCommand(newMigrateCmd())
	return root
}

func configFrom(cmd *cobra.Command) *config.Config {
	cfg, _ := cmd.Context().Value(cfgKey{}).(*config.Config)
	return cfg
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// app holds the storage-side components shared by every subcommand.
type app struct {
	store    store.Store
	cache    *cache.Cache
	registry *curriculum.Registry
	tracker  *progress.Tracker
}

// openApp connects storage and the optional cache, then seeds the topic
// registry with the built-in topics and the YAML catalog.
func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	st, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	a := &app{store: st}

	if cfg.Cache.URL != "" {
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connecting cache: %w", err)
		}
		a.cache = c
	}

	catalog, err := curriculum.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		a.Close()
		return nil, err
	}
	seeds := append(curriculum.BuiltinTopics(), catalog...)
	a.registry, err = curriculum.NewRegistry(ctx, st, seeds...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.tracker = progress.NewTracker(a.registry, st)
	return a, nil
}

func (a *app) Close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			slog.Warn("closing cache", "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		slog.Warn("closing store", "error", err)
	}
}
