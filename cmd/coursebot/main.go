// Package main provides the coursebot entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/lukaszraczylo/coursebot/internal/categories"
	"github.com/lukaszraczylo/coursebot/internal/config"
	"github.com/lukaszraczylo/coursebot/internal/db/sqlite"
	"github.com/lukaszraczylo/coursebot/internal/dialog"
	"github.com/lukaszraczylo/coursebot/internal/notify"
	"github.com/lukaszraczylo/coursebot/internal/telegram"
	"github.com/lukaszraczylo/coursebot/internal/watcher"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	dataDir := flag.String("data-dir", "", "Data directory (default: ~/.coursebot)")
	webhookAddr := flag.String("webhook-addr", "", "Listen address for webhook mode (default: long polling)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})

	if err := config.EnsureAll(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure data directory")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
		cfg = config.Default()
	}
	if *dataDir != "" {
		cfg.DBPath = filepath.Join(*dataDir, "coursebot.db")
		cfg.CategoriesPath = filepath.Join(*dataDir, "categories.yaml")
	}
	if *webhookAddr != "" {
		cfg.WebhookAddr = *webhookAddr
	}
	if cfg.BotToken == "" {
		log.Fatal().Msg("Bot token missing: set COURSEBOT_TOKEN or bot_token in settings.json")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("Shutting down coursebot")
		cancel()
	}()

	store, err := sqlite.NewStore(sqlite.StoreConfig{
		Path:     cfg.DBPath,
		MaxConns: cfg.MaxConns,
		WALMode:  true,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open catalog database")
	}
	defer store.Close()

	catalogStore := sqlite.NewCatalogStore(store)
	recipientStore := sqlite.NewRecipientStore(store)

	registry, err := categories.Load(cfg.CategoriesPath)
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.CategoriesPath).Msg("Invalid category file, using built-in categories")
		registry = categories.Default()
	}

	client := telegram.NewClient(cfg.BotToken)

	announcer := notify.NewAnnouncer(client, recipientStore, cfg.NotifyBuffer)
	sessions := dialog.NewManager(cfg.IdleTimeout())

	engine := dialog.New(dialog.Config{
		Catalog:    catalogStore,
		Categories: registry,
		Sessions:   sessions,
		Announcer:  announcer,
		TopN:       cfg.MatchTopN,
		Threshold:  cfg.MatchThreshold,
	})

	bot := telegram.NewBot(client, engine, recipientStore, cfg.PollTimeoutSec)
	sessions.SetOnExpired(bot.NotifyExpired)

	startDBWatcher(cfg.DBPath, store)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		announcer.Run(gctx)
		return nil
	})
	g.Go(func() error {
		sessions.RunJanitor(gctx, time.Minute)
		return nil
	})
	g.Go(func() error {
		if cfg.WebhookAddr != "" {
			log.Info().Str("addr", cfg.WebhookAddr).Str("version", Version).Msg("Starting coursebot in webhook mode")
			return telegram.NewWebhookServer(bot, cfg.WebhookAddr).Run(gctx)
		}
		log.Info().Str("version", Version).Msg("Starting coursebot in polling mode")
		return bot.RunPolling(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("Coursebot exited with error")
	}
}

// startDBWatcher recreates the catalog schema if the database file is
// deleted while the bot is running.
func startDBWatcher(dbPath string, store *sqlite.Store) {
	w, err := watcher.New(dbPath, func() {
		if err := store.Reset(); err != nil {
			log.Error().Err(err).Msg("Failed to recreate catalog database")
		}
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create database watcher")
		return
	}
	if err := w.Start(); err != nil {
		log.Warn().Err(err).Msg("Failed to start database watcher")
		return
	}
	log.Info().Str("path", dbPath).Msg("Database watcher started")
}
