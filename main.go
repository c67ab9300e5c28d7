package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-telegram/bot"
	"github.com/reshetovitsme/rss-fanout-bot/internal/di"
	"github.com/reshetovitsme/rss-fanout-bot/internal/modules/dispatch"
	subscriptionService "github.com/reshetovitsme/rss-fanout-bot/internal/modules/subscription/service"
	"github.com/reshetovitsme/rss-fanout-bot/internal/shared/config"
	httpServer "github.com/reshetovitsme/rss-fanout-bot/internal/transport/http"
	"github.com/samber/do/v2"
	slogmulti "github.com/samber/slog-multi"
)

func main() {
	// Setup structured logging with multiple handlers using slog-multi
	// Fanout sends logs to multiple handlers simultaneously
	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	jsonHandler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	})

	// Use Fanout to send logs to both handlers
	multiHandler := slogmulti.Fanout(textHandler, jsonHandler)
	logger := slog.New(multiHandler)
	slog.SetDefault(logger)

	// Setup dependency injection
	injector, err := di.Setup()
	if err != nil {
		slog.Error("Failed to setup dependency injection", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := di.Shutdown(injector); err != nil {
			slog.Error("Error during shutdown", "error", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Get services from DI container
	cfg := do.MustInvoke[*config.Config](injector)
	registry := do.MustInvoke[*subscriptionService.Service](injector)
	dispatcher := do.MustInvoke[*dispatch.Dispatcher](injector)
	server := do.MustInvoke[*httpServer.Server](injector)
	b := do.MustInvoke[*bot.Bot](injector)

	// Replay stored subscriptions; this starts the feed pollers
	if err := registry.Seed(); err != nil {
		slog.Error("Failed to seed subscriptions", "error", err)
		os.Exit(1)
	}

	// Start fan-out loop
	go dispatcher.Run(ctx)

	// Start Telegram update loop
	go b.Start(ctx)

	// Start HTTP server
	go func() {
		if err := server.Start(); err != nil {
			slog.Error("Failed to start HTTP server", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Bot started", "port", cfg.HTTPPort, "poll_interval", cfg.PollInterval)
	slog.Info("Press Ctrl+C to stop")

	<-ctx.Done()
	slog.Info("Shutting down...")
}
