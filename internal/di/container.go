package di

import (
	"context"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/go-telegram/bot"
	"github.com/reshetovitsme/rss-fanout-bot/internal/modules/dispatch"
	feedService "github.com/reshetovitsme/rss-fanout-bot/internal/modules/feed/service"
	"github.com/reshetovitsme/rss-fanout-bot/internal/modules/poller"
	subscriptionRepo "github.com/reshetovitsme/rss-fanout-bot/internal/modules/subscription/repository"
	subscriptionService "github.com/reshetovitsme/rss-fanout-bot/internal/modules/subscription/service"
	"github.com/reshetovitsme/rss-fanout-bot/internal/modules/validation"
	"github.com/reshetovitsme/rss-fanout-bot/internal/shared/config"
	httpServer "github.com/reshetovitsme/rss-fanout-bot/internal/transport/http"
	telegramTransport "github.com/reshetovitsme/rss-fanout-bot/internal/transport/telegram"
	"github.com/samber/do/v2"
	"github.com/samber/oops"
)

// Setup initializes the dependency injection container
func Setup() (do.Injector, error) {
	injector := do.New()

	// Register Config
	do.Provide(injector, func(i do.Injector) (*config.Config, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, oops.With("context", "failed to load config").Wrap(err)
		}
		return cfg, nil
	})

	// Register Subscription Repository
	do.Provide(injector, func(i do.Injector) (subscriptionRepo.Repository, error) {
		cfg := do.MustInvoke[*config.Config](i)
		repo, err := subscriptionRepo.NewFileStorage(cfg.StoragePath)
		if err != nil {
			return nil, oops.With("storage_path", cfg.StoragePath, "context", "failed to initialize subscription repository").Wrap(err)
		}
		return repo, nil
	})

	// Register Poller
	do.Provide(injector, func(i do.Injector) (*poller.Poller, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return poller.New(pollerConfig(cfg)), nil
	})

	// Register Subscription Registry
	do.Provide(injector, func(i do.Injector) (*subscriptionService.Service, error) {
		cfg := do.MustInvoke[*config.Config](i)
		repo := do.MustInvoke[subscriptionRepo.Repository](i)
		p := do.MustInvoke[*poller.Poller](i)
		return subscriptionService.New(cfg, repo, p), nil
	})

	// Register Validation Gate (each check runs its own one-shot watcher)
	do.Provide(injector, func(i do.Injector) (*validation.Service, error) {
		cfg := do.MustInvoke[*config.Config](i)
		timeout := time.Duration(cfg.RequestTimeout) * time.Second
		newWatcher := func() validation.Watcher {
			return poller.NewWatcher(pollerConfig(cfg))
		}
		return validation.New(timeout, newWatcher), nil
	})

	// Register Transform (message template from config)
	do.Provide(injector, func(i do.Injector) (dispatch.Transform, error) {
		cfg := do.MustInvoke[*config.Config](i)
		tmpl, err := template.New("message").Parse(cfg.MessageTemplate)
		if err != nil {
			return nil, oops.With("template", cfg.MessageTemplate, "context", "failed to parse message template").Wrap(err)
		}
		return func(item poller.Item) (string, error) {
			var sb strings.Builder
			if err := tmpl.Execute(&sb, item); err != nil {
				return "", oops.With("url", item.FeedURL).Wrap(err)
			}
			return sb.String(), nil
		}, nil
	})

	// Register Broadcaster (bot attached after the bot is built)
	do.Provide(injector, func(i do.Injector) (*telegramTransport.Broadcaster, error) {
		return telegramTransport.NewBroadcaster(), nil
	})

	// Register Dispatcher
	do.Provide(injector, func(i do.Injector) (*dispatch.Dispatcher, error) {
		registry := do.MustInvoke[*subscriptionService.Service](i)
		broadcaster := do.MustInvoke[*telegramTransport.Broadcaster](i)
		transform := do.MustInvoke[dispatch.Transform](i)
		p := do.MustInvoke[*poller.Poller](i)
		return dispatch.New(registry, broadcaster, transform, p.Items(), p.Errors()), nil
	})

	// Register Feed Service
	do.Provide(injector, func(i do.Injector) (*feedService.Service, error) {
		repo := do.MustInvoke[subscriptionRepo.Repository](i)
		dispatcher := do.MustInvoke[*dispatch.Dispatcher](i)
		return feedService.New(repo, dispatcher), nil
	})

	// Register Telegram Handler
	do.Provide(injector, func(i do.Injector) (*telegramTransport.Handler, error) {
		cfg := do.MustInvoke[*config.Config](i)
		registry := do.MustInvoke[*subscriptionService.Service](i)
		validator := do.MustInvoke[*validation.Service](i)
		repo := do.MustInvoke[subscriptionRepo.Repository](i)
		return telegramTransport.New(cfg, registry, validator, repo), nil
	})

	// Register HTTP Server
	do.Provide(injector, func(i do.Injector) (*httpServer.Server, error) {
		cfg := do.MustInvoke[*config.Config](i)
		registry := do.MustInvoke[*subscriptionService.Service](i)
		feeds := do.MustInvoke[*feedService.Service](i)
		server := httpServer.New(cfg, registry, feeds)
		server.SetLogger(slog.Default())
		return server, nil
	})

	// Register Bot (needs to be initialized after handlers are ready)
	do.Provide(injector, func(i do.Injector) (*bot.Bot, error) {
		cfg := do.MustInvoke[*config.Config](i)
		handler := do.MustInvoke[*telegramTransport.Handler](i)

		opts := []bot.Option{
			bot.WithServerURL(cfg.TelegramAPIURL),
		}

		b, err := bot.New(cfg.TelegramBotToken, opts...)
		if err != nil {
			return nil, oops.With("context", "failed to create telegram bot").Wrap(err)
		}

		// Register bot commands
		handler.RegisterCommands(b)

		// Attach bot to the delivery transport
		broadcaster := do.MustInvoke[*telegramTransport.Broadcaster](i)
		broadcaster.SetBot(b)

		return b, nil
	})

	return injector, nil
}

// Shutdown gracefully shuts down all services
func Shutdown(injector do.Injector) error {
	ctx := context.Background()

	// Shutdown bot if it exists
	if b, err := do.Invoke[*bot.Bot](injector); err == nil && b != nil {
		b.Close(ctx)
	}

	// Stop all feed pollers through the registry
	if registry, err := do.Invoke[*subscriptionService.Service](injector); err == nil && registry != nil {
		registry.Stop()
	}

	// Close the poller's event streams
	if p, err := do.Invoke[*poller.Poller](injector); err == nil && p != nil {
		p.Close()
	}

	return nil
}

func pollerConfig(cfg *config.Config) poller.Config {
	return poller.Config{
		RequestTimeout: time.Duration(cfg.RequestTimeout) * time.Second,
		UserAgent:      cfg.UserAgent,
	}
}
