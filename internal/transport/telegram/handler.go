package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/reshetovitsme/rss-fanout-bot/internal/modules/subscription/domain"
	"github.com/reshetovitsme/rss-fanout-bot/internal/modules/subscription/repository"
	subscriptionService "github.com/reshetovitsme/rss-fanout-bot/internal/modules/subscription/service"
	"github.com/reshetovitsme/rss-fanout-bot/internal/modules/validation"
	"github.com/reshetovitsme/rss-fanout-bot/internal/shared/config"
	sharederrors "github.com/reshetovitsme/rss-fanout-bot/internal/shared/errors"
	"github.com/samber/lo"
)

// Handler handles Telegram bot interactions
type Handler struct {
	cfg       *config.Config
	registry  *subscriptionService.Service
	validator *validation.Service
	repo      repository.Repository
}

// New creates a new Telegram handler
func New(cfg *config.Config, registry *subscriptionService.Service, validator *validation.Service, repo repository.Repository) *Handler {
	return &Handler{
		cfg:       cfg,
		registry:  registry,
		validator: validator,
		repo:      repo,
	}
}

// RegisterCommands registers bot commands
func (h *Handler) RegisterCommands(b *bot.Bot) {
	b.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypeExact, h.handleStart)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypeExact, h.handleHelp)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/subscribe", bot.MatchTypePrefix, h.handleSubscribe)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/unsubscribe", bot.MatchTypePrefix, h.handleUnsubscribe)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/list", bot.MatchTypeExact, h.handleList)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/status", bot.MatchTypeExact, h.handleStatus)
}

func (h *Handler) checkAuthorization(userID int64) bool {
	// An empty allow-list leaves the bot open
	return len(h.cfg.AllowedUsers) == 0 || lo.Contains(h.cfg.AllowedUsers, userID)
}

func (h *Handler) destinationID(update *models.Update) string {
	return fmt.Sprintf("%s:%d", domain.PlatformTelegram, update.Message.Chat.ID)
}

func (h *Handler) handleStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	text := `👋 Welcome to RSS Fanout Bot!

I deliver new items from RSS/Atom feeds to this chat.

Available commands:
/help - Show this help message
/subscribe <feed_url> - Subscribe this chat to a feed
/unsubscribe <feed_url> - Unsubscribe this chat from a feed
/list - List this chat's subscriptions
/status - Show tracked feeds and subscriber counts

Example:
/subscribe https://blog.example.com/rss`

	b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: update.Message.Chat.ID,
		Text:   text,
	})
}

func (h *Handler) handleHelp(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.handleStart(ctx, b, update)
}

func (h *Handler) handleSubscribe(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !h.checkAuthorization(update.Message.From.ID) {
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: update.Message.Chat.ID,
			Text:   "❌ Unauthorized",
		})
		return
	}

	parts := strings.Fields(update.Message.Text)
	if len(parts) < 2 {
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: update.Message.Chat.ID,
			Text:   "Usage: /subscribe <feed_url>\nExample: /subscribe https://blog.example.com/rss",
		})
		return
	}

	feedURL := parts[1]

	// Confirm the feed is reachable before committing the subscription.
	// The gate answers within the configured request timeout.
	if err := h.validator.Validate(ctx, feedURL); err != nil {
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: update.Message.Chat.ID,
			Text:   fmt.Sprintf("❌ Could not validate feed %s\nCheck the URL and try again.", feedURL),
		})
		return
	}

	destination := h.destinationID(update)
	if err := h.registry.Subscribe(feedURL, destination); err != nil {
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: update.Message.Chat.ID,
			Text:   fmt.Sprintf("❌ Failed to subscribe: %v", err),
		})
		return
	}

	if err := h.persistSubscribe(update, feedURL); err != nil {
		slog.Error("Failed to persist subscription", "destination", destination, "url", feedURL, "error", err)
	}

	b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: update.Message.Chat.ID,
		Text:   fmt.Sprintf("✅ Subscribed to %s", feedURL),
	})
}

func (h *Handler) handleUnsubscribe(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !h.checkAuthorization(update.Message.From.ID) {
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: update.Message.Chat.ID,
			Text:   "❌ Unauthorized",
		})
		return
	}

	parts := strings.Fields(update.Message.Text)
	if len(parts) < 2 {
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: update.Message.Chat.ID,
			Text:   "Usage: /unsubscribe <feed_url>",
		})
		return
	}

	feedURL := parts[1]
	destination := h.destinationID(update)

	if err := h.registry.Unsubscribe(feedURL, destination); err != nil {
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: update.Message.Chat.ID,
			Text:   fmt.Sprintf("❌ Failed to unsubscribe: %v", err),
		})
		return
	}

	if err := h.persistUnsubscribe(update, feedURL); err != nil {
		slog.Error("Failed to persist unsubscription", "destination", destination, "url", feedURL, "error", err)
	}

	b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: update.Message.Chat.ID,
		Text:   fmt.Sprintf("✅ Unsubscribed from %s", feedURL),
	})
}

func (h *Handler) handleList(ctx context.Context, b *bot.Bot, update *models.Update) {
	record, err := h.repo.GetDestination(h.destinationID(update))
	if err != nil || len(record.FeedURLs) == 0 {
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: update.Message.Chat.ID,
			Text:   "📭 No subscriptions yet.\nUse /subscribe <feed_url> to add one.",
		})
		return
	}

	var text strings.Builder
	text.WriteString("📋 Subscriptions:\n\n")
	for i, url := range record.FeedURLs {
		text.WriteString(fmt.Sprintf("%d. %s\n", i+1, url))
	}

	b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: update.Message.Chat.ID,
		Text:   text.String(),
	})
}

func (h *Handler) handleStatus(ctx context.Context, b *bot.Bot, update *models.Update) {
	statuses := h.registry.Feeds()
	if len(statuses) == 0 {
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: update.Message.Chat.ID,
			Text:   "📭 No feeds tracked.",
		})
		return
	}

	var text strings.Builder
	text.WriteString("📊 Tracked feeds:\n\n")
	for _, status := range statuses {
		text.WriteString(fmt.Sprintf("• %s: %d subscriber(s)\n", status.URL, status.Subscribers))
	}

	b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: update.Message.Chat.ID,
		Text:   text.String(),
	})
}

func (h *Handler) persistSubscribe(update *models.Update, feedURL string) error {
	destination := h.destinationID(update)

	record, err := h.repo.GetDestination(destination)
	if errors.Is(err, sharederrors.ErrDestinationNotFound) {
		record = &domain.DestinationRecord{
			Platform: domain.PlatformTelegram,
			ChatID:   fmt.Sprintf("%d", update.Message.Chat.ID),
			AddedBy:  update.Message.From.ID,
			AddedAt:  time.Now(),
		}
	} else if err != nil {
		return err
	}

	if !lo.Contains(record.FeedURLs, feedURL) {
		record.FeedURLs = append(record.FeedURLs, feedURL)
	}
	return h.repo.SaveDestination(record)
}

func (h *Handler) persistUnsubscribe(update *models.Update, feedURL string) error {
	destination := h.destinationID(update)

	record, err := h.repo.GetDestination(destination)
	if errors.Is(err, sharederrors.ErrDestinationNotFound) {
		return nil
	} else if err != nil {
		return err
	}

	record.FeedURLs = lo.Without(record.FeedURLs, feedURL)
	if len(record.FeedURLs) == 0 {
		return h.repo.DeleteDestination(destination)
	}
	return h.repo.SaveDestination(record)
}
