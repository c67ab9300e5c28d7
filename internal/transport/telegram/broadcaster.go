package telegram

import (
	"context"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/reshetovitsme/rss-fanout-bot/internal/modules/subscription/domain"
)

// Broadcaster delivers dispatched messages to Telegram chats. Delivery is
// fire-and-forget: per-chat send failures are logged and do not affect
// the other destinations.
type Broadcaster struct {
	bot *bot.Bot
}

// NewBroadcaster creates a broadcaster. The bot is attached later via
// SetBot because the bot itself is constructed after its handlers.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{}
}

// SetBot sets the Telegram bot instance
func (b *Broadcaster) SetBot(tg *bot.Bot) {
	b.bot = tg
}

// Broadcast sends message to every destination in the list.
func (b *Broadcaster) Broadcast(ctx context.Context, destinations []string, message string) {
	if b.bot == nil {
		slog.Error("Dropping broadcast, bot not initialized", "destinations", len(destinations))
		return
	}

	for _, destination := range destinations {
		platform, chatID, ok := domain.SplitID(destination)
		if !ok || platform != domain.PlatformTelegram {
			slog.Warn("Skipping destination on unsupported platform", "destination", destination)
			continue
		}

		if _, err := b.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   message,
		}); err != nil {
			slog.Error("Failed to deliver message", "destination", destination, "error", err)
		}
	}
}
