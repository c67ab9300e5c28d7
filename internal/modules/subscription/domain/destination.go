package domain

import (
	"strings"
	"time"
)

// PlatformTelegram is the only delivery platform currently shipped.
// Destination IDs are "<platform>:<chat id>" so other platforms can be
// added without touching the core.
const PlatformTelegram = "telegram"

// DestinationRecord is the persisted subscription list of one destination.
type DestinationRecord struct {
	Platform string    `json:"platform"`
	ChatID   string    `json:"chat_id"`
	FeedURLs []string  `json:"feed_urls"`
	AddedBy  int64     `json:"added_by"`
	AddedAt  time.Time `json:"added_at"`
}

// ID returns the destination identifier used by the registry and the
// delivery transport.
func (d *DestinationRecord) ID() string {
	return d.Platform + ":" + d.ChatID
}

// SplitID splits a destination identifier into platform and chat ID.
func SplitID(id string) (platform, chatID string, ok bool) {
	return strings.Cut(id, ":")
}
