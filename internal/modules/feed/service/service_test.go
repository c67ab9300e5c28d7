package service

import (
	"strings"
	"testing"
	"time"

	"github.com/reshetovitsme/rss-fanout-bot/internal/modules/dispatch"
	"github.com/reshetovitsme/rss-fanout-bot/internal/modules/poller"
	"github.com/reshetovitsme/rss-fanout-bot/internal/modules/subscription/domain"
	"github.com/reshetovitsme/rss-fanout-bot/internal/modules/subscription/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHistory struct {
	deliveries map[string][]dispatch.Delivery
}

func (f *fakeHistory) RecentDeliveries(url string, _ int) []dispatch.Delivery {
	return f.deliveries[url]
}

func TestGenerateFeed(t *testing.T) {
	storage, err := repository.NewFileStorage(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, storage.SaveDestination(&domain.DestinationRecord{
		Platform: domain.PlatformTelegram,
		ChatID:   "1",
		FeedURLs: []string{"https://a.example/feed", "https://b.example/feed"},
	}))

	now := time.Now()
	history := &fakeHistory{deliveries: map[string][]dispatch.Delivery{
		"https://a.example/feed": {{
			Item: poller.Item{FeedURL: "https://a.example/feed", Title: "older", Link: "https://a.example/1", GUID: "a-1"},
			At:   now.Add(-time.Hour),
		}},
		"https://b.example/feed": {{
			Item: poller.Item{FeedURL: "https://b.example/feed", Title: "newer", Link: "https://b.example/1"},
			At:   now,
		}},
	}}

	svc := New(storage, history)

	feed, err := svc.GenerateFeed("telegram:1", "http://localhost:8080")
	require.NoError(t, err)

	require.Len(t, feed.Items, 2)
	assert.Equal(t, "newer", feed.Items[0].Title, "newest delivery first")
	assert.Equal(t, "older", feed.Items[1].Title)
	assert.Equal(t, "a-1", feed.Items[1].Id, "GUID preferred as item ID")
	assert.Equal(t, "https://b.example/1", feed.Items[0].Id, "link fallback when GUID missing")
	assert.Equal(t, now, feed.Updated)

	rss, err := feed.ToRss()
	require.NoError(t, err)
	assert.True(t, strings.Contains(rss, "<title>newer</title>"))
}

func TestGenerateFeedUnknownDestination(t *testing.T) {
	storage, err := repository.NewFileStorage(t.TempDir())
	require.NoError(t, err)

	svc := New(storage, &fakeHistory{deliveries: map[string][]dispatch.Delivery{}})

	_, err = svc.GenerateFeed("telegram:missing", "http://localhost:8080")
	assert.Error(t, err)
}
