package repository

import (
	"testing"
	"time"

	"github.com/reshetovitsme/rss-fanout-bot/internal/modules/subscription/domain"
	"github.com/reshetovitsme/rss-fanout-bot/internal/shared/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *FileStorage {
	t.Helper()
	storage, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)
	return storage
}

func TestFileStorageRoundTrip(t *testing.T) {
	storage := newTestStorage(t)

	record := &domain.DestinationRecord{
		Platform: domain.PlatformTelegram,
		ChatID:   "12345",
		FeedURLs: []string{"https://a.example/feed", "https://b.example/feed"},
		AddedBy:  7,
		AddedAt:  time.Now().UTC(),
	}
	require.NoError(t, storage.SaveDestination(record))

	got, err := storage.GetDestination("telegram:12345")
	require.NoError(t, err)
	assert.Equal(t, record.FeedURLs, got.FeedURLs)
	assert.Equal(t, "telegram:12345", got.ID())
}

func TestFileStorageGetMissing(t *testing.T) {
	storage := newTestStorage(t)

	_, err := storage.GetDestination("telegram:nope")
	assert.ErrorIs(t, err, errors.ErrDestinationNotFound)
}

func TestFileStorageGetAll(t *testing.T) {
	storage := newTestStorage(t)

	for _, chatID := range []string{"1", "2", "3"} {
		require.NoError(t, storage.SaveDestination(&domain.DestinationRecord{
			Platform: domain.PlatformTelegram,
			ChatID:   chatID,
			FeedURLs: []string{"https://a.example/feed"},
		}))
	}

	records, err := storage.GetAllDestinations()
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestFileStorageDelete(t *testing.T) {
	storage := newTestStorage(t)

	record := &domain.DestinationRecord{Platform: domain.PlatformTelegram, ChatID: "9"}
	require.NoError(t, storage.SaveDestination(record))
	require.NoError(t, storage.DeleteDestination("telegram:9"))

	_, err := storage.GetDestination("telegram:9")
	assert.ErrorIs(t, err, errors.ErrDestinationNotFound)
}
