package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPoller(sf *scriptedFetch) *Poller {
	p := New(Config{RequestTimeout: time.Second, UserAgent: "test-agent", Fetch: sf.fetch})
	p.newBackOff = noRetries
	return p
}

func noRetries() backoff.BackOff {
	return &backoff.StopBackOff{}
}

func page(title string, guids ...string) *gofeed.Feed {
	feed := &gofeed.Feed{Title: title}
	for _, guid := range guids {
		feed.Items = append(feed.Items, &gofeed.Item{
			GUID:  guid,
			Title: "title of " + guid,
			Link:  "https://a.example/" + guid,
		})
	}
	return feed
}

// scriptedFetch serves a fixed sequence of results; the last one repeats.
// A nil page means a fetch error.
type scriptedFetch struct {
	mu    sync.Mutex
	pages []*gofeed.Feed
	calls int
}

func (s *scriptedFetch) fetch(_ context.Context, _ string) (*gofeed.Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.calls
	if i >= len(s.pages) {
		i = len(s.pages) - 1
	}
	s.calls++

	if s.pages[i] == nil {
		return nil, errors.New("fetch failed")
	}
	return s.pages[i], nil
}

func (s *scriptedFetch) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *scriptedFetch) reset(pages []*gofeed.Feed) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = pages
	s.calls = 0
}

func recvItem(t *testing.T, ch <-chan Item, within time.Duration) Item {
	t.Helper()
	select {
	case item := <-ch:
		return item
	case <-time.After(within):
		t.Fatal("timed out waiting for item")
		return Item{}
	}
}

func assertNoItem(t *testing.T, ch <-chan Item, within time.Duration) {
	t.Helper()
	select {
	case item := <-ch:
		t.Fatalf("unexpected item: %+v", item)
	case <-time.After(within):
	}
}

func TestFirstPollSuppressed(t *testing.T) {
	sf := &scriptedFetch{pages: []*gofeed.Feed{
		page("Feed A", "I1", "I2"),
		page("Feed A", "I1", "I2", "I3"),
	}}

	p := newTestPoller(sf)
	defer p.Close()

	p.AddFeed("https://a.example/feed", 15*time.Millisecond)

	item := recvItem(t, p.Items(), 2*time.Second)
	assert.Equal(t, "I3", item.GUID)
	assert.Equal(t, "https://a.example/feed", item.FeedURL)
	assert.Equal(t, "Feed A", item.FeedTitle)

	// I1/I2 stay deduplicated on later polls
	assertNoItem(t, p.Items(), 100*time.Millisecond)
}

func TestRemoveFeedStopsEmission(t *testing.T) {
	sf := &scriptedFetch{pages: []*gofeed.Feed{page("Feed A", "I1")}}

	p := newTestPoller(sf)
	defer p.Close()

	p.AddFeed("https://a.example/feed", 15*time.Millisecond)

	require.Eventually(t, func() bool { return sf.count() >= 1 }, 2*time.Second, 5*time.Millisecond)
	p.RemoveFeed("https://a.example/feed")
	time.Sleep(50 * time.Millisecond)

	// Even though later fetches would report a new item, the stopped feed
	// must not emit anything.
	sf.reset([]*gofeed.Feed{page("Feed A", "I1", "I2")})
	assertNoItem(t, p.Items(), 100*time.Millisecond)
	assert.Zero(t, sf.count(), "feed still being fetched after removal")
}

func TestReAddResetsSuppression(t *testing.T) {
	sf := &scriptedFetch{pages: []*gofeed.Feed{page("Feed A", "I1")}}

	p := newTestPoller(sf)
	defer p.Close()

	url := "https://a.example/feed"
	p.AddFeed(url, 15*time.Millisecond)
	require.Eventually(t, func() bool { return sf.count() >= 1 }, 2*time.Second, 5*time.Millisecond)

	p.RemoveFeed(url)
	time.Sleep(50 * time.Millisecond)

	// The re-added feed's first fetch (I1+I2) is backlog again, so only
	// I3 from the following fetch is reported.
	sf.reset([]*gofeed.Feed{
		page("Feed A", "I1", "I2"),
		page("Feed A", "I1", "I2", "I3"),
	})
	p.AddFeed(url, 15*time.Millisecond)

	item := recvItem(t, p.Items(), 2*time.Second)
	assert.Equal(t, "I3", item.GUID)
}

func TestFetchErrorIsolated(t *testing.T) {
	sf := &scriptedFetch{pages: []*gofeed.Feed{
		nil,
		page("Feed A", "I1"),
		page("Feed A", "I1", "I2"),
	}}

	p := newTestPoller(sf)
	defer p.Close()

	p.AddFeed("https://a.example/feed", 15*time.Millisecond)

	select {
	case feedErr := <-p.Errors():
		assert.Equal(t, "https://a.example/feed", feedErr.FeedURL)
		assert.ErrorContains(t, feedErr, "fetch failed")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for feed error")
	}

	// The loop keeps polling: the first success is still the suppressed
	// backlog, and I2 from the next poll comes through.
	item := recvItem(t, p.Items(), 2*time.Second)
	assert.Equal(t, "I2", item.GUID)
}

func TestWatcherReportsFirstFetch(t *testing.T) {
	sf := &scriptedFetch{pages: []*gofeed.Feed{page("Feed A", "I1")}}

	w := NewWatcher(Config{RequestTimeout: time.Second, UserAgent: "test-agent", Fetch: sf.fetch})
	w.newBackOff = noRetries
	defer w.Close()

	w.AddFeed("https://a.example/feed", time.Hour)

	item := recvItem(t, w.Items(), 2*time.Second)
	assert.Equal(t, "I1", item.GUID)
}
