package validation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/reshetovitsme/rss-fanout-bot/internal/modules/poller"
	"github.com/reshetovitsme/rss-fanout-bot/internal/shared/errors"
)

// watchInterval is effectively unbounded: a validation watcher only ever
// needs its initial fetch.
const watchInterval = 24 * time.Hour

// Watcher is a single-use feed poller owned by one validation check.
type Watcher interface {
	AddFeed(url string, interval time.Duration)
	Items() <-chan poller.Item
	Errors() <-chan poller.FeedError
	Close()
}

// Service answers "would subscribing to this URL work" within a bounded
// time. Concurrent checks for the same URL share one in-flight watcher
// and observe the same outcome.
type Service struct {
	timeout    time.Duration
	newWatcher func() Watcher

	mu      sync.Mutex
	pending map[string]*check
}

type check struct {
	done chan struct{}
	err  error
}

// New creates a validation gate. newWatcher builds the dedicated one-shot
// poller each check uses.
func New(timeout time.Duration, newWatcher func() Watcher) *Service {
	return &Service{
		timeout:    timeout,
		newWatcher: newWatcher,
		pending:    make(map[string]*check),
	}
}

// Validate reports nil iff url produced at least one item before the
// configured timeout. Every failure cause, fetch error or timeout,
// collapses into ErrValidationFailed: callers only need yes or no.
func (s *Service) Validate(ctx context.Context, url string) error {
	if url == "" {
		return errors.ErrEmptyFeedURL
	}

	s.mu.Lock()
	if c, ok := s.pending[url]; ok {
		s.mu.Unlock()
		return awaitCheck(ctx, c)
	}

	c := &check{done: make(chan struct{})}
	s.pending[url] = c
	s.mu.Unlock()

	go s.run(url, c)
	return awaitCheck(ctx, c)
}

func awaitCheck(ctx context.Context, c *check) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) run(url string, c *check) {
	watcher := s.newWatcher()
	defer watcher.Close()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	watcher.AddFeed(url, watchInterval)

	var err error
	select {
	case <-watcher.Items():
		// Reachable and produced at least one item. The item itself is
		// discarded: validation only certifies reachability.
	case feedErr := <-watcher.Errors():
		slog.Debug("Feed validation failed", "url", url, "error", feedErr)
		err = errors.ErrValidationFailed
	case <-timer.C:
		slog.Debug("Feed validation timed out", "url", url, "timeout", s.timeout)
		err = errors.ErrValidationFailed
	}

	// Clear the pending marker before resolving, so a later Validate for
	// the same URL starts fresh instead of observing stale state.
	s.mu.Lock()
	delete(s.pending, url)
	s.mu.Unlock()

	c.err = err
	close(c.done)
}
