package service

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/reshetovitsme/rss-fanout-bot/internal/modules/subscription/repository"
	"github.com/reshetovitsme/rss-fanout-bot/internal/shared/config"
	"github.com/reshetovitsme/rss-fanout-bot/internal/shared/errors"
	"github.com/samber/lo"
	"github.com/samber/oops"
)

// FeedPoller starts and stops the recurring poll for a feed URL.
type FeedPoller interface {
	AddFeed(url string, interval time.Duration)
	RemoveFeed(url string)
}

// FeedStatus is a point-in-time view of one tracked feed.
type FeedStatus struct {
	URL         string `json:"url"`
	Subscribers int    `json:"subscribers"`
}

// Service is the subscription registry: it maps each feed URL to the set
// of destinations subscribed to it, and keeps exactly one active poller
// per tracked URL. An entry exists exactly while its subscriber set is
// non-empty; poller start/stop happens under the registry lock so the two
// never drift apart.
type Service struct {
	cfg    *config.Config
	repo   repository.Repository
	poller FeedPoller

	mu    sync.RWMutex
	feeds map[string]map[string]struct{}
}

// New creates a subscription registry wired to the given poller.
func New(cfg *config.Config, repo repository.Repository, poller FeedPoller) *Service {
	return &Service{
		cfg:    cfg,
		repo:   repo,
		poller: poller,
		feeds:  make(map[string]map[string]struct{}),
	}
}

// Subscribe adds destination to url's subscriber set, starting the poller
// on the first subscriber. Re-subscribing is a no-op.
func (s *Service) Subscribe(url, destination string) error {
	if url == "" {
		return errors.ErrEmptyFeedURL
	}
	if destination == "" {
		return errors.ErrEmptyDestination
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.feeds[url]
	if !ok {
		s.feeds[url] = map[string]struct{}{destination: {}}
		s.poller.AddFeed(url, time.Duration(s.cfg.PollInterval)*time.Second)
		slog.Info("Feed tracked", "url", url, "destination", destination)
		return nil
	}

	set[destination] = struct{}{}
	return nil
}

// Unsubscribe removes destination from url's subscriber set, stopping the
// poller and dropping the entry when the set empties. No-op if absent.
func (s *Service) Unsubscribe(url, destination string) error {
	if url == "" {
		return errors.ErrEmptyFeedURL
	}
	if destination == "" {
		return errors.ErrEmptyDestination
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.feeds[url]
	if !ok {
		return nil
	}

	delete(set, destination)
	if len(set) == 0 {
		delete(s.feeds, url)
		s.poller.RemoveFeed(url)
		slog.Info("Feed untracked", "url", url)
	}
	return nil
}

// Subscribers returns the current subscriber set for url, sorted. Callers
// get a fresh snapshot on every call.
func (s *Service) Subscribers(url string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.feeds[url]
	if !ok {
		return nil
	}

	subscribers := lo.Keys(set)
	sort.Strings(subscribers)
	return subscribers
}

// Feeds returns a snapshot of all tracked feeds with subscriber counts.
func (s *Service) Feeds() []FeedStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := lo.MapToSlice(s.feeds, func(url string, set map[string]struct{}) FeedStatus {
		return FeedStatus{URL: url, Subscribers: len(set)}
	})
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].URL < statuses[j].URL })
	return statuses
}

// Seed loads every stored destination and replays its subscription list,
// one Subscribe per (url, destination) pair.
func (s *Service) Seed() error {
	records, err := s.repo.GetAllDestinations()
	if err != nil {
		return oops.With("context", "loading stored destinations").Wrap(err)
	}

	for _, record := range records {
		for _, url := range record.FeedURLs {
			if err := s.Subscribe(url, record.ID()); err != nil {
				slog.Error("Skipping invalid stored subscription", "destination", record.ID(), "url", url, "error", err)
			}
		}
	}

	slog.Info("Subscriptions seeded", "destinations", len(records), "feeds", len(s.Feeds()))
	return nil
}

// Stop untracks every feed and stops its poller. Used at shutdown.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for url := range s.feeds {
		s.poller.RemoveFeed(url)
	}
	s.feeds = make(map[string]map[string]struct{})
}
