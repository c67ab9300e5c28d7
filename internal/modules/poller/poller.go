package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mmcdole/gofeed"
)

const (
	// seenCapacity bounds the per-feed dedup store; beyond this the oldest
	// item IDs age out and a very old item could in theory resurface.
	seenCapacity   = 500
	eventBufferLen = 32
	fetchRetries   = 2
	retryInterval  = 200 * time.Millisecond
)

// FetchFunc fetches and parses one feed. Exposed so tests can inject a
// fake instead of the gofeed-backed default.
type FetchFunc func(ctx context.Context, url string) (*gofeed.Feed, error)

// Config holds per-fetch settings shared by all feeds.
type Config struct {
	RequestTimeout time.Duration
	UserAgent      string

	// Fetch overrides the default gofeed fetch when non-nil.
	Fetch FetchFunc
}

// Poller runs one fetch loop per added feed and reports new items and
// fetch errors on its event channels. The first successful fetch of a
// feed is recorded but not reported, so a freshly added feed does not
// flood its subscribers with backlog. Removing and re-adding a feed
// starts over with a fresh loop, so the backlog is suppressed again.
type Poller struct {
	cfg        Config
	fetch      FetchFunc
	newBackOff func() backoff.BackOff
	emitFirst  bool

	items chan Item
	errs  chan FeedError

	mu    sync.Mutex
	feeds map[string]context.CancelFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a poller for recurring feed monitoring.
func New(cfg Config) *Poller {
	return newPoller(cfg, false)
}

// NewWatcher creates an isolated single-use poller that reports the very
// first fetch too. Used for reachability checks, where the point is to
// observe at least one item.
func NewWatcher(cfg Config) *Poller {
	return newPoller(cfg, true)
}

func newPoller(cfg Config, emitFirst bool) *Poller {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Poller{
		cfg:       cfg,
		emitFirst: emitFirst,
		items:     make(chan Item, eventBufferLen),
		errs:      make(chan FeedError, eventBufferLen),
		feeds:     make(map[string]context.CancelFunc),
		ctx:       ctx,
		cancel:    cancel,
	}
	p.fetch = cfg.Fetch
	if p.fetch == nil {
		p.fetch = p.fetchFeed
	}
	p.newBackOff = func() backoff.BackOff {
		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = retryInterval
		return backoff.WithMaxRetries(bo, fetchRetries)
	}
	return p
}

// Items is the new-item event stream. Each item carries its feed URL.
func (p *Poller) Items() <-chan Item {
	return p.items
}

// Errors is the fetch/parse error event stream.
func (p *Poller) Errors() <-chan FeedError {
	return p.errs
}

// AddFeed starts polling url at the given interval. No-op if the feed is
// already being polled.
func (p *Poller) AddFeed(url string, interval time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.feeds[url]; ok {
		return
	}

	ctx, cancel := context.WithCancel(p.ctx)
	p.feeds[url] = cancel
	p.wg.Add(1)
	go p.watch(ctx, url, interval)

	slog.Debug("Feed poller started", "url", url, "interval", interval)
}

// RemoveFeed stops polling url. A fetch already in flight is cancelled
// and its result discarded.
func (p *Poller) RemoveFeed(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cancel, ok := p.feeds[url]
	if !ok {
		return
	}
	cancel()
	delete(p.feeds, url)

	slog.Debug("Feed poller stopped", "url", url)
}

// Close stops all feed loops and closes the event channels.
func (p *Poller) Close() {
	p.cancel()
	p.wg.Wait()
	close(p.items)
	close(p.errs)
}

func (p *Poller) watch(ctx context.Context, url string, interval time.Duration) {
	defer p.wg.Done()

	seen := newSeenSet(seenCapacity)

	// The first successful fetch only primes the seen-set, so a brand-new
	// subscriber is not flooded with the feed's backlog.
	initialized := p.emitFirst

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.poll(ctx, url, seen, &initialized)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx, url, seen, &initialized)
		}
	}
}

func (p *Poller) poll(ctx context.Context, url string, seen *seenSet, initialized *bool) {
	feed, err := p.fetchWithRetry(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Warn("Feed poll failed", "url", url, "error", err)
		select {
		case p.errs <- FeedError{FeedURL: url, Err: err}:
		case <-ctx.Done():
		}
		return
	}

	suppress := !*initialized
	*initialized = true

	for _, entry := range feed.Items {
		id := entryID(entry)
		if seen.Has(id) {
			continue
		}
		seen.Add(id)
		if suppress {
			continue
		}

		select {
		case p.items <- newItem(url, feed, entry):
		case <-ctx.Done():
			return
		}
	}
}

func (p *Poller) fetchWithRetry(ctx context.Context, url string) (*gofeed.Feed, error) {
	var feed *gofeed.Feed
	operation := func() error {
		var err error
		feed, err = p.fetch(ctx, url)
		return err
	}

	if err := backoff.Retry(operation, backoff.WithContext(p.newBackOff(), ctx)); err != nil {
		return nil, err
	}
	return feed, nil
}

func (p *Poller) fetchFeed(ctx context.Context, url string) (*gofeed.Feed, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	parser := gofeed.NewParser()
	parser.UserAgent = p.cfg.UserAgent
	return parser.ParseURLWithContext(url, ctx)
}

func entryID(entry *gofeed.Item) string {
	if entry.GUID != "" {
		return entry.GUID
	}
	if entry.Link != "" {
		return entry.Link
	}
	return entry.Title
}

func newItem(url string, feed *gofeed.Feed, entry *gofeed.Item) Item {
	var published time.Time
	if entry.PublishedParsed != nil {
		published = *entry.PublishedParsed
	} else if entry.UpdatedParsed != nil {
		published = *entry.UpdatedParsed
	}

	return Item{
		FeedURL:     url,
		FeedTitle:   feed.Title,
		Title:       entry.Title,
		Link:        entry.Link,
		GUID:        entry.GUID,
		Description: entry.Description,
		Published:   published,
	}
}
