package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/reshetovitsme/rss-fanout-bot/internal/modules/poller"
	"github.com/samber/lo"
)

// historyLimit bounds the in-memory delivery history kept per feed for
// the outbound RSS endpoint. Never persisted.
const historyLimit = 50

// Transform turns a feed item into the outbound message string. It must
// not touch state outside the item; a failure skips that item only.
type Transform func(item poller.Item) (string, error)

// Transport delivers one message to a set of destinations. Fire-and-forget:
// delivery failures are the transport's concern.
type Transport interface {
	Broadcast(ctx context.Context, destinations []string, message string)
}

// SubscriberSource yields the current subscribers of a feed URL.
type SubscriberSource interface {
	Subscribers(url string) []string
}

// Delivery records one fanned-out item.
type Delivery struct {
	Item         poller.Item
	Destinations int
	At           time.Time
}

// Dispatcher consumes the poll scheduler's event streams and fans each new
// item out to the feed's current subscribers. The subscriber set is read
// when the event is processed, not when the poll started: a destination
// that unsubscribed in between does not receive the message.
type Dispatcher struct {
	source    SubscriberSource
	transport Transport
	transform Transform
	items     <-chan poller.Item
	errs      <-chan poller.FeedError

	mu      sync.RWMutex
	history map[string][]Delivery
}

// New creates a dispatcher reading from the given event streams.
func New(source SubscriberSource, transport Transport, transform Transform, items <-chan poller.Item, errs <-chan poller.FeedError) *Dispatcher {
	return &Dispatcher{
		source:    source,
		transport: transport,
		transform: transform,
		items:     items,
		errs:      errs,
		history:   make(map[string][]Delivery),
	}
}

// Run consumes events until ctx is cancelled or the item stream closes.
func (d *Dispatcher) Run(ctx context.Context) {
	errs := d.errs
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-d.items:
			if !ok {
				return
			}
			d.dispatch(ctx, item)
		case feedErr, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			// Poll errors are isolated per feed and never reach subscribers.
			slog.Warn("Feed poll error", "url", feedErr.FeedURL, "error", feedErr.Err)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, item poller.Item) {
	destinations := d.source.Subscribers(item.FeedURL)
	if len(destinations) == 0 {
		// Feed was unsubscribed while the item was in flight.
		slog.Debug("Dropping item without subscribers", "url", item.FeedURL, "title", item.Title)
		return
	}

	message, err := d.transform(item)
	if err != nil {
		slog.Error("Transform failed, skipping item", "url", item.FeedURL, "title", item.Title, "error", err)
		return
	}

	d.transport.Broadcast(ctx, destinations, message)
	d.record(item, len(destinations))

	slog.Info("Item dispatched", "url", item.FeedURL, "title", item.Title, "destinations", len(destinations))
}

func (d *Dispatcher) record(item poller.Item, destinations int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	deliveries := append(d.history[item.FeedURL], Delivery{
		Item:         item,
		Destinations: destinations,
		At:           time.Now(),
	})
	if len(deliveries) > historyLimit {
		deliveries = deliveries[len(deliveries)-historyLimit:]
	}
	d.history[item.FeedURL] = deliveries
}

// RecentDeliveries returns up to limit of the newest deliveries for url,
// newest first.
func (d *Dispatcher) RecentDeliveries(url string, limit int) []Delivery {
	d.mu.RLock()
	defer d.mu.RUnlock()

	deliveries := d.history[url]
	if limit > 0 && len(deliveries) > limit {
		deliveries = deliveries[len(deliveries)-limit:]
	}
	return lo.Reverse(append([]Delivery(nil), deliveries...))
}
