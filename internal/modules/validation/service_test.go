package validation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/reshetovitsme/rss-fanout-bot/internal/modules/poller"
	sharederrors "github.com/reshetovitsme/rss-fanout-bot/internal/shared/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWatcher struct {
	items  chan poller.Item
	errs   chan poller.FeedError
	onAdd  func(url string, items chan<- poller.Item, errs chan<- poller.FeedError)
	closed atomic.Bool
}

func (f *fakeWatcher) AddFeed(url string, _ time.Duration) {
	if f.onAdd != nil {
		go f.onAdd(url, f.items, f.errs)
	}
}

func (f *fakeWatcher) Items() <-chan poller.Item       { return f.items }
func (f *fakeWatcher) Errors() <-chan poller.FeedError { return f.errs }
func (f *fakeWatcher) Close()                          { f.closed.Store(true) }

type watcherFactory struct {
	mu      sync.Mutex
	created []*fakeWatcher
	onAdd   func(url string, items chan<- poller.Item, errs chan<- poller.FeedError)
}

func (wf *watcherFactory) new() Watcher {
	wf.mu.Lock()
	defer wf.mu.Unlock()

	w := &fakeWatcher{
		items: make(chan poller.Item, 1),
		errs:  make(chan poller.FeedError, 1),
		onAdd: wf.onAdd,
	}
	wf.created = append(wf.created, w)
	return w
}

func (wf *watcherFactory) count() int {
	wf.mu.Lock()
	defer wf.mu.Unlock()
	return len(wf.created)
}

func itemAfter(delay time.Duration) func(string, chan<- poller.Item, chan<- poller.FeedError) {
	return func(url string, items chan<- poller.Item, _ chan<- poller.FeedError) {
		time.Sleep(delay)
		items <- poller.Item{FeedURL: url, Title: "first item"}
	}
}

func errImmediately(url string, _ chan<- poller.Item, errs chan<- poller.FeedError) {
	errs <- poller.FeedError{FeedURL: url, Err: errors.New("connection refused")}
}

func TestValidateSuccess(t *testing.T) {
	wf := &watcherFactory{onAdd: itemAfter(10 * time.Millisecond)}
	svc := New(time.Second, wf.new)

	err := svc.Validate(context.Background(), "https://a.example/feed")
	require.NoError(t, err)

	assert.Equal(t, 1, wf.count())
	assert.True(t, wf.created[0].closed.Load(), "watcher torn down after completion")
}

func TestValidateEmptyURL(t *testing.T) {
	wf := &watcherFactory{}
	svc := New(time.Second, wf.new)

	err := svc.Validate(context.Background(), "")
	assert.ErrorIs(t, err, sharederrors.ErrEmptyFeedURL)
	assert.Zero(t, wf.count())
}

func TestValidateFetchErrorFailsFast(t *testing.T) {
	wf := &watcherFactory{onAdd: errImmediately}
	svc := New(2*time.Second, wf.new)

	start := time.Now()
	err := svc.Validate(context.Background(), "bad-url")

	assert.ErrorIs(t, err, sharederrors.ErrValidationFailed)
	assert.Less(t, time.Since(start), time.Second, "fetch error must resolve well before the timeout")
	assert.True(t, wf.created[0].closed.Load())
}

func TestValidateTimeout(t *testing.T) {
	// Watcher never responds
	wf := &watcherFactory{}
	svc := New(60*time.Millisecond, wf.new)

	start := time.Now()
	err := svc.Validate(context.Background(), "slow-url")
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, sharederrors.ErrValidationFailed)
	assert.GreaterOrEqual(t, elapsed, 55*time.Millisecond, "must not resolve before the timeout")
	assert.Less(t, elapsed, time.Second, "must not hang past the timeout")
}

func TestConcurrentValidateSharesOneCheck(t *testing.T) {
	wf := &watcherFactory{onAdd: itemAfter(50 * time.Millisecond)}
	svc := New(time.Second, wf.new)

	const callers = 5
	results := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() {
			results <- svc.Validate(context.Background(), "https://a.example/feed")
		}()
	}

	for i := 0; i < callers; i++ {
		assert.NoError(t, <-results)
	}
	assert.Equal(t, 1, wf.count(), "concurrent callers must share one underlying check")
}

func TestValidateStartsFreshAfterCompletion(t *testing.T) {
	wf := &watcherFactory{onAdd: itemAfter(5 * time.Millisecond)}
	svc := New(time.Second, wf.new)

	require.NoError(t, svc.Validate(context.Background(), "https://a.example/feed"))
	require.NoError(t, svc.Validate(context.Background(), "https://a.example/feed"))

	assert.Equal(t, 2, wf.count(), "sequential checks must not share state")
}

func TestValidateCallerContextCancelled(t *testing.T) {
	wf := &watcherFactory{}
	svc := New(time.Minute, wf.new)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := svc.Validate(ctx, "slow-url")
	assert.ErrorIs(t, err, context.Canceled)
}
