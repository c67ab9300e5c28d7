package poller

import "time"

// Item is one entry reported by a polled feed. Transient: it is handed to
// the dispatcher and discarded, never persisted.
type Item struct {
	FeedURL     string
	FeedTitle   string
	Title       string
	Link        string
	GUID        string
	Description string
	Published   time.Time
}

// FeedError reports a failed fetch or parse for one feed. Errors are
// isolated per feed and never reach subscribers.
type FeedError struct {
	FeedURL string
	Err     error
}

func (e FeedError) Error() string {
	return "feed " + e.FeedURL + ": " + e.Err.Error()
}

func (e FeedError) Unwrap() error {
	return e.Err
}
