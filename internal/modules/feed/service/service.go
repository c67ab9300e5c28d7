package service

import (
	"fmt"
	"sort"

	"github.com/gorilla/feeds"
	"github.com/reshetovitsme/rss-fanout-bot/internal/modules/dispatch"
	"github.com/reshetovitsme/rss-fanout-bot/internal/modules/subscription/repository"
	"github.com/samber/lo"
	"github.com/samber/oops"
)

const maxFeedItems = 50

// DeliveryHistory yields recently dispatched items per feed URL.
type DeliveryHistory interface {
	RecentDeliveries(url string, limit int) []dispatch.Delivery
}

// Service renders a destination's recently delivered items as an RSS feed
type Service struct {
	repo    repository.Repository
	history DeliveryHistory
}

// New creates a new feed service
func New(repo repository.Repository, history DeliveryHistory) *Service {
	return &Service{
		repo:    repo,
		history: history,
	}
}

// GenerateFeed generates an RSS feed of what a destination recently received
func (s *Service) GenerateFeed(destinationID string, baseURL string) (*feeds.Feed, error) {
	record, err := s.repo.GetDestination(destinationID)
	if err != nil {
		return nil, oops.With("destination_id", destinationID).Wrap(err)
	}

	deliveries := lo.FlatMap(record.FeedURLs, func(url string, _ int) []dispatch.Delivery {
		return s.history.RecentDeliveries(url, maxFeedItems)
	})
	sort.Slice(deliveries, func(i, j int) bool { return deliveries[i].At.After(deliveries[j].At) })
	if len(deliveries) > maxFeedItems {
		deliveries = deliveries[:maxFeedItems]
	}

	feed := &feeds.Feed{
		Title:       fmt.Sprintf("Deliveries for %s", destinationID),
		Link:        &feeds.Link{Href: fmt.Sprintf("%s/rss/%s", baseURL, destinationID)},
		Description: fmt.Sprintf("Items recently delivered across %d subscribed feeds", len(record.FeedURLs)),
		Created:     record.AddedAt,
	}
	if len(deliveries) > 0 {
		feed.Updated = deliveries[0].At
	}

	feed.Items = lo.Map(deliveries, func(d dispatch.Delivery, _ int) *feeds.Item {
		return s.deliveryToFeedItem(d)
	})

	return feed, nil
}

func (s *Service) deliveryToFeedItem(d dispatch.Delivery) *feeds.Item {
	id := d.Item.GUID
	if id == "" {
		id = d.Item.Link
	}

	return &feeds.Item{
		Title:       d.Item.Title,
		Link:        &feeds.Link{Href: d.Item.Link},
		Description: d.Item.Description,
		Author:      &feeds.Author{Name: d.Item.FeedTitle},
		Created:     d.At,
		Id:          id,
	}
}
