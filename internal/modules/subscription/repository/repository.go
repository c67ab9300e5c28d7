package repository

import (
	"github.com/reshetovitsme/rss-fanout-bot/internal/modules/subscription/domain"
)

// Repository defines the interface for destination subscription persistence
// This abstraction allows easy replacement of storage implementations
// (e.g., FileStorage -> PostgreSQL -> MongoDB)
type Repository interface {
	SaveDestination(record *domain.DestinationRecord) error
	GetDestination(destinationID string) (*domain.DestinationRecord, error)
	GetAllDestinations() ([]*domain.DestinationRecord, error)
	DeleteDestination(destinationID string) error
}
