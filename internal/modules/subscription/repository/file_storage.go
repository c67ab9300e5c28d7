package repository

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/reshetovitsme/rss-fanout-bot/internal/modules/subscription/domain"
	"github.com/reshetovitsme/rss-fanout-bot/internal/shared/errors"
	"github.com/samber/lo"
	"github.com/samber/oops"
)

// FileStorage persists destination records as JSON files, one per destination
type FileStorage struct {
	basePath string
	mu       sync.RWMutex
}

func NewFileStorage(basePath string) (*FileStorage, error) {
	dir := filepath.Join(basePath, "destinations")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, oops.With("path", dir).Wrapf(err, "failed to create storage directory")
	}

	return &FileStorage{basePath: basePath}, nil
}

func (s *FileStorage) SaveDestination(record *domain.DestinationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return oops.With("destination_id", record.ID()).Wrapf(err, "failed to marshal destination")
	}

	return os.WriteFile(s.recordPath(record.ID()), data, 0644)
}

func (s *FileStorage) GetDestination(destinationID string) (*domain.DestinationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.recordPath(destinationID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ErrDestinationNotFound
		}
		return nil, oops.With("destination_id", destinationID).Wrapf(err, "failed to read destination")
	}

	var record domain.DestinationRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, oops.With("destination_id", destinationID).Wrapf(err, "failed to unmarshal destination")
	}

	return &record, nil
}

func (s *FileStorage) GetAllDestinations() ([]*domain.DestinationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dir := filepath.Join(s.basePath, "destinations")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, oops.With("path", dir).Wrapf(err, "failed to read destinations directory")
	}

	// Use lo.FilterMap to process entries
	records := lo.FilterMap(entries, func(entry os.DirEntry, _ int) (*domain.DestinationRecord, bool) {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			return nil, false
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, false
		}

		var record domain.DestinationRecord
		if err := json.Unmarshal(data, &record); err != nil {
			return nil, false
		}

		return &record, true
	})

	return records, nil
}

func (s *FileStorage) DeleteDestination(destinationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return os.Remove(s.recordPath(destinationID))
}

func (s *FileStorage) recordPath(destinationID string) string {
	// Destination IDs contain ":" which is awkward in file names
	name := strings.ReplaceAll(destinationID, ":", "_")
	return filepath.Join(s.basePath, "destinations", name+".json")
}
