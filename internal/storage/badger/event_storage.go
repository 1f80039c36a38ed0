package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/trawler/internal/common"
	"github.com/ternarybob/trawler/internal/interfaces"
	"github.com/ternarybob/trawler/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// EventStorage implements the EventStorage interface for Badger. Events are
// append-only; nothing in the crawl path ever reads them back, so writes
// favor simplicity over batching.
type EventStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewEventStorage creates a new EventStorage instance
func NewEventStorage(db *BadgerDB, logger arbor.ILogger) interfaces.EventStorage {
	return &EventStorage{
		db:     db,
		logger: logger,
	}
}

func (s *EventStorage) AppendEvent(ctx context.Context, event *models.CrawlEvent) error {
	if event.ID == "" {
		event.ID = common.NewEventID()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	if err := s.db.Store().Insert(event.ID, event); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// GetEvents returns events newest first. An empty eventType matches all
// types.
func (s *EventStorage) GetEvents(ctx context.Context, jobID string, eventType string, limit int) ([]*models.CrawlEvent, error) {
	var events []*models.CrawlEvent
	query := badgerhold.Where("JobID").Eq(jobID).Index("JobID")
	if eventType != "" {
		query = query.And("EventType").Eq(eventType)
	}
	query = query.SortBy("CreatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := s.db.Store().Find(&events, query); err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	return events, nil
}

// GetSubmitEvents returns a job's submit events oldest first, the order the
// timeline view reconstructs gaps in.
func (s *EventStorage) GetSubmitEvents(ctx context.Context, jobID string) ([]*models.CrawlEvent, error) {
	var events []*models.CrawlEvent
	query := badgerhold.Where("JobID").Eq(jobID).Index("JobID").
		And("EventType").Eq(models.CrawlEventSubmit).
		SortBy("CreatedAt")

	if err := s.db.Store().Find(&events, query); err != nil {
		return nil, fmt.Errorf("failed to get submit events: %w", err)
	}
	return events, nil
}

func (s *EventStorage) CountEvents(ctx context.Context, jobID string) (int, error) {
	count, err := s.db.Store().Count(&models.CrawlEvent{}, badgerhold.Where("JobID").Eq(jobID).Index("JobID"))
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return int(count), nil
}

func (s *EventStorage) DeleteEvents(ctx context.Context, jobID string) error {
	if err := s.db.Store().DeleteMatching(&models.CrawlEvent{}, badgerhold.Where("JobID").Eq(jobID).Index("JobID")); err != nil {
		return fmt.Errorf("failed to delete events: %w", err)
	}
	return nil
}
