package events

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/trawler/internal/common"
	"github.com/ternarybob/trawler/internal/interfaces"
	"github.com/ternarybob/trawler/internal/models"
)

// Service implements EventService on top of the badger event store. Writes
// are dispatched on panic-protected goroutines so the crawl path never waits
// on event IO.
type Service struct {
	storage interfaces.EventStorage
	logger  arbor.ILogger

	mu     sync.RWMutex
	stream func(*models.CrawlEvent)
}

var _ interfaces.EventService = (*Service)(nil)

// NewService creates a new event service
func NewService(storage interfaces.EventStorage, logger arbor.ILogger) *Service {
	return &Service{
		storage: storage,
		logger:  logger,
	}
}

// SetStream registers a live delivery tap that receives every recorded
// event. Delivery runs on the recording goroutine, so the tap must not block.
func (s *Service) SetStream(fn func(*models.CrawlEvent)) {
	s.mu.Lock()
	s.stream = fn
	s.mu.Unlock()
}

func (s *Service) record(event *models.CrawlEvent) {
	common.SafeGo(s.logger, "recordEvent", func() {
		if err := s.storage.AppendEvent(context.Background(), event); err != nil {
			s.logger.Warn().
				Err(err).
				Str("job_id", event.JobID).
				Str("event_type", event.EventType).
				Msg("Failed to record crawl event")
		}
		s.mu.RLock()
		stream := s.stream
		s.mu.RUnlock()
		if stream != nil {
			stream(event)
		}
	})
}

func newEvent(eventType string, item *models.QueueItem) *models.CrawlEvent {
	return &models.CrawlEvent{
		ID:          common.NewEventID(),
		JobID:       item.JobID,
		QueueItemID: item.ID,
		EventType:   eventType,
		URL:         item.URL,
		Keyword:     item.Keyword,
		CreatedAt:   time.Now(),
	}
}

// RecordSubmit logs a fetcher submission with the delay that preceded it
func (s *Service) RecordSubmit(ctx context.Context, item *models.QueueItem, delay time.Duration) {
	event := newEvent(models.CrawlEventSubmit, item)
	event.Details = map[string]interface{}{
		"url_type":      string(item.URLType),
		"delay_seconds": delay.Seconds(),
		"retry_count":   item.RetryCount,
	}
	s.record(event)
}

// RecordWebhook logs one webhook result for an item
func (s *Service) RecordWebhook(ctx context.Context, item *models.QueueItem, success bool, errMsg string) {
	event := newEvent(models.CrawlEventWebhook, item)
	event.Details = map[string]interface{}{
		"success": success,
	}
	if errMsg != "" {
		event.Details["error"] = errMsg
	}
	s.record(event)
}

// RecordRetry logs a scheduled retry with the computed backoff
func (s *Service) RecordRetry(ctx context.Context, item *models.QueueItem, retryCount int, delay time.Duration, errMsg string) {
	event := newEvent(models.CrawlEventRetry, item)
	event.Details = map[string]interface{}{
		"retry_count":   retryCount,
		"delay_seconds": delay.Seconds(),
	}
	if errMsg != "" {
		event.Details["error"] = errMsg
	}
	s.record(event)
}

// RecordFail logs terminal failure after retries are exhausted
func (s *Service) RecordFail(ctx context.Context, item *models.QueueItem, totalRetries int, lastError string) {
	event := newEvent(models.CrawlEventFail, item)
	event.Details = map[string]interface{}{
		"total_retries": totalRetries,
	}
	if lastError != "" {
		event.Details["error"] = lastError
	}
	s.record(event)
}

// RecordProductParsed logs a parsed product with its scoring outcome
func (s *Service) RecordProductParsed(ctx context.Context, item *models.QueueItem, productID string, passed bool, margin float64) {
	event := newEvent(models.CrawlEventParseOK, item)
	event.Details = map[string]interface{}{
		"product_id": productID,
		"passed":     passed,
		"net_margin": margin,
	}
	s.record(event)
}

// RecordSearchParsed logs a parsed search page with discovery counts
func (s *Service) RecordSearchParsed(ctx context.Context, item *models.QueueItem, productsFound, totalPages int) {
	event := newEvent(models.CrawlEventParseOK, item)
	event.Details = map[string]interface{}{
		"products_found": productsFound,
		"total_pages":    totalPages,
	}
	s.record(event)
}

// GetEvents returns events newest first, filtered by type when non-empty
func (s *Service) GetEvents(ctx context.Context, jobID string, eventType string, limit int) ([]*models.CrawlEvent, error) {
	return s.storage.GetEvents(ctx, jobID, eventType, limit)
}

// GetTimeline reconstructs the submission timeline from submit events,
// oldest first, with the gap since the previous submission on each entry.
func (s *Service) GetTimeline(ctx context.Context, jobID string) (*models.SubmitTimeline, error) {
	submits, err := s.storage.GetSubmitEvents(ctx, jobID)
	if err != nil {
		return nil, err
	}

	timeline := &models.SubmitTimeline{
		Timeline:         make([]models.TimelineEntry, 0, len(submits)),
		TotalSubmissions: len(submits),
	}

	var prev time.Time
	for i, event := range submits {
		entry := models.TimelineEntry{
			URL:       event.URL,
			Keyword:   event.Keyword,
			Timestamp: event.CreatedAt,
		}
		if i > 0 {
			entry.GapSeconds = event.CreatedAt.Sub(prev).Seconds()
		}
		prev = event.CreatedAt
		timeline.Timeline = append(timeline.Timeline, entry)
	}

	return timeline, nil
}

// DeleteEvents removes all events for a job
func (s *Service) DeleteEvents(ctx context.Context, jobID string) error {
	return s.storage.DeleteEvents(ctx, jobID)
}
