package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/trawler/internal/models"
)

// EventService records crawl activity events and answers timeline queries.
// Recording is best-effort: a failed write is logged, never surfaced to the
// crawl path.
type EventService interface {
	// RecordSubmit logs a fetcher submission with the delay that preceded it.
	RecordSubmit(ctx context.Context, item *models.QueueItem, delay time.Duration)

	// RecordWebhook logs one webhook result for an item.
	RecordWebhook(ctx context.Context, item *models.QueueItem, success bool, errMsg string)

	// RecordRetry logs a scheduled retry with the computed backoff.
	RecordRetry(ctx context.Context, item *models.QueueItem, retryCount int, delay time.Duration, errMsg string)

	// RecordFail logs terminal failure after retries are exhausted.
	RecordFail(ctx context.Context, item *models.QueueItem, totalRetries int, lastError string)

	// RecordProductParsed logs a parsed product with its scoring outcome.
	RecordProductParsed(ctx context.Context, item *models.QueueItem, productID string, passed bool, margin float64)

	// RecordSearchParsed logs a parsed search page with discovery counts.
	RecordSearchParsed(ctx context.Context, item *models.QueueItem, productsFound, totalPages int)

	// GetEvents returns events newest first, filtered by type when eventType
	// is non-empty.
	GetEvents(ctx context.Context, jobID string, eventType string, limit int) ([]*models.CrawlEvent, error)

	// GetTimeline reconstructs the submission timeline with inter-submit
	// gaps in seconds.
	GetTimeline(ctx context.Context, jobID string) (*models.SubmitTimeline, error)

	DeleteEvents(ctx context.Context, jobID string) error
}
