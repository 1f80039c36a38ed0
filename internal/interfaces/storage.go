package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/trawler/internal/models"
)

// ErrNotFound is returned by lookups when no row matches the given id.
var ErrNotFound = errors.New("not found")

// ErrStateConflict is returned by guarded status transitions when the row
// is no longer in the expected state, which callers treat as a duplicate or
// raced operation.
var ErrStateConflict = errors.New("state conflict")

// JobStorage - interface for crawl job persistence
type JobStorage interface {
	SaveJob(ctx context.Context, job *models.CrawlJob) error
	GetJob(ctx context.Context, jobID string) (*models.CrawlJob, error)
	ListJobs(ctx context.Context) ([]*models.CrawlJob, error)

	// UpdateStatus moves a job to a new status. Terminal statuses are
	// immutable: updating a completed, failed or cancelled job returns
	// ErrStateConflict so a late completion check cannot overwrite a cancel.
	UpdateStatus(ctx context.Context, jobID string, status models.JobStatus, errMsg string) error

	// UpdateProgress applies mutate to the stored progress bundle under the
	// storage lock so concurrent counter bumps never lose updates.
	UpdateProgress(ctx context.Context, jobID string, mutate func(*models.CrawlProgress)) error

	DeleteJob(ctx context.Context, jobID string) error
	CountJobs(ctx context.Context) (int, error)
}

// QueueStorage - interface for per-URL crawl queue persistence.
// Status transitions are guarded by the current status so a stale caller
// cannot move an item backwards; callers needing to distinguish a no-op
// read the item first.
type QueueStorage interface {
	// Enqueue inserts the item. Returns false when (job_id, url) already
	// exists, leaving the existing row untouched.
	Enqueue(ctx context.Context, item *models.QueueItem) (bool, error)

	// ClaimNextReady atomically selects one pending item whose
	// next_attempt_at is unset or due, highest priority first with random
	// tie-break, and moves it to submitted. Items with priority above
	// maxPriority are skipped, which is how the warm-up gate holds product
	// pages back. Returns nil when none is ready.
	ClaimNextReady(ctx context.Context, jobID string, now time.Time, maxPriority int) (*models.QueueItem, error)

	MarkCompleted(ctx context.Context, itemID string, at time.Time) error

	// ScheduleRetry moves a submitted item back to pending, increments
	// retry_count and stamps next_attempt_at.
	ScheduleRetry(ctx context.Context, itemID string, nextAttempt time.Time, errMsg string) error

	MarkFailed(ctx context.Context, itemID string, at time.Time, errMsg string) error

	GetItem(ctx context.Context, itemID string) (*models.QueueItem, error)
	GetItemsByJob(ctx context.Context, jobID string, status models.QueueStatus, limit int) ([]*models.QueueItem, error)
	CountByStatus(ctx context.Context, jobID string) (map[models.QueueStatus]int, error)
	CountReady(ctx context.Context, jobID string, now time.Time) (int, error)

	// StaleSubmitted returns submitted items whose submitted_at is older
	// than the cutoff, for the sweeper to recycle.
	StaleSubmitted(ctx context.Context, olderThan time.Time) ([]*models.QueueItem, error)

	// JobsWithReadyItems returns distinct job IDs that have at least one
	// claimable item, used to re-arm schedulers after restart.
	JobsWithReadyItems(ctx context.Context, now time.Time) ([]string, error)

	DeleteByJob(ctx context.Context, jobID string) error
}

// ExclusionStorage - interface for exclusion rule persistence
type ExclusionStorage interface {
	AddRule(ctx context.Context, rule *models.ExclusionRule) error
	DeleteRule(ctx context.Context, id string) error
	ListRules(ctx context.Context) ([]*models.ExclusionRule, error)
	ListRulesByType(ctx context.Context, ruleType models.RuleType) ([]*models.ExclusionRule, error)
}

// ScoredProductStorage - interface for the downstream scored-products store.
// The crawl path reads it for dedup by source product ID and writes one row
// per parsed product.
type ScoredProductStorage interface {
	Exists(ctx context.Context, sourceProductID string) (bool, error)

	// FilterExisting returns the subset of ids already present, so search
	// expansion can skip known products in one round trip.
	FilterExisting(ctx context.Context, sourceProductIDs []string) (map[string]bool, error)

	SaveScore(ctx context.Context, score *models.ScoredProduct) error
	GetBySourceID(ctx context.Context, sourceProductID string) (*models.ScoredProduct, error)
	ListByJob(ctx context.Context, jobID string, limit int) ([]*models.ScoredProduct, error)
	CountByJob(ctx context.Context, jobID string) (int, error)
}

// JobLogStorage - interface for per-job log persistence. Levels are stored
// as 3-letter codes (INF, WRN, ERR, DBG).
type JobLogStorage interface {
	AppendLog(ctx context.Context, jobID string, entry models.JobLogEntry) error
	AppendLogs(ctx context.Context, jobID string, entries []models.JobLogEntry) error

	// GetLogs returns entries newest first.
	GetLogs(ctx context.Context, jobID string, limit int) ([]models.JobLogEntry, error)

	// GetLogsSince returns entries in write order starting at offset, for
	// incremental tailing.
	GetLogsSince(ctx context.Context, jobID string, offset int, limit int) ([]models.JobLogEntry, error)

	GetLogsByLevel(ctx context.Context, jobID string, level string, limit int) ([]models.JobLogEntry, error)
	CountLogs(ctx context.Context, jobID string) (int, error)
	DeleteLogs(ctx context.Context, jobID string) error
}

// EventStorage - interface for append-only crawl event persistence
type EventStorage interface {
	AppendEvent(ctx context.Context, event *models.CrawlEvent) error

	// GetEvents returns events newest first. An empty eventType matches all
	// types.
	GetEvents(ctx context.Context, jobID string, eventType string, limit int) ([]*models.CrawlEvent, error)

	// GetSubmitEvents returns a job's submit events oldest first for
	// timeline reconstruction.
	GetSubmitEvents(ctx context.Context, jobID string) ([]*models.CrawlEvent, error)

	CountEvents(ctx context.Context, jobID string) (int, error)
	DeleteEvents(ctx context.Context, jobID string) error
}

// StorageManager - composite interface for all storage operations
type StorageManager interface {
	JobStorage() JobStorage
	QueueStorage() QueueStorage
	ExclusionStorage() ExclusionStorage
	ScoredProductStorage() ScoredProductStorage
	JobLogStorage() JobLogStorage
	EventStorage() EventStorage
	Close() error
}
