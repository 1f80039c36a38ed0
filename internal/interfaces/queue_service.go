package interfaces

import (
	"context"

	"github.com/ternarybob/trawler/internal/models"
)

// LogService manages batch log persistence. Append operations are
// fire-and-forget: entries are buffered and flushed to storage in the
// background so the crawl path never blocks on log IO.
type LogService interface {
	Start() error
	Stop() error
	AppendLog(ctx context.Context, jobID string, entry models.JobLogEntry)
	AppendLogs(ctx context.Context, jobID string, entries []models.JobLogEntry)
	GetLogs(ctx context.Context, jobID string, limit int) ([]models.JobLogEntry, error)
	GetLogsSince(ctx context.Context, jobID string, offset int, limit int) ([]models.JobLogEntry, error)
	GetLogsByLevel(ctx context.Context, jobID string, level string, limit int) ([]models.JobLogEntry, error)
	CountLogs(ctx context.Context, jobID string) (int, error)
	DeleteLogs(ctx context.Context, jobID string) error
}
