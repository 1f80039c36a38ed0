package interfaces

import (
	"context"

	"github.com/ternarybob/trawler/internal/models"
	pkgmodels "github.com/ternarybob/trawler/pkg/models"
)

// CrawlerService coordinates the crawl lifecycle: job creation, queue
// seeding, paced submission, webhook processing and completion detection.
type CrawlerService interface {
	// Start resumes schedulers for jobs that were running when the process
	// last stopped and launches the stale-item sweeper.
	Start(ctx context.Context) error

	// StartCrawl validates the config, creates a job, seeds one search URL
	// per keyword and arms the pacing scheduler.
	// Returns the job ID and the number of search URLs queued.
	StartCrawl(ctx context.Context, config *models.CrawlConfig) (string, int, error)

	GetJob(ctx context.Context, jobID string) (*models.CrawlJob, error)
	ListJobs(ctx context.Context) ([]*models.CrawlJob, error)

	// CancelJob stops new submissions for the job. Results already in
	// flight are failed as they arrive.
	CancelJob(ctx context.Context, jobID string) error

	// DeleteJob removes the job with its queue items, logs and events.
	// Running jobs are cancelled first.
	DeleteJob(ctx context.Context, jobID string) error

	// ProcessWebhook consumes one webhook delivery. It never returns an
	// error: the fetcher only needs an acknowledgment, all failures are
	// absorbed into item state and logs.
	ProcessWebhook(ctx context.Context, payload *pkgmodels.WebhookPayload)

	// Close stops schedulers and waits for in-flight webhook work.
	Close() error
}

// Scheduler paces fetcher submissions per job. Kicks are edge-triggered:
// arming an already armed job is a no-op.
type Scheduler interface {
	// Kick arms the job's submission timer if it is not armed already.
	// delayHint >= 0 fires after that many seconds (0 means immediately);
	// a negative hint lets the scheduler draw its own pacing delay.
	Kick(jobID string, delayHint float64)

	// KickAfterDiscovery arms the timer and bypasses the warm-up gate once,
	// so freshly expanded discovery results keep flowing.
	KickAfterDiscovery(jobID string)

	// Stop disarms the job's timer.
	Stop(jobID string)

	// StopAll disarms every timer, used at shutdown.
	StopAll()
}
