package crawler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ternarybob/trawler/internal/models"
)

const (
	defaultSweeperSchedule = "0 * * * * *"
	defaultStaleAfter      = 30 * time.Minute
)

// sweeper is the periodic recovery loop: it recycles submitted items whose
// webhook never arrived, re-arms schedulers for jobs whose retries have
// come due, and keeps the exclusion rule cache warm.
type sweeper struct {
	svc  *Service
	cron *cron.Cron
}

func newSweeper(svc *Service) *sweeper {
	return &sweeper{
		svc:  svc,
		cron: cron.New(cron.WithSeconds()),
	}
}

func (w *sweeper) start() error {
	schedule := w.svc.config.Crawl.SweeperSchedule
	if schedule == "" {
		schedule = defaultSweeperSchedule
	}
	if _, err := w.cron.AddFunc(schedule, w.sweep); err != nil {
		return fmt.Errorf("invalid sweeper schedule %q: %w", schedule, err)
	}
	w.cron.Start()
	w.svc.logger.Debug().Str("schedule", schedule).Msg("Recovery sweeper started")
	return nil
}

// stop halts the cron and waits for a running sweep to finish
func (w *sweeper) stop() {
	<-w.cron.Stop().Done()
}

func (w *sweeper) sweep() {
	ctx := w.svc.ctx
	now := time.Now()

	w.recycleStale(ctx, now)
	w.rearmReady(ctx, now)

	if err := w.svc.exclusions.Refresh(ctx); err != nil {
		w.svc.logger.Warn().Err(err).Msg("Rule cache refresh failed during sweep")
	}
}

// recycleStale routes submitted items without a webhook after the cutoff
// through the normal failure path, so a lost callback costs one retry.
// Items belonging to jobs that are no longer running are drained instead.
func (w *sweeper) recycleStale(ctx context.Context, now time.Time) {
	staleAfter, err := time.ParseDuration(w.svc.config.Crawl.StaleSubmittedAfter)
	if err != nil || staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}

	stale, err := w.svc.queue.StaleSubmitted(ctx, now.Add(-staleAfter))
	if err != nil {
		w.svc.logger.Warn().Err(err).Msg("Stale item scan failed")
		return
	}

	for _, item := range stale {
		job, err := w.svc.jobs.GetJob(ctx, item.JobID)
		if err != nil || job.Status != models.JobStatusRunning {
			w.svc.failCancelled(ctx, item)
			continue
		}

		w.svc.logger.Warn().
			Str("job_id", item.JobID).
			Str("item_id", item.ID).
			Str("url", item.URL).
			Msg("Recycling submitted item with no webhook")
		w.svc.handleItemFailure(ctx, item, "No webhook received")
		w.svc.scheduler.Kick(item.JobID, -1)
	}
}

// rearmReady kicks schedulers for running jobs that have claimable items,
// covering retries that came due while the queue was otherwise idle. Kicks
// are edge-triggered, so jobs with an armed timer are unaffected.
func (w *sweeper) rearmReady(ctx context.Context, now time.Time) {
	jobIDs, err := w.svc.queue.JobsWithReadyItems(ctx, now)
	if err != nil {
		w.svc.logger.Warn().Err(err).Msg("Ready job scan failed")
		return
	}

	for _, jobID := range jobIDs {
		job, err := w.svc.jobs.GetJob(ctx, jobID)
		if err != nil || job.Status != models.JobStatusRunning {
			continue
		}
		w.svc.scheduler.Kick(jobID, -1)
	}
}
