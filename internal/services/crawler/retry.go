package crawler

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/ternarybob/trawler/internal/models"
)

// handleItemFailure routes one failed attempt. Items with retries left go
// back to pending behind an exponential backoff; exhausted items fail
// terminally. The check runs before the increment so the stored retry
// count never exceeds the configured maximum: an item that has burned its
// last retry sits in pending like any other, and fails only when that
// attempt also comes back bad.
func (s *Service) handleItemFailure(ctx context.Context, item *models.QueueItem, errMsg string) {
	maxRetries := s.config.Crawl.MaxRetries

	s.bumpProgress(ctx, item.JobID, func(p *models.CrawlProgress) {
		p.Errors++
	})

	if item.RetryCount >= maxRetries {
		if err := s.queue.MarkFailed(ctx, item.ID, time.Now(), errMsg); err != nil {
			s.logger.Warn().Err(err).Str("item_id", item.ID).Msg("Could not fail exhausted item")
			return
		}
		s.events.RecordFail(ctx, item, item.RetryCount, errMsg)
		s.jobLog(ctx, item.JobID, "ERR", fmt.Sprintf("Giving up on %s after %d retries: %s",
			keywordDisplay(item), item.RetryCount, errMsg))
		s.checkCompletion(ctx, item.JobID)
		return
	}

	attempt := item.RetryCount + 1
	backoff := retryBackoff(s.config.Crawl.RetryBaseSeconds, s.config.Crawl.RetryJitterSeconds, attempt)
	nextAttempt := time.Now().Add(backoff)

	if err := s.queue.ScheduleRetry(ctx, item.ID, nextAttempt, errMsg); err != nil {
		s.logger.Warn().Err(err).Str("item_id", item.ID).Msg("Could not schedule retry")
		return
	}
	s.events.RecordRetry(ctx, item, attempt, backoff, errMsg)
	s.jobLog(ctx, item.JobID, "WRN", fmt.Sprintf("Retry %d/%d for %s in %s: %s",
		attempt, maxRetries, keywordDisplay(item), backoff.Round(time.Second), errMsg))
}

// retryBackoff computes the wait before retry attempt n (1-based): the base
// doubles per attempt, plus a uniform jitter so simultaneous failures do
// not retry in lockstep.
func retryBackoff(baseSeconds, jitterSeconds, attempt int) time.Duration {
	backoff := time.Duration(baseSeconds) * time.Second << (attempt - 1)
	if jitterSeconds > 0 {
		backoff += time.Duration(rand.Int63n(int64(jitterSeconds)+1)) * time.Second
	}
	return backoff
}
