package crawler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/ternarybob/trawler/internal/interfaces"
	"github.com/ternarybob/trawler/internal/models"
	"github.com/ternarybob/trawler/internal/services/fetcher"
)

// retryRecheckSeconds is how long the scheduler waits before re-examining a
// queue whose pending items are all waiting out their retry backoff.
const retryRecheckSeconds = 60

// pacingScheduler spaces fetcher submissions with a uniform random delay
// per job. Timers are edge-triggered: at most one armed timer per job, and
// kicks arriving while armed collapse into the pending fire.
type pacingScheduler struct {
	svc *Service

	mu     sync.Mutex
	armed  map[string]chan struct{}
	bypass map[string]bool
	done   chan struct{}
	wg     sync.WaitGroup
}

var _ interfaces.Scheduler = (*pacingScheduler)(nil)

func newPacingScheduler(svc *Service) *pacingScheduler {
	return &pacingScheduler{
		svc:    svc,
		armed:  make(map[string]chan struct{}),
		bypass: make(map[string]bool),
		done:   make(chan struct{}),
	}
}

// Kick arms the job's submission timer unless one is already pending.
// delayHint >= 0 fires after that many seconds (0 means immediately); a
// negative hint draws a pacing delay from the configured window.
func (p *pacingScheduler) Kick(jobID string, delayHint float64) {
	p.arm(jobID, delayHint, false)
}

// KickAfterDiscovery arms the timer with a pacing delay and lets the next
// submission claim product items even while the warm-up gate is holding.
func (p *pacingScheduler) KickAfterDiscovery(jobID string) {
	p.arm(jobID, -1, true)
}

func (p *pacingScheduler) arm(jobID string, delayHint float64, bypassWarmup bool) {
	p.mu.Lock()
	select {
	case <-p.done:
		p.mu.Unlock()
		return
	default:
	}

	if bypassWarmup {
		p.bypass[jobID] = true
	}
	if _, exists := p.armed[jobID]; exists {
		p.mu.Unlock()
		return
	}

	cancel := make(chan struct{})
	p.armed[jobID] = cancel

	delay := p.drawDelay()
	if delayHint >= 0 {
		delay = time.Duration(delayHint * float64(time.Second))
	}
	p.mu.Unlock()

	p.wg.Add(1)
	go p.fireAfter(jobID, delay, cancel)
}

// fireAfter waits out the delay and runs one submission attempt. The armed
// entry is cleared before submitting so a kick arriving mid-submission arms
// a fresh timer instead of being lost.
func (p *pacingScheduler) fireAfter(jobID string, delay time.Duration, cancel chan struct{}) {
	defer p.wg.Done()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-cancel:
			return
		case <-p.done:
			return
		}
	}

	p.mu.Lock()
	if p.armed[jobID] != cancel {
		// Stop raced the fire; the timer was disarmed.
		p.mu.Unlock()
		return
	}
	delete(p.armed, jobID)
	bypass := p.bypass[jobID]
	delete(p.bypass, jobID)
	p.mu.Unlock()

	p.svc.submitNext(jobID, delay, bypass)
}

// Stop disarms the job's pending timer if any
func (p *pacingScheduler) Stop(jobID string) {
	p.mu.Lock()
	if cancel, exists := p.armed[jobID]; exists {
		close(cancel)
		delete(p.armed, jobID)
	}
	delete(p.bypass, jobID)
	p.mu.Unlock()
}

// StopAll disarms every timer and blocks new arms, used at shutdown
func (p *pacingScheduler) StopAll() {
	p.mu.Lock()
	select {
	case <-p.done:
	default:
		close(p.done)
	}
	for jobID, cancel := range p.armed {
		close(cancel)
		delete(p.armed, jobID)
	}
	p.bypass = make(map[string]bool)
	p.mu.Unlock()

	p.wg.Wait()
}

// drawDelay samples the pacing window uniformly
func (p *pacingScheduler) drawDelay() time.Duration {
	min := p.svc.config.Crawl.SubmitDelayMinSeconds
	max := p.svc.config.Crawl.SubmitDelayMaxSeconds
	if max < min {
		max = min
	}
	seconds := min + rand.Float64()*(max-min)
	return time.Duration(seconds * float64(time.Second))
}

// submitNext claims at most one ready item for the job and submits it to
// the fetcher, then re-arms while claimable work remains. delay is what the
// timer actually waited, recorded with the submit event.
func (s *Service) submitNext(jobID string, delay time.Duration, bypassWarmup bool) {
	ctx := s.ctx

	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		if !errors.Is(err, interfaces.ErrNotFound) {
			s.logger.Error().Err(err).Str("job_id", jobID).Msg("Submission skipped, job load failed")
		}
		return
	}
	if job.Status != models.JobStatusRunning {
		return
	}

	now := time.Now()
	item, err := s.claimReady(ctx, jobID, now, bypassWarmup)
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("Queue claim failed")
		s.scheduler.Kick(jobID, -1)
		return
	}
	if item == nil {
		s.handleIdleQueue(ctx, jobID)
		return
	}

	postID := fetcher.FormatPostID(jobID, string(item.URLType), item.ID)
	if _, err := s.fetcher.Submit(ctx, item.URL, postID); err != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Str("item_id", item.ID).Str("url", item.URL).Msg("Fetcher submission failed")
		s.handleItemFailure(ctx, item, fmt.Sprintf("Submit failed: %v", err))
		s.scheduler.Kick(jobID, -1)
		return
	}

	s.events.RecordSubmit(ctx, item, delay)
	s.jobLog(ctx, jobID, "INF", fmt.Sprintf("Submitted %s: %s (delay=%.1fs)", item.URLType, keywordDisplay(item), delay.Seconds()))

	counts, err := s.queue.CountByStatus(ctx, jobID)
	if err == nil && counts[models.QueueStatusPending] > 0 {
		s.scheduler.Kick(jobID, -1)
	}
}

// claimReady picks the next item honoring the warm-up gate: while fewer
// than WarmupQueueDepth items are ready, only discovery items may go out,
// so early product fetches cannot drain the queue before pagination has
// expanded it. The gate lifts when nothing discovery-shaped is in flight,
// otherwise a small crawl that never reaches the warm-up depth would stall
// with its product pages held forever.
func (s *Service) claimReady(ctx context.Context, jobID string, now time.Time, bypassWarmup bool) (*models.QueueItem, error) {
	depth := s.config.Crawl.WarmupQueueDepth

	gated := false
	if !bypassWarmup && depth > 0 {
		ready, err := s.queue.CountReady(ctx, jobID, now)
		if err != nil {
			return nil, err
		}
		gated = ready < depth
	}

	ceiling := models.PriorityProduct
	if gated {
		ceiling = models.PriorityDiscovery
	}

	item, err := s.queue.ClaimNextReady(ctx, jobID, now, ceiling)
	if err != nil || item != nil {
		return item, err
	}
	if !gated {
		return nil, nil
	}

	inflight, err := s.queue.GetItemsByJob(ctx, jobID, models.QueueStatusSubmitted, 0)
	if err != nil {
		return nil, err
	}
	for _, submitted := range inflight {
		if submitted.IsDiscovery() {
			return nil, nil
		}
	}

	return s.queue.ClaimNextReady(ctx, jobID, now, models.PriorityProduct)
}

// handleIdleQueue decides what an empty claim means: retry-waiting items
// get a recheck kick, a drained queue triggers the completion check.
func (s *Service) handleIdleQueue(ctx context.Context, jobID string) {
	counts, err := s.queue.CountByStatus(ctx, jobID)
	if err != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Msg("Idle queue count failed")
		return
	}
	if counts[models.QueueStatusPending] > 0 {
		s.scheduler.Kick(jobID, retryRecheckSeconds)
		return
	}
	if counts[models.QueueStatusSubmitted] > 0 {
		return
	}
	s.checkCompletion(ctx, jobID)
}
