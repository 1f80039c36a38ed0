package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trawler/internal/common"
	"github.com/ternarybob/trawler/internal/interfaces"
	"github.com/ternarybob/trawler/internal/models"
	"github.com/ternarybob/trawler/internal/services/catalog"
)

// Service coordinates crawl jobs end to end: it seeds the queue, paces
// fetcher submissions, consumes webhook results and detects completion.
type Service struct {
	config     *common.Config
	logger     arbor.ILogger
	jobs       interfaces.JobStorage
	queue      interfaces.QueueStorage
	scored     interfaces.ScoredProductStorage
	parser     interfaces.CatalogParser
	fetcher    interfaces.FetcherClient
	exclusions interfaces.ExclusionService
	scoring    interfaces.ScoringService
	events     interfaces.EventService
	logs       interfaces.LogService

	scheduler *pacingScheduler
	sweeper   *sweeper

	selfTestMu      sync.Mutex
	selfTestWaiters map[string]chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ interfaces.CrawlerService = (*Service)(nil)

// NewService creates the crawl coordinator
func NewService(storage interfaces.StorageManager, parser interfaces.CatalogParser, fetcherClient interfaces.FetcherClient, exclusions interfaces.ExclusionService, scoring interfaces.ScoringService, events interfaces.EventService, logs interfaces.LogService, config *common.Config, logger arbor.ILogger) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Service{
		config:          config,
		logger:          logger,
		jobs:            storage.JobStorage(),
		queue:           storage.QueueStorage(),
		scored:          storage.ScoredProductStorage(),
		parser:          parser,
		fetcher:         fetcherClient,
		exclusions:      exclusions,
		scoring:         scoring,
		events:          events,
		logs:            logs,
		selfTestWaiters: make(map[string]chan struct{}),
		ctx:             ctx,
		cancel:          cancel,
	}
	s.scheduler = newPacingScheduler(s)
	s.sweeper = newSweeper(s)

	return s
}

// Start re-arms schedulers for jobs that were running when the process last
// stopped and launches the recovery sweeper. Jobs whose pending items are
// all waiting out retry backoffs are picked up by the sweeper instead.
func (s *Service) Start(ctx context.Context) error {
	if err := s.sweeper.start(); err != nil {
		return fmt.Errorf("failed to start sweeper: %w", err)
	}

	jobIDs, err := s.queue.JobsWithReadyItems(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("failed to list resumable jobs: %w", err)
	}

	resumed := 0
	for _, jobID := range jobIDs {
		job, err := s.jobs.GetJob(ctx, jobID)
		if err != nil {
			s.logger.Warn().Err(err).Str("job_id", jobID).Msg("Skipping resume for unknown job")
			continue
		}
		if job.Status != models.JobStatusRunning {
			continue
		}
		s.scheduler.Kick(jobID, 0)
		resumed++
	}
	if resumed > 0 {
		s.logger.Info().Int("jobs", resumed).Msg("Resumed paced submission for interrupted jobs")
	}

	return nil
}

// StartCrawl validates the config, snapshots it with the persistent
// exclusion rules folded in, seeds one search per keyword and arms the
// scheduler. The first submission goes out without a pacing delay.
func (s *Service) StartCrawl(ctx context.Context, config *models.CrawlConfig) (string, int, error) {
	if config == nil {
		return "", 0, fmt.Errorf("crawl config is required")
	}
	if err := validator.New().Struct(config); err != nil {
		return "", 0, fmt.Errorf("invalid crawl config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return "", 0, err
	}

	snapshot := *config
	if rules, err := s.exclusions.ListRules(ctx); err == nil {
		snapshot.ExcludeWarehouses = mergeRuleValues(snapshot.ExcludeWarehouses, rules, models.RuleTypeCountry, strings.ToUpper)
		snapshot.ExcludeCategories = mergeRuleValues(snapshot.ExcludeCategories, rules, models.RuleTypeCategory, strings.ToLower)
	} else {
		s.logger.Warn().Err(err).Msg("Could not fold exclusion rules into job config")
	}

	jobID := common.NewJobID()
	job := &models.CrawlJob{
		ID:        jobID,
		Status:    models.JobStatusPending,
		Config:    snapshot,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.jobs.SaveJob(ctx, job); err != nil {
		return "", 0, fmt.Errorf("failed to create job: %w", err)
	}

	s.jobLog(ctx, jobID, "INF", fmt.Sprintf("Starting crawl for keywords: %s", strings.Join(snapshot.Keywords, ", ")))

	queued := 0
	for _, keyword := range snapshot.Keywords {
		item := &models.QueueItem{
			ID:       common.NewItemID(),
			JobID:    jobID,
			URL:      catalog.SearchURL(s.config.Crawl.CatalogBaseURL, keyword, 1),
			URLType:  models.URLTypeSearch,
			Keyword:  keyword,
			Priority: models.PriorityDiscovery,
		}
		inserted, err := s.queue.Enqueue(ctx, item)
		if err != nil {
			return "", 0, fmt.Errorf("failed to seed search for %q: %w", keyword, err)
		}
		if !inserted {
			continue
		}
		queued++
		s.jobLog(ctx, jobID, "INF", fmt.Sprintf("Queued search: %s", keyword))
	}
	s.bumpProgress(ctx, jobID, func(p *models.CrawlProgress) {
		p.SearchURLsSubmitted += queued
	})

	if err := s.jobs.UpdateStatus(ctx, jobID, models.JobStatusRunning, ""); err != nil {
		return "", 0, fmt.Errorf("failed to mark job running: %w", err)
	}

	s.jobLog(ctx, jobID, "INF", fmt.Sprintf("Queued %d searches. Starting submissions with %.0f-%.0fs delays.",
		queued, s.config.Crawl.SubmitDelayMinSeconds, s.config.Crawl.SubmitDelayMaxSeconds))
	s.scheduler.Kick(jobID, 0)

	s.logger.Info().Str("job_id", jobID).Int("keywords", len(snapshot.Keywords)).Msg("Crawl started")
	return jobID, queued, nil
}

// GetJob retrieves one job with its config snapshot and progress
func (s *Service) GetJob(ctx context.Context, jobID string) (*models.CrawlJob, error) {
	return s.jobs.GetJob(ctx, jobID)
}

// ListJobs lists jobs newest first
func (s *Service) ListJobs(ctx context.Context) ([]*models.CrawlJob, error) {
	return s.jobs.ListJobs(ctx)
}

// CancelJob stops new submissions immediately. Cancelling a job that is
// already terminal is a no-op. Results still in flight are failed as their
// webhooks arrive.
func (s *Service) CancelJob(ctx context.Context, jobID string) error {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return nil
	}

	s.scheduler.Stop(jobID)
	if err := s.jobs.UpdateStatus(ctx, jobID, models.JobStatusCancelled, ""); err != nil {
		if errors.Is(err, interfaces.ErrStateConflict) {
			return nil
		}
		return fmt.Errorf("failed to cancel job: %w", err)
	}

	s.jobLog(ctx, jobID, "WRN", "Crawl cancelled")
	s.logger.Info().Str("job_id", jobID).Msg("Crawl cancelled")
	return nil
}

// DeleteJob cancels the job if needed and removes its queue items, logs and
// events along with the job itself.
func (s *Service) DeleteJob(ctx context.Context, jobID string) error {
	if err := s.CancelJob(ctx, jobID); err != nil {
		return err
	}

	if err := s.queue.DeleteByJob(ctx, jobID); err != nil {
		return fmt.Errorf("failed to delete queue items: %w", err)
	}
	if err := s.events.DeleteEvents(ctx, jobID); err != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Msg("Could not delete job events")
	}
	if err := s.logs.DeleteLogs(ctx, jobID); err != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Msg("Could not delete job logs")
	}
	if err := s.jobs.DeleteJob(ctx, jobID); err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}

	s.logger.Info().Str("job_id", jobID).Msg("Job deleted")
	return nil
}

// Close stops the sweeper and all schedulers, then waits for in-flight
// webhook processing to drain. The context is cancelled only after the
// drain: offloaded result handlers skip their body when they start under
// a cancelled context, which would strand the wait group.
func (s *Service) Close() error {
	s.sweeper.stop()
	s.scheduler.StopAll()
	s.wg.Wait()
	s.cancel()
	s.logger.Debug().Msg("Crawler service closed")
	return nil
}

// checkCompletion transitions the job to completed once no queue items are
// pending or in flight. Safe to call after every terminal item transition:
// terminal job statuses make the update a no-op.
func (s *Service) checkCompletion(ctx context.Context, jobID string) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Msg("Completion check could not load job")
		return
	}
	if job.Status != models.JobStatusRunning {
		return
	}

	counts, err := s.queue.CountByStatus(ctx, jobID)
	if err != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Msg("Completion check could not count queue")
		return
	}
	if counts[models.QueueStatusPending] > 0 || counts[models.QueueStatusSubmitted] > 0 {
		return
	}

	if err := s.jobs.UpdateStatus(ctx, jobID, models.JobStatusCompleted, ""); err != nil {
		if !errors.Is(err, interfaces.ErrStateConflict) {
			s.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to complete job")
		}
		return
	}
	s.scheduler.Stop(jobID)

	processed := counts[models.QueueStatusCompleted]
	failed := counts[models.QueueStatusFailed]
	s.jobLog(ctx, jobID, "INF", fmt.Sprintf("Crawl completed: %d URLs processed, %d failed", processed, failed))
	s.logger.Info().Str("job_id", jobID).Int("processed", processed).Int("failed", failed).Msg("Crawl completed")
}

// jobLog appends one line to the job's persistent log stream. Timestamps
// are stamped by the log service.
func (s *Service) jobLog(ctx context.Context, jobID, level, message string) {
	s.logs.AppendLog(ctx, jobID, models.JobLogEntry{
		JobID:   jobID,
		Level:   level,
		Message: message,
	})
}

// bumpProgress applies mutate to the job's progress bundle. A lost update
// is logged rather than surfaced: counters are advisory, queue state is
// what drives completion.
func (s *Service) bumpProgress(ctx context.Context, jobID string, mutate func(*models.CrawlProgress)) {
	if err := s.jobs.UpdateProgress(ctx, jobID, mutate); err != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Msg("Progress update failed")
	}
}

// mergeRuleValues folds persistent rule values of one type into a config
// list, normalized and deduplicated, preserving order.
func mergeRuleValues(existing []string, rules []*models.ExclusionRule, ruleType models.RuleType, fold func(string) string) []string {
	seen := make(map[string]bool, len(existing))
	out := make([]string, 0, len(existing))
	add := func(value string) {
		value = fold(strings.TrimSpace(value))
		if value == "" || seen[value] {
			return
		}
		seen[value] = true
		out = append(out, value)
	}

	for _, value := range existing {
		add(value)
	}
	for _, rule := range rules {
		if rule.RuleType == ruleType {
			add(rule.Value)
		}
	}
	return out
}

// keywordDisplay names an item for job logs: the keyword when present,
// otherwise the URL.
func keywordDisplay(item *models.QueueItem) string {
	if item.Keyword != "" {
		return item.Keyword
	}
	return item.URL
}
