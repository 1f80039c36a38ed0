package crawler

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/trawler/internal/common"
	"github.com/ternarybob/trawler/internal/interfaces"
	"github.com/ternarybob/trawler/internal/models"
	"github.com/ternarybob/trawler/internal/services/fetcher"
	pkgmodels "github.com/ternarybob/trawler/pkg/models"
)

func postIDFor(item *models.QueueItem) string {
	return fetcher.FormatPostID(item.JobID, string(item.URLType), item.ID)
}

// In-memory doubles for the crawler's dependencies. The queue and job
// doubles keep the same transition guards as the SQLite stores so tests
// exercise the real state machine, not a looser one.

type memJobStorage struct {
	mu   sync.Mutex
	jobs map[string]*models.CrawlJob
}

func newMemJobStorage() *memJobStorage {
	return &memJobStorage{jobs: make(map[string]*models.CrawlJob)}
}

func (m *memJobStorage) SaveJob(_ context.Context, job *models.CrawlJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *job
	m.jobs[job.ID] = &clone
	return nil
}

func (m *memJobStorage) GetJob(_ context.Context, jobID string) (*models.CrawlJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	clone := *job
	return &clone, nil
}

func (m *memJobStorage) ListJobs(_ context.Context) ([]*models.CrawlJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	jobs := make([]*models.CrawlJob, 0, len(m.jobs))
	for _, job := range m.jobs {
		clone := *job
		jobs = append(jobs, &clone)
	}
	return jobs, nil
}

func (m *memJobStorage) UpdateStatus(_ context.Context, jobID string, status models.JobStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return interfaces.ErrNotFound
	}
	if job.Status.IsTerminal() {
		return interfaces.ErrStateConflict
	}
	job.Status = status
	job.Error = errMsg
	now := time.Now()
	if status == models.JobStatusRunning && job.StartedAt.IsZero() {
		job.StartedAt = now
	}
	if status.IsTerminal() {
		job.CompletedAt = now
	}
	return nil
}

func (m *memJobStorage) UpdateProgress(_ context.Context, jobID string, mutate func(*models.CrawlProgress)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return interfaces.ErrNotFound
	}
	mutate(&job.Progress)
	return nil
}

func (m *memJobStorage) DeleteJob(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[jobID]; !ok {
		return interfaces.ErrNotFound
	}
	delete(m.jobs, jobID)
	return nil
}

func (m *memJobStorage) CountJobs(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs), nil
}

type memQueueStorage struct {
	mu    sync.Mutex
	items map[string]*models.QueueItem
}

func newMemQueueStorage() *memQueueStorage {
	return &memQueueStorage{items: make(map[string]*models.QueueItem)}
}

func (m *memQueueStorage) Enqueue(_ context.Context, item *models.QueueItem) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.items {
		if existing.JobID == item.JobID && existing.URL == item.URL {
			return false, nil
		}
	}
	clone := *item
	if clone.Status == "" {
		clone.Status = models.QueueStatusPending
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	m.items[clone.ID] = &clone
	return true, nil
}

func (m *memQueueStorage) ClaimNextReady(_ context.Context, jobID string, now time.Time, maxPriority int) (*models.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *models.QueueItem
	for _, item := range m.items {
		if item.JobID != jobID || item.Status != models.QueueStatusPending {
			continue
		}
		if item.NextAttemptAt != nil && item.NextAttemptAt.After(now) {
			continue
		}
		if item.Priority > maxPriority {
			continue
		}
		if best == nil || item.Priority < best.Priority {
			best = item
		}
	}
	if best == nil {
		return nil, nil
	}
	best.Status = models.QueueStatusSubmitted
	submittedAt := now
	best.SubmittedAt = &submittedAt
	clone := *best
	return &clone, nil
}

func (m *memQueueStorage) transition(itemID string, from, to models.QueueStatus, apply func(*models.QueueItem)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[itemID]
	if !ok {
		return interfaces.ErrNotFound
	}
	if item.Status != from {
		return interfaces.ErrStateConflict
	}
	item.Status = to
	apply(item)
	return nil
}

func (m *memQueueStorage) MarkCompleted(_ context.Context, itemID string, at time.Time) error {
	return m.transition(itemID, models.QueueStatusSubmitted, models.QueueStatusCompleted, func(item *models.QueueItem) {
		completedAt := at
		item.CompletedAt = &completedAt
	})
}

func (m *memQueueStorage) ScheduleRetry(_ context.Context, itemID string, nextAttempt time.Time, errMsg string) error {
	return m.transition(itemID, models.QueueStatusSubmitted, models.QueueStatusPending, func(item *models.QueueItem) {
		attempt := nextAttempt
		item.RetryCount++
		item.NextAttemptAt = &attempt
		item.SubmittedAt = nil
		item.ErrorMessage = errMsg
	})
}

func (m *memQueueStorage) MarkFailed(_ context.Context, itemID string, at time.Time, errMsg string) error {
	return m.transition(itemID, models.QueueStatusSubmitted, models.QueueStatusFailed, func(item *models.QueueItem) {
		failedAt := at
		item.CompletedAt = &failedAt
		item.ErrorMessage = errMsg
	})
}

func (m *memQueueStorage) GetItem(_ context.Context, itemID string) (*models.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[itemID]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	clone := *item
	return &clone, nil
}

func (m *memQueueStorage) GetItemsByJob(_ context.Context, jobID string, status models.QueueStatus, limit int) ([]*models.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []*models.QueueItem
	for _, item := range m.items {
		if item.JobID != jobID {
			continue
		}
		if status != "" && item.Status != status {
			continue
		}
		clone := *item
		items = append(items, &clone)
		if limit > 0 && len(items) >= limit {
			break
		}
	}
	return items, nil
}

func (m *memQueueStorage) CountByStatus(_ context.Context, jobID string) (map[models.QueueStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[models.QueueStatus]int)
	for _, item := range m.items {
		if item.JobID == jobID {
			counts[item.Status]++
		}
	}
	return counts, nil
}

func (m *memQueueStorage) CountReady(_ context.Context, jobID string, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ready := 0
	for _, item := range m.items {
		if item.JobID != jobID || item.Status != models.QueueStatusPending {
			continue
		}
		if item.NextAttemptAt != nil && item.NextAttemptAt.After(now) {
			continue
		}
		ready++
	}
	return ready, nil
}

func (m *memQueueStorage) StaleSubmitted(_ context.Context, olderThan time.Time) ([]*models.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []*models.QueueItem
	for _, item := range m.items {
		if item.Status != models.QueueStatusSubmitted || item.SubmittedAt == nil {
			continue
		}
		if item.SubmittedAt.After(olderThan) {
			continue
		}
		clone := *item
		items = append(items, &clone)
	}
	return items, nil
}

func (m *memQueueStorage) JobsWithReadyItems(_ context.Context, now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool)
	var jobIDs []string
	for _, item := range m.items {
		if item.Status != models.QueueStatusPending || seen[item.JobID] {
			continue
		}
		if item.NextAttemptAt != nil && item.NextAttemptAt.After(now) {
			continue
		}
		seen[item.JobID] = true
		jobIDs = append(jobIDs, item.JobID)
	}
	return jobIDs, nil
}

func (m *memQueueStorage) DeleteByJob(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, item := range m.items {
		if item.JobID == jobID {
			delete(m.items, id)
		}
	}
	return nil
}

// resubmit forces an item back to submitted, as if the scheduler had
// claimed it after its backoff elapsed.
func (m *memQueueStorage) resubmit(itemID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.items[itemID]; ok {
		now := time.Now()
		item.Status = models.QueueStatusSubmitted
		item.SubmittedAt = &now
		item.NextAttemptAt = nil
	}
}

// byType returns the job's items of one URL type, any status.
func (m *memQueueStorage) byType(jobID string, urlType models.URLType) []*models.QueueItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []*models.QueueItem
	for _, item := range m.items {
		if item.JobID == jobID && item.URLType == urlType {
			clone := *item
			items = append(items, &clone)
		}
	}
	return items
}

type memScoredStorage struct {
	mu   sync.Mutex
	rows map[string]*models.ScoredProduct
}

func newMemScoredStorage() *memScoredStorage {
	return &memScoredStorage{rows: make(map[string]*models.ScoredProduct)}
}

func (m *memScoredStorage) Exists(_ context.Context, sourceProductID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rows[sourceProductID]
	return ok, nil
}

func (m *memScoredStorage) FilterExisting(_ context.Context, sourceProductIDs []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := make(map[string]bool)
	for _, id := range sourceProductIDs {
		if _, ok := m.rows[id]; ok {
			existing[id] = true
		}
	}
	return existing, nil
}

func (m *memScoredStorage) SaveScore(_ context.Context, score *models.ScoredProduct) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *score
	m.rows[score.SourceProductID] = &clone
	return nil
}

func (m *memScoredStorage) GetBySourceID(_ context.Context, sourceProductID string) (*models.ScoredProduct, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[sourceProductID]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	clone := *row
	return &clone, nil
}

func (m *memScoredStorage) ListByJob(_ context.Context, jobID string, limit int) ([]*models.ScoredProduct, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []*models.ScoredProduct
	for _, row := range m.rows {
		if row.CrawlJobID != jobID {
			continue
		}
		clone := *row
		rows = append(rows, &clone)
		if limit > 0 && len(rows) >= limit {
			break
		}
	}
	return rows, nil
}

func (m *memScoredStorage) CountByJob(_ context.Context, jobID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, row := range m.rows {
		if row.CrawlJobID == jobID {
			count++
		}
	}
	return count, nil
}

type memStorageManager struct {
	jobs   *memJobStorage
	queue  *memQueueStorage
	scored *memScoredStorage
}

func (m *memStorageManager) JobStorage() interfaces.JobStorage                   { return m.jobs }
func (m *memStorageManager) QueueStorage() interfaces.QueueStorage               { return m.queue }
func (m *memStorageManager) ExclusionStorage() interfaces.ExclusionStorage       { return nil }
func (m *memStorageManager) ScoredProductStorage() interfaces.ScoredProductStorage {
	return m.scored
}
func (m *memStorageManager) JobLogStorage() interfaces.JobLogStorage { return nil }
func (m *memStorageManager) EventStorage() interfaces.EventStorage   { return nil }
func (m *memStorageManager) Close() error                            { return nil }

type fakeParser struct {
	mu        sync.Mutex
	searchFn  func(pageURL string) (*models.SearchResult, error)
	productFn func(pageURL string) (*models.ProductRecord, error)
	calls     int
}

func (f *fakeParser) ParseSearch(_ []byte, pageURL string) (*models.SearchResult, error) {
	f.mu.Lock()
	f.calls++
	fn := f.searchFn
	f.mu.Unlock()
	if fn == nil {
		return &models.SearchResult{CurrentPage: 1, TotalPages: 1}, nil
	}
	return fn(pageURL)
}

func (f *fakeParser) ParseProduct(_ []byte, pageURL string) (*models.ProductRecord, error) {
	f.mu.Lock()
	f.calls++
	fn := f.productFn
	f.mu.Unlock()
	if fn == nil {
		return &models.ProductRecord{ID: "prod", Name: "Product"}, nil
	}
	return fn(pageURL)
}

func (f *fakeParser) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type submitCall struct {
	url    string
	postID string
}

type fakeFetcher struct {
	mu          sync.Mutex
	submits     []submitCall
	submitErr   error
	downloads   map[string][]byte
	downloadErr error
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{downloads: make(map[string][]byte)}
}

func (f *fakeFetcher) Submit(_ context.Context, url string, postID string) (*pkgmodels.SubmitResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submits = append(f.submits, submitCall{url: url, postID: postID})
	return &pkgmodels.SubmitResponse{RequestID: "req", Status: "queued"}, nil
}

func (f *fakeFetcher) Download(_ context.Context, resourceURL string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	if body, ok := f.downloads[resourceURL]; ok {
		return body, nil
	}
	return []byte("<html></html>"), nil
}

func (f *fakeFetcher) WebhookURL() string { return "http://localhost:8765/api/crawl/webhook" }

func (f *fakeFetcher) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submits)
}

func (f *fakeFetcher) lastSubmit() submitCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.submits) == 0 {
		return submitCall{}
	}
	return f.submits[len(f.submits)-1]
}

type fakeExclusions struct {
	mu        sync.Mutex
	admit     bool
	reasons   []string
	rules     []*models.ExclusionRule
	refreshes int
}

func (f *fakeExclusions) Admit(_ *models.ProductRecord, _ *models.CrawlConfig) (bool, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.admit, f.reasons
}

func (f *fakeExclusions) AddRule(_ context.Context, _ *models.ExclusionRule) error { return nil }
func (f *fakeExclusions) DeleteRule(_ context.Context, _ string) error             { return nil }

func (f *fakeExclusions) ListRules(_ context.Context) ([]*models.ExclusionRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rules, nil
}

func (f *fakeExclusions) ListRulesByType(_ context.Context, ruleType models.RuleType) ([]*models.ExclusionRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []*models.ExclusionRule
	for _, rule := range f.rules {
		if rule.RuleType == ruleType {
			matched = append(matched, rule)
		}
	}
	return matched, nil
}

func (f *fakeExclusions) GroupedRules(_ context.Context) (map[string][]*models.ExclusionRule, error) {
	return nil, nil
}

func (f *fakeExclusions) Refresh(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return nil
}

type fakeScoring struct {
	mu      sync.Mutex
	scoreFn func(jobID string, product *models.ProductRecord) (*models.ScoredProduct, error)
	calls   int
}

func (f *fakeScoring) ScoreProduct(_ context.Context, jobID string, product *models.ProductRecord, sourceURL string) (*models.ScoredProduct, error) {
	f.mu.Lock()
	f.calls++
	fn := f.scoreFn
	f.mu.Unlock()
	if fn == nil {
		return &models.ScoredProduct{
			SourceProductID: product.ID,
			Name:            product.Name,
			CrawlJobID:      jobID,
			SourceURL:       sourceURL,
			PassedFilters:   true,
			GrossMargin:     0.5,
		}, nil
	}
	return fn(jobID, product)
}

func (f *fakeScoring) TopByJob(_ context.Context, _ string, _ int) ([]*models.ScoredProduct, error) {
	return nil, nil
}

func (f *fakeScoring) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeEvents struct {
	mu       sync.Mutex
	submits  int
	webhooks int
	retries  []time.Duration
	fails    int
	products int
	searches int
	deleted  []string
}

func (f *fakeEvents) RecordSubmit(_ context.Context, _ *models.QueueItem, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
}

func (f *fakeEvents) RecordWebhook(_ context.Context, _ *models.QueueItem, _ bool, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.webhooks++
}

func (f *fakeEvents) RecordRetry(_ context.Context, _ *models.QueueItem, _ int, delay time.Duration, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retries = append(f.retries, delay)
}

func (f *fakeEvents) RecordFail(_ context.Context, _ *models.QueueItem, _ int, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fails++
}

func (f *fakeEvents) RecordProductParsed(_ context.Context, _ *models.QueueItem, _ string, _ bool, _ float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.products++
}

func (f *fakeEvents) RecordSearchParsed(_ context.Context, _ *models.QueueItem, _ int, _ int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches++
}

func (f *fakeEvents) GetEvents(_ context.Context, _ string, _ string, _ int) ([]*models.CrawlEvent, error) {
	return nil, nil
}

func (f *fakeEvents) GetTimeline(_ context.Context, _ string) (*models.SubmitTimeline, error) {
	return nil, nil
}

func (f *fakeEvents) DeleteEvents(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, jobID)
	return nil
}

func (f *fakeEvents) counts() (submits, webhooks, retries, fails, products, searches int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits, f.webhooks, len(f.retries), f.fails, f.products, f.searches
}

type fakeLogs struct {
	mu      sync.Mutex
	entries map[string][]models.JobLogEntry
	deleted []string
}

func newFakeLogs() *fakeLogs {
	return &fakeLogs{entries: make(map[string][]models.JobLogEntry)}
}

func (f *fakeLogs) Start() error { return nil }
func (f *fakeLogs) Stop() error  { return nil }

func (f *fakeLogs) AppendLog(_ context.Context, jobID string, entry models.JobLogEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[jobID] = append(f.entries[jobID], entry)
}

func (f *fakeLogs) AppendLogs(_ context.Context, jobID string, entries []models.JobLogEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[jobID] = append(f.entries[jobID], entries...)
}

func (f *fakeLogs) GetLogs(_ context.Context, jobID string, _ int) ([]models.JobLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[jobID], nil
}

func (f *fakeLogs) GetLogsSince(_ context.Context, jobID string, _ int, _ int) ([]models.JobLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[jobID], nil
}

func (f *fakeLogs) GetLogsByLevel(_ context.Context, jobID string, _ string, _ int) ([]models.JobLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[jobID], nil
}

func (f *fakeLogs) CountLogs(_ context.Context, jobID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries[jobID]), nil
}

func (f *fakeLogs) DeleteLogs(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, jobID)
	f.deleted = append(f.deleted, jobID)
	return nil
}

// hasMessage reports whether any log line for the job contains substr.
func (f *fakeLogs) hasMessage(jobID, substr string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, entry := range f.entries[jobID] {
		if strings.Contains(entry.Message, substr) {
			return true
		}
	}
	return false
}

// harness bundles a service wired to in-memory doubles. Pacing delays are
// set to an hour so background-armed timers never fire mid-test; tests that
// want a submission drive it synchronously or kick with a zero hint.
type harness struct {
	svc        *Service
	jobs       *memJobStorage
	queue      *memQueueStorage
	scored     *memScoredStorage
	parser     *fakeParser
	fetcher    *fakeFetcher
	exclusions *fakeExclusions
	scoring    *fakeScoring
	events     *fakeEvents
	logs       *fakeLogs
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	config := common.NewDefaultConfig()
	config.Crawl.CatalogBaseURL = "https://catalog.test"
	config.Crawl.SubmitDelayMinSeconds = 3600
	config.Crawl.SubmitDelayMaxSeconds = 3600

	h := &harness{
		jobs:       newMemJobStorage(),
		queue:      newMemQueueStorage(),
		scored:     newMemScoredStorage(),
		parser:     &fakeParser{},
		fetcher:    newFakeFetcher(),
		exclusions: &fakeExclusions{admit: true},
		scoring:    &fakeScoring{},
		events:     &fakeEvents{},
		logs:       newFakeLogs(),
	}
	storage := &memStorageManager{jobs: h.jobs, queue: h.queue, scored: h.scored}
	h.svc = NewService(storage, h.parser, h.fetcher, h.exclusions, h.scoring, h.events, h.logs, config, common.GetLogger())
	t.Cleanup(func() { _ = h.svc.Close() })
	return h
}

func (h *harness) seedJob(t *testing.T, id string, status models.JobStatus) *models.CrawlJob {
	t.Helper()
	job := &models.CrawlJob{
		ID:        id,
		Status:    status,
		Config:    models.CrawlConfig{Keywords: []string{"solar lantern"}},
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, h.jobs.SaveJob(context.Background(), job))
	return job
}

func (h *harness) seedItem(t *testing.T, item *models.QueueItem) *models.QueueItem {
	t.Helper()
	if item.ID == "" {
		item.ID = common.NewItemID()
	}
	if item.Status == models.QueueStatusSubmitted && item.SubmittedAt == nil {
		now := time.Now()
		item.SubmittedAt = &now
	}
	inserted, err := h.queue.Enqueue(context.Background(), item)
	require.NoError(t, err)
	require.True(t, inserted)
	return item
}

func (h *harness) getItem(t *testing.T, itemID string) *models.QueueItem {
	t.Helper()
	item, err := h.queue.GetItem(context.Background(), itemID)
	require.NoError(t, err)
	return item
}

func (h *harness) getJob(t *testing.T, jobID string) *models.CrawlJob {
	t.Helper()
	job, err := h.jobs.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	return job
}

// webhookFor builds a single-result payload correlated to item. payloadURL
// is where the fetcher says the rendered page can be downloaded from.
func webhookFor(item *models.QueueItem, success bool, payloadURL, errMsg string) *pkgmodels.WebhookPayload {
	return &pkgmodels.WebhookPayload{
		Status: "completed",
		Results: []pkgmodels.WebhookResult{
			{
				Success: success,
				URL:     item.URL,
				HTML:    payloadURL,
				PostID:  postIDFor(item),
				Error:   errMsg,
			},
		},
	}
}
