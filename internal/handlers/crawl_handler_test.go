package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ternarybob/trawler/internal/common"
	"github.com/ternarybob/trawler/internal/interfaces"
	"github.com/ternarybob/trawler/internal/models"
	pkgmodels "github.com/ternarybob/trawler/pkg/models"
)

// mockCrawlerService implements interfaces.CrawlerService for testing
type mockCrawlerService struct {
	startCrawlFunc     func(ctx context.Context, config *models.CrawlConfig) (string, int, error)
	getJobFunc         func(ctx context.Context, jobID string) (*models.CrawlJob, error)
	listJobsFunc       func(ctx context.Context) ([]*models.CrawlJob, error)
	cancelJobFunc      func(ctx context.Context, jobID string) error
	deleteJobFunc      func(ctx context.Context, jobID string) error
	processWebhookFunc func(ctx context.Context, payload *pkgmodels.WebhookPayload)
}

func (m *mockCrawlerService) Start(ctx context.Context) error { return nil }

func (m *mockCrawlerService) StartCrawl(ctx context.Context, config *models.CrawlConfig) (string, int, error) {
	if m.startCrawlFunc != nil {
		return m.startCrawlFunc(ctx, config)
	}
	return "", 0, nil
}

func (m *mockCrawlerService) GetJob(ctx context.Context, jobID string) (*models.CrawlJob, error) {
	if m.getJobFunc != nil {
		return m.getJobFunc(ctx, jobID)
	}
	return nil, interfaces.ErrNotFound
}

func (m *mockCrawlerService) ListJobs(ctx context.Context) ([]*models.CrawlJob, error) {
	if m.listJobsFunc != nil {
		return m.listJobsFunc(ctx)
	}
	return nil, nil
}

func (m *mockCrawlerService) CancelJob(ctx context.Context, jobID string) error {
	if m.cancelJobFunc != nil {
		return m.cancelJobFunc(ctx, jobID)
	}
	return nil
}

func (m *mockCrawlerService) DeleteJob(ctx context.Context, jobID string) error {
	if m.deleteJobFunc != nil {
		return m.deleteJobFunc(ctx, jobID)
	}
	return nil
}

func (m *mockCrawlerService) ProcessWebhook(ctx context.Context, payload *pkgmodels.WebhookPayload) {
	if m.processWebhookFunc != nil {
		m.processWebhookFunc(ctx, payload)
	}
}

func (m *mockCrawlerService) Close() error { return nil }

// mockLogService implements interfaces.LogService for testing
type mockLogService struct {
	getLogsFunc        func(ctx context.Context, jobID string, limit int) ([]models.JobLogEntry, error)
	getLogsSinceFunc   func(ctx context.Context, jobID string, offset, limit int) ([]models.JobLogEntry, error)
	getLogsByLevelFunc func(ctx context.Context, jobID, level string, limit int) ([]models.JobLogEntry, error)
	countLogsFunc      func(ctx context.Context, jobID string) (int, error)
}

func (m *mockLogService) Start() error { return nil }
func (m *mockLogService) Stop() error  { return nil }

func (m *mockLogService) AppendLog(ctx context.Context, jobID string, entry models.JobLogEntry) {}

func (m *mockLogService) AppendLogs(ctx context.Context, jobID string, entries []models.JobLogEntry) {
}

func (m *mockLogService) GetLogs(ctx context.Context, jobID string, limit int) ([]models.JobLogEntry, error) {
	if m.getLogsFunc != nil {
		return m.getLogsFunc(ctx, jobID, limit)
	}
	return nil, nil
}

func (m *mockLogService) GetLogsSince(ctx context.Context, jobID string, offset int, limit int) ([]models.JobLogEntry, error) {
	if m.getLogsSinceFunc != nil {
		return m.getLogsSinceFunc(ctx, jobID, offset, limit)
	}
	return nil, nil
}

func (m *mockLogService) GetLogsByLevel(ctx context.Context, jobID string, level string, limit int) ([]models.JobLogEntry, error) {
	if m.getLogsByLevelFunc != nil {
		return m.getLogsByLevelFunc(ctx, jobID, level, limit)
	}
	return nil, nil
}

func (m *mockLogService) CountLogs(ctx context.Context, jobID string) (int, error) {
	if m.countLogsFunc != nil {
		return m.countLogsFunc(ctx, jobID)
	}
	return 0, nil
}

func (m *mockLogService) DeleteLogs(ctx context.Context, jobID string) error { return nil }

// mockEventService implements interfaces.EventService for testing
type mockEventService struct {
	getEventsFunc   func(ctx context.Context, jobID, eventType string, limit int) ([]*models.CrawlEvent, error)
	getTimelineFunc func(ctx context.Context, jobID string) (*models.SubmitTimeline, error)
}

func (m *mockEventService) RecordSubmit(ctx context.Context, item *models.QueueItem, delay time.Duration) {
}

func (m *mockEventService) RecordWebhook(ctx context.Context, item *models.QueueItem, success bool, errMsg string) {
}

func (m *mockEventService) RecordRetry(ctx context.Context, item *models.QueueItem, retryCount int, delay time.Duration, errMsg string) {
}

func (m *mockEventService) RecordFail(ctx context.Context, item *models.QueueItem, totalRetries int, lastError string) {
}

func (m *mockEventService) RecordProductParsed(ctx context.Context, item *models.QueueItem, productID string, passed bool, margin float64) {
}

func (m *mockEventService) RecordSearchParsed(ctx context.Context, item *models.QueueItem, productsFound, totalPages int) {
}

func (m *mockEventService) GetEvents(ctx context.Context, jobID string, eventType string, limit int) ([]*models.CrawlEvent, error) {
	if m.getEventsFunc != nil {
		return m.getEventsFunc(ctx, jobID, eventType, limit)
	}
	return nil, nil
}

func (m *mockEventService) GetTimeline(ctx context.Context, jobID string) (*models.SubmitTimeline, error) {
	if m.getTimelineFunc != nil {
		return m.getTimelineFunc(ctx, jobID)
	}
	return &models.SubmitTimeline{}, nil
}

func (m *mockEventService) DeleteEvents(ctx context.Context, jobID string) error { return nil }

// mockScoringService implements interfaces.ScoringService for testing
type mockScoringService struct {
	topByJobFunc func(ctx context.Context, jobID string, limit int) ([]*models.ScoredProduct, error)
}

func (m *mockScoringService) ScoreProduct(ctx context.Context, jobID string, product *models.ProductRecord, sourceURL string) (*models.ScoredProduct, error) {
	return nil, nil
}

func (m *mockScoringService) TopByJob(ctx context.Context, jobID string, limit int) ([]*models.ScoredProduct, error) {
	if m.topByJobFunc != nil {
		return m.topByJobFunc(ctx, jobID, limit)
	}
	return nil, nil
}

// mockReportService implements interfaces.ReportService for testing
type mockReportService struct {
	generateMarkdownFunc func(ctx context.Context, jobID string) ([]byte, error)
	generatePDFFunc      func(ctx context.Context, jobID string) ([]byte, error)
}

func (m *mockReportService) GenerateMarkdown(ctx context.Context, jobID string) ([]byte, error) {
	if m.generateMarkdownFunc != nil {
		return m.generateMarkdownFunc(ctx, jobID)
	}
	return nil, nil
}

func (m *mockReportService) GeneratePDF(ctx context.Context, jobID string) ([]byte, error) {
	if m.generatePDFFunc != nil {
		return m.generatePDFFunc(ctx, jobID)
	}
	return nil, nil
}

func newCrawlHandler(crawler *mockCrawlerService, scoring *mockScoringService, events *mockEventService, logs *mockLogService, reports *mockReportService) *CrawlHandler {
	if crawler == nil {
		crawler = &mockCrawlerService{}
	}
	if scoring == nil {
		scoring = &mockScoringService{}
	}
	if events == nil {
		events = &mockEventService{}
	}
	if logs == nil {
		logs = &mockLogService{}
	}
	if reports == nil {
		reports = &mockReportService{}
	}
	return NewCrawlHandler(crawler, scoring, events, logs, reports, common.GetLogger())
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return response
}

func TestStartCrawlHandler_Success(t *testing.T) {
	var capturedConfig *models.CrawlConfig
	crawler := &mockCrawlerService{
		startCrawlFunc: func(ctx context.Context, config *models.CrawlConfig) (string, int, error) {
			capturedConfig = config
			return "job42", 2, nil
		},
	}

	handler := newCrawlHandler(crawler, nil, nil, nil, nil)
	body := `{"keywords":["solar lantern","garden gnome"],"price_min":5,"price_max":40}`
	req := httptest.NewRequest("POST", "/api/crawl/start", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handler.StartCrawlHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	if capturedConfig == nil {
		t.Fatal("Expected config to reach the crawler service")
	}
	if len(capturedConfig.Keywords) != 2 {
		t.Errorf("Expected 2 keywords, got %d", len(capturedConfig.Keywords))
	}
	if capturedConfig.PriceMax != 40 {
		t.Errorf("Expected price_max 40, got %v", capturedConfig.PriceMax)
	}

	response := decodeBody(t, rec)
	if response["job_id"] != "job42" {
		t.Errorf("Expected job_id 'job42', got %v", response["job_id"])
	}
	if response["status"] != "running" {
		t.Errorf("Expected status 'running', got %v", response["status"])
	}
	if int(response["search_urls_submitted"].(float64)) != 2 {
		t.Errorf("Expected 2 search URLs submitted, got %v", response["search_urls_submitted"])
	}
	if response["message"] != "Started crawl job with 2 search URLs queued" {
		t.Errorf("Unexpected message: %v", response["message"])
	}
}

func TestStartCrawlHandler_InvalidBody(t *testing.T) {
	called := false
	crawler := &mockCrawlerService{
		startCrawlFunc: func(ctx context.Context, config *models.CrawlConfig) (string, int, error) {
			called = true
			return "", 0, nil
		},
	}

	handler := newCrawlHandler(crawler, nil, nil, nil, nil)
	req := httptest.NewRequest("POST", "/api/crawl/start", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()

	handler.StartCrawlHandler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
	if called {
		t.Error("Expected crawler service to be skipped for malformed body")
	}

	response := decodeBody(t, rec)
	if response["error"] != "Invalid request body" {
		t.Errorf("Unexpected error message: %v", response["error"])
	}
}

func TestStartCrawlHandler_Rejected(t *testing.T) {
	crawler := &mockCrawlerService{
		startCrawlFunc: func(ctx context.Context, config *models.CrawlConfig) (string, int, error) {
			return "", 0, &mockError{msg: "at least one keyword is required"}
		},
	}

	handler := newCrawlHandler(crawler, nil, nil, nil, nil)
	req := httptest.NewRequest("POST", "/api/crawl/start", strings.NewReader(`{"keywords":[]}`))
	rec := httptest.NewRecorder()

	handler.StartCrawlHandler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}

	response := decodeBody(t, rec)
	if response["error"] != "at least one keyword is required" {
		t.Errorf("Expected validation message to pass through, got %v", response["error"])
	}
}

func TestListJobsHandler(t *testing.T) {
	crawler := &mockCrawlerService{
		listJobsFunc: func(ctx context.Context) ([]*models.CrawlJob, error) {
			return []*models.CrawlJob{
				{ID: "job1", Status: models.JobStatusRunning},
				{ID: "job2", Status: models.JobStatusCompleted},
			}, nil
		},
	}

	handler := newCrawlHandler(crawler, nil, nil, nil, nil)
	req := httptest.NewRequest("GET", "/api/crawl/jobs", nil)
	rec := httptest.NewRecorder()

	handler.ListJobsHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	response := decodeBody(t, rec)
	if int(response["total"].(float64)) != 2 {
		t.Errorf("Expected total 2, got %v", response["total"])
	}
	items := response["items"].([]interface{})
	if len(items) != 2 {
		t.Errorf("Expected 2 jobs, got %d", len(items))
	}
}

func TestListJobsHandler_Limit(t *testing.T) {
	crawler := &mockCrawlerService{
		listJobsFunc: func(ctx context.Context) ([]*models.CrawlJob, error) {
			var jobs []*models.CrawlJob
			for i := 0; i < 30; i++ {
				jobs = append(jobs, &models.CrawlJob{ID: fmt.Sprintf("job%d", i)})
			}
			return jobs, nil
		},
	}

	handler := newCrawlHandler(crawler, nil, nil, nil, nil)
	req := httptest.NewRequest("GET", "/api/crawl/jobs", nil)
	rec := httptest.NewRecorder()

	handler.ListJobsHandler(rec, req)

	// The default page keeps the 20 newest; the service already sorts.
	response := decodeBody(t, rec)
	if int(response["total"].(float64)) != 20 {
		t.Errorf("Expected default limit of 20, got %v", response["total"])
	}

	req = httptest.NewRequest("GET", "/api/crawl/jobs?limit=5", nil)
	rec = httptest.NewRecorder()
	handler.ListJobsHandler(rec, req)

	response = decodeBody(t, rec)
	items := response["items"].([]interface{})
	if len(items) != 5 {
		t.Errorf("Expected 5 jobs with limit=5, got %d", len(items))
	}
}

func TestGetJobHandler_Success(t *testing.T) {
	crawler := &mockCrawlerService{
		getJobFunc: func(ctx context.Context, jobID string) (*models.CrawlJob, error) {
			if jobID != "job42" {
				t.Errorf("Expected job id 'job42', got %q", jobID)
			}
			return &models.CrawlJob{
				ID:     jobID,
				Status: models.JobStatusRunning,
				Config: models.CrawlConfig{Keywords: []string{"solar lantern"}},
			}, nil
		},
	}

	handler := newCrawlHandler(crawler, nil, nil, nil, nil)
	req := httptest.NewRequest("GET", "/api/crawl/job42", nil)
	rec := httptest.NewRecorder()

	handler.GetJobHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	response := decodeBody(t, rec)
	if response["id"] != "job42" {
		t.Errorf("Expected id 'job42', got %v", response["id"])
	}
	if response["status"] != "running" {
		t.Errorf("Expected status 'running', got %v", response["status"])
	}
}

func TestGetJobHandler_NotFound(t *testing.T) {
	handler := newCrawlHandler(&mockCrawlerService{}, nil, nil, nil, nil)
	req := httptest.NewRequest("GET", "/api/crawl/nope", nil)
	rec := httptest.NewRecorder()

	handler.GetJobHandler(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rec.Code)
	}

	response := decodeBody(t, rec)
	if response["error"] != "Job not found" {
		t.Errorf("Unexpected error message: %v", response["error"])
	}
}

func TestGetJobHandler_MissingID(t *testing.T) {
	handler := newCrawlHandler(&mockCrawlerService{}, nil, nil, nil, nil)
	req := httptest.NewRequest("GET", "/api/crawl/", nil)
	rec := httptest.NewRecorder()

	handler.GetJobHandler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
}

func TestCancelJobHandler(t *testing.T) {
	var cancelled string
	crawler := &mockCrawlerService{
		cancelJobFunc: func(ctx context.Context, jobID string) error {
			cancelled = jobID
			return nil
		},
	}

	handler := newCrawlHandler(crawler, nil, nil, nil, nil)
	req := httptest.NewRequest("POST", "/api/crawl/job42/cancel", nil)
	rec := httptest.NewRecorder()

	handler.CancelJobHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if cancelled != "job42" {
		t.Errorf("Expected job 'job42' to be cancelled, got %q", cancelled)
	}

	response := decodeBody(t, rec)
	if response["status"] != "cancelled" {
		t.Errorf("Expected status 'cancelled', got %v", response["status"])
	}
}

func TestDeleteJobHandler_NotFound(t *testing.T) {
	crawler := &mockCrawlerService{
		deleteJobFunc: func(ctx context.Context, jobID string) error {
			return interfaces.ErrNotFound
		},
	}

	handler := newCrawlHandler(crawler, nil, nil, nil, nil)
	req := httptest.NewRequest("DELETE", "/api/crawl/gone", nil)
	rec := httptest.NewRecorder()

	handler.DeleteJobHandler(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rec.Code)
	}
}

func existingJobCrawler() *mockCrawlerService {
	return &mockCrawlerService{
		getJobFunc: func(ctx context.Context, jobID string) (*models.CrawlJob, error) {
			return &models.CrawlJob{ID: jobID, Status: models.JobStatusRunning}, nil
		},
	}
}

func TestJobLogsHandler_Defaults(t *testing.T) {
	var capturedLimit int
	logs := &mockLogService{
		getLogsFunc: func(ctx context.Context, jobID string, limit int) ([]models.JobLogEntry, error) {
			capturedLimit = limit
			return []models.JobLogEntry{
				{Level: "info", Message: "Queued search: solar lantern"},
				{Level: "info", Message: "Submitted srch-1"},
			}, nil
		},
		countLogsFunc: func(ctx context.Context, jobID string) (int, error) {
			return 17, nil
		},
	}

	handler := newCrawlHandler(existingJobCrawler(), nil, nil, logs, nil)
	req := httptest.NewRequest("GET", "/api/crawl/job42/logs", nil)
	rec := httptest.NewRecorder()

	handler.JobLogsHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if capturedLimit != 200 {
		t.Errorf("Expected default limit 200, got %d", capturedLimit)
	}

	response := decodeBody(t, rec)
	if int(response["count"].(float64)) != 2 {
		t.Errorf("Expected count 2, got %v", response["count"])
	}
	if int(response["total"].(float64)) != 17 {
		t.Errorf("Expected total 17, got %v", response["total"])
	}
}

func TestJobLogsHandler_LevelFilter(t *testing.T) {
	var capturedLevel string
	logs := &mockLogService{
		getLogsByLevelFunc: func(ctx context.Context, jobID, level string, limit int) ([]models.JobLogEntry, error) {
			capturedLevel = level
			return nil, nil
		},
	}

	handler := newCrawlHandler(existingJobCrawler(), nil, nil, logs, nil)
	req := httptest.NewRequest("GET", "/api/crawl/job42/logs?level=error", nil)
	rec := httptest.NewRecorder()

	handler.JobLogsHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if capturedLevel != "error" {
		t.Errorf("Expected level filter 'error', got %q", capturedLevel)
	}
}

func TestJobLogsHandler_SincePolling(t *testing.T) {
	var capturedOffset int
	logs := &mockLogService{
		getLogsSinceFunc: func(ctx context.Context, jobID string, offset, limit int) ([]models.JobLogEntry, error) {
			capturedOffset = offset
			return nil, nil
		},
	}

	handler := newCrawlHandler(existingJobCrawler(), nil, nil, logs, nil)
	req := httptest.NewRequest("GET", "/api/crawl/job42/logs?since=30", nil)
	rec := httptest.NewRecorder()

	handler.JobLogsHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if capturedOffset != 30 {
		t.Errorf("Expected offset 30, got %d", capturedOffset)
	}
}

func TestJobLogsHandler_UnknownJob(t *testing.T) {
	handler := newCrawlHandler(&mockCrawlerService{}, nil, nil, &mockLogService{}, nil)
	req := httptest.NewRequest("GET", "/api/crawl/nope/logs", nil)
	rec := httptest.NewRecorder()

	handler.JobLogsHandler(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rec.Code)
	}
}

func TestJobEventsHandler(t *testing.T) {
	var capturedType string
	events := &mockEventService{
		getEventsFunc: func(ctx context.Context, jobID, eventType string, limit int) ([]*models.CrawlEvent, error) {
			capturedType = eventType
			return []*models.CrawlEvent{
				{ID: "ev1", JobID: jobID, EventType: models.CrawlEventSubmit},
			}, nil
		},
	}

	handler := newCrawlHandler(nil, nil, events, nil, nil)
	req := httptest.NewRequest("GET", "/api/crawl/job42/events?type=submit", nil)
	rec := httptest.NewRecorder()

	handler.JobEventsHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if capturedType != "submit" {
		t.Errorf("Expected type filter 'submit', got %q", capturedType)
	}

	response := decodeBody(t, rec)
	if int(response["count"].(float64)) != 1 {
		t.Errorf("Expected count 1, got %v", response["count"])
	}
}

func TestJobTimelineHandler(t *testing.T) {
	events := &mockEventService{
		getTimelineFunc: func(ctx context.Context, jobID string) (*models.SubmitTimeline, error) {
			return &models.SubmitTimeline{
				Timeline: []models.TimelineEntry{
					{URL: "https://example.com/search?q=a", GapSeconds: 0},
					{URL: "https://example.com/search?q=b", GapSeconds: 8.4},
				},
				TotalSubmissions: 2,
			}, nil
		},
	}

	handler := newCrawlHandler(nil, nil, events, nil, nil)
	req := httptest.NewRequest("GET", "/api/crawl/job42/timeline", nil)
	rec := httptest.NewRecorder()

	handler.JobTimelineHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	response := decodeBody(t, rec)
	if int(response["total_submissions"].(float64)) != 2 {
		t.Errorf("Expected total_submissions 2, got %v", response["total_submissions"])
	}
	timeline := response["timeline"].([]interface{})
	if len(timeline) != 2 {
		t.Fatalf("Expected 2 timeline entries, got %d", len(timeline))
	}
	second := timeline[1].(map[string]interface{})
	if second["gap_seconds"].(float64) != 8.4 {
		t.Errorf("Expected gap 8.4, got %v", second["gap_seconds"])
	}
}

func TestJobProductsHandler(t *testing.T) {
	var capturedLimit int
	scoring := &mockScoringService{
		topByJobFunc: func(ctx context.Context, jobID string, limit int) ([]*models.ScoredProduct, error) {
			capturedLimit = limit
			return []*models.ScoredProduct{
				{SourceProductID: "p1", Name: "Solar Lantern", PassedFilters: true},
			}, nil
		},
	}

	handler := newCrawlHandler(nil, scoring, nil, nil, nil)
	req := httptest.NewRequest("GET", "/api/crawl/job42/products", nil)
	rec := httptest.NewRecorder()

	handler.JobProductsHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if capturedLimit != 50 {
		t.Errorf("Expected default limit 50, got %d", capturedLimit)
	}

	response := decodeBody(t, rec)
	if int(response["count"].(float64)) != 1 {
		t.Errorf("Expected count 1, got %v", response["count"])
	}
}

func TestJobReportHandler_Markdown(t *testing.T) {
	reports := &mockReportService{
		generateMarkdownFunc: func(ctx context.Context, jobID string) ([]byte, error) {
			return []byte("# Crawl Report: job42\n"), nil
		},
	}

	handler := newCrawlHandler(nil, nil, nil, nil, reports)
	req := httptest.NewRequest("GET", "/api/crawl/job42/report", nil)
	rec := httptest.NewRecorder()

	handler.JobReportHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/markdown; charset=utf-8" {
		t.Errorf("Unexpected content type: %q", ct)
	}
	if !strings.HasPrefix(rec.Body.String(), "# Crawl Report") {
		t.Errorf("Unexpected body: %q", rec.Body.String())
	}
}

func TestJobReportHandler_PDF(t *testing.T) {
	reports := &mockReportService{
		generatePDFFunc: func(ctx context.Context, jobID string) ([]byte, error) {
			return []byte("%PDF-1.3"), nil
		},
	}

	handler := newCrawlHandler(nil, nil, nil, nil, reports)
	req := httptest.NewRequest("GET", "/api/crawl/job42/report?format=pdf", nil)
	rec := httptest.NewRecorder()

	handler.JobReportHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Unexpected content type: %q", ct)
	}
	disposition := rec.Header().Get("Content-Disposition")
	if !strings.Contains(disposition, "crawl-report-job42.pdf") {
		t.Errorf("Unexpected disposition: %q", disposition)
	}
}

func TestJobReportHandler_BadFormat(t *testing.T) {
	handler := newCrawlHandler(nil, nil, nil, nil, &mockReportService{})
	req := httptest.NewRequest("GET", "/api/crawl/job42/report?format=docx", nil)
	rec := httptest.NewRecorder()

	handler.JobReportHandler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
}

func TestJobReportHandler_UnknownJob(t *testing.T) {
	reports := &mockReportService{
		generateMarkdownFunc: func(ctx context.Context, jobID string) ([]byte, error) {
			return nil, interfaces.ErrNotFound
		},
	}

	handler := newCrawlHandler(nil, nil, nil, nil, reports)
	req := httptest.NewRequest("GET", "/api/crawl/nope/report", nil)
	rec := httptest.NewRecorder()

	handler.JobReportHandler(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rec.Code)
	}
}

// mockError implements error for testing
type mockError struct {
	msg string
}

func (e *mockError) Error() string {
	return e.msg
}
