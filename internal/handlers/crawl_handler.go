package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/trawler/internal/interfaces"
	"github.com/ternarybob/trawler/internal/models"
)

// CrawlHandler serves the crawl job API: start, inspect, cancel and delete,
// plus the per-job logs, events, timeline, scored products and report export.
type CrawlHandler struct {
	crawler interfaces.CrawlerService
	scoring interfaces.ScoringService
	events  interfaces.EventService
	logs    interfaces.LogService
	reports interfaces.ReportService
	logger  arbor.ILogger
}

// NewCrawlHandler creates a new crawl API handler
func NewCrawlHandler(crawler interfaces.CrawlerService, scoring interfaces.ScoringService, events interfaces.EventService, logs interfaces.LogService, reports interfaces.ReportService, logger arbor.ILogger) *CrawlHandler {
	return &CrawlHandler{
		crawler: crawler,
		scoring: scoring,
		events:  events,
		logs:    logs,
		reports: reports,
		logger:  logger,
	}
}

// crawlJobID extracts the job id segment from /api/crawl/{id}[/suffix] paths
func crawlJobID(r *http.Request) string {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 3 {
		return ""
	}
	return parts[2]
}

// queryInt parses an integer query parameter, falling back to def
func queryInt(r *http.Request, name string, def int) int {
	if raw := r.URL.Query().Get(name); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			return parsed
		}
	}
	return def
}

// StartCrawlHandler launches a new crawl job
// POST /api/crawl/start
func (h *CrawlHandler) StartCrawlHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var config models.CrawlConfig
	if r.Body != nil {
		defer r.Body.Close()
	}
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	jobID, queued, err := h.crawler.StartCrawl(r.Context(), &config)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Crawl start rejected")
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":                jobID,
		"status":                "running",
		"message":               fmt.Sprintf("Started crawl job with %d search URLs queued", queued),
		"search_urls_submitted": queued,
	})
}

// ListJobsHandler returns recent crawl jobs, newest first
// GET /api/crawl/jobs?limit=20
func (h *CrawlHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	limit := queryInt(r, "limit", 20)
	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}

	jobs, err := h.crawler.ListJobs(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list crawl jobs")
		http.Error(w, "Failed to list jobs", http.StatusInternalServerError)
		return
	}
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"items": jobs,
		"total": len(jobs),
	})
}

// GetJobHandler returns one job with its config snapshot and progress
// GET /api/crawl/{id}
func (h *CrawlHandler) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	jobID := crawlJobID(r)
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	job, err := h.crawler.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		http.Error(w, "Failed to get job", http.StatusInternalServerError)
		return
	}

	WriteJSON(w, http.StatusOK, job)
}

// CancelJobHandler stops new submissions for a running job. Cancelling a
// job that already reached a terminal state is a no-op.
// DELETE /api/crawl/{id} (also POST /api/crawl/{id}/cancel)
func (h *CrawlHandler) CancelJobHandler(w http.ResponseWriter, r *http.Request) {
	jobID := crawlJobID(r)
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	if err := h.crawler.CancelJob(r.Context(), jobID); err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to cancel job")
		http.Error(w, "Failed to cancel job", http.StatusInternalServerError)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":  jobID,
		"status":  "cancelled",
		"message": "Crawl cancelled. Results in flight will drain.",
	})
}

// DeleteJobHandler removes a job and everything recorded under it
// DELETE /api/crawl/{id}?purge=true
func (h *CrawlHandler) DeleteJobHandler(w http.ResponseWriter, r *http.Request) {
	jobID := crawlJobID(r)
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	if err := h.crawler.DeleteJob(r.Context(), jobID); err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to delete job")
		http.Error(w, "Failed to delete job", http.StatusInternalServerError)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":  jobID,
		"message": "Job deleted",
	})
}

// JobLogsHandler returns the job's log stream. since offsets into the
// stream for incremental polling; level filters to one severity.
// GET /api/crawl/{id}/logs?since=0&level=error&limit=200
func (h *CrawlHandler) JobLogsHandler(w http.ResponseWriter, r *http.Request) {
	jobID := crawlJobID(r)
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	ctx := r.Context()
	if _, err := h.crawler.GetJob(ctx, jobID); err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job for logs")
		http.Error(w, "Failed to get logs", http.StatusInternalServerError)
		return
	}

	limit := queryInt(r, "limit", 200)
	level := r.URL.Query().Get("level")
	since := queryInt(r, "since", -1)

	var entries []models.JobLogEntry
	var err error
	switch {
	case level != "":
		entries, err = h.logs.GetLogsByLevel(ctx, jobID, level, limit)
	case since >= 0:
		entries, err = h.logs.GetLogsSince(ctx, jobID, since, limit)
	default:
		entries, err = h.logs.GetLogs(ctx, jobID, limit)
	}
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to read job logs")
		http.Error(w, "Failed to get logs", http.StatusInternalServerError)
		return
	}

	total, err := h.logs.CountLogs(ctx, jobID)
	if err != nil {
		h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to count job logs")
		total = len(entries)
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"job_id": jobID,
		"logs":   entries,
		"count":  len(entries),
		"total":  total,
	})
}

// JobEventsHandler returns recorded crawl events, newest first
// GET /api/crawl/{id}/events?type=submit&limit=100
func (h *CrawlHandler) JobEventsHandler(w http.ResponseWriter, r *http.Request) {
	jobID := crawlJobID(r)
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	eventType := r.URL.Query().Get("type")
	limit := queryInt(r, "limit", 100)

	events, err := h.events.GetEvents(r.Context(), jobID, eventType, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to read crawl events")
		http.Error(w, "Failed to get events", http.StatusInternalServerError)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"job_id": jobID,
		"events": events,
		"count":  len(events),
	})
}

// JobTimelineHandler reconstructs the submission pacing timeline
// GET /api/crawl/{id}/timeline
func (h *CrawlHandler) JobTimelineHandler(w http.ResponseWriter, r *http.Request) {
	jobID := crawlJobID(r)
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	timeline, err := h.events.GetTimeline(r.Context(), jobID)
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to build submit timeline")
		http.Error(w, "Failed to get timeline", http.StatusInternalServerError)
		return
	}

	WriteJSON(w, http.StatusOK, timeline)
}

// JobProductsHandler returns the job's top scored products
// GET /api/crawl/{id}/products?limit=50
func (h *CrawlHandler) JobProductsHandler(w http.ResponseWriter, r *http.Request) {
	jobID := crawlJobID(r)
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	limit := queryInt(r, "limit", 50)
	products, err := h.scoring.TopByJob(r.Context(), jobID, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to read scored products")
		http.Error(w, "Failed to get products", http.StatusInternalServerError)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":   jobID,
		"products": products,
		"count":    len(products),
	})
}

// JobReportHandler exports the crawl report
// GET /api/crawl/{id}/report?format=markdown|pdf
func (h *CrawlHandler) JobReportHandler(w http.ResponseWriter, r *http.Request) {
	jobID := crawlJobID(r)
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "markdown"
	}

	var (
		data        []byte
		err         error
		contentType string
	)
	switch format {
	case "markdown":
		data, err = h.reports.GenerateMarkdown(r.Context(), jobID)
		contentType = "text/markdown; charset=utf-8"
	case "pdf":
		data, err = h.reports.GeneratePDF(r.Context(), jobID)
		contentType = "application/pdf"
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "crawl-report-"+jobID+".pdf"))
	default:
		WriteError(w, http.StatusBadRequest, "format must be markdown or pdf")
		return
	}
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Str("format", format).Msg("Failed to generate report")
		http.Error(w, "Failed to generate report", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
