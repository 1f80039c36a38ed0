package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route (live logs, events and progress)
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Crawl jobs
	// POST start, POST webhook, GET jobs; /{id} plus subresources below
	mux.HandleFunc("/api/crawl/start", s.app.CrawlHandler.StartCrawlHandler)
	mux.HandleFunc("/api/crawl/webhook", s.app.WebhookHandler.ReceiveHandler)
	mux.HandleFunc("/api/crawl/jobs", s.app.CrawlHandler.ListJobsHandler)
	mux.HandleFunc("/api/crawl/", s.handleCrawlRoutes)

	// API routes - Exclusion rules
	mux.HandleFunc("/api/exclusions", s.handleExclusionsRoute)
	mux.HandleFunc("/api/exclusions/grouped", s.app.ExclusionHandler.GroupedRulesHandler)
	mux.HandleFunc("/api/exclusions/", s.handleExclusionRoutes)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleCrawlRoutes routes /api/crawl/{id} requests and their subresources
func (s *Server) handleCrawlRoutes(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	// POST /api/crawl/{id}/cancel
	if r.Method == "POST" && strings.HasSuffix(path, "/cancel") {
		s.app.CrawlHandler.CancelJobHandler(w, r)
		return
	}

	if r.Method == "GET" {
		matched := RouteByPathSuffix(w, r, "/api/crawl/", []PathSuffixRouter{
			{Suffix: "/logs", Handler: s.app.CrawlHandler.JobLogsHandler},
			{Suffix: "/events", Handler: s.app.CrawlHandler.JobEventsHandler},
			{Suffix: "/timeline", Handler: s.app.CrawlHandler.JobTimelineHandler},
			{Suffix: "/products", Handler: s.app.CrawlHandler.JobProductsHandler},
			{Suffix: "/report", Handler: s.app.CrawlHandler.JobReportHandler},
		})
		if matched {
			return
		}
		// GET /api/crawl/{id}
		s.app.CrawlHandler.GetJobHandler(w, r)
		return
	}

	// DELETE /api/crawl/{id} cancels the job; ?purge=true also removes the
	// job record and everything stored under it
	if r.Method == "DELETE" {
		if r.URL.Query().Get("purge") == "true" {
			s.app.CrawlHandler.DeleteJobHandler(w, r)
			return
		}
		s.app.CrawlHandler.CancelJobHandler(w, r)
		return
	}

	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}

// handleExclusionsRoute routes /api/exclusions requests (list and create)
func (s *Server) handleExclusionsRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r, s.app.ExclusionHandler.ListRulesHandler, s.app.ExclusionHandler.AddRuleHandler)
}

// handleExclusionRoutes routes /api/exclusions/{id} requests
func (s *Server) handleExclusionRoutes(w http.ResponseWriter, r *http.Request) {
	RouteByMethod(w, r, MethodRouter{
		"DELETE": s.app.ExclusionHandler.DeleteRuleHandler,
	})
}
