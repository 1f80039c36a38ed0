package main

import (
	"context"
	"fmt"
	"net/url"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trawler/internal/models"
)

// Response envelopes from the admin API
type startResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type jobListResponse struct {
	Items []*models.CrawlJob `json:"items"`
	Total int                `json:"total"`
}

type cancelResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type productsResponse struct {
	Products []*models.ScoredProduct `json:"products"`
	Count    int                     `json:"count"`
}

type logsResponse struct {
	Logs  []models.JobLogEntry `json:"logs"`
	Count int                  `json:"count"`
	Total int                  `json:"total"`
}

type rulesResponse struct {
	Rules []*models.ExclusionRule `json:"rules"`
	Count int                     `json:"count"`
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

// handleStartCrawl implements the start_crawl tool
func handleStartCrawl(client *apiClient, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		keywords := request.GetStringSlice("keywords", nil)
		if len(keywords) == 0 {
			return textResult("Error: keywords parameter is required"), nil
		}

		config := models.CrawlConfig{
			Name:     request.GetString("name", ""),
			Keywords: keywords,
			PriceMin: request.GetFloat("price_min", 0),
			PriceMax: request.GetFloat("price_max", 0),
		}

		var resp startResponse
		if err := client.postJSON(ctx, "/api/crawl/start", &config, &resp); err != nil {
			logger.Error().Err(err).Msg("Start crawl failed")
			return textResult(fmt.Sprintf("Start crawl error: %v", err)), nil
		}

		return textResult(fmt.Sprintf("Started crawl job `%s`: %s", resp.JobID, resp.Message)), nil
	}
}

// handleListJobs implements the list_crawl_jobs tool
func handleListJobs(client *apiClient, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var resp jobListResponse
		if err := client.getJSON(ctx, "/api/crawl/jobs", &resp); err != nil {
			logger.Error().Err(err).Msg("List jobs failed")
			return textResult(fmt.Sprintf("List jobs error: %v", err)), nil
		}

		return textResult(formatJobList(resp.Items)), nil
	}
}

// handleGetJob implements the get_crawl_job tool
func handleGetJob(client *apiClient, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := request.RequireString("job_id")
		if err != nil || jobID == "" {
			return textResult("Error: job_id parameter is required"), nil
		}

		var job models.CrawlJob
		if err := client.getJSON(ctx, "/api/crawl/"+url.PathEscape(jobID), &job); err != nil {
			logger.Error().Err(err).Str("job_id", jobID).Msg("Get job failed")
			return textResult(fmt.Sprintf("Get job error: %v", err)), nil
		}

		return textResult(formatJob(&job)), nil
	}
}

// handleCancelJob implements the cancel_crawl_job tool
func handleCancelJob(client *apiClient, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := request.RequireString("job_id")
		if err != nil || jobID == "" {
			return textResult("Error: job_id parameter is required"), nil
		}

		var resp cancelResponse
		if err := client.deleteJSON(ctx, "/api/crawl/"+url.PathEscape(jobID), &resp); err != nil {
			logger.Error().Err(err).Str("job_id", jobID).Msg("Cancel job failed")
			return textResult(fmt.Sprintf("Cancel error: %v", err)), nil
		}

		return textResult(fmt.Sprintf("Job `%s` cancelled. %s", resp.JobID, resp.Message)), nil
	}
}

// handleGetProducts implements the get_crawl_products tool
func handleGetProducts(client *apiClient, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := request.RequireString("job_id")
		if err != nil || jobID == "" {
			return textResult("Error: job_id parameter is required"), nil
		}
		limit := request.GetInt("limit", 20)

		path := fmt.Sprintf("/api/crawl/%s/products?limit=%d", url.PathEscape(jobID), limit)
		var resp productsResponse
		if err := client.getJSON(ctx, path, &resp); err != nil {
			logger.Error().Err(err).Str("job_id", jobID).Msg("Get products failed")
			return textResult(fmt.Sprintf("Get products error: %v", err)), nil
		}

		return textResult(formatProducts(jobID, resp.Products)), nil
	}
}

// handleGetReport implements the get_crawl_report tool
func handleGetReport(client *apiClient, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := request.RequireString("job_id")
		if err != nil || jobID == "" {
			return textResult("Error: job_id parameter is required"), nil
		}

		// The report endpoint already renders markdown; pass it through
		markdown, err := client.getText(ctx, "/api/crawl/"+url.PathEscape(jobID)+"/report?format=markdown")
		if err != nil {
			logger.Error().Err(err).Str("job_id", jobID).Msg("Get report failed")
			return textResult(fmt.Sprintf("Get report error: %v", err)), nil
		}

		return textResult(markdown), nil
	}
}

// handleGetLogs implements the get_crawl_logs tool
func handleGetLogs(client *apiClient, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := request.RequireString("job_id")
		if err != nil || jobID == "" {
			return textResult("Error: job_id parameter is required"), nil
		}
		limit := request.GetInt("limit", 100)

		path := fmt.Sprintf("/api/crawl/%s/logs?limit=%d", url.PathEscape(jobID), limit)
		if level := request.GetString("level", ""); level != "" {
			path += "&level=" + url.QueryEscape(level)
		}

		var resp logsResponse
		if err := client.getJSON(ctx, path, &resp); err != nil {
			logger.Error().Err(err).Str("job_id", jobID).Msg("Get logs failed")
			return textResult(fmt.Sprintf("Get logs error: %v", err)), nil
		}

		return textResult(formatLogs(jobID, resp.Logs, resp.Total)), nil
	}
}

// handleListRules implements the list_exclusion_rules tool
func handleListRules(client *apiClient, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var resp rulesResponse
		if err := client.getJSON(ctx, "/api/exclusions", &resp); err != nil {
			logger.Error().Err(err).Msg("List rules failed")
			return textResult(fmt.Sprintf("List rules error: %v", err)), nil
		}

		return textResult(formatRules(resp.Rules)), nil
	}
}

// handleAddRule implements the add_exclusion_rule tool
func handleAddRule(client *apiClient, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ruleType, err := request.RequireString("rule_type")
		if err != nil || ruleType == "" {
			return textResult("Error: rule_type parameter is required"), nil
		}
		value, err := request.RequireString("value")
		if err != nil || value == "" {
			return textResult("Error: value parameter is required"), nil
		}

		body := map[string]string{
			"rule_type": ruleType,
			"value":     value,
			"reason":    request.GetString("reason", ""),
		}

		var rule models.ExclusionRule
		if err := client.postJSON(ctx, "/api/exclusions", body, &rule); err != nil {
			logger.Error().Err(err).Str("rule_type", ruleType).Msg("Add rule failed")
			return textResult(fmt.Sprintf("Add rule error: %v", err)), nil
		}

		return textResult(fmt.Sprintf("Added %s exclusion `%s` (rule %s)", rule.RuleType, rule.Value, rule.ID)), nil
	}
}
