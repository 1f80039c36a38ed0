package main

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// createStartCrawlTool returns the start_crawl tool definition
func createStartCrawlTool() mcp.Tool {
	return mcp.NewTool("start_crawl",
		mcp.WithDescription("Start a product discovery crawl for a set of search keywords"),
		mcp.WithArray("keywords",
			mcp.Required(),
			mcp.WithStringItems(),
			mcp.Description("Search keywords, one crawl seed per keyword"),
		),
		mcp.WithString("name",
			mcp.Description("Optional display name for the job"),
		),
		mcp.WithNumber("price_min",
			mcp.Description("Minimum supplier price in USD (default: 0)"),
		),
		mcp.WithNumber("price_max",
			mcp.Description("Maximum supplier price in USD (default: 1000)"),
		),
	)
}

// createListJobsTool returns the list_crawl_jobs tool definition
func createListJobsTool() mcp.Tool {
	return mcp.NewTool("list_crawl_jobs",
		mcp.WithDescription("List recent crawl jobs with status and progress, newest first"),
	)
}

// createGetJobTool returns the get_crawl_job tool definition
func createGetJobTool() mcp.Tool {
	return mcp.NewTool("get_crawl_job",
		mcp.WithDescription("Get one crawl job's status, config snapshot and progress counters"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Crawl job ID (8 hex chars)"),
		),
	)
}

// createCancelJobTool returns the cancel_crawl_job tool definition
func createCancelJobTool() mcp.Tool {
	return mcp.NewTool("cancel_crawl_job",
		mcp.WithDescription("Cancel a running crawl; in-flight fetches drain without new submissions"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Crawl job ID"),
		),
	)
}

// createGetProductsTool returns the get_crawl_products tool definition
func createGetProductsTool() mcp.Tool {
	return mcp.NewTool("get_crawl_products",
		mcp.WithDescription("Get a job's scored products ranked best-first"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Crawl job ID"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum products to return (default: 20)"),
		),
	)
}

// createGetReportTool returns the get_crawl_report tool definition
func createGetReportTool() mcp.Tool {
	return mcp.NewTool("get_crawl_report",
		mcp.WithDescription("Get the full markdown run report for a crawl job (summary, progress, top products, failures)"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Crawl job ID"),
		),
	)
}

// createGetLogsTool returns the get_crawl_logs tool definition
func createGetLogsTool() mcp.Tool {
	return mcp.NewTool("get_crawl_logs",
		mcp.WithDescription("Get a crawl job's log lines"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Crawl job ID"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum lines to return (default: 100)"),
		),
		mcp.WithString("level",
			mcp.Description("Filter to one severity: debug, info, warn, error"),
		),
	)
}

// createListRulesTool returns the list_exclusion_rules tool definition
func createListRulesTool() mcp.Tool {
	return mcp.NewTool("list_exclusion_rules",
		mcp.WithDescription("List persistent exclusion rules applied to every crawl"),
	)
}

// createAddRuleTool returns the add_exclusion_rule tool definition
func createAddRuleTool() mcp.Tool {
	return mcp.NewTool("add_exclusion_rule",
		mcp.WithDescription("Add a persistent exclusion rule; it takes effect on the next product parsed"),
		mcp.WithString("rule_type",
			mcp.Required(),
			mcp.Description("Rule type: country, category, supplier or keyword"),
		),
		mcp.WithString("value",
			mcp.Required(),
			mcp.Description("Value to exclude (e.g. CN for country, electronics for category)"),
		),
		mcp.WithString("reason",
			mcp.Description("Why the rule exists"),
		),
	)
}
