package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	arbor_models "github.com/ternarybob/arbor/models"

	"github.com/ternarybob/trawler/internal/common"
)

func main() {
	// Resolve the server address: explicit URL, else config file, else defaults
	baseURL := os.Getenv("TRAWLER_URL")
	if baseURL == "" {
		configPath := os.Getenv("TRAWLER_CONFIG")
		if configPath == "" {
			configPath = "trawler.toml"
		}

		config := common.NewDefaultConfig()
		if _, err := os.Stat(configPath); err == nil {
			config, err = common.LoadFromFile(configPath)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
				os.Exit(1)
			}
		}
		baseURL = fmt.Sprintf("http://%s:%d", config.Server.Host, config.Server.Port)
	}

	// Minimal logging to avoid cluttering MCP stdio
	logger := arbor.NewLogger().WithConsoleWriter(arbor_models.WriterConfiguration{
		Type:             arbor_models.LogWriterTypeConsole,
		TimeFormat:       "15:04:05",
		DisableTimestamp: false,
	}).WithLevelFromString("warn")

	client := newAPIClient(baseURL)

	mcpServer := server.NewMCPServer(
		"trawler",
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	// Crawl job tools
	mcpServer.AddTool(createStartCrawlTool(), handleStartCrawl(client, logger))
	mcpServer.AddTool(createListJobsTool(), handleListJobs(client, logger))
	mcpServer.AddTool(createGetJobTool(), handleGetJob(client, logger))
	mcpServer.AddTool(createCancelJobTool(), handleCancelJob(client, logger))

	// Result tools
	mcpServer.AddTool(createGetProductsTool(), handleGetProducts(client, logger))
	mcpServer.AddTool(createGetReportTool(), handleGetReport(client, logger))
	mcpServer.AddTool(createGetLogsTool(), handleGetLogs(client, logger))

	// Exclusion rule tools
	mcpServer.AddTool(createListRulesTool(), handleListRules(client, logger))
	mcpServer.AddTool(createAddRuleTool(), handleAddRule(client, logger))

	// Start server (blocks on stdio)
	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Fatal().Err(err).Msg("MCP server failed")
	}
}
