package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trawler/internal/common"
	"github.com/ternarybob/trawler/internal/handlers"
	"github.com/ternarybob/trawler/internal/interfaces"
	"github.com/ternarybob/trawler/internal/logs"
	"github.com/ternarybob/trawler/internal/services/catalog"
	"github.com/ternarybob/trawler/internal/services/crawler"
	"github.com/ternarybob/trawler/internal/services/events"
	"github.com/ternarybob/trawler/internal/services/exclusions"
	"github.com/ternarybob/trawler/internal/services/fetcher"
	"github.com/ternarybob/trawler/internal/services/report"
	"github.com/ternarybob/trawler/internal/services/scoring"
	"github.com/ternarybob/trawler/internal/storage"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	ctx            context.Context
	cancelCtx      context.CancelFunc
	StorageManager interfaces.StorageManager

	// Event and log plumbing
	EventService *events.Service
	LogService   interfaces.LogService
	LogConsumer  *logs.Consumer

	// Crawl pipeline
	Parser           interfaces.CatalogParser
	FetcherClient    interfaces.FetcherClient
	ExclusionService interfaces.ExclusionService
	ScoringService   interfaces.ScoringService
	CrawlerService   *crawler.Service
	ReportService    interfaces.ReportService

	// HTTP handlers
	APIHandler       *handlers.APIHandler
	CrawlHandler     *handlers.CrawlHandler
	WebhookHandler   *handlers.WebhookHandler
	ExclusionHandler *handlers.ExclusionHandler
	WSHandler        *handlers.WebSocketHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Initialize storage
	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// The event service and WebSocket handler come up before the log
	// consumer so both live streams can be tapped during service init
	app.EventService = events.NewService(app.StorageManager.EventStorage(), app.Logger)
	app.WSHandler = handlers.NewWebSocketHandler(app.StorageManager.JobStorage(), &app.Config.WebSocket, app.Logger)
	app.EventService.SetStream(app.WSHandler.StreamEvent)

	app.LogService = logs.NewService(app.StorageManager.JobLogStorage(), app.Logger)

	logConsumer := logs.NewConsumer(
		app.StorageManager.JobLogStorage(),
		app.Logger,
		app.Config.Logging.MinEventLevel,
	)
	logConsumer.SetStream(app.WSHandler.StreamLog)
	if err := logConsumer.Start(); err != nil {
		return nil, fmt.Errorf("failed to start log consumer: %w", err)
	}
	app.LogConsumer = logConsumer

	// Job-scoped loggers write through arbor's context channel; the consumer
	// groups batches by correlation id and persists them per job
	app.Logger.SetChannel("context", logConsumer.GetChannel())

	// Initialize services (AFTER the log consumer is wired)
	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	// Initialize handlers
	if err := app.initHandlers(); err != nil {
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	// Resume pacing for jobs that were running when the process last stopped
	if err := app.CrawlerService.Start(app.ctx); err != nil {
		return nil, fmt.Errorf("failed to start crawler service: %w", err)
	}

	logger.Info().
		Str("catalog", cfg.Crawl.CatalogBaseURL).
		Str("fetcher", cfg.Fetcher.BaseURL).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (SQLite and Badger)
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("sqlite", a.Config.Storage.SQLite.Path).
		Str("badger", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	return nil
}

// initServices initializes all business services in dependency order:
// parser and fetcher client first, then the admission services the
// coordinator consumes, then the coordinator itself.
func (a *App) initServices() error {
	a.ctx, a.cancelCtx = context.WithCancel(context.Background())

	a.Parser = catalog.NewParser(a.Config, a.Logger)
	a.FetcherClient = fetcher.NewClient(a.Config, a.Logger)

	a.ExclusionService = exclusions.NewService(a.StorageManager.ExclusionStorage(), a.Config, a.Logger)
	if err := a.ExclusionService.Refresh(a.ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to warm exclusion rule cache")
	}

	a.ScoringService = scoring.NewService(a.StorageManager.ScoredProductStorage(), a.Logger)

	a.CrawlerService = crawler.NewService(
		a.StorageManager,
		a.Parser,
		a.FetcherClient,
		a.ExclusionService,
		a.ScoringService,
		a.EventService,
		a.LogService,
		a.Config,
		a.Logger,
	)

	a.ReportService = report.NewService(a.StorageManager, a.ScoringService, a.Logger)

	a.Logger.Debug().Msg("Services initialized")
	return nil
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() error {
	a.APIHandler = handlers.NewAPIHandler()
	// WSHandler already initialized in New() before the log consumer

	a.CrawlHandler = handlers.NewCrawlHandler(
		a.CrawlerService,
		a.ScoringService,
		a.EventService,
		a.LogService,
		a.ReportService,
		a.Logger,
	)
	a.WebhookHandler = handlers.NewWebhookHandler(a.CrawlerService, a.Logger)
	a.ExclusionHandler = handlers.NewExclusionHandler(a.ExclusionService, a.Logger)

	a.Logger.Debug().Msg("Handlers initialized")
	return nil
}

// SelfTest posts a probe through the fetcher and waits for it to come back
// on the webhook endpoint. Call it after the HTTP server is listening, or
// the callback has nowhere to land.
func (a *App) SelfTest(ctx context.Context) error {
	return a.CrawlerService.SelfTest(ctx)
}

// Close closes all application resources
func (a *App) Close() error {
	if a.cancelCtx != nil {
		a.Logger.Info().Msg("Cancelling background goroutines")
		a.cancelCtx()
		// Allow goroutines to finish gracefully
		time.Sleep(100 * time.Millisecond)
	}

	// Stop the crawler first so no new submissions or retries are armed
	// while the rest of the stack winds down
	if a.CrawlerService != nil {
		if err := a.CrawlerService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close crawler service")
		}
	}

	if a.WSHandler != nil {
		a.WSHandler.Close()
	}

	if a.LogConsumer != nil {
		if err := a.LogConsumer.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop log consumer")
		}
	}

	// Close storage last so in-flight writes from the layers above land
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
