package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/trawler/internal/common"
	"github.com/ternarybob/trawler/internal/interfaces"
	"github.com/ternarybob/trawler/internal/models"
	"github.com/ternarybob/trawler/internal/services/catalog"
	"github.com/ternarybob/trawler/internal/services/fetcher"
	pkgmodels "github.com/ternarybob/trawler/pkg/models"
)

// ProcessWebhook consumes one webhook delivery from the fetcher. Results it
// cannot attribute are logged and dropped so the fetcher always gets its
// acknowledgment; payload downloads and parsing are offloaded so a slow
// page never stalls the delivery.
func (s *Service) ProcessWebhook(ctx context.Context, payload *pkgmodels.WebhookPayload) {
	if payload == nil || len(payload.Results) == 0 {
		s.logger.Debug().Msg("Webhook delivery carried no results")
		return
	}

	for i := range payload.Results {
		s.processWebhookResult(ctx, &payload.Results[i])
	}
}

func (s *Service) processWebhookResult(ctx context.Context, result *pkgmodels.WebhookResult) {
	correlation, err := fetcher.ParsePostID(result.PostID)
	if err != nil {
		s.logger.Warn().Err(err).Str("post_id", result.PostID).Msg("Dropping webhook result with malformed post id")
		return
	}

	if correlation.Kind == fetcher.KindSelfTest {
		s.logger.Info().Str("post_id", result.PostID).Msg("Webhook self-test round-trip confirmed")
		s.resolveSelfTest(correlation.ItemID)
		return
	}

	item, err := s.queue.GetItem(ctx, correlation.ItemID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			s.logger.Warn().Str("post_id", result.PostID).Str("item_id", correlation.ItemID).Msg("Dropping webhook result for unknown item")
		} else {
			s.logger.Error().Err(err).Str("item_id", correlation.ItemID).Msg("Webhook item lookup failed")
		}
		return
	}
	if item.JobID != correlation.JobID {
		s.logger.Warn().Str("post_id", result.PostID).Str("item_job", item.JobID).Msg("Dropping webhook result with mismatched job")
		return
	}

	job, err := s.jobs.GetJob(ctx, item.JobID)
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", item.JobID).Msg("Webhook job lookup failed")
		return
	}
	if job.Status == models.JobStatusCancelled {
		s.failCancelled(ctx, item)
		return
	}

	if item.Status != models.QueueStatusSubmitted {
		// A duplicate delivery, or the item was already recycled.
		s.logger.Debug().Str("item_id", item.ID).Str("status", string(item.Status)).Msg("Ignoring duplicate webhook result")
		return
	}

	s.events.RecordWebhook(ctx, item, result.Success, result.Error)

	if !result.Success || result.HTML == "" {
		errMsg := result.Error
		if errMsg == "" {
			errMsg = "fetch returned no content"
		}
		s.jobLog(ctx, item.JobID, "WRN", fmt.Sprintf("Failed: %s - %s", keywordDisplay(item), errMsg))
		s.handleItemFailure(ctx, item, errMsg)
		s.scheduler.Kick(item.JobID, -1)
		return
	}

	s.jobLog(ctx, item.JobID, "INF", fmt.Sprintf("Received: %s", keywordDisplay(item)))

	payloadURL := result.HTML
	s.wg.Add(1)
	common.SafeGoWithContext(s.ctx, s.logger, "webhook-result", func() {
		defer s.wg.Done()
		switch item.URLType {
		case models.URLTypeSearch, models.URLTypePagination:
			s.processSearchResult(s.ctx, job, item, payloadURL)
		case models.URLTypeProduct:
			s.processProductResult(s.ctx, job, item, payloadURL)
		default:
			s.logger.Error().Str("item_id", item.ID).Str("url_type", string(item.URLType)).Msg("Unknown queue item type")
		}
	})
}

// processSearchResult downloads and parses a search or pagination payload,
// expands pagination for first pages, and queues newly discovered products.
func (s *Service) processSearchResult(ctx context.Context, job *models.CrawlJob, item *models.QueueItem, payloadURL string) {
	html, err := s.fetcher.Download(ctx, payloadURL)
	if err != nil {
		s.jobLog(ctx, item.JobID, "ERR", fmt.Sprintf("Search payload download failed: %v", err))
		s.handleItemFailure(ctx, item, fmt.Sprintf("Payload download failed: %v", err))
		s.scheduler.Kick(item.JobID, -1)
		return
	}

	searchResult, err := s.parser.ParseSearch(html, item.URL)
	if err != nil {
		s.jobLog(ctx, item.JobID, "ERR", fmt.Sprintf("Search parse error: %s", truncateError(err)))
		s.handleItemFailure(ctx, item, fmt.Sprintf("Parse failed: %v", err))
		s.scheduler.Kick(item.JobID, -1)
		return
	}

	// A cancel can land while the payload downloads; drain instead of
	// expanding a dead job.
	if s.jobCancelled(ctx, item.JobID) {
		s.failCancelled(ctx, item)
		return
	}

	if err := s.queue.MarkCompleted(ctx, item.ID, time.Now()); err != nil {
		if errors.Is(err, interfaces.ErrStateConflict) {
			s.logger.Debug().Str("item_id", item.ID).Msg("Search result raced another outcome, keeping the first")
		} else {
			s.logger.Warn().Err(err).Str("item_id", item.ID).Msg("Could not complete search item")
		}
		return
	}

	s.events.RecordSearchParsed(ctx, item, len(searchResult.Products), searchResult.TotalPages)
	s.jobLog(ctx, item.JobID, "INF", fmt.Sprintf("Search '%s': %d products found (total pages: %d)",
		keywordDisplay(item), len(searchResult.Products), searchResult.TotalPages))

	pagesQueued := 0
	if item.URLType == models.URLTypeSearch && searchResult.TotalPages > 1 {
		pagesQueued = s.expandPagination(ctx, item, searchResult.TotalPages)
	}

	productsQueued, skipped := s.queueDiscoveredProducts(ctx, item, searchResult.Products)

	s.bumpProgress(ctx, item.JobID, func(p *models.CrawlProgress) {
		p.SearchURLsCompleted++
		p.ProductURLsFound += len(searchResult.Products)
		p.SearchURLsSubmitted += pagesQueued
		p.ProductURLsSubmitted += productsQueued
		p.ProductURLsSkippedExisting += skipped
	})

	if pagesQueued > 0 || productsQueued > 0 {
		s.scheduler.KickAfterDiscovery(item.JobID)
	} else {
		s.scheduler.Kick(item.JobID, -1)
	}
	s.checkCompletion(ctx, item.JobID)
}

// expandPagination queues result pages 2..N for the item's keyword, capped
// by MaxPaginationPages. Only first search pages expand; pagination pages
// finding yet more pages would double-queue them.
func (s *Service) expandPagination(ctx context.Context, item *models.QueueItem, totalPages int) int {
	maxPages := s.config.Crawl.MaxPaginationPages
	if maxPages > 0 && totalPages > maxPages {
		totalPages = maxPages
	}

	queued := 0
	for page := 2; page <= totalPages; page++ {
		pageItem := &models.QueueItem{
			ID:       common.NewItemID(),
			JobID:    item.JobID,
			URL:      catalog.SearchURL(s.config.Crawl.CatalogBaseURL, item.Keyword, page),
			URLType:  models.URLTypePagination,
			Keyword:  item.Keyword,
			Priority: models.PriorityDiscovery,
		}
		inserted, err := s.queue.Enqueue(ctx, pageItem)
		if err != nil {
			s.logger.Warn().Err(err).Str("job_id", item.JobID).Int("page", page).Msg("Could not queue pagination page")
			continue
		}
		if inserted {
			queued++
		}
	}

	if queued > 0 {
		s.jobLog(ctx, item.JobID, "INF", fmt.Sprintf("Queued %d additional pages for '%s'", queued, item.Keyword))
	}
	return queued
}

// queueDiscoveredProducts drops products that are already scored and queues
// the rest as product detail fetches. Returns queued and skipped counts.
func (s *Service) queueDiscoveredProducts(ctx context.Context, item *models.QueueItem, products []models.ProductSummary) (int, int) {
	if len(products) == 0 {
		return 0, 0
	}

	ids := make([]string, len(products))
	for i, product := range products {
		if product.ID != "" {
			ids[i] = product.ID
		} else {
			ids[i] = catalog.ExtractProductID(product.URL)
		}
	}

	existing, err := s.scored.FilterExisting(ctx, ids)
	if err != nil {
		s.logger.Warn().Err(err).Str("job_id", item.JobID).Msg("Dedup lookup failed, queueing all discovered products")
		existing = map[string]bool{}
	}

	queued, skipped := 0, 0
	for i, product := range products {
		if ids[i] != "" && existing[ids[i]] {
			skipped++
			continue
		}
		productItem := &models.QueueItem{
			ID:       common.NewItemID(),
			JobID:    item.JobID,
			URL:      product.URL,
			URLType:  models.URLTypeProduct,
			Keyword:  item.Keyword,
			Priority: models.PriorityProduct,
		}
		inserted, err := s.queue.Enqueue(ctx, productItem)
		if err != nil {
			s.logger.Warn().Err(err).Str("job_id", item.JobID).Str("url", product.URL).Msg("Could not queue product")
			continue
		}
		if inserted {
			queued++
		}
	}

	if skipped > 0 {
		s.jobLog(ctx, item.JobID, "INF", fmt.Sprintf("Skipped %d existing products", skipped))
	}
	if queued > 0 {
		s.jobLog(ctx, item.JobID, "INF", fmt.Sprintf("Queued %d products for fetching", queued))
	}
	return queued, skipped
}

// processProductResult downloads and parses a product payload, then runs
// the exclusion and scoring pipeline on the parsed record.
func (s *Service) processProductResult(ctx context.Context, job *models.CrawlJob, item *models.QueueItem, payloadURL string) {
	html, err := s.fetcher.Download(ctx, payloadURL)
	if err != nil {
		s.jobLog(ctx, item.JobID, "ERR", fmt.Sprintf("Product payload download failed: %v", err))
		s.handleItemFailure(ctx, item, fmt.Sprintf("Payload download failed: %v", err))
		s.scheduler.Kick(item.JobID, -1)
		return
	}

	product, err := s.parser.ParseProduct(html, item.URL)
	if err != nil {
		if errors.Is(err, catalog.ErrProductRemoved) {
			// The listing disappeared between discovery and fetch. Not an
			// error: the page answered, there is just nothing to score.
			s.completeProductItem(ctx, item, func(p *models.CrawlProgress) {
				p.ProductURLsCompleted++
				p.ProductsSkippedFiltered++
			}, fmt.Sprintf("Skipped removed product: %s", keywordDisplay(item)))
			return
		}
		s.jobLog(ctx, item.JobID, "ERR", fmt.Sprintf("Parse error: %s", truncateError(err)))
		s.handleItemFailure(ctx, item, fmt.Sprintf("Parse failed: %v", err))
		s.scheduler.Kick(item.JobID, -1)
		return
	}

	if s.jobCancelled(ctx, item.JobID) {
		s.failCancelled(ctx, item)
		return
	}

	// A parallel job can score the same product between our discovery and
	// this fetch; re-check before spending filter and scoring work.
	if exists, err := s.scored.Exists(ctx, product.ID); err == nil && exists {
		s.completeProductItem(ctx, item, func(p *models.CrawlProgress) {
			p.ProductURLsCompleted++
			p.ProductsSkippedFiltered++
		}, fmt.Sprintf("Skipped already scored product: %s", shortName(product.Name)))
		return
	}

	admitted, reasons := s.exclusions.Admit(product, &job.Config)
	if !admitted {
		s.completeProductItem(ctx, item, func(p *models.CrawlProgress) {
			p.ProductURLsCompleted++
			p.ProductsParsed++
			p.ProductsSkippedFiltered++
		}, fmt.Sprintf("Filtered out %s: %s", shortName(product.Name), strings.Join(reasons, "; ")))
		return
	}

	score, err := s.scoring.ScoreProduct(ctx, item.JobID, product, item.URL)
	if err != nil {
		s.jobLog(ctx, item.JobID, "ERR", fmt.Sprintf("Scoring failed for %s: %v", shortName(product.Name), err))
		s.handleItemFailure(ctx, item, fmt.Sprintf("Scoring failed: %v", err))
		s.scheduler.Kick(item.JobID, -1)
		return
	}

	s.events.RecordProductParsed(ctx, item, product.ID, score.PassedFilters, score.GrossMargin)

	logLine := fmt.Sprintf("✗ Rejected: %s", shortName(product.Name))
	if score.PassedFilters {
		logLine = fmt.Sprintf("✓ PASSED: %s (margin: %.1f%%)", shortName(product.Name), score.GrossMargin*100)
	}
	s.completeProductItem(ctx, item, func(p *models.CrawlProgress) {
		p.ProductURLsCompleted++
		p.ProductsParsed++
		p.ProductsScored++
		if score.PassedFilters {
			p.ProductsPassedScoring++
		}
	}, logLine)
}

// completeProductItem marks the item completed, applies the progress
// mutation and runs the follow-up kick and completion check. A duplicate
// outcome is dropped without counting twice.
func (s *Service) completeProductItem(ctx context.Context, item *models.QueueItem, mutate func(*models.CrawlProgress), logLine string) {
	if err := s.queue.MarkCompleted(ctx, item.ID, time.Now()); err != nil {
		if errors.Is(err, interfaces.ErrStateConflict) {
			s.logger.Debug().Str("item_id", item.ID).Msg("Product result raced another outcome, keeping the first")
		} else {
			s.logger.Warn().Err(err).Str("item_id", item.ID).Msg("Could not complete product item")
		}
		return
	}

	if logLine != "" {
		s.jobLog(ctx, item.JobID, "INF", logLine)
	}
	s.bumpProgress(ctx, item.JobID, mutate)
	s.scheduler.Kick(item.JobID, -1)
	s.checkCompletion(ctx, item.JobID)
}

// jobCancelled reloads the job to catch a cancel that landed while a
// payload was downloading or parsing.
func (s *Service) jobCancelled(ctx context.Context, jobID string) bool {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return false
	}
	return job.Status == models.JobStatusCancelled
}

// failCancelled drains one in-flight item of a cancelled job. The item has
// consumed its fetch, so it fails rather than returning to pending.
func (s *Service) failCancelled(ctx context.Context, item *models.QueueItem) {
	if err := s.queue.MarkFailed(ctx, item.ID, time.Now(), "Job cancelled"); err != nil && !errors.Is(err, interfaces.ErrStateConflict) {
		s.logger.Warn().Err(err).Str("item_id", item.ID).Msg("Could not drain cancelled item")
	}
}

// shortName trims a product name for one-line job logs
func shortName(name string) string {
	const max = 30
	runes := []rune(name)
	if len(runes) <= max {
		return name
	}
	return string(runes[:max]) + "..."
}

// truncateError keeps noisy parse errors to one readable log line
func truncateError(err error) string {
	const max = 50
	msg := err.Error()
	runes := []rune(msg)
	if len(runes) <= max {
		return msg
	}
	return string(runes[:max]) + "..."
}
