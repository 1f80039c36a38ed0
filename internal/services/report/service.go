package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/trawler/internal/interfaces"
	"github.com/ternarybob/trawler/internal/models"
)

const (
	topProductLimit    = 20
	failureDigestLimit = 25
)

// Service builds per-job crawl reports: a markdown document assembled from
// the job record, progress counters, top scored products and failed queue
// items, plus a PDF rendering of the same document.
type Service struct {
	jobs    interfaces.JobStorage
	queue   interfaces.QueueStorage
	scoring interfaces.ScoringService
	logger  arbor.ILogger
}

var _ interfaces.ReportService = (*Service)(nil)

// NewService creates the report builder
func NewService(storage interfaces.StorageManager, scoring interfaces.ScoringService, logger arbor.ILogger) *Service {
	return &Service{
		jobs:    storage.JobStorage(),
		queue:   storage.QueueStorage(),
		scoring: scoring,
		logger:  logger,
	}
}

// GenerateMarkdown renders the report as markdown.
func (s *Service) GenerateMarkdown(ctx context.Context, jobID string) ([]byte, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("report job lookup: %w", err)
	}

	var b strings.Builder
	s.writeHeader(&b, job)
	s.writeProgress(&b, &job.Progress)
	s.writeTopProducts(ctx, &b, jobID)
	s.writeFailures(ctx, &b, jobID)

	return []byte(b.String()), nil
}

// GeneratePDF renders the markdown report to a PDF document.
func (s *Service) GeneratePDF(ctx context.Context, jobID string) ([]byte, error) {
	markdown, err := s.GenerateMarkdown(ctx, jobID)
	if err != nil {
		return nil, err
	}

	pdf, err := renderPDF(markdown)
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("Report PDF rendering failed")
		return nil, fmt.Errorf("report pdf: %w", err)
	}
	s.logger.Debug().Str("job_id", jobID).Int("pdf_bytes", len(pdf)).Msg("Report PDF generated")
	return pdf, nil
}

func (s *Service) writeHeader(b *strings.Builder, job *models.CrawlJob) {
	title := job.Config.Name
	if title == "" {
		title = job.ID
	}
	fmt.Fprintf(b, "# Crawl Report: %s\n\n", cellText(title))
	fmt.Fprintf(b, "Generated %s\n\n", time.Now().UTC().Format("2006-01-02 15:04 UTC"))

	b.WriteString("## Job\n\n")
	b.WriteString("| Field | Value |\n|---|---|\n")
	fmt.Fprintf(b, "| Job ID | %s |\n", job.ID)
	fmt.Fprintf(b, "| Status | %s |\n", job.Status)
	fmt.Fprintf(b, "| Keywords | %s |\n", cellText(strings.Join(job.Config.Keywords, ", ")))
	fmt.Fprintf(b, "| Price band | $%.2f - $%.2f |\n", job.Config.PriceMin, job.Config.EffectivePriceMax())
	if len(job.Config.ExcludeWarehouses) > 0 {
		fmt.Fprintf(b, "| Excluded warehouses | %s |\n", cellText(strings.Join(job.Config.ExcludeWarehouses, ", ")))
	}
	if len(job.Config.ExcludeCategories) > 0 {
		fmt.Fprintf(b, "| Excluded categories | %s |\n", cellText(strings.Join(job.Config.ExcludeCategories, ", ")))
	}
	fmt.Fprintf(b, "| Created | %s |\n", job.CreatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(b, "| Duration | %s |\n", jobDuration(job))
	if job.Error != "" {
		fmt.Fprintf(b, "| Error | %s |\n", cellText(job.Error))
	}
	b.WriteString("\n")
}

func (s *Service) writeProgress(b *strings.Builder, p *models.CrawlProgress) {
	b.WriteString("## Progress\n\n")
	b.WriteString("| Stage | Count |\n|---|---|\n")
	fmt.Fprintf(b, "| Searches submitted | %d |\n", p.SearchURLsSubmitted)
	fmt.Fprintf(b, "| Searches completed | %d |\n", p.SearchURLsCompleted)
	fmt.Fprintf(b, "| Product URLs found | %d |\n", p.ProductURLsFound)
	fmt.Fprintf(b, "| Product URLs skipped (already scored) | %d |\n", p.ProductURLsSkippedExisting)
	fmt.Fprintf(b, "| Product URLs submitted | %d |\n", p.ProductURLsSubmitted)
	fmt.Fprintf(b, "| Product URLs completed | %d |\n", p.ProductURLsCompleted)
	fmt.Fprintf(b, "| Products parsed | %d |\n", p.ProductsParsed)
	fmt.Fprintf(b, "| Products filtered out | %d |\n", p.ProductsSkippedFiltered)
	fmt.Fprintf(b, "| Products scored | %d |\n", p.ProductsScored)
	fmt.Fprintf(b, "| Products passed scoring | %d |\n", p.ProductsPassedScoring)
	fmt.Fprintf(b, "| Errors | %d |\n", p.Errors)
	b.WriteString("\n")
}

func (s *Service) writeTopProducts(ctx context.Context, b *strings.Builder, jobID string) {
	b.WriteString("## Top products\n\n")

	products, err := s.scoring.TopByJob(ctx, jobID, topProductLimit)
	if err != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Msg("Report could not load scored products")
		b.WriteString("Scored products unavailable.\n\n")
		return
	}
	if len(products) == 0 {
		b.WriteString("No products scored.\n\n")
		return
	}

	b.WriteString("| # | Product | Cost | Sell | Gross margin | Warehouse | Passed |\n")
	b.WriteString("|---|---|---|---|---|---|---|\n")
	for i, product := range products {
		passed := "no"
		if product.PassedFilters {
			passed = "yes"
		}
		fmt.Fprintf(b, "| %d | %s | $%.2f | $%.2f | %.1f%% | %s | %s |\n",
			i+1, cellText(product.Name), product.ProductCost, product.SellingPrice,
			product.GrossMargin*100, product.WarehouseCountry, passed)
	}
	b.WriteString("\n")
}

func (s *Service) writeFailures(ctx context.Context, b *strings.Builder, jobID string) {
	b.WriteString("## Failures\n\n")

	failed, err := s.queue.GetItemsByJob(ctx, jobID, models.QueueStatusFailed, failureDigestLimit)
	if err != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Msg("Report could not load failed items")
		b.WriteString("Failure digest unavailable.\n")
		return
	}
	if len(failed) == 0 {
		b.WriteString("No failed URLs.\n")
		return
	}

	for _, item := range failed {
		reason := item.ErrorMessage
		if reason == "" {
			reason = "unknown error"
		}
		fmt.Fprintf(b, "- %s (%s, %d retries): %s\n", item.URL, item.URLType, item.RetryCount, reason)
	}
}

// jobDuration reports run time: completed jobs show total, running jobs show
// elapsed so far, jobs that never started show a dash.
func jobDuration(job *models.CrawlJob) string {
	if job.StartedAt.IsZero() {
		return "-"
	}
	end := job.CompletedAt
	suffix := ""
	if end.IsZero() {
		end = time.Now()
		suffix = " so far"
	}
	return end.Sub(job.StartedAt).Round(time.Second).String() + suffix
}

// cellText keeps arbitrary strings from breaking markdown table layout
func cellText(value string) string {
	value = strings.ReplaceAll(value, "|", "/")
	value = strings.ReplaceAll(value, "\n", " ")
	return strings.TrimSpace(value)
}
