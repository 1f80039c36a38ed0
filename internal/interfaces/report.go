package interfaces

import "context"

// ReportService renders crawl summary reports from a job's progress
// counters, timeline and scored products.
type ReportService interface {
	// GenerateMarkdown renders the report as markdown.
	GenerateMarkdown(ctx context.Context, jobID string) ([]byte, error)

	// GeneratePDF renders the markdown report to a PDF document.
	GeneratePDF(ctx context.Context, jobID string) ([]byte, error)
}
