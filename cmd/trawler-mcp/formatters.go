package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/trawler/internal/models"
)

// formatJobList formats the jobs overview as markdown
func formatJobList(jobs []*models.CrawlJob) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Crawl Jobs (%d)\n\n", len(jobs)))

	if len(jobs) == 0 {
		sb.WriteString("No crawl jobs found.\n")
		return sb.String()
	}

	for _, job := range jobs {
		name := job.Config.Name
		if name == "" {
			name = strings.Join(job.Config.Keywords, ", ")
		}
		sb.WriteString(fmt.Sprintf("- `%s` **%s** - %s\n", job.ID, job.Status, name))
		sb.WriteString(fmt.Sprintf("  Created: %s | Scored: %d | Passed: %d | Errors: %d\n",
			job.CreatedAt.Format(time.RFC3339),
			job.Progress.ProductsScored,
			job.Progress.ProductsPassedScoring,
			job.Progress.Errors))
	}

	return sb.String()
}

// formatJob formats one job with its progress counters as markdown
func formatJob(job *models.CrawlJob) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# Crawl Job `%s`\n\n", job.ID))
	sb.WriteString(fmt.Sprintf("**Status:** %s\n", job.Status))
	sb.WriteString(fmt.Sprintf("**Keywords:** %s\n", strings.Join(job.Config.Keywords, ", ")))
	sb.WriteString(fmt.Sprintf("**Price range:** $%.2f - $%.2f\n", job.Config.PriceMin, job.Config.EffectivePriceMax()))
	sb.WriteString(fmt.Sprintf("**Created:** %s\n", job.CreatedAt.Format(time.RFC3339)))
	if !job.CompletedAt.IsZero() {
		sb.WriteString(fmt.Sprintf("**Completed:** %s\n", job.CompletedAt.Format(time.RFC3339)))
	}
	if job.Error != "" {
		sb.WriteString(fmt.Sprintf("**Error:** %s\n", job.Error))
	}

	p := job.Progress
	sb.WriteString("\n## Progress\n\n")
	sb.WriteString(fmt.Sprintf("- Searches: %d submitted, %d completed\n", p.SearchURLsSubmitted, p.SearchURLsCompleted))
	sb.WriteString(fmt.Sprintf("- Product URLs: %d found, %d already known, %d submitted, %d completed\n",
		p.ProductURLsFound, p.ProductURLsSkippedExisting, p.ProductURLsSubmitted, p.ProductURLsCompleted))
	sb.WriteString(fmt.Sprintf("- Products: %d parsed, %d filtered out, %d scored, %d passed\n",
		p.ProductsParsed, p.ProductsSkippedFiltered, p.ProductsScored, p.ProductsPassedScoring))
	sb.WriteString(fmt.Sprintf("- Errors: %d\n", p.Errors))

	return sb.String()
}

// formatProducts formats scored products as markdown, best first
func formatProducts(jobID string, products []*models.ScoredProduct) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Scored Products for `%s` (%d)\n\n", jobID, len(products)))

	if len(products) == 0 {
		sb.WriteString("No scored products found.\n")
		return sb.String()
	}

	for i, product := range products {
		verdict := "PASSED"
		if !product.PassedFilters {
			verdict = "rejected"
		}
		sb.WriteString(fmt.Sprintf("### %d. %s (%s)\n", i+1, product.Name, verdict))
		sb.WriteString(fmt.Sprintf("**Cost:** $%.2f | **Sell:** $%.2f | **Net margin:** %.1f%% | **Points:** %.0f\n",
			product.ProductCost, product.SellingPrice, product.NetMargin, product.Points))
		if product.Recommendation != "" {
			sb.WriteString(fmt.Sprintf("**Recommendation:** %s\n", product.Recommendation))
		}
		if product.WarehouseCountry != "" || product.SupplierName != "" {
			sb.WriteString(fmt.Sprintf("**Supplier:** %s (%s)\n", product.SupplierName, product.WarehouseCountry))
		}
		if len(product.RejectionReasons) > 0 {
			sb.WriteString(fmt.Sprintf("**Rejected for:** %s\n", strings.Join(product.RejectionReasons, "; ")))
		}
		if product.SourceURL != "" {
			sb.WriteString(fmt.Sprintf("**URL:** %s\n", product.SourceURL))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// formatLogs formats job log lines inside a fenced block
func formatLogs(jobID string, entries []models.JobLogEntry, total int) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Logs for `%s` (%d of %d)\n\n", jobID, len(entries), total))

	if len(entries) == 0 {
		sb.WriteString("No log entries found.\n")
		return sb.String()
	}

	sb.WriteString("```\n")
	for _, entry := range entries {
		sb.WriteString(fmt.Sprintf("[%s] %-5s %s\n", entry.Timestamp, strings.ToUpper(entry.Level), entry.Message))
	}
	sb.WriteString("```\n")

	return sb.String()
}

// formatRules formats exclusion rules grouped by type as markdown
func formatRules(rules []*models.ExclusionRule) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Exclusion Rules (%d)\n\n", len(rules)))

	if len(rules) == 0 {
		sb.WriteString("No exclusion rules configured.\n")
		return sb.String()
	}

	byType := make(map[models.RuleType][]*models.ExclusionRule)
	for _, rule := range rules {
		byType[rule.RuleType] = append(byType[rule.RuleType], rule)
	}

	for _, ruleType := range []models.RuleType{models.RuleTypeCountry, models.RuleTypeCategory, models.RuleTypeSupplier, models.RuleTypeKeyword} {
		group := byType[ruleType]
		if len(group) == 0 {
			continue
		}
		sb.WriteString(fmt.Sprintf("### %s\n", ruleType))
		for _, rule := range group {
			if rule.Reason != "" {
				sb.WriteString(fmt.Sprintf("- `%s` (%s) - %s\n", rule.Value, rule.ID, rule.Reason))
			} else {
				sb.WriteString(fmt.Sprintf("- `%s` (%s)\n", rule.Value, rule.ID))
			}
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
