package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobStatus represents the lifecycle state of a crawl job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal returns true once the job can no longer change state
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// CrawlJob represents one crawl run against the catalog.
// Config is snapshot at creation time; Progress is updated by the coordinator
// and the webhook path as queue items move through their lifecycle.
type CrawlJob struct {
	ID          string        `json:"id"`
	Status      JobStatus     `json:"status"`
	Config      CrawlConfig   `json:"config"`
	Progress    CrawlProgress `json:"progress"`
	Error       string        `json:"error,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	StartedAt   time.Time     `json:"started_at,omitempty"`
	CompletedAt time.Time     `json:"completed_at,omitempty"`
}

// CrawlConfig is the per-job crawl configuration supplied at start time.
// Empty include lists mean "allow all"; exclude lists always apply on top of
// the persistent exclusion rules.
type CrawlConfig struct {
	Name              string   `json:"name,omitempty" yaml:"name"`
	Keywords          []string `json:"keywords" yaml:"keywords" validate:"required,min=1,dive,min=1"`
	PriceMin          float64  `json:"price_min" yaml:"price_min" validate:"gte=0"`
	PriceMax          float64  `json:"price_max" yaml:"price_max" validate:"gte=0"`
	IncludeWarehouses []string `json:"include_warehouses,omitempty" yaml:"include_warehouses"`
	ExcludeWarehouses []string `json:"exclude_warehouses,omitempty" yaml:"exclude_warehouses"`
	IncludeCategories []string `json:"include_categories,omitempty" yaml:"include_categories"`
	ExcludeCategories []string `json:"exclude_categories,omitempty" yaml:"exclude_categories"`
}

// EffectivePriceMax returns the configured ceiling, defaulting when unset
func (c *CrawlConfig) EffectivePriceMax() float64 {
	if c.PriceMax <= 0 {
		return 1000
	}
	return c.PriceMax
}

// Validate checks structural sanity beyond tag validation
func (c *CrawlConfig) Validate() error {
	if len(c.Keywords) == 0 {
		return fmt.Errorf("at least one keyword is required")
	}
	if c.PriceMax > 0 && c.PriceMin > c.PriceMax {
		return fmt.Errorf("price_min %.2f exceeds price_max %.2f", c.PriceMin, c.PriceMax)
	}
	return nil
}

// ToJSON serializes the config for persistence
func (c *CrawlConfig) ToJSON() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal crawl config: %w", err)
	}
	return string(data), nil
}

// FromJSONCrawlConfig deserializes a persisted config
func FromJSONCrawlConfig(data string) (CrawlConfig, error) {
	var c CrawlConfig
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return CrawlConfig{}, fmt.Errorf("failed to unmarshal crawl config: %w", err)
	}
	return c, nil
}

// CrawlProgress is the job's counter bundle. Counters only ever increase
// within a job's lifetime; consumers must tolerate transient skew between
// counters and the underlying queue state.
type CrawlProgress struct {
	SearchURLsSubmitted        int `json:"search_urls_submitted"`
	SearchURLsCompleted        int `json:"search_urls_completed"`
	ProductURLsFound           int `json:"product_urls_found"`
	ProductURLsSkippedExisting int `json:"product_urls_skipped_existing"`
	ProductURLsSubmitted       int `json:"product_urls_submitted"`
	ProductURLsCompleted       int `json:"product_urls_completed"`
	ProductsParsed             int `json:"products_parsed"`
	ProductsSkippedFiltered    int `json:"products_skipped_filtered"`
	ProductsScored             int `json:"products_scored"`
	ProductsPassedScoring      int `json:"products_passed_scoring"`
	Errors                     int `json:"errors"`
}

// ToJSON serializes the progress bundle for persistence
func (p *CrawlProgress) ToJSON() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to marshal crawl progress: %w", err)
	}
	return string(data), nil
}

// FromJSONCrawlProgress deserializes a persisted progress bundle
func FromJSONCrawlProgress(data string) (CrawlProgress, error) {
	var p CrawlProgress
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return CrawlProgress{}, fmt.Errorf("failed to unmarshal crawl progress: %w", err)
	}
	return p, nil
}
