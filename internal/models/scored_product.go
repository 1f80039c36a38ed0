package models

import "time"

// ScoredProduct is a row in the downstream scored-products store. The crawl
// core writes rows only through the scoring service; the webhook path reads
// the store for deduplication by SourceProductID.
type ScoredProduct struct {
	ID                  string    `json:"id"`
	SourceProductID     string    `json:"source_product_id"`
	Name                string    `json:"name"`
	CrawlJobID          string    `json:"crawl_job_id,omitempty"`
	Source              string    `json:"source"`
	SourceURL           string    `json:"source_url,omitempty"`
	ProductCost         float64   `json:"product_cost"`
	ShippingCost        float64   `json:"shipping_cost"`
	SellingPrice        float64   `json:"selling_price"`
	Category            string    `json:"category,omitempty"`
	EstimatedCPC        float64   `json:"estimated_cpc"`
	MonthlySearchVolume int       `json:"monthly_search_volume"`
	WeightGrams         float64   `json:"weight_grams,omitempty"`
	ShippingDaysMin     int       `json:"shipping_days_min"`
	ShippingDaysMax     int       `json:"shipping_days_max"`
	WarehouseCountry    string    `json:"warehouse_country,omitempty"`
	SupplierName        string    `json:"supplier_name,omitempty"`
	InventoryCount      int       `json:"inventory_count,omitempty"`
	COGS                float64   `json:"cogs"`
	GrossMargin         float64   `json:"gross_margin"`
	NetMargin           float64   `json:"net_margin"`
	MaxCPC              float64   `json:"max_cpc"`
	CPCBuffer           float64   `json:"cpc_buffer"`
	PassedFilters       bool      `json:"passed_filters"`
	RejectionReasons    []string  `json:"rejection_reasons,omitempty"`
	Points              float64   `json:"points,omitempty"`
	RankScore           float64   `json:"rank_score,omitempty"`
	Recommendation      string    `json:"recommendation,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

// SourceCJCrawl tags rows produced by the catalog crawl pipeline
const SourceCJCrawl = "cj_crawl"
