package models

import "strings"

// ProductRecord is the canonical product extracted from a catalog product
// detail page. Prices are the supplier sell prices in USD; weight is grams.
type ProductRecord struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	SKU          string           `json:"sku,omitempty"`
	SellPriceMin float64          `json:"sell_price_min"`
	SellPriceMax float64          `json:"sell_price_max"`
	WeightMin    float64          `json:"weight_min,omitempty"`
	WeightMax    float64          `json:"weight_max,omitempty"`
	CategoryPath string           `json:"category_path,omitempty"`
	SupplierID   string           `json:"supplier_id,omitempty"`
	SupplierName string           `json:"supplier_name,omitempty"`
	Warehouses   []string         `json:"warehouses,omitempty"`
	Variants     []ProductVariant `json:"variants,omitempty"`
	ImageURLs    []string         `json:"image_urls,omitempty"`
	Inventory    int              `json:"inventory,omitempty"`
	Description  string           `json:"description,omitempty"`
}

// ProductVariant is one sellable variation of a product
type ProductVariant struct {
	SKU            string  `json:"sku"`
	SellPrice      float64 `json:"sell_price"`
	SuggestedPrice float64 `json:"suggested_price,omitempty"`
	Weight         float64 `json:"weight,omitempty"`
	PackWeight     float64 `json:"pack_weight,omitempty"`
}

// Categories splits the category path into its segments
func (p *ProductRecord) Categories() []string {
	if p.CategoryPath == "" {
		return nil
	}
	var out []string
	for _, seg := range strings.FieldsFunc(p.CategoryPath, func(r rune) bool {
		return r == '>' || r == '/'
	}) {
		if seg = strings.TrimSpace(seg); seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

// ProductSummary is a product reference discovered on a search or
// pagination page, before its detail page has been fetched.
type ProductSummary struct {
	ID    string  `json:"id"`
	URL   string  `json:"url"`
	Name  string  `json:"name,omitempty"`
	Price float64 `json:"price,omitempty"`
}

// SearchResult is the canonical record extracted from a search or
// pagination page.
type SearchResult struct {
	Products     []ProductSummary `json:"products"`
	CurrentPage  int              `json:"current_page"`
	TotalPages   int              `json:"total_pages"`
	TotalRecords int              `json:"total_records,omitempty"`
}
