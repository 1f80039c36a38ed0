package scoring

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trawler/internal/common"
	"github.com/ternarybob/trawler/internal/interfaces"
	"github.com/ternarybob/trawler/internal/models"
)

// Economics assumptions. Selling price targets a ~70% gross margin with a
// $50 floor; shipping cost and transit windows depend on whether the product
// ships from a US warehouse.
const (
	targetCostShare = 0.30
	priceFloor      = 50.0

	usShippingCost   = 5.0
	usShippingMin    = 3
	usShippingMax    = 7
	intlShippingCost = 8.0
	intlShippingMin  = 10
	intlShippingMax  = 20

	paymentFeeRate    = 0.03
	chargebackRate    = 0.005
	defaultRefundRate = 0.08

	// Max CPC = CVR x selling price x net margin. The buffer divides that by
	// the estimated CPC inflated for a new ad account.
	conversionRate = 0.01
	cpcMultiplier  = 1.3

	defaultEstimatedCPC  = 0.50
	defaultSearchVolume  = 1000
	defaultWeightGrams   = 500.0
	defaultWarehouse     = "CN"
	minSellingPrice      = 50.0
	maxSellingPrice      = 200.0
	minGrossMargin       = 0.65
	maxWeightGrams       = 2000.0
	maxShippingDaysLimit = 30
)

// refundRates holds the expected refund rate per mapped category. Categories
// without an entry fall back to defaultRefundRate.
var refundRates = map[string]float64{
	"tools":       0.05,
	"crafts":      0.05,
	"office":      0.04,
	"outdoor":     0.06,
	"pet":         0.06,
	"home_decor":  0.08,
	"kitchen":     0.08,
	"jewelry":     0.10,
	"garden":      0.08,
	"apparel":     0.15,
	"shoes":       0.18,
	"electronics": 0.12,
}

// categoryKeywords maps catalog category text onto internal categories.
// First match wins, so "Outdoor Garden Tools" lands on garden, not outdoor.
var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{"garden", []string{"garden", "outdoor", "patio"}},
	{"kitchen", []string{"kitchen", "cook", "bake"}},
	{"pet", []string{"pet", "dog", "cat"}},
	{"office", []string{"office", "desk", "work"}},
	{"crafts", []string{"craft", "art", "sewing"}},
	{"tools", []string{"tool", "hardware"}},
	{"outdoor", []string{"camp", "hike", "sport"}},
	{"home_decor", []string{"home", "decor", "furniture"}},
}

const fallbackCategory = "home_decor"

// Service turns parsed catalog products into scored rows. It computes unit
// economics, applies the margin gates, and persists exactly one row per
// source product id. Point scoring and ranking are filled in later by the
// downstream rating pass, so those columns stay zero here.
type Service struct {
	storage interfaces.ScoredProductStorage
	logger  arbor.ILogger
}

// NewService creates a scoring service backed by the scored-products store.
func NewService(storage interfaces.ScoredProductStorage, logger arbor.ILogger) interfaces.ScoringService {
	return &Service{
		storage: storage,
		logger:  logger,
	}
}

// ScoreProduct computes economics for one product and persists the result.
// Re-scoring an id that is already stored returns the existing row unchanged.
func (s *Service) ScoreProduct(ctx context.Context, jobID string, product *models.ProductRecord, sourceURL string) (*models.ScoredProduct, error) {
	existing, err := s.storage.GetBySourceID(ctx, product.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check for existing score: %w", err)
	}
	if existing != nil {
		s.logger.Debug().
			Str("product_id", product.ID).
			Msg("Product already scored, keeping existing row")
		return existing, nil
	}

	cost := product.SellPriceMin
	sellingPrice := math.Max(round2(cost/targetCostShare), priceFloor)

	warehouse := primaryWarehouse(product.Warehouses)
	shippingCost, shipMin, shipMax := shippingEstimate(warehouse)

	category := mapCategory(product.Categories())

	weight := product.WeightMin
	if weight <= 0 {
		weight = defaultWeightGrams
	}

	cogs := cost + shippingCost
	grossMargin := 0.0
	if sellingPrice > 0 {
		grossMargin = (sellingPrice - cogs) / sellingPrice
	}
	netMargin := grossMargin - paymentFeeRate - refundRate(category) - chargebackRate
	maxCPC := math.Max(0, conversionRate*sellingPrice*netMargin)
	cpcBuffer := maxCPC / (defaultEstimatedCPC * cpcMultiplier)

	reasons := gateReasons(sellingPrice, grossMargin, weight, shipMax)

	score := &models.ScoredProduct{
		ID:                  common.NewScoreID(),
		SourceProductID:     product.ID,
		Name:                product.Name,
		CrawlJobID:          jobID,
		Source:              models.SourceCJCrawl,
		SourceURL:           sourceURL,
		ProductCost:         cost,
		ShippingCost:        shippingCost,
		SellingPrice:        sellingPrice,
		Category:            category,
		EstimatedCPC:        defaultEstimatedCPC,
		MonthlySearchVolume: defaultSearchVolume,
		WeightGrams:         weight,
		ShippingDaysMin:     shipMin,
		ShippingDaysMax:     shipMax,
		WarehouseCountry:    warehouse,
		SupplierName:        product.SupplierName,
		InventoryCount:      product.Inventory,
		COGS:                cogs,
		GrossMargin:         grossMargin,
		NetMargin:           netMargin,
		MaxCPC:              maxCPC,
		CPCBuffer:           cpcBuffer,
		PassedFilters:       len(reasons) == 0,
		RejectionReasons:    reasons,
		CreatedAt:           time.Now().UTC(),
	}

	if err := s.storage.SaveScore(ctx, score); err != nil {
		return nil, fmt.Errorf("failed to save score: %w", err)
	}

	s.logger.Debug().
		Str("product_id", product.ID).
		Str("job_id", jobID).
		Bool("passed", score.PassedFilters).
		Float64("selling_price", sellingPrice).
		Msg("Product scored")

	return score, nil
}

// TopByJob returns a job's scored rows, best ranked first.
func (s *Service) TopByJob(ctx context.Context, jobID string, limit int) ([]*models.ScoredProduct, error) {
	return s.storage.ListByJob(ctx, jobID, limit)
}

// gateReasons applies the margin gates and returns one reason per failed
// gate. An empty slice means the product passed.
func gateReasons(sellingPrice, grossMargin, weightGrams float64, shipDaysMax int) []string {
	var reasons []string

	if sellingPrice < minSellingPrice {
		reasons = append(reasons, fmt.Sprintf("Selling price $%.2f < minimum $%.2f", sellingPrice, minSellingPrice))
	}
	if sellingPrice > maxSellingPrice {
		reasons = append(reasons, fmt.Sprintf("Selling price $%.2f > maximum $%.2f", sellingPrice, maxSellingPrice))
	}
	if grossMargin < minGrossMargin {
		reasons = append(reasons, fmt.Sprintf("Gross margin %.1f%% < minimum %.1f%%", grossMargin*100, minGrossMargin*100))
	}
	if weightGrams > maxWeightGrams {
		reasons = append(reasons, fmt.Sprintf("Weight %.0fg > maximum %.0fg", weightGrams, maxWeightGrams))
	}
	if shipDaysMax > maxShippingDaysLimit {
		reasons = append(reasons, fmt.Sprintf("Max shipping %d days > limit %d days", shipDaysMax, maxShippingDaysLimit))
	}

	return reasons
}

func primaryWarehouse(warehouses []string) string {
	for _, w := range warehouses {
		w = strings.ToUpper(strings.TrimSpace(w))
		if w != "" {
			return w
		}
	}
	return defaultWarehouse
}

func shippingEstimate(warehouse string) (cost float64, daysMin, daysMax int) {
	if warehouse == "US" {
		return usShippingCost, usShippingMin, usShippingMax
	}
	return intlShippingCost, intlShippingMin, intlShippingMax
}

func mapCategory(categories []string) string {
	if len(categories) == 0 {
		return fallbackCategory
	}
	combined := strings.ToLower(strings.Join(categories, " "))
	for _, entry := range categoryKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(combined, kw) {
				return entry.category
			}
		}
	}
	return fallbackCategory
}

func refundRate(category string) float64 {
	if rate, ok := refundRates[category]; ok {
		return rate
	}
	return defaultRefundRate
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
