package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/trawler/internal/interfaces"
	"github.com/ternarybob/trawler/internal/models"
)

// ScoredProductStorage implements SQLite storage for the scored products
// store. The crawl path reads it for dedup; only the scoring service writes
// rows, and source_product_id uniqueness guarantees at most one record per
// catalog product.
type ScoredProductStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewScoredProductStorage creates a new scored product storage instance
func NewScoredProductStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.ScoredProductStorage {
	return &ScoredProductStorage{
		db:     db,
		logger: logger,
	}
}

const scoredColumns = `id, source_product_id, name, crawl_job_id, source, source_url,
	product_cost, shipping_cost, selling_price, category, estimated_cpc, monthly_search_volume,
	weight_grams, shipping_days_min, shipping_days_max, warehouse_country, supplier_name, inventory_count,
	cogs, gross_margin, net_margin, max_cpc, cpc_buffer, passed_filters, rejection_reasons,
	points, rank_score, recommendation, created_at`

// Exists reports whether a catalog product id is already persisted
func (s *ScoredProductStorage) Exists(ctx context.Context, sourceProductID string) (bool, error) {
	var count int
	err := s.db.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM scored_products WHERE source_product_id = ?", sourceProductID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check scored product: %w", err)
	}
	return count > 0, nil
}

// FilterExisting returns the subset of ids already persisted. One query
// instead of N so search expansion stays cheap on large result pages.
func (s *ScoredProductStorage) FilterExisting(ctx context.Context, sourceProductIDs []string) (map[string]bool, error) {
	existing := make(map[string]bool, len(sourceProductIDs))
	if len(sourceProductIDs) == 0 {
		return existing, nil
	}

	placeholders := strings.Repeat("?, ", len(sourceProductIDs)-1) + "?"
	query := fmt.Sprintf(
		"SELECT source_product_id FROM scored_products WHERE source_product_id IN (%s)", placeholders)

	args := make([]interface{}, len(sourceProductIDs))
	for i, id := range sourceProductIDs {
		args[i] = id
	}

	rows, err := s.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to filter scored products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan scored product id: %w", err)
		}
		existing[id] = true
	}

	return existing, rows.Err()
}

// GetBySourceID returns the persisted row for a catalog product id, or
// nil when the product has not been scored.
func (s *ScoredProductStorage) GetBySourceID(ctx context.Context, sourceProductID string) (*models.ScoredProduct, error) {
	query := `SELECT ` + scoredColumns + ` FROM scored_products WHERE source_product_id = ?`

	row := s.db.db.QueryRowContext(ctx, query, sourceProductID)
	score, err := scanScoredRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scored product: %w", err)
	}
	return score, nil
}

// SaveScore inserts one scored row. A duplicate source_product_id means a
// dedup race was lost; the existing row wins and the insert is dropped.
func (s *ScoredProductStorage) SaveScore(ctx context.Context, score *models.ScoredProduct) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if score.CreatedAt.IsZero() {
		score.CreatedAt = time.Now()
	}

	reasonsJSON := ""
	if len(score.RejectionReasons) > 0 {
		data, err := json.Marshal(score.RejectionReasons)
		if err != nil {
			return fmt.Errorf("failed to serialize rejection reasons: %w", err)
		}
		reasonsJSON = string(data)
	}

	passed := 0
	if score.PassedFilters {
		passed = 1
	}

	query := `
		INSERT INTO scored_products (
			id, source_product_id, name, crawl_job_id, source, source_url,
			product_cost, shipping_cost, selling_price, category, estimated_cpc, monthly_search_volume,
			weight_grams, shipping_days_min, shipping_days_max, warehouse_country, supplier_name, inventory_count,
			cogs, gross_margin, net_margin, max_cpc, cpc_buffer, passed_filters, rejection_reasons,
			points, rank_score, recommendation, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_product_id) DO NOTHING
	`

	result, err := s.db.db.ExecContext(ctx, query,
		score.ID, score.SourceProductID, score.Name, score.CrawlJobID, score.Source, score.SourceURL,
		score.ProductCost, score.ShippingCost, score.SellingPrice, score.Category, score.EstimatedCPC, score.MonthlySearchVolume,
		score.WeightGrams, score.ShippingDaysMin, score.ShippingDaysMax, score.WarehouseCountry, score.SupplierName, score.InventoryCount,
		score.COGS, score.GrossMargin, score.NetMargin, score.MaxCPC, score.CPCBuffer, passed, reasonsJSON,
		score.Points, score.RankScore, score.Recommendation, score.CreatedAt.Unix(),
	)
	if err != nil {
		s.logger.Error().Err(err).Str("source_product_id", score.SourceProductID).Msg("Failed to save scored product")
		return fmt.Errorf("failed to save scored product: %w", err)
	}

	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		s.logger.Debug().Str("source_product_id", score.SourceProductID).Msg("Scored product already exists, insert dropped")
	}

	return nil
}

// ListByJob returns rows scored during one job, best rank first
func (s *ScoredProductStorage) ListByJob(ctx context.Context, jobID string, limit int) ([]*models.ScoredProduct, error) {
	query := `SELECT ` + scoredColumns + `
		FROM scored_products
		WHERE crawl_job_id = ?
		ORDER BY rank_score DESC, net_margin DESC`
	args := []interface{}{jobID}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list scored products: %w", err)
	}
	defer rows.Close()

	var scores []*models.ScoredProduct
	for rows.Next() {
		score, err := scanScoredRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scored product: %w", err)
		}
		scores = append(scores, score)
	}

	return scores, rows.Err()
}

// CountByJob returns the number of rows scored during one job
func (s *ScoredProductStorage) CountByJob(ctx context.Context, jobID string) (int, error) {
	var count int
	err := s.db.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM scored_products WHERE crawl_job_id = ?", jobID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count scored products: %w", err)
	}
	return count, nil
}

func scanScoredRow(scan func(dest ...interface{}) error) (*models.ScoredProduct, error) {
	var (
		id, sourceProductID, name, source                string
		crawlJobID, sourceURL, category                  sql.NullString
		warehouseCountry, supplierName, recommendation   sql.NullString
		reasonsJSON                                      sql.NullString
		productCost, shippingCost, sellingPrice          float64
		estimatedCPC, weightGrams                        float64
		cogs, grossMargin, netMargin, maxCPC, cpcBuffer  float64
		points, rankScore                                float64
		monthlySearchVolume, inventoryCount              int
		shippingDaysMin, shippingDaysMax, passedFilters  int
		createdAt                                        int64
	)

	err := scan(&id, &sourceProductID, &name, &crawlJobID, &source, &sourceURL,
		&productCost, &shippingCost, &sellingPrice, &category, &estimatedCPC, &monthlySearchVolume,
		&weightGrams, &shippingDaysMin, &shippingDaysMax, &warehouseCountry, &supplierName, &inventoryCount,
		&cogs, &grossMargin, &netMargin, &maxCPC, &cpcBuffer, &passedFilters, &reasonsJSON,
		&points, &rankScore, &recommendation, &createdAt)
	if err != nil {
		return nil, err
	}

	score := &models.ScoredProduct{
		ID:                  id,
		SourceProductID:     sourceProductID,
		Name:                name,
		Source:              source,
		ProductCost:         productCost,
		ShippingCost:        shippingCost,
		SellingPrice:        sellingPrice,
		EstimatedCPC:        estimatedCPC,
		MonthlySearchVolume: monthlySearchVolume,
		WeightGrams:         weightGrams,
		ShippingDaysMin:     shippingDaysMin,
		ShippingDaysMax:     shippingDaysMax,
		InventoryCount:      inventoryCount,
		COGS:                cogs,
		GrossMargin:         grossMargin,
		NetMargin:           netMargin,
		MaxCPC:              maxCPC,
		CPCBuffer:           cpcBuffer,
		PassedFilters:       passedFilters != 0,
		Points:              points,
		RankScore:           rankScore,
		CreatedAt:           unixToTime(createdAt),
	}

	if crawlJobID.Valid {
		score.CrawlJobID = crawlJobID.String
	}
	if sourceURL.Valid {
		score.SourceURL = sourceURL.String
	}
	if category.Valid {
		score.Category = category.String
	}
	if warehouseCountry.Valid {
		score.WarehouseCountry = warehouseCountry.String
	}
	if supplierName.Valid {
		score.SupplierName = supplierName.String
	}
	if recommendation.Valid {
		score.Recommendation = recommendation.String
	}
	if reasonsJSON.Valid && reasonsJSON.String != "" {
		var reasons []string
		if err := json.Unmarshal([]byte(reasonsJSON.String), &reasons); err == nil {
			score.RejectionReasons = reasons
		}
	}

	return score, nil
}
