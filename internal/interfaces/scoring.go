package interfaces

import (
	"context"

	"github.com/ternarybob/trawler/internal/models"
)

// ScoringService derives unit economics for a parsed product, applies the
// margin filters and persists the scored row. It is the only writer of the
// scored-products store.
type ScoringService interface {
	// ScoreProduct computes margins for the product and stores one row
	// keyed by the catalog product id. Attempting to score an id that is
	// already stored returns the existing row unchanged.
	ScoreProduct(ctx context.Context, jobID string, product *models.ProductRecord, sourceURL string) (*models.ScoredProduct, error)

	// TopByJob returns the highest ranked rows scored during one job.
	TopByJob(ctx context.Context, jobID string, limit int) ([]*models.ScoredProduct, error)
}
