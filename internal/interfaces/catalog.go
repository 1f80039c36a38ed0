package interfaces

import (
	"github.com/ternarybob/trawler/internal/models"
)

// CatalogParser extracts structured product data from rendered catalog
// pages. Parsers are stateless and safe for concurrent use.
type CatalogParser interface {
	// ParseProduct extracts a product record from a product detail page.
	ParseProduct(html []byte, pageURL string) (*models.ProductRecord, error)

	// ParseSearch extracts product links and pagination facts from a search
	// results page.
	ParseSearch(html []byte, pageURL string) (*models.SearchResult, error)
}
