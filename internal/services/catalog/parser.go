package catalog

import (
	"encoding/json"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trawler/internal/common"
	"github.com/ternarybob/trawler/internal/interfaces"
	"github.com/ternarybob/trawler/internal/models"
)

// minObjectSize rejects placeholder objects left behind when the page
// rendered before its data loaded.
const minObjectSize = 10

// Parser extracts product and search records from rendered catalog
// pages. It holds no mutable state and is safe for concurrent use.
type Parser struct {
	baseURL string
	logger  arbor.ILogger
}

// NewParser creates a catalog parser
func NewParser(config *common.Config, logger arbor.ILogger) interfaces.CatalogParser {
	return &Parser{
		baseURL: strings.TrimRight(config.Crawl.CatalogBaseURL, "/"),
		logger:  logger,
	}
}

// ParseProduct extracts the product record embedded in a product detail
// page. The page carries its data as a JavaScript object literal
// assigned to a page global; the object is located by anchor token,
// cut out by balanced-brace matching, normalized to strict JSON, and
// decoded into the canonical record.
func (p *Parser) ParseProduct(html []byte, pageURL string) (*models.ProductRecord, error) {
	page := string(html)

	// Removal is checked before block detection: removed-product pages
	// are small and would otherwise trip the short-page block heuristic.
	if detectRemovedProduct(page) {
		return nil, ErrProductRemoved
	}
	if detectBotBlock(page) {
		p.logger.Warn().
			Str("url", pageURL).
			Int("html_length", len(page)).
			Str("snippet", snippet(page, 200)).
			Msg("Bot challenge page returned instead of product page")
		return nil, shapeError("bot challenge page detected")
	}

	raw, err := findEmbeddedObject(page)
	if err != nil {
		if KindOf(err) == ParseShape {
			p.logger.Warn().
				Str("url", pageURL).
				Int("html_length", len(page)).
				Str("snippet", snippet(page, 300)).
				Msg("Product data anchor not found in page")
		}
		return nil, err
	}
	if len(raw) < minObjectSize {
		return nil, incompleteError("product data object is empty")
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(normalizeScriptJSON(raw)), &data); err != nil {
		p.logger.Warn().
			Str("url", pageURL).
			Str("snippet", snippet(raw, 300)).
			Err(err).
			Msg("Product data did not decode as JSON")
		return nil, syntaxError("product data is not valid JSON", err)
	}

	return p.normalizeProduct(data, pageURL)
}

func (p *Parser) normalizeProduct(data map[string]any, pageURL string) (*models.ProductRecord, error) {
	id := stringField(data, "id", "productId", "pid")
	if id == "" {
		return nil, incompleteError("product id missing")
	}
	name := stringField(data, "nameEn", "productNameEn", "entryNameEn", "name", "productName")
	if name == "" {
		return nil, incompleteError("product name missing")
	}

	variants := variantList(data)

	sellPrice := floatField(data, "sellPrice", "sellPriceMin")
	priceMin := floatField(data, "sellPriceMin")
	if priceMin == 0 {
		priceMin = sellPrice
	}
	priceMax := floatField(data, "sellPriceMax")
	if priceMax == 0 {
		priceMax = sellPrice
	}
	if priceMin == 0 && priceMax == 0 {
		// Some page variants price only the variant rows.
		priceMin, priceMax = variantPriceRange(variants)
	}
	if priceMax < priceMin {
		priceMax = priceMin
	}
	if priceMin <= 0 && priceMax <= 0 {
		return nil, incompleteError("product has no sell price")
	}

	weightMin := floatField(data, "weight", "productWeight")
	weightMax := floatField(data, "weightMax")
	if weightMax == 0 {
		weightMax = weightMin
	}

	record := &models.ProductRecord{
		ID:           id,
		Name:         name,
		SKU:          stringField(data, "sku", "productSku"),
		SellPriceMin: priceMin,
		SellPriceMax: priceMax,
		WeightMin:    weightMin,
		WeightMax:    weightMax,
		CategoryPath: strings.Join(categoryList(data), " > "),
		SupplierID:   stringField(data, "supplierId", "supplierID"),
		SupplierName: stringField(data, "supplierName"),
		Warehouses:   warehouseSet(data),
		Variants:     variants,
		ImageURLs:    imageList(data),
		Inventory:    intField(data, "warehouseInventory", "inventory"),
		Description:  p.productDescription(data, pageURL),
	}
	return record, nil
}

func categoryList(data map[string]any) []string {
	raw, ok := data["category"]
	if !ok {
		raw = data["categories"]
	}
	var cats []string
	switch v := raw.(type) {
	case []any:
		for _, item := range v {
			switch c := item.(type) {
			case map[string]any:
				if name := stringField(c, "name", "categoryNameEn"); name != "" {
					cats = append(cats, name)
				}
			case string:
				if c != "" {
					cats = append(cats, c)
				}
			}
		}
	case string:
		if v != "" {
			cats = []string{v}
		}
	}
	if len(cats) == 0 {
		if name := stringField(data, "categoryName", "categoryNameEn"); name != "" {
			cats = []string{name}
		}
	}
	return cats
}

func variantList(data map[string]any) []models.ProductVariant {
	raw, ok := data["variants"]
	if !ok {
		raw = data["variantList"]
	}
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	var out []models.ProductVariant
	for _, item := range items {
		v, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, models.ProductVariant{
			SKU:            stringField(v, "sku", "variantSku"),
			SellPrice:      floatField(v, "sellPrice", "variantSellPrice"),
			SuggestedPrice: floatField(v, "retailPrice"),
			Weight:         floatField(v, "weight", "variantWeight"),
			PackWeight:     floatField(v, "packWeight"),
		})
	}
	return out
}

func variantPriceRange(variants []models.ProductVariant) (min, max float64) {
	for _, v := range variants {
		if v.SellPrice <= 0 {
			continue
		}
		if min == 0 || v.SellPrice < min {
			min = v.SellPrice
		}
		if v.SellPrice > max {
			max = v.SellPrice
		}
	}
	return min, max
}

func warehouseSet(data map[string]any) []string {
	raw, ok := data["warehouseCountry"]
	if !ok {
		raw = data["warehouseCountryCode"]
	}
	switch v := raw.(type) {
	case string:
		if v != "" {
			return []string{v}
		}
	case []any:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func imageList(data map[string]any) []string {
	for _, key := range []string{"imageUrl", "productImage", "mainImage"} {
		switch v := data[key].(type) {
		case string:
			if v != "" {
				return []string{v}
			}
		case []any:
			var out []string
			for _, item := range v {
				if s, ok := item.(string); ok && s != "" {
					out = append(out, s)
				}
			}
			if len(out) > 0 {
				return out
			}
		}
	}
	return nil
}

// productDescription renders the HTML description down to markdown so
// downstream consumers store readable text instead of markup.
func (p *Parser) productDescription(data map[string]any, pageURL string) string {
	desc := stringField(data, "description", "productDesc")
	if desc == "" {
		return ""
	}
	if !strings.Contains(desc, "<") {
		return strings.TrimSpace(desc)
	}
	converter := md.NewConverter(pageURL, true, nil)
	converted, err := converter.ConvertString(desc)
	if err != nil {
		p.logger.Debug().Err(err).Msg("Description markdown conversion failed, keeping raw text")
		return strings.TrimSpace(desc)
	}
	return strings.TrimSpace(converted)
}
