package catalog

import (
	"bytes"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/trawler/internal/models"
)

// productHrefPattern matches catalog product detail paths and captures
// the numeric product id.
var productHrefPattern = regexp.MustCompile(`/product/[^"?#]*-p-(\d+)\.html`)

// Pagination facts render as display text ("219 Records", "of 4") or in
// the last-page link.
var (
	recordsPattern = regexp.MustCompile(`(\d+)\s*Records`)
	pagesPatterns  = []*regexp.Regexp{
		regexp.MustCompile(`of\s+(\d+)`),
		regexp.MustCompile(`of&nbsp;(\d+)`),
		regexp.MustCompile(`pageNum=(\d+)[^>]*>\s*>>\s*</a>`),
	}
)

// resultsPerPage is the catalog's fixed page size, used to estimate the
// page count when only the record total renders.
const resultsPerPage = 60

// ParseSearch extracts product links and pagination facts from a search
// or pagination results page. An empty product list is a valid result;
// keywords with no matches render an empty grid.
func (p *Parser) ParseSearch(html []byte, pageURL string) (*models.SearchResult, error) {
	page := string(html)
	if detectBotBlock(page) {
		p.logger.Warn().
			Str("url", pageURL).
			Int("html_length", len(page)).
			Str("snippet", snippet(page, 200)).
			Msg("Bot challenge page returned instead of search results")
		return nil, shapeError("bot challenge page detected")
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, shapeError("search page is not parseable HTML")
	}

	seen := make(map[string]bool)
	var products []models.ProductSummary
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		match := productHrefPattern.FindStringSubmatch(href)
		if match == nil {
			return
		}
		fullURL := p.absoluteURL(href)
		if seen[fullURL] {
			return
		}
		seen[fullURL] = true

		name := strings.TrimSpace(sel.AttrOr("title", ""))
		if name == "" {
			name = strings.TrimSpace(sel.Text())
		}
		products = append(products, models.ProductSummary{
			ID:   match[1],
			URL:  fullURL,
			Name: name,
		})
	})

	totalPages, totalRecords := extractPagination(page)
	result := &models.SearchResult{
		Products:     products,
		CurrentPage:  currentPageOf(pageURL),
		TotalPages:   totalPages,
		TotalRecords: totalRecords,
	}

	p.logger.Debug().
		Str("url", pageURL).
		Int("products", len(products)).
		Int("total_pages", totalPages).
		Int("total_records", totalRecords).
		Msg("Parsed search results page")
	return result, nil
}

func extractPagination(html string) (totalPages, totalRecords int) {
	totalPages = 1
	if m := recordsPattern.FindStringSubmatch(html); m != nil {
		totalRecords, _ = strconv.Atoi(m[1])
	}
	for _, pattern := range pagesPatterns {
		if m := pattern.FindStringSubmatch(html); m != nil {
			if n, _ := strconv.Atoi(m[1]); n > 0 {
				totalPages = n
				break
			}
		}
	}
	if totalRecords > 0 && totalPages == 1 {
		totalPages = (totalRecords + resultsPerPage - 1) / resultsPerPage
	}
	return totalPages, totalRecords
}

func currentPageOf(pageURL string) int {
	u, err := url.Parse(pageURL)
	if err != nil {
		return 1
	}
	if n, err := strconv.Atoi(u.Query().Get("pageNum")); err == nil && n > 1 {
		return n
	}
	return 1
}

func (p *Parser) absoluteURL(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return p.baseURL + href
}
