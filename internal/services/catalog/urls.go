package catalog

import (
	"fmt"
	"regexp"
	"strings"
)

var productIDPattern = regexp.MustCompile(`-p-(\d+)\.html`)

// ExtractProductID pulls the numeric product id out of a product detail
// URL, or returns "" when the URL does not carry one.
func ExtractProductID(rawURL string) string {
	match := productIDPattern.FindStringSubmatch(rawURL)
	if match == nil {
		return ""
	}
	return match[1]
}

// SearchURL builds the catalog search URL for a keyword. Spaces become
// plus signs; pages past the first carry an explicit page number.
func SearchURL(baseURL, keyword string, page int) string {
	encoded := strings.ReplaceAll(strings.TrimSpace(keyword), " ", "+")
	base := fmt.Sprintf("%s/search/%s.html", strings.TrimRight(baseURL, "/"), encoded)
	if page > 1 {
		return fmt.Sprintf("%s?pageNum=%d", base, page)
	}
	return base
}
