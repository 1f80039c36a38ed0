package catalog

import "regexp"

// Removal and block detection both have to dodge the catalog's i18n
// bundle: phrases like "Product removed" and "captcha" ship as
// translation strings on every page, so only contextual matches count.

var emptyDetailPattern = regexp.MustCompile(`productDetailData\s*=\s*\{\s*\}`)

var removalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Product removed\.\s*You may`),
	regexp.MustCompile(`(?i)<[^>]*>Product removed<`),
	regexp.MustCompile(`(?i)>\s*Product removed\s*<`),
	regexp.MustCompile(`(?i)Product has been removed`),
	regexp.MustCompile(`(?i)This product is no longer available`),
}

func detectRemovedProduct(html string) bool {
	if emptyDetailPattern.MatchString(html) {
		return true
	}
	for _, pattern := range removalPatterns {
		if pattern.MatchString(html) {
			return true
		}
	}
	return false
}

var blockPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<title>.*(?:Attention Required|Just a moment).*</title>`),
	regexp.MustCompile(`(?i)class="[^"]*captcha[^"]*"`),
	regexp.MustCompile(`(?i)action=".*cloudflare.*challenge`),
	regexp.MustCompile(`(?i)<title>.*Access Denied.*</title>`),
}

var shortBlockPattern = regexp.MustCompile(`(?i)blocked|denied|forbidden`)

// minRealPageSize is well under a rendered product page (typically
// >50KB); pages smaller than this that mention blocking are challenge
// or error pages.
const minRealPageSize = 5000

func detectBotBlock(html string) bool {
	for _, pattern := range blockPatterns {
		if pattern.MatchString(html) {
			return true
		}
	}
	if len(html) < minRealPageSize && shortBlockPattern.MatchString(html) {
		return true
	}
	return false
}
