package catalog

import (
	"regexp"
	"strings"
)

// Anchor patterns for the embedded product object. The data is assigned
// to a page-global in a script tag, with a few observed spellings.
var anchorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`productDetailData\s*=\s*`),
	regexp.MustCompile(`window\.productDetailData\s*=\s*`),
	regexp.MustCompile(`"productDetailData"\s*:\s*`),
}

// maxAnchorGap is how far past the anchor the opening brace may sit.
// Anything further means the anchor matched unrelated script text.
const maxAnchorGap = 20

// findEmbeddedObject locates the product object in page HTML and returns
// the balanced-brace slice starting at its opening brace.
func findEmbeddedObject(html string) (string, error) {
	for _, pattern := range anchorPatterns {
		loc := pattern.FindStringIndex(html)
		if loc == nil {
			continue
		}
		bracePos := strings.IndexByte(html[loc[1]:], '{')
		if bracePos < 0 || bracePos >= maxAnchorGap {
			continue
		}
		return extractBalancedObject(html[loc[1]+bracePos:])
	}
	return "", shapeError("product data anchor not found")
}

// extractBalancedObject returns the prefix of s spanning one complete
// JSON-ish object. Brace depth is tracked outside string literals only,
// with backslash escapes honored, so braces inside values never skew
// the depth count.
func extractBalancedObject(s string) (string, error) {
	if len(s) == 0 || s[0] != '{' {
		return "", syntaxError("object does not start with a brace", nil)
	}
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			if escaped {
				escaped = false
				continue
			}
			switch c {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1], nil
			}
		}
	}
	return "", syntaxError("unbalanced braces in product data", nil)
}

// normalizeScriptJSON rewrites a JavaScript object literal into strict
// JSON: bare undefined values become null and trailing commas are
// dropped. String contents pass through untouched.
func normalizeScriptJSON(src string) string {
	var b strings.Builder
	b.Grow(len(src))
	inString := false
	escaped := false
	var lastSig byte
	for i := 0; i < len(src); i++ {
		c := src[i]
		if inString {
			b.WriteByte(c)
			if escaped {
				escaped = false
				continue
			}
			switch c {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
			continue
		}
		switch {
		case c == '"':
			inString = true
			lastSig = c
			b.WriteByte(c)
		case c == 'u' && strings.HasPrefix(src[i:], "undefined") && isValueStart(lastSig) && !identByteAt(src, i+len("undefined")):
			b.WriteString("null")
			lastSig = 'l'
			i += len("undefined") - 1
		case c == ',':
			if j := nextSignificant(src, i+1); j < len(src) && (src[j] == '}' || src[j] == ']') {
				continue
			}
			lastSig = c
			b.WriteByte(c)
		default:
			if !isSpace(c) {
				lastSig = c
			}
			b.WriteByte(c)
		}
	}
	return b.String()
}

// isValueStart reports whether a token following lastSig would be read
// as a value rather than part of an identifier or key.
func isValueStart(lastSig byte) bool {
	return lastSig == ':' || lastSig == ',' || lastSig == '['
}

func identByteAt(s string, i int) bool {
	if i >= len(s) {
		return false
	}
	c := s[i]
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func nextSignificant(s string, i int) int {
	for ; i < len(s); i++ {
		if !isSpace(s[i]) {
			return i
		}
	}
	return i
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
