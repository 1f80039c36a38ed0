package fetcher

import (
	"fmt"
	"strings"
)

// Correlation kinds carried in post ids. The first three mirror queue item
// URL types; selftest marks the startup webhook round-trip probe.
const (
	KindSearch     = "search"
	KindPagination = "pagination"
	KindProduct    = "product"
	KindSelfTest   = "selftest"
)

const postIDPrefix = "crawl-"

var validKinds = map[string]bool{
	KindSearch:     true,
	KindPagination: true,
	KindProduct:    true,
	KindSelfTest:   true,
}

// Correlation is the decoded form of a post id round-tripped with the
// fetcher: crawl-{job_id}-{kind}-{item_id}.
type Correlation struct {
	JobID  string
	Kind   string
	ItemID string
}

// FormatPostID encodes a correlation id for a fetcher submission
func FormatPostID(jobID, kind, itemID string) string {
	return fmt.Sprintf("%s%s-%s-%s", postIDPrefix, jobID, kind, itemID)
}

// ParsePostID decodes a correlation id. The kind and item id are parsed from
// the right so an opaque job id containing hyphens still resolves; kinds are
// a fixed vocabulary and our item ids never contain hyphens.
func ParsePostID(postID string) (*Correlation, error) {
	if !strings.HasPrefix(postID, postIDPrefix) {
		return nil, fmt.Errorf("malformed post id %q: missing crawl prefix", postID)
	}

	rest := postID[len(postIDPrefix):]

	itemSep := strings.LastIndex(rest, "-")
	if itemSep <= 0 {
		return nil, fmt.Errorf("malformed post id %q: missing item id", postID)
	}
	itemID := rest[itemSep+1:]
	rest = rest[:itemSep]

	kindSep := strings.LastIndex(rest, "-")
	if kindSep <= 0 {
		return nil, fmt.Errorf("malformed post id %q: missing kind", postID)
	}
	kind := rest[kindSep+1:]
	jobID := rest[:kindSep]

	if !validKinds[kind] {
		return nil, fmt.Errorf("malformed post id %q: unknown kind %q", postID, kind)
	}
	if jobID == "" || itemID == "" {
		return nil, fmt.Errorf("malformed post id %q: empty identifier", postID)
	}

	return &Correlation{JobID: jobID, Kind: kind, ItemID: itemID}, nil
}
