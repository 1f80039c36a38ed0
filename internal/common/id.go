package common

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// NewJobID generates a short hex id for a crawl job.
// Job and item ids never contain hyphens so the correlation id
// crawl-{job}-{kind}-{item} stays unambiguous to split.
func NewJobID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])[:8]
}

// NewItemID generates a hex id for a queue item
func NewItemID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])[:12]
}

// NewRuleID generates a unique id for an exclusion rule
func NewRuleID() string {
	return uuid.New().String()
}

// NewEventID generates a unique id for a crawl event
func NewEventID() string {
	return uuid.New().String()
}

// NewScoreID generates a unique id for a scored product row
func NewScoreID() string {
	return uuid.New().String()
}
