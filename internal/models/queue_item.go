package models

import "time"

// QueueStatus represents the lifecycle state of a queue item
type QueueStatus string

const (
	QueueStatusPending   QueueStatus = "pending"
	QueueStatusSubmitted QueueStatus = "submitted"
	QueueStatusCompleted QueueStatus = "completed"
	QueueStatusFailed    QueueStatus = "failed"
)

// URLType tags the kind of page a queue item points at. The webhook path
// branches on this tag; do not model page kinds as separate types.
type URLType string

const (
	URLTypeSearch     URLType = "search"
	URLTypePagination URLType = "pagination"
	URLTypeProduct    URLType = "product"
)

// Submission priorities. Search and pagination items keep the discovery
// funnel fed, so they always go out before product detail pages.
const (
	PriorityDiscovery = 1
	PriorityProduct   = 2
)

// QueueItem is one unit of crawl work owned by a job.
//
// Invariants:
//   - state transitions only pending→submitted→{completed|failed} and
//     submitted→pending (retry)
//   - RetryCount never decreases
//   - NextAttemptAt is meaningful only while the item is pending; nil means
//     ready immediately
//   - while submitted, exactly one fetcher correlation is outstanding
type QueueItem struct {
	ID            string      `json:"id"`
	JobID         string      `json:"job_id"`
	URL           string      `json:"url"`
	URLType       URLType     `json:"url_type"`
	Keyword       string      `json:"keyword,omitempty"`
	Priority      int         `json:"priority"`
	Status        QueueStatus `json:"status"`
	RetryCount    int         `json:"retry_count"`
	NextAttemptAt *time.Time  `json:"next_attempt_at,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	SubmittedAt   *time.Time  `json:"submitted_at,omitempty"`
	CompletedAt   *time.Time  `json:"completed_at,omitempty"`
	ErrorMessage  string      `json:"error_message,omitempty"`
}

// IsDiscovery reports whether the item feeds the discovery funnel
func (q *QueueItem) IsDiscovery() bool {
	return q.URLType == URLTypeSearch || q.URLType == URLTypePagination
}
