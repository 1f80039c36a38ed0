package models

import "time"

// Crawl event types recorded against the per-job diagnostic timeline
const (
	CrawlEventSubmit  = "submit"
	CrawlEventWebhook = "webhook"
	CrawlEventRetry   = "retry"
	CrawlEventFail    = "fail"
	CrawlEventParseOK = "parse_ok"
)

// CrawlEvent is one append-only entry in a job's diagnostic timeline.
// Submit events double as the data source for the pacing timeline endpoint.
type CrawlEvent struct {
	ID          string                 `json:"id" badgerhold:"key"`
	JobID       string                 `json:"job_id" badgerhold:"index"`
	QueueItemID string                 `json:"queue_item_id,omitempty"`
	EventType   string                 `json:"event_type" badgerhold:"index"`
	URL         string                 `json:"url,omitempty"`
	Keyword     string                 `json:"keyword,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// TimelineEntry is one submission in the reconstructed pacing timeline.
// GapSeconds is the delay since the previous submission, 0 for the first.
type TimelineEntry struct {
	URL        string    `json:"url"`
	Keyword    string    `json:"keyword,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	GapSeconds float64   `json:"gap_seconds"`
}

// SubmitTimeline is the pacing timeline for one job, oldest first.
type SubmitTimeline struct {
	Timeline         []TimelineEntry `json:"timeline"`
	TotalSubmissions int             `json:"total_submissions"`
}
