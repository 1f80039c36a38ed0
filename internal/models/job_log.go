package models

// JobLogEntry is a structured log line scoped to a crawl job, persisted for
// the admin logs endpoint and the live stream. Level holds a 3-letter code
// (INF, WRN, ERR, DBG). FullTimestamp is RFC3339Nano and is the sort key.
type JobLogEntry struct {
	Key           string `json:"-" badgerhold:"key"`
	JobID         string `json:"-" badgerhold:"index"`
	Timestamp     string `json:"ts"`
	FullTimestamp string `json:"full_ts"`
	Level         string `json:"level"`
	Message       string `json:"msg"`
}
