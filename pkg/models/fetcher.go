// Package models holds the wire-level types shared with external consumers
// of the trawler API: the fetcher submission contract and the webhook
// callback payload it round-trips back to us.
package models

// SubmitRequest is the body posted to the fetcher to schedule a page fetch.
// PostID is the correlation id echoed back on the webhook callback;
// PostbackURL is where the fetcher delivers the result.
type SubmitRequest struct {
	URL         string `json:"url"`
	Device      string `json:"device"`
	PostbackURL string `json:"postback_url"`
	PostID      string `json:"post_id"`
}

// SubmitResponse is the fetcher's synchronous acknowledgment. Some fetcher
// deployments return the request id under "id" instead of "request_id".
type SubmitResponse struct {
	RequestID string `json:"request_id,omitempty"`
	ID        string `json:"id,omitempty"`
	Status    string `json:"status,omitempty"`
	Message   string `json:"message,omitempty"`
}

// WebhookPayload is the asynchronous callback body delivered by the fetcher.
// A single delivery may carry multiple results.
type WebhookPayload struct {
	Status  string          `json:"status"`
	Results []WebhookResult `json:"results"`
}

// WebhookResult is one fetched page outcome. On success HTML holds a URL the
// rendered payload can be downloaded from, not the page content itself.
type WebhookResult struct {
	Success bool   `json:"success"`
	URL     string `json:"url"`
	HTML    string `json:"html,omitempty"`
	PostID  string `json:"post_id"`
	Error   string `json:"error,omitempty"`
}
