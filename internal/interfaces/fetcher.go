package interfaces

import (
	"context"

	pkgmodels "github.com/ternarybob/trawler/pkg/models"
)

// FetcherClient talks to the external fetch-and-render service. Submissions
// are asynchronous: the service acknowledges immediately and later delivers
// the rendered page to our webhook endpoint.
type FetcherClient interface {
	// Submit schedules a fetch for url. postID is echoed back on the
	// webhook callback to correlate the result with its queue item.
	Submit(ctx context.Context, url string, postID string) (*pkgmodels.SubmitResponse, error)

	// Download retrieves a rendered payload from the URL a successful
	// webhook result points at, transparently decompressing it.
	Download(ctx context.Context, resourceURL string) ([]byte, error)

	// WebhookURL returns the callback URL submissions are configured with.
	WebhookURL() string
}
