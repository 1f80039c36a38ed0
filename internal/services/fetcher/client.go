package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/trawler/internal/common"
	"github.com/ternarybob/trawler/internal/httpclient"
	"github.com/ternarybob/trawler/internal/interfaces"
	pkgmodels "github.com/ternarybob/trawler/pkg/models"
	"golang.org/x/time/rate"
)

// APIError is a non-2xx response from the fetcher API
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("fetcher api error: %s returned %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

// Client submits URLs to the remote fetch-and-render service and downloads
// rendered payloads. The service posts results back to our webhook; Submit
// only schedules work.
type Client struct {
	config         *common.FetcherConfig
	submitClient   *http.Client
	downloadClient *http.Client
	limiter        *rate.Limiter
	webhookURL     string
	logger         arbor.ILogger
}

// NewClient creates a fetcher client from configuration
func NewClient(config *common.Config, logger arbor.ILogger) interfaces.FetcherClient {
	webhookURL := strings.TrimRight(config.Fetcher.WebhookBaseURL, "/") + "/api/crawl/webhook"

	return &Client{
		config:         &config.Fetcher,
		submitClient:   httpclient.NewDefaultHTTPClient(config.Fetcher.SubmitTimeout),
		downloadClient: httpclient.NewPooledHTTPClient(config.Fetcher.DownloadTimeout),
		limiter:        rate.NewLimiter(rate.Every(config.Fetcher.RateLimit), 1),
		webhookURL:     webhookURL,
		logger:         logger,
	}
}

// Submit schedules a fetch for url. postID is echoed back on the webhook
// callback. The submit timeout bounds this call; the page fetch itself
// happens on the fetcher's side and completes via webhook.
func (c *Client) Submit(ctx context.Context, url string, postID string) (*pkgmodels.SubmitResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	endpoint := strings.TrimRight(c.config.BaseURL, "/") + "/v2/browser"

	body, err := json.Marshal(pkgmodels.SubmitRequest{
		URL:         url,
		Device:      "desktop",
		PostbackURL: c.webhookURL,
		PostID:      postID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode submit request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build submit request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.submitClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read submit response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(respBody)),
			Endpoint:   endpoint,
		}
	}

	var submitResp pkgmodels.SubmitResponse
	if err := json.Unmarshal(respBody, &submitResp); err != nil {
		return nil, fmt.Errorf("failed to decode submit response: %w", err)
	}
	if submitResp.RequestID == "" {
		submitResp.RequestID = submitResp.ID
	}

	c.logger.Debug().
		Str("post_id", postID).
		Str("request_id", submitResp.RequestID).
		Msg("URL submitted to fetcher")

	return &submitResp, nil
}

// Download retrieves a rendered payload from the URL a webhook result points
// at. The fetcher stores payloads brotli-compressed; payloads that fail to
// decompress are returned as-is since older storage nodes serve plain HTML.
func (c *Client) Download(ctx context.Context, resourceURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build download request: %w", err)
	}

	resp, err := c.downloadClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    resp.Status,
			Endpoint:   resourceURL,
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}

	if resp.Header.Get("Content-Encoding") == "br" {
		decoded, err := io.ReadAll(brotli.NewReader(bytes.NewReader(raw)))
		if err != nil {
			return nil, fmt.Errorf("brotli decompression failed: %w", err)
		}
		return decoded, nil
	}

	if decoded, err := io.ReadAll(brotli.NewReader(bytes.NewReader(raw))); err == nil && len(decoded) > 0 {
		return decoded, nil
	}
	return raw, nil
}

// WebhookURL returns the callback URL submissions are configured with
func (c *Client) WebhookURL() string {
	return c.webhookURL
}
