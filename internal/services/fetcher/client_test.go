package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/trawler/internal/common"
	pkgmodels "github.com/ternarybob/trawler/pkg/models"
)

func testConfig(baseURL string) *common.Config {
	config := common.NewDefaultConfig()
	config.Fetcher.APIKey = "test-key"
	config.Fetcher.BaseURL = baseURL
	config.Fetcher.WebhookBaseURL = "https://callbacks.example.com/"
	return config
}

func TestClient_Submit_SendsCorrelationAndWebhook(t *testing.T) {
	var captured pkgmodels.SubmitRequest
	var authHeader string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/browser", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(map[string]string{"request_id": "req-42"})
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), common.GetLogger())

	resp, err := client.Submit(context.Background(), "https://example.com/page", "crawl-job1-search-item1")
	require.NoError(t, err)

	assert.Equal(t, "req-42", resp.RequestID)
	assert.Equal(t, "Bearer test-key", authHeader)
	assert.Equal(t, "https://example.com/page", captured.URL)
	assert.Equal(t, "crawl-job1-search-item1", captured.PostID)
	assert.Equal(t, "desktop", captured.Device)
	assert.Equal(t, "https://callbacks.example.com/api/crawl/webhook", captured.PostbackURL)
}

func TestClient_Submit_NormalizesIDField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "alt-7"})
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), common.GetLogger())

	resp, err := client.Submit(context.Background(), "https://example.com", "crawl-j-product-i")
	require.NoError(t, err)
	assert.Equal(t, "alt-7", resp.RequestID)
}

func TestClient_Submit_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("invalid api key"))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), common.GetLogger())

	_, err := client.Submit(context.Background(), "https://example.com", "crawl-j-search-i")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, "invalid api key", apiErr.Message)
}

func TestClient_Download_DecompressesBrotli(t *testing.T) {
	var compressed bytes.Buffer
	bw := brotli.NewWriter(&compressed)
	_, err := bw.Write([]byte("<html>payload</html>"))
	require.NoError(t, err)
	require.NoError(t, bw.Close())

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "br")
		w.Write(compressed.Bytes())
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), common.GetLogger())

	html, err := client.Download(context.Background(), server.URL+"/stored/abc")
	require.NoError(t, err)
	assert.Equal(t, "<html>payload</html>", string(html))
}

func TestClient_Download_FallsBackToRawPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>plain</html>"))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), common.GetLogger())

	html, err := client.Download(context.Background(), server.URL+"/stored/def")
	require.NoError(t, err)
	assert.Equal(t, "<html>plain</html>", string(html))
}

func TestClient_WebhookURL_TrimsTrailingSlash(t *testing.T) {
	client := NewClient(testConfig("https://fetcher.example.com"), common.GetLogger())
	assert.Equal(t, "https://callbacks.example.com/api/crawl/webhook", client.WebhookURL())
}

func TestParsePostID_ValidKinds(t *testing.T) {
	tests := []struct {
		postID string
		jobID  string
		kind   string
		itemID string
	}{
		{"crawl-abc123-search-def456", "abc123", KindSearch, "def456"},
		{"crawl-abc123-pagination-def456", "abc123", KindPagination, "def456"},
		{"crawl-abc123-product-def456", "abc123", KindProduct, "def456"},
		{"crawl-boot-selftest-probe1", "boot", KindSelfTest, "probe1"},
	}

	for _, tt := range tests {
		corr, err := ParsePostID(tt.postID)
		require.NoError(t, err, tt.postID)
		assert.Equal(t, tt.jobID, corr.JobID)
		assert.Equal(t, tt.kind, corr.Kind)
		assert.Equal(t, tt.itemID, corr.ItemID)
	}
}

func TestParsePostID_HyphenatedJobID(t *testing.T) {
	corr, err := ParsePostID("crawl-job-with-hyphens-product-item9")
	require.NoError(t, err)
	assert.Equal(t, "job-with-hyphens", corr.JobID)
	assert.Equal(t, KindProduct, corr.Kind)
	assert.Equal(t, "item9", corr.ItemID)
}

func TestParsePostID_Malformed(t *testing.T) {
	malformed := []string{
		"",
		"crawl-",
		"nonsense",
		"crawl-job1",
		"crawl-job1-item1",
		"crawl-job1-banana-item1",
		"scrape-job1-search-item1",
	}

	for _, postID := range malformed {
		_, err := ParsePostID(postID)
		assert.Error(t, err, postID)
	}
}

func TestFormatPostID_RoundTrip(t *testing.T) {
	postID := FormatPostID("job1", KindPagination, "item2")
	assert.Equal(t, "crawl-job1-pagination-item2", postID)

	corr, err := ParsePostID(postID)
	require.NoError(t, err)
	assert.Equal(t, "job1", corr.JobID)
	assert.Equal(t, KindPagination, corr.Kind)
	assert.Equal(t, "item2", corr.ItemID)
}
