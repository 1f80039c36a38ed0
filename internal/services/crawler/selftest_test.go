package crawler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/trawler/internal/services/fetcher"
	pkgmodels "github.com/ternarybob/trawler/pkg/models"
)

func TestSelfTestRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	errCh := make(chan error, 1)
	go func() { errCh <- h.svc.SelfTest(ctx) }()

	// Wait for the probe submission, then echo it back as a webhook result.
	var probe submitCall
	require.Eventually(t, func() bool {
		probe = h.fetcher.lastSubmit()
		return probe.postID != ""
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "https://catalog.test", probe.url)
	assert.True(t, strings.HasPrefix(probe.postID, "crawl-boot-selftest-"))

	h.svc.ProcessWebhook(ctx, &pkgmodels.WebhookPayload{
		Results: []pkgmodels.WebhookResult{{
			Success: true,
			HTML:    "https://fetcher.test/dl/probe",
			PostID:  probe.postID,
		}},
	})

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("self-test did not complete after webhook delivery")
	}
}

func TestSelfTestTimesOutWithoutWebhook(t *testing.T) {
	h := newHarness(t)
	h.svc.config.Fetcher.SelfTestTimeout = 20 * time.Millisecond

	err := h.svc.SelfTest(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no webhook received")

	// The waiter must not leak after the timeout.
	h.svc.selfTestMu.Lock()
	remaining := len(h.svc.selfTestWaiters)
	h.svc.selfTestMu.Unlock()
	assert.Equal(t, 0, remaining)
}

func TestSelfTestSubmitFailure(t *testing.T) {
	h := newHarness(t)
	h.fetcher.submitErr = errors.New("fetcher unreachable")

	err := h.svc.SelfTest(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "self-test submit failed")
}

func TestSelfTestHonorsContextCancellation(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- h.svc.SelfTest(ctx) }()

	require.Eventually(t, func() bool {
		return h.fetcher.submitCount() > 0
	}, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("self-test did not observe cancellation")
	}
}

func TestResolveSelfTestIgnoresUnknownProbe(t *testing.T) {
	h := newHarness(t)

	// Duplicate or stale probe results must not panic.
	h.svc.ProcessWebhook(context.Background(), &pkgmodels.WebhookPayload{
		Results: []pkgmodels.WebhookResult{{
			Success: true,
			HTML:    "https://fetcher.test/dl/probe",
			PostID:  fetcher.FormatPostID("boot", fetcher.KindSelfTest, "stale"),
		}},
	})
}
