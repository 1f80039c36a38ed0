package crawler

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/trawler/internal/common"
	"github.com/ternarybob/trawler/internal/services/fetcher"
)

// SelfTest submits a probe fetch through the fetcher and waits for its
// result to arrive back on the webhook endpoint. A failure means paid
// crawls would burn credits with no way to receive results, so callers
// should surface it loudly before accepting jobs.
func (s *Service) SelfTest(ctx context.Context) error {
	probeID := common.NewItemID()
	postID := fetcher.FormatPostID("boot", fetcher.KindSelfTest, probeID)

	done := make(chan struct{})
	s.selfTestMu.Lock()
	s.selfTestWaiters[probeID] = done
	s.selfTestMu.Unlock()
	defer func() {
		s.selfTestMu.Lock()
		delete(s.selfTestWaiters, probeID)
		s.selfTestMu.Unlock()
	}()

	resp, err := s.fetcher.Submit(ctx, s.config.Crawl.CatalogBaseURL, postID)
	if err != nil {
		return fmt.Errorf("self-test submit failed: %w", err)
	}
	s.logger.Info().
		Str("post_id", postID).
		Str("request_id", resp.RequestID).
		Msg("Webhook self-test submitted")

	timeout := s.config.Fetcher.SelfTestTimeout
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("no webhook received within %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// resolveSelfTest releases the waiter for a returning probe. Deleting the
// entry before closing keeps a duplicate webhook delivery from closing the
// channel twice.
func (s *Service) resolveSelfTest(probeID string) {
	s.selfTestMu.Lock()
	done, ok := s.selfTestWaiters[probeID]
	if ok {
		delete(s.selfTestWaiters, probeID)
	}
	s.selfTestMu.Unlock()
	if ok {
		close(done)
	}
}
