package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/trawler/internal/interfaces"
	pkgmodels "github.com/ternarybob/trawler/pkg/models"
)

// WebhookHandler receives fetch results posted back by the fetcher. The
// fetcher retries deliveries that miss a 2xx, so this endpoint acknowledges
// everything it can read and lets the crawl engine sort out attribution.
type WebhookHandler struct {
	crawler interfaces.CrawlerService
	logger  arbor.ILogger
}

// NewWebhookHandler creates the webhook receiver
func NewWebhookHandler(crawler interfaces.CrawlerService, logger arbor.ILogger) *WebhookHandler {
	return &WebhookHandler{
		crawler: crawler,
		logger:  logger,
	}
}

// ReceiveHandler ingests one webhook delivery
// POST /api/crawl/webhook
func (h *WebhookHandler) ReceiveHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}
	defer r.Body.Close()

	var payload pkgmodels.WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		// Acknowledge anyway: a malformed delivery would only be retried
		// with the same body.
		h.logger.Warn().Err(err).Msg("Webhook body could not be decoded")
		WriteJSON(w, http.StatusOK, map[string]interface{}{"status": "received", "results": 0})
		return
	}

	h.crawler.ProcessWebhook(r.Context(), &payload)

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "received",
		"results": len(payload.Results),
	})
}
