package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/support-copilot/backend/internal/helpdesk"
	"github.com/support-copilot/backend/internal/metrics"
	"github.com/support-copilot/backend/internal/storage/models"
	"github.com/support-copilot/backend/pkg/logger"
)

const signatureHeader = "X-Webhook-Signature"

// FeedbackStore persists agent replies extracted from inbound webhooks.
type FeedbackStore interface {
	StoreAgentFeedback(fb *models.AgentFeedback) error
}

type WebhookHandler struct {
	secret string
	store  FeedbackStore
	hub    *Hub
}

func NewWebhookHandler(secret string, store FeedbackStore, hub *Hub) *WebhookHandler {
	if secret == "" {
		logger.Warn("Webhook signature verification is DISABLED; configure a webhook secret for production")
	}
	return &WebhookHandler{
		secret: secret,
		store:  store,
		hub:    hub,
	}
}

// HandleWebhook ingests one support-desk event. A bad signature is the only
// rejection; everything past that point returns 200 so the desk never
// retries events we merely chose to ignore.
func (h *WebhookHandler) HandleWebhook(c *fiber.Ctx) error {
	body := c.Body()

	if err := helpdesk.VerifySignature(body, c.Get(signatureHeader), h.secret); err != nil {
		metrics.WebhookSignatureFailures.Inc()
		logger.Warn("Webhook rejected", zap.Error(err))
		return respondError(c, err)
	}

	evt := helpdesk.ParseWebhook(body)
	metrics.WebhookEventsTotal.WithLabelValues(string(evt.Type)).Inc()

	if evt.Type == helpdesk.EventUnknown {
		return c.JSON(fiber.Map{"status": "ignored"})
	}

	if sessionID, content, ok := helpdesk.ExtractAgentResponse(evt); ok {
		createdAt := time.Now()
		if evt.Message.CreatedAt > 0 {
			createdAt = time.Unix(evt.Message.CreatedAt, 0)
		}
		fb := &models.AgentFeedback{
			SessionID:      sessionID,
			ConversationID: evt.ConversationID,
			AgentResponse:  content,
			CreatedAt:      createdAt,
		}
		if err := h.store.StoreAgentFeedback(fb); err != nil {
			// Still a 200: a storage hiccup must not trigger desk retries,
			// the failure is logged and counted instead.
			logger.Error("Failed to store agent feedback",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
		}
	}

	h.hub.Broadcast("helpdesk_"+string(evt.Type), fiber.Map{
		"conversation_id": evt.ConversationID,
		"session_id":      evt.SessionID,
		"status":          evt.Status,
	})

	return c.JSON(fiber.Map{"status": "processed"})
}
