package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/support-copilot/backend/internal/escalation"
	"github.com/support-copilot/backend/internal/grounding"
	"github.com/support-copilot/backend/internal/helpdesk"
	"github.com/support-copilot/backend/internal/metrics"
	"github.com/support-copilot/backend/internal/storage/models"
	"github.com/support-copilot/backend/pkg/logger"
)

// Summarizer condenses a transcript for the handoff note. Optional; without
// one the handoff goes out with the raw transcript only.
type Summarizer interface {
	Summarize(ctx context.Context, transcript []grounding.Turn) (string, error)
}

// EscalationSender performs the outbound handoff to the support desk.
type EscalationSender interface {
	CreateEscalation(ctx context.Context, ec helpdesk.EscalationContext) (*helpdesk.EscalationResult, error)
}

type EscalationHandler struct {
	sender     EscalationSender
	summarizer Summarizer
	hub        *Hub
}

func NewEscalationHandler(sender EscalationSender, summarizer Summarizer, hub *Hub) *EscalationHandler {
	return &EscalationHandler{
		sender:     sender,
		summarizer: summarizer,
		hub:        hub,
	}
}

type escalationRequest struct {
	SessionID              string                `json:"session_id"`
	Message                string                `json:"message"`
	FailedAttempts         int                   `json:"failed_attempts"`
	SessionDurationMinutes float64               `json:"session_duration_minutes"`
	Sentiment              string                `json:"sentiment"`
	Complexity             string                `json:"complexity"`
	IssueCategory          string                `json:"issue_category"`
	MeetingURL             string                `json:"meeting_url"`
	AIAnswer               string                `json:"ai_answer"`
	ContextChunks          []models.ContextChunk `json:"context_chunks"`

	User struct {
		Identifier string `json:"identifier"`
		Name       string `json:"name"`
		Email      string `json:"email"`
	} `json:"user"`

	Transcript []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"transcript"`
}

// categories implied by a keyword trigger when the caller did not classify
// the issue itself.
var triggerCategories = map[string]string{
	escalation.TriggerSecurity: "security_incident",
	escalation.TriggerBilling:  "billing",
	escalation.TriggerLegal:    "legal",
}

// HandleEscalation runs trigger detection and the business rules for one
// session message; when they say escalate, it performs the support-desk
// handoff and reports the resulting conversation.
func (h *EscalationHandler) HandleEscalation(c *fiber.Ctx) error {
	var req escalationRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.SessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "session_id is required",
		})
	}

	trigger := escalation.DetectTrigger(req.Message, req.FailedAttempts)

	input := escalation.NeedInput{
		Attempts:               req.FailedAttempts,
		SessionDurationMinutes: req.SessionDurationMinutes,
		Sentiment:              req.Sentiment,
		Complexity:             req.Complexity,
		IssueCategory:          req.IssueCategory,
	}
	if trigger != nil {
		if trigger.Type == escalation.TriggerExplicitRequest {
			input.ExplicitRequest = true
		}
		if input.IssueCategory == "" {
			input.IssueCategory = triggerCategories[trigger.Type]
		}
		if input.Sentiment == "" && trigger.Type == escalation.TriggerFrustration {
			input.Sentiment = "frustrated"
		}
	}

	decision := escalation.EvaluateEscalationNeed(input)

	confidence := h.auditAnswer(req)

	body := fiber.Map{
		"session_id": req.SessionID,
		"decision":   decision,
	}
	if trigger != nil {
		body["trigger"] = trigger
	}
	if req.AIAnswer != "" {
		body["ai_confidence"] = confidence
	}

	if !decision.ShouldEscalate {
		return c.JSON(body)
	}

	metrics.EscalationsTotal.WithLabelValues(decision.Reason, decision.Priority).Inc()

	ec := helpdesk.EscalationContext{
		SessionID:        req.SessionID,
		AIConfidence:     confidence,
		EscalationReason: decision.Reason,
		UserSentiment:    input.Sentiment,
		AITurnCount:      len(req.Transcript),
		EscalationQuery:  req.Message,
		MeetingURL:       req.MeetingURL,
		EscalatedAt:      time.Now(),
		UserIdentifier:   req.User.Identifier,
		UserName:         req.User.Name,
		UserEmail:        req.User.Email,
	}
	for _, chunk := range req.ContextChunks {
		ec.RAGSources = append(ec.RAGSources, chunk.Source)
	}
	for _, turn := range req.Transcript {
		ec.Transcript = append(ec.Transcript, helpdesk.TranscriptTurn{
			Role:    turn.Role,
			Content: turn.Content,
		})
	}
	ec.AISummary = h.summarize(c.Context(), req)

	result, err := h.sender.CreateEscalation(c.Context(), ec)
	if err != nil {
		metrics.EscalationHandoffFailures.Inc()
		logger.Error("Escalation handoff failed",
			zap.String("session_id", req.SessionID),
			zap.Int("conversation_id", result.ConversationID),
			zap.Error(err),
		)
		// Surface the partial progress so the caller can resume.
		body["handoff"] = result
		c.Status(fiber.StatusBadGateway)
		body["error"] = "escalation handoff failed"
		return c.JSON(body)
	}

	body["handoff"] = result
	h.hub.Broadcast("escalation_created", fiber.Map{
		"session_id":      req.SessionID,
		"conversation_id": result.ConversationID,
		"reason":          decision.Reason,
		"priority":        decision.Priority,
	})

	return c.Status(fiber.StatusCreated).JSON(body)
}

// auditAnswer scores how grounded the AI's last answer was; used as the
// confidence figure in the handoff note.
func (h *EscalationHandler) auditAnswer(req escalationRequest) float64 {
	if req.AIAnswer == "" {
		return 0
	}
	check := grounding.CheckResponse(req.AIAnswer, grounding.Context{
		KnowledgeBaseChunks: req.ContextChunks,
	})
	metrics.GroundingConfidence.Observe(check.Confidence)
	return check.Confidence
}

func (h *EscalationHandler) summarize(ctx context.Context, req escalationRequest) string {
	if h.summarizer == nil || len(req.Transcript) == 0 {
		return ""
	}
	transcript := make([]grounding.Turn, len(req.Transcript))
	for i, turn := range req.Transcript {
		transcript[i] = grounding.Turn{Role: turn.Role, Content: turn.Content}
	}
	summary, err := h.summarizer.Summarize(ctx, transcript)
	if err != nil {
		// The handoff still goes out; agents fall back to the transcript.
		logger.Warn("Transcript summarization failed",
			zap.String("session_id", req.SessionID),
			zap.Error(err),
		)
		return ""
	}
	return summary
}
