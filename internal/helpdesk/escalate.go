package helpdesk

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/support-copilot/backend/pkg/logger"
)

// EscalationContext is the handoff payload sent to the support desk when a
// conversation moves from AI to human. Immutable once sent.
type EscalationContext struct {
	SessionID        string    `json:"session_id"`
	AISummary        string    `json:"ai_summary"`
	AIConfidence     float64   `json:"ai_confidence"`
	EscalationReason string    `json:"escalation_reason"`
	UserSentiment    string    `json:"user_sentiment,omitempty"`
	AITurnCount      int       `json:"ai_turn_count"`
	RAGSources       []string  `json:"rag_sources,omitempty"`
	EscalationQuery  string    `json:"escalation_query,omitempty"`
	MeetingURL       string    `json:"meeting_url,omitempty"`
	EscalatedAt      time.Time `json:"escalated_at"`

	UserIdentifier string           `json:"user_identifier"`
	UserName       string           `json:"user_name,omitempty"`
	UserEmail      string           `json:"user_email,omitempty"`
	Transcript     []TranscriptTurn `json:"transcript,omitempty"`
}

type TranscriptTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// EscalationResult reports how far the handoff got. ConversationID is set
// as soon as the conversation exists, even when a later step failed, so the
// caller can retry labels/note/status against it.
type EscalationResult struct {
	ContactID      int  `json:"contact_id"`
	ConversationID int  `json:"conversation_id"`
	Completed      bool `json:"completed"`
}

const transcriptTurnLimit = 10

var labelSanitizer = regexp.MustCompile(`[^a-z0-9_-]+`)

// SourceID derives the deterministic idempotency key for a session's
// escalation conversation. Re-sending the same session re-sends the same
// key, and the support desk deduplicates on it.
func SourceID(sessionID string) string {
	return "escalation-" + sessionID
}

// CreateEscalation runs the outbound handoff: find-or-create the contact,
// create the pending conversation, attach labels, post the AI-context
// summary as a private note, and open the conversation to notify agents.
// Calls are sequential because each step needs the conversation id from
// step two. On failure after conversation creation, the returned result
// still carries the conversation id; use ResumeEscalation to retry the
// remaining steps.
func (c *Client) CreateEscalation(ctx context.Context, ec EscalationContext) (*EscalationResult, error) {
	result := &EscalationResult{}

	contact, err := c.SearchContact(ctx, ec.UserIdentifier)
	if err != nil {
		return result, fmt.Errorf("contact lookup failed: %w", err)
	}
	if contact == nil {
		contact, err = c.CreateContact(ctx, ec.UserName, ec.UserEmail, ec.UserIdentifier)
		if err != nil {
			return result, fmt.Errorf("contact creation failed: %w", err)
		}
	}
	result.ContactID = contact.ID

	conv, err := c.CreateConversation(ctx, contact.ID, SourceID(ec.SessionID), ec.SessionID)
	if err != nil {
		return result, fmt.Errorf("conversation creation failed: %w", err)
	}
	result.ConversationID = conv.ID

	if err := c.finishEscalation(ctx, conv.ID, ec); err != nil {
		return result, err
	}

	result.Completed = true
	logger.Info("Escalation handed off",
		zap.String("session_id", ec.SessionID),
		zap.Int("conversation_id", conv.ID),
		zap.String("reason", ec.EscalationReason),
	)
	return result, nil
}

// ResumeEscalation retries the post-creation steps against an existing
// conversation. Labels and notes are additive and the status toggle is
// idempotent, so retrying is safe.
func (c *Client) ResumeEscalation(ctx context.Context, conversationID int, ec EscalationContext) error {
	return c.finishEscalation(ctx, conversationID, ec)
}

func (c *Client) finishEscalation(ctx context.Context, conversationID int, ec EscalationContext) error {
	if err := c.AddLabels(ctx, conversationID, escalationLabels(ec)); err != nil {
		return fmt.Errorf("label attachment failed: %w", err)
	}

	if err := c.CreateMessage(ctx, conversationID, buildSummaryNote(ec), true); err != nil {
		return fmt.Errorf("summary note failed: %w", err)
	}

	if err := c.ToggleStatus(ctx, conversationID, "open"); err != nil {
		return fmt.Errorf("status toggle failed: %w", err)
	}

	return nil
}

func escalationLabels(ec EscalationContext) []string {
	labels := []string{"ai-escalation"}
	if ec.EscalationReason != "" {
		labels = append(labels, "reason-"+sanitizeLabel(ec.EscalationReason))
	}
	if ec.UserSentiment != "" {
		labels = append(labels, "sentiment-"+sanitizeLabel(ec.UserSentiment))
	}
	if ec.MeetingURL != "" {
		labels = append(labels, "meeting-offered")
	}
	return labels
}

func sanitizeLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = labelSanitizer.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// buildSummaryNote formats the AI-context handoff as Markdown for the
// private note agents read before taking over.
func buildSummaryNote(ec EscalationContext) string {
	var b strings.Builder

	b.WriteString("## AI Handoff Summary\n\n")
	b.WriteString(fmt.Sprintf("**Escalation reason:** %s\n", ec.EscalationReason))
	b.WriteString(fmt.Sprintf("**AI confidence:** %.0f%%\n", ec.AIConfidence*100))
	b.WriteString(fmt.Sprintf("**AI turns before handoff:** %d\n", ec.AITurnCount))
	if ec.UserSentiment != "" {
		b.WriteString(fmt.Sprintf("**User sentiment:** %s\n", ec.UserSentiment))
	}
	if ec.MeetingURL != "" {
		b.WriteString(fmt.Sprintf("**Meeting link:** %s\n", ec.MeetingURL))
	}
	if ec.EscalationQuery != "" {
		b.WriteString(fmt.Sprintf("**Triggering message:** %s\n", ec.EscalationQuery))
	}

	if ec.AISummary != "" {
		b.WriteString("\n### Summary\n")
		b.WriteString(ec.AISummary + "\n")
	}

	if len(ec.RAGSources) > 0 {
		b.WriteString("\n### Sources consulted\n")
		for _, src := range ec.RAGSources {
			b.WriteString("- " + src + "\n")
		}
	}

	if len(ec.Transcript) > 0 {
		b.WriteString("\n### Recent transcript\n")
		start := len(ec.Transcript) - transcriptTurnLimit
		if start < 0 {
			start = 0
		}
		for _, turn := range ec.Transcript[start:] {
			b.WriteString(fmt.Sprintf("**%s:** %s\n", turn.Role, turn.Content))
		}
	}

	return b.String()
}
