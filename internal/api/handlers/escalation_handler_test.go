package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/support-copilot/backend/internal/grounding"
	"github.com/support-copilot/backend/internal/helpdesk"
)

type stubSender struct {
	sent []helpdesk.EscalationContext
	err  error
}

func (s *stubSender) CreateEscalation(ctx context.Context, ec helpdesk.EscalationContext) (*helpdesk.EscalationResult, error) {
	s.sent = append(s.sent, ec)
	if s.err != nil {
		return &helpdesk.EscalationResult{ConversationID: 42}, s.err
	}
	return &helpdesk.EscalationResult{ContactID: 7, ConversationID: 42, Completed: true}, nil
}

type stubSummarizer struct {
	summary string
	err     error
}

func (s *stubSummarizer) Summarize(ctx context.Context, transcript []grounding.Turn) (string, error) {
	return s.summary, s.err
}

func newEscalationApp(sender *stubSender, summarizer Summarizer) *fiber.App {
	app := fiber.New()
	handler := NewEscalationHandler(sender, summarizer, NewHub())
	app.Post("/api/v1/escalations", handler.HandleEscalation)
	return app
}

func postEscalation(t *testing.T, app *fiber.App, payload map[string]interface{}) (int, map[string]interface{}) {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	req := httptest.NewRequest("POST", "/api/v1/escalations", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var decoded map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	return resp.StatusCode, decoded
}

func TestHandleEscalationNoEscalationNeeded(t *testing.T) {
	sender := &stubSender{}
	app := newEscalationApp(sender, &stubSummarizer{})

	status, body := postEscalation(t, app, map[string]interface{}{
		"session_id": "sess-1",
		"message":    "how do I change my avatar",
	})
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	decision := body["decision"].(map[string]interface{})
	if decision["should_escalate"] != false {
		t.Errorf("expected no escalation, got %v", decision)
	}
	if len(sender.sent) != 0 {
		t.Error("no handoff should have been sent")
	}
}

func TestHandleEscalationExplicitRequest(t *testing.T) {
	sender := &stubSender{}
	app := newEscalationApp(sender, &stubSummarizer{summary: "User wants a human."})

	status, body := postEscalation(t, app, map[string]interface{}{
		"session_id": "sess-2",
		"message":    "I want to speak to a human right now",
		"user":       map[string]string{"identifier": "user-1", "name": "Sam"},
		"transcript": []map[string]string{
			{"role": "user", "content": "help"},
			{"role": "assistant", "content": "what do you need?"},
		},
	})
	if status != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d", status)
	}

	decision := body["decision"].(map[string]interface{})
	if decision["reason"] != "user_requested_human" || decision["priority"] != "high" {
		t.Errorf("unexpected decision: %v", decision)
	}

	if len(sender.sent) != 1 {
		t.Fatal("expected one handoff")
	}
	ec := sender.sent[0]
	if ec.SessionID != "sess-2" || ec.AISummary != "User wants a human." {
		t.Errorf("handoff context wrong: %+v", ec)
	}
	if ec.AITurnCount != 2 {
		t.Errorf("expected turn count 2, got %d", ec.AITurnCount)
	}

	handoff := body["handoff"].(map[string]interface{})
	if handoff["conversation_id"].(float64) != 42 {
		t.Errorf("expected conversation 42, got %v", handoff["conversation_id"])
	}
}

func TestHandleEscalationSecurityCategory(t *testing.T) {
	sender := &stubSender{}
	app := newEscalationApp(sender, &stubSummarizer{})

	status, body := postEscalation(t, app, map[string]interface{}{
		"session_id": "sess-3",
		"message":    "I think my account was hacked",
		"user":       map[string]string{"identifier": "user-2"},
	})
	if status != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d", status)
	}
	decision := body["decision"].(map[string]interface{})
	if decision["priority"] != "urgent" {
		t.Errorf("security incidents must be urgent, got %v", decision)
	}
	if decision["recommended_specialist"] != "security" {
		t.Errorf("expected security specialist, got %v", decision)
	}
}

func TestHandleEscalationHandoffFailure(t *testing.T) {
	sender := &stubSender{err: errors.New("desk down")}
	app := newEscalationApp(sender, &stubSummarizer{})

	status, body := postEscalation(t, app, map[string]interface{}{
		"session_id": "sess-4",
		"message":    "speak to a manager",
		"user":       map[string]string{"identifier": "user-3"},
	})
	if status != fiber.StatusBadGateway {
		t.Fatalf("expected 502, got %d", status)
	}
	// Partial progress is surfaced so the caller can resume.
	handoff := body["handoff"].(map[string]interface{})
	if handoff["conversation_id"].(float64) != 42 {
		t.Errorf("expected conversation id in failure body, got %v", handoff)
	}
}

func TestHandleEscalationSummarizerFailureDegrades(t *testing.T) {
	sender := &stubSender{}
	app := newEscalationApp(sender, &stubSummarizer{err: errors.New("model offline")})

	status, _ := postEscalation(t, app, map[string]interface{}{
		"session_id": "sess-5",
		"message":    "talk to a human",
		"user":       map[string]string{"identifier": "user-4"},
		"transcript": []map[string]string{{"role": "user", "content": "help"}},
	})
	if status != fiber.StatusCreated {
		t.Fatalf("summarizer failure must not block the handoff, got %d", status)
	}
	if len(sender.sent) != 1 {
		t.Fatal("expected the handoff to go out")
	}
	if sender.sent[0].AISummary != "" {
		t.Errorf("expected empty summary fallback, got %q", sender.sent[0].AISummary)
	}
}

func TestHandleEscalationMissingSession(t *testing.T) {
	app := newEscalationApp(&stubSender{}, &stubSummarizer{})

	status, _ := postEscalation(t, app, map[string]interface{}{
		"message": "speak to a human",
	})
	if status != fiber.StatusBadRequest {
		t.Errorf("expected 400, got %d", status)
	}
}
