package helpdesk

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/support-copilot/backend/pkg/errs"
)

func sign(t *testing.T, body []byte, secret string) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"event":"message_created"}`)
	secret := "topsecret"

	if err := VerifySignature(body, sign(t, body, secret), secret); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
}

func TestVerifySignatureMismatch(t *testing.T) {
	body := []byte(`{"event":"message_created"}`)
	secret := "topsecret"

	sig := sign(t, body, secret)
	tampered := append([]byte(nil), body...)
	tampered[0] = '['

	err := VerifySignature(tampered, sig, secret)
	if err == nil {
		t.Fatal("expected error for tampered body")
	}
	if !errs.IsSignature(err) {
		t.Errorf("expected signature error, got %v", err)
	}
}

func TestVerifySignatureNoSecret(t *testing.T) {
	// No secret configured disables verification entirely.
	if err := VerifySignature([]byte("anything"), "bogus", ""); err != nil {
		t.Errorf("expected nil with empty secret, got %v", err)
	}
}

const agentMessageBody = `{
	"event": "message_created",
	"id": 77,
	"content": "<p>You can reset it under <b>Settings</b>.</p>",
	"message_type": "outgoing",
	"private": false,
	"sender": {"id": 5, "type": "user"},
	"conversation": {
		"id": 301,
		"status": "open",
		"custom_attributes": {"support_session_id": "sess-42"}
	}
}`

func TestParseWebhookMessageCreated(t *testing.T) {
	evt := ParseWebhook([]byte(agentMessageBody))

	if evt.Type != EventMessageCreated {
		t.Fatalf("expected message_created, got %s", evt.Type)
	}
	if evt.ConversationID != 301 {
		t.Errorf("expected conversation 301, got %d", evt.ConversationID)
	}
	if evt.SessionID != "sess-42" {
		t.Errorf("expected session sess-42, got %q", evt.SessionID)
	}
	if evt.Message == nil {
		t.Fatal("expected embedded message")
	}
	if evt.Message.MessageType != "outgoing" || evt.Message.Private {
		t.Errorf("message fields wrong: %+v", evt.Message)
	}
}

func TestExtractAgentResponse(t *testing.T) {
	evt := ParseWebhook([]byte(agentMessageBody))

	sessionID, content, ok := ExtractAgentResponse(evt)
	if !ok {
		t.Fatal("expected extractable agent response")
	}
	if sessionID != "sess-42" {
		t.Errorf("expected session sess-42, got %q", sessionID)
	}
	if content != "You can reset it under Settings." {
		t.Errorf("expected flattened HTML, got %q", content)
	}
}

func TestExtractAgentResponseRejections(t *testing.T) {
	base := ParseWebhook([]byte(agentMessageBody))

	tests := []struct {
		name   string
		mutate func(e *ParsedEvent)
	}{
		{"private note", func(e *ParsedEvent) { e.Message.Private = true }},
		{"incoming message", func(e *ParsedEvent) { e.Message.MessageType = "incoming" }},
		{"bot sender", func(e *ParsedEvent) { e.Message.SenderType = "agent_bot" }},
		{"no session attribute", func(e *ParsedEvent) { e.SessionID = "" }},
		{"empty content", func(e *ParsedEvent) { e.Message.Content = "<p>  </p>" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt := base
			msg := *base.Message
			evt.Message = &msg
			tt.mutate(&evt)
			if _, _, ok := ExtractAgentResponse(evt); ok {
				t.Error("expected extraction to be rejected")
			}
		})
	}
}

func TestParseWebhookStatusChanged(t *testing.T) {
	body := []byte(`{
		"event": "conversation_status_changed",
		"id": 301,
		"status": "resolved",
		"custom_attributes": {"support_session_id": "sess-42"}
	}`)

	evt := ParseWebhook(body)
	if evt.Type != EventConversationStatusChanged {
		t.Fatalf("expected conversation_status_changed, got %s", evt.Type)
	}
	if evt.ConversationID != 301 || evt.Status != "resolved" {
		t.Errorf("conversation fields wrong: %+v", evt)
	}
	if evt.SessionID != "sess-42" {
		t.Errorf("expected session sess-42, got %q", evt.SessionID)
	}
}

func TestParseWebhookNeverErrors(t *testing.T) {
	inputs := [][]byte{
		nil,
		[]byte(""),
		[]byte("not json"),
		[]byte(`{"event":"some_future_event","id":1}`),
		[]byte(`{"no_event_field":true}`),
	}
	for _, in := range inputs {
		evt := ParseWebhook(in)
		if evt.Type != EventUnknown {
			t.Errorf("input %q: expected unknown, got %s", in, evt.Type)
		}
	}
}
