package helpdesk

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/support-copilot/backend/pkg/errs"
)

// EventType classifies inbound webhook payloads from the support desk.
type EventType string

const (
	EventConversationCreated       EventType = "conversation_created"
	EventConversationStatusChanged EventType = "conversation_status_changed"
	EventConversationUpdated       EventType = "conversation_updated"
	EventConversationResolved      EventType = "conversation_resolved"
	EventMessageCreated            EventType = "message_created"
	EventUnknown                   EventType = "unknown"
)

var knownEvents = map[string]EventType{
	"conversation_created":        EventConversationCreated,
	"conversation_status_changed": EventConversationStatusChanged,
	"conversation_updated":        EventConversationUpdated,
	"conversation_resolved":       EventConversationResolved,
	"message_created":             EventMessageCreated,
}

// ParsedEvent is the normalized view of an inbound webhook. Fields that the
// payload did not carry are zero; Type is EventUnknown when the payload is
// malformed or the event is one we do not handle.
type ParsedEvent struct {
	Type           EventType
	ConversationID int
	Status         string
	SessionID      string
	Message        *InboundMessage
}

// InboundMessage is a message embedded in a message_created event.
type InboundMessage struct {
	ID          int
	Content     string
	MessageType string
	Private     bool
	SenderType  string
	CreatedAt   int64
}

// VerifySignature checks the hex-encoded HMAC-SHA256 of body against the
// shared webhook secret. An empty secret disables verification entirely;
// that is only acceptable in development and callers should log loudly
// when running without one.
func VerifySignature(body []byte, signature, secret string) error {
	if secret == "" {
		return nil
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) != 1 {
		return &errs.SignatureError{Reason: "webhook signature mismatch"}
	}
	return nil
}

type webhookPayload struct {
	Event        string `json:"event"`
	ID           int    `json:"id"`
	Status       string `json:"status"`
	Conversation *struct {
		ID               int                        `json:"id"`
		Status           string                     `json:"status"`
		CustomAttributes map[string]json.RawMessage `json:"custom_attributes"`
	} `json:"conversation"`
	CustomAttributes map[string]json.RawMessage `json:"custom_attributes"`
	Content          string                     `json:"content"`
	MessageType      string                     `json:"message_type"`
	Private          bool                       `json:"private"`
	CreatedAt        int64                      `json:"created_at"`
	Sender           *struct {
		ID   int    `json:"id"`
		Type string `json:"type"`
	} `json:"sender"`
}

// ParseWebhook normalizes a raw webhook body. It never returns an error:
// malformed or unrecognized payloads come back as EventUnknown so a bad
// event can never take the endpoint down.
func ParseWebhook(body []byte) ParsedEvent {
	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return ParsedEvent{Type: EventUnknown}
	}

	evtType, ok := knownEvents[p.Event]
	if !ok {
		return ParsedEvent{Type: EventUnknown}
	}

	evt := ParsedEvent{Type: evtType}

	attrs := p.CustomAttributes
	switch evtType {
	case EventMessageCreated:
		// Conversation details ride inside the nested conversation object.
		if p.Conversation != nil {
			evt.ConversationID = p.Conversation.ID
			evt.Status = p.Conversation.Status
			attrs = p.Conversation.CustomAttributes
		}
		senderType := ""
		if p.Sender != nil {
			senderType = p.Sender.Type
		}
		evt.Message = &InboundMessage{
			ID:          p.ID,
			Content:     p.Content,
			MessageType: p.MessageType,
			Private:     p.Private,
			SenderType:  senderType,
			CreatedAt:   p.CreatedAt,
		}
	default:
		evt.ConversationID = p.ID
		evt.Status = p.Status
	}

	if raw, ok := attrs[sessionAttributeKey]; ok {
		var sid string
		if err := json.Unmarshal(raw, &sid); err == nil {
			evt.SessionID = sid
		}
	}

	return evt
}

// ExtractAgentResponse pulls a human agent's reply out of a parsed event,
// ready for feedback storage. It returns ok=false unless all of the
// following hold: the event is a message_created from an agent (outgoing
// message, sender type "user"), the message is public, the conversation
// carries a session correlation attribute, and the content is non-empty
// after HTML flattening.
func ExtractAgentResponse(evt ParsedEvent) (sessionID, content string, ok bool) {
	if evt.Type != EventMessageCreated || evt.Message == nil {
		return "", "", false
	}
	m := evt.Message
	isAgent := m.MessageType == "outgoing" && strings.EqualFold(m.SenderType, "user")
	if !isAgent || m.Private || evt.SessionID == "" {
		return "", "", false
	}
	text := flattenHTML(m.Content)
	if text == "" {
		return "", "", false
	}
	return evt.SessionID, text, true
}

// flattenHTML strips markup from help-desk message content, which arrives
// as rendered HTML. Falls back to the raw string if it does not parse.
func flattenHTML(content string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return strings.TrimSpace(content)
	}
	return strings.TrimSpace(doc.Text())
}
