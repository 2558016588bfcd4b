// Package helpdesk integrates with the external support-desk system:
// outbound escalation handoff over its REST API, and inbound signed
// webhooks converted into typed internal events.
package helpdesk

import "encoding/json"

// Contact mirrors the support desk's contact entity. Read-only copy; the
// external system owns it.
type Contact struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Identifier string `json:"identifier"`
}

// Conversation mirrors the support desk's conversation entity.
type Conversation struct {
	ID               int                        `json:"id"`
	InboxID          int                        `json:"inbox_id"`
	Status           string                     `json:"status"`
	SourceID         string                     `json:"source_id,omitempty"`
	CustomAttributes map[string]json.RawMessage `json:"custom_attributes,omitempty"`
}

// Message mirrors the support desk's message entity as delivered in
// webhooks. Content is HTML.
type Message struct {
	ID          int    `json:"id"`
	Content     string `json:"content"`
	MessageType string `json:"message_type"`
	Private     bool   `json:"private"`
	Sender      Sender `json:"sender"`
	CreatedAt   int64  `json:"created_at"`
}

type Sender struct {
	ID   int    `json:"id"`
	Type string `json:"type"`
}

// sessionAttributeKey is the custom attribute carrying our correlation
// session id on support-desk conversations.
const sessionAttributeKey = "support_session_id"
