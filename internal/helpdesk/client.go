package helpdesk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/support-copilot/backend/pkg/errs"
	"github.com/support-copilot/backend/pkg/logger"
)

// Client is the outbound support-desk REST client. It deliberately carries
// no retry logic: escalation retries are the caller's responsibility, with
// the conversation id as the idempotency anchor.
type Client struct {
	baseURL    string
	accountID  string
	apiToken   string
	inboxID    int
	httpClient *http.Client
}

func NewClient(baseURL, accountID, apiToken string, inboxID, timeoutSec int) *Client {
	if timeoutSec <= 0 {
		timeoutSec = 15
	}
	return &Client{
		baseURL:   baseURL,
		accountID: accountID,
		apiToken:  apiToken,
		inboxID:   inboxID,
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutSec) * time.Second,
		},
	}
}

// do issues one API call and maps error statuses onto the shared taxonomy:
// 404 not-found, 422 validation (with field detail when present), anything
// else non-2xx an ExternalServiceError carrying status and body.
func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	reqURL := fmt.Sprintf("%s/api/v1/accounts/%s%s", c.baseURL, c.accountID, path)
	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api_access_token", c.apiToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("support desk request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errs.NotFound("support desk resource", path)
	case resp.StatusCode == http.StatusUnprocessableEntity:
		ve := &errs.ValidationError{Message: "support desk rejected the payload"}
		var detail struct {
			Message    string `json:"message"`
			Attributes []struct {
				Field   string `json:"field"`
				Message string `json:"message"`
			} `json:"attributes"`
		}
		if json.Unmarshal(respBody, &detail) == nil {
			if detail.Message != "" {
				ve.Message = detail.Message
			}
			if len(detail.Attributes) > 0 {
				ve.Fields = map[string]string{}
				for _, attr := range detail.Attributes {
					ve.Fields[attr.Field] = attr.Message
				}
			}
		}
		return ve
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return &errs.ExternalServiceError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// SearchContact looks up a contact by its stable identifier. Returns nil
// without error when no contact matches.
func (c *Client) SearchContact(ctx context.Context, identifier string) (*Contact, error) {
	var resp struct {
		Payload []Contact `json:"payload"`
	}
	path := "/contacts/search?q=" + url.QueryEscape(identifier)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	for i := range resp.Payload {
		if resp.Payload[i].Identifier == identifier {
			return &resp.Payload[i], nil
		}
	}
	return nil, nil
}

func (c *Client) CreateContact(ctx context.Context, name, email, identifier string) (*Contact, error) {
	payload := map[string]interface{}{
		"name":       name,
		"identifier": identifier,
		"inbox_id":   c.inboxID,
	}
	if email != "" {
		payload["email"] = email
	}

	var resp struct {
		Payload struct {
			Contact Contact `json:"contact"`
		} `json:"payload"`
	}
	if err := c.do(ctx, http.MethodPost, "/contacts", payload, &resp); err != nil {
		return nil, err
	}

	logger.Info("Support desk contact created",
		zap.Int("contact_id", resp.Payload.Contact.ID),
		zap.String("identifier", identifier),
	)
	return &resp.Payload.Contact, nil
}

func (c *Client) UpdateContact(ctx context.Context, contactID int, fields map[string]interface{}) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/contacts/%d", contactID), fields, nil)
}

// CreateConversation opens a conversation in pending status. SourceID is
// the idempotency key: the support desk deduplicates on it, so re-sending
// the same session must not create a duplicate.
func (c *Client) CreateConversation(ctx context.Context, contactID int, sourceID, sessionID string) (*Conversation, error) {
	payload := map[string]interface{}{
		"source_id":  sourceID,
		"inbox_id":   c.inboxID,
		"contact_id": contactID,
		"status":     "pending",
		"custom_attributes": map[string]string{
			sessionAttributeKey: sessionID,
		},
	}

	var conv Conversation
	if err := c.do(ctx, http.MethodPost, "/conversations", payload, &conv); err != nil {
		return nil, err
	}

	logger.Info("Support desk conversation created",
		zap.Int("conversation_id", conv.ID),
		zap.String("source_id", sourceID),
	)
	return &conv, nil
}

// ToggleStatus flips the conversation to the given status. Idempotent from
// the caller's perspective: toggling to a status it already has is a no-op
// on the desk side.
func (c *Client) ToggleStatus(ctx context.Context, conversationID int, status string) error {
	payload := map[string]string{"status": status}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/conversations/%d/toggle_status", conversationID), payload, nil)
}

func (c *Client) SetCustomAttributes(ctx context.Context, conversationID int, attributes map[string]interface{}) error {
	payload := map[string]interface{}{"custom_attributes": attributes}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/conversations/%d/custom_attributes", conversationID), payload, nil)
}

// AddLabels attaches labels to a conversation. The desk treats labels as a
// set, so re-sending the same labels is additive and safe.
func (c *Client) AddLabels(ctx context.Context, conversationID int, labels []string) error {
	payload := map[string][]string{"labels": labels}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/conversations/%d/labels", conversationID), payload, nil)
}

// CreateMessage posts a message on the conversation. Private messages are
// internal notes visible to agents only.
func (c *Client) CreateMessage(ctx context.Context, conversationID int, content string, private bool) error {
	payload := map[string]interface{}{
		"content":      content,
		"message_type": "outgoing",
		"private":      private,
	}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/conversations/%d/messages", conversationID), payload, nil)
}
