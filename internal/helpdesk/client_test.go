package helpdesk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/support-copilot/backend/pkg/errs"
)

// fakeDesk is an in-memory support desk standing in for the real API.
// It records every call so tests can assert on the request sequence.
type fakeDesk struct {
	mu       sync.Mutex
	contacts map[string]Contact
	nextID   int
	calls    []string
	labels   map[int][]string
	messages map[int][]map[string]interface{}
	statuses map[int]string

	failLabels bool
}

func newFakeDesk() *fakeDesk {
	return &fakeDesk{
		contacts: map[string]Contact{},
		nextID:   100,
		labels:   map[int][]string{},
		messages: map[int][]map[string]interface{}{},
		statuses: map[int]string{},
	}
}

func (f *fakeDesk) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeDesk) handler(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		if r.Header.Get("api_access_token") != "test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		path := strings.TrimPrefix(r.URL.Path, "/api/v1/accounts/7")
		var body map[string]interface{}
		if r.Body != nil {
			json.NewDecoder(r.Body).Decode(&body)
		}

		switch {
		case r.Method == http.MethodGet && path == "/contacts/search":
			f.record("search")
			q := r.URL.Query().Get("q")
			payload := []Contact{}
			if c, ok := f.contacts[q]; ok {
				payload = append(payload, c)
			}
			json.NewEncoder(w).Encode(map[string]interface{}{"payload": payload})

		case r.Method == http.MethodPost && path == "/contacts":
			f.record("create_contact")
			f.nextID++
			c := Contact{
				ID:         f.nextID,
				Name:       body["name"].(string),
				Identifier: body["identifier"].(string),
			}
			f.contacts[c.Identifier] = c
			json.NewEncoder(w).Encode(map[string]interface{}{
				"payload": map[string]interface{}{"contact": c},
			})

		case r.Method == http.MethodPost && path == "/conversations":
			f.record("create_conversation")
			f.nextID++
			json.NewEncoder(w).Encode(Conversation{
				ID:       f.nextID,
				Status:   "pending",
				SourceID: body["source_id"].(string),
			})

		case r.Method == http.MethodPost && strings.HasSuffix(path, "/labels"):
			if f.failLabels {
				w.WriteHeader(http.StatusBadGateway)
				fmt.Fprint(w, `{"error":"upstream down"}`)
				return
			}
			f.record("labels")
			id := convID(t, path)
			for _, l := range body["labels"].([]interface{}) {
				f.labels[id] = append(f.labels[id], l.(string))
			}
			w.WriteHeader(http.StatusOK)

		case r.Method == http.MethodPost && strings.HasSuffix(path, "/messages"):
			f.record("message")
			id := convID(t, path)
			f.messages[id] = append(f.messages[id], body)
			w.WriteHeader(http.StatusOK)

		case r.Method == http.MethodPost && strings.HasSuffix(path, "/toggle_status"):
			f.record("toggle_status")
			f.statuses[convID(t, path)] = body["status"].(string)
			w.WriteHeader(http.StatusOK)

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func convID(t *testing.T, path string) int {
	t.Helper()
	parts := strings.Split(strings.Trim(path, "/"), "/")
	var id int
	if _, err := fmt.Sscanf(parts[1], "%d", &id); err != nil {
		t.Fatalf("bad conversation path %q: %v", path, err)
	}
	return id
}

func newTestClient(t *testing.T, desk *fakeDesk) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(desk.handler(t))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "7", "test-token", 3, 5), srv
}

func testContext(sessionID string) EscalationContext {
	return EscalationContext{
		SessionID:        sessionID,
		AISummary:        "User cannot reset their password after two attempts.",
		AIConfidence:     0.41,
		EscalationReason: "repeated_failures",
		UserSentiment:    "frustrated",
		AITurnCount:      4,
		EscalationQuery:  "this still does not work",
		UserIdentifier:   "user-9",
		UserName:         "Dana",
		UserEmail:        "dana@example.com",
		Transcript: []TranscriptTurn{
			{Role: "user", Content: "I cannot log in"},
			{Role: "assistant", Content: "Try resetting your password."},
		},
	}
}

func TestCreateEscalationFullFlow(t *testing.T) {
	desk := newFakeDesk()
	client, _ := newTestClient(t, desk)

	result, err := client.CreateEscalation(context.Background(), testContext("sess-1"))
	if err != nil {
		t.Fatalf("escalation failed: %v", err)
	}
	if !result.Completed {
		t.Error("expected completed result")
	}
	if result.ContactID == 0 || result.ConversationID == 0 {
		t.Errorf("missing ids: %+v", result)
	}

	want := []string{"search", "create_contact", "create_conversation", "labels", "message", "toggle_status"}
	if len(desk.calls) != len(want) {
		t.Fatalf("expected calls %v, got %v", want, desk.calls)
	}
	for i, call := range want {
		if desk.calls[i] != call {
			t.Errorf("call %d: expected %s, got %s", i, call, desk.calls[i])
		}
	}

	labels := desk.labels[result.ConversationID]
	if len(labels) == 0 || labels[0] != "ai-escalation" {
		t.Errorf("expected ai-escalation label, got %v", labels)
	}

	msgs := desk.messages[result.ConversationID]
	if len(msgs) != 1 {
		t.Fatalf("expected one summary note, got %d", len(msgs))
	}
	if msgs[0]["private"] != true {
		t.Error("summary note must be private")
	}
	note := msgs[0]["content"].(string)
	if !strings.Contains(note, "repeated_failures") || !strings.Contains(note, "Try resetting your password.") {
		t.Errorf("note missing handoff context: %q", note)
	}

	if desk.statuses[result.ConversationID] != "open" {
		t.Errorf("expected conversation opened, got %q", desk.statuses[result.ConversationID])
	}
}

func TestCreateEscalationReusesContact(t *testing.T) {
	desk := newFakeDesk()
	desk.contacts["user-9"] = Contact{ID: 55, Name: "Dana", Identifier: "user-9"}
	client, _ := newTestClient(t, desk)

	result, err := client.CreateEscalation(context.Background(), testContext("sess-2"))
	if err != nil {
		t.Fatalf("escalation failed: %v", err)
	}
	if result.ContactID != 55 {
		t.Errorf("expected existing contact 55, got %d", result.ContactID)
	}
	for _, call := range desk.calls {
		if call == "create_contact" {
			t.Error("should not create a contact that already exists")
		}
	}
}

func TestCreateEscalationPartialFailureAndResume(t *testing.T) {
	desk := newFakeDesk()
	desk.failLabels = true
	client, _ := newTestClient(t, desk)

	result, err := client.CreateEscalation(context.Background(), testContext("sess-3"))
	if err == nil {
		t.Fatal("expected failure when label call breaks")
	}
	if result.Completed {
		t.Error("result must not be marked completed")
	}
	if result.ConversationID == 0 {
		t.Fatal("conversation id must survive a post-creation failure")
	}

	// Retry against the existing conversation once the desk recovers.
	desk.failLabels = false
	if err := client.ResumeEscalation(context.Background(), result.ConversationID, testContext("sess-3")); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if desk.statuses[result.ConversationID] != "open" {
		t.Error("expected conversation opened after resume")
	}
}

func TestDoMapsNotFound(t *testing.T) {
	desk := newFakeDesk()
	client, _ := newTestClient(t, desk)

	err := client.ToggleStatus(context.Background(), 999999, "open")
	if err == nil || !errs.IsNotFound(err) {
		t.Errorf("expected not-found error, got %v", err)
	}
}

func TestDoMapsValidation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"message":"Identifier has already been taken","attributes":[{"field":"identifier","message":"has already been taken"}]}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "7", "test-token", 3, 5)
	_, err := client.CreateContact(context.Background(), "Dana", "", "user-9")
	if err == nil || !errs.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "already been taken") {
		t.Errorf("expected field detail in error, got %v", err)
	}
}

func TestBuildSummaryNoteTruncatesTranscript(t *testing.T) {
	ec := testContext("sess-4")
	ec.Transcript = nil
	for i := 0; i < 14; i++ {
		ec.Transcript = append(ec.Transcript, TranscriptTurn{
			Role:    "user",
			Content: fmt.Sprintf("turn-%d", i),
		})
	}

	note := buildSummaryNote(ec)
	if strings.Contains(note, "turn-3") {
		t.Error("turns before the last ten must be dropped")
	}
	for i := 4; i < 14; i++ {
		if !strings.Contains(note, fmt.Sprintf("turn-%d", i)) {
			t.Errorf("missing transcript turn %d", i)
		}
	}
}

func TestSourceIDDeterministic(t *testing.T) {
	if SourceID("abc") != SourceID("abc") {
		t.Error("source id must be stable for a session")
	}
	if SourceID("abc") == SourceID("abd") {
		t.Error("distinct sessions must not collide")
	}
}
