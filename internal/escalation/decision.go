package escalation

// Decision is the per-message escalation verdict. Computed on demand and
// embedded in the conversation record by callers; not persisted on its own.
type Decision struct {
	ShouldEscalate        bool   `json:"should_escalate"`
	Reason                string `json:"reason"`
	Priority              string `json:"priority"`
	RecommendedSpecialist string `json:"recommended_specialist,omitempty"`
}

// NeedInput bundles the session signals that feed the business rules layered
// on top of keyword detection.
type NeedInput struct {
	Attempts               int     `json:"attempts"`
	SessionDurationMinutes float64 `json:"session_duration_minutes"`
	Sentiment              string  `json:"sentiment,omitempty"`
	Complexity             string  `json:"complexity,omitempty"`
	ExplicitRequest        bool    `json:"explicit_request,omitempty"`
	IssueCategory          string  `json:"issue_category,omitempty"`
}

// sensitiveCategories always escalate regardless of other signals.
var sensitiveCategories = map[string]string{
	"billing":            "billing",
	"refund":             "billing",
	"account_suspension": "account_management",
	"legal":              "legal",
	"security_incident":  "security",
}

// EvaluateEscalationNeed applies the business rules in priority order and
// returns on the first match. The branch order encodes business priority
// and must not be reordered.
func EvaluateEscalationNeed(in NeedInput) Decision {
	if in.ExplicitRequest {
		return Decision{
			ShouldEscalate: true,
			Reason:         "user_requested_human",
			Priority:       "high",
		}
	}

	if specialist, ok := sensitiveCategories[in.IssueCategory]; ok {
		priority := "high"
		if in.IssueCategory == "security_incident" {
			priority = "urgent"
		}
		return Decision{
			ShouldEscalate:        true,
			Reason:                "sensitive_issue_category",
			Priority:              priority,
			RecommendedSpecialist: specialist,
		}
	}

	if in.Sentiment == "frustrated" && in.Attempts >= 1 {
		return Decision{
			ShouldEscalate: true,
			Reason:         "user_frustrated",
			Priority:       "high",
		}
	}

	if in.Complexity == "complex" && in.SessionDurationMinutes > 15 {
		return Decision{
			ShouldEscalate: true,
			Reason:         "complex_issue_unresolved",
			Priority:       "medium",
		}
	}

	if in.Attempts >= 3 {
		return Decision{
			ShouldEscalate: true,
			Reason:         "repeated_failed_attempts",
			Priority:       "medium",
		}
	}

	if in.SessionDurationMinutes > 20 && in.Attempts >= 2 {
		return Decision{
			ShouldEscalate: true,
			Reason:         "long_session_without_resolution",
			Priority:       "low",
		}
	}

	return Decision{ShouldEscalate: false, Reason: "continue_ai_handling"}
}
