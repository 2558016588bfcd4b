package escalation

import "testing"

func TestDetectTriggerExplicitRequest(t *testing.T) {
	trigger := DetectTrigger("I want to speak to a manager", 0)
	if trigger == nil || trigger.Type != TriggerExplicitRequest {
		t.Fatalf("got %+v, want explicit_request", trigger)
	}
}

func TestDetectTriggerFrustration(t *testing.T) {
	trigger := DetectTrigger("THIS IS RIDICULOUS!!! WORST SERVICE EVER!!!", 0)
	if trigger == nil || trigger.Type != TriggerFrustration {
		t.Fatalf("got %+v, want frustration", trigger)
	}

	// Caps runs alone are enough.
	trigger = DetectTrigger("WHY does NOTHING work", 0)
	if trigger == nil || trigger.Type != TriggerFrustration {
		t.Fatalf("caps runs: got %+v, want frustration", trigger)
	}

	// A single negative word is not.
	if trigger := DetectTrigger("this is frustrating", 0); trigger != nil {
		t.Fatalf("single negative keyword: got %+v, want nil", trigger)
	}
}

func TestDetectTriggerTechnicalAccess(t *testing.T) {
	trigger := DetectTrigger("can you help me debug this API key issue", 0)
	if trigger == nil || trigger.Type != TriggerTechnicalAccess {
		t.Fatalf("got %+v, want technical_access", trigger)
	}
}

func TestDetectTriggerFailedAttempts(t *testing.T) {
	trigger := DetectTrigger("what's the weather", 3)
	if trigger == nil || trigger.Type != TriggerFailedAttempts {
		t.Fatalf("got %+v, want failed_attempts", trigger)
	}

	if trigger := DetectTrigger("what's the weather", 1); trigger != nil {
		t.Fatalf("one attempt: got %+v, want nil", trigger)
	}
}

func TestDetectTriggerCategoryOrder(t *testing.T) {
	// Explicit request outranks billing even when both match.
	trigger := DetectTrigger("I want a refund, let me talk to a human", 0)
	if trigger == nil || trigger.Type != TriggerExplicitRequest {
		t.Fatalf("got %+v, want explicit_request over billing", trigger)
	}

	// Security outranks failed attempts.
	trigger = DetectTrigger("my account was hacked", 5)
	if trigger == nil || trigger.Type != TriggerSecurity {
		t.Fatalf("got %+v, want security over failed_attempts", trigger)
	}
}

func TestDetectTriggerNoMatch(t *testing.T) {
	if trigger := DetectTrigger("how do I change my avatar", 0); trigger != nil {
		t.Fatalf("got %+v, want nil", trigger)
	}
}

func TestEvaluateEscalationNeedExplicitRequest(t *testing.T) {
	d := EvaluateEscalationNeed(NeedInput{Attempts: 0, SessionDurationMinutes: 1, ExplicitRequest: true})
	if !d.ShouldEscalate || d.Priority != "high" {
		t.Fatalf("got %+v, want should_escalate high", d)
	}
}

func TestEvaluateEscalationNeedSensitiveCategories(t *testing.T) {
	d := EvaluateEscalationNeed(NeedInput{IssueCategory: "security_incident"})
	if !d.ShouldEscalate || d.Priority != "urgent" || d.RecommendedSpecialist != "security" {
		t.Fatalf("security_incident: got %+v", d)
	}

	d = EvaluateEscalationNeed(NeedInput{IssueCategory: "refund"})
	if !d.ShouldEscalate || d.Priority != "high" || d.RecommendedSpecialist != "billing" {
		t.Fatalf("refund: got %+v", d)
	}
}

func TestEvaluateEscalationNeedBranchOrder(t *testing.T) {
	// Explicit request wins over a sensitive category.
	d := EvaluateEscalationNeed(NeedInput{ExplicitRequest: true, IssueCategory: "security_incident"})
	if d.Reason != "user_requested_human" || d.Priority != "high" {
		t.Fatalf("explicit over category: got %+v", d)
	}

	// Frustration with one attempt beats the complexity rule.
	d = EvaluateEscalationNeed(NeedInput{Sentiment: "frustrated", Attempts: 1, Complexity: "complex", SessionDurationMinutes: 30})
	if d.Reason != "user_frustrated" {
		t.Fatalf("frustration over complexity: got %+v", d)
	}
}

func TestEvaluateEscalationNeedTimeAndAttempts(t *testing.T) {
	d := EvaluateEscalationNeed(NeedInput{Complexity: "complex", SessionDurationMinutes: 16})
	if !d.ShouldEscalate || d.Priority != "medium" {
		t.Fatalf("complex >15min: got %+v", d)
	}

	d = EvaluateEscalationNeed(NeedInput{Attempts: 3})
	if !d.ShouldEscalate || d.Priority != "medium" {
		t.Fatalf("three attempts: got %+v", d)
	}

	d = EvaluateEscalationNeed(NeedInput{Attempts: 2, SessionDurationMinutes: 25})
	if !d.ShouldEscalate || d.Priority != "low" {
		t.Fatalf("long session: got %+v", d)
	}
}

func TestEvaluateEscalationNeedContinue(t *testing.T) {
	d := EvaluateEscalationNeed(NeedInput{Attempts: 1, SessionDurationMinutes: 5})
	if d.ShouldEscalate {
		t.Fatalf("got %+v, want continue", d)
	}
}
