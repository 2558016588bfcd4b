// Package escalation decides when a conversation should be handed from the
// AI to a human agent. Detection is deliberately simple keyword matching;
// the keyword lists and thresholds are frozen so behavior stays reproducible
// and must not be upgraded to ML classification in place.
package escalation

import "strings"

// Trigger is a static catalog entry describing one escalation condition.
// Catalog entries are configuration data and never mutated at runtime.
type Trigger struct {
	Type      string `json:"type"`
	Condition string `json:"condition"`
	Action    string `json:"action"`
	Priority  string `json:"priority"`
}

const (
	TriggerExplicitRequest = "explicit_request"
	TriggerFrustration     = "frustration"
	TriggerSecurity        = "security"
	TriggerBilling         = "billing"
	TriggerLegal           = "legal"
	TriggerFailedAttempts  = "failed_attempts"
	TriggerTechnicalAccess = "technical_access"
)

// Catalog lists the trigger rules in evaluation order. First match wins;
// the order encodes business priority and must not be reordered.
var Catalog = []Trigger{
	{Type: TriggerExplicitRequest, Condition: "user asks for a human", Action: "escalate_immediately", Priority: "high"},
	{Type: TriggerFrustration, Condition: "repeated negative language, caps, or exclamations", Action: "escalate_with_apology", Priority: "high"},
	{Type: TriggerSecurity, Condition: "security incident keywords", Action: "escalate_to_security", Priority: "urgent"},
	{Type: TriggerBilling, Condition: "billing or refund keywords", Action: "escalate_to_billing", Priority: "high"},
	{Type: TriggerLegal, Condition: "legal threat keywords", Action: "escalate_to_legal", Priority: "high"},
	{Type: TriggerFailedAttempts, Condition: "two or more failed resolution attempts", Action: "escalate_with_context", Priority: "medium"},
	{Type: TriggerTechnicalAccess, Condition: "account access or API credential keywords", Action: "escalate_to_technical", Priority: "medium"},
}

var explicitRequestKeywords = []string{
	"speak to a human",
	"talk to a human",
	"speak to a manager",
	"talk to a manager",
	"speak to someone",
	"speak with someone",
	"human agent",
	"real person",
	"live agent",
	"customer service representative",
}

var frustrationKeywords = []string{
	"ridiculous",
	"terrible",
	"awful",
	"horrible",
	"worst",
	"useless",
	"frustrated",
	"frustrating",
	"unacceptable",
	"waste of time",
	"fed up",
}

var securityKeywords = []string{
	"hacked",
	"breach",
	"unauthorized",
	"phishing",
	"compromised",
	"stolen",
	"fraud",
	"suspicious activity",
}

var billingKeywords = []string{
	"refund",
	"overcharged",
	"double charged",
	"billing",
	"invoice",
	"charge on my",
	"cancel my subscription",
}

var legalKeywords = []string{
	"lawyer",
	"attorney",
	"lawsuit",
	"legal action",
	"sue you",
	"gdpr",
	"data protection",
}

var technicalAccessKeywords = []string{
	"api key",
	"password",
	"locked out",
	"can't log in",
	"cannot log in",
	"login",
	"two-factor",
	"2fa",
	"authentication",
	"debug",
}

// DetectTrigger scans a raw user message and the per-session failed-attempts
// counter against the catalog, in catalog order. Returns nil when nothing
// matches.
func DetectTrigger(message string, failedAttempts int) *Trigger {
	lower := strings.ToLower(message)

	if containsAny(lower, explicitRequestKeywords) {
		return catalogEntry(TriggerExplicitRequest)
	}
	if isFrustrated(message, lower) {
		return catalogEntry(TriggerFrustration)
	}
	if containsAny(lower, securityKeywords) {
		return catalogEntry(TriggerSecurity)
	}
	if containsAny(lower, billingKeywords) {
		return catalogEntry(TriggerBilling)
	}
	if containsAny(lower, legalKeywords) {
		return catalogEntry(TriggerLegal)
	}
	if failedAttempts >= 2 {
		return catalogEntry(TriggerFailedAttempts)
	}
	if containsAny(lower, technicalAccessKeywords) {
		return catalogEntry(TriggerTechnicalAccess)
	}
	return nil
}

// isFrustrated fires on two or more negative keywords, two or more all-caps
// runs, or three or more exclamation marks.
func isFrustrated(original, lower string) bool {
	negatives := 0
	for _, kw := range frustrationKeywords {
		if strings.Contains(lower, kw) {
			negatives++
		}
	}
	if negatives >= 2 {
		return true
	}

	if capsRuns(original) >= 2 {
		return true
	}

	return strings.Count(original, "!") >= 3
}

// capsRuns counts words of three or more letters written entirely in upper
// case. Short tokens like "AI" or "S3" do not count.
func capsRuns(message string) int {
	runs := 0
	for _, word := range strings.Fields(message) {
		word = strings.Trim(word, "!?.,:;\"'")
		if len(word) < 3 {
			continue
		}
		letters := 0
		upper := true
		for _, r := range word {
			if r < 'A' || r > 'Z' {
				if r >= 'a' && r <= 'z' {
					upper = false
				}
				continue
			}
			letters++
		}
		if upper && letters >= 3 {
			runs++
		}
	}
	return runs
}

func containsAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func catalogEntry(triggerType string) *Trigger {
	for i := range Catalog {
		if Catalog[i].Type == triggerType {
			t := Catalog[i]
			return &t
		}
	}
	return nil
}
