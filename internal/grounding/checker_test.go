package grounding

import (
	"strings"
	"testing"

	"github.com/support-copilot/backend/internal/storage/models"
)

func contextWithChunks(sources ...string) Context {
	gc := Context{}
	for _, s := range sources {
		gc.KnowledgeBaseChunks = append(gc.KnowledgeBaseChunks, models.ContextChunk{
			Content:   "content for " + s,
			Source:    s,
			Relevance: 0.9,
		})
	}
	return gc
}

func TestCheckResponseEmptyInputs(t *testing.T) {
	result := CheckResponse("", Context{})
	if result.Confidence != 0 {
		t.Errorf("empty answer: confidence = %v, want 0", result.Confidence)
	}
	if result.IsGrounded {
		t.Error("empty answer with no citations should not be grounded")
	}

	// Empty context but non-empty answer must also not panic.
	result = CheckResponse("The limit is 100 requests.", Context{})
	if len(result.VerifiedClaims) != 0 {
		t.Errorf("no context: verified claims = %d, want 0", len(result.VerifiedClaims))
	}
}

func TestUncertaintyAlwaysGrounded(t *testing.T) {
	result := CheckResponse("I don't know the answer to that.", contextWithChunks("kb/a"))
	if !result.IsGrounded {
		t.Error("uncertainty phrase should make the answer grounded")
	}

	result = CheckResponse("I'm not sure, but the server room temperature setting is probably adjustable somewhere.", Context{})
	if !result.IsGrounded {
		t.Error("uncertainty phrase should ground the answer even with zero context and zero citations")
	}
}

func TestInvalidCitationsFlagged(t *testing.T) {
	gc := contextWithChunks("kb/pricing", "kb/limits")
	result := CheckResponse("The limit is 100 [2]. Pricing starts at $5 [7]. Refunds take days [0].", gc)

	invalid := 0
	for _, claim := range result.UnsupportedClaims {
		if strings.HasPrefix(claim, "Invalid citation") {
			invalid++
		}
	}
	if invalid != 2 {
		t.Fatalf("invalid citation claims = %d, want 2 (got %v)", invalid, result.UnsupportedClaims)
	}
	for _, want := range []string{"Invalid citation [7]", "Invalid citation [0]"} {
		found := false
		for _, claim := range result.UnsupportedClaims {
			if claim == want {
				found = true
			}
		}
		if !found {
			t.Errorf("missing %q in %v", want, result.UnsupportedClaims)
		}
	}
}

func TestValidCitationRecordedWithSource(t *testing.T) {
	gc := contextWithChunks("kb/pricing", "kb/limits")
	result := CheckResponse("The rate limit is 100 requests per minute [2].", gc)

	if len(result.VerifiedClaims) != 1 {
		t.Fatalf("verified claims = %d, want 1", len(result.VerifiedClaims))
	}
	if result.VerifiedClaims[0].Source != "kb/limits" {
		t.Errorf("source = %q, want kb/limits", result.VerifiedClaims[0].Source)
	}
	if !result.IsGrounded {
		t.Error("fully cited answer with no unsupported claims should be grounded")
	}
}

func TestUncitedFactualSentenceFlagged(t *testing.T) {
	gc := contextWithChunks("kb/pricing")
	result := CheckResponse("The enterprise plan is nine hundred dollars per month for every seat.", gc)

	if len(result.UnsupportedClaims) != 1 {
		t.Fatalf("unsupported claims = %d, want 1 (got %v)", len(result.UnsupportedClaims), result.UnsupportedClaims)
	}
	if result.IsGrounded {
		t.Error("uncited factual claim with no citations anywhere should not be grounded")
	}
}

func TestShortAndMetaSentencesExempt(t *testing.T) {
	gc := contextWithChunks("kb/a")
	result := CheckResponse("In summary, the setup is done and your account is ready [1]. Thanks!", gc)

	for _, claim := range result.UnsupportedClaims {
		if strings.HasPrefix(strings.ToLower(claim), "in summary") {
			t.Errorf("meta sentence flagged: %q", claim)
		}
		if claim == "Thanks!" {
			t.Errorf("short sentence flagged: %q", claim)
		}
	}
}

func TestCoverageRecommendation(t *testing.T) {
	gc := contextWithChunks("kb/a", "kb/b", "kb/c", "kb/d")
	result := CheckResponse("Everything you need is covered in the setup guide [1].", gc)

	found := false
	for _, rec := range result.Recommendations {
		if strings.Contains(rec, "1 of 4") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected coverage recommendation, got %v", result.Recommendations)
	}
}

func TestBuildPromptNumbersSources(t *testing.T) {
	gc := contextWithChunks("kb/a", "kb/b")
	prompt := BuildPrompt(gc)

	if !strings.Contains(prompt, "[1] (kb/a)") || !strings.Contains(prompt, "[2] (kb/b)") {
		t.Errorf("prompt missing numbered sources:\n%s", prompt)
	}
	if !strings.Contains(prompt, "[n]") {
		t.Error("prompt missing citation instruction")
	}
}

func TestBuildPromptEmptyContext(t *testing.T) {
	prompt := BuildPrompt(Context{})
	if !strings.Contains(prompt, "I don't know") {
		t.Errorf("empty-context prompt must demand I-don't-know language:\n%s", prompt)
	}
}

func TestBuildPromptHistoryLimit(t *testing.T) {
	gc := contextWithChunks("kb/a")
	for i := 0; i < 5; i++ {
		gc.ConversationHistory = append(gc.ConversationHistory, Turn{Role: "user", Content: strings.Repeat("x", i+1)})
	}
	prompt := BuildPrompt(gc)

	if strings.Contains(prompt, "user: x\n") || strings.Contains(prompt, "user: xx\n") {
		t.Error("prompt should only include the last 3 history turns")
	}
	if !strings.Contains(prompt, "user: xxxxx") {
		t.Error("prompt missing the most recent history turn")
	}
}
