package grounding

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jdkato/prose/v2"
)

// CheckResult is the audit verdict for one generated answer. Derived per
// call and consumed immediately; never persisted.
type CheckResult struct {
	IsGrounded        bool            `json:"is_grounded"`
	Confidence        float64         `json:"confidence"`
	UnsupportedClaims []string        `json:"unsupported_claims"`
	VerifiedClaims    []VerifiedClaim `json:"verified_claims"`
	Recommendations   []string        `json:"recommendations"`
}

type VerifiedClaim struct {
	Claim  string `json:"claim"`
	Source string `json:"source"`
}

// groundedConfidence is the confidence at or above which an answer is
// considered grounded regardless of other signals.
const groundedConfidence = 0.7

var citationIndexPattern = regexp.MustCompile(`\[(\d+)\]`)

// uncertaintyPhrases are the literal markers of honest uncertainty. An
// answer containing any of these is always considered grounded. Frozen so
// audit results stay reproducible across releases.
var uncertaintyPhrases = []string{
	"i don't know",
	"i do not know",
	"i'm not sure",
	"i am not sure",
	"not enough information",
	"i don't have information",
	"cannot determine",
	"the context does not cover",
	"i'd recommend speaking with",
}

// metaPrefixes mark sentences that frame the answer rather than assert
// facts; they are exempt from the unsupported-claim heuristic.
var metaPrefixes = []string{
	"in summary",
	"to summarize",
	"in conclusion",
	"overall",
	"here is",
	"here are",
	"note:",
	"let me",
}

// CheckResponse audits a generated answer against its grounding context.
// It extracts [n] citations, flags out-of-range indices, classifies each
// sentence as verified, unsupported, or exempt, and derives an overall
// grounding verdict. It never fails: empty answers and empty context yield
// a zero-confidence result.
func CheckResponse(answer string, gc Context) CheckResult {
	result := CheckResult{
		UnsupportedClaims: []string{},
		VerifiedClaims:    []VerifiedClaim{},
		Recommendations:   []string{},
	}

	chunkCount := len(gc.KnowledgeBaseChunks)
	lowerAnswer := strings.ToLower(answer)

	citationsUsed := map[int]bool{}
	for _, match := range citationIndexPattern.FindAllStringSubmatch(answer, -1) {
		n, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		if n < 1 || n > chunkCount {
			claim := fmt.Sprintf("Invalid citation [%d]", n)
			result.UnsupportedClaims = append(result.UnsupportedClaims, claim)
			result.Recommendations = append(result.Recommendations,
				fmt.Sprintf("Citation [%d] does not match any of the %d provided sources; remove or correct it", n, chunkCount))
			continue
		}
		citationsUsed[n] = true
	}

	sentences := splitSentences(answer)
	uncertaintyBonus := 0

	for _, sentence := range sentences {
		trimmed := strings.TrimSpace(sentence)
		if trimmed == "" {
			continue
		}
		lower := strings.ToLower(trimmed)

		if containsUncertainty(lower) {
			uncertaintyBonus++
			continue
		}

		if idx, ok := validCitationIn(trimmed, chunkCount); ok {
			result.VerifiedClaims = append(result.VerifiedClaims, VerifiedClaim{
				Claim:  trimmed,
				Source: gc.KnowledgeBaseChunks[idx-1].Source,
			})
			continue
		}

		if len(trimmed) > 20 && !isMetaCommentary(lower) && containsCopula(lower) {
			result.UnsupportedClaims = append(result.UnsupportedClaims, trimmed)
		}
	}

	if len(sentences) > 0 {
		result.Confidence = float64(len(result.VerifiedClaims)+uncertaintyBonus) / float64(len(sentences))
		if result.Confidence > 1 {
			result.Confidence = 1
		}
	}

	hasUncertainty := containsUncertainty(lowerAnswer)
	result.IsGrounded = result.Confidence >= groundedConfidence ||
		(len(result.UnsupportedClaims) == 0 && len(citationsUsed) > 0) ||
		hasUncertainty

	if chunkCount > 0 && len(citationsUsed) < (chunkCount+1)/2 {
		result.Recommendations = append(result.Recommendations,
			fmt.Sprintf("Only %d of %d context sources are cited; cover more of the provided context or trim unused sources", len(citationsUsed), chunkCount))
	}

	return result
}

// splitSentences segments the answer with prose's rule-based segmenter,
// falling back to punctuation splitting if segmentation fails.
func splitSentences(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	doc, err := prose.NewDocument(trimmed,
		prose.WithTokenization(false),
		prose.WithTagging(false),
		prose.WithExtraction(false))
	if err == nil {
		sents := doc.Sentences()
		out := make([]string, 0, len(sents))
		for _, s := range sents {
			if strings.TrimSpace(s.Text) != "" {
				out = append(out, s.Text)
			}
		}
		return out
	}

	var out []string
	for _, s := range regexp.MustCompile(`[.!?]+`).Split(trimmed, -1) {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

func containsUncertainty(lower string) bool {
	for _, phrase := range uncertaintyPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func isMetaCommentary(lower string) bool {
	for _, prefix := range metaPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// containsCopula reports whether the sentence asserts something, which is
// what makes an uncited sentence a claim worth flagging.
func containsCopula(lower string) bool {
	return strings.Contains(lower, " is ") || strings.Contains(lower, " are ")
}

func validCitationIn(sentence string, chunkCount int) (int, bool) {
	for _, match := range citationIndexPattern.FindAllStringSubmatch(sentence, -1) {
		n, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		if n >= 1 && n <= chunkCount {
			return n, true
		}
	}
	return 0, false
}
