// Package scoring computes per-query quality metrics. Every function here is
// pure and deterministic: the same inputs always yield the same scores, which
// regression classification depends on. The heuristics are intentionally
// simple keyword and citation counting, not semantic similarity.
package scoring

import (
	"regexp"
	"strings"

	"github.com/support-copilot/backend/internal/storage/models"
)

// expectedCitations normalizes the citation count in Faithfulness. Three
// citations per answer is treated as fully faithful.
const expectedCitations = 3

// defaultContextRecall is returned when no ground truth is supplied.
// TODO: 0.8 is an unjustified constant; revisit once runs with ground
// truth dominate the test sets.
const defaultContextRecall = 0.8

var citationPattern = regexp.MustCompile(`\[(?:KB:[^\[\]]+|\d+)\]`)

// Faithfulness counts citation markers in the answer and normalizes by
// expectedCitations, clamped to [0,1]. With no context there is nothing the
// answer could be faithful to, so the score is 0.
func Faithfulness(answer string, contextChunks []string) float64 {
	if len(contextChunks) == 0 {
		return 0
	}

	citations := citationPattern.FindAllString(answer, -1)
	score := float64(len(citations)) / expectedCitations
	if score > 1 {
		score = 1
	}
	return score
}

// AnswerRelevancy is the fraction of whitespace-separated query tokens that
// occur literally in the lower-cased answer.
func AnswerRelevancy(query, answer string) float64 {
	tokens := strings.Fields(strings.ToLower(query))
	if len(tokens) == 0 {
		return 0
	}

	lowerAnswer := strings.ToLower(answer)
	hits := 0
	for _, token := range tokens {
		if strings.Contains(lowerAnswer, token) {
			hits++
		}
	}
	return float64(hits) / float64(len(tokens))
}

// ContextPrecision is the fraction of retrieved chunks containing at least
// one query token.
func ContextPrecision(query string, contextChunks []string) float64 {
	if len(contextChunks) == 0 {
		return 0
	}

	tokens := strings.Fields(strings.ToLower(query))
	relevant := 0
	for _, chunk := range contextChunks {
		lowerChunk := strings.ToLower(chunk)
		for _, token := range tokens {
			if strings.Contains(lowerChunk, token) {
				relevant++
				break
			}
		}
	}
	return float64(relevant) / float64(len(contextChunks))
}

// ContextRecall is the fraction of ground-truth tokens present in the
// concatenated context. Without ground truth it falls back to
// defaultContextRecall.
func ContextRecall(groundTruth string, contextChunks []string) float64 {
	if groundTruth == "" {
		return defaultContextRecall
	}

	tokens := strings.Fields(strings.ToLower(groundTruth))
	if len(tokens) == 0 {
		return defaultContextRecall
	}

	joined := strings.ToLower(strings.Join(contextChunks, " "))
	hits := 0
	for _, token := range tokens {
		if strings.Contains(joined, token) {
			hits++
		}
	}
	return float64(hits) / float64(len(tokens))
}

// Composite combines the four metrics with fixed weights:
// 0.3*faithfulness + 0.3*relevancy + 0.2*precision + 0.2*recall.
func Composite(m models.EvaluationMetrics) float64 {
	return 0.3*m.Faithfulness +
		0.3*m.AnswerRelevancy +
		0.2*m.ContextPrecision +
		0.2*m.ContextRecall
}

// Score computes the full metric vector for one evaluated query.
func Score(query string, contextChunks []string, answer, groundTruth string) models.EvaluationMetrics {
	m := models.EvaluationMetrics{
		Faithfulness:     Faithfulness(answer, contextChunks),
		AnswerRelevancy:  AnswerRelevancy(query, answer),
		ContextPrecision: ContextPrecision(query, contextChunks),
		ContextRecall:    ContextRecall(groundTruth, contextChunks),
	}
	m.CompositeScore = Composite(m)
	return m
}
