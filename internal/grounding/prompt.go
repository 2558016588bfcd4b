// Package grounding builds grounding prompts and audits generated answers
// for unsupported claims. It is a deterministic text auditor: no external
// calls, no state.
package grounding

import (
	"fmt"
	"strings"

	"github.com/support-copilot/backend/internal/storage/models"
)

// Context is the read-only input supplied per request: the knowledge-base
// chunks the answer must be grounded in, plus optional conversation history
// and pre-verified facts.
type Context struct {
	KnowledgeBaseChunks []models.ContextChunk `json:"knowledge_base_chunks"`
	ConversationHistory []Turn                `json:"conversation_history,omitempty"`
	VerifiedFacts       []string              `json:"verified_facts,omitempty"`
}

type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// historyTurns limits how much conversation history is appended to the
// prompt as background.
const historyTurns = 3

// BuildPrompt emits the grounding instruction block for the generator:
// numbered context sources, an explicit citation requirement, and guidance
// for uncertainty and reasoning. History turns are appended as background
// only, never as citable sources.
func BuildPrompt(gc Context) string {
	var b strings.Builder

	b.WriteString("You are a customer-support assistant. Answer using ONLY the context sources below.\n\n")

	if len(gc.KnowledgeBaseChunks) == 0 {
		b.WriteString("No context sources are available for this question.\n")
		b.WriteString("You MUST respond with \"I don't know\" language and offer to connect the user with a human agent.\n")
	} else {
		b.WriteString("Context sources:\n")
		for i, chunk := range gc.KnowledgeBaseChunks {
			b.WriteString(fmt.Sprintf("[%d] (%s) %s\n", i+1, chunk.Source, chunk.Content))
		}
		b.WriteString("\nEvery factual claim in your answer MUST cite its source using [n] notation.\n")
		b.WriteString("If the context does not cover the question, say \"I don't know\" rather than guessing.\n")
	}

	if len(gc.VerifiedFacts) > 0 {
		b.WriteString("\nVerified facts you may state without citation:\n")
		for _, fact := range gc.VerifiedFacts {
			b.WriteString("- " + fact + "\n")
		}
	}

	b.WriteString("\nUncertainty guidance:\n")
	b.WriteString("- Never invent product details, prices, dates, or policies.\n")
	b.WriteString("- Prefer \"I'm not sure\" over a plausible-sounding guess.\n")
	b.WriteString("- If sources conflict, say so and cite both.\n")

	b.WriteString("\nReasoning guidance:\n")
	b.WriteString("- Work through the question step by step against the sources before answering.\n")
	b.WriteString("- Keep the reasoning internal; output only the final answer with citations.\n")

	if len(gc.ConversationHistory) > 0 {
		start := len(gc.ConversationHistory) - historyTurns
		if start < 0 {
			start = 0
		}
		b.WriteString("\nRecent conversation (background only, NOT a citable source):\n")
		for _, turn := range gc.ConversationHistory[start:] {
			b.WriteString(fmt.Sprintf("%s: %s\n", turn.Role, turn.Content))
		}
	}

	return b.String()
}
