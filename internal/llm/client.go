// Package llm wraps the generation collaborator. The model itself is a
// black box: this client builds a grounding prompt, requests a completion,
// and surfaces token usage and estimated cost to the caller.
package llm

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/support-copilot/backend/internal/grounding"
	"github.com/support-copilot/backend/internal/storage/models"
	"github.com/support-copilot/backend/pkg/circuitbreaker"
	"github.com/support-copilot/backend/pkg/logger"
	"github.com/support-copilot/backend/pkg/retry"
)

type Client struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

// costPer1KTokens estimates spend by model, prompt/completion respectively.
// Rough and intentionally so; the evaluation engine only needs a comparable
// number across runs.
var costPer1KTokens = map[string][2]float64{
	"gpt-4":         {0.03, 0.06},
	"gpt-4-turbo":   {0.01, 0.03},
	"gpt-3.5-turbo": {0.0005, 0.0015},
}

func NewClient(apiKey, model string, temperature float32, maxTokens, timeoutSec int) *Client {
	client := openai.NewClient(apiKey)

	cb := circuitbreaker.NewCircuitBreaker("llm", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	if timeoutSec <= 0 {
		timeoutSec = 60
	}

	logger.Info("LLM client initialized", zap.String("model", model))

	return &Client{
		client:      client,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		timeout:     time.Duration(timeoutSec) * time.Second,
		cb:          cb,
		retryConfig: retryConfig,
	}
}

// Generate produces a grounded answer for a query over the supplied context
// chunks. The system prompt is the grounding instruction block, so answers
// come back with [n] citations the checker can audit.
func (c *Client) Generate(ctx context.Context, query string, chunks []models.ContextChunk) (*models.GeneratedAnswer, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	systemPrompt := grounding.BuildPrompt(grounding.Context{KnowledgeBaseChunks: chunks})

	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		},
		{
			Role:    openai.ChatMessageRoleUser,
			Content: query,
		},
	}

	var result *models.GeneratedAnswer

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateChatCompletion(
				ctx,
				openai.ChatCompletionRequest{
					Model:       c.model,
					Messages:    messages,
					Temperature: c.temperature,
					MaxTokens:   c.maxTokens,
				},
			)
			if err != nil {
				return fmt.Errorf("failed to create completion: %w", err)
			}
			if len(resp.Choices) == 0 {
				return fmt.Errorf("completion returned no choices")
			}

			logger.Debug("Answer generated",
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)

			result = &models.GeneratedAnswer{
				Text:             resp.Choices[0].Message.Content,
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				CostUSD:          c.estimateCost(resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Summarize condenses a conversation transcript into the short AI summary
// that rides along in the escalation handoff payload.
func (c *Client) Summarize(ctx context.Context, transcript []grounding.Turn) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var conversation string
	for _, turn := range transcript {
		conversation += fmt.Sprintf("%s: %s\n", turn.Role, turn.Content)
	}

	systemPrompt := `You summarize customer-support conversations for human agents taking over from an AI assistant.
Write 2-3 sentences covering: the user's issue, what the AI already tried, and what remains unresolved.
Be factual; do not speculate beyond the transcript.`

	var result string

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateChatCompletion(
				ctx,
				openai.ChatCompletionRequest{
					Model: c.model,
					Messages: []openai.ChatCompletionMessage{
						{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
						{Role: openai.ChatMessageRoleUser, Content: conversation},
					},
					Temperature: 0.3,
					MaxTokens:   300,
				},
			)
			if err != nil {
				return fmt.Errorf("failed to summarize: %w", err)
			}
			if len(resp.Choices) == 0 {
				return fmt.Errorf("summary returned no choices")
			}
			result = resp.Choices[0].Message.Content
			return nil
		})
	})
	if err != nil {
		return "", err
	}

	return result, nil
}

func (c *Client) estimateCost(promptTokens, completionTokens int) float64 {
	rates, ok := costPer1KTokens[c.model]
	if !ok {
		rates = costPer1KTokens["gpt-4"]
	}
	return float64(promptTokens)/1000*rates[0] + float64(completionTokens)/1000*rates[1]
}
