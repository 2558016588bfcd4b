package models

import "time"

// TestCase is a single curated evaluation query. Authored offline and never
// mutated after creation.
type TestCase struct {
	Query          string            `json:"query"`
	ExpectedAnswer string            `json:"expected_answer,omitempty"`
	GroundTruth    string            `json:"ground_truth,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

type TestSet struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"tenant_id"`
	Name      string     `json:"name"`
	TestCases []TestCase `json:"test_cases"`
	CreatedAt time.Time  `json:"created_at"`
}

// EvaluationMetrics holds the four core quality metrics plus their weighted
// composite. All values are in [0,1].
type EvaluationMetrics struct {
	Faithfulness     float64 `json:"faithfulness"`
	AnswerRelevancy  float64 `json:"answer_relevancy"`
	ContextPrecision float64 `json:"context_precision"`
	ContextRecall    float64 `json:"context_recall"`
	CompositeScore   float64 `json:"composite_score"`
}

type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultFailed  ResultStatus = "failed"
)

// EvaluationResult is the per-query output of a run. Immutable once written.
type EvaluationResult struct {
	ID               int               `json:"id"`
	RunID            string            `json:"run_id"`
	Query            string            `json:"query"`
	RetrievedContext []string          `json:"retrieved_context"`
	GeneratedAnswer  string            `json:"generated_answer"`
	Metrics          EvaluationMetrics `json:"metrics"`
	Status           ResultStatus      `json:"status"`
	ErrorMessage     string            `json:"error_message,omitempty"`
	LatencyMS        int               `json:"latency_ms"`
	CostUSD          float64           `json:"cost_usd"`
	CreatedAt        time.Time         `json:"created_at"`
}

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
)

type RegressionLevel string

const (
	RegressionNone     RegressionLevel = "no"
	RegressionWarning  RegressionLevel = "warning"
	RegressionCritical RegressionLevel = "critical"
)

// EvaluationRun aggregates one execution of a test set. Mutated only by the
// owning execution; terminal once completed.
type EvaluationRun struct {
	ID                  string            `json:"id"`
	TenantID            string            `json:"tenant_id"`
	TestSetID           string            `json:"test_set_id"`
	EvaluationType      string            `json:"evaluation_type"`
	Status              RunStatus         `json:"status"`
	TotalCases          int               `json:"total_cases"`
	SucceededCases      int               `json:"succeeded_cases"`
	FailedCases         int               `json:"failed_cases"`
	Averages            EvaluationMetrics `json:"averages"`
	IsRegression        RegressionLevel   `json:"is_regression"`
	BaselineRunID       string            `json:"baseline_run_id,omitempty"`
	RegressionThreshold float64           `json:"regression_threshold"`
	StartedAt           time.Time         `json:"started_at"`
	CompletedAt         *time.Time        `json:"completed_at,omitempty"`
	DurationMS          int               `json:"duration_ms"`
}

// ContextChunk is a retrieved knowledge-base passage handed to the generator
// and the grounding checker.
type ContextChunk struct {
	Content   string  `json:"content"`
	Source    string  `json:"source"`
	Relevance float64 `json:"relevance"`
}

// GeneratedAnswer is what the generation collaborator returns for a query:
// the answer text plus token and cost metadata.
type GeneratedAnswer struct {
	Text             string  `json:"text"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

// AgentFeedback is a human agent's reply extracted from a message_created
// webhook, stored for training-data collection.
type AgentFeedback struct {
	ID             int       `json:"id"`
	SessionID      string    `json:"session_id"`
	ConversationID int       `json:"conversation_id"`
	AgentResponse  string    `json:"agent_response"`
	CreatedAt      time.Time `json:"created_at"`
}
