package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/support-copilot/backend/internal/storage/models"
	"github.com/support-copilot/backend/pkg/errs"
	"github.com/support-copilot/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS test_sets (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		name TEXT NOT NULL,
		test_cases TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_test_sets_tenant ON test_sets(tenant_id);

	CREATE TABLE IF NOT EXISTS evaluation_runs (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		test_set_id TEXT NOT NULL,
		evaluation_type TEXT,
		status TEXT NOT NULL,
		total_cases INTEGER DEFAULT 0,
		succeeded_cases INTEGER DEFAULT 0,
		failed_cases INTEGER DEFAULT 0,
		avg_faithfulness REAL DEFAULT 0,
		avg_relevancy REAL DEFAULT 0,
		avg_precision REAL DEFAULT 0,
		avg_recall REAL DEFAULT 0,
		avg_composite REAL DEFAULT 0,
		is_regression TEXT DEFAULT 'no',
		baseline_run_id TEXT,
		regression_threshold REAL DEFAULT 0.05,
		started_at INTEGER NOT NULL,
		completed_at INTEGER,
		duration_ms INTEGER DEFAULT 0,
		FOREIGN KEY (test_set_id) REFERENCES test_sets(id)
	);
	CREATE INDEX IF NOT EXISTS idx_runs_tenant ON evaluation_runs(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON evaluation_runs(status);

	CREATE TABLE IF NOT EXISTS evaluation_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		query_text TEXT NOT NULL,
		retrieved_context TEXT,
		generated_answer TEXT,
		faithfulness REAL DEFAULT 0,
		answer_relevancy REAL DEFAULT 0,
		context_precision REAL DEFAULT 0,
		context_recall REAL DEFAULT 0,
		composite_score REAL DEFAULT 0,
		status TEXT NOT NULL,
		error_message TEXT,
		latency_ms INTEGER DEFAULT 0,
		cost_usd REAL DEFAULT 0,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (run_id) REFERENCES evaluation_runs(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_results_run ON evaluation_results(run_id);

	CREATE TABLE IF NOT EXISTS knowledge_chunks (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		content TEXT NOT NULL,
		source TEXT NOT NULL,
		relevance REAL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_tenant ON knowledge_chunks(tenant_id);

	CREATE TABLE IF NOT EXISTS agent_feedback (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		conversation_id INTEGER NOT NULL,
		agent_response TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_feedback_session ON agent_feedback(session_id);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertTestSet(ts *models.TestSet) error {
	casesJSON, err := json.Marshal(ts.TestCases)
	if err != nil {
		return fmt.Errorf("failed to marshal test cases: %w", err)
	}

	query := `INSERT INTO test_sets (id, tenant_id, name, test_cases, created_at) VALUES (?, ?, ?, ?, ?)`

	_, err = c.db.Exec(query, ts.ID, ts.TenantID, ts.Name, string(casesJSON), ts.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert test set: %w", err)
	}

	logger.Debug("Test set inserted",
		zap.String("test_set_id", ts.ID),
		zap.Int("cases", len(ts.TestCases)),
	)
	return nil
}

// GetTestSet fetches a test set scoped to its owning tenant. A test set
// belonging to another tenant reads as not found.
func (c *Client) GetTestSet(tenantID, id string) (*models.TestSet, error) {
	query := `SELECT id, tenant_id, name, test_cases, created_at FROM test_sets WHERE id = ? AND tenant_id = ?`

	var ts models.TestSet
	var casesJSON string
	var createdAt int64

	err := c.db.QueryRow(query, id, tenantID).Scan(&ts.ID, &ts.TenantID, &ts.Name, &casesJSON, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("test set", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get test set: %w", err)
	}

	if err := json.Unmarshal([]byte(casesJSON), &ts.TestCases); err != nil {
		return nil, fmt.Errorf("failed to unmarshal test cases: %w", err)
	}
	ts.CreatedAt = time.Unix(createdAt, 0)

	return &ts, nil
}

func (c *Client) InsertRun(run *models.EvaluationRun) error {
	query := `
		INSERT INTO evaluation_runs (id, tenant_id, test_set_id, evaluation_type, status, total_cases,
			baseline_run_id, regression_threshold, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		run.ID,
		run.TenantID,
		run.TestSetID,
		run.EvaluationType,
		string(run.Status),
		run.TotalCases,
		run.BaselineRunID,
		run.RegressionThreshold,
		run.StartedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	logger.Info("Evaluation run created",
		zap.String("run_id", run.ID),
		zap.String("tenant_id", run.TenantID),
		zap.Int("total_cases", run.TotalCases),
	)
	return nil
}

func (c *Client) GetRun(id string) (*models.EvaluationRun, error) {
	query := `
		SELECT id, tenant_id, test_set_id, evaluation_type, status, total_cases, succeeded_cases,
			failed_cases, avg_faithfulness, avg_relevancy, avg_precision, avg_recall, avg_composite,
			is_regression, baseline_run_id, regression_threshold, started_at, completed_at, duration_ms
		FROM evaluation_runs WHERE id = ?
	`

	var run models.EvaluationRun
	var status, isRegression string
	var baselineRunID sql.NullString
	var startedAt int64
	var completedAt sql.NullInt64

	err := c.db.QueryRow(query, id).Scan(
		&run.ID,
		&run.TenantID,
		&run.TestSetID,
		&run.EvaluationType,
		&status,
		&run.TotalCases,
		&run.SucceededCases,
		&run.FailedCases,
		&run.Averages.Faithfulness,
		&run.Averages.AnswerRelevancy,
		&run.Averages.ContextPrecision,
		&run.Averages.ContextRecall,
		&run.Averages.CompositeScore,
		&isRegression,
		&baselineRunID,
		&run.RegressionThreshold,
		&startedAt,
		&completedAt,
		&run.DurationMS,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("evaluation run", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	run.Status = models.RunStatus(status)
	run.IsRegression = models.RegressionLevel(isRegression)
	run.BaselineRunID = baselineRunID.String
	run.StartedAt = time.Unix(startedAt, 0)
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0)
		run.CompletedAt = &t
	}

	return &run, nil
}

// UpdateRunCompleted writes the run's aggregates in a single update. This is
// the only mutation a run receives after creation.
func (c *Client) UpdateRunCompleted(run *models.EvaluationRun) error {
	query := `
		UPDATE evaluation_runs SET
			status = ?,
			succeeded_cases = ?,
			failed_cases = ?,
			avg_faithfulness = ?,
			avg_relevancy = ?,
			avg_precision = ?,
			avg_recall = ?,
			avg_composite = ?,
			is_regression = ?,
			completed_at = ?,
			duration_ms = ?
		WHERE id = ?
	`

	var completedAt interface{}
	if run.CompletedAt != nil {
		completedAt = run.CompletedAt.Unix()
	}

	_, err := c.db.Exec(
		query,
		string(run.Status),
		run.SucceededCases,
		run.FailedCases,
		run.Averages.Faithfulness,
		run.Averages.AnswerRelevancy,
		run.Averages.ContextPrecision,
		run.Averages.ContextRecall,
		run.Averages.CompositeScore,
		string(run.IsRegression),
		completedAt,
		run.DurationMS,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	logger.Info("Evaluation run completed",
		zap.String("run_id", run.ID),
		zap.Float64("avg_composite", run.Averages.CompositeScore),
		zap.String("is_regression", string(run.IsRegression)),
	)
	return nil
}

func (c *Client) InsertResult(result *models.EvaluationResult) error {
	contextJSON, err := json.Marshal(result.RetrievedContext)
	if err != nil {
		return fmt.Errorf("failed to marshal context: %w", err)
	}

	query := `
		INSERT INTO evaluation_results (run_id, query_text, retrieved_context, generated_answer,
			faithfulness, answer_relevancy, context_precision, context_recall, composite_score,
			status, error_message, latency_ms, cost_usd, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = c.db.Exec(
		query,
		result.RunID,
		result.Query,
		string(contextJSON),
		result.GeneratedAnswer,
		result.Metrics.Faithfulness,
		result.Metrics.AnswerRelevancy,
		result.Metrics.ContextPrecision,
		result.Metrics.ContextRecall,
		result.Metrics.CompositeScore,
		string(result.Status),
		result.ErrorMessage,
		result.LatencyMS,
		result.CostUSD,
		result.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert result: %w", err)
	}

	return nil
}

func (c *Client) GetResults(runID string) ([]models.EvaluationResult, error) {
	query := `
		SELECT id, run_id, query_text, retrieved_context, generated_answer,
			faithfulness, answer_relevancy, context_precision, context_recall, composite_score,
			status, error_message, latency_ms, cost_usd, created_at
		FROM evaluation_results WHERE run_id = ? ORDER BY id
	`

	rows, err := c.db.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get results: %w", err)
	}
	defer rows.Close()

	var results []models.EvaluationResult
	for rows.Next() {
		var r models.EvaluationResult
		var contextJSON, status string
		var createdAt int64

		err := rows.Scan(
			&r.ID,
			&r.RunID,
			&r.Query,
			&contextJSON,
			&r.GeneratedAnswer,
			&r.Metrics.Faithfulness,
			&r.Metrics.AnswerRelevancy,
			&r.Metrics.ContextPrecision,
			&r.Metrics.ContextRecall,
			&r.Metrics.CompositeScore,
			&status,
			&r.ErrorMessage,
			&r.LatencyMS,
			&r.CostUSD,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		json.Unmarshal([]byte(contextJSON), &r.RetrievedContext)
		r.Status = models.ResultStatus(status)
		r.CreatedAt = time.Unix(createdAt, 0)
		results = append(results, r)
	}

	return results, nil
}

func (c *Client) InsertKnowledgeChunk(id, tenantID string, chunk models.ContextChunk) error {
	query := `INSERT INTO knowledge_chunks (id, tenant_id, content, source, relevance, created_at) VALUES (?, ?, ?, ?, ?, ?)`

	_, err := c.db.Exec(query, id, tenantID, chunk.Content, chunk.Source, chunk.Relevance, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to insert knowledge chunk: %w", err)
	}

	return nil
}

// SearchChunks returns chunks whose content contains any of the query
// tokens, ordered by stored relevance. Good enough for offline evaluation
// runs against curated chunks; production retrieval is an external service.
func (c *Client) SearchChunks(tenantID, queryText string, limit int) ([]models.ContextChunk, error) {
	tokens := strings.Fields(strings.ToLower(queryText))
	if len(tokens) == 0 {
		return nil, nil
	}

	conditions := make([]string, 0, len(tokens))
	args := []interface{}{tenantID}
	for _, token := range tokens {
		conditions = append(conditions, "LOWER(content) LIKE ?")
		args = append(args, "%"+token+"%")
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT content, source, relevance FROM knowledge_chunks
		WHERE tenant_id = ? AND (%s)
		ORDER BY relevance DESC
		LIMIT ?
	`, strings.Join(conditions, " OR "))

	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.ContextChunk
	for rows.Next() {
		var chunk models.ContextChunk
		if err := rows.Scan(&chunk.Content, &chunk.Source, &chunk.Relevance); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		chunks = append(chunks, chunk)
	}

	return chunks, nil
}

func (c *Client) StoreAgentFeedback(fb *models.AgentFeedback) error {
	query := `INSERT INTO agent_feedback (session_id, conversation_id, agent_response, created_at) VALUES (?, ?, ?, ?)`

	_, err := c.db.Exec(query, fb.SessionID, fb.ConversationID, fb.AgentResponse, fb.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to store agent feedback: %w", err)
	}

	logger.Info("Agent feedback stored",
		zap.String("session_id", fb.SessionID),
		zap.Int("conversation_id", fb.ConversationID),
	)
	return nil
}

func (c *Client) GetAgentFeedback(sessionID string) ([]models.AgentFeedback, error) {
	query := `SELECT id, session_id, conversation_id, agent_response, created_at FROM agent_feedback WHERE session_id = ? ORDER BY id`

	rows, err := c.db.Query(query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get agent feedback: %w", err)
	}
	defer rows.Close()

	var feedback []models.AgentFeedback
	for rows.Next() {
		var fb models.AgentFeedback
		var createdAt int64
		if err := rows.Scan(&fb.ID, &fb.SessionID, &fb.ConversationID, &fb.AgentResponse, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		fb.CreatedAt = time.Unix(createdAt, 0)
		feedback = append(feedback, fb)
	}

	return feedback, nil
}
