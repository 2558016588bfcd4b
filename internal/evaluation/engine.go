// Package evaluation orchestrates test-set execution: retrieve context,
// generate an answer, score it, persist per-case results, and classify the
// run against a baseline. Runs are sequential and single-writer; a failed
// case is recorded, never raised.
package evaluation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/support-copilot/backend/internal/metrics"
	"github.com/support-copilot/backend/internal/scoring"
	"github.com/support-copilot/backend/internal/storage/models"
	"github.com/support-copilot/backend/internal/storage/sqlite"
	"github.com/support-copilot/backend/pkg/errs"
	"github.com/support-copilot/backend/pkg/logger"
	"github.com/support-copilot/backend/pkg/utils"
)

const defaultRegressionThreshold = 0.05

// Generator is the generation collaborator: a black box returning answer
// text plus token/cost metadata.
type Generator interface {
	Generate(ctx context.Context, query string, chunks []models.ContextChunk) (*models.GeneratedAnswer, error)
}

// Retriever is the retrieval collaborator supplying context chunks.
type Retriever interface {
	Retrieve(ctx context.Context, tenantID, query string) ([]models.ContextChunk, error)
}

// AnswerCache is optional; a nil cache means every case hits the generator.
type AnswerCache interface {
	GetAnswer(ctx context.Context, key string) (*models.GeneratedAnswer, bool, error)
	SetAnswer(ctx context.Context, key string, answer *models.GeneratedAnswer, ttl time.Duration) error
}

type Engine struct {
	db        *sqlite.Client
	generator Generator
	retriever Retriever
	cache     AnswerCache
	cacheTTL  time.Duration
}

func NewEngine(db *sqlite.Client, generator Generator, retriever Retriever, cache AnswerCache, cacheTTL time.Duration) *Engine {
	return &Engine{
		db:        db,
		generator: generator,
		retriever: retriever,
		cache:     cache,
		cacheTTL:  cacheTTL,
	}
}

type CreateRunRequest struct {
	TenantID            string
	TestSetID           string
	InlineTestCases     []models.TestCase
	EvaluationType      string
	BaselineRunID       string
	RegressionThreshold float64
}

// CreateRun validates the request, resolves or persists the test set, and
// creates the run in running state. Execution is a separate call.
func (e *Engine) CreateRun(ctx context.Context, req CreateRunRequest) (string, error) {
	if req.TenantID == "" {
		return "", errs.Validation("tenant_id is required")
	}
	if req.TestSetID == "" && len(req.InlineTestCases) == 0 {
		return "", errs.Validation("either test_set_id or test_cases must be provided")
	}

	threshold := req.RegressionThreshold
	if threshold <= 0 {
		threshold = defaultRegressionThreshold
	}

	testSetID := req.TestSetID
	var caseCount int

	if testSetID != "" {
		ts, err := e.db.GetTestSet(req.TenantID, testSetID)
		if err != nil {
			return "", err
		}
		caseCount = len(ts.TestCases)
	} else {
		// Inline cases are persisted as an ad-hoc test set so results
		// stay joinable to their inputs.
		ts := &models.TestSet{
			ID:        uuid.New().String(),
			TenantID:  req.TenantID,
			Name:      "inline",
			TestCases: req.InlineTestCases,
			CreatedAt: time.Now(),
		}
		if err := e.db.InsertTestSet(ts); err != nil {
			return "", err
		}
		testSetID = ts.ID
		caseCount = len(ts.TestCases)
	}

	if req.BaselineRunID != "" {
		if _, err := e.db.GetRun(req.BaselineRunID); err != nil {
			return "", err
		}
	}

	run := &models.EvaluationRun{
		ID:                  uuid.New().String(),
		TenantID:            req.TenantID,
		TestSetID:           testSetID,
		EvaluationType:      req.EvaluationType,
		Status:              models.RunStatusRunning,
		TotalCases:          caseCount,
		IsRegression:        models.RegressionNone,
		BaselineRunID:       req.BaselineRunID,
		RegressionThreshold: threshold,
		StartedAt:           time.Now(),
	}

	if err := e.db.InsertRun(run); err != nil {
		return "", err
	}

	return run.ID, nil
}

// ExecuteRun walks the run's test cases in order, recording one result per
// case, then writes the aggregates in a single final update. The running-
// state guard makes re-execution (and concurrent execution) an
// InvalidStateError.
func (e *Engine) ExecuteRun(ctx context.Context, runID string) (*models.EvaluationRun, error) {
	run, err := e.db.GetRun(runID)
	if err != nil {
		return nil, err
	}
	if run.Status != models.RunStatusRunning {
		return nil, &errs.InvalidStateError{
			Resource: fmt.Sprintf("evaluation run %s", runID),
			Current:  string(run.Status),
			Expected: string(models.RunStatusRunning),
		}
	}

	testSet, err := e.db.GetTestSet(run.TenantID, run.TestSetID)
	if err != nil {
		return nil, err
	}

	var baseline *models.EvaluationRun
	if run.BaselineRunID != "" {
		baseline, err = e.db.GetRun(run.BaselineRunID)
		if err != nil {
			return nil, err
		}
	}

	logger.Info("Executing evaluation run",
		zap.String("run_id", runID),
		zap.Int("cases", len(testSet.TestCases)),
	)

	started := time.Now()
	var sums models.EvaluationMetrics

	for i, tc := range testSet.TestCases {
		result := e.executeCase(ctx, run, tc)

		if err := e.db.InsertResult(result); err != nil {
			logger.Error("Failed to persist result",
				zap.String("run_id", runID),
				zap.Int("case", i),
				zap.Error(err),
			)
		}

		metrics.EvalCasesTotal.WithLabelValues(string(result.Status)).Inc()

		if result.Status == models.ResultSuccess {
			run.SucceededCases++
			sums.Faithfulness += result.Metrics.Faithfulness
			sums.AnswerRelevancy += result.Metrics.AnswerRelevancy
			sums.ContextPrecision += result.Metrics.ContextPrecision
			sums.ContextRecall += result.Metrics.ContextRecall
			sums.CompositeScore += result.Metrics.CompositeScore
			metrics.CompositeScore.Observe(result.Metrics.CompositeScore)
		} else {
			run.FailedCases++
		}
	}

	if run.SucceededCases > 0 {
		n := float64(run.SucceededCases)
		run.Averages = models.EvaluationMetrics{
			Faithfulness:     sums.Faithfulness / n,
			AnswerRelevancy:  sums.AnswerRelevancy / n,
			ContextPrecision: sums.ContextPrecision / n,
			ContextRecall:    sums.ContextRecall / n,
			CompositeScore:   sums.CompositeScore / n,
		}
	}

	run.IsRegression = classifyRegression(run, baseline)
	metrics.RegressionRuns.WithLabelValues(string(run.IsRegression)).Inc()

	now := time.Now()
	run.Status = models.RunStatusCompleted
	run.CompletedAt = &now
	run.DurationMS = int(time.Since(started).Milliseconds())
	metrics.EvalRunDuration.Observe(time.Since(started).Seconds())

	if err := e.db.UpdateRunCompleted(run); err != nil {
		return nil, err
	}

	return run, nil
}

// executeCase runs one test case end to end. Collaborator failures are
// captured in the result, never propagated: a slow or broken external call
// must not abort the run.
func (e *Engine) executeCase(ctx context.Context, run *models.EvaluationRun, tc models.TestCase) *models.EvaluationResult {
	started := time.Now()
	result := &models.EvaluationResult{
		RunID:     run.ID,
		Query:     tc.Query,
		CreatedAt: time.Now(),
	}

	chunks, err := e.retriever.Retrieve(ctx, run.TenantID, tc.Query)
	if err != nil {
		result.Status = models.ResultFailed
		result.ErrorMessage = fmt.Sprintf("retrieval failed: %v", err)
		result.LatencyMS = int(time.Since(started).Milliseconds())
		logger.Warn("Case retrieval failed", zap.String("run_id", run.ID), zap.Error(err))
		return result
	}

	contents := make([]string, len(chunks))
	for i, chunk := range chunks {
		contents[i] = chunk.Content
	}
	result.RetrievedContext = contents

	answer, err := e.generateWithCache(ctx, run.TenantID, tc.Query, chunks)
	if err != nil {
		result.Status = models.ResultFailed
		result.ErrorMessage = fmt.Sprintf("generation failed: %v", err)
		result.LatencyMS = int(time.Since(started).Milliseconds())
		logger.Warn("Case generation failed", zap.String("run_id", run.ID), zap.Error(err))
		return result
	}

	result.GeneratedAnswer = answer.Text
	result.CostUSD = answer.CostUSD
	result.Metrics = scoring.Score(tc.Query, contents, answer.Text, tc.GroundTruth)
	result.Status = models.ResultSuccess
	result.LatencyMS = int(time.Since(started).Milliseconds())

	return result
}

// generateWithCache consults the answer cache before calling the generator.
// Cache errors degrade to a miss.
func (e *Engine) generateWithCache(ctx context.Context, tenantID, query string, chunks []models.ContextChunk) (*models.GeneratedAnswer, error) {
	if e.cache == nil {
		return e.generator.Generate(ctx, query, chunks)
	}

	keyInput := tenantID + "|" + query
	for _, chunk := range chunks {
		keyInput += "|" + chunk.Content
	}
	key := utils.HashKey(keyInput)

	cached, hit, err := e.cache.GetAnswer(ctx, key)
	if err != nil {
		logger.Warn("Answer cache read failed", zap.Error(err))
	} else if hit {
		metrics.CacheHits.WithLabelValues("answer").Inc()
		return cached, nil
	}
	metrics.CacheMisses.WithLabelValues("answer").Inc()

	answer, err := e.generator.Generate(ctx, query, chunks)
	if err != nil {
		return nil, err
	}

	if err := e.cache.SetAnswer(ctx, key, answer, e.cacheTTL); err != nil {
		logger.Warn("Answer cache write failed", zap.Error(err))
	}

	return answer, nil
}

// classifyRegression compares the 4-metric mean of the current run against
// the baseline: degradation beyond twice the threshold is critical, beyond
// the threshold a warning.
func classifyRegression(run, baseline *models.EvaluationRun) models.RegressionLevel {
	if baseline == nil {
		return models.RegressionNone
	}

	avgBaseline := fourMetricMean(baseline.Averages)
	avgCurrent := fourMetricMean(run.Averages)
	degradation := avgBaseline - avgCurrent

	switch {
	case degradation > 2*run.RegressionThreshold:
		return models.RegressionCritical
	case degradation > run.RegressionThreshold:
		return models.RegressionWarning
	default:
		return models.RegressionNone
	}
}

func fourMetricMean(m models.EvaluationMetrics) float64 {
	return (m.Faithfulness + m.AnswerRelevancy + m.ContextPrecision + m.ContextRecall) / 4
}

// GetRun returns the stored run, including aggregates once completed.
func (e *Engine) GetRun(runID string) (*models.EvaluationRun, error) {
	return e.db.GetRun(runID)
}

// GetResults returns the per-case results for a run, in execution order.
func (e *Engine) GetResults(runID string) ([]models.EvaluationResult, error) {
	return e.db.GetResults(runID)
}
