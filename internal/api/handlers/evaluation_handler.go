package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/support-copilot/backend/internal/evaluation"
	"github.com/support-copilot/backend/internal/storage/models"
	"github.com/support-copilot/backend/pkg/logger"
)

type EvaluationHandler struct {
	engine *evaluation.Engine
	hub    *Hub
}

func NewEvaluationHandler(engine *evaluation.Engine, hub *Hub) *EvaluationHandler {
	return &EvaluationHandler{
		engine: engine,
		hub:    hub,
	}
}

// CreateRun registers an evaluation run in running state and returns its id.
// Execution is triggered separately so callers can decouple setup from the
// long-running part.
func (h *EvaluationHandler) CreateRun(c *fiber.Ctx) error {
	var req struct {
		TenantID            string            `json:"tenant_id"`
		TestSetID           string            `json:"test_set_id"`
		TestCases           []models.TestCase `json:"test_cases"`
		EvaluationType      string            `json:"evaluation_type"`
		BaselineRunID       string            `json:"baseline_run_id"`
		RegressionThreshold float64           `json:"regression_threshold"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	runID, err := h.engine.CreateRun(c.Context(), evaluation.CreateRunRequest{
		TenantID:            req.TenantID,
		TestSetID:           req.TestSetID,
		InlineTestCases:     req.TestCases,
		EvaluationType:      req.EvaluationType,
		BaselineRunID:       req.BaselineRunID,
		RegressionThreshold: req.RegressionThreshold,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"run_id": runID,
		"status": string(models.RunStatusRunning),
	})
}

// ExecuteRun runs every case of a created run and returns the aggregates.
func (h *EvaluationHandler) ExecuteRun(c *fiber.Ctx) error {
	runID := c.Params("id")

	run, err := h.engine.ExecuteRun(c.Context(), runID)
	if err != nil {
		logger.Error("Evaluation run failed",
			zap.String("run_id", runID),
			zap.Error(err),
		)
		return respondError(c, err)
	}

	if run.IsRegression != models.RegressionNone {
		h.hub.Broadcast("evaluation_regression", fiber.Map{
			"run_id":   run.ID,
			"severity": string(run.IsRegression),
		})
	}

	return c.JSON(runResponse(run))
}

// GetRun returns the run with its aggregates; pass ?include_results=true
// to embed the per-case rows.
func (h *EvaluationHandler) GetRun(c *fiber.Ctx) error {
	runID := c.Params("id")

	run, err := h.engine.GetRun(runID)
	if err != nil {
		return respondError(c, err)
	}

	body := runResponse(run)
	if c.QueryBool("include_results") {
		results, err := h.engine.GetResults(runID)
		if err != nil {
			return respondError(c, err)
		}
		body["results"] = results
	}

	return c.JSON(body)
}

func runResponse(run *models.EvaluationRun) fiber.Map {
	body := fiber.Map{
		"run_id":          run.ID,
		"tenant_id":       run.TenantID,
		"test_set_id":     run.TestSetID,
		"status":          string(run.Status),
		"total_cases":     run.TotalCases,
		"succeeded_cases": run.SucceededCases,
		"failed_cases":    run.FailedCases,
		"averages":        run.Averages,
		"is_regression":   string(run.IsRegression),
		"duration_ms":     run.DurationMS,
		"started_at":      run.StartedAt,
	}
	if run.BaselineRunID != "" {
		body["baseline_run_id"] = run.BaselineRunID
	}
	if run.CompletedAt != nil {
		body["completed_at"] = run.CompletedAt
	}
	return body
}
