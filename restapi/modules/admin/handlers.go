// Package admin implements the REST API handlers for admin operations.
// It provides endpoints for fingerprint backfill processing and status monitoring.
package admin

import (
	"context"
	"fmt"
	"sync"

	"github.com/complyhq/issues-backend/v2/internal/lifecycle"
	"github.com/complyhq/issues-backend/v2/model"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const maxBatchSize = 10000

// BackfillRunner runs at most one fingerprint backfill at a time in the
// background and remembers the outcome of the last run.
type BackfillRunner struct {
	backfiller *lifecycle.Backfiller
	logger     *zap.Logger

	mu       sync.Mutex
	running  bool
	progress string
	report   *model.BackfillReport
	done     chan struct{}
}

// NewBackfillRunner wraps backfiller for use from HTTP handlers.
func NewBackfillRunner(backfiller *lifecycle.Backfiller, logger *zap.Logger) *BackfillRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BackfillRunner{backfiller: backfiller, logger: logger, progress: "idle"}
}

// Start launches a backfill unless one is already running.
func (r *BackfillRunner) Start(batchSize int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return false
	}
	r.running = true
	r.progress = fmt.Sprintf("Backfilling fingerprints in batches of %d...", batchSize)
	r.report = nil
	r.done = make(chan struct{})

	go r.run(batchSize, r.done)
	return true
}

func (r *BackfillRunner) run(batchSize int, done chan struct{}) {
	defer close(done)

	report, err := r.backfiller.Run(context.Background(), batchSize)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = false
	r.report = &report
	if err != nil {
		r.progress = fmt.Sprintf("Failed: %v", err)
		r.logger.Error("Backfill failed", zap.Error(err))
		return
	}
	r.progress = fmt.Sprintf("Complete: %d assigned, %d superseded, %d failed",
		report.Assigned, report.Superseded, report.Failed)
}

// Wait blocks until the current run finishes or ctx is done.
func (r *BackfillRunner) Wait(ctx context.Context) error {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns a snapshot of the runner state.
func (r *BackfillRunner) Status() model.BackfillStatusResponse {
	r.mu.Lock()
	defer r.mu.Unlock()
	resp := model.BackfillStatusResponse{Running: r.running, Status: r.progress}
	if r.report != nil {
		report := *r.report
		resp.Report = &report
	}
	return resp
}

// PostBackfill triggers the fingerprint backfill process
func PostBackfill(runner *BackfillRunner) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req model.BackfillRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"success": false,
					"message": "Invalid request body: " + err.Error(),
				})
			}
		}
		if req.BatchSize == 0 {
			req.BatchSize = lifecycle.DefaultBackfillBatch
		}
		if req.BatchSize < 0 || req.BatchSize > maxBatchSize {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": fmt.Sprintf("batch_size must be between 1 and %d", maxBatchSize),
			})
		}

		if !runner.Start(req.BatchSize) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"success": false,
				"message": "Backfill already in progress",
				"status":  runner.Status().Status,
			})
		}

		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"success": true,
			"message": fmt.Sprintf("Backfill started with batch size %d", req.BatchSize),
			"status":  "processing",
		})
	}
}

// GetBackfillStatus returns the current status of any running backfill
func GetBackfillStatus(runner *BackfillRunner) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(runner.Status())
	}
}
