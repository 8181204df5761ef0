// Package issues implements the REST API handlers for scan ingestion and
// issue management.
package issues

import (
	"context"
	"errors"
	"fmt"

	"github.com/complyhq/issues-backend/v2/internal/lifecycle"
	"github.com/complyhq/issues-backend/v2/internal/store"
	"github.com/complyhq/issues-backend/v2/model"
	"github.com/complyhq/issues-backend/v2/restapi/modules/auth"
	"github.com/gofiber/fiber/v2"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// errorStatus maps error kinds to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, model.ErrAccessDenied):
		return fiber.StatusForbidden
	case errors.Is(err, model.ErrInvalidTransition), errors.Is(err, model.ErrDuplicateActive), errors.Is(err, model.ErrRevisionConflict):
		return fiber.StatusConflict
	case errors.Is(err, model.ErrInvalidInput):
		return fiber.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

func sendError(c *fiber.Ctx, err error) error {
	return c.Status(errorStatus(err)).JSON(fiber.Map{
		"success": false,
		"error":   err.Error(),
	})
}

// PostScan reconciles the findings of one completed compliance run.
func PostScan(reconciler *lifecycle.Reconciler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req model.ScanResults
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"error":   "Invalid request body: " + err.Error(),
			})
		}
		if err := req.Validate(); err != nil {
			return sendError(c, err)
		}

		id, _ := auth.CurrentIdentity(c)
		if id.Role != auth.RoleScanner && !id.CanSee(req.WorkspaceID) {
			return sendError(c, model.ErrAccessDenied)
		}

		// Findings reconciled before an interruption stay persisted, so the
		// partial summary is returned with the error.
		summary, err := reconciler.ReconcileRun(c.UserContext(), req.Scope, req.Findings)
		if err != nil {
			return c.Status(errorStatus(err)).JSON(fiber.Map{
				"success": false,
				"error":   err.Error(),
				"summary": summary,
			})
		}
		return c.JSON(summary)
	}
}

// ListIssues returns issues matching the query filters. Non-admin callers
// only see issues of their own workspaces.
func ListIssues(s store.IssueStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		filter := model.IssueFilter{
			DocumentID:  c.Query("document_id"),
			WorkspaceID: c.Query("workspace_id"),
			Framework:   c.Query("framework"),
			Status:      model.Status(c.Query("status")),
			ActiveOnly:  c.QueryBool("active", false),
			Limit:       c.QueryInt("limit", defaultListLimit),
		}
		if filter.Status != "" && !filter.Status.Valid() {
			return sendError(c, fmt.Errorf("%w: unknown status %q", model.ErrInvalidInput, filter.Status))
		}
		if filter.Limit <= 0 || filter.Limit > maxListLimit {
			filter.Limit = defaultListLimit
		}

		id, _ := auth.CurrentIdentity(c)
		if filter.WorkspaceID != "" && !id.CanSee(filter.WorkspaceID) {
			return sendError(c, model.ErrAccessDenied)
		}

		issues, err := s.ListIssues(c.UserContext(), filter)
		if err != nil {
			return sendError(c, err)
		}

		visible := make([]model.Issue, 0, len(issues))
		for _, issue := range issues {
			if id.CanSee(issue.WorkspaceID) {
				visible = append(visible, issue)
			}
		}

		return c.JSON(fiber.Map{
			"issues": visible,
			"count":  len(visible),
		})
	}
}

// loadVisible fetches an issue and enforces workspace visibility.
func loadVisible(c *fiber.Ctx, s store.IssueStore) (*model.Issue, error) {
	issue, err := s.GetIssue(c.UserContext(), c.Params("id"))
	if err != nil {
		return nil, err
	}
	id, _ := auth.CurrentIdentity(c)
	if !id.CanSee(issue.WorkspaceID) {
		return nil, model.ErrAccessDenied
	}
	return issue, nil
}

// GetIssue returns one issue.
func GetIssue(s store.IssueStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		issue, err := loadVisible(c, s)
		if err != nil {
			return sendError(c, err)
		}
		return c.JSON(issue)
	}
}

// GetIssueHistory returns an issue with its status history ledger.
func GetIssueHistory(s store.IssueStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		issue, err := loadVisible(c, s)
		if err != nil {
			return sendError(c, err)
		}
		history, err := s.ListHistory(c.UserContext(), issue.ID)
		if err != nil {
			return sendError(c, err)
		}
		if history == nil {
			history = []model.StatusHistoryEntry{}
		}
		return c.JSON(model.IssueWithHistory{Issue: issue, History: history})
	}
}

// PostTransition applies a user action (resolve, dismiss, reopen, start, stop).
func PostTransition(transitioner *lifecycle.Transitioner) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body model.TransitionBody
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(model.TransitionResponse{
				Success: false,
				Message: "Invalid request body: " + err.Error(),
			})
		}

		id, _ := auth.CurrentIdentity(c)
		issue, err := transitioner.Apply(c.UserContext(), model.TransitionRequest{
			IssueID: c.Params("id"),
			UserID:  id.UserID,
			Action:  body.Action,
			Notes:   body.Notes,
		})
		if err != nil {
			return c.Status(errorStatus(err)).JSON(model.TransitionResponse{
				Success: false,
				Message: err.Error(),
			})
		}

		return c.JSON(model.TransitionResponse{
			Success: true,
			Issue:   issue,
			Message: fmt.Sprintf("Issue %s is now %s", issue.ID, issue.Status),
		})
	}
}
