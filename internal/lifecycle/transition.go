package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/complyhq/issues-backend/v2/internal/store"
	"github.com/complyhq/issues-backend/v2/model"
	"go.uber.org/zap"
)

// Authorizer decides whether a user may act on issues of a workspace.
type Authorizer interface {
	CanAccess(ctx context.Context, userID, workspaceID string) (bool, error)
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, userID, workspaceID string) (bool, error)

// CanAccess implements Authorizer.
func (f AuthorizerFunc) CanAccess(ctx context.Context, userID, workspaceID string) (bool, error) {
	return f(ctx, userID, workspaceID)
}

// AllowAll grants every request. It backs the offline CLI.
var AllowAll Authorizer = AuthorizerFunc(func(context.Context, string, string) (bool, error) { return true, nil })

// Transitioner applies user-initiated status changes.
type Transitioner struct {
	store      store.IssueStore
	authorizer Authorizer
	emitter    Emitter
	logger     *zap.Logger
	maxRetries int
	now        func() time.Time
}

// NewTransitioner builds a Transitioner. A nil emitter discards events.
func NewTransitioner(s store.IssueStore, authorizer Authorizer, emitter Emitter, logger *zap.Logger, cfg Config) *Transitioner {
	if emitter == nil {
		emitter = nopEmitter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transitioner{
		store:      s,
		authorizer: authorizer,
		emitter:    emitter,
		logger:     logger,
		maxRetries: cfg.withDefaults().MaxRetries,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Apply performs req and returns the updated issue. It fails with
// ErrNotFound, ErrAccessDenied, ErrInvalidInput or ErrInvalidTransition,
// none of which are worth retrying.
func (t *Transitioner) Apply(ctx context.Context, req model.TransitionRequest) (*model.Issue, error) {
	if strings.TrimSpace(req.IssueID) == "" {
		return nil, fmt.Errorf("%w: issue id is required", model.ErrInvalidInput)
	}
	if strings.TrimSpace(req.UserID) == "" {
		return nil, fmt.Errorf("%w: user id is required", model.ErrInvalidInput)
	}
	target, err := req.Action.Target()
	if err != nil {
		return nil, err
	}

	var (
		updated *model.Issue
		entry   *model.StatusHistoryEntry
	)
	op := func() error {
		issue, err := t.store.GetIssue(ctx, req.IssueID)
		if err != nil {
			return backoff.Permanent(err)
		}

		allowed, err := t.authorizer.CanAccess(ctx, req.UserID, issue.WorkspaceID)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("authorization check failed: %w", err))
		}
		if !allowed {
			return backoff.Permanent(fmt.Errorf("%w: user %s on workspace %s", model.ErrAccessDenied, req.UserID, issue.WorkspaceID))
		}

		if !model.CanTransition(issue.Status, target, false) {
			return backoff.Permanent(fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, issue.Status, target))
		}

		now := t.now()
		update := model.IssueUpdate{Status: &target, UpdatedAt: now}
		if target == model.StatusResolved {
			userID := req.UserID
			update.ResolvedAt = &now
			update.ResolvedBy = &userID
		}
		if req.Notes != "" && (target == model.StatusResolved || target == model.StatusDismissed) {
			notes := req.Notes
			update.ResolutionNotes = &notes
		}
		if req.Action == model.ActionStart {
			userID := req.UserID
			update.AssignedTo = &userID
		}

		reason := req.Notes
		if reason == "" {
			reason = "manual " + string(req.Action)
		}
		e := &model.StatusHistoryEntry{
			ID:        newID(),
			OldStatus: issue.Status,
			NewStatus: target,
			ChangedBy: req.UserID,
			Reason:    reason,
			ChangedAt: now,
		}

		updated, err = t.store.UpdateIssue(ctx, issue.ID, issue.Revision, update, e)
		if err != nil {
			if errors.Is(err, model.ErrRevisionConflict) {
				return err
			}
			return backoff.Permanent(err)
		}
		entry = e
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(retryPolicy(t.maxRetries), ctx)); err != nil {
		return nil, err
	}

	t.logger.Info("Issue status changed",
		zap.String("issue_id", updated.ID),
		zap.String("old_status", string(entry.OldStatus)),
		zap.String("new_status", string(entry.NewStatus)),
		zap.String("changed_by", entry.ChangedBy))
	t.emitter.Emit(eventFor(updated, entry))
	return updated, nil
}
