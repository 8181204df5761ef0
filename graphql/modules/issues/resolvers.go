package issues

import (
	"context"
	"errors"
	"fmt"

	"github.com/complyhq/issues-backend/v2/internal/store"
	"github.com/complyhq/issues-backend/v2/model"
	"github.com/complyhq/issues-backend/v2/restapi/modules/auth"
)

const maxLimit = 1000

// ErrUnauthenticated is returned when the request carries no identity.
var ErrUnauthenticated = errors.New("authentication required")

func identity(ctx context.Context) (auth.Identity, error) {
	if ctx == nil {
		return auth.Identity{}, ErrUnauthenticated
	}
	id, ok := auth.IdentityFrom(ctx)
	if !ok {
		return auth.Identity{}, ErrUnauthenticated
	}
	return id, nil
}

func stringArg(args map[string]interface{}, name string) string {
	if v, ok := args[name].(string); ok {
		return v
	}
	return ""
}

// ResolveIssues lists the issues visible to the caller
func ResolveIssues(ctx context.Context, s store.IssueStore, args map[string]interface{}) ([]model.Issue, error) {
	id, err := identity(ctx)
	if err != nil {
		return nil, err
	}

	filter := model.IssueFilter{
		DocumentID:  stringArg(args, "document_id"),
		WorkspaceID: stringArg(args, "workspace_id"),
		Framework:   stringArg(args, "framework"),
		Status:      model.Status(stringArg(args, "status")),
	}
	if active, ok := args["active"].(bool); ok {
		filter.ActiveOnly = active
	}
	if limit, ok := args["limit"].(int); ok {
		filter.Limit = limit
	}
	if filter.Limit <= 0 || filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", model.ErrInvalidInput, filter.Status)
	}
	if filter.WorkspaceID != "" && !id.CanSee(filter.WorkspaceID) {
		return nil, model.ErrAccessDenied
	}

	issues, err := s.ListIssues(ctx, filter)
	if err != nil {
		return nil, err
	}

	visible := make([]model.Issue, 0, len(issues))
	for _, issue := range issues {
		if id.CanSee(issue.WorkspaceID) {
			visible = append(visible, issue)
		}
	}
	return visible, nil
}

// ResolveIssue fetches one issue
func ResolveIssue(ctx context.Context, s store.IssueStore, issueID string) (*model.Issue, error) {
	id, err := identity(ctx)
	if err != nil {
		return nil, err
	}
	issue, err := s.GetIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}
	if !id.CanSee(issue.WorkspaceID) {
		return nil, model.ErrAccessDenied
	}
	return issue, nil
}

// ResolveIssueHistory returns the status history ledger of one issue, oldest first
func ResolveIssueHistory(ctx context.Context, s store.IssueStore, issueID string) ([]model.StatusHistoryEntry, error) {
	if _, err := ResolveIssue(ctx, s, issueID); err != nil {
		return nil, err
	}
	return s.ListHistory(ctx, issueID)
}
