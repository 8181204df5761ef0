package auth

import "context"

// WorkspaceAuthorizer grants access when the caller on ctx is userID and is
// an admin or a member of the workspace.
type WorkspaceAuthorizer struct{}

// CanAccess implements lifecycle.Authorizer.
func (WorkspaceAuthorizer) CanAccess(ctx context.Context, userID, workspaceID string) (bool, error) {
	id, ok := IdentityFrom(ctx)
	if !ok || id.UserID != userID {
		return false, nil
	}
	return id.CanSee(workspaceID), nil
}
