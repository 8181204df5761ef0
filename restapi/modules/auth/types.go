// Package auth resolves the caller identity for REST and GraphQL requests and
// decides workspace access for issue operations.
package auth

import (
	"context"
	"slices"
)

// Roles
const (
	RoleAdmin   = "admin"
	RoleMember  = "member"
	RoleScanner = "scanner" // compliance pipeline posting scan results
)

type contextKey string

// Context keys set by the middleware.
const (
	UserKey       contextKey = "username"
	RoleKey       contextKey = "role"
	WorkspacesKey contextKey = "workspaces"
)

// Identity is the authenticated caller.
type Identity struct {
	UserID     string   `json:"user_id"`
	Role       string   `json:"role"`
	Workspaces []string `json:"workspaces"`
}

// IsAdmin reports whether the caller may act on every workspace.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// InWorkspace reports whether the caller belongs to workspaceID.
func (i Identity) InWorkspace(workspaceID string) bool {
	return slices.Contains(i.Workspaces, workspaceID)
}

// CanSee reports whether issues of workspaceID are visible to the caller.
func (i Identity) CanSee(workspaceID string) bool {
	return i.IsAdmin() || i.InWorkspace(workspaceID)
}

// WithIdentity stores id on ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	ctx = context.WithValue(ctx, UserKey, id.UserID)
	ctx = context.WithValue(ctx, RoleKey, id.Role)
	return context.WithValue(ctx, WorkspacesKey, id.Workspaces)
}

// IdentityFrom returns the identity stored on ctx.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	user, ok := ctx.Value(UserKey).(string)
	if !ok || user == "" {
		return Identity{}, false
	}
	role, _ := ctx.Value(RoleKey).(string)
	workspaces, _ := ctx.Value(WorkspacesKey).([]string)
	return Identity{UserID: user, Role: role, Workspaces: workspaces}, true
}
