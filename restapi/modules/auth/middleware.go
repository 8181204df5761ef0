package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Headers set by the upstream gateway when tokens are not used.
const (
	HeaderUserID       = "X-User-ID"
	HeaderUserRole     = "X-User-Role"
	HeaderWorkspaceIDs = "X-Workspace-IDs"
)

// identify resolves the caller from a bearer token or auth_token cookie, or
// from gateway headers when tokens is nil.
func identify(c *fiber.Ctx, tokens *TokenManager) (Identity, bool) {
	if tokens == nil {
		user := strings.TrimSpace(c.Get(HeaderUserID))
		if user == "" {
			return Identity{}, false
		}
		role := strings.TrimSpace(c.Get(HeaderUserRole))
		if role == "" {
			role = RoleMember
		}
		var workspaces []string
		for _, ws := range strings.Split(c.Get(HeaderWorkspaceIDs), ",") {
			if ws = strings.TrimSpace(ws); ws != "" {
				workspaces = append(workspaces, ws)
			}
		}
		return Identity{UserID: user, Role: role, Workspaces: workspaces}, true
	}

	token := c.Cookies("auth_token")
	if bearer, ok := strings.CutPrefix(c.Get(fiber.HeaderAuthorization), "Bearer "); ok {
		token = strings.TrimSpace(bearer)
	}
	if token == "" {
		return Identity{}, false
	}
	id, err := tokens.ValidateJWT(token)
	if err != nil {
		return Identity{}, false
	}
	return id, true
}

// RequireAuth middleware resolves the caller and blocks anonymous requests
func RequireAuth(tokens *TokenManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := identify(c, tokens)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authentication required",
			})
		}

		c.Locals("is_authenticated", true)
		c.Locals("username", id.UserID)
		c.Locals("role", id.Role)
		c.Locals("workspaces", id.Workspaces)
		c.SetUserContext(WithIdentity(c.UserContext(), id))

		return c.Next()
	}
}

// RequireRole middleware checks if user has one of the required roles
func RequireRole(allowedRoles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userRole, ok := c.Locals("role").(string)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authentication required",
			})
		}

		for _, role := range allowedRoles {
			if userRole == role {
				return c.Next()
			}
		}

		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Insufficient permissions",
		})
	}
}

// CurrentIdentity returns the identity RequireAuth attached to the request.
func CurrentIdentity(c *fiber.Ctx) (Identity, bool) {
	return IdentityFrom(c.UserContext())
}
