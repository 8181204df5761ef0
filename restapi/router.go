// Package restapi provides the main router and initialization for REST API endpoints.
package restapi

import (
	"github.com/complyhq/issues-backend/v2/internal/lifecycle"
	"github.com/complyhq/issues-backend/v2/internal/store"
	"github.com/complyhq/issues-backend/v2/restapi/modules/admin"
	"github.com/complyhq/issues-backend/v2/restapi/modules/auth"
	"github.com/complyhq/issues-backend/v2/restapi/modules/issues"
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"
	"go.uber.org/zap"
)

// Deps are the services the HTTP routes are bound to.
type Deps struct {
	Store        store.IssueStore
	Reconciler   *lifecycle.Reconciler
	Transitioner *lifecycle.Transitioner
	Backfill     *admin.BackfillRunner
	Tokens       *auth.TokenManager // nil selects gateway header identity
	Logger       *zap.Logger
}

// SetupRoutes configures all REST API routes and the GraphQL endpoint.
// CORS is handled globally in internal/api/fiber.go.
func SetupRoutes(app *fiber.App, deps Deps, schema graphql.Schema) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// API Group /api/v1, every route needs an identity
	api := app.Group("/api/v1", auth.RequireAuth(deps.Tokens))

	api.Post("/graphql", GraphQLHandler(schema))

	// Scan ingestion
	api.Post("/scans", issues.PostScan(deps.Reconciler))

	// Issues
	issueGroup := api.Group("/issues")
	issueGroup.Get("/", issues.ListIssues(deps.Store))
	issueGroup.Get("/:id", issues.GetIssue(deps.Store))
	issueGroup.Get("/:id/history", issues.GetIssueHistory(deps.Store))
	issueGroup.Post("/:id/transition", issues.PostTransition(deps.Transitioner))

	// Admin
	adminGroup := api.Group("/admin", auth.RequireRole(auth.RoleAdmin))
	adminGroup.Post("/backfill", admin.PostBackfill(deps.Backfill))
	adminGroup.Get("/backfill/status", admin.GetBackfillStatus(deps.Backfill))

	logger.Info("API routes initialized successfully")
}
