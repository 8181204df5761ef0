// Package api wires the Fiber application with middleware, REST routes and GraphQL.
package api

import (
	"context"
	"fmt"
	"time"

	"github.com/complyhq/issues-backend/v2/graphql"
	"github.com/complyhq/issues-backend/v2/internal/metrics"
	"github.com/complyhq/issues-backend/v2/restapi"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
)

// Options tunes the HTTP server.
type Options struct {
	BodyLimitMB    int
	AllowOrigins   string
	DisableLogging bool
	Metrics        *metrics.Metrics // nil disables /metrics
}

const readinessTimeout = 2 * time.Second

// NewFiberApp creates and configures a Fiber app with REST and GraphQL routes
func NewFiberApp(deps restapi.Deps, opts Options) (*fiber.App, error) {
	schema, err := graphql.CreateSchema(deps.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to create GraphQL schema: %w", err)
	}

	if opts.BodyLimitMB <= 0 {
		opts.BodyLimitMB = 50
	}
	if opts.AllowOrigins == "" {
		opts.AllowOrigins = "http://localhost:3000,http://localhost:4000,http://127.0.0.1:3000,http://127.0.0.1:4000"
	}

	app := fiber.New(fiber.Config{
		AppName:     "issues-backend/v2 API v1.0",
		BodyLimit:   opts.BodyLimitMB * 1024 * 1024,
		ReadTimeout: 60 * time.Second,
	})

	// Middleware
	app.Use(fiberrecover.New())
	if opts.Metrics != nil {
		app.Use(opts.Metrics.Middleware())
	}
	app.Use(compress.New(compress.Config{Level: compress.LevelBestSpeed}))

	app.Use(cors.New(cors.Config{
		AllowOrigins:     opts.AllowOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-User-ID, X-User-Role, X-Workspace-IDs",
		AllowCredentials: true,
		AllowMethods:     "GET, POST, HEAD, PUT, DELETE, PATCH, OPTIONS",
	}))

	app.Use(func(c *fiber.Ctx) error {
		c.Locals("graphql_op", "-")
		return c.Next()
	})
	if !opts.DisableLogging {
		app.Use(logger.New(logger.Config{
			Format: "${time} ${status} - ${latency} ${method} ${path} ${locals:graphql_op}\n",
		}))
	}

	// Health check endpoints
	live := func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	}
	app.Get("/", live)
	app.Get("/health/live", live)
	app.Get("/health/ready", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), readinessTimeout)
		defer cancel()
		if err := deps.Store.Ping(ctx); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unavailable",
				"store":  err.Error(),
			})
		}
		return c.JSON(fiber.Map{"status": "ready", "store": "ok"})
	})
	if opts.Metrics != nil {
		app.Get("/metrics", opts.Metrics.Handler())
	}

	restapi.SetupRoutes(app, deps, schema)

	return app, nil
}
