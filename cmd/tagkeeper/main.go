package main

import (
	"context"
	"fmt"
	"os"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/shipstream/tagkeeper/cmd/tagkeeper/container"
	"github.com/shipstream/tagkeeper/cmd/tagkeeper/routes"
	"github.com/shipstream/tagkeeper/common/bootstrap"
	"github.com/shipstream/tagkeeper/common/db"
	"github.com/shipstream/tagkeeper/common/middleware"
	"github.com/shipstream/tagkeeper/common/ratelimit"
	"github.com/shipstream/tagkeeper/common/server"
)

func main() {
	ctx := context.Background()

	// Bootstrap common components (DB, logger, redis, cache, telemetry)
	components, err := bootstrap.Setup(ctx, "tagkeeper",
		bootstrap.WithDBInitHook(func(d *db.DB) error {
			return db.Migrate(ctx, d)
		}),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap tagkeeper: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	// Initialize service container (singleton pattern - all services created once)
	serviceContainer, err := container.NewContainer(components)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize service container: %v\n", err)
		os.Exit(1)
	}
	defer serviceContainer.Close()

	// Initialize Echo server
	e := setupEcho()

	// Setup middleware
	setupMiddleware(e, serviceContainer)

	// Setup health check
	setupHealthCheck(e, components)

	// Register all routes
	registerRoutes(e, serviceContainer)

	// Start server
	startServer(e, components)
}

// setupEcho initializes the Echo server with basic configuration
func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	return e
}

// setupMiddleware configures all middleware for the Echo server
func setupMiddleware(e *echo.Echo, serviceContainer *container.Container) {
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())
	e.Use(echomw.CORS())
	e.Use(echomw.RequestID())

	// Throttle writes when Redis is available to back the counters
	cfg := serviceContainer.Components.Config
	if serviceContainer.Limiter != nil && cfg.RateLimit.Enabled {
		e.Use(middleware.WriteRateLimit(serviceContainer.Limiter, ratelimit.Config{
			WriteLimit:       cfg.RateLimit.WriteLimit,
			EnvironmentLimit: cfg.RateLimit.EnvironmentLimit,
			WindowSeconds:    cfg.RateLimit.WindowSeconds,
		}))
	}
}

// setupHealthCheck registers the health check endpoint
func setupHealthCheck(e *echo.Echo, components *bootstrap.Components) {
	e.GET("/health", func(c echo.Context) error {
		if err := components.Health(c.Request().Context()); err != nil {
			return c.JSON(503, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
		return c.JSON(200, map[string]string{
			"status":  "ok",
			"service": "tagkeeper",
		})
	})
}

// registerRoutes registers all application routes using the service container
func registerRoutes(e *echo.Echo, serviceContainer *container.Container) {
	routes.RegisterTagRoutes(e, serviceContainer)
	routes.RegisterDeploymentRoutes(e, serviceContainer)
	routes.RegisterPromotionRoutes(e, serviceContainer)
	routes.RegisterRollbackRoutes(e, serviceContainer)
	routes.RegisterAdminRoutes(e, serviceContainer)
}

// startServer runs the Echo handler behind the graceful-shutdown wrapper
func startServer(e *echo.Echo, components *bootstrap.Components) {
	srv := server.New("tagkeeper", components.Config.Service.Port, e, components.Logger)
	if err := srv.Start(); err != nil {
		components.Logger.Error("Server error", "error", err)
		os.Exit(1)
	}
}
