// Package router contains routing and server setup for the HTTP delivery.
package router

import (
	"rssauth/config"
	"rssauth/internal/delivery/api/middleware"
	"rssauth/internal/delivery/api/router/handler"
	"rssauth/internal/infra/metrics"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

type RouterParams struct {
	fx.In

	AuthHandler    *handler.AuthHandler
	HealthHandler  *handler.HealthHandler
	AuthMiddleware *middleware.AuthMiddleware
	Metrics        *metrics.Recorder `optional:"true"`
	Config         *config.Config
}

// router holds all the handlers that need to be registered.
type router struct {
	authHandler    *handler.AuthHandler
	healthHandler  *handler.HealthHandler
	authMiddleware *middleware.AuthMiddleware
	metrics        *metrics.Recorder
	config         *config.Config
}

// NewRouter is the constructor for the Router.
// Fx will inject the required handlers here.
func NewRouter(params RouterParams) *router {
	return &router{
		authHandler:    params.AuthHandler,
		healthHandler:  params.HealthHandler,
		authMiddleware: params.AuthMiddleware,
		metrics:        params.Metrics,
		config:         params.Config,
	}
}

// RegisterRoutes sets up all the API routes for the application.
func (r *router) RegisterRoutes(e *echo.Echo) {
	// Health check endpoint
	e.GET("/health", r.healthHandler.HealthCheck)

	if r.config.Metrics != nil && r.config.Metrics.Enabled && r.metrics != nil {
		e.GET(r.config.Metrics.Path, echo.WrapHandler(r.metrics.Handler()))
	}

	// Auth routes. Authenticate is attached per route so unknown paths under
	// the base path still answer 404 rather than 401.
	authGroup := e.Group(r.config.HTTP.BasePath)
	{
		authGroup.POST("/register", r.authHandler.Register)
		authGroup.POST("/login", r.authHandler.Login)
		authGroup.GET("/verify", r.authHandler.Verify, r.authMiddleware.Authenticate)
		authGroup.GET("/profile", r.authHandler.Profile, r.authMiddleware.Authenticate)
	}
}
