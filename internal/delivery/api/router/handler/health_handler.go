package handler

import (
	"net/http"

	"rssauth/config"

	"github.com/labstack/echo/v4"
)

// HealthHandler answers liveness probes.
type HealthHandler struct {
	serviceName string
}

// NewHealthHandler creates a new HealthHandler instance
func NewHealthHandler(cfg *config.Config) *HealthHandler {
	return &HealthHandler{serviceName: cfg.Env.ServiceName}
}

// HealthCheck reports that the process is up. It does not touch the store.
func (h *HealthHandler) HealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"service": h.serviceName,
	})
}
