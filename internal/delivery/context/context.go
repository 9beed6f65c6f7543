// Package context carries request-scoped values (request id, logger, caller
// identity) through echo.Context and context.Context.
package context

import (
	"context"
	"log/slog"

	"rssauth/internal/domain/service"

	"github.com/labstack/echo/v4"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const (
	// KeyRequestID is the key for storing request ID in context.
	KeyRequestID ContextKey = "request_id"

	// KeyLogger is the key for storing request-scoped logger in context.
	KeyLogger ContextKey = "logger"

	// KeyIdentity is the key for the verified caller identity.
	KeyIdentity ContextKey = "identity"

	// HeaderXRequestID is the HTTP header name for request ID.
	HeaderXRequestID = "X-Request-Id"
)

// GetRequestID extracts the request ID from echo.Context, falling back to the
// response header set by the request-ID middleware.
func GetRequestID(c echo.Context) string {
	if id, ok := c.Get(string(KeyRequestID)).(string); ok && id != "" {
		return id
	}

	return c.Response().Header().Get(HeaderXRequestID)
}

// SetRequestID sets the request ID in echo.Context.
func SetRequestID(c echo.Context, requestID string) {
	c.Set(string(KeyRequestID), requestID)
}

// GetRequestIDFromContext extracts the request ID from standard context.Context.
func GetRequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(KeyRequestID).(string); ok {
		return id
	}

	return ""
}

// WithRequestID returns a new context with the request ID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, KeyRequestID, requestID)
}

// GetLoggerOrDefault extracts the request-scoped logger from context.Context.
// If not found, returns the provided fallback logger.
func GetLoggerOrDefault(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if logger, ok := ctx.Value(KeyLogger).(*slog.Logger); ok && logger != nil {
		return logger
	}

	return fallback
}

// WithLogger returns a new context with the logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, KeyLogger, logger)
}

// SetIdentity attaches the verified caller to echo.Context and to the request context.
func SetIdentity(c echo.Context, identity *service.Identity) {
	c.Set(string(KeyIdentity), identity)
	c.SetRequest(c.Request().WithContext(WithIdentity(c.Request().Context(), identity)))
}

// GetIdentity returns the caller attached by the bearer middleware.
func GetIdentity(c echo.Context) (*service.Identity, bool) {
	identity, ok := c.Get(string(KeyIdentity)).(*service.Identity)

	return identity, ok && identity != nil
}

// WithIdentity returns a new context with the caller identity.
func WithIdentity(ctx context.Context, identity *service.Identity) context.Context {
	return context.WithValue(ctx, KeyIdentity, identity)
}

// IdentityFromContext returns the caller attached by RequireBearer or the echo middleware.
func IdentityFromContext(ctx context.Context) (*service.Identity, bool) {
	identity, ok := ctx.Value(KeyIdentity).(*service.Identity)

	return identity, ok && identity != nil
}
