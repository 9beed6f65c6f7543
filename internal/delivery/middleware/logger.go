package middleware

import (
	"log/slog"
	"time"

	"rssauth/config"
	deliverycontext "rssauth/internal/delivery/context"

	"github.com/labstack/echo/v4"
)

// LoggerMiddleware writes one access log record per request. Successful probe
// requests (health, metrics) are only logged in debug mode.
type LoggerMiddleware struct {
	logger     *slog.Logger
	debug      bool
	quietPaths map[string]struct{}
}

// NewLoggerMiddleware creates a new logger middleware
func NewLoggerMiddleware(logger *slog.Logger, cfg *config.Config) *LoggerMiddleware {
	quiet := map[string]struct{}{"/health": {}}
	if cfg.Metrics != nil && cfg.Metrics.Path != "" {
		quiet[cfg.Metrics.Path] = struct{}{}
	}

	return &LoggerMiddleware{
		logger:     logger,
		debug:      cfg.Env.Debug,
		quietPaths: quiet,
	}
}

// Handle processes request logging
func (m *LoggerMiddleware) Handle(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			// Let the error handler write the response so the logged status is final.
			c.Error(err)
		}
		m.logRequest(c, start, err)

		return nil
	}
}

func (m *LoggerMiddleware) logRequest(c echo.Context, start time.Time, err error) {
	req := c.Request()
	res := c.Response()

	if _, quiet := m.quietPaths[req.URL.Path]; quiet && !m.debug && res.Status < 400 {
		return
	}

	// The Authorization header and bodies are never logged.
	fields := []slog.Attr{
		slog.String("method", req.Method),
		slog.String("uri", req.URL.Path),
		slog.Int("status", res.Status),
		slog.Duration("latency", time.Since(start)),
		slog.String("remote_ip", c.RealIP()),
		slog.String("user_agent", req.UserAgent()),
	}

	if identity, ok := deliverycontext.GetIdentity(c); ok {
		fields = append(fields, slog.String("user_id", identity.UserID.String()))
	}

	if err != nil {
		fields = append(fields, slog.Any("error", err))
	}

	logLevel := slog.LevelInfo
	if res.Status >= 400 {
		logLevel = slog.LevelWarn
	}
	if res.Status >= 500 {
		logLevel = slog.LevelError
	}

	logger := deliverycontext.GetLoggerOrDefault(req.Context(), m.logger)
	logger.LogAttrs(req.Context(), logLevel, "HTTP Request", fields...)
}
