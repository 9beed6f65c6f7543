package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"rssauth/config"
	deliverycontext "rssauth/internal/delivery/context"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestRequestIDMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{name: "propagates caller id", incoming: "abc-123", keep: true},
		{name: "mints when absent", incoming: ""},
		{name: "replaces oversized id", incoming: strings.Repeat("x", maxRequestIDLength+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			m := NewRequestIDMiddleware(newBufferLogger(&buf))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set(deliverycontext.HeaderXRequestID, tt.incoming)
			}
			rec := httptest.NewRecorder()
			c := echo.New().NewContext(req, rec)

			var fromCtx string
			err := m.Process(func(c echo.Context) error {
				fromCtx = deliverycontext.GetRequestIDFromContext(c.Request().Context())
				deliverycontext.GetLoggerOrDefault(c.Request().Context(), nil).Info("inside")

				return nil
			})(c)
			require.NoError(t, err)

			got := rec.Header().Get(deliverycontext.HeaderXRequestID)
			require.NotEmpty(t, got)
			assert.Equal(t, got, fromCtx)
			assert.Equal(t, got, deliverycontext.GetRequestID(c))
			if tt.keep {
				assert.Equal(t, tt.incoming, got)
			} else {
				assert.NotEqual(t, tt.incoming, got)
				assert.LessOrEqual(t, len(got), maxRequestIDLength)
			}
			assert.Contains(t, buf.String(), `"request_id":"`+got+`"`)
		})
	}
}

func newLoggerConfig(debug bool) *config.Config {
	cfg := &config.Config{Metrics: &config.MetricsConfig{Enabled: true, Path: "/metrics"}}
	cfg.Env.Debug = debug

	return cfg
}

func TestLoggerMiddleware_LogsRequestWithoutSecrets(t *testing.T) {
	var buf bytes.Buffer
	m := NewLoggerMiddleware(newBufferLogger(&buf), newLoggerConfig(false))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"password":"secret1"}`))
	req.Header.Set(echo.HeaderAuthorization, "Bearer top-secret")
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)

	err := m.Handle(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})(c)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "HTTP Request", entry["msg"])
	assert.Equal(t, "/api/auth/login", entry["uri"])
	assert.EqualValues(t, http.StatusOK, entry["status"])
	assert.NotContains(t, buf.String(), "secret")
}

func TestLoggerMiddleware_HandlesErrorBeforeLogging(t *testing.T) {
	var buf bytes.Buffer
	m := NewLoggerMiddleware(newBufferLogger(&buf), newLoggerConfig(false))

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/missing", nil), rec)

	err := m.Handle(func(echo.Context) error {
		return echo.ErrNotFound
	})(c)
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.EqualValues(t, http.StatusNotFound, entry["status"])
	assert.Equal(t, "WARN", entry["level"])
}

func TestLoggerMiddleware_QuietPaths(t *testing.T) {
	tests := []struct {
		name    string
		debug   bool
		path    string
		wantLog bool
	}{
		{name: "health is quiet", path: "/health"},
		{name: "metrics is quiet", path: "/metrics"},
		{name: "health in debug", path: "/health", debug: true, wantLog: true},
		{name: "other paths log", path: "/api/auth/verify", wantLog: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			m := NewLoggerMiddleware(newBufferLogger(&buf), newLoggerConfig(tt.debug))
			c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, tt.path, nil), httptest.NewRecorder())

			require.NoError(t, m.Handle(func(c echo.Context) error {
				return c.NoContent(http.StatusOK)
			})(c))

			assert.Equal(t, tt.wantLog, buf.Len() > 0)
		})
	}
}
