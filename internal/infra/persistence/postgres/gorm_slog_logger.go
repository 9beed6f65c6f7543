package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"rssauth/config"
	deliverycontext "rssauth/internal/delivery/context"
	"rssauth/internal/errors"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	defaultGormSlowThreshold = 200 * time.Millisecond
	// A query is slow once it has used this share of store.queryTimeout.
	slowQueryTimeoutDivisor = 4
)

// Outcome labels attached to failed credential store statements.
const (
	failureUnavailable = "unavailable"
	failureDuplicate   = "duplicate"
	failureRejected    = "rejected"
)

// gormSlogLogger routes GORM output to slog. Bound parameters are never
// rendered, so password digests and e-mail addresses stay out of the logs.
// Records go to the request-scoped logger when the query runs inside a request.
type gormSlogLogger struct {
	logger        *slog.Logger
	level         logger.LogLevel
	slowThreshold time.Duration
}

func newGormSlogLogger(baseLogger *slog.Logger, cfg *config.Config) logger.Interface {
	level := logger.Warn
	if cfg != nil && cfg.Env.Debug {
		level = logger.Info
	}

	return &gormSlogLogger{
		logger:        baseLogger,
		level:         level,
		slowThreshold: slowThresholdFor(cfg),
	}
}

func slowThresholdFor(cfg *config.Config) time.Duration {
	if cfg == nil || cfg.Store == nil || cfg.Store.QueryTimeout <= 0 {
		return defaultGormSlowThreshold
	}

	return cfg.Store.QueryTimeout / slowQueryTimeoutDivisor
}

func (l *gormSlogLogger) LogMode(level logger.LogLevel) logger.Interface {
	cloned := *l
	cloned.level = level

	return &cloned
}

// ParamsFilter drops bound values before GORM renders the statement.
func (l *gormSlogLogger) ParamsFilter(_ context.Context, sql string, _ ...any) (string, []any) {
	return sql, nil
}

func (l *gormSlogLogger) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, l.logger)
}

func (l *gormSlogLogger) Info(ctx context.Context, msg string, args ...any) {
	l.message(ctx, logger.Info, slog.LevelInfo, msg, args...)
}

func (l *gormSlogLogger) Warn(ctx context.Context, msg string, args ...any) {
	l.message(ctx, logger.Warn, slog.LevelWarn, msg, args...)
}

func (l *gormSlogLogger) Error(ctx context.Context, msg string, args ...any) {
	l.message(ctx, logger.Error, slog.LevelError, msg, args...)
}

func (l *gormSlogLogger) message(ctx context.Context, enabledAt logger.LogLevel, level slog.Level, msg string, args ...any) {
	if l.level < enabledAt || l.logger == nil {
		return
	}

	l.log(ctx).LogAttrs(ctx, level, "Credential store driver message",
		slog.String("message", fmt.Sprintf(msg, args...)),
	)
}

func (l *gormSlogLogger) Trace(ctx context.Context, begin time.Time, sqlAndRowsFn func() (string, int64), err error) {
	if l.logger == nil || l.level == logger.Silent {
		return
	}

	elapsed := time.Since(begin)

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= logger.Error:
		failure := classifyFailure(err)
		level := slog.LevelError
		if failure == failureDuplicate {
			// The repository turns these into a conflict; losing a registration race is routine.
			level = slog.LevelWarn
		}
		attrs := append(statementAttrs(sqlAndRowsFn, elapsed),
			slog.String("failure", failure),
			slog.String("error", err.Error()),
		)
		l.log(ctx).LogAttrs(ctx, level, "Credential store query failed", attrs...)
	case l.slowThreshold > 0 && elapsed > l.slowThreshold && l.level >= logger.Warn:
		attrs := append(statementAttrs(sqlAndRowsFn, elapsed),
			slog.Duration("slow_threshold", l.slowThreshold),
		)
		l.log(ctx).LogAttrs(ctx, slog.LevelWarn, "Credential store slow query", attrs...)
	case l.level >= logger.Info:
		l.log(ctx).LogAttrs(ctx, slog.LevelInfo, "Credential store query", statementAttrs(sqlAndRowsFn, elapsed)...)
	}
}

// statementAttrs describes a statement without its bound values.
func statementAttrs(sqlAndRowsFn func() (string, int64), elapsed time.Duration) []slog.Attr {
	sql, rows := sqlAndRowsFn()

	return []slog.Attr{
		slog.String("operation", statementVerb(sql)),
		slog.Duration("elapsed", elapsed),
		slog.Int64("rows", rows),
		slog.String("sql", sql),
	}
}

func statementVerb(sql string) string {
	verb, _, _ := strings.Cut(strings.TrimSpace(sql), " ")

	return strings.ToUpper(verb)
}

func classifyFailure(err error) string {
	switch {
	case isUnavailable(err):
		return failureUnavailable
	case isUniqueConstraintViolation(err):
		return failureDuplicate
	default:
		return failureRejected
	}
}
