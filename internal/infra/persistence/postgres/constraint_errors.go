package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"net"
	"strings"

	"rssauth/internal/errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// PostgreSQL SQLSTATE codes and classes the repository reacts to.
const (
	sqlStateUniqueViolation    = "23505"
	sqlStateCheckViolation     = "23514"
	sqlStateConnectionClass    = "08"
	sqlStateAdminShutdown      = "57P01"
	sqlStateCrashShutdown      = "57P02"
	sqlStateCannotConnectNow   = "57P03"
	sqlStateTooManyConnections = "53300"
)

func isUniqueConstraintViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	pgErr, ok := errors.AsType[*pgconn.PgError](err)

	return ok && pgErr.Code == sqlStateUniqueViolation
}

// violatedUniqueField names the request field behind a unique violation, or ""
// when the driver did not report the constraint.
func violatedUniqueField(err error) string {
	pgErr, ok := errors.AsType[*pgconn.PgError](err)
	if !ok {
		return ""
	}

	switch {
	case strings.Contains(pgErr.ConstraintName, "username"):
		return "username"
	case strings.Contains(pgErr.ConstraintName, "email"):
		return "email"
	default:
		return ""
	}
}

func isCheckConstraintViolation(err error) bool {
	if errors.Is(err, gorm.ErrCheckConstraintViolated) {
		return true
	}

	pgErr, ok := errors.AsType[*pgconn.PgError](err)

	return ok && pgErr.Code == sqlStateCheckViolation
}

// isUnavailable reports failures of the store itself (timeouts, refused or
// dropped connections, server shutdown) as opposed to rejected statements.
func isUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) {
		return true
	}

	if _, ok := errors.AsType[*pgconn.ConnectError](err); ok {
		return true
	}

	if _, ok := errors.AsType[*net.OpError](err); ok {
		return true
	}

	if pgErr, ok := errors.AsType[*pgconn.PgError](err); ok {
		switch pgErr.Code {
		case sqlStateAdminShutdown, sqlStateCrashShutdown, sqlStateCannotConnectNow, sqlStateTooManyConnections:
			return true
		}

		return strings.HasPrefix(pgErr.Code, sqlStateConnectionClass)
	}

	return false
}
