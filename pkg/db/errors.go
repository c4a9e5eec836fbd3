package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
)

// ErrConnection is returned when the database is unreachable, refuses the
// credentials or drops the connection.
var ErrConnection = errors.New("database connection error")

// ErrConstraint is returned when a statement violates an integrity constraint.
var ErrConstraint = errors.New("database constraint violation")

// Classify wraps err with ErrConnection or ErrConstraint when it can tell
// which one it is, and returns it unchanged otherwise.
func Classify(err error) error {
	if err == nil || errors.Is(err, ErrConnection) || errors.Is(err, ErrConstraint) {
		return err
	}

	// gorm runs on pgconn; golang-migrate's postgres driver runs on lib/pq.
	if pgerr := new(pgconn.PgError); errors.As(err, &pgerr) {
		return classifyCode(err, pgerr.Code)
	}
	if pqerr := new(pq.Error); errors.As(err, &pqerr) {
		return classifyCode(err, string(pqerr.Code))
	}

	var netErr net.Error
	if errors.As(err, &netErr) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, context.DeadlineExceeded) ||
		pgconn.Timeout(err) {
		return asConnection(err)
	}

	return err
}

func classifyCode(err error, code string) error {
	switch {
	case pgerrcode.IsIntegrityConstraintViolation(code):
		return fmt.Errorf("%w: %w", ErrConstraint, err)
	case pgerrcode.IsConnectionException(code),
		pgerrcode.IsInvalidAuthorizationSpecification(code),
		pgerrcode.IsOperatorIntervention(code),
		code == pgerrcode.InvalidCatalogName:
		return asConnection(err)
	}
	return err
}

// Kind names the class of a classified error for logs and exit codes.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrConnection):
		return "connection"
	case errors.Is(err, ErrConstraint):
		return "constraint"
	}
	return ""
}

func asConnection(err error) error {
	if errors.Is(err, ErrConnection) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrConnection, err)
}
