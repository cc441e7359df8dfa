package database

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5/pgconn"
	sqlite "modernc.org/sqlite"
)

// EngineError is a SQL execution failure as reported by the engine. Code
// carries the SQLSTATE (PostgreSQL) or extended result code (SQLite) when
// the engine supplies one.
type EngineError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func (e *EngineError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	}
	return e.Message
}

// asEngineError normalizes driver errors into *EngineError. Context
// expiration becomes a timeout engine error so callers surface it like any
// other execution failure.
func asEngineError(err error, timeoutMsg string) *EngineError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &EngineError{Message: timeoutMsg, Code: "timeout"}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &EngineError{Message: pgErr.Message, Code: pgErr.Code}
	}

	var sqErr *sqlite.Error
	if errors.As(err, &sqErr) {
		return &EngineError{Message: sqErr.Error(), Code: strconv.Itoa(sqErr.Code())}
	}

	return &EngineError{Message: err.Error()}
}
