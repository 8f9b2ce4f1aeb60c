package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrNoRows = errors.New("no_rows")
	// ErrPoolExhausted is returned when no connection could be acquired within
	// the configured bound. Callers treat it as transient.
	ErrPoolExhausted = errors.New("pool_exhausted")
	// ErrRollbackFailed marks a unit of work whose rollback itself failed.
	ErrRollbackFailed = errors.New("rollback_failed")
)

// RetryableError carries the machine-readable retry marker for errors the
// store classified as transient. The core never retries on its own.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable: %v", e.Err)
}

func (e *RetryableError) Unwrap() error { return e.Err }

func (e *RetryableError) Retryable() bool { return true }

// IsRetryable reports whether err carries the retry marker set by WithinTx.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// IsFatal reports errors that must never be masked: failed rollbacks and pool
// exhaustion.
func IsFatal(err error) bool {
	return errors.Is(err, ErrRollbackFailed) || errors.Is(err, ErrPoolExhausted)
}

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}

	if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
		return true
	}

	// SQLite (extended code 2067)
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return true
	}

	return false
}

// classifyPostgres reports serialization failures, deadlocks and operational
// (connection-class) errors as retryable.
func classifyPostgres(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPoolExhausted) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", // serialization_failure
			"40P01", // deadlock_detected
			"57P01", // admin_shutdown
			"53300": // too_many_connections
			return true
		}
		return strings.HasPrefix(pgErr.Code, "08")
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	return pgconn.SafeToRetry(err)
}
