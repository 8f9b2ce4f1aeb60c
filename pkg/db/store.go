package db

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// Tx is the query surface handed to a unit of work. Statements are written in
// the canonical dialect (`?` placeholders) and translated by the store.
type Tx interface {
	// Exec runs a statement and returns the number of affected rows. A
	// status-guarded UPDATE reports zero rows when its precondition no longer
	// holds; callers use that count as their compare-and-swap result.
	Exec(ctx context.Context, stmt string, args ...any) (int64, error)
	// Insert runs a plain INSERT and returns the generated id.
	Insert(ctx context.Context, stmt string, args ...any) (int64, error)
	Query(ctx context.Context, stmt string, args ...any) ([]Row, error)
	// QueryRow returns ErrNoRows when the statement yields nothing.
	QueryRow(ctx context.Context, stmt string, args ...any) (Row, error)
}

// Store runs units of work against one of the supported engines.
type Store interface {
	Dialect() Dialect
	// WithinTx wraps fn in a single transaction: commit on success, roll back
	// on error or panic, and always release the connection. Errors the engine
	// classifies as transient come back wrapped in *RetryableError.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	IsRetryable(err error) bool
	Close() error
}

type Options struct {
	Logger     *zap.Logger
	GormLogger gormlogger.Interface
}

func Open(ctx context.Context, cfg Config, opts Options) (Store, error) {
	cfg = cfg.withDefaults()
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	dialect, err := ParseDialect(cfg.Type)
	if err != nil {
		return nil, err
	}

	switch dialect {
	case DialectPostgres:
		return openPostgres(ctx, cfg, opts)
	default:
		return openSQLite(ctx, cfg, opts)
	}
}

// txControl ends a transaction. Implementations must treat rolling back an
// already finished transaction as a no-op.
type txControl interface {
	commit(ctx context.Context) error
	rollback(ctx context.Context) error
}

func runScope(ctx context.Context, tx Tx, ctl txControl, fn func(context.Context, Tx) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			_ = ctl.rollback(context.WithoutCancel(ctx))
			panic(p)
		}
	}()

	if err = fn(ctx, tx); err != nil {
		if rbErr := ctl.rollback(context.WithoutCancel(ctx)); rbErr != nil {
			return errors.Join(err, fmt.Errorf("%w: %v", ErrRollbackFailed, rbErr))
		}
		return err
	}

	if err = ctl.commit(ctx); err != nil {
		if rbErr := ctl.rollback(context.WithoutCancel(ctx)); rbErr != nil {
			return errors.Join(fmt.Errorf("commit: %w", err), fmt.Errorf("%w: %v", ErrRollbackFailed, rbErr))
		}
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// finish applies the error policy shared by both backends: fatal errors are
// logged at error level and returned as is, transient ones get the retry
// marker.
func finish(log *zap.Logger, err error, retryable func(error) bool) error {
	if err == nil {
		return nil
	}
	if IsFatal(err) {
		log.Error("unit of work failed",
			zap.String("error_kind", "fatal"),
			zap.Error(err),
		)
		if errors.Is(err, ErrPoolExhausted) && !errors.Is(err, ErrRollbackFailed) {
			return &RetryableError{Err: err}
		}
		return err
	}
	if IsRetryable(err) {
		return err
	}
	if retryable(err) {
		log.Warn("unit of work failed with transient error",
			zap.String("error_kind", "retryable"),
			zap.Error(err),
		)
		return &RetryableError{Err: err}
	}
	return err
}
