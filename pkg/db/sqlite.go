package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// sqliteTimeLayout is fixed width so stored timestamps order lexicographically.
const sqliteTimeLayout = "2006-01-02 15:04:05.000000000"

var sqliteConnPragmas = []string{
	"PRAGMA busy_timeout=5000;",
	"PRAGMA foreign_keys=ON;",
}

// sqliteStore opens a fresh handle per unit of work. Writers are serialized by
// BEGIN IMMEDIATE plus busy_timeout, so there is no pool to manage.
type sqliteStore struct {
	path       string
	log        *zap.Logger
	gormLogger gormlogger.Interface
}

func openSQLite(ctx context.Context, cfg Config, opts Options) (*sqliteStore, error) {
	gl := opts.GormLogger
	if gl == nil {
		gl = gormlogger.Discard
	}
	s := &sqliteStore{
		path:       cfg.Path,
		log:        opts.Logger.Named("db.sqlite"),
		gormLogger: gl,
	}

	gdb, closeFn, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	if err := gdb.Exec("PRAGMA journal_mode=WAL;").Error; err != nil {
		return nil, fmt.Errorf("enable wal: %w", err)
	}

	s.log.Info("sqlite store ready", zap.String("path", s.path))
	return s, nil
}

func (s *sqliteStore) open(ctx context.Context) (*gorm.DB, func(), error) {
	gdb, err := gorm.Open(sqlite.Open(s.path), &gorm.Config{
		Logger:                 s.gormLogger,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite %s: %w", s.path, err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, nil, err
	}
	// One connection so BEGIN, statements and COMMIT share a session.
	sqlDB.SetMaxOpenConns(1)
	closeFn := func() {
		if err := sqlDB.Close(); err != nil {
			s.log.Warn("close sqlite handle", zap.Error(err))
		}
	}

	for _, pragma := range sqliteConnPragmas {
		if err := gdb.WithContext(ctx).Exec(pragma).Error; err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("%s: %w", strings.TrimSuffix(pragma, ";"), err)
		}
	}
	return gdb, closeFn, nil
}

func (s *sqliteStore) Dialect() Dialect { return DialectSQLite }

// IsRetryable is always false: the embedded engine has no multi-writer
// contention model to recover from.
func (s *sqliteStore) IsRetryable(error) bool { return false }

func (s *sqliteStore) Close() error { return nil }

func (s *sqliteStore) WithinTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	gdb, closeFn, err := s.open(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := gdb.WithContext(ctx).Exec("BEGIN IMMEDIATE").Error; err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	err = runScope(ctx, &sqliteTx{db: gdb}, sqliteControl{db: gdb}, fn)
	return finish(s.log, err, s.IsRetryable)
}

type sqliteControl struct {
	db *gorm.DB
}

func (c sqliteControl) commit(ctx context.Context) error {
	return c.db.WithContext(ctx).Exec("COMMIT").Error
}

func (c sqliteControl) rollback(ctx context.Context) error {
	err := c.db.WithContext(ctx).Exec("ROLLBACK").Error
	if err != nil && strings.Contains(err.Error(), "no transaction is active") {
		return nil
	}
	return err
}

type sqliteTx struct {
	db *gorm.DB
}

func (t *sqliteTx) Exec(ctx context.Context, stmt string, args ...any) (int64, error) {
	res := t.db.WithContext(ctx).Exec(stmt, normalizeSQLiteArgs(args)...)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (t *sqliteTx) Insert(ctx context.Context, stmt string, args ...any) (int64, error) {
	if _, err := t.Exec(ctx, stmt, args...); err != nil {
		return 0, err
	}
	var id int64
	if err := t.db.WithContext(ctx).Raw("SELECT last_insert_rowid()").Row().Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (t *sqliteTx) Query(ctx context.Context, stmt string, args ...any) ([]Row, error) {
	rows, err := t.db.WithContext(ctx).Raw(stmt, normalizeSQLiteArgs(args)...).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	index := newPositionalIndex(cols)

	var out []Row
	for rows.Next() {
		values := make([]any, len(cols))
		dest := make([]any, len(cols))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		out = append(out, Row{src: positionalRow{values: values, index: index, names: cols}})
	}
	return out, rows.Err()
}

func (t *sqliteTx) QueryRow(ctx context.Context, stmt string, args ...any) (Row, error) {
	rows, err := t.Query(ctx, stmt, args...)
	if err != nil {
		return Row{}, err
	}
	if len(rows) == 0 {
		return Row{}, ErrNoRows
	}
	return rows[0], nil
}

// normalizeSQLiteArgs stores timestamps as fixed-width UTC text and booleans
// as integers.
func normalizeSQLiteArgs(args []any) []any {
	out := make([]any, len(args))
	for i, arg := range args {
		switch v := arg.(type) {
		case time.Time:
			out[i] = v.UTC().Format(sqliteTimeLayout)
		case *time.Time:
			if v == nil {
				out[i] = nil
			} else {
				out[i] = v.UTC().Format(sqliteTimeLayout)
			}
		case sql.NullTime:
			if v.Valid {
				out[i] = v.Time.UTC().Format(sqliteTimeLayout)
			} else {
				out[i] = nil
			}
		case bool:
			if v {
				out[i] = int64(1)
			} else {
				out[i] = int64(0)
			}
		default:
			out[i] = arg
		}
	}
	return out
}
