package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type postgresStore struct {
	pool           *pgxpool.Pool
	acquireTimeout time.Duration
	maxConns       int32
	log            *zap.Logger
}

func openPostgres(ctx context.Context, cfg Config, opts Options) (*postgresStore, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.PostgresDSN())
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pcfg.MinConns = cfg.PoolMin
	pcfg.MaxConns = cfg.PoolMax

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	log := opts.Logger.Named("db.postgres")
	log.Info("postgres pool ready",
		zap.Int32("min_conns", pcfg.MinConns),
		zap.Int32("max_conns", pcfg.MaxConns),
	)

	return &postgresStore{
		pool:           pool,
		acquireTimeout: cfg.AcquireTimeout,
		maxConns:       pcfg.MaxConns,
		log:            log,
	}, nil
}

func (s *postgresStore) Dialect() Dialect { return DialectPostgres }

func (s *postgresStore) IsRetryable(err error) bool {
	return IsRetryable(err) || classifyPostgres(err)
}

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *postgresStore) WithinTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	conn, err := s.acquire(ctx)
	if err != nil {
		return finish(s.log, err, classifyPostgres)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return finish(s.log, fmt.Errorf("begin: %w", err), classifyPostgres)
	}

	err = runScope(ctx, &pgTx{tx: tx}, pgControl{tx: tx}, fn)
	return finish(s.log, err, classifyPostgres)
}

// acquire draws a connection within the acquire bound. A connection that is
// already closed is released (the pool destroys it) and another is drawn.
func (s *postgresStore) acquire(ctx context.Context) (*pgxpool.Conn, error) {
	attempts := int(s.maxConns) + 1
	for i := 0; i < attempts; i++ {
		acquireCtx, cancel := context.WithTimeout(ctx, s.acquireTimeout)
		conn, err := s.pool.Acquire(acquireCtx)
		timedOut := acquireCtx.Err() != nil && ctx.Err() == nil
		cancel()
		if err != nil {
			if timedOut {
				return nil, fmt.Errorf("%w: waited %s", ErrPoolExhausted, s.acquireTimeout)
			}
			return nil, fmt.Errorf("acquire: %w", err)
		}
		if conn.Conn().IsClosed() {
			s.log.Warn("discarding closed connection")
			conn.Release()
			continue
		}
		return conn, nil
	}
	return nil, fmt.Errorf("%w: no live connection after %d attempts", ErrPoolExhausted, attempts)
}

type pgControl struct {
	tx pgx.Tx
}

func (c pgControl) commit(ctx context.Context) error {
	return c.tx.Commit(ctx)
}

func (c pgControl) rollback(ctx context.Context) error {
	err := c.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Exec(ctx context.Context, stmt string, args ...any) (int64, error) {
	tag, err := t.tx.Exec(ctx, Translate(DialectPostgres, stmt), args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) Insert(ctx context.Context, stmt string, args ...any) (int64, error) {
	var id int64
	if err := t.tx.QueryRow(ctx, Translate(DialectPostgres, stmt), args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (t *pgTx) Query(ctx context.Context, stmt string, args ...any) ([]Row, error) {
	rows, err := t.tx.Query(ctx, Translate(DialectPostgres, stmt), args...)
	if err != nil {
		return nil, err
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}
	out := make([]Row, 0, len(maps))
	for _, m := range maps {
		out = append(out, Row{src: mapRow(m)})
	}
	return out, nil
}

func (t *pgTx) QueryRow(ctx context.Context, stmt string, args ...any) (Row, error) {
	rows, err := t.Query(ctx, stmt, args...)
	if err != nil {
		return Row{}, err
	}
	if len(rows) == 0 {
		return Row{}, ErrNoRows
	}
	return rows[0], nil
}
