// Package migrationtest opens throwaway stores with the full schema applied.
package migrationtest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/smallbiznis/matchhub/internal/migration"
	"github.com/smallbiznis/matchhub/pkg/db"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// OpenSQLite returns a migrated store backed by a file in t.TempDir().
func OpenSQLite(t testing.TB) db.Store {
	t.Helper()
	ctx := context.Background()

	store, err := db.Open(ctx, db.Config{
		Type: "sqlite",
		Path: filepath.Join(t.TempDir(), "matchhub.db"),
	}, db.Options{Logger: zap.NewNop()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, migration.RunMigrations(ctx, store, zap.NewNop()))
	return store
}

// OpenStores returns the SQLite store plus a Postgres store when
// MATCHHUB_TEST_POSTGRES_DSN is set. The Postgres schema is dropped first.
func OpenStores(t testing.TB) map[string]db.Store {
	t.Helper()
	stores := map[string]db.Store{"sqlite": OpenSQLite(t)}

	dsn := os.Getenv("MATCHHUB_TEST_POSTGRES_DSN")
	if dsn == "" {
		return stores
	}

	ctx := context.Background()
	pg, err := db.Open(ctx, db.Config{Type: "postgres", DSN: dsn}, db.Options{Logger: zap.NewNop()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Close() })

	require.NoError(t, pg.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		if _, err := tx.Exec(ctx, "DROP SCHEMA public CASCADE"); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, "CREATE SCHEMA public")
		return err
	}))
	require.NoError(t, migration.RunMigrations(ctx, pg, zap.NewNop()))
	stores["postgres"] = pg
	return stores
}
