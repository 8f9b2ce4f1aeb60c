package migration

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/smallbiznis/matchhub/pkg/db"
	"go.uber.org/zap"
)

//go:embed sql/*.sql
var embeddedMigrations embed.FS

const migrationsDir = "sql"

const createMigrationTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
)`

// RunMigrations applies every embedded migration not yet recorded in
// schema_migrations. Each file runs in its own unit of work, with statements
// written in the canonical dialect and translated by the store.
func RunMigrations(ctx context.Context, store db.Store, log *zap.Logger) error {
	if store == nil {
		return errors.New("migration store is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return apply(ctx, store, embeddedMigrations, migrationsDir, log.Named("migration"))
}

func apply(ctx context.Context, store db.Store, fsys fs.FS, dir string, log *zap.Logger) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	if err := store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		_, err := tx.Exec(ctx, createMigrationTable)
		return err
	}); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, name := range files {
		content, err := fs.ReadFile(fsys, dir+"/"+name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		applied := false
		err = store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
			if _, err := tx.QueryRow(ctx, "SELECT name FROM schema_migrations WHERE name = ?", name); err == nil {
				return nil
			} else if !errors.Is(err, db.ErrNoRows) {
				return err
			}

			for _, stmt := range SplitStatements(ExtractUp(string(content))) {
				if _, err := tx.Exec(ctx, stmt); err != nil {
					return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
				}
			}
			_, err := tx.Exec(ctx,
				"INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?) ON CONFLICT (name) DO NOTHING",
				name, time.Now().UTC().UnixMilli(),
			)
			applied = err == nil
			return err
		})
		if err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if applied {
			log.Info("migration applied", zap.String("name", name), zap.String("dialect", store.Dialect().String()))
		}
	}
	return nil
}

// ExtractUp returns the SQL in the "-- +migrate Up" section.
func ExtractUp(content string) string {
	const up, down = "-- +migrate Up", "-- +migrate Down"
	upIdx := strings.Index(content, up)
	if upIdx == -1 {
		return content
	}
	body := content[upIdx+len(up):]
	if downIdx := strings.Index(body, down); downIdx != -1 {
		body = body[:downIdx]
	}
	return body
}

// SplitStatements splits a script on semicolons outside quotes and comments.
func SplitStatements(script string) []string {
	var (
		out       []string
		b         strings.Builder
		inSingle  bool
		inComment bool
	)
	flush := func() {
		if stmt := strings.TrimSpace(b.String()); stmt != "" {
			out = append(out, stmt)
		}
		b.Reset()
	}
	for i := 0; i < len(script); i++ {
		ch := script[i]
		switch {
		case inComment:
			if ch == '\n' {
				inComment = false
				b.WriteByte(ch)
			}
			continue
		case inSingle:
			if ch == '\'' {
				inSingle = false
			}
		case ch == '\'':
			inSingle = true
		case ch == '-' && i+1 < len(script) && script[i+1] == '-':
			inComment = true
			continue
		case ch == ';':
			flush()
			continue
		}
		b.WriteByte(ch)
	}
	flush()
	return out
}

func firstLine(stmt string) string {
	if i := strings.IndexByte(stmt, '\n'); i != -1 {
		return stmt[:i]
	}
	return stmt
}
