package storage

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strings"
)

// migrationLockID serializes concurrent migrators (several replicas starting
// at once) through a session-level advisory lock.
const migrationLockID = 0x736b696a756d70

// RunMigrations applies unapplied .sql files from each filesystem, in lexical
// order per filesystem. Applied files are tracked by name in
// schema_migrations; each file runs in its own transaction together with its
// bookkeeping row.
func (db *DB) RunMigrations(ctx context.Context, sources ...fs.FS) error {
	conn, err := db.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("storage: acquire migration conn: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, int64(migrationLockID)); err != nil {
		return fmt.Errorf("storage: migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.Exec(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, int64(migrationLockID))
	}()

	if _, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		return fmt.Errorf("storage: create schema_migrations: %w", err)
	}

	rows, err := conn.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("storage: load applied migrations: %w", err)
	}
	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("storage: load applied migrations: %w", err)
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("storage: load applied migrations: %w", err)
	}

	for _, src := range sources {
		entries, err := fs.ReadDir(src, ".")
		if err != nil {
			return fmt.Errorf("storage: read migrations dir: %w", err)
		}
		var names []string
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
				names = append(names, e.Name())
			}
		}
		slices.Sort(names)

		for _, name := range names {
			if applied[name] {
				db.logger.Debug("migration already applied, skipping", "file", name)
				continue
			}
			content, err := fs.ReadFile(src, name)
			if err != nil {
				return fmt.Errorf("storage: read migration %s: %w", name, err)
			}

			db.logger.Info("running migration", "file", name)
			tx, err := conn.Begin(ctx)
			if err != nil {
				return fmt.Errorf("storage: begin migration %s: %w", name, err)
			}
			if _, err := tx.Exec(ctx, string(content)); err != nil {
				_ = tx.Rollback(ctx)
				return fmt.Errorf("storage: execute migration %s: %w", name, err)
			}
			if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, name); err != nil {
				_ = tx.Rollback(ctx)
				return fmt.Errorf("storage: record migration %s: %w", name, err)
			}
			if err := tx.Commit(ctx); err != nil {
				return fmt.Errorf("storage: commit migration %s: %w", name, err)
			}
			applied[name] = true
		}
	}
	return nil
}
