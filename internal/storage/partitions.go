package storage

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/kubikal7/ski-jumping-management/internal/season"
)

// Partitioned tables. Both are PARTITION BY LIST (season) with no default
// partition.
const (
	TableResults      = "results"
	TableParticipants = "event_participants"
)

var partitionedTables = []string{TableResults, TableParticipants}

// PartitionName returns the physical partition holding rows of table for the
// given season, e.g. results_2024_2025.
func PartitionName(table, seasonKey string) string {
	return table + "_" + season.Slug(seasonKey)
}

func checkPartitionTarget(table, seasonKey string) error {
	if !slices.Contains(partitionedTables, table) {
		return fmt.Errorf("storage: %q is not a season-partitioned table", table)
	}
	if err := season.Validate(seasonKey); err != nil {
		return fmt.Errorf("storage: partition %s: %w", table, err)
	}
	return nil
}

// PartitionExists reports whether the partition for (table, season) exists in
// the current schema.
func (db *DB) PartitionExists(ctx context.Context, table, seasonKey string) (bool, error) {
	if err := checkPartitionTarget(table, seasonKey); err != nil {
		return false, err
	}
	var exists bool
	err := db.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM pg_tables
			WHERE schemaname = current_schema() AND tablename = $1
		)`, PartitionName(table, seasonKey),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("storage: check partition %s: %w", PartitionName(table, seasonKey), err)
	}
	return exists, nil
}

// EnsurePartition provisions the partition of table that accepts exactly the
// given season, if it does not exist yet. Concurrent callers racing on the
// same season all succeed: "already exists" outcomes are treated as success.
//
// The DDL cannot take bind parameters, so the season is validated against the
// YYYY/YYYY format before being interpolated as a literal and the partition
// name is quoted as an identifier.
func (db *DB) EnsurePartition(ctx context.Context, table, seasonKey string) error {
	exists, err := db.PartitionExists(ctx, table, seasonKey)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	name := PartitionName(table, seasonKey)
	ddl := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s PARTITION OF %s FOR VALUES IN ('%s')`,
		pgx.Identifier{name}.Sanitize(), pgx.Identifier{table}.Sanitize(), seasonKey,
	)
	if _, err := db.pool.Exec(ctx, ddl); err != nil {
		switch pgCode(err) {
		case codeDuplicateTable, codeUniqueViolation:
			// Lost the race to a concurrent creator; IF NOT EXISTS does not
			// cover the catalog insert collision.
			db.logger.Debug("storage: partition created concurrently", "partition", name)
			return nil
		}
		return fmt.Errorf("storage: create partition %s: %w", name, err)
	}
	db.logger.Info("storage: provisioned season partition", "table", table, "season", seasonKey, "partition", name)
	return nil
}

// ListPartitions returns the seasons provisioned for table, oldest first.
func (db *DB) ListPartitions(ctx context.Context, table string) ([]string, error) {
	if !slices.Contains(partitionedTables, table) {
		return nil, fmt.Errorf("storage: %q is not a season-partitioned table", table)
	}
	rows, err := db.pool.Query(ctx,
		`SELECT c.relname
		 FROM pg_inherits i
		 JOIN pg_class c ON c.oid = i.inhrelid
		 JOIN pg_class p ON p.oid = i.inhparent
		 JOIN pg_namespace n ON n.oid = p.relnamespace
		 WHERE p.relname = $1 AND n.nspname = current_schema() AND c.relkind IN ('r', 'p')
		 ORDER BY c.relname`, table)
	if err != nil {
		return nil, fmt.Errorf("storage: list partitions %s: %w", table, err)
	}
	defer rows.Close()

	prefix := table + "_"
	var seasons []string
	for rows.Next() {
		var rel string
		if err := rows.Scan(&rel); err != nil {
			return nil, fmt.Errorf("storage: scan partition: %w", err)
		}
		key := strings.Replace(strings.TrimPrefix(rel, prefix), "_", "/", 1)
		if season.Validate(key) == nil {
			seasons = append(seasons, key)
		}
	}
	return seasons, rows.Err()
}
