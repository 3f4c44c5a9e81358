package store

import (
	"context"
	"database/sql"
	"strings"
)

// schema contains the DDL for all kernsim tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id                  TEXT PRIMARY KEY,
		workload            TEXT NOT NULL,
		policy              TEXT NOT NULL,
		quantum             INTEGER NOT NULL,
		blocks              INTEGER NOT NULL,
		block_size          INTEGER NOT NULL,
		ticks               INTEGER NOT NULL,
		total_head_movement INTEGER NOT NULL DEFAULT 0,
		total_busy_ticks    INTEGER NOT NULL DEFAULT 0,
		served              INTEGER NOT NULL DEFAULT 0,
		completed           INTEGER NOT NULL DEFAULT 0,
		failed              INTEGER NOT NULL DEFAULT 0,
		head                INTEGER NOT NULL DEFAULT 0,
		started_at          TEXT NOT NULL,
		duration_ns         INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS run_tasks (
		run_id          TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		task_id         INTEGER NOT NULL,
		name            TEXT NOT NULL,
		static_priority INTEGER NOT NULL,
		activations     INTEGER NOT NULL,
		processor_ticks INTEGER NOT NULL,
		exec_ticks      INTEGER NOT NULL,
		PRIMARY KEY (run_id, task_id)
	)`,

	`CREATE TABLE IF NOT EXISTS run_requests (
		run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		idx          INTEGER NOT NULL,
		seq          INTEGER NOT NULL,
		task_id      INTEGER NOT NULL,
		task_name    TEXT NOT NULL,
		op           TEXT NOT NULL,
		block        INTEGER NOT NULL,
		policy       TEXT NOT NULL,
		head_before  INTEGER NOT NULL,
		seek         INTEGER NOT NULL,
		enqueue_tick INTEGER NOT NULL,
		start_tick   INTEGER NOT NULL,
		done_tick    INTEGER NOT NULL,
		error        TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (run_id, idx)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_runs_policy ON runs(policy)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
}

// alterStatements are column additions that need special handling since
// SQLite doesn't support IF NOT EXISTS for ALTER TABLE ADD COLUMN.
var alterStatements = []struct {
	table    string
	column   string
	alterSQL string
}{
	{
		table:    "runs",
		column:   "step_errors",
		alterSQL: "ALTER TABLE runs ADD COLUMN step_errors INTEGER NOT NULL DEFAULT 0",
	},
}

// migrate executes all DDL statements.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	for _, alter := range alterStatements {
		if err := addColumnIfNotExists(ctx, db, alter.table, alter.column, alter.alterSQL); err != nil {
			return err
		}
	}
	return nil
}

// addColumnIfNotExists adds a column to a table if it doesn't already exist.
func addColumnIfNotExists(ctx context.Context, db *sql.DB, table, column, alterSQL string) error {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return err
	}

	found := false
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue *string
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			rows.Close()
			return err
		}
		if strings.EqualFold(name, column) {
			found = true
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil || found {
		return err
	}

	_, err = db.ExecContext(ctx, alterSQL)
	return err
}
