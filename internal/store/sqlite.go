package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/kernsim/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	if dbPath == ":memory:" {
		// Every connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// SaveReport inserts the run, its tasks and its request trace in one transaction.
func (s *SQLiteStore) SaveReport(ctx context.Context, r *model.Report) error {
	s.logger.Debug("sql", "op", "insert", "table", "runs", "id", r.ID,
		"tasks", len(r.Tasks), "requests", len(r.Requests))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, workload, policy, quantum, blocks, block_size, ticks,
			total_head_movement, total_busy_ticks, served, completed, failed, head,
			started_at, duration_ns, step_errors)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Workload, string(r.Policy), r.Quantum, r.Blocks, r.BlockSize, int64(r.Ticks),
		r.Disk.TotalHeadMovement, int64(r.Disk.TotalBusyTicks), r.Disk.Served, r.Disk.Completed,
		r.Disk.Failed, r.Disk.Head, r.StartedAt.UTC().Format(time.RFC3339Nano),
		int64(r.Duration), r.StepErrors,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", r.ID, err)
	}

	for _, t := range r.Tasks {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_tasks (run_id, task_id, name, static_priority, activations, processor_ticks, exec_ticks)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.ID, t.ID, t.Name, t.StaticPrio, t.Activations, int64(t.ProcessorTicks), int64(t.ExecTicks),
		); err != nil {
			return fmt.Errorf("insert task %d: %w", t.ID, err)
		}
	}

	for i, rec := range r.Requests {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_requests (run_id, idx, seq, task_id, task_name, op, block, policy,
				head_before, seek, enqueue_tick, start_tick, done_tick, error)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, i, rec.Seq, rec.TaskID, rec.TaskName, string(rec.Op), rec.Block, string(rec.Policy),
			rec.HeadBefore, rec.Seek, int64(rec.EnqueueTick), int64(rec.StartTick), int64(rec.DoneTick), rec.Error,
		); err != nil {
			return fmt.Errorf("insert request %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// GetReport returns the full report for id, or nil if it does not exist.
func (s *SQLiteStore) GetReport(ctx context.Context, id string) (*model.Report, error) {
	s.logger.Debug("sql", "op", "select", "table", "runs", "id", id)

	var r model.Report
	var policy, startedAt string
	var ticks, busy, duration int64

	err := s.db.QueryRowContext(ctx,
		`SELECT id, workload, policy, quantum, blocks, block_size, ticks,
			total_head_movement, total_busy_ticks, served, completed, failed, head,
			started_at, duration_ns, step_errors
		 FROM runs WHERE id = ?`, id,
	).Scan(&r.ID, &r.Workload, &policy, &r.Quantum, &r.Blocks, &r.BlockSize, &ticks,
		&r.Disk.TotalHeadMovement, &busy, &r.Disk.Served, &r.Disk.Completed, &r.Disk.Failed, &r.Disk.Head,
		&startedAt, &duration, &r.StepErrors)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.Policy = model.Policy(policy)
	r.Ticks = uint64(ticks)
	r.Disk.TotalBusyTicks = uint64(busy)
	r.Duration = time.Duration(duration)
	r.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)

	if r.Tasks, err = s.listTasks(ctx, id); err != nil {
		return nil, err
	}
	if r.Requests, err = s.listRequests(ctx, id); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *SQLiteStore) listTasks(ctx context.Context, runID string) ([]model.TaskStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT task_id, name, static_priority, activations, processor_ticks, exec_ticks
		 FROM run_tasks WHERE run_id = ? ORDER BY task_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []model.TaskStats
	for rows.Next() {
		var t model.TaskStats
		var proc, exec int64
		if err := rows.Scan(&t.ID, &t.Name, &t.StaticPrio, &t.Activations, &proc, &exec); err != nil {
			return nil, err
		}
		t.ProcessorTicks = uint64(proc)
		t.ExecTicks = uint64(exec)
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *SQLiteStore) listRequests(ctx context.Context, runID string) ([]model.ServiceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, task_id, task_name, op, block, policy, head_before, seek,
			enqueue_tick, start_tick, done_tick, error
		 FROM run_requests WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []model.ServiceRecord
	for rows.Next() {
		var rec model.ServiceRecord
		var op, policy string
		var enq, start, done int64
		if err := rows.Scan(&rec.Seq, &rec.TaskID, &rec.TaskName, &op, &rec.Block, &policy,
			&rec.HeadBefore, &rec.Seek, &enq, &start, &done, &rec.Error); err != nil {
			return nil, err
		}
		rec.Op = model.DiskOp(op)
		rec.Policy = model.Policy(policy)
		rec.EnqueueTick, rec.StartTick, rec.DoneTick = uint64(enq), uint64(start), uint64(done)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// ListReports returns run summaries newest first, optionally filtered by policy.
func (s *SQLiteStore) ListReports(ctx context.Context, opts model.ListOptions) ([]*model.RunSummary, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "runs", "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	whereSQL := ""
	var args []any
	if opts.Policy != "" {
		whereSQL = " WHERE policy = ?"
		args = append(args, string(opts.Policy))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workload, policy, ticks, total_head_movement, total_busy_ticks, served, started_at
		 FROM runs`+whereSQL+` ORDER BY started_at DESC, id LIMIT ? OFFSET ?`,
		append(args, opts.Limit, opts.Offset)...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var runs []*model.RunSummary
	for rows.Next() {
		var rs model.RunSummary
		var policy, startedAt string
		var ticks, busy int64
		if err := rows.Scan(&rs.ID, &rs.Workload, &policy, &ticks, &rs.TotalHeadMovement,
			&busy, &rs.Served, &startedAt); err != nil {
			return nil, 0, err
		}
		rs.Policy = model.Policy(policy)
		rs.Ticks = uint64(ticks)
		rs.TotalBusyTicks = uint64(busy)
		rs.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		runs = append(runs, &rs)
	}
	return runs, total, rows.Err()
}

// DeleteReport removes a run with its tasks and requests.
func (s *SQLiteStore) DeleteReport(ctx context.Context, id string) error {
	s.logger.Debug("sql", "op", "delete", "table", "runs", "id", id)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// foreign_keys is per connection, so children are removed explicitly.
	for _, table := range []string{"run_requests", "run_tasks"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE run_id = ?`, id); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return tx.Commit()
}
