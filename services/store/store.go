package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"smartlists/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	busyRetryAttempts = 5
	busyRetryDelay    = 10 * time.Millisecond
	busyRetryMaxDelay = 200 * time.Millisecond

	// runsKeptPerList bounds the run log of each list.
	runsKeptPerList = 50
)

// Store persists refresh runs and materialized list membership in SQLite.
type Store struct {
	db   *sql.DB
	path string
	log  *slog.Logger
}

// Open connects to the database at path and applies pending migrations.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	s := &Store{db: db, path: path, log: logger.With("component", "store")}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, sub)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	for _, r := range results {
		s.log.Info("applied migration", "version", r.Source.Version, "path", r.Source.Path, "duration", r.Duration)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
}

// withBusyRetry retries op while SQLite reports a locked database.
func withBusyRetry(ctx context.Context, op func() error) error {
	return retry.Do(op,
		retry.Context(ctx),
		retry.Attempts(busyRetryAttempts),
		retry.Delay(busyRetryDelay),
		retry.MaxDelay(busyRetryMaxDelay),
		retry.RetryIf(isBusy),
		retry.LastErrorOnly(true),
	)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// RecordRun appends a run to the log and prunes old runs of the same list.
func (s *Store) RecordRun(ctx context.Context, run models.RefreshRun) (int64, error) {
	var id int64
	err := withBusyRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.ExecContext(ctx,
			`INSERT INTO refresh_runs (list_id, cause, started_at, finished_at, success, message, item_count)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			run.ListID, string(run.Trigger), formatTime(run.StartedAt), formatTime(run.FinishedAt),
			run.Success, run.Message, run.ItemCount,
		)
		if err != nil {
			return err
		}
		if id, err = res.LastInsertId(); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM refresh_runs
			 WHERE list_id = ? AND id NOT IN (
			     SELECT id FROM refresh_runs WHERE list_id = ? ORDER BY id DESC LIMIT ?
			 )`,
			run.ListID, run.ListID, runsKeptPerList,
		); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, fmt.Errorf("record run for %s: %w", run.ListID, err)
	}
	return id, nil
}

// Runs returns the most recent runs of a list, newest first.
func (s *Store) Runs(ctx context.Context, listID string, limit int) ([]models.RefreshRun, error) {
	if limit <= 0 || limit > runsKeptPerList {
		limit = runsKeptPerList
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, list_id, cause, started_at, finished_at, success, message, item_count
		 FROM refresh_runs WHERE list_id = ? ORDER BY id DESC LIMIT ?`,
		listID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []models.RefreshRun
	for rows.Next() {
		var (
			run               models.RefreshRun
			cause             string
			started, finished string
		)
		if err := rows.Scan(&run.ID, &run.ListID, &cause, &started, &finished, &run.Success, &run.Message, &run.ItemCount); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Trigger = models.RefreshTrigger(cause)
		run.StartedAt = parseTime(started)
		run.FinishedAt = parseTime(finished)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ReplaceMembers stores itemIDs as the full ordered membership of a list.
func (s *Store) ReplaceMembers(ctx context.Context, listID string, itemIDs []string) error {
	now := formatTime(time.Now())
	err := withBusyRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `DELETE FROM list_members WHERE list_id = ?`, listID); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO list_members (list_id, position, item_id, added_at) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, id := range itemIDs {
			if _, err := stmt.ExecContext(ctx, listID, i, id, now); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return fmt.Errorf("replace members of %s: %w", listID, err)
	}
	return nil
}

// Materialize implements the refresh pipeline's materializer by storing the
// membership locally.
func (s *Store) Materialize(ctx context.Context, list models.SmartList, itemIDs []string) error {
	return s.ReplaceMembers(ctx, list.ID, itemIDs)
}

// Members returns the ordered item ids of a list.
func (s *Store) Members(ctx context.Context, listID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT item_id FROM list_members WHERE list_id = ? ORDER BY position`, listID)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteList drops the runs and members of a deleted list.
func (s *Store) DeleteList(ctx context.Context, listID string) error {
	err := withBusyRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()
		if _, err := tx.ExecContext(ctx, `DELETE FROM list_members WHERE list_id = ?`, listID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM refresh_runs WHERE list_id = ?`, listID); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return fmt.Errorf("delete list %s: %w", listID, err)
	}
	return nil
}
