// Package store is the resumable state store: a SQLite database that records
// per-identifier progress and collected features, and answers what work
// remains for each method.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/mattn/go-sqlite3"

	errs "vkharvest/pkg/errors"
	"vkharvest/pkg/logger"
	"vkharvest/pkg/retry"
	"vkharvest/pkg/schedule"
)

// Options tunes the store
type Options struct {
	// CommitAttempts bounds retries of a round write that hit a locked database
	CommitAttempts int
	Logger         logger.Logger
}

// Store wraps the shared database handle. It is safe for concurrent use;
// SQLite serializes writers.
type Store struct {
	db     *sql.DB
	path   string
	retry  retry.Config
	logger logger.Logger
}

// Record is the progress row of one identifier
type Record struct {
	ID           int64
	Deactivated  bool
	Closed       bool
	GroupChecked bool
	WallChecked  bool
}

// Open creates the database file and schema when missing
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = logger.NewNopLogger()
	}
	if opts.CommitAttempts <= 0 {
		opts.CommitAttempts = 5
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeStorage, "create data directory", err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeStorage, "open database", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.ErrorTypeStorage, "ping database", err)
	}

	s := &Store{
		db:     db,
		path:   path,
		logger: opts.Logger.WithField("component", "store"),
	}
	s.retry = retry.Config{
		MaxAttempts: opts.CommitAttempts,
		Backoff:     retry.CommitBackoff(),
		RetryIf:     IsBusy,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			s.logger.WithError(err).WarnWithFields("database busy, retrying write", map[string]interface{}{
				"attempt": attempt,
				"delay":   delay,
			})
		},
	}

	for _, stmt := range schema() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, errs.Wrap(errs.ErrorTypeStorage, "create schema", err)
		}
	}
	return s, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file
func (s *Store) Path() string {
	return s.path
}

// IsBusy reports whether err is SQLite lock contention worth retrying
func IsBusy(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

func (s *Store) ids(ctx context.Context, query string, args ...any) (map[int64]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeStorage, "query identifiers", err)
	}
	defer rows.Close()

	out := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errs.Wrap(errs.ErrorTypeStorage, "scan identifier", err)
		}
		out[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeStorage, "iterate identifiers", err)
	}
	return out, nil
}

const (
	pendingGroupsSQL = `SELECT user_id FROM users WHERE deactivated = 0 AND is_close = 0 AND group_checked = 0`
	pendingWallsSQL  = `SELECT user_id FROM users WHERE deactivated = 0 AND is_close = 0 AND wall_checked = 0`
)

// Remaining returns, in the order given, the identifiers of scope that still
// need method m: no users row for Users; open, live and unchecked for Groups
// and Walls.
func (s *Store) Remaining(ctx context.Context, m schedule.Method, scope []int64) ([]int64, error) {
	switch m {
	case schedule.Users:
		known, err := s.ids(ctx, `SELECT user_id FROM users`)
		if err != nil {
			return nil, err
		}
		out := make([]int64, 0, len(scope))
		for _, id := range scope {
			if _, ok := known[id]; !ok {
				out = append(out, id)
			}
		}
		return out, nil
	case schedule.Groups, schedule.Walls:
		query := pendingGroupsSQL
		if m == schedule.Walls {
			query = pendingWallsSQL
		}
		pending, err := s.ids(ctx, query)
		if err != nil {
			return nil, err
		}
		out := make([]int64, 0, len(pending))
		for _, id := range scope {
			if _, ok := pending[id]; ok {
				out = append(out, id)
			}
		}
		return out, nil
	default:
		return nil, errs.Newf(errs.ErrorTypeConfig, "unknown method %q", m)
	}
}

// Inconsistent returns live profiles lacking the detail row of their variant,
// sorted
func (s *Store) Inconsistent(ctx context.Context) ([]int64, error) {
	set, err := s.ids(ctx, `
		SELECT u.user_id FROM users u
		LEFT JOIN profile_detail_closed c ON c.user_id = u.user_id
		WHERE u.deactivated = 0 AND u.is_close = 1 AND c.user_id IS NULL
		UNION
		SELECT u.user_id FROM users u
		LEFT JOIN profile_detail_open o ON o.user_id = u.user_id
		WHERE u.deactivated = 0 AND u.is_close = 0 AND o.user_id IS NULL`)
	if err != nil {
		return nil, err
	}
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Record returns the progress row of id, nil when there is none
func (s *Store) Record(ctx context.Context, id int64) (*Record, error) {
	r := Record{ID: id}
	err := s.db.QueryRowContext(ctx,
		`SELECT deactivated, is_close, group_checked, wall_checked FROM users WHERE user_id = ?`, id,
	).Scan(&r.Deactivated, &r.Closed, &r.GroupChecked, &r.WallChecked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeStorage, fmt.Sprintf("read record %d", id), err)
	}
	return &r, nil
}

// Update runs fn in a transaction and commits it. A write that fails on a
// busy database is replayed from the start on a fresh transaction, so fn
// must only depend on its arguments.
func (s *Store) Update(ctx context.Context, fn func(*Tx) error) error {
	return retry.Do(ctx, s.retry, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return errs.Wrap(errs.ErrorTypeStorage, "begin transaction", err)
		}
		if err := fn(&Tx{tx: tx, ctx: ctx}); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return errs.Wrap(errs.ErrorTypeStorage, "commit transaction", err)
		}
		return nil
	})
}

// Purge removes every trace of the identifiers in one transaction
func (s *Store) Purge(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	return s.Update(ctx, func(tx *Tx) error {
		for _, id := range ids {
			if err := tx.Purge(id); err != nil {
				return err
			}
		}
		return nil
	})
}
