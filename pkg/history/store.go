package history

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/drip/pkg/types"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// ErrCycleNotFound is returned when ending a cycle that does not exist or has
// already ended.
var ErrCycleNotFound = errors.New("watering cycle not found or already ended")

// Store persists watering cycles in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (and creates if needed) the history database at path.
func Open(path string) (*Store, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, pkgerrors.Wrapf(err, "failed to create directory for %s", path)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open history database %s", path)
	}
	// A single connection serializes writers and keeps :memory: databases
	// from splitting across the pool.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, pkgerrors.Wrapf(err, "failed to ping history database %s", path)
	}

	s := &Store{db: db}
	if err := s.initTables(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initTables() error {
	_, err := s.db.Exec(`
        CREATE TABLE IF NOT EXISTS cycles (
            id TEXT PRIMARY KEY,
            interval TEXT NOT NULL,
            planned_seconds INTEGER NOT NULL,
            started_at DATETIME NOT NULL,
            ended_at DATETIME,
            end_reason TEXT
        )
    `)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to create cycles table")
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_cycles_started_at ON cycles(started_at)`)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to create cycles index")
	}
	return nil
}

// Begin records the start of a cycle and returns its ID.
func (s *Store) Begin(interval string, plannedSeconds int64, at time.Time) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO cycles (id, interval, planned_seconds, started_at) VALUES (?, ?, ?, ?)`,
		id, interval, plannedSeconds, at.UTC(),
	)
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to insert cycle %s", id)
	}
	return id, nil
}

// End marks an open cycle as finished.
func (s *Store) End(id, reason string, at time.Time) error {
	res, err := s.db.Exec(
		`UPDATE cycles SET ended_at = ?, end_reason = ? WHERE id = ? AND ended_at IS NULL`,
		at.UTC(), reason, id,
	)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to end cycle %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to end cycle %s", id)
	}
	if n == 0 {
		return ErrCycleNotFound
	}
	return nil
}

// CloseOpen ends every cycle still open, e.g. ones left behind by a crash.
// It returns the number of cycles closed.
func (s *Store) CloseOpen(reason string, at time.Time) (int64, error) {
	res, err := s.db.Exec(
		`UPDATE cycles SET ended_at = ?, end_reason = ? WHERE ended_at IS NULL`,
		at.UTC(), reason,
	)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "failed to close open cycles")
	}
	return res.RowsAffected()
}

// List returns up to limit cycles, newest first.
func (s *Store) List(limit int) ([]types.Cycle, error) {
	rows, err := s.db.Query(`
        SELECT id, interval, planned_seconds, started_at, ended_at, end_reason
        FROM cycles
        ORDER BY started_at DESC
        LIMIT ?
    `, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to query cycles")
	}
	defer rows.Close()

	cycles := make([]types.Cycle, 0)
	for rows.Next() {
		var (
			c      types.Cycle
			ended  sql.NullTime
			reason sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Interval, &c.PlannedSeconds, &c.StartedAt, &ended, &reason); err != nil {
			return nil, pkgerrors.Wrap(err, "failed to scan cycle")
		}
		if ended.Valid {
			t := ended.Time
			c.EndedAt = &t
		}
		c.EndReason = reason.String
		cycles = append(cycles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to iterate cycles")
	}
	return cycles, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
