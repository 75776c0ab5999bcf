// Package store persists run history in SQLite via the pure-Go
// modernc.org/sqlite driver, so the binary stays cgo-free. History is an
// observer: recording failures must never fail the run they describe, so
// callers log Insert errors at warn and move on.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Record statuses.
const (
	StatusOK       = "ok"
	StatusFailed   = "failed"
	StatusCanceled = "canceled"
)

// Record is one persisted run.
type Record struct {
	ID          string    `json:"id"`
	StartedAt   time.Time `json:"started_at"`
	Command     string    `json:"command"`
	Volume      string    `json:"volume"`
	Surface     string    `json:"surface"`
	Threads     int       `json:"threads"`
	RunParallel bool      `json:"run_parallel"`

	// Kernel-side stage durations in microseconds, the resolution the
	// kernel session reports. ImportUsec sums both input imports.
	ImportUsec  int64 `json:"import_usec"`
	FuseUsec    int64 `json:"fuse_usec"`
	ConnectUsec int64 `json:"connect_usec"`
	ExportUsec  int64 `json:"export_usec"`
	WallUsec    int64 `json:"wall_usec"`

	Output        string `json:"output,omitempty"`
	Status        string `json:"status"`
	Error         string `json:"error,omitempty"`
	KernelVersion string `json:"kernel_version,omitempty"`
	Host          string `json:"host,omitempty"`
}

// HostString describes the recording host for run records.
func HostString() string {
	return fmt.Sprintf("%s/%s cpus=%d", runtime.GOOS, runtime.GOARCH, runtime.NumCPU())
}

// RunStore is the SQLite-backed history. A nil *RunStore is a valid
// no-op store, which is how disabled history is represented.
type RunStore struct {
	db   *sql.DB
	mu   sync.Mutex
	path string

	logger *zap.Logger
}

// Open opens (creating if needed) the history database at path and brings
// its schema up to date.
func Open(path string, logger *zap.Logger) (*RunStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logger.Debug("setting sqlite busy_timeout", zap.Error(err))
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logger.Debug("setting sqlite journal_mode", zap.Error(err))
	}

	applied, err := applyMigrations(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating history schema: %w", err)
	}
	if applied > 0 {
		logger.Debug("history schema migrated",
			zap.String("path", path),
			zap.Int("applied", applied))
	}

	return &RunStore{db: db, path: path, logger: logger}, nil
}

// Close closes the database. Safe on a nil store.
func (s *RunStore) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path, empty for a nil store.
func (s *RunStore) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Insert records one run. Safe on a nil store, where it does nothing.
func (s *RunStore) Insert(rec Record) error {
	if s == nil {
		return nil
	}
	if rec.ID == "" {
		return fmt.Errorf("record has no id")
	}
	if rec.Status == "" {
		return fmt.Errorf("record has no status")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO runs (
			id, started_at, command, volume, surface, threads, run_parallel,
			import_usec, fuse_usec, connect_usec, export_usec, wall_usec,
			output, status, error, kernel_version, host
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
		rec.Command,
		rec.Volume,
		rec.Surface,
		rec.Threads,
		boolInt(rec.RunParallel),
		rec.ImportUsec,
		rec.FuseUsec,
		rec.ConnectUsec,
		rec.ExportUsec,
		rec.WallUsec,
		rec.Output,
		rec.Status,
		rec.Error,
		rec.KernelVersion,
		rec.Host,
	)
	if err != nil {
		return fmt.Errorf("inserting run record: %w", err)
	}
	return nil
}

// Recent returns the most recent records, newest first. Safe on a nil
// store, where it returns nothing.
func (s *RunStore) Recent(limit int) ([]Record, error) {
	if s == nil {
		return nil, nil
	}
	if limit < 1 {
		limit = 20
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT id, started_at, command, volume, surface, threads, run_parallel,
		       import_usec, fuse_usec, connect_usec, export_usec, wall_usec,
		       output, status, error, kernel_version, host
		FROM runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying run records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var startedAt string
		var runParallel int
		if err := rows.Scan(
			&rec.ID, &startedAt, &rec.Command, &rec.Volume, &rec.Surface,
			&rec.Threads, &runParallel,
			&rec.ImportUsec, &rec.FuseUsec, &rec.ConnectUsec, &rec.ExportUsec,
			&rec.WallUsec,
			&rec.Output, &rec.Status, &rec.Error, &rec.KernelVersion, &rec.Host,
		); err != nil {
			return nil, fmt.Errorf("scanning run record: %w", err)
		}
		rec.RunParallel = runParallel != 0
		if t, err := time.Parse(time.RFC3339Nano, startedAt); err == nil {
			rec.StartedAt = t
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading run records: %w", err)
	}
	return out, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
