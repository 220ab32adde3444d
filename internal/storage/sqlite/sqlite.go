// Package sqlite keeps a local history of minute snapshots in a SQLite
// database, one row per flush, tagged with the process run that wrote it.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/stoffej/water-rrd-m.nu/internal/log"
	"github.com/stoffej/water-rrd-m.nu/internal/storage"
	"github.com/stoffej/water-rrd-m.nu/internal/types"
	"github.com/stoffej/water-rrd-m.nu/pkg/migrate"
)

const engineName = "sqlite"

//go:embed migrations/*.sql
var migrationFS embed.FS

// Storage holds the SQLite history database
type Storage struct {
	db    *sql.DB
	path  string
	meter string
	RunID string
}

// New opens (creating if needed) the history database at path and brings
// its schema up to date.
func New(path, meter string) (*Storage, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Single writer; also keeps :memory: databases on one connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	mctx, cancel := context.WithTimeout(context.Background(), storage.WriteTimeout)
	defer cancel()
	m := NewMigrator(db)
	m.Logf = log.Infof
	if err := m.Up(mctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{
		db:    db,
		path:  path,
		meter: meter,
		RunID: uuid.New().String(),
	}, nil
}

// VersionTable records the applied history schema version.
const VersionTable = "history_schema"

// NewMigrator returns a migrator for the embedded history schema on db.
func NewMigrator(db *sql.DB) *migrate.Migrator {
	return migrate.NewMigrator(db, migrate.NewFSProvider(migrationFS, "migrations", VersionTable))
}

func (s *Storage) Name() string {
	return engineName
}

// BeginRun records the start of this process with the base offset in use.
func (s *Storage) BeginRun(ctx context.Context, started time.Time, baseOffset float64) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO runs (run_id, meter, started_at, base_offset) VALUES (?, ?, ?, ?)",
		s.RunID, s.meter, started.Unix(), baseOffset)
	if err != nil {
		return fmt.Errorf("could not record run: %w", err)
	}
	return nil
}

// StartStorageEngine starts the goroutine that inserts snapshots.
func (s *Storage) StartStorageEngine(ctx context.Context, wg *sync.WaitGroup) chan<- types.Snapshot {
	log.Infof("starting SQLite storage engine (%s)...", s.path)
	return storage.StartProcessor(ctx, wg, engineName, s.StoreSnapshot)
}

// StoreSnapshot inserts one snapshot row
func (s *Storage) StoreSnapshot(ctx context.Context, snap types.Snapshot) error {
	meter := snap.MeterName
	if meter == "" {
		meter = s.meter
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (run_id, meter, time, last_minute, last_10minute, drain, total, frame_rate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.RunID, meter, snap.Timestamp.Unix(), snap.LastMinute, snap.Last10Minute, snap.Drain, snap.Total, snap.FrameRate)
	if err != nil {
		return fmt.Errorf("could not store snapshot: %w", err)
	}
	return nil
}

// LatestTotal returns the displayed total of this meter's most recent
// snapshot. ok is false when the database holds none.
func (s *Storage) LatestTotal(ctx context.Context) (total float64, ok bool, err error) {
	err = s.db.QueryRowContext(ctx, "SELECT total FROM snapshots WHERE meter = ? ORDER BY time DESC, id DESC LIMIT 1", s.meter).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return total, true, nil
}

// Snapshots returns the snapshots taken in [from, to), oldest first.
func (s *Storage) Snapshots(ctx context.Context, from, to time.Time) ([]types.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT meter, time, last_minute, last_10minute, drain, total, frame_rate
		FROM snapshots WHERE time >= ? AND time < ? ORDER BY time, id`,
		from.Unix(), to.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Snapshot
	for rows.Next() {
		var snap types.Snapshot
		var ts int64
		if err := rows.Scan(&snap.MeterName, &ts, &snap.LastMinute, &snap.Last10Minute, &snap.Drain, &snap.Total, &snap.FrameRate); err != nil {
			return nil, err
		}
		snap.Timestamp = time.Unix(ts, 0)
		out = append(out, snap)
	}
	return out, rows.Err()
}

// Close closes the database
func (s *Storage) Close() error {
	return s.db.Close()
}
