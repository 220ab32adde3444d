// Package migrate applies versioned SQL migrations to a database/sql handle.
//
// A migration run is planned first and then applied step by step, each step
// in its own transaction together with its version bookkeeping, so a failed
// step leaves the schema at the last completed version.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Latest targets the newest available migration.
const Latest = -1

// ErrUnknownVersion is returned when a target names no known migration.
var ErrUnknownVersion = errors.New("unknown migration version")

// Migration represents a single database migration
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// Source supplies migrations and keeps track of the applied version.
type Source interface {
	// Migrations returns every migration, sorted by ascending version.
	Migrations() ([]Migration, error)
	EnsureVersionTable(ctx context.Context, db *sql.DB) error
	CurrentVersion(ctx context.Context, db *sql.DB) (int, error)
	SetVersion(ctx context.Context, tx *sql.Tx, version int) error
}

// Step is one planned migration in one direction.
type Step struct {
	Migration
	Down bool
}

// To returns the schema version after the step is applied.
func (s Step) To() int {
	if s.Down {
		return s.Version - 1
	}
	return s.Version
}

func (s Step) String() string {
	if s.Down {
		return fmt.Sprintf("%d -> %d (revert %s)", s.Version, s.Version-1, s.Name)
	}
	return fmt.Sprintf("%d -> %d (%s)", s.Version-1, s.Version, s.Name)
}

// Status describes where a database stands relative to its migrations.
type Status struct {
	Current int
	Latest  int
	Pending []Migration
}

// Migrator plans and applies migrations
type Migrator struct {
	db     *sql.DB
	source Source

	// Logf, if set, is called once per applied step.
	Logf func(format string, args ...interface{})
}

// NewMigrator creates a new migrator instance
func NewMigrator(db *sql.DB, source Source) *Migrator {
	return &Migrator{db: db, source: source}
}

// Up applies all pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	return m.To(ctx, Latest)
}

// Down reverts migrations until target is the current version. target must
// be below the current version.
func (m *Migrator) Down(ctx context.Context, target int) error {
	current, err := m.Version(ctx)
	if err != nil {
		return err
	}
	if target < 0 || target >= current {
		return fmt.Errorf("target version %d must be below current version %d", target, current)
	}
	return m.To(ctx, target)
}

// To migrates up or down until target is the current version.
func (m *Migrator) To(ctx context.Context, target int) error {
	plan, err := m.Plan(ctx, target)
	if err != nil {
		return err
	}
	for _, step := range plan {
		if err := m.apply(ctx, step); err != nil {
			return err
		}
	}
	return nil
}

// Plan returns the steps To would apply, without applying them.
func (m *Migrator) Plan(ctx context.Context, target int) ([]Step, error) {
	current, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}
	migrations, err := m.source.Migrations()
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}

	if target == Latest {
		target = current
		if n := len(migrations); n > 0 && migrations[n-1].Version > target {
			target = migrations[n-1].Version
		}
	} else if target != 0 && !hasVersion(migrations, target) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVersion, target)
	}

	var plan []Step
	if target >= current {
		for _, mig := range migrations {
			if mig.Version > current && mig.Version <= target {
				plan = append(plan, Step{Migration: mig})
			}
		}
		return plan, nil
	}

	for i := len(migrations) - 1; i >= 0; i-- {
		mig := migrations[i]
		if mig.Version > target && mig.Version <= current {
			if mig.Down == "" {
				return nil, fmt.Errorf("migration %d (%s) cannot be reverted: no down SQL", mig.Version, mig.Name)
			}
			plan = append(plan, Step{Migration: mig, Down: true})
		}
	}
	return plan, nil
}

// Version returns the current schema version, creating the version table if
// needed.
func (m *Migrator) Version(ctx context.Context) (int, error) {
	if err := m.source.EnsureVersionTable(ctx, m.db); err != nil {
		return 0, err
	}
	return m.source.CurrentVersion(ctx, m.db)
}

// Status reports the current and latest versions and the pending migrations.
func (m *Migrator) Status(ctx context.Context) (Status, error) {
	current, err := m.Version(ctx)
	if err != nil {
		return Status{}, err
	}
	migrations, err := m.source.Migrations()
	if err != nil {
		return Status{}, fmt.Errorf("failed to load migrations: %w", err)
	}

	st := Status{Current: current, Latest: current}
	for _, mig := range migrations {
		if mig.Version > current {
			st.Pending = append(st.Pending, mig)
		}
		if mig.Version > st.Latest {
			st.Latest = mig.Version
		}
	}
	return st, nil
}

func (m *Migrator) apply(ctx context.Context, step Step) error {
	query := step.Up
	if step.Down {
		query = step.Migration.Down
	}
	if query == "" {
		return fmt.Errorf("migration %d has no SQL for step %v", step.Version, step)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("migration %v failed: %w", step, err)
	}
	if err := m.source.SetVersion(ctx, tx, step.To()); err != nil {
		return fmt.Errorf("failed to record version %d: %w", step.To(), err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %v: %w", step, err)
	}

	if m.Logf != nil {
		m.Logf("migrated schema %v", step)
	}
	return nil
}

func hasVersion(migrations []Migration, v int) bool {
	for _, mig := range migrations {
		if mig.Version == v {
			return true
		}
	}
	return false
}
