// Package managers builds the configured snapshot storage engines and
// distributes snapshots to them.
package managers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/stoffej/water-rrd-m.nu/internal/log"
	"github.com/stoffej/water-rrd-m.nu/internal/storage"
	"github.com/stoffej/water-rrd-m.nu/internal/storage/rrdtool"
	"github.com/stoffej/water-rrd-m.nu/internal/storage/sqlite"
	"github.com/stoffej/water-rrd-m.nu/internal/storage/timescaledb"
	"github.com/stoffej/water-rrd-m.nu/internal/storage/totalfile"
	"github.com/stoffej/water-rrd-m.nu/internal/types"
	"github.com/stoffej/water-rrd-m.nu/pkg/config"
)

// StorageManager holds our active storage backends. It is the meter's
// SnapshotReporter.
type StorageManager struct {
	Engines []StorageEngine

	history *sqlite.Storage
	closers []io.Closer

	mu      sync.Mutex
	stopped bool
}

// StorageEngine holds a backend storage engine's interface as well as
// a channel for passing snapshots to the engine
type StorageEngine struct {
	Engine storage.StorageEngineInterface
	C      chan<- types.Snapshot
}

var _ storage.SnapshotReporter = (*StorageManager)(nil)

// NewStorageManager creates a StorageManager populated with every storage
// engine present in c. Engines are started immediately and run until Stop;
// wg tracks their goroutines.
func NewStorageManager(ctx context.Context, wg *sync.WaitGroup, c *config.StorageData, meterName string) (*StorageManager, error) {
	s := &StorageManager{}

	if c.TotalFile != nil && c.TotalFile.Path != "" {
		e, err := totalfile.New(c.TotalFile.Path)
		if err != nil {
			return s, fmt.Errorf("could not add total-file storage backend: %w", err)
		}
		s.AddEngine(ctx, wg, e)
	}

	if c.RRDTool != nil && c.RRDTool.File != "" {
		e, err := rrdtool.New(c.RRDTool.Binary, c.RRDTool.File, c.RRDTool.Timeout)
		if err != nil {
			return s, fmt.Errorf("could not add rrdtool storage backend: %w", err)
		}
		s.AddEngine(ctx, wg, e)
	}

	if c.SQLite != nil && c.SQLite.Path != "" {
		e, err := sqlite.New(c.SQLite.Path, meterName)
		if err != nil {
			return s, fmt.Errorf("could not add SQLite storage backend: %w", err)
		}
		s.history = e
		s.AddEngine(ctx, wg, e)
	}

	if c.TimescaleDB != nil && c.TimescaleDB.ConnectionString != "" {
		e, err := timescaledb.New(ctx, c.TimescaleDB.ConnectionString)
		if err != nil {
			return s, fmt.Errorf("could not add TimescaleDB storage backend: %w", err)
		}
		e.StartHealthMonitor(ctx)
		s.AddEngine(ctx, wg, e)
	}

	if len(s.Engines) == 0 {
		log.Warn("no storage engines configured, snapshots will only be logged")
	}

	return s, nil
}

// AddEngine starts e and adds it to the fan-out. Engines that implement
// io.Closer are closed by Close.
func (s *StorageManager) AddEngine(ctx context.Context, wg *sync.WaitGroup, e storage.StorageEngineInterface) {
	s.Engines = append(s.Engines, StorageEngine{
		Engine: e,
		C:      e.StartStorageEngine(ctx, wg),
	})
	if c, ok := e.(io.Closer); ok {
		s.closers = append(s.closers, c)
	}
}

// History returns the SQLite history engine, or nil when none is configured.
func (s *StorageManager) History() *sqlite.Storage {
	return s.history
}

// Report logs the snapshot and, unless it was forced, hands it to every
// engine. A full engine queue drops the snapshot for that engine only.
// Cancellation of ctx does not stop delivery; only Stop does, so a flush
// reported while shutting down is still stored.
func (s *StorageManager) Report(_ context.Context, snap types.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.Forced {
		log.Infof("Last minute: %6.2f l, Last 10min: %6.2f l, Last drain: %6.2f l, Total: %8.2f l",
			snap.LastMinute, snap.Last10Minute, snap.Drain, snap.Total)
		return
	}

	log.Infof("Last minute: %6.2f l, Last 10min: %6.2f l, Last drain: %6.2f l, Total: %8.2f l, Framerate: %d",
		snap.LastMinute, snap.Last10Minute, snap.Drain, snap.Total, snap.FrameRate)

	if s.stopped {
		log.Warnf("storage stopped, snapshot taken at %s not stored", snap.Timestamp.Format("2006-01-02 15:04:05"))
		return
	}

	for _, e := range s.Engines {
		select {
		case e.C <- snap:
		default:
			log.Warnf("%s storage queue full, dropping snapshot taken at %s",
				e.Engine.Name(), snap.Timestamp.Format("2006-01-02 15:04:05"))
		}
	}
}

// Stop closes every engine's queue. Engines write what is queued and then
// exit; wait on the WaitGroup passed to NewStorageManager afterwards.
func (s *StorageManager) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true
	for _, e := range s.Engines {
		close(e.C)
	}
}

// Close releases engine resources. Call it after the engines' goroutines
// have exited.
func (s *StorageManager) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
