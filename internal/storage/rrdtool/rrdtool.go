// Package rrdtool pushes each minute's displayed total into an RRD file by
// running the rrdtool command line utility.
package rrdtool

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/stoffej/water-rrd-m.nu/internal/log"
	"github.com/stoffej/water-rrd-m.nu/internal/storage"
	"github.com/stoffej/water-rrd-m.nu/internal/types"
)

const (
	engineName     = "rrdtool"
	defaultTimeout = 10 * time.Second
)

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Storage holds the configuration for the rrdtool update backend
type Storage struct {
	Binary  string
	File    string
	Timeout time.Duration
	run     Runner
}

// New sets up a new rrdtool storage backend
func New(binary, file string, timeout time.Duration) (*Storage, error) {
	if binary == "" || file == "" {
		return nil, fmt.Errorf("rrdtool binary and rrd file must both be set")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Storage{
		Binary:  binary,
		File:    file,
		Timeout: timeout,
		run:     execRunner,
	}, nil
}

// WithRunner replaces the command runner.
func (s *Storage) WithRunner(r Runner) *Storage {
	s.run = r
	return s
}

func (s *Storage) Name() string {
	return engineName
}

// StartStorageEngine starts the goroutine that runs one update per snapshot.
func (s *Storage) StartStorageEngine(ctx context.Context, wg *sync.WaitGroup) chan<- types.Snapshot {
	log.Infof("starting rrdtool storage engine (%s)...", s.File)
	return storage.StartProcessor(ctx, wg, engineName, s.StoreSnapshot)
}

// UpdateArgs builds the rrdtool arguments for a snapshot: an update record
// of the form <unix seconds>:<total>.
func (s *Storage) UpdateArgs(snap types.Snapshot) []string {
	return []string{"update", s.File, fmt.Sprintf("%d:%.2f", snap.Timestamp.Unix(), snap.Total)}
}

// StoreSnapshot runs rrdtool update. The command is bounded by Timeout.
func (s *Storage) StoreSnapshot(ctx context.Context, snap types.Snapshot) error {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	args := s.UpdateArgs(snap)
	out, err := s.run(ctx, s.Binary, args...)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w (%s)", s.Binary, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	log.Debugf("rrdtool %s", strings.Join(args, " "))
	return nil
}
