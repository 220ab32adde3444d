// Package totalfile keeps the displayed meter total in a small text file.
// The file is rewritten in full on every minute flush and read back at
// startup to seed the base offset.
package totalfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/stoffej/water-rrd-m.nu/internal/log"
	"github.com/stoffej/water-rrd-m.nu/internal/storage"
	"github.com/stoffej/water-rrd-m.nu/internal/types"
)

const engineName = "total-file"

// Storage writes the displayed total to Path
type Storage struct {
	Path string
}

// New sets up a new total-file storage backend
func New(path string) (*Storage, error) {
	if path == "" {
		return nil, fmt.Errorf("total file path is empty")
	}
	return &Storage{Path: path}, nil
}

func (s *Storage) Name() string {
	return engineName
}

// StartStorageEngine starts the goroutine that writes each snapshot's total.
func (s *Storage) StartStorageEngine(ctx context.Context, wg *sync.WaitGroup) chan<- types.Snapshot {
	log.Infof("starting total-file storage engine (%s)...", s.Path)
	return storage.StartProcessor(ctx, wg, engineName, s.StoreSnapshot)
}

// StoreSnapshot overwrites the file with the snapshot's total, two decimals.
// The new content is written to a temporary file and renamed into place so a
// reader never sees a partial value.
func (s *Storage) StoreSnapshot(_ context.Context, snap types.Snapshot) error {
	return WriteTotal(s.Path, snap.Total)
}

// WriteTotal atomically replaces path with total formatted as %8.2f.
func WriteTotal(path string, total float64) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("could not create temporary total file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := fmt.Fprintf(tmp, "%8.2f", total); err != nil {
		tmp.Close()
		return fmt.Errorf("could not write total: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("could not replace %s: %w", path, err)
	}
	return nil
}

// ReadBaseOffset returns the total stored in path. A missing file yields 0.
func ReadBaseOffset(path string) (float64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	fields := strings.Fields(string(b))
	if len(fields) == 0 {
		return 0, nil
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, fmt.Errorf("parsing total in %s: %w", path, err)
	}
	return v, nil
}
