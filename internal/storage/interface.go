// Package storage defines the snapshot reporting contract and the plumbing
// shared by the snapshot storage engines.
package storage

import (
	"context"
	"sync"

	"github.com/stoffej/water-rrd-m.nu/internal/types"
)

// SnapshotReporter receives every minute-flush snapshot and every forced
// snapshot, synchronously, from the meter loop. Implementations must return
// promptly and must not retry on the loop's behalf.
type SnapshotReporter interface {
	Report(ctx context.Context, s types.Snapshot)
}

// StorageEngineInterface is an interface that provides a few standardized
// methods for the snapshot storage backends
type StorageEngineInterface interface {
	// StartStorageEngine starts the engine's processing goroutine and
	// returns the channel it reads snapshots from. The goroutine exits once
	// the channel is closed and its queue is written.
	StartStorageEngine(context.Context, *sync.WaitGroup) chan<- types.Snapshot
	Name() string
}
