package storage

import (
	"context"
	"sync"
	"time"

	"github.com/stoffej/water-rrd-m.nu/internal/log"
	"github.com/stoffej/water-rrd-m.nu/internal/types"
)

const (
	// QueueSize is the number of snapshots an engine may have pending.
	QueueSize = 10
	// WriteTimeout bounds a single engine write.
	WriteTimeout = 30 * time.Second
)

// StartProcessor starts a standard snapshot processing goroutine for an engine
// and returns its input channel. The goroutine runs until the channel is
// closed.
func StartProcessor(ctx context.Context, wg *sync.WaitGroup, name string, processor func(context.Context, types.Snapshot) error) chan<- types.Snapshot {
	ch := make(chan types.Snapshot, QueueSize)
	wg.Add(1)
	go ProcessSnapshots(ctx, wg, ch, processor, name)
	return ch
}

// ProcessSnapshots feeds snapshots from the channel to processor until the
// producer closes it. Cancelling ctx does not stop the loop: every snapshot
// handed over before the close is written, including those reported while
// the process is shutting down. Each write gets WriteTimeout and is not
// cancelled by ctx. Errors are logged and recorded; the snapshot is not
// retried.
func ProcessSnapshots(ctx context.Context, wg *sync.WaitGroup, snapshotChan <-chan types.Snapshot, processor func(context.Context, types.Snapshot) error, name string) {
	defer wg.Done()

	for s := range snapshotChan {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), WriteTimeout)
		if err := processor(wctx, s); err != nil {
			log.Errorf("%s snapshot processor error: %v", name, err)
			GlobalHealthManager.RecordFailure(name, err)
		} else {
			GlobalHealthManager.RecordSuccess(name, s.Timestamp)
		}
		cancel()
	}
	log.Infof("%s snapshot processor stopped", name)
}
