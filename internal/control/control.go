// Package control carries out-of-band "report now" requests into the meter
// loop. Requesters only set an atomic flag; the loop reads and clears it once
// per iteration.
package control

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/fsnotify/fsnotify"

	"github.com/stoffej/water-rrd-m.nu/internal/log"
)

// Flag is a force-snapshot request flag, safe to set from any goroutine.
type Flag struct {
	requested atomic.Bool
}

// Request asks for a snapshot on the next loop iteration. Requests made
// before the loop consumes the flag collapse into one.
func (f *Flag) Request() {
	f.requested.Store(true)
}

// Take reports whether a snapshot was requested and clears the request.
func (f *Flag) Take() bool {
	return f.requested.Swap(false)
}

var signals = map[string]os.Signal{
	"SIGUSR1": syscall.SIGUSR1,
	"SIGUSR2": syscall.SIGUSR2,
	"SIGHUP":  syscall.SIGHUP,
	"SIGINT":  syscall.SIGINT,
}

// ParseSignal maps a signal name such as "SIGUSR1" or "usr1" to the signal.
func ParseSignal(name string) (os.Signal, error) {
	n := strings.ToUpper(name)
	if !strings.HasPrefix(n, "SIG") {
		n = "SIG" + n
	}
	sig, ok := signals[n]
	if !ok {
		return nil, fmt.Errorf("unsupported control signal: %s", name)
	}
	return sig, nil
}

// WatchSignal sets f each time sig is delivered, until ctx is done.
func WatchSignal(ctx context.Context, wg *sync.WaitGroup, f *Flag, sig os.Signal) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sig)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer signal.Stop(ch)
		for {
			select {
			case <-ch:
				log.Debugf("received %v, requesting snapshot", sig)
				f.Request()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// WatchFile sets f whenever path is written or created. The parent directory
// is watched so the trigger file does not need to exist in advance.
func WatchFile(ctx context.Context, wg *sync.WaitGroup, f *Flag, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}

	path = filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watching %s: %w", filepath.Dir(path), err)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != path {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					log.Debugf("trigger file %s touched, requesting snapshot", path)
					f.Request()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warnf("trigger file watcher error: %v", err)
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}
