// Package app wires configuration, storage, frame acquisition and the meter
// loop together and runs them until shutdown.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/stoffej/water-rrd-m.nu/internal/control"
	"github.com/stoffej/water-rrd-m.nu/internal/frames"
	"github.com/stoffej/water-rrd-m.nu/internal/log"
	"github.com/stoffej/water-rrd-m.nu/internal/managers"
	"github.com/stoffej/water-rrd-m.nu/internal/meter"
	"github.com/stoffej/water-rrd-m.nu/internal/overlay"
	"github.com/stoffej/water-rrd-m.nu/internal/storage"
	"github.com/stoffej/water-rrd-m.nu/internal/storage/totalfile"
	"github.com/stoffej/water-rrd-m.nu/internal/types"
	"github.com/stoffej/water-rrd-m.nu/pkg/config"
)

// App represents the main application
type App struct {
	cfg    *config.ConfigData
	logger *zap.SugaredLogger
}

// New creates a new application instance
func New(cfg *config.ConfigData, logger *zap.SugaredLogger) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
	}
}

// Run starts the application and blocks until shutdown. It returns an error
// for configuration problems and for a frame source that stops delivering.
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	zones := Zones(a.cfg.Meter.Zones)

	// A control signal is never also treated as a shutdown signal.
	flag := &control.Flag{}
	var controlSig os.Signal
	if a.cfg.Control.Signal != "" {
		sig, err := control.ParseSignal(a.cfg.Control.Signal)
		if err != nil {
			return err
		}
		controlSig = sig
		control.WatchSignal(ctx, &wg, flag, sig)
		log.Infof("send %v to report the current counters", sig)
	}
	if a.cfg.Control.TriggerFile != "" {
		if err := control.WatchFile(ctx, &wg, flag, a.cfg.Control.TriggerFile); err != nil {
			return err
		}
		log.Infof("touch %s to report the current counters", a.cfg.Control.TriggerFile)
	}

	storageManager, err := managers.NewStorageManager(ctx, &wg, &a.cfg.Storage, a.cfg.Meter.Name)
	if err != nil {
		return a.abort(cancel, &wg, storageManager, err)
	}

	baseOffset, err := a.baseOffset(ctx, storageManager)
	if err != nil {
		return a.abort(cancel, &wg, storageManager, err)
	}
	if h := storageManager.History(); h != nil {
		if err := h.BeginRun(ctx, time.Now(), baseOffset); err != nil {
			log.Warnf("could not record run in history database: %v", err)
		}
	}

	source, err := frames.New(a.cfg.Camera)
	if err != nil {
		return a.abort(cancel, &wg, storageManager, err)
	}
	defer source.Close()

	opts := []meter.Option{meter.WithLogger(a.logger)}
	if a.cfg.Overlay.Path != "" {
		opts = append(opts, meter.WithOverlay(overlay.NewPNGOverlay(a.cfg.Overlay.Path, a.cfg.Overlay.Every)))
		log.Infof("writing zone overlay to %s", a.cfg.Overlay.Path)
	}

	m, err := meter.New(meter.Config{
		Name:       a.cfg.Meter.Name,
		Zones:      zones,
		Width:      a.cfg.Camera.Width,
		Height:     a.cfg.Camera.Height,
		BaseOffset: baseOffset,
	}, source, storageManager, flag, opts...)
	if err != nil {
		return a.abort(cancel, &wg, storageManager, err)
	}

	// Set up signal handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, shutdownSignals(controlSig)...)
	defer signal.Stop(sigs)
	go func() {
		select {
		case <-sigs:
			log.Info("shutdown signal received, initiating graceful shutdown...")
			cancel()
		case <-ctx.Done():
		}
	}()

	log.Info("Application started successfully")
	runErr := m.Run(ctx)

	// Cancel context to signal all goroutines to stop, then let the storage
	// engines write whatever the loop reported last
	cancel()
	storageManager.Stop()

	// Wait for all workers to terminate
	log.Info("waiting for all workers to terminate...")
	wg.Wait()
	logEngineHealth()

	if err := storageManager.Close(); err != nil {
		log.Warnf("error closing storage engines: %v", err)
	}
	log.Info("shutdown complete")

	return runErr
}

func (a *App) abort(cancel context.CancelFunc, wg *sync.WaitGroup, sm *managers.StorageManager, err error) error {
	cancel()
	if sm != nil {
		sm.Stop()
	}
	wg.Wait()
	if sm != nil {
		_ = sm.Close()
	}
	return err
}

// baseOffset picks the value added to the counted volume: the configured
// start value if non-zero, else the total-value file, else the last total
// in the history database.
func (a *App) baseOffset(ctx context.Context, sm *managers.StorageManager) (float64, error) {
	if v := a.cfg.Meter.StartValue; v != 0 {
		log.Infof("using start value %.2f l", v)
		return v, nil
	}

	if tf := a.cfg.Storage.TotalFile; tf != nil && tf.Path != "" {
		v, err := totalfile.ReadBaseOffset(tf.Path)
		if err != nil {
			return 0, fmt.Errorf("could not read total-value file: %w", err)
		}
		if v != 0 {
			log.Infof("continuing from %.2f l stored in %s", v, tf.Path)
			return v, nil
		}
	}

	if h := sm.History(); h != nil {
		v, ok, err := h.LatestTotal(ctx)
		if err != nil {
			log.Warnf("could not read last total from history database: %v", err)
		} else if ok {
			log.Infof("continuing from %.2f l found in history database", v)
			return v, nil
		}
	}

	log.Info("no stored total found, starting from 0.00 l")
	return 0, nil
}

// Zones converts configured zones into detector zones.
func Zones(zd []config.ZoneData) []types.Zone {
	zones := make([]types.Zone, 0, len(zd))
	for _, z := range zd {
		zones = append(zones, types.Zone{X: z.X, Y: z.Y, Width: z.Width, Height: z.Height})
	}
	return zones
}

func shutdownSignals(control os.Signal) []os.Signal {
	var out []os.Signal
	for _, s := range []os.Signal{syscall.SIGINT, syscall.SIGTERM} {
		if s != control {
			out = append(out, s)
		}
	}
	return out
}

func logEngineHealth() {
	all := storage.GlobalHealthManager.GetAllHealth()
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		h := all[name]
		if h.Healthy() {
			log.Infof("storage engine %s: %d snapshots stored", name, h.Stored)
			continue
		}
		log.Warnf("storage engine %s: %d stored, %d failed, last error: %s", name, h.Stored, h.Failed, h.LastError)
	}
}
