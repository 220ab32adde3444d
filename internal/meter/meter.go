// Package meter runs the acquisition loop: grab a frame, find the hit zone,
// update the consumption counters and report snapshots.
package meter

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/stoffej/water-rrd-m.nu/internal/accumulator"
	"github.com/stoffej/water-rrd-m.nu/internal/control"
	"github.com/stoffej/water-rrd-m.nu/internal/detector"
	"github.com/stoffej/water-rrd-m.nu/internal/frames"
	"github.com/stoffej/water-rrd-m.nu/internal/log"
	"github.com/stoffej/water-rrd-m.nu/internal/overlay"
	"github.com/stoffej/water-rrd-m.nu/internal/storage"
	"github.com/stoffej/water-rrd-m.nu/internal/types"
)

// Config describes the dial being read.
type Config struct {
	Name   string
	Zones  []types.Zone
	Width  int
	Height int
	// BaseOffset is added to the cumulative volume in every snapshot.
	BaseOffset float64
}

// Meter owns the accumulator and drives it from a frame source. Run must
// not be called concurrently.
type Meter struct {
	cfg      Config
	source   frames.Source
	reporter storage.SnapshotReporter
	flag     *control.Flag
	overlay  overlay.Overlay
	clock    func() time.Time
	logger   *zap.SugaredLogger

	acc *accumulator.Accumulator
}

// Option customizes a Meter.
type Option func(*Meter)

// WithOverlay renders every processed frame to o.
func WithOverlay(o overlay.Overlay) Option {
	return func(m *Meter) { m.overlay = o }
}

// WithClock replaces time.Now as the source of frame timestamps.
func WithClock(clock func() time.Time) Option {
	return func(m *Meter) { m.clock = clock }
}

// WithLogger sets the logger used for per-frame messages.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(m *Meter) { m.logger = l }
}

// New validates the zone layout against the frame size and creates a meter.
// flag may be nil when no out-of-band snapshot requests are wanted.
func New(cfg Config, source frames.Source, reporter storage.SnapshotReporter, flag *control.Flag, opts ...Option) (*Meter, error) {
	if err := detector.ValidateZones(cfg.Zones, cfg.Width, cfg.Height); err != nil {
		return nil, fmt.Errorf("invalid zone layout: %w", err)
	}
	if source == nil || reporter == nil {
		return nil, errors.New("meter needs a frame source and a reporter")
	}

	m := &Meter{
		cfg:      cfg,
		source:   source,
		reporter: reporter,
		flag:     flag,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = log.GetSugaredLogger()
	}
	if m.flag == nil {
		m.flag = &control.Flag{}
	}

	m.acc = accumulator.New(len(cfg.Zones), cfg.BaseOffset, m.clock())
	return m, nil
}

// Run processes frames until ctx is done or the source is exhausted. A frame
// that cannot be grabbed ends the run with an error.
func (m *Meter) Run(ctx context.Context) error {
	m.logger.Infof("reading meter %q with %d zones, base offset %.2f l",
		m.cfg.Name, len(m.cfg.Zones), m.cfg.BaseOffset)

	for {
		if ctx.Err() != nil {
			return nil
		}

		img, err := m.source.Grab(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				m.logger.Info("frame source exhausted")
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("unable to grab frame: %w", err)
		}

		if err := m.Process(ctx, img); err != nil {
			return err
		}
	}
}

// Process runs one frame through detection and accumulation, reporting any
// snapshot that falls due.
func (m *Meter) Process(ctx context.Context, img image.Image) error {
	b := img.Bounds()
	if b.Dx() != m.cfg.Width || b.Dy() != m.cfg.Height {
		return fmt.Errorf("frame is %dx%d, expected %dx%d", b.Dx(), b.Dy(), m.cfg.Width, m.cfg.Height)
	}

	now := m.clock()
	obs := detector.Detect(img, m.cfg.Zones)

	prev := m.acc.State().LastZone
	if obs.Hit() && prev.Hit() && obs != prev {
		steps := accumulator.Elapsed(int(prev), int(obs), m.acc.Zones())
		m.logger.Infof("Hit region: %d [ +%.3f l ]", int(obs), float64(steps)/float64(m.acc.Zones()))
	}

	flush, forced := m.acc.Step(obs, now, m.flag.Take())
	for _, snap := range []*types.Snapshot{flush, forced} {
		if snap != nil {
			snap.MeterName = m.cfg.Name
			m.reporter.Report(ctx, *snap)
		}
	}

	if m.overlay != nil {
		if err := m.overlay.Render(img, m.cfg.Zones, obs); err != nil {
			m.logger.Warnf("could not render overlay: %v", err)
		}
	}

	return nil
}

// State returns a copy of the accumulator's counters.
func (m *Meter) State() accumulator.State {
	return m.acc.State()
}
