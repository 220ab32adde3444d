package meter

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stoffej/water-rrd-m.nu/internal/control"
	"github.com/stoffej/water-rrd-m.nu/internal/types"
	"github.com/stoffej/water-rrd-m.nu/pkg/config"
)

const (
	width  = config.DefaultFrameWidth
	height = config.DefaultFrameHeight
)

func defaultZones() []types.Zone {
	var zones []types.Zone
	for _, z := range config.DefaultZones() {
		zones = append(zones, types.Zone{X: z.X, Y: z.Y, Width: z.Width, Height: z.Height})
	}
	return zones
}

// frameWithHit returns a white frame with zone hit painted black, or a plain
// white frame for types.NoHit.
func frameWithHit(zones []types.Zone, hit types.Observation) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	if hit.Hit() {
		z := zones[hit]
		for y := z.Y; y < z.Y+z.Height; y++ {
			for x := z.X; x < z.X+z.Width; x++ {
				img.SetRGBA(x, y, color.RGBA{A: 0xff})
			}
		}
	}
	return img
}

type fakeSource struct {
	frames []*image.RGBA
	err    error
	// before, if set, runs ahead of every Grab.
	before func(n int)
	n      int
}

func (f *fakeSource) Grab(context.Context) (*image.RGBA, error) {
	if f.before != nil {
		f.before(f.n)
	}
	if f.n >= len(f.frames) {
		if f.err != nil {
			return nil, f.err
		}
		return nil, io.EOF
	}
	img := f.frames[f.n]
	f.n++
	return img, nil
}

func (f *fakeSource) Close() error { return nil }

type fakeReporter struct {
	snaps []types.Snapshot
}

func (f *fakeReporter) Report(_ context.Context, s types.Snapshot) {
	f.snaps = append(f.snaps, s)
}

type fakeOverlay struct {
	calls int
	obs   []types.Observation
}

func (f *fakeOverlay) Render(_ image.Image, _ []types.Zone, obs types.Observation) error {
	f.calls++
	f.obs = append(f.obs, obs)
	return errors.New("disk full")
}

// steppingClock starts at t0 and advances by step on every call.
func steppingClock(t0 time.Time, step time.Duration) func() time.Time {
	now := t0
	return func() time.Time {
		t := now
		now = now.Add(step)
		return t
	}
}

func sequence(zones []types.Zone, hits ...types.Observation) []*image.RGBA {
	var out []*image.RGBA
	for _, h := range hits {
		out = append(out, frameWithHit(zones, h))
	}
	return out
}

func newMeter(t *testing.T, src *fakeSource, rep *fakeReporter, flag *control.Flag, opts ...Option) *Meter {
	t.Helper()
	opts = append([]Option{
		WithClock(steppingClock(time.Unix(1_700_000_000, 0), 10*time.Second)),
		WithLogger(zap.NewNop().Sugar()),
	}, opts...)
	m, err := New(Config{
		Name:       "kitchen",
		Zones:      defaultZones(),
		Width:      width,
		Height:     height,
		BaseOffset: 510.234,
	}, src, rep, flag, opts...)
	require.NoError(t, err)
	return m
}

func TestRunFullRevolution(t *testing.T) {
	zones := defaultZones()
	src := &fakeSource{frames: sequence(zones, 0, 1, 2, 3, 4, 5, 6, 7, 0)}
	rep := &fakeReporter{}
	m := newMeter(t, src, rep, nil)

	require.NoError(t, m.Run(context.Background()))

	// Frames arrive every 10s; the sixth one closes the first minute.
	require.Len(t, rep.snaps, 1)
	snap := rep.snaps[0]
	assert.Equal(t, "kitchen", snap.MeterName)
	assert.False(t, snap.Forced)
	assert.InDelta(t, 0.625, snap.LastMinute, 1e-9)
	assert.InDelta(t, 0.625, snap.Last10Minute, 1e-9)
	assert.InDelta(t, 510.859, snap.Total, 1e-9)
	assert.Equal(t, 0, snap.FrameRate)
	assert.Equal(t, time.Unix(1_700_000_060, 0), snap.Timestamp)

	st := m.State()
	assert.InDelta(t, 1.0, st.TotalVolume, 1e-12)
	assert.InDelta(t, 0.375, st.WindowMinute, 1e-12)
	assert.Equal(t, types.Observation(0), st.LastZone)
}

func TestRunForcedSnapshot(t *testing.T) {
	zones := defaultZones()
	var flag control.Flag
	src := &fakeSource{frames: sequence(zones, 2, 3, 4)}
	src.before = func(n int) {
		if n == 2 {
			flag.Request()
		}
	}
	rep := &fakeReporter{}
	m := newMeter(t, src, rep, &flag)

	require.NoError(t, m.Run(context.Background()))

	require.Len(t, rep.snaps, 1)
	snap := rep.snaps[0]
	assert.True(t, snap.Forced)
	assert.Equal(t, "kitchen", snap.MeterName)
	assert.InDelta(t, 0.25, snap.LastMinute, 1e-9)
	assert.InDelta(t, 510.484, snap.Total, 1e-9)

	st := m.State()
	assert.InDelta(t, 0.25, st.WindowMinute, 1e-12, "forced snapshots leave the windows alone")
	assert.False(t, flag.Take(), "the request was consumed")
}

func TestRunGrabError(t *testing.T) {
	zones := defaultZones()
	boom := errors.New("camera unplugged")
	src := &fakeSource{frames: sequence(zones, types.NoHit), err: boom}
	m := newMeter(t, src, &fakeReporter{}, nil)

	err := m.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestRunCancelled(t *testing.T) {
	zones := defaultZones()
	ctx, cancel := context.WithCancel(context.Background())
	src := &fakeSource{frames: sequence(zones, 0, 1, 2)}
	src.before = func(n int) {
		if n == 1 {
			cancel()
		}
	}
	m := newMeter(t, src, &fakeReporter{}, nil)

	require.NoError(t, m.Run(ctx))
	assert.Equal(t, 2, src.n, "the frame grabbed while cancelling is still processed")
}

func TestProcessRejectsWrongFrameSize(t *testing.T) {
	m := newMeter(t, &fakeSource{}, &fakeReporter{}, nil)
	err := m.Process(context.Background(), image.NewRGBA(image.Rect(0, 0, 352, 288)))
	assert.Error(t, err)
}

func TestOverlayErrorsDoNotStopTheLoop(t *testing.T) {
	zones := defaultZones()
	src := &fakeSource{frames: sequence(zones, 4, types.NoHit, 5)}
	ov := &fakeOverlay{}
	m := newMeter(t, src, &fakeReporter{}, nil, WithOverlay(ov))

	require.NoError(t, m.Run(context.Background()))
	assert.Equal(t, 3, ov.calls)
	assert.Equal(t, []types.Observation{4, types.NoHit, 5}, ov.obs)
	assert.InDelta(t, 0.125, m.State().TotalVolume, 1e-12)
}

func TestNewValidatesZones(t *testing.T) {
	_, err := New(Config{
		Zones:  []types.Zone{{X: 170, Y: 0, Width: 10, Height: 10}},
		Width:  width,
		Height: height,
	}, &fakeSource{}, &fakeReporter{}, nil)
	assert.Error(t, err)

	_, err = New(Config{Width: width, Height: height}, &fakeSource{}, &fakeReporter{}, nil)
	assert.Error(t, err)
}
