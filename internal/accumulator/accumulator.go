// Package accumulator turns the stream of per-frame zone observations into
// cumulative and windowed water volumes.
//
// The accumulator is owned by a single goroutine (the meter loop) and is not
// safe for concurrent use.
//
// Observations are assumed to arrive fast relative to the dial: a marker that
// travels a full revolution between two frames lands back on the same zone and
// is counted as no motion at all.
package accumulator

import (
	"time"

	"github.com/stoffej/water-rrd-m.nu/internal/types"
)

const (
	// MinuteWindow is how often a snapshot is flushed to storage.
	MinuteWindow = time.Minute
	// TenMinuteWindow is the span of the rolling ten-minute volume. It resets on
	// its own timer, independent of the minute flush.
	TenMinuteWindow = 10 * time.Minute
)

// State is a copy of the accumulator's counters.
type State struct {
	LastZone              types.Observation
	TotalVolume           float64
	WindowMinute          float64
	Window10Minute        float64
	Drain                 float64
	LastMinuteFlushTime   time.Time
	Last10MinuteFlushTime time.Time
	FrameCounter          int
	BaseOffset            float64
}

// Accumulator holds the consumption counters for one dial.
type Accumulator struct {
	zones int
	st    State
}

// New creates an accumulator for a dial with zoneCount zones. baseOffset is
// added to the cumulative volume only when a snapshot is reported.
func New(zoneCount int, baseOffset float64, now time.Time) *Accumulator {
	return &Accumulator{
		zones: zoneCount,
		st: State{
			LastZone:              types.NoHit,
			LastMinuteFlushTime:   now,
			Last10MinuteFlushTime: now,
			BaseOffset:            baseOffset,
		},
	}
}

// Elapsed returns how many zones the marker advanced going from zone from to
// zone to on a dial of n zones. For from != to the result is in [1, n-1].
func Elapsed(from, to, n int) int {
	return (to - from + n) % n
}

// Ingest applies one frame's observation at time now. It returns a snapshot
// when the minute window closed on this call.
func (a *Accumulator) Ingest(obs types.Observation, now time.Time) (*types.Snapshot, bool) {
	flush, _ := a.Step(obs, now, false)
	return flush, flush != nil
}

// Step applies one frame like Ingest and, when force is set, also returns a
// forced snapshot. The forced snapshot is taken after the minute flush but
// before the ten-minute window resets, so it still carries the volume of a
// ten-minute window that closes on this frame.
func (a *Accumulator) Step(obs types.Observation, now time.Time, force bool) (flush, forced *types.Snapshot) {
	if obs.Hit() && int(obs) < a.zones {
		a.advance(obs)
	}

	if !now.Before(a.st.LastMinuteFlushTime.Add(MinuteWindow)) {
		s := a.snapshot(now)
		s.FrameRate = a.st.FrameCounter / int(MinuteWindow/time.Second)
		flush = &s

		if a.st.WindowMinute == 0 {
			a.st.Drain = 0
		}
		a.st.WindowMinute = 0
		a.st.LastMinuteFlushTime = now
		a.st.FrameCounter = 0
	}

	if force {
		s := a.ForceSnapshot(now)
		forced = &s
	}

	if !now.Before(a.st.Last10MinuteFlushTime.Add(TenMinuteWindow)) {
		a.st.Window10Minute = 0
		a.st.Last10MinuteFlushTime = now
	}

	a.st.FrameCounter++
	return flush, forced
}

// advance records a hit. The first hit only arms the tracker; repeated hits on
// the same zone are ignored.
func (a *Accumulator) advance(obs types.Observation) {
	zone := int(obs)
	if a.st.LastZone.Hit() && zone != int(a.st.LastZone) {
		delta := float64(Elapsed(int(a.st.LastZone), zone, a.zones)) / float64(a.zones)
		a.st.TotalVolume += delta
		a.st.WindowMinute += delta
		a.st.Window10Minute += delta
		a.st.Drain += delta
	}
	a.st.LastZone = obs
}

// ForceSnapshot reports the current counters without touching any window or
// flush timestamp.
func (a *Accumulator) ForceSnapshot(now time.Time) types.Snapshot {
	s := a.snapshot(now)
	s.Forced = true
	return s
}

func (a *Accumulator) snapshot(now time.Time) types.Snapshot {
	return types.Snapshot{
		Timestamp:    now,
		LastMinute:   a.st.WindowMinute,
		Last10Minute: a.st.Window10Minute,
		Drain:        a.st.Drain,
		Total:        a.st.TotalVolume + a.st.BaseOffset,
	}
}

// State returns a copy of the current counters.
func (a *Accumulator) State() State {
	return a.st
}

// Zones returns the number of zones on the dial.
func (a *Accumulator) Zones() int {
	return a.zones
}
