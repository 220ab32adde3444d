package accumulator

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stoffej/water-rrd-m.nu/internal/types"
)

const zones = 8

var t0 = time.Date(2026, 3, 14, 6, 0, 0, 0, time.UTC)

func at(sec int) time.Time {
	return t0.Add(time.Duration(sec) * time.Second)
}

func TestElapsed(t *testing.T) {
	for a := 0; a < zones; a++ {
		for b := 0; b < zones; b++ {
			if a == b {
				continue
			}
			e := Elapsed(a, b, zones)
			assert.GreaterOrEqual(t, e, 1, "Elapsed(%d, %d)", a, b)
			assert.LessOrEqual(t, e, zones-1, "Elapsed(%d, %d)", a, b)
			assert.Equal(t, (b-a+zones)%zones, e)
		}
	}

	assert.Equal(t, 1, Elapsed(7, 0, zones))
	assert.Equal(t, 7, Elapsed(0, 7, zones))
}

func TestFullRevolutionIsOneUnit(t *testing.T) {
	for start := 0; start < zones; start++ {
		t.Run(fmt.Sprintf("start %d", start), func(t *testing.T) {
			acc := New(zones, 0, t0)
			for i := 0; i <= zones; i++ {
				acc.Ingest(types.Observation((start+i)%zones), at(i))
			}
			assert.InDelta(t, 1.0, acc.State().TotalVolume, 1e-12)
		})
	}
}

func TestIngestSequence(t *testing.T) {
	acc := New(zones, 0, t0)

	steps := []struct {
		obs   types.Observation
		total float64
	}{
		{obs: 0, total: 0},        // arms the tracker
		{obs: 0, total: 0},        // repeat, ignored
		{obs: 1, total: 1.0 / 8},  // 0 -> 1
		{obs: 3, total: 3.0 / 8},  // 1 -> 3
		{obs: 7, total: 7.0 / 8},  // 3 -> 7
		{obs: 0, total: 8.0 / 8},  // 7 -> 0 wraps
		{obs: types.NoHit, total: 1},
	}

	for i, s := range steps {
		snap, ok := acc.Ingest(s.obs, at(i))
		require.False(t, ok)
		require.Nil(t, snap)
		assert.InDelta(t, s.total, acc.State().TotalVolume, 1e-12, "step %d", i)
	}

	st := acc.State()
	assert.Equal(t, types.Observation(0), st.LastZone)
	assert.InDelta(t, 1.0, st.WindowMinute, 1e-12)
	assert.InDelta(t, 1.0, st.Window10Minute, 1e-12)
	assert.InDelta(t, 1.0, st.Drain, 1e-12)
	assert.Equal(t, len(steps), st.FrameCounter)
}

func TestNoHitKeepsLastZone(t *testing.T) {
	acc := New(zones, 0, t0)
	acc.Ingest(2, at(0))
	acc.Ingest(types.NoHit, at(1))
	acc.Ingest(types.NoHit, at(2))
	assert.Equal(t, types.Observation(2), acc.State().LastZone)

	acc.Ingest(4, at(3))
	assert.InDelta(t, 2.0/8, acc.State().TotalVolume, 1e-12)
}

func TestFirstSnapshotShowsBaseOffset(t *testing.T) {
	acc := New(zones, 510.234, t0)

	snap, ok := acc.Ingest(types.NoHit, at(60))
	require.True(t, ok)
	assert.Equal(t, "510.23", fmt.Sprintf("%.2f", snap.Total))
	assert.Zero(t, acc.State().TotalVolume)
	assert.Equal(t, at(60), snap.Timestamp)
}

func TestMinuteFlush(t *testing.T) {
	acc := New(zones, 100, t0)
	acc.Ingest(0, at(1))
	acc.Ingest(2, at(2))

	snap, ok := acc.Ingest(types.NoHit, at(59))
	require.False(t, ok)
	require.Nil(t, snap)

	snap, ok = acc.Ingest(types.NoHit, at(60))
	require.True(t, ok)
	assert.InDelta(t, 0.25, snap.LastMinute, 1e-12)
	assert.InDelta(t, 0.25, snap.Last10Minute, 1e-12)
	assert.InDelta(t, 0.25, snap.Drain, 1e-12)
	assert.InDelta(t, 100.25, snap.Total, 1e-12)
	assert.False(t, snap.Forced)

	st := acc.State()
	assert.Zero(t, st.WindowMinute)
	assert.InDelta(t, 0.25, st.Drain, 1e-12, "drain survives a busy minute")
	assert.Equal(t, at(60), st.LastMinuteFlushTime)
	assert.Equal(t, 1, st.FrameCounter)
}

func TestFrameRate(t *testing.T) {
	acc := New(zones, 0, t0)
	for i := 0; i < 120; i++ {
		acc.Ingest(types.NoHit, t0.Add(time.Duration(i)*500*time.Millisecond))
	}

	snap, ok := acc.Ingest(types.NoHit, at(60))
	require.True(t, ok)
	assert.Equal(t, 2, snap.FrameRate)
}

func TestDrainResetsAfterIdleMinute(t *testing.T) {
	acc := New(zones, 0, t0)
	acc.Ingest(0, at(0))

	// Three busy minutes: drain keeps growing.
	prev := 0.0
	zone := 0
	for m := 0; m < 3; m++ {
		zone = (zone + 1) % zones
		acc.Ingest(types.Observation(zone), at(m*60+30))
		snap, ok := acc.Ingest(types.NoHit, at((m+1)*60))
		require.True(t, ok)
		assert.GreaterOrEqual(t, snap.Drain, prev)
		prev = snap.Drain
	}
	assert.InDelta(t, 3.0/8, acc.State().Drain, 1e-12)

	// Idle minute: reported drain is still the run total, then cleared.
	snap, ok := acc.Ingest(types.NoHit, at(240))
	require.True(t, ok)
	assert.Zero(t, snap.LastMinute)
	assert.InDelta(t, 3.0/8, snap.Drain, 1e-12)
	assert.Equal(t, 0.0, acc.State().Drain)
}

func TestTenMinuteWindowIndependentOfMinuteFlush(t *testing.T) {
	acc := New(zones, 0, t0)
	acc.Ingest(0, at(0))
	acc.Ingest(4, at(1))

	// No frames for a while: the first call after 600s both flushes the minute
	// and clears the 10-minute window.
	acc.Ingest(types.NoHit, at(599))
	assert.InDelta(t, 0.5, acc.State().Window10Minute, 1e-12)

	snap, ok := acc.Ingest(types.NoHit, at(600))
	assert.False(t, ok, "minute already flushed at 599")
	assert.Nil(t, snap)
	st := acc.State()
	assert.Zero(t, st.Window10Minute)
	assert.Equal(t, at(600), st.Last10MinuteFlushTime)
	assert.Equal(t, at(599), st.LastMinuteFlushTime)

	acc.Ingest(5, at(601))
	assert.InDelta(t, 0.125, acc.State().Window10Minute, 1e-12)
	acc.Ingest(types.NoHit, at(1199))
	assert.InDelta(t, 0.125, acc.State().Window10Minute, 1e-12)
	acc.Ingest(types.NoHit, at(1200))
	assert.Zero(t, acc.State().Window10Minute)
	assert.InDelta(t, 0.625, acc.State().TotalVolume, 1e-12)
}

func TestForceSnapshotDoesNotMutate(t *testing.T) {
	acc := New(zones, 10, t0)
	acc.Ingest(1, at(1))
	acc.Ingest(3, at(2))
	before := acc.State()

	snap := acc.ForceSnapshot(at(30))

	assert.True(t, snap.Forced)
	assert.InDelta(t, 0.25, snap.LastMinute, 1e-12)
	assert.InDelta(t, 10.25, snap.Total, 1e-12)
	assert.Equal(t, before, acc.State())
}

func TestForcedSnapshotPrecedesTenMinuteReset(t *testing.T) {
	acc := New(zones, 0, t0)
	acc.Ingest(0, at(0))
	acc.Ingest(4, at(1))

	flush, forced := acc.Step(types.NoHit, at(600), true)

	require.NotNil(t, flush)
	assert.False(t, flush.Forced)
	assert.InDelta(t, 0.5, flush.LastMinute, 1e-12)

	require.NotNil(t, forced)
	assert.True(t, forced.Forced)
	assert.Zero(t, forced.LastMinute, "minute flush runs first")
	assert.InDelta(t, 0.5, forced.Last10Minute, 1e-12)
	assert.InDelta(t, 0.5, forced.Total, 1e-12)

	assert.Zero(t, acc.State().Window10Minute)
	assert.Equal(t, at(600), acc.State().Last10MinuteFlushTime)
}

func TestStepWithoutForce(t *testing.T) {
	acc := New(zones, 0, t0)
	flush, forced := acc.Step(2, at(1), false)
	assert.Nil(t, flush)
	assert.Nil(t, forced)
	assert.Equal(t, 1, acc.State().FrameCounter)
}

func TestCountersNeverDecreaseBetweenFlushes(t *testing.T) {
	acc := New(zones, 0, t0)
	seq := []types.Observation{0, 1, types.NoHit, 1, 2, 5, types.NoHit, 6, 0, 7, 3}
	prev := acc.State()
	for i, obs := range seq {
		acc.Ingest(obs, at(i))
		st := acc.State()
		assert.GreaterOrEqual(t, st.TotalVolume, prev.TotalVolume)
		assert.GreaterOrEqual(t, st.WindowMinute, prev.WindowMinute)
		assert.GreaterOrEqual(t, st.Window10Minute, prev.Window10Minute)
		assert.GreaterOrEqual(t, st.Drain, prev.Drain)
		prev = st
	}
}
