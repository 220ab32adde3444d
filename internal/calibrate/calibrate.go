// Package calibrate measures how zones respond over a set of sample frames,
// to help choose zone geometry for a new installation.
package calibrate

import (
	"context"
	"errors"
	"io"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/stoffej/water-rrd-m.nu/internal/detector"
	"github.com/stoffej/water-rrd-m.nu/internal/frames"
	"github.com/stoffej/water-rrd-m.nu/internal/types"
)

// HitRatio is the dark-pixel ratio a zone must exceed to count as a hit.
const HitRatio = 0.8

// Samples holds the dark ratio of every zone in every frame, indexed
// [zone][frame], plus the detector's verdict per frame.
type Samples struct {
	Ratios [][]float64
	Hits   []types.Observation
}

// ZoneStats summarizes one zone over all sample frames.
type ZoneStats struct {
	Zone   int
	Mean   float64
	StdDev float64
	Min    float64
	Median float64
	Max    float64
	// Hits is the number of frames in which the detector picked this zone.
	Hits int
	// Above is the number of frames in which this zone alone would be a hit.
	Above int
	// Margin is the gap between the lowest ratio above HitRatio and the
	// highest ratio below it. Zero when the zone never crossed the threshold.
	Margin float64
}

// Collect grabs frames from src until it is exhausted and records each
// zone's dark ratio.
func Collect(ctx context.Context, src frames.Source, zones []types.Zone) (*Samples, error) {
	s := &Samples{Ratios: make([][]float64, len(zones))}
	for {
		img, err := src.Grab(ctx)
		if errors.Is(err, io.EOF) {
			return s, nil
		}
		if err != nil {
			return nil, err
		}

		for i, z := range zones {
			s.Ratios[i] = append(s.Ratios[i], detector.DarkRatio(img, z))
		}
		s.Hits = append(s.Hits, detector.Detect(img, zones))
	}
}

// Frames returns the number of frames sampled.
func (s *Samples) Frames() int {
	return len(s.Hits)
}

// Summarize computes per-zone statistics.
func Summarize(s *Samples) []ZoneStats {
	out := make([]ZoneStats, len(s.Ratios))
	for i, ratios := range s.Ratios {
		st := ZoneStats{Zone: i}
		for _, h := range s.Hits {
			if int(h) == i {
				st.Hits++
			}
		}
		if len(ratios) == 0 {
			out[i] = st
			continue
		}

		sorted := append([]float64(nil), ratios...)
		sort.Float64s(sorted)

		st.Mean, st.StdDev = stat.MeanStdDev(sorted, nil)
		if len(sorted) < 2 {
			st.StdDev = 0
		}
		st.Min = floats.Min(sorted)
		st.Max = floats.Max(sorted)
		st.Median = stat.Quantile(0.5, stat.Empirical, sorted, nil)

		below, above := -1.0, -1.0
		for _, r := range sorted {
			if r > HitRatio {
				st.Above++
				if above < 0 {
					above = r
				}
			} else {
				below = r
			}
		}
		if above >= 0 && below >= 0 {
			st.Margin = above - below
		}
		out[i] = st
	}
	return out
}
