package types

import (
	"fmt"
	"image"
	"time"
)

// Zone is one rectangular sensing region of the dial. Zones are kept in the
// physical angular order around the dial; that order drives both the
// wraparound arithmetic and the detector's tie-break.
type Zone struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Rect returns the zone as an image rectangle relative to origin.
func (z Zone) Rect(origin image.Point) image.Rectangle {
	return image.Rect(z.X, z.Y, z.X+z.Width, z.Y+z.Height).Add(origin)
}

// Area is the number of pixels covered by the zone.
func (z Zone) Area() int {
	return z.Width * z.Height
}

func (z Zone) String() string {
	return fmt.Sprintf("%dx%d@(%d,%d)", z.Width, z.Height, z.X, z.Y)
}

// Observation is the result of running the detector over one frame: a zone
// index in [0, N) or NoHit.
type Observation int

// NoHit means no zone was judged occluded in the frame.
const NoHit Observation = -1

// Hit reports whether the observation names a zone.
func (o Observation) Hit() bool {
	return o >= 0
}

func (o Observation) String() string {
	if !o.Hit() {
		return "none"
	}
	return fmt.Sprintf("zone %d", int(o))
}

// Snapshot is an immutable record of the rolling counters at a reporting
// instant. Volumes are in meter units (one dial revolution = 1.0).
type Snapshot struct {
	Timestamp    time.Time `gorm:"column:time"`
	MeterName    string    `gorm:"column:metername"`
	LastMinute   float64   `gorm:"column:lastminute"`
	Last10Minute float64   `gorm:"column:last10minute"`
	Drain        float64   `gorm:"column:drain"`
	// Total is the displayed meter reading: cumulative volume plus base offset.
	Total     float64 `gorm:"column:total"`
	FrameRate int     `gorm:"column:framerate"`
	Forced    bool    `gorm:"-"`
}

// TableName customizes the table name used by gorm.
func (Snapshot) TableName() string {
	return "meter_snapshots"
}
