// Package detector decides which dial zone, if any, is covered by the meter's
// marker in a single frame.
package detector

import (
	"errors"
	"fmt"
	"image"

	"github.com/stoffej/water-rrd-m.nu/internal/types"
)

// A zone is hit when strictly more than hitNumerator/hitDenominator of its
// pixels are dark. Integer form keeps the 80% boundary exact.
const (
	hitNumerator   = 4
	hitDenominator = 5

	// darkThreshold is the 8-bit channel value below which a pixel counts as dark.
	darkThreshold = 128
)

// ErrNoZones is returned by ValidateZones for an empty zone table.
var ErrNoZones = errors.New("no zones configured")

// Detect returns the first zone, in configured order, whose dark-pixel ratio
// is above 80%. Later zones are not examined once a hit is found, so an
// earlier zone wins if geometries overlap. The frame is not modified.
func Detect(img image.Image, zones []types.Zone) types.Observation {
	for i, z := range zones {
		if isHit(countDark(img, z), z.Area()) {
			return types.Observation(i)
		}
	}
	return types.NoHit
}

// DarkRatio returns the fraction of dark pixels in the zone.
func DarkRatio(img image.Image, z types.Zone) float64 {
	area := z.Area()
	if area == 0 {
		return 0
	}
	return float64(countDark(img, z)) / float64(area)
}

func isHit(dark, area int) bool {
	return area > 0 && dark*hitDenominator > area*hitNumerator
}

// countDark counts pixels with at least one RGB channel below darkThreshold.
func countDark(img image.Image, z types.Zone) int {
	r := z.Rect(img.Bounds().Min)

	if rgba, ok := img.(*image.RGBA); ok {
		return countDarkRGBA(rgba, r)
	}

	dark := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			cr, cg, cb, _ := img.At(x, y).RGBA()
			if cr>>8 < darkThreshold || cg>>8 < darkThreshold || cb>>8 < darkThreshold {
				dark++
			}
		}
	}
	return dark
}

func countDarkRGBA(img *image.RGBA, r image.Rectangle) int {
	dark := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		off := img.PixOffset(r.Min.X, y)
		for x := r.Min.X; x < r.Max.X; x++ {
			p := img.Pix[off : off+3 : off+3]
			if p[0] < darkThreshold || p[1] < darkThreshold || p[2] < darkThreshold {
				dark++
			}
			off += 4
		}
	}
	return dark
}

// ValidateZones rejects zone tables that cannot be evaluated against frames
// of the given size. It is meant to run once at startup.
func ValidateZones(zones []types.Zone, width, height int) error {
	if len(zones) == 0 {
		return ErrNoZones
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", width, height)
	}

	frame := image.Rect(0, 0, width, height)
	for i, z := range zones {
		if z.Width <= 0 || z.Height <= 0 {
			return fmt.Errorf("zone %d (%v) has zero area", i, z)
		}
		if z.X < 0 || z.Y < 0 || !z.Rect(image.Point{}).In(frame) {
			return fmt.Errorf("zone %d (%v) lies outside the %dx%d frame", i, z, width, height)
		}
	}
	return nil
}
