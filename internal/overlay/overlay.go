// Package overlay renders the zone layout on top of camera frames so the zone
// geometry can be checked by eye. It never feeds anything back to the meter.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"

	"github.com/stoffej/water-rrd-m.nu/internal/types"
)

// Overlay receives every processed frame with the zone layout and the
// frame's observation.
type Overlay interface {
	Render(img image.Image, zones []types.Zone, obs types.Observation) error
}

var (
	idleColor = color.RGBA{G: 255, A: 255}
	hitColor  = color.RGBA{R: 255, A: 255}
)

// Annotate returns a copy of img with every zone outlined, the hit zone in
// red and the others in green.
func Annotate(img image.Image, zones []types.Zone, obs types.Observation) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)

	for i, z := range zones {
		c := idleColor
		if obs.Hit() && int(obs) == i {
			c = hitColor
		}
		outline(out, z, c)
	}
	return out
}

// outline draws the zone border. Like the capture-time display it covers the
// pixels just past the right and bottom edges.
func outline(img *image.RGBA, z types.Zone, c color.RGBA) {
	for x := z.X; x < z.X+z.Width; x++ {
		img.SetRGBA(x, z.Y, c)
		img.SetRGBA(x, z.Y+z.Height, c)
	}
	for y := z.Y; y < z.Y+z.Height; y++ {
		img.SetRGBA(z.X, y, c)
		img.SetRGBA(z.X+z.Width, y, c)
	}
}

// PNGOverlay writes the annotated frame to a PNG file every Every frames.
type PNGOverlay struct {
	Path  string
	Every int

	frames int
}

func NewPNGOverlay(path string, every int) *PNGOverlay {
	if every <= 0 {
		every = 1
	}
	return &PNGOverlay{Path: path, Every: every}
}

func (p *PNGOverlay) Render(img image.Image, zones []types.Zone, obs types.Observation) error {
	p.frames++
	if (p.frames-1)%p.Every != 0 {
		return nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(p.Path), ".overlay-*.png")
	if err != nil {
		return fmt.Errorf("creating overlay file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := png.Encode(tmp, Annotate(img, zones, obs)); err != nil {
		tmp.Close()
		return fmt.Errorf("encoding overlay: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), p.Path)
}
