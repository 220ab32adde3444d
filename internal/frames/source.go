// Package frames supplies camera frames to the meter loop.
//
// Frame capture itself is done by an external tool (fswebcam, a v4l2 capture
// daemon, ...) that keeps writing still images to disk. A Source turns those
// images into normalized RGBA frames of the configured resolution.
package frames

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"time"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"

	"github.com/stoffej/water-rrd-m.nu/pkg/config"
)

// Source delivers one frame per Grab call. Grab may block.
type Source interface {
	Grab(ctx context.Context) (*image.RGBA, error)
	Close() error
}

// New creates the Source described by the camera configuration.
func New(c config.CameraData) (Source, error) {
	if c.Width <= 0 || c.Height <= 0 {
		return nil, fmt.Errorf("invalid camera resolution %dx%d", c.Width, c.Height)
	}

	switch c.Type {
	case "file", "":
		return NewFileSource(c.Path, c.Width, c.Height, c.Interval), nil
	case "directory":
		return NewDirectorySource(c.Path, c.Width, c.Height)
	default:
		return nil, fmt.Errorf("unknown camera type: %s", c.Type)
	}
}

// decodeFile reads an image from disk and normalizes it to width x height.
func decodeFile(path string, width, height int) (*image.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	return normalize(img, width, height), nil
}

// normalize scales img to width x height when needed and returns an RGBA
// copy anchored at the origin.
func normalize(img image.Image, width, height int) *image.RGBA {
	b := img.Bounds()
	if b.Dx() != width || b.Dy() != height {
		img = resize.Resize(uint(width), uint(height), img, resize.Bilinear)
		b = img.Bounds()
	}

	if rgba, ok := img.(*image.RGBA); ok && b.Min == (image.Point{}) {
		return rgba
	}

	out := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// wait blocks for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
