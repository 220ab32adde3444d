package frames

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FileSource re-reads a single snapshot image on every Grab. The capture
// tool is expected to replace the file atomically.
type FileSource struct {
	path     string
	width    int
	height   int
	interval time.Duration
	last     time.Time
}

func NewFileSource(path string, width, height int, interval time.Duration) *FileSource {
	return &FileSource{
		path:     path,
		width:    width,
		height:   height,
		interval: interval,
	}
}

// Grab waits out the remainder of the polling interval, then decodes the file.
func (s *FileSource) Grab(ctx context.Context) (*image.RGBA, error) {
	if !s.last.IsZero() {
		if err := wait(ctx, s.interval-time.Since(s.last)); err != nil {
			return nil, err
		}
	}
	s.last = time.Now()

	img, err := decodeFile(s.path, s.width, s.height)
	if err != nil {
		return nil, fmt.Errorf("unable to grab image: %w", err)
	}
	return img, nil
}

func (s *FileSource) Close() error {
	return nil
}

var frameExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
}

// DirectorySource replays the images of a directory in file name order.
// Grab returns io.EOF once every frame has been delivered.
type DirectorySource struct {
	files  []string
	next   int
	width  int
	height int
}

func NewDirectorySource(dir string, width, height int) (*DirectorySource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading frame directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !frameExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)

	return &DirectorySource{
		files:  files,
		width:  width,
		height: height,
	}, nil
}

func (s *DirectorySource) Grab(ctx context.Context) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= len(s.files) {
		return nil, io.EOF
	}
	path := s.files[s.next]
	s.next++
	return decodeFile(path, s.width, s.height)
}

// Len is the number of frames in the directory.
func (s *DirectorySource) Len() int {
	return len(s.files)
}

func (s *DirectorySource) Close() error {
	return nil
}
