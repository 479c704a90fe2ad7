package camera

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// SequenceSource plays a directory of still images in name order, as a
// recorded clip. It reports io.EOF after the last image.
type SequenceSource struct {
	dir string

	mu    sync.Mutex
	files []string
	next  int
	open  bool
}

// NewSequenceSource creates an unopened image sequence source.
func NewSequenceSource(dir string) *SequenceSource {
	return &SequenceSource{dir: dir}
}

// Kind returns KindImageSequence.
func (s *SequenceSource) Kind() Kind { return KindImageSequence }

// Open lists the directory. It fails when no images are present.
func (s *SequenceSource) Open(ctx context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, filepath.Join(s.dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return fmt.Errorf("%w: no images in %s", ErrSourceUnavailable, s.dir)
	}
	slices.Sort(files)

	s.mu.Lock()
	s.files = files
	s.next = 0
	s.open = true
	s.mu.Unlock()
	return nil
}

// IsOpen reports whether Open succeeded and Close has not been called.
func (s *SequenceSource) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Read decodes the next image.
func (s *SequenceSource) Read() (image.Image, error) {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return nil, ErrFrameRead
	}
	if s.next >= len(s.files) {
		s.mu.Unlock()
		return nil, io.EOF
	}
	path := s.files[s.next]
	s.next++
	s.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFrameRead, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrFrameRead, filepath.Base(path), err)
	}
	return img, nil
}

// Rewind moves back to the first image.
func (s *SequenceSource) Rewind() error {
	s.mu.Lock()
	s.next = 0
	s.mu.Unlock()
	return nil
}

// Close releases the listing.
func (s *SequenceSource) Close() error {
	s.mu.Lock()
	s.open = false
	s.files = nil
	s.mu.Unlock()
	return nil
}
