// Package snapshot stores still frames on disk or in S3-compatible object
// storage and indexes them in the database.
package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"tripwatch/internal/database"
)

// Indexer records stored snapshots.
type Indexer interface {
	IndexSnapshot(ctx context.Context, snap *database.SnapshotRecord) error
}

// ObjectName builds the file or object name for a snapshot:
// <camera>_<yyyymmdd_hhmmss.mmm>.jpg, with the camera name reduced to a
// filesystem-safe slug.
func ObjectName(cameraName string, ts time.Time) string {
	return fmt.Sprintf("%s_%s.jpg", slug(cameraName), ts.UTC().Format("20060102_150405.000"))
}

func slug(name string) string {
	s := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-':
			return unicode.ToLower(r)
		default:
			return '_'
		}
	}, strings.TrimSpace(name))
	if s == "" {
		return "camera"
	}
	return s
}

// FileStore writes snapshots into a directory.
type FileStore struct {
	dir   string
	index Indexer
}

// NewFileStore creates dir if needed. index may be nil.
func NewFileStore(dir string, index Indexer) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &FileStore{dir: dir, index: index}, nil
}

// SaveSnapshot writes data and returns the file path.
func (s *FileStore) SaveSnapshot(ctx context.Context, cameraName string, ts time.Time, data []byte) (string, error) {
	path := filepath.Join(s.dir, ObjectName(cameraName, ts))

	// write then rename so readers never see a partial file
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("write snapshot: %w", err)
	}

	if err := index(ctx, s.index, cameraName, path, len(data), ts); err != nil {
		return "", err
	}
	return path, nil
}

func index(ctx context.Context, idx Indexer, cameraName, location string, size int, ts time.Time) error {
	if idx == nil {
		return nil
	}
	err := idx.IndexSnapshot(ctx, &database.SnapshotRecord{
		ID:         strings.TrimSuffix(filepath.Base(location), ".jpg"),
		CameraName: cameraName,
		Location:   location,
		Size:       size,
		TakenAt:    ts,
	})
	if err != nil {
		return fmt.Errorf("index snapshot: %w", err)
	}
	return nil
}
