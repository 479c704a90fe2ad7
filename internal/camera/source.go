package camera

import (
	"context"
	"errors"
	"image"
	"os"
	"strconv"
	"strings"
)

var (
	// ErrSourceUnavailable is returned when a source cannot be opened.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrFrameRead is a transient read failure.
	ErrFrameRead = errors.New("frame read failed")
	// ErrNoFrame means the source is healthy but has nothing new yet.
	ErrNoFrame = errors.New("no frame ready")
)

// Kind classifies a source descriptor.
type Kind int

const (
	KindDevice Kind = iota
	KindNetwork
	KindFile
	KindImageSequence
)

func (k Kind) String() string {
	switch k {
	case KindDevice:
		return "device"
	case KindNetwork:
		return "network"
	case KindFile:
		return "file"
	case KindImageSequence:
		return "image_sequence"
	default:
		return "unknown"
	}
}

// Live reports whether read failures are transient rather than end of
// stream.
func (k Kind) Live() bool {
	return k == KindDevice || k == KindNetwork
}

// Source is a handle on one video feed. Read must not block: a source that
// has nothing ready returns ErrNoFrame. File-backed sources return io.EOF
// at end of stream.
type Source interface {
	Open(ctx context.Context) error
	IsOpen() bool
	Read() (image.Image, error)
	Close() error
	Kind() Kind
}

// Rewinder is implemented by sources that can restart from the first frame.
type Rewinder interface {
	Rewind() error
}

// SourceFactory builds an unopened source for a descriptor.
type SourceFactory func(descriptor string) Source

// Classify works out what kind of feed a descriptor names: a bare integer
// is a local device index, a URI is a network stream, a directory is an
// image sequence and anything else is a video file.
func Classify(descriptor string) Kind {
	d := strings.TrimSpace(descriptor)
	if _, err := strconv.Atoi(d); err == nil {
		return KindDevice
	}
	if strings.HasPrefix(d, "/dev/video") {
		return KindDevice
	}
	if isNetworkSource(d) {
		return KindNetwork
	}
	if info, err := os.Stat(d); err == nil && info.IsDir() {
		return KindImageSequence
	}
	return KindFile
}

// isNetworkSource checks if a descriptor is a streaming URL.
func isNetworkSource(device string) bool {
	return strings.HasPrefix(device, "http://") ||
		strings.HasPrefix(device, "https://") ||
		strings.HasPrefix(device, "rtsp://") ||
		strings.HasPrefix(device, "rtmp://")
}

// devicePath maps a device index to its V4L2 node.
func devicePath(descriptor string) string {
	if n, err := strconv.Atoi(strings.TrimSpace(descriptor)); err == nil {
		return "/dev/video" + strconv.Itoa(n)
	}
	return descriptor
}

// NewSourceFactory returns a factory producing ffmpeg-backed sources for
// devices, network streams and video files, and directory readers for
// image sequences.
func NewSourceFactory(opts FFmpegOptions) SourceFactory {
	return func(descriptor string) Source {
		kind := Classify(descriptor)
		if kind == KindImageSequence {
			return NewSequenceSource(descriptor)
		}
		return NewFFmpegSource(descriptor, kind, opts)
	}
}
