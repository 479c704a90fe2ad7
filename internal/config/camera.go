package config

import (
	"errors"
	"fmt"
	"strings"

	"tripwatch/internal/tripwire"
)

// DefaultSensitivity is the minimum motion region area used when an entry
// does not set one.
const DefaultSensitivity = 1000

// ErrConfigInvalid marks a camera entry that cannot be used.
var ErrConfigInvalid = errors.New("invalid camera config")

// CameraEntry is a camera as written in the config file.
type CameraEntry struct {
	ID          string    `yaml:"id"`
	Name        string    `yaml:"name"`
	Source      string    `yaml:"source"`
	Sensitivity int       `yaml:"sensitivity"`
	Tripwire    []float64 `yaml:"tripwire"`
	Autostart   *bool     `yaml:"autostart"`
}

// Camera is a validated camera definition. It does not change after load.
type Camera struct {
	ID          string
	Name        string
	Source      string
	Sensitivity int
	Tripwire    *tripwire.Line
	Autostart   bool
}

// ParseCameras validates entries independently. Invalid entries are left
// out of the result and reported as errors wrapping ErrConfigInvalid.
func ParseCameras(entries []CameraEntry) ([]Camera, []error) {
	var (
		cameras []Camera
		errs    []error
		seen    = make(map[string]bool)
	)

	for i, e := range entries {
		cam, err := parseCamera(e)
		if err == nil && seen[cam.ID] {
			err = fmt.Errorf("%w: duplicate id %q", ErrConfigInvalid, cam.ID)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("camera #%d: %w", i, err))
			continue
		}
		seen[cam.ID] = true
		cameras = append(cameras, cam)
	}
	return cameras, errs
}

func parseCamera(e CameraEntry) (Camera, error) {
	var missing []string
	if strings.TrimSpace(e.ID) == "" {
		missing = append(missing, "id")
	}
	if strings.TrimSpace(e.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(e.Source) == "" {
		missing = append(missing, "source")
	}
	if len(missing) > 0 {
		return Camera{}, fmt.Errorf("%w: missing %s", ErrConfigInvalid, strings.Join(missing, ", "))
	}

	sensitivity := e.Sensitivity
	switch {
	case sensitivity == 0:
		sensitivity = DefaultSensitivity
	case sensitivity < 0:
		return Camera{}, fmt.Errorf("%w: sensitivity must be positive, got %d", ErrConfigInvalid, sensitivity)
	}

	line, err := tripwire.LineFromSlice(e.Tripwire)
	if err != nil {
		return Camera{}, fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}

	autostart := true
	if e.Autostart != nil {
		autostart = *e.Autostart
	}

	return Camera{
		ID:          strings.TrimSpace(e.ID),
		Name:        e.Name,
		Source:      strings.TrimSpace(e.Source),
		Sensitivity: sensitivity,
		Tripwire:    line,
		Autostart:   autostart,
	}, nil
}
