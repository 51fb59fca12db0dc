// Package config holds the runtime settings for the privacy pipeline
// and validates them at every boundary where they can enter the system.
package config

import (
	"errors"
	"fmt"

	"github.com/Danvdl/SecureStudio/internal/detector"
	"github.com/Danvdl/SecureStudio/internal/render"
)

// ErrInvalid marks a configuration rejected by Validate. Callers match
// it with errors.Is to map validation failures to a 400 at the API
// boundary.
var ErrInvalid = errors.New("invalid configuration")

// Mode selects which detection model set is active.
type Mode int

const (
	// ModeStandard detects faces, phones and documents with the
	// general-purpose model.
	ModeStandard Mode = iota
	// ModeSecurity adds cards and exposed-skin detection with the
	// open-vocabulary model.
	ModeSecurity
)

var modeNames = map[Mode]string{
	ModeStandard: "standard",
	ModeSecurity: "security",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return "unknown"
}

// ParseMode converts a mode name back to its Mode value.
func ParseMode(name string) (Mode, bool) {
	for m, n := range modeNames {
		if n == name {
			return m, true
		}
	}
	return 0, false
}

// ClassSet is a bitmask of detection classes the pipeline acts on.
// Detections of disabled classes are discarded before tracking.
type ClassSet uint32

// Has reports whether the class is enabled.
func (s ClassSet) Has(c detector.Class) bool {
	return s&(1<<uint(c)) != 0
}

// With returns the set with the class enabled.
func (s ClassSet) With(c detector.Class) ClassSet {
	return s | (1 << uint(c))
}

// Without returns the set with the class disabled.
func (s ClassSet) Without(c detector.Class) ClassSet {
	return s &^ (1 << uint(c))
}

// Config is the full runtime configuration. A zero Config is not
// usable; start from Default.
type Config struct {
	Mode    Mode
	Classes ClassSet
	Style   render.Style

	// Smoothing is the EMA factor applied to trusted track boxes,
	// 0 disables smoothing and 0.9 is the allowed maximum.
	Smoothing float32

	// ConfidenceThreshold is the minimum detection score kept.
	ConfidenceThreshold float32

	// FallbackThreshold is the track trust below which the pipeline
	// stops using predicted boxes.
	FallbackThreshold float32

	// MaxAge is how many consecutive missed frames a track survives.
	MaxAge int

	Width  int
	Height int
	FPS    int

	// CameraID is the capture device index.
	CameraID int

	// SinkPath is the virtual camera device, for example /dev/video20.
	SinkPath string

	// MaskURL points at the optional segmentation service. Empty
	// disables mask refinement.
	MaskURL string
}

// Default returns the configuration used on first run.
func Default() Config {
	classes := ClassSet(0).
		With(detector.ClassFace).
		With(detector.ClassPhone).
		With(detector.ClassDocument)

	return Config{
		Mode:                ModeStandard,
		Classes:             classes,
		Style:               render.StylePixelate,
		Smoothing:           0.5,
		ConfidenceThreshold: 0.3,
		FallbackThreshold:   0.5,
		MaxAge:              30,
		Width:               1280,
		Height:              720,
		FPS:                 30,
		CameraID:            0,
		SinkPath:            "/dev/video20",
	}
}

// Validate checks every tunable against its allowed range. All errors
// wrap ErrInvalid.
func (c Config) Validate() error {
	if c.Smoothing < 0 || c.Smoothing > 0.9 {
		return fmt.Errorf("%w: smoothing %.2f outside [0, 0.9]", ErrInvalid, c.Smoothing)
	}
	if c.ConfidenceThreshold < 0.1 || c.ConfidenceThreshold > 0.9 {
		return fmt.Errorf("%w: confidence threshold %.2f outside [0.1, 0.9]", ErrInvalid, c.ConfidenceThreshold)
	}
	if c.FallbackThreshold < 0 || c.FallbackThreshold > 1 {
		return fmt.Errorf("%w: fallback threshold %.2f outside [0, 1]", ErrInvalid, c.FallbackThreshold)
	}
	if c.MaxAge < 1 {
		return fmt.Errorf("%w: max age %d must be at least 1", ErrInvalid, c.MaxAge)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("%w: resolution %dx%d", ErrInvalid, c.Width, c.Height)
	}
	if c.FPS <= 0 || c.FPS > 120 {
		return fmt.Errorf("%w: fps %d outside (0, 120]", ErrInvalid, c.FPS)
	}
	if c.CameraID < 0 {
		return fmt.Errorf("%w: camera id %d", ErrInvalid, c.CameraID)
	}
	if _, ok := modeNames[c.Mode]; !ok {
		return fmt.Errorf("%w: unknown mode %d", ErrInvalid, int(c.Mode))
	}
	if c.Style != render.StyleGaussian && c.Style != render.StylePixelate && c.Style != render.StyleSolid {
		return fmt.Errorf("%w: unknown style %d", ErrInvalid, int(c.Style))
	}
	if c.Classes == 0 {
		return fmt.Errorf("%w: no detection classes enabled", ErrInvalid)
	}
	return nil
}
