// Package output publishes sanitized frames to a virtual camera
// device. The sink is the only exit for video; raw frames never pass
// through it.
package output

import (
	"errors"

	"gocv.io/x/gocv"
)

// ErrSink marks publish failures. The pipeline retries a failed write
// once and halts if the retry also fails.
var ErrSink = errors.New("sink failure")

// Sink defines the interface for frame output mechanisms.
// This allows swapping between different output methods:
// - V4L2 virtual camera
// - MJPEG HTTP stream
// - in-memory recording for tests
type Sink interface {
	// Start initializes the output mechanism
	Start() error

	// Close cleanly shuts down the output
	Close() error

	// Publish sends a BGR frame to the output
	Publish(frame *gocv.Mat) error

	// Name returns a human-readable name for this output type
	Name() string

	// IsRunning returns true if the output is currently active
	IsRunning() bool
}

// Config holds common configuration for all sink types
type Config struct {
	Path   string
	Width  int
	Height int
	FPS    int
}
