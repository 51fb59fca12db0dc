package output

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// V4L2Sink writes raw BGR24 frames to a v4l2loopback device such as
// /dev/video20. The loopback module must be configured for the same
// resolution and pixel format; conferencing apps then see the device
// as a regular webcam.
type V4L2Sink struct {
	cfg     Config
	mu      sync.Mutex
	file    *os.File
	running bool
	scratch gocv.Mat
}

// NewV4L2Sink creates a sink for the device at cfg.Path.
func NewV4L2Sink(cfg Config) *V4L2Sink {
	return &V4L2Sink{cfg: cfg}
}

func (s *V4L2Sink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	file, err := os.OpenFile(s.cfg.Path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrSink, s.cfg.Path, err)
	}

	s.file = file
	s.scratch = gocv.NewMat()
	s.running = true

	return nil
}

func (s *V4L2Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.running = false
	s.scratch.Close()

	err := s.file.Close()
	s.file = nil
	if err != nil {
		return fmt.Errorf("%w: close %s: %v", ErrSink, s.cfg.Path, err)
	}
	return nil
}

// Publish writes one frame. Frames that do not match the configured
// resolution are resized first so the device always receives the byte
// count it expects.
func (s *V4L2Sink) Publish(frame *gocv.Mat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.file == nil {
		return fmt.Errorf("%w: not started", ErrSink)
	}
	if frame == nil || frame.Empty() {
		return fmt.Errorf("%w: empty frame", ErrSink)
	}

	out := frame
	if frame.Cols() != s.cfg.Width || frame.Rows() != s.cfg.Height {
		gocv.Resize(*frame, &s.scratch, image.Pt(s.cfg.Width, s.cfg.Height), 0, 0, gocv.InterpolationLinear)
		out = &s.scratch
	}

	data := out.ToBytes()
	if _, err := s.file.Write(data); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrSink, s.cfg.Path, err)
	}
	return nil
}

func (s *V4L2Sink) Name() string {
	return fmt.Sprintf("v4l2 %s", s.cfg.Path)
}

func (s *V4L2Sink) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
