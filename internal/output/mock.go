package output

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// MockSink records published frames for testing.
type MockSink struct {
	mu       sync.Mutex
	running  bool
	frames   []gocv.Mat
	failNext int
}

func NewMockSink() *MockSink {
	return &MockSink{}
}

func (s *MockSink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	return nil
}

func (s *MockSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	for i := range s.frames {
		s.frames[i].Close()
	}
	s.frames = nil
	return nil
}

func (s *MockSink) Publish(frame *gocv.Mat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return fmt.Errorf("%w: not started", ErrSink)
	}
	if s.failNext > 0 {
		s.failNext--
		return fmt.Errorf("%w: injected failure", ErrSink)
	}

	s.frames = append(s.frames, frame.Clone())
	return nil
}

func (s *MockSink) Name() string { return "mock" }

func (s *MockSink) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// FailNext makes the next n Publish calls fail with ErrSink.
func (s *MockSink) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
}

// Count returns the number of frames published so far.
func (s *MockSink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// Frame returns a clone of the i-th published frame. The caller closes
// the returned Mat.
func (s *MockSink) Frame(i int) gocv.Mat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames[i].Clone()
}

// Last returns a clone of the most recently published frame and true,
// or a zero Mat and false when nothing has been published.
func (s *MockSink) Last() (gocv.Mat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return gocv.Mat{}, false
	}
	return s.frames[len(s.frames)-1].Clone(), true
}
