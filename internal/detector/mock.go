package detector

import (
	"context"
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It plays back a scripted sequence of per-frame results.
type MockDetector struct {
	mu       sync.Mutex
	script   [][]Detection
	index    int
	err      error
	calls    int
	classMap map[int]Class
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetDetections sets a single result returned by every Detect call.
func (m *MockDetector) SetDetections(dets []Detection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = [][]Detection{dets}
	m.index = 0
}

// SetScript sets a per-frame sequence of results. Each Detect call
// consumes one entry; once exhausted the last entry repeats.
func (m *MockDetector) SetScript(frames [][]Detection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = frames
	m.index = 0
}

// SetError sets the error returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Detect has been invoked.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// SetClassMap records the mapping for later inspection.
func (m *MockDetector) SetClassMap(classes map[int]Class) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classMap = classes
}

// ClassMap returns the mapping last passed to SetClassMap.
func (m *MockDetector) ClassMap() map[int]Class {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.classMap
}

// Detect returns the next scripted result or the configured error.
func (m *MockDetector) Detect(ctx context.Context, frame *gocv.Mat) ([]Detection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++

	if m.err != nil {
		return nil, m.err
	}
	if len(m.script) == 0 {
		return nil, nil
	}

	dets := m.script[m.index]
	if m.index < len(m.script)-1 {
		m.index++
	}

	return dets, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}
