// Package detector provides sensitive-region detection on video frames.
package detector

import (
	"context"
	"errors"
	"sync"

	"gocv.io/x/gocv"
)

// ErrDetection indicates the underlying model failed on a single frame.
// The pipeline treats such a frame as having zero detections and keeps
// running on tracker prediction; it never stops the stream for one bad
// frame.
var ErrDetection = errors.New("detection failure")

// Class identifies the kind of sensitive content a detection covers.
type Class int

const (
	ClassFace Class = iota
	ClassPhone
	ClassCard
	ClassDocument
	ClassSkin
	ClassCustom
)

var classNames = map[Class]string{
	ClassFace:     "face",
	ClassPhone:    "phone",
	ClassCard:     "card",
	ClassDocument: "document",
	ClassSkin:     "skin",
	ClassCustom:   "custom",
}

func (c Class) String() string {
	if name, ok := classNames[c]; ok {
		return name
	}
	return "unknown"
}

// ParseClass converts a class name back to its Class value.
func ParseClass(name string) (Class, bool) {
	for c, n := range classNames {
		if n == name {
			return c, true
		}
	}
	return 0, false
}

// Detection is one model output for a single frame: a box, the class of
// sensitive content it covers and the detector-native confidence score.
// Detections are immutable and discarded once consumed by the tracker.
type Detection struct {
	Box   Box
	Class Class
	Score float32
	// ID is a unique number correlating this detection with the track
	// that consumes it.
	ID int64
}

// Detector analyzes a frame and returns sensitive regions found on it.
// Implementations apply only the coarse model confidence floor; the
// per-track trust policy lives in the tracker.
type Detector interface {
	// Detect returns zero or more detections for the frame. A model
	// fault is reported wrapped in ErrDetection.
	Detect(ctx context.Context, frame *gocv.Mat) ([]Detection, error)

	// SetClassMap replaces the model-index to class mapping, for
	// operating-mode switches at runtime. Takes effect from the next
	// Detect call.
	SetClassMap(classes map[int]Class)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for a detector backend.
type Config struct {
	// ModelPath is the path to the ONNX model file.
	ModelPath string

	// InputSize is the square side length of the network input.
	InputSize int

	// MinScore is the coarse confidence floor applied to raw model
	// output before tracking (0.0-1.0).
	MinScore float32

	// ClassMap translates model class indices to pipeline classes.
	// Indices absent from the map are discarded.
	ClassMap map[int]Class
}

// DefaultConfig returns a Config with sensible default values for a
// COCO-trained YOLO model. Only the classes the pipeline knows how to
// obscure are mapped.
func DefaultConfig() Config {
	return Config{
		InputSize: 640,
		MinScore:  0.3,
		ClassMap: map[int]Class{
			0:  ClassFace,  // person, obscured by the face region model
			67: ClassPhone, // cell phone
			73: ClassDocument,
		},
	}
}

// SecurityConfig returns a Config for an open-vocabulary model whose
// prompt classes cover the extended security set: faces, phones,
// cards, documents and exposed skin, in prompt order.
func SecurityConfig() Config {
	return Config{
		InputSize: 640,
		MinScore:  0.3,
		ClassMap: map[int]Class{
			0: ClassFace,
			1: ClassPhone,
			2: ClassCard,
			3: ClassDocument,
			4: ClassSkin,
		},
	}
}

// IDGenerator hands out monotonically increasing detection IDs.
type IDGenerator struct {
	mu sync.Mutex
	id int64
}

// NewIDGenerator returns a generator starting at 1.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

// Next returns the next ID.
func (g *IDGenerator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.id++
	return g.id
}
