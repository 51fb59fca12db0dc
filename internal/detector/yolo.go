package detector

import (
	"context"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// YOLODetector implements Detector using an ONNX YOLO model through the
// OpenCV DNN backend.
type YOLODetector struct {
	config Config
	net    gocv.Net
	ids    *IDGenerator
	mu     sync.Mutex
	closed bool
}

// NewYOLODetector loads the ONNX model at config.ModelPath and prepares
// it for CPU inference.
func NewYOLODetector(config Config) (*YOLODetector, error) {
	if config.InputSize <= 0 {
		config.InputSize = DefaultConfig().InputSize
	}

	net := gocv.ReadNetFromONNX(config.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("load model %s: %w", config.ModelPath, ErrDetection)
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &YOLODetector{
		config: config,
		net:    net,
		ids:    NewIDGenerator(),
	}, nil
}

// Detect runs one inference pass over the frame and returns the mapped,
// score-filtered detections. Any fault raised by the DNN backend is
// caught and reported as ErrDetection so a single corrupt frame cannot
// take down the pipeline.
func (d *YOLODetector) Detect(ctx context.Context, frame *gocv.Mat) (dets []Detection, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, fmt.Errorf("detector closed: %w", ErrDetection)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if frame == nil || frame.Empty() {
		return nil, fmt.Errorf("empty frame: %w", ErrDetection)
	}

	// The OpenCV bindings surface backend faults as panics over cgo.
	defer func() {
		if r := recover(); r != nil {
			dets = nil
			err = fmt.Errorf("model fault: %v: %w", r, ErrDetection)
		}
	}()

	size := d.config.InputSize
	blob := gocv.BlobFromImage(*frame, 1.0/255.0,
		image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")

	output := d.net.Forward("")
	defer output.Close()

	if output.Empty() {
		return nil, fmt.Errorf("empty model output: %w", ErrDetection)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return d.decode(output, frame.Cols(), frame.Rows()), nil
}

// decode translates the raw [1, 4+classes, boxes] output tensor into
// detections in frame coordinates, applying the coarse confidence floor
// and non-maximum suppression.
func (d *YOLODetector) decode(output gocv.Mat, frameW, frameH int) []Detection {
	dims := output.Size()
	if len(dims) < 3 {
		return nil
	}

	rows := dims[1] // 4 box values + one score per model class
	cols := dims[2]

	data := output.Reshape(1, rows)
	defer data.Close()

	xScale := float32(frameW) / float32(d.config.InputSize)
	yScale := float32(frameH) / float32(d.config.InputSize)

	var (
		rects   []image.Rectangle
		boxes   []Box
		scores  []float32
		classes []Class
	)

	for c := 0; c < cols; c++ {
		bestScore := float32(0)
		bestID := -1

		for r := 4; r < rows; r++ {
			if s := data.GetFloatAt(r, c); s > bestScore {
				bestScore = s
				bestID = r - 4
			}
		}

		if bestScore < d.config.MinScore {
			continue
		}

		class, ok := d.config.ClassMap[bestID]
		if !ok {
			continue
		}

		cx := data.GetFloatAt(0, c) * xScale
		cy := data.GetFloatAt(1, c) * yScale
		w := data.GetFloatAt(2, c) * xScale
		h := data.GetFloatAt(3, c) * yScale

		box := NewBox(cx-w/2, cy-h/2, w, h)
		if box.Empty() {
			continue
		}

		rects = append(rects, box.Rect())
		boxes = append(boxes, box)
		scores = append(scores, bestScore)
		classes = append(classes, class)
	}

	if len(rects) == 0 {
		return nil
	}

	var dets []Detection
	for _, idx := range gocv.NMSBoxes(rects, scores, d.config.MinScore, nmsThreshold) {
		dets = append(dets, Detection{
			Box:   boxes[idx],
			Class: classes[idx],
			Score: scores[idx],
			ID:    d.ids.Next(),
		})
	}

	return dets
}

// nmsThreshold is the IoU above which overlapping raw boxes of the same
// object are suppressed.
const nmsThreshold = 0.45

// SetClassMap replaces the class mapping used to decode model output.
func (d *YOLODetector) SetClassMap(classes map[int]Class) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cm := make(map[int]Class, len(classes))
	for idx, c := range classes {
		cm[idx] = c
	}
	d.config.ClassMap = cm
}

// Close releases the DNN network.
func (d *YOLODetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	return d.net.Close()
}
