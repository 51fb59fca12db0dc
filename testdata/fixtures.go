// Package testdata builds synthetic video frames and detection scripts
// for pipeline tests.
package testdata

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/Danvdl/SecureStudio/internal/detector"
)

// SolidFrame returns a BGR frame filled with a single gray value.
// The caller closes the returned Mat.
func SolidFrame(width, height int, value uint8) *gocv.Mat {
	mat := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
	mat.SetTo(gocv.NewScalar(float64(value), float64(value), float64(value), 0))
	return &mat
}

// FrameWithPatch returns a gray frame with a contrasting rectangle at
// the given box, standing in for a subject the detector would find.
func FrameWithPatch(width, height int, box detector.Box) *gocv.Mat {
	mat := SolidFrame(width, height, 180)

	rect := box.Clamp(width, height).Rect()
	if rect.Empty() {
		return mat
	}
	region := mat.Region(rect)
	region.SetTo(gocv.NewScalar(20, 40, 60, 0))
	region.Close()

	return mat
}

// Sequence builds frames showing a patch moving along the given boxes,
// one frame per box.
func Sequence(width, height int, boxes []detector.Box) []*gocv.Mat {
	frames := make([]*gocv.Mat, len(boxes))
	for i, box := range boxes {
		frames[i] = FrameWithPatch(width, height, box)
	}
	return frames
}

// CloseAll closes every Mat in the slice.
func CloseAll(frames []*gocv.Mat) {
	for _, f := range frames {
		f.Close()
	}
}

// Face returns a face detection at the given box with the given score.
func Face(box detector.Box, score float32) detector.Detection {
	return detector.Detection{Box: box, Class: detector.ClassFace, Score: score}
}

// Drift returns boxes translating from start by (dx, dy) per step.
func Drift(start detector.Box, dx, dy float32, steps int) []detector.Box {
	boxes := make([]detector.Box, steps)
	for i := range boxes {
		boxes[i] = detector.NewBox(
			start.X+float32(i)*dx,
			start.Y+float32(i)*dy,
			start.W,
			start.H,
		)
	}
	return boxes
}

// Region converts a box to the image rectangle it covers inside a
// frame of the given size.
func Region(box detector.Box, width, height int) image.Rectangle {
	return box.Clamp(width, height).Rect()
}
