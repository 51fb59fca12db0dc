package detector

import "image"

// Box is an axis-aligned bounding box in frame pixel space.
// Coordinates are kept as float32 so tracking and smoothing do not
// accumulate rounding error across frames.
type Box struct {
	X float32
	Y float32
	W float32
	H float32
}

// NewBox creates a Box from a top-left corner and dimensions.
func NewBox(x, y, w, h float32) Box {
	return Box{X: x, Y: y, W: w, H: h}
}

// Right returns the x coordinate of the right edge.
func (b Box) Right() float32 {
	return b.X + b.W
}

// Bottom returns the y coordinate of the bottom edge.
func (b Box) Bottom() float32 {
	return b.Y + b.H
}

// Area returns the box area in square pixels.
func (b Box) Area() float32 {
	if b.Empty() {
		return 0
	}
	return b.W * b.H
}

// Empty reports whether the box has no usable extent.
func (b Box) Empty() bool {
	return b.W <= 0 || b.H <= 0
}

// Center returns the box center point.
func (b Box) Center() (float32, float32) {
	return b.X + b.W/2, b.Y + b.H/2
}

// IoU returns the intersection-over-union with another box in [0,1].
func (b Box) IoU(o Box) float32 {
	ix1 := maxf(b.X, o.X)
	iy1 := maxf(b.Y, o.Y)
	ix2 := minf(b.Right(), o.Right())
	iy2 := minf(b.Bottom(), o.Bottom())

	if ix2 <= ix1 || iy2 <= iy1 {
		return 0
	}

	inter := (ix2 - ix1) * (iy2 - iy1)
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}

	return inter / union
}

// CenterDistance returns the squared distance between the centers of
// two boxes. Squared distance is enough for ordering comparisons.
func (b Box) CenterDistance(o Box) float32 {
	bx, by := b.Center()
	ox, oy := o.Center()
	dx := bx - ox
	dy := by - oy
	return dx*dx + dy*dy
}

// Inflate grows the box by the given fraction on every side, keeping
// the center fixed. Inflate(0.2) makes each dimension 40% larger.
func (b Box) Inflate(frac float32) Box {
	dw := b.W * frac
	dh := b.H * frac
	return Box{
		X: b.X - dw,
		Y: b.Y - dh,
		W: b.W + 2*dw,
		H: b.H + 2*dh,
	}
}

// Clamp restricts the box to the frame bounds [0,width)x[0,height).
// A box entirely outside the frame clamps to an empty box.
func (b Box) Clamp(width, height int) Box {
	x1 := maxf(b.X, 0)
	y1 := maxf(b.Y, 0)
	x2 := minf(b.Right(), float32(width))
	y2 := minf(b.Bottom(), float32(height))

	if x2 <= x1 || y2 <= y1 {
		return Box{}
	}

	return Box{X: x1, Y: y1, W: x2 - x1, H: y2 - y1}
}

// Rect converts the box to an image.Rectangle with truncated corners.
func (b Box) Rect() image.Rectangle {
	return image.Rect(int(b.X), int(b.Y), int(b.Right()), int(b.Bottom()))
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
