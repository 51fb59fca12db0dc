// Package render applies obscuring effects to video frames using GoCV
// (OpenCV). All operations are deterministic and clamp their regions to
// the frame bounds.
package render

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/Danvdl/SecureStudio/internal/detector"
)

// Style selects the obscuring effect applied to a region.
type Style int

const (
	// StyleGaussian blurs the region with a kernel scaled to its size.
	StyleGaussian Style = iota
	// StylePixelate replaces the region with a coarse block grid.
	StylePixelate
	// StyleSolid paints the region with an opaque black rectangle.
	StyleSolid
)

var styleNames = map[Style]string{
	StyleGaussian: "gaussian",
	StylePixelate: "pixelate",
	StyleSolid:    "solid",
}

func (s Style) String() string {
	if name, ok := styleNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseStyle converts a style name back to its Style value.
func ParseStyle(name string) (Style, bool) {
	for s, n := range styleNames {
		if n == name {
			return s, true
		}
	}
	return 0, false
}

// Pixelation block grid: the region is reduced to roughly this many
// blocks per axis before upscaling, giving the classic censored look
// independent of region size.
const pixelBlocks = 10

// maxKernel caps the gaussian kernel so very large regions stay cheap.
const maxKernel = 51

// Instruction is the final obscuring order for one track in the
// current frame.
type Instruction struct {
	TrackID int
	Box     detector.Box
	Style   Style

	// Mask optionally carries a contour polygon (frame coordinates)
	// supplied by the segmentation service. It is filled solid on top
	// of the box-wide style, so a polygon that trails the subject by a
	// few frames can only extend coverage, never shrink it.
	Mask []image.Point
}

// Obscure applies every instruction to the frame in place. Boxes are
// clamped to the frame first; empty results are skipped. Nothing
// outside the frame is read or written.
func Obscure(img *gocv.Mat, instructions []Instruction) {
	if img == nil || img.Empty() {
		return
	}

	width := img.Cols()
	height := img.Rows()

	for _, ins := range instructions {
		box := ins.Box.Clamp(width, height)
		if box.Empty() {
			continue
		}

		rect := box.Rect()

		switch ins.Style {
		case StylePixelate:
			pixelate(img, rect)
		case StyleSolid:
			gocv.Rectangle(img, rect, color.RGBA{}, -1)
		default:
			gaussian(img, rect)
		}

		if len(ins.Mask) >= 3 {
			fillMask(img, ins.Mask, width, height)
		}
	}
}

// Blackout paints the entire frame black. Used for the panic override.
func Blackout(img *gocv.Mat) {
	if img == nil || img.Empty() {
		return
	}
	img.SetTo(gocv.NewScalar(0, 0, 0, 0))
}

func gaussian(img *gocv.Mat, rect image.Rectangle) {
	region := img.Region(rect)
	defer region.Close()

	k := kernelFor(rect)
	if k <= 1 {
		return
	}

	gocv.GaussianBlur(region, &region, image.Pt(k, k), 0, 0, gocv.BorderDefault)
}

// kernelFor scales the blur kernel to the region so small boxes are not
// over-blurred and large ones are actually unreadable. Kernel sizes
// must be odd.
func kernelFor(rect image.Rectangle) int {
	k := rect.Dx()
	if rect.Dy() < k {
		k = rect.Dy()
	}
	k = k/2 | 1
	if k > maxKernel {
		k = maxKernel
	}
	return k
}

func pixelate(img *gocv.Mat, rect image.Rectangle) {
	region := img.Region(rect)
	defer region.Close()

	w := rect.Dx() / pixelBlocks
	h := rect.Dy() / pixelBlocks
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	small := gocv.NewMat()
	defer small.Close()

	gocv.Resize(region, &small, image.Pt(w, h), 0, 0, gocv.InterpolationLinear)
	gocv.Resize(small, &region, image.Pt(rect.Dx(), rect.Dy()), 0, 0, gocv.InterpolationNearestNeighbor)
}

func fillMask(img *gocv.Mat, polygon []image.Point, width, height int) {
	clipped := make([]image.Point, 0, len(polygon))
	for _, p := range polygon {
		if p.X < 0 {
			p.X = 0
		}
		if p.Y < 0 {
			p.Y = 0
		}
		if p.X >= width {
			p.X = width - 1
		}
		if p.Y >= height {
			p.Y = height - 1
		}
		clipped = append(clipped, p)
	}

	pts := gocv.NewPointsVectorFromPoints([][]image.Point{clipped})
	defer pts.Close()

	gocv.FillPoly(img, pts, color.RGBA{})
}
