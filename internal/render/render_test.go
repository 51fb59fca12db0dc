package render

import (
	"image"
	"testing"

	"gocv.io/x/gocv"

	"github.com/Danvdl/SecureStudio/internal/detector"
)

func solidFrame(width, height int, value uint8) gocv.Mat {
	img := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
	img.SetTo(gocv.NewScalar(float64(value), float64(value), float64(value), 0))
	return img
}

func TestParseStyleRoundTrip(t *testing.T) {
	for _, s := range []Style{StyleGaussian, StylePixelate, StyleSolid} {
		got, ok := ParseStyle(s.String())
		if !ok {
			t.Fatalf("ParseStyle(%q) not ok", s.String())
		}
		if got != s {
			t.Errorf("ParseStyle(%q) = %v, want %v", s.String(), got, s)
		}
	}
	if _, ok := ParseStyle("mosaic"); ok {
		t.Error("ParseStyle accepted unknown name")
	}
}

func TestObscureSolid(t *testing.T) {
	img := solidFrame(100, 100, 200)
	defer img.Close()

	Obscure(&img, []Instruction{{
		TrackID: 1,
		Box:     detector.NewBox(20, 20, 40, 40),
		Style:   StyleSolid,
	}})

	inside := img.GetVecbAt(40, 40)
	if inside[0] != 0 || inside[1] != 0 || inside[2] != 0 {
		t.Errorf("inside pixel = %v, want black", inside)
	}
	outside := img.GetVecbAt(5, 5)
	if outside[0] != 200 {
		t.Errorf("outside pixel = %v, want untouched 200", outside)
	}
}

func TestObscureGaussianChangesRegionOnly(t *testing.T) {
	img := solidFrame(100, 100, 200)
	defer img.Close()

	// A high-contrast patch inside the region so the blur has an effect.
	patch := img.Region(image.Rect(30, 30, 40, 40))
	patch.SetTo(gocv.NewScalar(0, 0, 0, 0))
	patch.Close()

	Obscure(&img, []Instruction{{
		Box:   detector.NewBox(20, 20, 40, 40),
		Style: StyleGaussian,
	}})

	// Blurring smears the black patch edge; the pixel just outside it
	// but inside the box can no longer be pure 200.
	edge := img.GetVecbAt(35, 42)
	if edge[0] == 200 {
		t.Error("pixel next to contrast edge unchanged, expected blur bleed")
	}
	outside := img.GetVecbAt(5, 5)
	if outside[0] != 200 {
		t.Errorf("outside pixel = %v, want untouched 200", outside)
	}
}

func TestObscurePixelate(t *testing.T) {
	img := solidFrame(100, 100, 200)
	defer img.Close()

	patch := img.Region(image.Rect(30, 30, 35, 35))
	patch.SetTo(gocv.NewScalar(0, 0, 0, 0))
	patch.Close()

	Obscure(&img, []Instruction{{
		Box:   detector.NewBox(20, 20, 40, 40),
		Style: StylePixelate,
	}})

	// The 5x5 black patch lands inside a single coarse block, so the
	// whole block takes its value after the down/up resize.
	block := img.GetVecbAt(31, 31)
	if block[0] == 200 && block[1] == 200 && block[2] == 200 {
		t.Error("region not pixelated")
	}
	outside := img.GetVecbAt(70, 70)
	if outside[0] != 200 {
		t.Errorf("outside pixel = %v, want untouched 200", outside)
	}
}

func TestObscureClampsToFrame(t *testing.T) {
	img := solidFrame(50, 50, 200)
	defer img.Close()

	// Partially and fully out-of-bounds boxes must not panic.
	Obscure(&img, []Instruction{
		{Box: detector.NewBox(40, 40, 30, 30), Style: StyleSolid},
		{Box: detector.NewBox(-10, -10, 5, 5), Style: StyleGaussian},
		{Box: detector.NewBox(200, 200, 10, 10), Style: StylePixelate},
	})

	corner := img.GetVecbAt(45, 45)
	if corner[0] != 0 {
		t.Errorf("clamped corner pixel = %v, want black", corner)
	}
}

func TestObscurePolygonMask(t *testing.T) {
	img := solidFrame(100, 100, 200)
	defer img.Close()

	Obscure(&img, []Instruction{{
		Box:   detector.NewBox(20, 20, 60, 60),
		Style: StyleGaussian,
		Mask: []image.Point{
			{X: 30, Y: 30}, {X: 70, Y: 30}, {X: 70, Y: 70}, {X: 30, Y: 70},
		},
	}})

	inside := img.GetVecbAt(50, 50)
	if inside[0] != 0 {
		t.Errorf("masked pixel = %v, want black", inside)
	}
	outside := img.GetVecbAt(10, 10)
	if outside[0] != 200 {
		t.Errorf("outside pixel = %v, want untouched 200", outside)
	}
}

func TestObscureTrailingMaskStillCoversBox(t *testing.T) {
	img := solidFrame(100, 100, 200)
	defer img.Close()

	// The subject has moved since the polygon was computed: the box is
	// at x=40 while the polygon still covers x=10. Both regions must be
	// obscured so the current position is never published in the clear.
	Obscure(&img, []Instruction{{
		Box:   detector.NewBox(40, 20, 30, 30),
		Style: StyleSolid,
		Mask: []image.Point{
			{X: 10, Y: 20}, {X: 35, Y: 20}, {X: 35, Y: 50}, {X: 10, Y: 50},
		},
	}})

	boxPx := img.GetVecbAt(35, 55)
	if boxPx[0] != 0 {
		t.Errorf("pixel inside current box = %v, want black", boxPx)
	}
	maskPx := img.GetVecbAt(35, 20)
	if maskPx[0] != 0 {
		t.Errorf("pixel inside trailing polygon = %v, want black", maskPx)
	}
	outside := img.GetVecbAt(80, 80)
	if outside[0] != 200 {
		t.Errorf("outside pixel = %v, want untouched 200", outside)
	}
}

func TestBlackout(t *testing.T) {
	img := solidFrame(64, 48, 200)
	defer img.Close()

	Blackout(&img)

	for _, pt := range []image.Point{{X: 0, Y: 0}, {X: 63, Y: 47}, {X: 30, Y: 20}} {
		v := img.GetVecbAt(pt.Y, pt.X)
		if v[0] != 0 || v[1] != 0 || v[2] != 0 {
			t.Fatalf("pixel at %v = %v, want black", pt, v)
		}
	}
}

func TestObscureDeterministic(t *testing.T) {
	a := solidFrame(80, 80, 128)
	defer a.Close()
	b := solidFrame(80, 80, 128)
	defer b.Close()

	ins := []Instruction{{Box: detector.NewBox(10, 10, 50, 50), Style: StylePixelate}}
	Obscure(&a, ins)
	Obscure(&b, ins)

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(a, b, &diff)
	if gocv.CountNonZero(diff.Reshape(1, diff.Rows()*3)) != 0 {
		t.Error("identical inputs produced different output")
	}
}
