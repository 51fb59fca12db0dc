package track

import "github.com/Danvdl/SecureStudio/internal/detector"

// Smooth applies an exponential moving average to the track's box
// estimate: smoothed = factor*previous + (1-factor)*raw. A factor of 0
// passes the raw box through; 0.9 damps heavily. The EMA state lives on
// the track.
func Smooth(t *Track, raw detector.Box, factor float32) detector.Box {
	if factor <= 0 || !t.hasSmooth {
		t.smoothed = raw
		t.hasSmooth = true
		return raw
	}

	prev := t.smoothed
	t.smoothed = detector.Box{
		X: factor*prev.X + (1-factor)*raw.X,
		Y: factor*prev.Y + (1-factor)*raw.Y,
		W: factor*prev.W + (1-factor)*raw.W,
		H: factor*prev.H + (1-factor)*raw.H,
	}

	return t.smoothed
}

// Reanchor resets the track's smoothing state to the given box. Used
// when the confidence gate falls back to a fresh detector box so a
// reacquired object is covered exactly, without smoothing lag pulling
// the region toward its stale position.
func Reanchor(t *Track, box detector.Box) detector.Box {
	t.smoothed = box
	t.hasSmooth = true
	return box
}
