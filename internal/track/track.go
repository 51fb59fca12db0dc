// Package track links detections of the same real-world object across
// frames, predicts their motion, and decides per frame whether the
// prediction can be trusted to place an obscuring region.
package track

import (
	"gonum.org/v1/gonum/mat"

	"github.com/Danvdl/SecureStudio/internal/detector"
)

// State is the lifecycle state of a Track.
type State int

const (
	// StateNew marks a track created this frame from an unmatched detection.
	StateNew State = iota
	// StateTracked marks a track whose position estimate is trusted.
	StateTracked
	// StateDegraded marks a matched track whose trust fell below the
	// fallback threshold; it renders from the raw detector box.
	StateDegraded
	// StateLost marks a low-trust track with no detector match this frame.
	StateLost
	// StateRemoved marks a track aged out of the table.
	StateRemoved
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateTracked:
		return "tracked"
	case StateDegraded:
		return "degraded"
	case StateLost:
		return "lost"
	case StateRemoved:
		return "removed"
	}
	return "unknown"
}

// historySize bounds the per-track buffer of recent box estimates.
const historySize = 10

// Track is a persistent identity for one detected object. Tracks live
// in a table owned solely by the Tracker; everything outside the
// tracker refers to them by ID.
type Track struct {
	id    int
	class detector.Class

	kf   *kalmanFilter
	mean stateMean
	cov  stateCov

	box       detector.Box // current filter estimate
	lastDet   detector.Box // most recent raw detector box
	smoothed  detector.Box // EMA state, maintained by the smoother
	hasSmooth bool

	score   float32
	trust   float32
	misses  int
	matched bool
	state   State

	startFrame int
	frame      int
	history    []detector.Box
}

func newTrack(kf *kalmanFilter, det detector.Detection) *Track {
	return &Track{
		kf:      kf,
		mean:    make(stateMean, 8),
		cov:     stateCov{mat.NewDense(8, 8, nil)},
		box:     det.Box,
		lastDet: det.Box,
		class:   det.Class,
		score:   det.Score,
		trust:   det.Score,
		matched: true,
		state:   StateNew,
	}
}

// ID returns the persistent track identity. IDs strictly increase as
// tracks are created and are never reused while the track is alive.
func (t *Track) ID() int { return t.id }

// Class returns the sensitive-content class the track covers.
func (t *Track) Class() detector.Class { return t.class }

// Box returns the current motion-filtered box estimate.
func (t *Track) Box() detector.Box { return t.box }

// LastDetection returns the most recent raw detector box.
func (t *Track) LastDetection() detector.Box { return t.lastDet }

// Trust returns the running confidence that the current estimate is
// reliable, in [0,1].
func (t *Track) Trust() float32 { return t.trust }

// Score returns the detector confidence of the latest match.
func (t *Track) Score() float32 { return t.score }

// Misses returns the number of consecutive frames without a detector
// match.
func (t *Track) Misses() int { return t.misses }

// Matched reports whether a fresh detector box was associated with the
// track in the current frame.
func (t *Track) Matched() bool { return t.matched }

// State returns the lifecycle state.
func (t *Track) State() State { return t.state }

// History returns a copy of the recent box estimates, newest last.
func (t *Track) History() []detector.Box {
	out := make([]detector.Box, len(t.history))
	copy(out, t.history)
	return out
}

// activate seeds the motion filter and assigns the persistent ID.
func (t *Track) activate(frame, id int) {
	t.kf.initiate(t.mean, &t.cov, boxToMeasurement(t.box))
	t.id = id
	t.startFrame = frame
	t.frame = frame
	t.pushHistory()
}

// predict advances the motion filter one frame. Called for every live
// track before association so the cost matrix compares predicted
// positions against fresh detections.
func (t *Track) predict() {
	if !t.matched {
		// Without a detector anchor the height-velocity estimate drifts;
		// zero it so the predicted box does not balloon.
		t.mean[7] = 0
	}
	t.kf.predict(t.mean, &t.cov)
	t.box = t.stateBox()
}

// update folds a matched detection into the track.
func (t *Track) update(det detector.Detection, frame int, boost, threshold float32) {
	if err := t.kf.update(t.mean, &t.cov, boxToMeasurement(det.Box)); err != nil {
		// A degenerate covariance means the filter estimate is useless;
		// re-seed it from the measurement.
		t.kf.initiate(t.mean, &t.cov, boxToMeasurement(det.Box))
	}

	t.box = t.stateBox()
	t.lastDet = det.Box
	t.score = det.Score
	t.matched = true
	t.misses = 0
	t.frame = frame

	t.trust += boost * det.Score
	if t.trust > 1 {
		t.trust = 1
	}

	if t.trust >= threshold {
		t.state = StateTracked
	} else {
		t.state = StateDegraded
	}

	t.pushHistory()
}

// miss records a frame with no detector match. The track keeps its
// extrapolated position and its trust decays.
func (t *Track) miss(decay, threshold float32, frame int) {
	t.matched = false
	t.misses++
	t.frame = frame
	t.trust *= decay

	if t.trust >= threshold {
		t.state = StateTracked
	} else {
		t.state = StateLost
	}

	t.pushHistory()
}

func (t *Track) remove() {
	t.state = StateRemoved
}

func (t *Track) pushHistory() {
	if len(t.history) >= historySize {
		copy(t.history, t.history[1:])
		t.history = t.history[:historySize-1]
	}
	t.history = append(t.history, t.box)
}

// stateBox converts the filter state (center, aspect, height) back to
// a box.
func (t *Track) stateBox() detector.Box {
	h := t.mean[3]
	w := t.mean[2] * h
	return detector.NewBox(t.mean[0]-w/2, t.mean[1]-h/2, w, h)
}

func boxToMeasurement(b detector.Box) measurement {
	cx, cy := b.Center()
	return measurement{cx, cy, b.W / b.H, b.H}
}
