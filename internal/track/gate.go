package track

import "github.com/Danvdl/SecureStudio/internal/detector"

// Source identifies where the box chosen by the confidence gate came
// from.
type Source int

const (
	// SourceTracker renders the motion-filtered prediction.
	SourceTracker Source = iota
	// SourceDetector renders the raw detector box because trust in the
	// prediction fell below the fallback threshold.
	SourceDetector
	// SourceHold renders the last known box, enlarged, because trust is
	// low and no fresh detector box exists this frame. Over-obscuring
	// is preferred to exposing content at an unknown position.
	SourceHold
)

func (s Source) String() string {
	switch s {
	case SourceTracker:
		return "tracker"
	case SourceDetector:
		return "detector"
	case SourceHold:
		return "hold"
	}
	return "unknown"
}

// holdInflate is the fraction by which a held box is grown on every
// side to cover motion that happened since the last detector match.
const holdInflate = 0.2

// Gate decides per track, per frame, whether the tracker's extrapolated
// box can be rendered or the raw detector box must be used instead.
type Gate struct {
	threshold float32
}

// NewGate creates a Gate with the given fallback threshold.
func NewGate(threshold float32) *Gate {
	return &Gate{threshold: threshold}
}

// Threshold returns the fallback threshold in use.
func (g *Gate) Threshold() float32 {
	return g.threshold
}

// Decide returns the box to obscure for the track this frame and its
// source. A fast-moving object whose prediction went stale is always
// re-anchored to detector ground truth or covered oversized, never
// rendered from an extrapolation the gate cannot vouch for.
func (g *Gate) Decide(t *Track) (detector.Box, Source) {
	if t.Trust() >= g.threshold {
		return t.Box(), SourceTracker
	}

	if t.Matched() {
		return t.LastDetection(), SourceDetector
	}

	return t.LastDetection().Inflate(holdInflate), SourceHold
}
