package track

import (
	"fmt"
	"sync"

	"github.com/Danvdl/SecureStudio/internal/detector"
)

// Config holds the tracker association and trust parameters.
type Config struct {
	// MaxAge is the number of consecutive unmatched frames a track may
	// survive before removal. On the order of one second of frames.
	MaxAge int

	// MatchThreshold is the maximum association cost (1 - IoU) at which
	// a track and a detection may still be linked.
	MatchThreshold float32

	// TrustBoost scales how strongly a fresh detector match raises the
	// per-track trust score.
	TrustBoost float32

	// TrustDecay is the per-frame multiplier applied to trust while a
	// track is carried by prediction alone.
	TrustDecay float32

	// FallbackThreshold is the trust level below which the confidence
	// gate stops rendering from the extrapolated box.
	FallbackThreshold float32
}

// DefaultConfig returns tracker parameters tuned for a 30fps webcam
// feed.
func DefaultConfig() Config {
	return Config{
		MaxAge:            30,
		MatchThreshold:    0.8,
		TrustBoost:        0.4,
		TrustDecay:        0.85,
		FallbackThreshold: 0.5,
	}
}

// Tie-break weights folded into the association cost so that equal-IoU
// candidates resolve deterministically: higher detector confidence
// first, then smaller box-center distance. Both are small enough to
// never override a real IoU difference.
const (
	scoreTieBreak = 1e-3
	distTieBreak  = 1e-4
)

// Tracker owns the table of live tracks and associates each frame's
// detections with them. It is safe for concurrent use; the pipeline
// drives Update while settings changes arrive from other goroutines.
type Tracker struct {
	mu     sync.Mutex
	cfg    Config
	kf     *kalmanFilter
	frame  int
	nextID int
	tracks []*Track
}

// New creates a Tracker with the given configuration.
func New(cfg Config) *Tracker {
	return &Tracker{
		cfg: normalize(cfg),
		kf:  newKalmanFilter(1.0/20, 1.0/160),
	}
}

func normalize(cfg Config) Config {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultConfig().MaxAge
	}
	if cfg.MatchThreshold <= 0 {
		cfg.MatchThreshold = DefaultConfig().MatchThreshold
	}
	return cfg
}

// SetConfig replaces the tracker parameters. Live tracks are kept;
// the new values apply from the next Update.
func (tk *Tracker) SetConfig(cfg Config) {
	tk.mu.Lock()
	defer tk.mu.Unlock()
	tk.cfg = normalize(cfg)
}

// Update advances the tracker by one frame: it predicts every live
// track, solves the track-to-detection assignment, spawns tracks for
// unmatched detections, ages unmatched tracks, and removes tracks past
// MaxAge. It returns the live track set.
func (tk *Tracker) Update(dets []detector.Detection) ([]*Track, error) {
	tk.mu.Lock()
	defer tk.mu.Unlock()

	tk.frame++

	for _, tr := range tk.tracks {
		tr.predict()
	}

	cost := tk.costMatrix(dets)

	matches, freeTracks, freeDets, err := assign(cost, len(tk.tracks), len(dets), tk.cfg.MatchThreshold)
	if err != nil {
		return nil, fmt.Errorf("frame %d: %w", tk.frame, err)
	}

	for _, m := range matches {
		tk.tracks[m[0]].update(dets[m[1]], tk.frame, tk.cfg.TrustBoost, tk.cfg.FallbackThreshold)
	}

	for _, i := range freeTracks {
		tk.tracks[i].miss(tk.cfg.TrustDecay, tk.cfg.FallbackThreshold, tk.frame)
	}

	for _, j := range freeDets {
		tr := newTrack(tk.kf, dets[j])
		tk.nextID++
		tr.activate(tk.frame, tk.nextID)
		tk.tracks = append(tk.tracks, tr)
	}

	// GC pass: drop tracks unmatched for longer than MaxAge.
	live := tk.tracks[:0]
	for _, tr := range tk.tracks {
		if tr.misses > tk.cfg.MaxAge {
			tr.remove()
			continue
		}
		live = append(live, tr)
	}
	tk.tracks = live

	out := make([]*Track, len(tk.tracks))
	copy(out, tk.tracks)
	return out, nil
}

// costMatrix builds the association cost between every live track's
// predicted box and every detection. Class mismatches are priced above
// the cutoff so they can never link.
func (tk *Tracker) costMatrix(dets []detector.Detection) [][]float32 {
	if len(tk.tracks) == 0 || len(dets) == 0 {
		return nil
	}

	cost := make([][]float32, len(tk.tracks))
	for i, tr := range tk.tracks {
		row := make([]float32, len(dets))
		for j, det := range dets {
			if tr.class != det.Class {
				row[j] = tk.cfg.MatchThreshold + 1
				continue
			}

			c := 1 - tr.box.IoU(det.Box)
			c -= det.Score * scoreTieBreak

			d := tr.box.CenterDistance(det.Box)
			c += d / (d + 1) * distTieBreak

			row[j] = c
		}
		cost[i] = row
	}

	return cost
}

// Tracks returns the current live track set.
func (tk *Tracker) Tracks() []*Track {
	tk.mu.Lock()
	defer tk.mu.Unlock()

	out := make([]*Track, len(tk.tracks))
	copy(out, tk.tracks)
	return out
}

// Frame returns the current frame counter.
func (tk *Tracker) Frame() int {
	tk.mu.Lock()
	defer tk.mu.Unlock()
	return tk.frame
}

// Reset clears the track table, for example on a mode switch. Track
// IDs keep increasing across resets so an ID observed once is never
// seen again on a different object.
func (tk *Tracker) Reset() {
	tk.mu.Lock()
	defer tk.mu.Unlock()

	for _, tr := range tk.tracks {
		tr.remove()
	}
	tk.tracks = nil
	tk.frame = 0
}
