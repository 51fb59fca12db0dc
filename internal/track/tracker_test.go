package track

import (
	"testing"

	"github.com/Danvdl/SecureStudio/internal/detector"
)

func det(x, y, w, h, score float32, class detector.Class, id int64) detector.Detection {
	return detector.Detection{
		Box:   detector.NewBox(x, y, w, h),
		Class: class,
		Score: score,
		ID:    id,
	}
}

func TestTracker_StableIDsAcrossFrames(t *testing.T) {
	tk := New(DefaultConfig())

	tracks, err := tk.Update([]detector.Detection{
		det(10, 10, 50, 50, 0.9, detector.ClassFace, 1),
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if len(tracks) != 1 {
		t.Fatalf("frame 1: %d tracks, want 1", len(tracks))
	}
	id := tracks[0].ID()

	// The object drifts slightly; the track must keep its identity.
	for i := 1; i <= 5; i++ {
		tracks, err = tk.Update([]detector.Detection{
			det(10+float32(i)*2, 10, 50, 50, 0.9, detector.ClassFace, int64(i+1)),
		})
		if err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		if len(tracks) != 1 {
			t.Fatalf("frame %d: %d tracks, want 1", i+1, len(tracks))
		}
		if tracks[0].ID() != id {
			t.Fatalf("frame %d: track ID changed from %d to %d", i+1, id, tracks[0].ID())
		}
	}
}

func TestTracker_IDsStrictlyIncrease(t *testing.T) {
	tk := New(DefaultConfig())

	tracks, err := tk.Update([]detector.Detection{
		det(10, 10, 40, 40, 0.9, detector.ClassFace, 1),
		det(300, 10, 40, 40, 0.9, detector.ClassPhone, 2),
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if len(tracks) != 2 {
		t.Fatalf("%d tracks, want 2", len(tracks))
	}

	seen := map[int]bool{}
	maxID := 0
	for _, tr := range tracks {
		if seen[tr.ID()] {
			t.Fatalf("duplicate track ID %d", tr.ID())
		}
		seen[tr.ID()] = true
		if tr.ID() > maxID {
			maxID = tr.ID()
		}
	}

	// A detection far from anything live spawns a track with a higher
	// ID than all existing ones.
	tracks, err = tk.Update([]detector.Detection{
		det(10, 10, 40, 40, 0.9, detector.ClassFace, 3),
		det(300, 10, 40, 40, 0.9, detector.ClassPhone, 4),
		det(500, 300, 40, 40, 0.9, detector.ClassDocument, 5),
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	for _, tr := range tracks {
		if tr.ID() > maxID && seen[tr.ID()] {
			t.Fatalf("new track reused ID %d", tr.ID())
		}
		if !seen[tr.ID()] && tr.ID() <= maxID {
			t.Fatalf("new track ID %d not greater than previous max %d", tr.ID(), maxID)
		}
	}
}

func TestTracker_RemovalAfterMaxAge(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxAge = 3
	tk := New(cfg)

	tracks, err := tk.Update([]detector.Detection{
		det(10, 10, 50, 50, 0.9, detector.ClassFace, 1),
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	tr := tracks[0]

	// The track survives exactly MaxAge unmatched frames.
	for i := 1; i <= cfg.MaxAge; i++ {
		tracks, err = tk.Update(nil)
		if err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		if len(tracks) != 1 {
			t.Fatalf("miss %d: %d tracks, want 1", i, len(tracks))
		}
		if tracks[0].Misses() != i {
			t.Errorf("miss %d: Misses() = %d", i, tracks[0].Misses())
		}
	}

	// One more miss exceeds MaxAge and removes it.
	tracks, err = tk.Update(nil)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if len(tracks) != 0 {
		t.Fatalf("after max age: %d tracks, want 0", len(tracks))
	}
	if tr.State() != StateRemoved {
		t.Errorf("State() = %v, want removed", tr.State())
	}
}

func TestTracker_ClassMismatchNeverLinks(t *testing.T) {
	tk := New(DefaultConfig())

	if _, err := tk.Update([]detector.Detection{
		det(10, 10, 50, 50, 0.9, detector.ClassFace, 1),
	}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	// Same position, different class: must spawn a second track, not
	// steal the first one's identity.
	tracks, err := tk.Update([]detector.Detection{
		det(10, 10, 50, 50, 0.9, detector.ClassPhone, 2),
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if len(tracks) != 2 {
		t.Fatalf("%d tracks, want 2", len(tracks))
	}
	classes := map[detector.Class]bool{}
	for _, tr := range tracks {
		classes[tr.Class()] = true
	}
	if !classes[detector.ClassFace] || !classes[detector.ClassPhone] {
		t.Errorf("track classes = %v, want face and phone", classes)
	}
}

func TestTracker_TieBreakPrefersHigherScore(t *testing.T) {
	tk := New(DefaultConfig())

	tracks, err := tk.Update([]detector.Detection{
		det(100, 100, 50, 50, 0.9, detector.ClassFace, 1),
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	tr := tracks[0]

	// Two detections with identical boxes: association must pick the
	// higher-confidence one.
	tracks, err = tk.Update([]detector.Detection{
		det(100, 100, 50, 50, 0.4, detector.ClassFace, 2),
		det(100, 100, 50, 50, 0.95, detector.ClassFace, 3),
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	for _, got := range tracks {
		if got.ID() == tr.ID() && got.Score() != 0.95 {
			t.Errorf("matched detection score = %v, want 0.95", got.Score())
		}
	}
}

func TestTracker_UnmatchedTrackKeepsPredictedBox(t *testing.T) {
	tk := New(DefaultConfig())

	// Build up a rightward velocity estimate.
	for i := 0; i < 5; i++ {
		if _, err := tk.Update([]detector.Detection{
			det(float32(i)*10, 100, 50, 50, 0.9, detector.ClassFace, int64(i+1)),
		}); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
	}

	before := tk.Tracks()[0].Box()

	tracks, err := tk.Update(nil)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got := tracks[0].Box()
	if got.X <= before.X {
		t.Errorf("predicted box x = %v, want extrapolation beyond %v", got.X, before.X)
	}
	if !tracks[0].Matched() {
		// expected: carried by prediction
	} else {
		t.Error("track reported a match on an empty frame")
	}
}

func TestTracker_SetConfigAppliesToLiveTracks(t *testing.T) {
	tk := New(DefaultConfig())

	tracks, err := tk.Update([]detector.Detection{
		det(10, 10, 50, 50, 0.9, detector.ClassFace, 1),
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	tr := tracks[0]

	// Tighten both parameters at runtime. One decay step drops trust
	// below the raised threshold, and the shortened MaxAge removes the
	// track on the second miss.
	cfg := DefaultConfig()
	cfg.MaxAge = 1
	cfg.FallbackThreshold = 0.99
	tk.SetConfig(cfg)

	tracks, err = tk.Update(nil)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if len(tracks) != 1 {
		t.Fatalf("first miss: %d tracks, want 1", len(tracks))
	}
	if tracks[0].State() != StateLost {
		t.Errorf("State() = %v, want lost under raised threshold", tracks[0].State())
	}

	tracks, err = tk.Update(nil)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if len(tracks) != 0 {
		t.Fatalf("second miss: %d tracks, want 0 under MaxAge 1", len(tracks))
	}
	if tr.State() != StateRemoved {
		t.Errorf("State() = %v, want removed", tr.State())
	}
}

func TestTrack_HistoryReturnsCopy(t *testing.T) {
	tk := New(DefaultConfig())

	tracks, err := tk.Update([]detector.Detection{
		det(10, 10, 50, 50, 0.9, detector.ClassFace, 1),
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	hist := tracks[0].History()
	if len(hist) == 0 {
		t.Fatal("History() empty after an update")
	}
	hist[0] = detector.NewBox(999, 999, 1, 1)

	if got := tracks[0].History()[0]; got.X == 999 {
		t.Error("mutating the returned slice changed tracker-owned state")
	}
}

func TestTracker_Reset(t *testing.T) {
	tk := New(DefaultConfig())

	tracks, err := tk.Update([]detector.Detection{
		det(10, 10, 50, 50, 0.9, detector.ClassFace, 1),
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	oldID := tracks[0].ID()

	tk.Reset()
	if len(tk.Tracks()) != 0 {
		t.Fatal("Reset() left live tracks behind")
	}

	// IDs keep increasing across resets.
	tracks, err = tk.Update([]detector.Detection{
		det(10, 10, 50, 50, 0.9, detector.ClassFace, 2),
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if tracks[0].ID() <= oldID {
		t.Errorf("post-reset ID %d not greater than %d", tracks[0].ID(), oldID)
	}
}
