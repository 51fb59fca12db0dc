package app

import (
	"errors"
	"image"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/Danvdl/SecureStudio/internal/capture"
	"github.com/Danvdl/SecureStudio/internal/config"
	"github.com/Danvdl/SecureStudio/internal/detector"
	"github.com/Danvdl/SecureStudio/internal/output"
	"github.com/Danvdl/SecureStudio/internal/render"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Width = 64
	cfg.Height = 48
	cfg.FPS = 60
	return cfg
}

// testApp builds an App on mocks. The returned frame is owned by the
// test and closed on cleanup.
func testApp(t *testing.T, cfg config.Config) (*App, *capture.MockCamera, *detector.MockDetector, *output.MockSink) {
	t.Helper()

	frame := gocv.NewMatWithSize(cfg.Height, cfg.Width, gocv.MatTypeCV8UC3)
	frame.SetTo(gocv.NewScalar(200, 200, 200, 0))
	t.Cleanup(func() { frame.Close() })

	cam := capture.NewMockCamera([]*gocv.Mat{&frame}, true)
	det := detector.NewMockDetector()
	sink := output.NewMockSink()

	a, err := New(Options{
		Config:   cfg,
		Camera:   cam,
		Detector: det,
		Sink:     sink,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a, cam, det, sink
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestApp_PublishesFrames(t *testing.T) {
	a, _, _, sink := testApp(t, testConfig())

	if err := a.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop()

	waitFor(t, "published frames", func() bool { return sink.Count() >= 3 })

	if !a.Running() {
		t.Error("pipeline should be running")
	}
	if a.Err() != nil {
		t.Errorf("unexpected pipeline error: %v", a.Err())
	}
	if a.LastFrameJPEG() == nil {
		t.Error("no preview frame available")
	}
}

func TestApp_PanicPrecedesDetection(t *testing.T) {
	a, _, det, sink := testApp(t, testConfig())

	a.SetPanic(true)
	if err := a.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop()

	waitFor(t, "black frames", func() bool { return sink.Count() >= 2 })

	if got := det.Calls(); got != 0 {
		t.Errorf("detector ran %d times during panic, want 0", got)
	}

	last, ok := sink.Last()
	if !ok {
		t.Fatal("no published frame")
	}
	defer last.Close()

	for _, pt := range [][2]int{{0, 0}, {24, 32}, {47, 63}} {
		v := last.GetVecbAt(pt[0], pt[1])
		if v[0] != 0 || v[1] != 0 || v[2] != 0 {
			t.Fatalf("panic frame pixel at %v = %v, want black", pt, v)
		}
	}
}

func TestApp_PanicReleaseRestoresVideo(t *testing.T) {
	a, _, _, sink := testApp(t, testConfig())

	a.SetPanic(true)
	if err := a.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop()

	waitFor(t, "black frames", func() bool { return sink.Count() >= 1 })

	a.SetPanic(false)
	before := sink.Count()
	waitFor(t, "live frames", func() bool { return sink.Count() >= before+2 })

	last, ok := sink.Last()
	if !ok {
		t.Fatal("no published frame")
	}
	defer last.Close()

	v := last.GetVecbAt(10, 10)
	if v[0] == 0 && v[1] == 0 && v[2] == 0 {
		t.Error("frame still black after panic release")
	}
}

func TestApp_ObscuresDetectedRegion(t *testing.T) {
	cfg := testConfig()
	a, _, det, sink := testApp(t, cfg)

	det.SetDetections([]detector.Detection{{
		Box:   detector.NewBox(10, 10, 20, 20),
		Class: detector.ClassFace,
		Score: 0.9,
	}})
	cfg.Style = render.StyleSolid
	if err := a.UpdateConfig(cfg); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}

	if err := a.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop()

	waitFor(t, "obscured frames", func() bool { return sink.Count() >= 2 })

	last, ok := sink.Last()
	if !ok {
		t.Fatal("no published frame")
	}
	defer last.Close()

	inside := last.GetVecbAt(20, 20)
	if inside[0] != 0 || inside[1] != 0 || inside[2] != 0 {
		t.Errorf("detected region pixel = %v, want black", inside)
	}
	outside := last.GetVecbAt(45, 60)
	if outside[0] != 200 {
		t.Errorf("outside pixel = %v, want untouched", outside)
	}

	status := a.TrackStatus()
	if len(status) != 1 {
		t.Fatalf("got %d status entries, want 1", len(status))
	}
	if status[0].Class != "face" {
		t.Errorf("status class = %q, want face", status[0].Class)
	}
}

func TestApp_DetectionFailureAbsorbed(t *testing.T) {
	a, _, det, sink := testApp(t, testConfig())

	det.SetError(detector.ErrDetection)

	if err := a.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop()

	waitFor(t, "frames despite detector failure", func() bool { return sink.Count() >= 3 })

	if a.Err() != nil {
		t.Errorf("detection failure halted pipeline: %v", a.Err())
	}
}

func TestApp_SinkRetrySucceeds(t *testing.T) {
	a, _, _, sink := testApp(t, testConfig())

	if err := a.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop()

	waitFor(t, "first frame", func() bool { return sink.Count() >= 1 })

	sink.FailNext(1)
	before := sink.Count()
	waitFor(t, "frames after transient failure", func() bool { return sink.Count() >= before+2 })

	if a.Err() != nil {
		t.Errorf("transient sink failure halted pipeline: %v", a.Err())
	}
}

func TestApp_SinkDoubleFailureHalts(t *testing.T) {
	a, _, _, sink := testApp(t, testConfig())

	if err := a.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop()

	waitFor(t, "first frame", func() bool { return sink.Count() >= 1 })

	sink.FailNext(2)
	waitFor(t, "pipeline halt", func() bool { return a.Err() != nil })

	if !errors.Is(a.Err(), output.ErrSink) {
		t.Errorf("Err() = %v, want ErrSink", a.Err())
	}
}

func TestApp_CameraFailureHalts(t *testing.T) {
	a, cam, _, sink := testApp(t, testConfig())

	if err := a.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop()

	waitFor(t, "first frame", func() bool { return sink.Count() >= 1 })

	cam.SetError(capture.ErrCamera)
	waitFor(t, "pipeline halt", func() bool { return a.Err() != nil })

	if !errors.Is(a.Err(), capture.ErrCamera) {
		t.Errorf("Err() = %v, want ErrCamera", a.Err())
	}
}

func TestApp_UpdateConfig(t *testing.T) {
	a, _, _, _ := testApp(t, testConfig())

	bad := testConfig()
	bad.Smoothing = 2.0
	if err := a.UpdateConfig(bad); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("UpdateConfig(bad) = %v, want ErrInvalid", err)
	}
	if a.Config().Smoothing == 2.0 {
		t.Error("invalid config was applied")
	}

	good := testConfig()
	good.Smoothing = 0.7
	good.Mode = config.ModeSecurity
	if err := a.UpdateConfig(good); err != nil {
		t.Fatalf("UpdateConfig(good) = %v", err)
	}
	if got := a.Config(); got.Smoothing != 0.7 || got.Mode != config.ModeSecurity {
		t.Errorf("Config() = %+v, want applied update", got)
	}
}

func TestApp_ModeSwitchRebindsDetector(t *testing.T) {
	a, _, det, _ := testApp(t, testConfig())

	cfg := testConfig()
	cfg.Mode = config.ModeSecurity
	cfg.Classes = cfg.Classes.With(detector.ClassSkin)
	if err := a.UpdateConfig(cfg); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}

	cm := det.ClassMap()
	if cm == nil {
		t.Fatal("mode switch did not rebind the detector class map")
	}
	if cm[4] != detector.ClassSkin {
		t.Errorf("security class map index 4 = %v, want skin", cm[4])
	}

	cfg.Mode = config.ModeStandard
	if err := a.UpdateConfig(cfg); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}

	cm = det.ClassMap()
	if cm[67] != detector.ClassPhone {
		t.Errorf("standard class map index 67 = %v, want phone", cm[67])
	}
	if _, ok := cm[4]; ok {
		t.Error("standard class map still carries the security-only index 4")
	}
}

func TestApp_CollectMasksPrunesStaleEntries(t *testing.T) {
	a := &App{}
	masks := map[int]maskEntry{
		3: {frameSeq: 1, polygon: []image.Point{{X: 1, Y: 1}, {X: 2, Y: 1}, {X: 2, Y: 2}}},
		7: {frameSeq: 6, polygon: []image.Point{{X: 4, Y: 4}, {X: 5, Y: 4}, {X: 5, Y: 5}}},
	}

	a.collectMasks(9, masks)

	if _, ok := masks[3]; ok {
		t.Error("entry 8 frames behind the live frame was not pruned")
	}
	if _, ok := masks[7]; !ok {
		t.Error("entry within the lag window was pruned")
	}
}

func TestApp_StartStopIdempotent(t *testing.T) {
	a, _, _, _ := testApp(t, testConfig())

	if err := a.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := a.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	a.Stop()
	a.Stop()

	if a.Running() {
		t.Error("still running after Stop")
	}
}
