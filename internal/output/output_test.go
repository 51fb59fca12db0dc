package output

import (
	"errors"
	"testing"

	"gocv.io/x/gocv"
)

func TestMockSink_RecordsFrames(t *testing.T) {
	sink := NewMockSink()

	frame := gocv.NewMatWithSize(10, 10, gocv.MatTypeCV8UC3)
	defer frame.Close()

	if err := sink.Publish(&frame); !errors.Is(err, ErrSink) {
		t.Fatalf("publish before Start: err = %v, want ErrSink", err)
	}

	if err := sink.Start(); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	if !sink.IsRunning() {
		t.Fatal("sink not running after Start")
	}

	for i := 0; i < 3; i++ {
		if err := sink.Publish(&frame); err != nil {
			t.Fatalf("Publish %d: %v", i, err)
		}
	}
	if got := sink.Count(); got != 3 {
		t.Errorf("Count() = %d, want 3", got)
	}

	last, ok := sink.Last()
	if !ok {
		t.Fatal("Last() returned no frame")
	}
	defer last.Close()
	if last.Cols() != 10 || last.Rows() != 10 {
		t.Errorf("last frame %dx%d, want 10x10", last.Cols(), last.Rows())
	}

	if err := sink.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if sink.IsRunning() {
		t.Error("sink still running after Close")
	}
}

func TestMockSink_FailNext(t *testing.T) {
	sink := NewMockSink()
	if err := sink.Start(); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	defer sink.Close()

	frame := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3)
	defer frame.Close()

	sink.FailNext(1)
	if err := sink.Publish(&frame); !errors.Is(err, ErrSink) {
		t.Fatalf("first publish: err = %v, want ErrSink", err)
	}
	if err := sink.Publish(&frame); err != nil {
		t.Fatalf("second publish: %v", err)
	}
	if got := sink.Count(); got != 1 {
		t.Errorf("Count() = %d, want 1", got)
	}
}

func TestV4L2Sink_NotStarted(t *testing.T) {
	sink := NewV4L2Sink(Config{Path: "/dev/null", Width: 4, Height: 4, FPS: 30})

	frame := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3)
	defer frame.Close()

	if err := sink.Publish(&frame); !errors.Is(err, ErrSink) {
		t.Errorf("publish before Start: err = %v, want ErrSink", err)
	}
}

func TestV4L2Sink_MissingDevice(t *testing.T) {
	sink := NewV4L2Sink(Config{Path: "/nonexistent/video99", Width: 4, Height: 4, FPS: 30})

	if err := sink.Start(); !errors.Is(err, ErrSink) {
		t.Errorf("Start on missing device: err = %v, want ErrSink", err)
	}
}

func TestV4L2Sink_WritesAndResizes(t *testing.T) {
	sink := NewV4L2Sink(Config{Path: "/dev/null", Width: 8, Height: 8, FPS: 30})
	if err := sink.Start(); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	defer sink.Close()

	// Mismatched resolution is resized before the write.
	frame := gocv.NewMatWithSize(16, 16, gocv.MatTypeCV8UC3)
	defer frame.Close()

	if err := sink.Publish(&frame); err != nil {
		t.Fatalf("Publish = %v", err)
	}

	empty := gocv.NewMat()
	defer empty.Close()
	if err := sink.Publish(&empty); !errors.Is(err, ErrSink) {
		t.Errorf("publish empty frame: err = %v, want ErrSink", err)
	}
}
