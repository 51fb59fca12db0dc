// Package app wires capture, detection, tracking and rendering into
// the privacy pipeline and owns its lifecycle.
package app

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/Danvdl/SecureStudio/internal/capture"
	"github.com/Danvdl/SecureStudio/internal/config"
	"github.com/Danvdl/SecureStudio/internal/detector"
	"github.com/Danvdl/SecureStudio/internal/mask"
	"github.com/Danvdl/SecureStudio/internal/output"
	"github.com/Danvdl/SecureStudio/internal/store"
	"github.com/Danvdl/SecureStudio/internal/track"
)

// Options holds the injected dependencies of the App. Camera, Detector
// and Sink are required; Store and Mask are optional.
type Options struct {
	Config   config.Config
	Store    *store.Store
	Camera   capture.Camera
	Detector detector.Detector
	Sink     output.Sink
	Mask     *mask.Client
}

// TrackInfo is a snapshot of one active track for status consumers.
type TrackInfo struct {
	ID     int        `json:"id"`
	Class  string     `json:"class"`
	Trust  float32    `json:"trust"`
	Source string     `json:"source"`
	Box    [4]float32 `json:"box"`
	State  string     `json:"state"`
}

// App is the main application that runs the privacy pipeline.
type App struct {
	store    *store.Store
	camera   capture.Camera
	detector detector.Detector
	sink     output.Sink
	maskCli  *mask.Client

	tracker *track.Tracker

	panicOn atomic.Bool

	mu        sync.RWMutex
	cfg       config.Config
	stopCh    chan struct{}
	done      chan struct{}
	lastErr   error
	lastJPEG  []byte
	status    []TrackInfo
	sessionID string
	frames    int64
	panics    int64
}

// New creates an App from its dependencies. The configuration must be
// valid; use store.LoadConfig or config.Default.
func New(opts Options) (*App, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}

	a := &App{
		store:    opts.Store,
		camera:   opts.Camera,
		detector: opts.Detector,
		sink:     opts.Sink,
		maskCli:  opts.Mask,
		cfg:      opts.Config,
	}
	a.tracker = track.New(a.trackerConfig(opts.Config))

	return a, nil
}

func (a *App) trackerConfig(cfg config.Config) track.Config {
	tc := track.DefaultConfig()
	tc.MaxAge = cfg.MaxAge
	tc.FallbackThreshold = cfg.FallbackThreshold
	return tc
}

// detectorConfigFor maps an operating mode to the detector backend
// configuration that serves it.
func detectorConfigFor(mode config.Mode) detector.Config {
	if mode == config.ModeSecurity {
		return detector.SecurityConfig()
	}
	return detector.DefaultConfig()
}

// Start opens the camera and sink and begins processing frames.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopCh != nil {
		return nil
	}

	if err := a.camera.Open(); err != nil {
		return err
	}
	if err := a.sink.Start(); err != nil {
		a.camera.Close()
		return err
	}

	if a.store != nil {
		id, err := a.store.BeginSession()
		if err != nil {
			log.Printf("Failed to begin session: %v", err)
		} else {
			a.sessionID = id
		}
	}

	a.lastErr = nil
	a.frames = 0
	a.panics = 0
	a.stopCh = make(chan struct{})
	a.done = make(chan struct{})
	go a.runPipeline(a.stopCh, a.done)

	log.Println("Privacy pipeline started")
	return nil
}

// Stop halts the pipeline and releases resources. It is safe to call
// when not running.
func (a *App) Stop() {
	a.mu.Lock()
	stopCh, done := a.stopCh, a.done
	a.stopCh = nil
	a.done = nil
	a.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-done
	}

	if err := a.camera.Close(); err != nil {
		log.Printf("Error closing camera: %v", err)
	}
	if err := a.sink.Close(); err != nil {
		log.Printf("Error closing sink: %v", err)
	}
	if a.detector != nil {
		if err := a.detector.Close(); err != nil {
			log.Printf("Error closing detector: %v", err)
		}
	}
	if a.maskCli != nil {
		a.maskCli.Close()
	}

	a.mu.Lock()
	if a.store != nil && a.sessionID != "" {
		if err := a.store.EndSession(a.sessionID, a.frames, a.panics); err != nil {
			log.Printf("Failed to end session: %v", err)
		}
		a.sessionID = ""
	}
	a.mu.Unlock()

	log.Println("Privacy pipeline stopped")
}

// Running reports whether the pipeline is active.
func (a *App) Running() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stopCh != nil
}

// SetPanic toggles the panic override. While set, every published
// frame is solid black regardless of detection results.
func (a *App) SetPanic(on bool) {
	was := a.panicOn.Swap(on)
	if on && !was {
		a.mu.Lock()
		a.panics++
		a.mu.Unlock()
		log.Println("Panic override ENGAGED")
	}
	if !on && was {
		log.Println("Panic override released")
	}
}

// Panic reports whether the panic override is engaged.
func (a *App) Panic() bool {
	return a.panicOn.Load()
}

// Config returns the current configuration.
func (a *App) Config() config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// UpdateConfig validates, applies and persists a new configuration.
// Invalid configurations are rejected with config.ErrInvalid and the
// previous settings stay in force. Switching modes rebinds the
// detector's class mapping and resets the tracker so stale identities
// do not carry between model sets.
func (a *App) UpdateConfig(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	a.mu.Lock()
	modeChanged := cfg.Mode != a.cfg.Mode
	a.cfg = cfg
	a.mu.Unlock()

	a.tracker.SetConfig(a.trackerConfig(cfg))

	if modeChanged {
		a.detector.SetClassMap(detectorConfigFor(cfg.Mode).ClassMap)
		a.tracker.Reset()
		log.Printf("Mode switched to %s, detector rebound, tracker reset", cfg.Mode)
	}

	if a.store != nil {
		if err := a.store.SaveConfig(cfg); err != nil {
			log.Printf("Failed to persist settings: %v", err)
		}
	}
	return nil
}

// Err returns the error that halted the pipeline, or nil.
func (a *App) Err() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastErr
}

// LastFrameJPEG returns the most recent published frame encoded as
// JPEG, for the preview stream. Only sanitized frames are stored here.
func (a *App) LastFrameJPEG() []byte {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.lastJPEG == nil {
		return nil
	}
	out := make([]byte, len(a.lastJPEG))
	copy(out, a.lastJPEG)
	return out
}

// TrackStatus returns a snapshot of the active tracks.
func (a *App) TrackStatus() []TrackInfo {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]TrackInfo, len(a.status))
	copy(out, a.status)
	return out
}

// Frames returns the number of frames published this session.
func (a *App) Frames() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.frames
}

func (a *App) setErr(err error) {
	a.mu.Lock()
	if a.lastErr == nil {
		a.lastErr = err
	}
	a.mu.Unlock()
	log.Printf("Pipeline halted: %v", err)
}
