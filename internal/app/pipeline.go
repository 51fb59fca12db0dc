package app

import (
	"context"
	"errors"
	"image"
	"log"
	"time"

	"gocv.io/x/gocv"

	"github.com/Danvdl/SecureStudio/internal/capture"
	"github.com/Danvdl/SecureStudio/internal/config"
	"github.com/Danvdl/SecureStudio/internal/detector"
	"github.com/Danvdl/SecureStudio/internal/mask"
	"github.com/Danvdl/SecureStudio/internal/render"
	"github.com/Danvdl/SecureStudio/internal/track"
)

// Pipeline tuning constants.
const (
	// frameBuffer bounds the capture-to-process queue. When processing
	// falls behind, the oldest queued frame is dropped so latency never
	// grows past the buffer.
	frameBuffer = 2

	// maskMaxLag is how many frames a segmentation result may trail the
	// live frame before it is discarded as stale.
	maskMaxLag = 3
)

type maskEntry struct {
	frameSeq uint64
	polygon  []image.Point
}

// runPipeline is the main processing loop.
//
// Each cycle:
//  1. Check the panic override first; while engaged, publish solid
//     black without touching the captured content.
//  2. Run detection. Detection failures are absorbed: tracking carries
//     on with motion prediction alone.
//  3. Update the tracker and decide, per track, whether its predicted
//     box is still trustworthy or the raw detection must be used.
//  4. Smooth trusted boxes, re-anchor on detector fallback.
//  5. Apply any fresh segmentation masks, render the obscuring
//     effects, and publish. A failed publish is retried once; a second
//     failure halts the pipeline.
func (a *App) runPipeline(stopCh, done chan struct{}) {
	defer close(done)

	// Stopping the pipeline cancels any in-flight detector call.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stopCh
		cancel()
	}()

	frames := make(chan *gocv.Mat, frameBuffer)
	captureDead := make(chan struct{})
	go a.captureLoop(stopCh, frames, captureDead)

	masks := make(map[int]maskEntry)
	var frameSeq uint64

	for {
		select {
		case <-stopCh:
			drainFrames(frames)
			return
		case <-captureDead:
			drainFrames(frames)
			return
		case frame := <-frames:
			ok := a.process(ctx, frame, frameSeq, masks)
			frame.Close()
			if !ok {
				drainFrames(frames)
				return
			}
			frameSeq++
		}
	}
}

// captureLoop reads frames at the configured rate and queues them,
// dropping the oldest queued frame when processing is behind.
func (a *App) captureLoop(stopCh chan struct{}, frames chan *gocv.Mat, dead chan struct{}) {
	defer close(dead)

	fps := a.Config().FPS
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if cur := a.Config().FPS; cur != fps {
				fps = cur
				a.camera.SetFPS(fps)
				ticker.Reset(time.Second / time.Duration(fps))
			}

			frame, err := a.camera.ReadFrame()
			if err != nil {
				if errors.Is(err, capture.ErrCamera) {
					a.setErr(err)
					return
				}
				log.Printf("Error reading frame: %v", err)
				continue
			}

			select {
			case frames <- frame:
			default:
				// Queue full. Drop the oldest frame, keep the newest.
				select {
				case old := <-frames:
					old.Close()
				default:
				}
				select {
				case frames <- frame:
				default:
					frame.Close()
				}
			}
		}
	}
}

func drainFrames(frames chan *gocv.Mat) {
	for {
		select {
		case f := <-frames:
			f.Close()
		default:
			return
		}
	}
}

// process handles one frame. It returns false when the pipeline must
// halt.
func (a *App) process(ctx context.Context, frame *gocv.Mat, frameSeq uint64, masks map[int]maskEntry) bool {
	cfg := a.Config()

	// Panic override wins over everything, including detection. The
	// captured content is overwritten before any of it can leak.
	if a.panicOn.Load() {
		render.Blackout(frame)
		a.setStatus(nil)
		return a.publish(frame)
	}

	if frame.Cols() != cfg.Width || frame.Rows() != cfg.Height {
		gocv.Resize(*frame, frame, image.Pt(cfg.Width, cfg.Height), 0, 0, gocv.InterpolationLinear)
	}

	dets, err := a.detector.Detect(ctx, frame)
	if err != nil {
		if !errors.Is(err, detector.ErrDetection) {
			log.Printf("Unexpected detector error: %v", err)
		}
		// Prediction-only frame. Existing tracks keep covering their
		// regions from motion state.
		dets = nil
	}
	dets = filterDetections(dets, cfg)

	tracks, err := a.tracker.Update(dets)
	if err != nil {
		// Assignment failures leave the previous track set intact.
		log.Printf("Tracker update failed: %v", err)
		tracks = a.tracker.Tracks()
	}
	gate := track.NewGate(cfg.FallbackThreshold)

	instructions := make([]render.Instruction, 0, len(tracks))
	status := make([]TrackInfo, 0, len(tracks))

	for _, t := range tracks {
		if t.State() == track.StateRemoved {
			continue
		}

		box, source := gate.Decide(t)
		switch source {
		case track.SourceTracker:
			box = track.Smooth(t, box, cfg.Smoothing)
		case track.SourceDetector:
			track.Reanchor(t, box)
		}

		box = box.Clamp(cfg.Width, cfg.Height)
		if box.Empty() {
			continue
		}

		ins := render.Instruction{TrackID: t.ID(), Box: box, Style: cfg.Style}

		if a.maskCli != nil {
			a.maskCli.Submit(mask.Request{FrameSeq: frameSeq, TrackID: t.ID(), Box: box})
			if entry, ok := masks[t.ID()]; ok && frameSeq-entry.frameSeq <= maskMaxLag {
				ins.Mask = entry.polygon
			}
		}

		instructions = append(instructions, ins)
		status = append(status, TrackInfo{
			ID:     t.ID(),
			Class:  t.Class().String(),
			Trust:  t.Trust(),
			Source: source.String(),
			Box:    [4]float32{box.X, box.Y, box.W, box.H},
			State:  t.State().String(),
		})
	}

	a.collectMasks(frameSeq, masks)

	render.Obscure(frame, instructions)
	a.setStatus(status)

	return a.publish(frame)
}

// collectMasks drops cache entries that fell behind the live frame,
// then drains finished segmentation results without blocking. Tracks
// that disappear stop refreshing their entry, so the pruning keeps the
// cache bounded by the set of recently live tracks.
func (a *App) collectMasks(frameSeq uint64, masks map[int]maskEntry) {
	for id, entry := range masks {
		if frameSeq-entry.frameSeq > maskMaxLag {
			delete(masks, id)
		}
	}

	if a.maskCli == nil {
		return
	}
	for {
		select {
		case res, ok := <-a.maskCli.Results():
			if !ok {
				return
			}
			if frameSeq-res.FrameSeq > maskMaxLag {
				continue
			}
			masks[res.TrackID] = maskEntry{frameSeq: res.FrameSeq, polygon: res.Polygon}
		default:
			return
		}
	}
}

// publish sends the sanitized frame to the sink, retrying a failed
// write once. It also refreshes the preview JPEG.
func (a *App) publish(frame *gocv.Mat) bool {
	if err := a.sink.Publish(frame); err != nil {
		log.Printf("Publish failed, retrying: %v", err)
		if err := a.sink.Publish(frame); err != nil {
			a.setErr(err)
			return false
		}
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		log.Printf("Failed to encode preview frame: %v", err)
	} else {
		jpeg := make([]byte, len(buf.GetBytes()))
		copy(jpeg, buf.GetBytes())
		buf.Close()

		a.mu.Lock()
		a.lastJPEG = jpeg
		a.mu.Unlock()
	}

	a.mu.Lock()
	a.frames++
	a.mu.Unlock()
	return true
}

func (a *App) setStatus(status []TrackInfo) {
	a.mu.Lock()
	a.status = status
	a.mu.Unlock()
}

// filterDetections keeps only detections of enabled classes that meet
// the configured confidence threshold.
func filterDetections(dets []detector.Detection, cfg config.Config) []detector.Detection {
	out := make([]detector.Detection, 0, len(dets))
	for _, d := range dets {
		if !cfg.Classes.Has(d.Class) {
			continue
		}
		if d.Score < cfg.ConfidenceThreshold {
			continue
		}
		out = append(out, d)
	}
	return out
}
