package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/Danvdl/SecureStudio/internal/app"
	"github.com/Danvdl/SecureStudio/internal/capture"
	"github.com/Danvdl/SecureStudio/internal/config"
	"github.com/Danvdl/SecureStudio/internal/detector"
	"github.com/Danvdl/SecureStudio/internal/mask"
	"github.com/Danvdl/SecureStudio/internal/output"
	"github.com/Danvdl/SecureStudio/internal/server"
	"github.com/Danvdl/SecureStudio/internal/store"
	"github.com/Danvdl/SecureStudio/internal/tray"
)

func main() {
	addr := flag.String("addr", ":8080", "control server listen address")
	modelPath := flag.String("model", "", "path to the ONNX detection model")
	noTray := flag.Bool("no-tray", false, "run without the system tray")
	flag.Parse()

	fmt.Println("SecureStudio - Privacy Camera")

	// Initialize the store
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Fatalf("Failed to get home directory: %v", err)
	}

	dbDir := filepath.Join(homeDir, ".securestudio")
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	st, err := store.New(filepath.Join(dbDir, "securestudio.db"))
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer st.Close()

	cfg, err := st.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load settings: %v", err)
	}

	// Try the ONNX detector first, fall back to the mock so the rest of
	// the system stays usable without a model file.
	var det detector.Detector
	detCfg := detector.DefaultConfig()
	if cfg.Mode == config.ModeSecurity {
		detCfg = detector.SecurityConfig()
	}
	if *modelPath != "" {
		detCfg.ModelPath = *modelPath
	}
	if d, err := detector.NewYOLODetector(detCfg); err == nil {
		det = d
		log.Printf("Using ONNX model %s", detCfg.ModelPath)
	} else {
		log.Printf("Detection model not available (%v), using mock detector", err)
		det = detector.NewMockDetector()
	}

	a, err := app.New(app.Options{
		Config: cfg,
		Store:  st,
		Camera: capture.NewCamera(capture.Settings{
			DeviceID: cfg.CameraID,
			Width:    cfg.Width,
			Height:   cfg.Height,
			FPS:      cfg.FPS,
		}),
		Detector: det,
		Sink: output.NewV4L2Sink(output.Config{
			Path:   cfg.SinkPath,
			Width:  cfg.Width,
			Height: cfg.Height,
			FPS:    cfg.FPS,
		}),
		Mask: mask.NewClient(cfg.MaskURL),
	})
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}

	if err := a.Start(); err != nil {
		log.Fatalf("Failed to start pipeline: %v", err)
	}
	defer a.Stop()

	srv := server.New(server.Config{
		StaticDir: findWebDir(),
		App:       a,
	})

	go func() {
		fmt.Printf("Control server on %s\n", *addr)
		if err := srv.ListenAndServe(*addr); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	if *noTray {
		select {}
	}

	t := tray.New()
	t.OnPanic(func(engaged bool) {
		a.SetPanic(engaged)
	})
	t.OnToggle(func(running bool) {
		if running {
			if err := a.Start(); err != nil {
				log.Printf("Failed to restart pipeline: %v", err)
			}
		} else {
			a.Stop()
		}
	})
	t.OnQuit(func() {
		a.Stop()
	})

	// Blocks until quit is chosen from the menu.
	t.Run()
}

// findWebDir searches for the web directory in common locations.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".securestudio", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
