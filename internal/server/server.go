// Package server provides the local HTTP control surface for the
// SecureStudio privacy pipeline.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Danvdl/SecureStudio/internal/app"
	"github.com/Danvdl/SecureStudio/internal/config"
	"github.com/Danvdl/SecureStudio/internal/detector"
	"github.com/Danvdl/SecureStudio/internal/render"
)

// Config holds the server configuration.
type Config struct {
	StaticDir string
	App       *app.App
}

// Server represents the HTTP control server.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/settings", s.handleSettings)
	s.mux.HandleFunc("/api/panic", s.handlePanic)

	s.mux.Handle("/api/stream", NewStreamHandler(s.config.App))
	s.mux.Handle("/api/tracks", NewTracksHandler(s.config.App))

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	a := s.config.App

	response := map[string]interface{}{
		"status":  "ok",
		"uptime":  time.Since(s.start).String(),
		"running": a.Running(),
		"panic":   a.Panic(),
		"frames":  a.Frames(),
	}
	if err := a.Err(); err != nil {
		response["status"] = "halted"
		response["error"] = err.Error()
	}

	writeJSON(w, http.StatusOK, response)
}

// settingsPayload is the wire form of the configuration. Enumerations
// travel as their string names.
type settingsPayload struct {
	Mode                string   `json:"mode"`
	Classes             []string `json:"classes"`
	Style               string   `json:"style"`
	Smoothing           float32  `json:"smoothing"`
	ConfidenceThreshold float32  `json:"confidence_threshold"`
	FallbackThreshold   float32  `json:"fallback_threshold"`
	MaxAge              int      `json:"max_age"`
	Width               int      `json:"width"`
	Height              int      `json:"height"`
	FPS                 int      `json:"fps"`
	CameraID            int      `json:"camera_id"`
	SinkPath            string   `json:"sink_path"`
	MaskURL             string   `json:"mask_url"`
}

var payloadClasses = []detector.Class{
	detector.ClassFace,
	detector.ClassPhone,
	detector.ClassCard,
	detector.ClassDocument,
	detector.ClassSkin,
	detector.ClassCustom,
}

func toPayload(cfg config.Config) settingsPayload {
	var classes []string
	for _, c := range payloadClasses {
		if cfg.Classes.Has(c) {
			classes = append(classes, c.String())
		}
	}
	return settingsPayload{
		Mode:                cfg.Mode.String(),
		Classes:             classes,
		Style:               cfg.Style.String(),
		Smoothing:           cfg.Smoothing,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		FallbackThreshold:   cfg.FallbackThreshold,
		MaxAge:              cfg.MaxAge,
		Width:               cfg.Width,
		Height:              cfg.Height,
		FPS:                 cfg.FPS,
		CameraID:            cfg.CameraID,
		SinkPath:            cfg.SinkPath,
		MaskURL:             cfg.MaskURL,
	}
}

func fromPayload(p settingsPayload) (config.Config, error) {
	cfg := config.Config{
		Smoothing:           p.Smoothing,
		ConfidenceThreshold: p.ConfidenceThreshold,
		FallbackThreshold:   p.FallbackThreshold,
		MaxAge:              p.MaxAge,
		Width:               p.Width,
		Height:              p.Height,
		FPS:                 p.FPS,
		CameraID:            p.CameraID,
		SinkPath:            p.SinkPath,
		MaskURL:             p.MaskURL,
	}

	mode, ok := config.ParseMode(p.Mode)
	if !ok {
		return cfg, errors.New("unknown mode " + p.Mode)
	}
	cfg.Mode = mode

	style, ok := render.ParseStyle(p.Style)
	if !ok {
		return cfg, errors.New("unknown style " + p.Style)
	}
	cfg.Style = style

	for _, name := range p.Classes {
		c, ok := detector.ParseClass(name)
		if !ok {
			return cfg, errors.New("unknown class " + name)
		}
		cfg.Classes = cfg.Classes.With(c)
	}

	return cfg, nil
}

// handleSettings handles GET and PUT requests to /api/settings.
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, toPayload(s.config.App.Config()))

	case http.MethodPut:
		var payload settingsPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
			return
		}

		cfg, err := fromPayload(payload)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := s.config.App.UpdateConfig(cfg); err != nil {
			if errors.Is(err, config.ErrInvalid) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, toPayload(s.config.App.Config()))

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handlePanic handles POST requests to /api/panic.
func (s *Server) handlePanic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		Engaged bool `json:"engaged"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	s.config.App.SetPanic(body.Engaged)
	writeJSON(w, http.StatusOK, map[string]bool{"panic": s.config.App.Panic()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s)
}
