// Package server provides the HTTP control surface for the Birdseye
// detection panel.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/birdseye-cam/birdseye/internal/capture"
	"github.com/birdseye-cam/birdseye/internal/live"
	"github.com/birdseye-cam/birdseye/internal/store"
)

// PreviewSource supplies the latest preview frame for the live MJPEG view.
type PreviewSource interface {
	PreviewFrame() []byte
}

// CaptureController is the slice of the capture orchestrator the handlers use.
type CaptureController interface {
	ManualCapture() (*capture.Result, error)
	StartAutomated(interval time.Duration, maxCaptures int) error
	StopAutomated()
	Status() capture.Status
	SetConfidence(float64)
	SetSlices(int)
	Confidence() float64
	Slices() int
}

// LiveController is the slice of the live detection session the handlers use.
type LiveController interface {
	Start() error
	Stop() error
	UpdateSettings(confidence *float64, resolution *string) error
	Status() live.Status
	AnnotatedFrame() []byte
}

// Config holds the server configuration. Nil components leave their routes
// unregistered.
type Config struct {
	Preview     PreviewSource
	Capture     CaptureController
	Live        LiveController
	Store       *store.Store
	CapturesDir string
	StaticDir   string
}

// Server is the HTTP control surface.
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

	if s.config.Preview != nil {
		s.mux.Handle("/api/feed", NewStreamHandler(s.config.Preview.PreviewFrame))
	}

	if s.config.Capture != nil {
		captureHandler := NewCaptureHandler(s.config.Capture)
		s.mux.Handle("/api/capture", captureHandler)
		s.mux.Handle("/api/capture/", captureHandler)

		settingsHandler := NewSettingsHandler(s.config.Capture)
		s.mux.Handle("/api/settings", settingsHandler)
	}

	if s.config.Live != nil {
		liveHandler := NewLiveHandler(s.config.Live)
		s.mux.Handle("/api/live/", liveHandler)
	}

	if s.config.Store != nil {
		historyHandler := NewHistoryHandler(s.config.Store, s.config.CapturesDir)
		s.mux.Handle("/api/history", historyHandler)
		s.mux.Handle("/api/history/", historyHandler)
	}

	if s.config.Capture != nil && s.config.Live != nil {
		s.mux.Handle("/api/ws", NewStatusHandler(s.config.Capture, s.config.Live))
	}

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

	uptime := time.Since(s.start)

	response := map[string]interface{}{
		"status": "ok",
		"uptime": uptime.String(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// okResponse is the success envelope for mutating endpoints.
type okResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// errorResponse is the structured failure reason for mutating endpoints.
type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// writeOK writes a success envelope.
func writeOK(w http.ResponseWriter, message string, data interface{}) {
	writeJSON(w, http.StatusOK, okResponse{Status: "ok", Message: message, Data: data})
}

// writeError writes a JSON failure response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Status: "error", Message: message})
}
