package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/birdseye-cam/birdseye/internal/capture"
)

// CaptureHandler handles the still-capture endpoints.
type CaptureHandler struct {
	capture CaptureController
}

// NewCaptureHandler creates a CaptureHandler for the given controller.
func NewCaptureHandler(c CaptureController) *CaptureHandler {
	return &CaptureHandler{capture: c}
}

// ServeHTTP routes capture requests.
// Paths: POST /api/capture, POST /api/capture/auto/start,
// POST /api/capture/auto/stop, GET /api/capture/status.
func (h *CaptureHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/capture":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.trigger(w, r)
	case "/api/capture/auto/start":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.startAutomated(w, r)
	case "/api/capture/auto/stop":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.stopAutomated(w, r)
	case "/api/capture/status":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, h.capture.Status())
	default:
		http.NotFound(w, r)
	}
}

// trigger handles a manual capture request.
func (h *CaptureHandler) trigger(w http.ResponseWriter, r *http.Request) {
	result, err := h.capture.ManualCapture()
	if err != nil {
		var cooldown *capture.CooldownError
		switch {
		case errors.As(err, &cooldown):
			writeError(w, http.StatusTooManyRequests, cooldown.Error())
		case errors.Is(err, capture.ErrModeConflict):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeOK(w, "", result)
}

type autoStartRequest struct {
	// Interval between captures in seconds.
	Interval    int `json:"interval"`
	MaxCaptures int `json:"max_captures"`
}

// startAutomated handles POST /api/capture/auto/start.
func (h *CaptureHandler) startAutomated(w http.ResponseWriter, r *http.Request) {
	var req autoStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	err := h.capture.StartAutomated(time.Duration(req.Interval)*time.Second, req.MaxCaptures)
	if err != nil {
		switch {
		case errors.Is(err, capture.ErrAlreadyRunning):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, capture.ErrInvalidInterval), errors.Is(err, capture.ErrInvalidMaxCaptures):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeOK(w, "Automated capture started.", nil)
}

// stopAutomated handles POST /api/capture/auto/stop.
func (h *CaptureHandler) stopAutomated(w http.ResponseWriter, r *http.Request) {
	h.capture.StopAutomated()
	writeOK(w, "Automated capture stopped.", nil)
}

// SettingsHandler handles the detection settings endpoints.
type SettingsHandler struct {
	capture CaptureController
}

// NewSettingsHandler creates a SettingsHandler for the given controller.
func NewSettingsHandler(c CaptureController) *SettingsHandler {
	return &SettingsHandler{capture: c}
}

type settingsUpdateRequest struct {
	Confidence *float64 `json:"confidence"`
	Slices     *int     `json:"slices"`
}

type settingsResponse struct {
	Confidence float64 `json:"confidence"`
	Slices     int     `json:"slices"`
}

// ServeHTTP handles GET and PUT on /api/settings.
func (h *SettingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, settingsResponse{
			Confidence: h.capture.Confidence(),
			Slices:     h.capture.Slices(),
		})
	case http.MethodPut:
		h.update(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// update applies setting changes. Values are clamped by the orchestrator, so
// the response echoes what was actually stored. A high slice count gets a
// processing-time warning since tiles multiply inference work quadratically.
func (h *SettingsHandler) update(w http.ResponseWriter, r *http.Request) {
	var req settingsUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Confidence != nil {
		h.capture.SetConfidence(*req.Confidence)
	}
	if req.Slices != nil {
		h.capture.SetSlices(*req.Slices)
	}

	slices := h.capture.Slices()
	estimatedSeconds := slices * slices * 3 // rough per-tile cost on a Pi 4

	response := map[string]interface{}{
		"status": "ok",
		"settings": settingsResponse{
			Confidence: h.capture.Confidence(),
			Slices:     slices,
		},
		"estimated_processing_seconds": estimatedSeconds,
	}
	if slices >= 4 {
		response["warning"] = fmt.Sprintf(
			"With %dx%d slices (%d tiles), each capture may take approximately %d seconds to process.",
			slices, slices, slices*slices, estimatedSeconds)
	}

	writeJSON(w, http.StatusOK, response)
}
