package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/birdseye-cam/birdseye/internal/live"
)

// LiveHandler handles the live detection endpoints.
type LiveHandler struct {
	live LiveController
}

// NewLiveHandler creates a LiveHandler for the given controller.
func NewLiveHandler(l LiveController) *LiveHandler {
	return &LiveHandler{live: l}
}

// ServeHTTP routes live detection requests.
// Paths: POST /api/live/start, POST /api/live/stop, GET /api/live/status,
// PUT /api/live/settings, GET /api/live/feed.
func (h *LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/live/start":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.start(w, r)
	case "/api/live/stop":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.stop(w, r)
	case "/api/live/status":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, h.live.Status())
	case "/api/live/settings":
		if r.Method != http.MethodPut {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.updateSettings(w, r)
	case "/api/live/feed":
		NewStreamHandler(h.live.AnnotatedFrame).ServeHTTP(w, r)
	default:
		http.NotFound(w, r)
	}
}

// start enables live detection mode, reconfiguring the camera to the live
// resolution preset.
func (h *LiveHandler) start(w http.ResponseWriter, r *http.Request) {
	if err := h.live.Start(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, "Live detection started.", nil)
}

// stop disables live detection mode and restores the capture resolution.
func (h *LiveHandler) stop(w http.ResponseWriter, r *http.Request) {
	if err := h.live.Stop(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, "Live detection stopped.", nil)
}

type liveSettingsRequest struct {
	Confidence *float64 `json:"confidence"`
	Resolution *string  `json:"resolution"`
}

// updateSettings applies confidence and/or resolution changes.
func (h *LiveHandler) updateSettings(w http.ResponseWriter, r *http.Request) {
	var req liveSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.live.UpdateSettings(req.Confidence, req.Resolution); err != nil {
		if errors.Is(err, live.ErrUnknownResolution) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"settings": h.live.Status(),
	})
}
