package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/birdseye-cam/birdseye/internal/config"
)

// StreamHandler serves MJPEG frames pulled from a latest-frame source. The
// same handler backs both the preview feed and the annotated live feed; only
// the frame source differs.
type StreamHandler struct {
	frame    func() []byte
	interval time.Duration
}

// NewStreamHandler creates a StreamHandler reading frames from frame at the
// preview cadence.
func NewStreamHandler(frame func() []byte) *StreamHandler {
	return &StreamHandler{
		frame:    frame,
		interval: time.Second / config.PreviewFPS,
	}
}

// ServeHTTP streams MJPEG frames to the client until it disconnects. Empty
// frames (source not yet filled) are skipped, not errors.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		frame := h.frame()
		if len(frame) == 0 {
			continue
		}

		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(frame))
		w.Write(frame)
		fmt.Fprintf(w, "\r\n")

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}
