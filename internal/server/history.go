package server

import (
	"errors"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/birdseye-cam/birdseye/internal/store"
)

const maxPerPage = 100

// HistoryHandler serves the persisted detection records and their images.
type HistoryHandler struct {
	store       *store.Store
	capturesDir string
}

// NewHistoryHandler creates a HistoryHandler backed by the given store.
func NewHistoryHandler(s *store.Store, capturesDir string) *HistoryHandler {
	return &HistoryHandler{store: s, capturesDir: capturesDir}
}

// ServeHTTP routes history requests.
// Paths: GET /api/history, GET /api/history/{id},
// GET /api/history/{id}/image, DELETE /api/history/{id}.
func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/history")
	rest = strings.Trim(rest, "/")

	if rest == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.list(w, r)
		return
	}

	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			h.get(w, r, parts[0])
		case http.MethodDelete:
			h.delete(w, r, parts[0])
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case len(parts) == 2 && parts[1] == "image":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.image(w, r, parts[0])
	default:
		http.NotFound(w, r)
	}
}

type historyListResponse struct {
	Total   int                `json:"total"`
	Page    int                `json:"page"`
	PerPage int                `json:"per_page"`
	Pages   int                `json:"pages"`
	Data    []*store.Detection `json:"data"`
}

// list returns a page of detection records, newest first.
func (h *HistoryHandler) list(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	perPage := queryInt(r, "per_page", 20)
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	detections, total, err := h.store.Detections().List(page, perPage)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list detections")
		return
	}
	if detections == nil {
		detections = []*store.Detection{}
	}

	pages := 0
	if perPage > 0 {
		pages = (total + perPage - 1) / perPage
	}

	writeJSON(w, http.StatusOK, historyListResponse{
		Total:   total,
		Page:    page,
		PerPage: perPage,
		Pages:   pages,
		Data:    detections,
	})
}

// get returns a single detection record by ID.
func (h *HistoryHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	detection, err := h.store.Detections().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Detection not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get detection")
		return
	}
	writeJSON(w, http.StatusOK, detection)
}

// image serves the annotated capture image for a detection record.
func (h *HistoryHandler) image(w http.ResponseWriter, r *http.Request, id string) {
	detection, err := h.store.Detections().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Detection not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get detection")
		return
	}

	// Image filenames are generated server-side, but keep path joins honest.
	name := filepath.Base(detection.ImageFilename)
	path := filepath.Join(h.capturesDir, name)
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "Image file not found")
		return
	}
	http.ServeFile(w, r, path)
}

// delete removes a detection record and its image file.
func (h *HistoryHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	detection, err := h.store.Detections().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Detection not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get detection")
		return
	}

	if detection.ImageFilename != "" {
		path := filepath.Join(h.capturesDir, filepath.Base(detection.ImageFilename))
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("Failed to remove image %s: %v", path, err)
		}
	}

	if err := h.store.Detections().Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Detection not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete detection")
		return
	}

	writeOK(w, "Detection deleted.", nil)
}

// queryInt parses an integer query parameter, falling back to def when the
// parameter is absent or invalid.
func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	return n
}
