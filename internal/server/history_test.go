package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/birdseye-cam/birdseye/internal/store"
)

// historyRig is a server wired to a real sqlite store in a temp directory.
type historyRig struct {
	server      *Server
	store       *store.Store
	capturesDir string
}

func newHistoryRig(t *testing.T) *historyRig {
	t.Helper()

	dir := t.TempDir()
	st, err := store.New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	capturesDir := filepath.Join(dir, "captures")
	if err := os.MkdirAll(capturesDir, 0755); err != nil {
		t.Fatalf("failed to create captures dir: %v", err)
	}

	return &historyRig{
		server:      New(Config{Store: st, CapturesDir: capturesDir}),
		store:       st,
		capturesDir: capturesDir,
	}
}

func (rig *historyRig) addDetection(t *testing.T, filename string, count int) *store.Detection {
	t.Helper()
	d := &store.Detection{
		ObjectCount:         count,
		ConfidenceThreshold: 0.25,
		SliceCount:          2,
		ImageFilename:       filename,
	}
	if err := rig.store.Detections().Create(d); err != nil {
		t.Fatalf("failed to create detection: %v", err)
	}
	return d
}

func TestHistoryHandler_List(t *testing.T) {
	rig := newHistoryRig(t)
	for i := 0; i < 5; i++ {
		rig.addDetection(t, "detection_1.jpg", i)
	}

	t.Run("returns paginated records", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/history?page=1&per_page=2", nil)
		rec := httptest.NewRecorder()
		rig.server.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		var resp historyListResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.Total != 5 {
			t.Errorf("expected total 5, got %d", resp.Total)
		}
		if resp.Pages != 3 {
			t.Errorf("expected 3 pages, got %d", resp.Pages)
		}
		if len(resp.Data) != 2 {
			t.Errorf("expected 2 records, got %d", len(resp.Data))
		}
	})

	t.Run("clamps per_page", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/history?per_page=5000", nil)
		rec := httptest.NewRecorder()
		rig.server.ServeHTTP(rec, req)

		var resp historyListResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.PerPage != maxPerPage {
			t.Errorf("expected per_page clamped to %d, got %d", maxPerPage, resp.PerPage)
		}
	})

	t.Run("invalid params fall back to defaults", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/history?page=abc&per_page=-3", nil)
		rec := httptest.NewRecorder()
		rig.server.ServeHTTP(rec, req)

		var resp historyListResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.Page != 1 || resp.PerPage != 20 {
			t.Errorf("expected defaults page=1 per_page=20, got page=%d per_page=%d", resp.Page, resp.PerPage)
		}
	})
}

func TestHistoryHandler_Get(t *testing.T) {
	rig := newHistoryRig(t)
	d := rig.addDetection(t, "detection_1.jpg", 3)

	t.Run("returns record by ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/history/"+d.ID, nil)
		rec := httptest.NewRecorder()
		rig.server.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		var got store.Detection
		if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if got.ID != d.ID {
			t.Errorf("expected ID %q, got %q", d.ID, got.ID)
		}
		if got.ObjectCount != 3 {
			t.Errorf("expected object count 3, got %d", got.ObjectCount)
		}
	})

	t.Run("unknown ID maps to 404", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/history/no-such-id", nil)
		rec := httptest.NewRecorder()
		rig.server.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}

func TestHistoryHandler_Image(t *testing.T) {
	rig := newHistoryRig(t)
	d := rig.addDetection(t, "detection_1.jpg", 1)

	t.Run("serves image file", func(t *testing.T) {
		content := []byte("jpeg-bytes")
		path := filepath.Join(rig.capturesDir, "detection_1.jpg")
		if err := os.WriteFile(path, content, 0644); err != nil {
			t.Fatalf("failed to write image: %v", err)
		}

		req := httptest.NewRequest(http.MethodGet, "/api/history/"+d.ID+"/image", nil)
		rec := httptest.NewRecorder()
		rig.server.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		if rec.Body.String() != string(content) {
			t.Errorf("expected image bytes, got %q", rec.Body.String())
		}
	})

	t.Run("missing file maps to 404", func(t *testing.T) {
		other := rig.addDetection(t, "gone.jpg", 0)

		req := httptest.NewRequest(http.MethodGet, "/api/history/"+other.ID+"/image", nil)
		rec := httptest.NewRecorder()
		rig.server.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}

func TestHistoryHandler_Delete(t *testing.T) {
	t.Run("removes record and image", func(t *testing.T) {
		rig := newHistoryRig(t)
		d := rig.addDetection(t, "detection_1.jpg", 1)

		path := filepath.Join(rig.capturesDir, "detection_1.jpg")
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatalf("failed to write image: %v", err)
		}

		req := httptest.NewRequest(http.MethodDelete, "/api/history/"+d.ID, nil)
		rec := httptest.NewRecorder()
		rig.server.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Error("expected image file removed")
		}
		if _, err := rig.store.Detections().GetByID(d.ID); err != store.ErrNotFound {
			t.Errorf("expected record deleted, got err %v", err)
		}
	})

	t.Run("succeeds when image already gone", func(t *testing.T) {
		rig := newHistoryRig(t)
		d := rig.addDetection(t, "missing.jpg", 1)

		req := httptest.NewRequest(http.MethodDelete, "/api/history/"+d.ID, nil)
		rec := httptest.NewRecorder()
		rig.server.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
	})

	t.Run("unknown ID maps to 404", func(t *testing.T) {
		rig := newHistoryRig(t)

		req := httptest.NewRequest(http.MethodDelete, "/api/history/no-such-id", nil)
		rec := httptest.NewRecorder()
		rig.server.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}
