package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/birdseye-cam/birdseye/internal/live"
)

func TestLiveHandler_StartStop(t *testing.T) {
	t.Run("start activates session", func(t *testing.T) {
		fl := &fakeLive{}
		s := New(Config{Live: fl, Capture: newFakeCapture()})

		req := httptest.NewRequest(http.MethodPost, "/api/live/start", nil)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
		}
		if !fl.active {
			t.Error("expected session active after start")
		}
	})

	t.Run("stop deactivates session", func(t *testing.T) {
		fl := &fakeLive{active: true}
		s := New(Config{Live: fl, Capture: newFakeCapture()})

		req := httptest.NewRequest(http.MethodPost, "/api/live/stop", nil)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		if fl.active {
			t.Error("expected session inactive after stop")
		}
	})

	t.Run("start failure maps to 500", func(t *testing.T) {
		fl := &fakeLive{startErr: live.ErrUnknownResolution}
		s := New(Config{Live: fl, Capture: newFakeCapture()})

		req := httptest.NewRequest(http.MethodPost, "/api/live/start", nil)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected status %d, got %d", http.StatusInternalServerError, rec.Code)
		}
	})

	t.Run("start rejects GET", func(t *testing.T) {
		s := New(Config{Live: &fakeLive{}, Capture: newFakeCapture()})

		req := httptest.NewRequest(http.MethodGet, "/api/live/start", nil)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
		}
	})
}

func TestLiveHandler_Status(t *testing.T) {
	fl := &fakeLive{active: true, confidence: 0.3, resolution: "1280x720"}
	s := New(Config{Live: fl, Capture: newFakeCapture()})

	req := httptest.NewRequest(http.MethodGet, "/api/live/status", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var status live.Status
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !status.Active {
		t.Error("expected active status")
	}
	if status.Resolution != "1280x720" {
		t.Errorf("expected resolution 1280x720, got %q", status.Resolution)
	}
}

func TestLiveHandler_UpdateSettings(t *testing.T) {
	t.Run("applies confidence and resolution", func(t *testing.T) {
		fl := &fakeLive{}
		s := New(Config{Live: fl, Capture: newFakeCapture()})

		body := strings.NewReader(`{"confidence": 0.6, "resolution": "1920x1080"}`)
		req := httptest.NewRequest(http.MethodPut, "/api/live/settings", body)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
		}
		if fl.lastConfidence == nil || *fl.lastConfidence != 0.6 {
			t.Errorf("expected confidence 0.6 passed through, got %v", fl.lastConfidence)
		}
		if fl.lastResolution == nil || *fl.lastResolution != "1920x1080" {
			t.Errorf("expected resolution 1920x1080 passed through, got %v", fl.lastResolution)
		}
	})

	t.Run("unknown resolution maps to 400", func(t *testing.T) {
		fl := &fakeLive{settingsErr: live.ErrUnknownResolution}
		s := New(Config{Live: fl, Capture: newFakeCapture()})

		body := strings.NewReader(`{"resolution": "999x999"}`)
		req := httptest.NewRequest(http.MethodPut, "/api/live/settings", body)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}
	})

	t.Run("malformed body maps to 400", func(t *testing.T) {
		s := New(Config{Live: &fakeLive{}, Capture: newFakeCapture()})

		req := httptest.NewRequest(http.MethodPut, "/api/live/settings", strings.NewReader("{"))
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}
	})

	t.Run("rejects POST", func(t *testing.T) {
		s := New(Config{Live: &fakeLive{}, Capture: newFakeCapture()})

		req := httptest.NewRequest(http.MethodPost, "/api/live/settings", strings.NewReader("{}"))
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
		}
	})
}

func TestLiveHandler_UnknownPath(t *testing.T) {
	s := New(Config{Live: &fakeLive{}, Capture: newFakeCapture()})

	req := httptest.NewRequest(http.MethodGet, "/api/live/bogus", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}
