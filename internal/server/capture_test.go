package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/birdseye-cam/birdseye/internal/capture"
)

func TestCaptureHandler_Trigger(t *testing.T) {
	t.Run("success returns result", func(t *testing.T) {
		fc := newFakeCapture()
		fc.result = &capture.Result{
			RecordID:      "abc-123",
			ObjectCount:   2,
			ImageFilename: "detection_1.jpg",
			DurationMs:    120,
		}
		s := New(Config{Capture: fc})

		req := httptest.NewRequest(http.MethodPost, "/api/capture", nil)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		if fc.manualCalls != 1 {
			t.Errorf("expected 1 manual capture call, got %d", fc.manualCalls)
		}

		var response struct {
			Status string          `json:"status"`
			Data   *capture.Result `json:"data"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.Status != "ok" {
			t.Errorf("expected status 'ok', got %q", response.Status)
		}
		if response.Data == nil || response.Data.RecordID != "abc-123" {
			t.Errorf("expected result record abc-123, got %+v", response.Data)
		}
	})

	t.Run("cooldown maps to 429", func(t *testing.T) {
		fc := newFakeCapture()
		fc.captureErr = &capture.CooldownError{Remaining: 12 * time.Second}
		s := New(Config{Capture: fc})

		req := httptest.NewRequest(http.MethodPost, "/api/capture", nil)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusTooManyRequests {
			t.Errorf("expected status %d, got %d", http.StatusTooManyRequests, rec.Code)
		}
	})

	t.Run("mode conflict maps to 409", func(t *testing.T) {
		fc := newFakeCapture()
		fc.captureErr = capture.ErrModeConflict
		s := New(Config{Capture: fc})

		req := httptest.NewRequest(http.MethodPost, "/api/capture", nil)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusConflict {
			t.Errorf("expected status %d, got %d", http.StatusConflict, rec.Code)
		}
	})

	t.Run("rejects GET", func(t *testing.T) {
		s := New(Config{Capture: newFakeCapture()})

		req := httptest.NewRequest(http.MethodGet, "/api/capture", nil)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
		}
	})
}

func TestCaptureHandler_Automated(t *testing.T) {
	t.Run("start passes interval and max", func(t *testing.T) {
		fc := newFakeCapture()
		s := New(Config{Capture: fc})

		body := strings.NewReader(`{"interval": 60, "max_captures": 10}`)
		req := httptest.NewRequest(http.MethodPost, "/api/capture/auto/start", body)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
		}
		if fc.lastInterval != 60*time.Second {
			t.Errorf("expected interval 60s, got %v", fc.lastInterval)
		}
		if fc.lastMax != 10 {
			t.Errorf("expected max captures 10, got %d", fc.lastMax)
		}
	})

	t.Run("already running maps to 409", func(t *testing.T) {
		fc := newFakeCapture()
		fc.startErr = capture.ErrAlreadyRunning
		s := New(Config{Capture: fc})

		body := strings.NewReader(`{"interval": 60, "max_captures": 10}`)
		req := httptest.NewRequest(http.MethodPost, "/api/capture/auto/start", body)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusConflict {
			t.Errorf("expected status %d, got %d", http.StatusConflict, rec.Code)
		}
	})

	t.Run("invalid interval maps to 400", func(t *testing.T) {
		fc := newFakeCapture()
		fc.startErr = capture.ErrInvalidInterval
		s := New(Config{Capture: fc})

		body := strings.NewReader(`{"interval": 0, "max_captures": 10}`)
		req := httptest.NewRequest(http.MethodPost, "/api/capture/auto/start", body)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}
	})

	t.Run("malformed body maps to 400", func(t *testing.T) {
		s := New(Config{Capture: newFakeCapture()})

		req := httptest.NewRequest(http.MethodPost, "/api/capture/auto/start", strings.NewReader("{"))
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}
	})

	t.Run("stop always succeeds", func(t *testing.T) {
		fc := newFakeCapture()
		s := New(Config{Capture: fc})

		req := httptest.NewRequest(http.MethodPost, "/api/capture/auto/stop", nil)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		if fc.stopCalls != 1 {
			t.Errorf("expected 1 stop call, got %d", fc.stopCalls)
		}
	})

	t.Run("status returns orchestrator snapshot", func(t *testing.T) {
		s := New(Config{Capture: newFakeCapture()})

		req := httptest.NewRequest(http.MethodGet, "/api/capture/status", nil)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		var status capture.Status
		if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if status.Mode != capture.ModeManual {
			t.Errorf("expected mode %q, got %q", capture.ModeManual, status.Mode)
		}
	})
}

func TestSettingsHandler(t *testing.T) {
	t.Run("GET returns current settings", func(t *testing.T) {
		fc := newFakeCapture()
		fc.confidence = 0.5
		fc.slices = 3
		s := New(Config{Capture: fc})

		req := httptest.NewRequest(http.MethodGet, "/api/settings", nil)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		var resp settingsResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.Confidence != 0.5 || resp.Slices != 3 {
			t.Errorf("expected confidence 0.5 slices 3, got %+v", resp)
		}
	})

	t.Run("PUT echoes clamped values", func(t *testing.T) {
		fc := newFakeCapture()
		s := New(Config{Capture: fc})

		body := strings.NewReader(`{"confidence": 5.0, "slices": 20}`)
		req := httptest.NewRequest(http.MethodPut, "/api/settings", body)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		var resp struct {
			Settings settingsResponse `json:"settings"`
			Warning  string           `json:"warning"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.Settings.Confidence != 1.0 {
			t.Errorf("expected confidence clamped to 1.0, got %v", resp.Settings.Confidence)
		}
		if resp.Settings.Slices != 8 {
			t.Errorf("expected slices clamped to 8, got %d", resp.Settings.Slices)
		}
		if resp.Warning == "" {
			t.Error("expected a processing-time warning at high slice counts")
		}
	})

	t.Run("PUT below warning threshold has no warning", func(t *testing.T) {
		fc := newFakeCapture()
		s := New(Config{Capture: fc})

		body := strings.NewReader(`{"slices": 2}`)
		req := httptest.NewRequest(http.MethodPut, "/api/settings", body)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)

		var resp map[string]interface{}
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if _, exists := resp["warning"]; exists {
			t.Error("did not expect a warning at 2 slices")
		}
	})

	t.Run("PUT with partial body leaves other setting unchanged", func(t *testing.T) {
		fc := newFakeCapture()
		fc.confidence = 0.4
		s := New(Config{Capture: fc})

		body := strings.NewReader(`{"slices": 3}`)
		req := httptest.NewRequest(http.MethodPut, "/api/settings", body)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)

		if fc.confidence != 0.4 {
			t.Errorf("expected confidence unchanged at 0.4, got %v", fc.confidence)
		}
		if fc.slices != 3 {
			t.Errorf("expected slices 3, got %d", fc.slices)
		}
	})
}
