// Package capture implements the still-capture workflow: the manual and
// automated capture state machine, the inter-capture cooldown, and the
// capture, detect, persist pipeline.
package capture

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/birdseye-cam/birdseye/internal/config"
	"github.com/birdseye-cam/birdseye/internal/detector"
	"github.com/birdseye-cam/birdseye/internal/store"
)

// Mode is the current capture mode.
type Mode string

const (
	// ModeManual means captures happen only on explicit request.
	ModeManual Mode = "manual"
	// ModeAutomated means a background run is taking captures on a schedule.
	ModeAutomated Mode = "automated"
)

var (
	// ErrModeConflict is returned when a manual capture is requested while
	// an automated run is active.
	ErrModeConflict = errors.New("cannot manually capture while automated mode is active")

	// ErrAlreadyRunning is returned when automated capture is started twice.
	ErrAlreadyRunning = errors.New("automated capture is already running")

	// ErrInvalidInterval is returned when the automated interval is below
	// the minimum capture cooldown.
	ErrInvalidInterval = errors.New("interval must be at least the minimum capture cooldown")

	// ErrInvalidMaxCaptures is returned for a non-positive capture count.
	ErrInvalidMaxCaptures = errors.New("maximum captures must be at least 1")
)

// CooldownError is returned when a capture is attempted before the cooldown
// since the last completed capture has elapsed.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("capture cooldown active, wait %.0f more seconds", e.Remaining.Seconds())
}

const (
	// failurePause is how long the automated loop waits after a failed
	// capture before working toward the next attempt.
	failurePause = 2 * time.Second

	// stopTimeout bounds the wait for the automated loop on StopAutomated.
	stopTimeout = 10 * time.Second
)

// Camera is the slice of the camera manager the orchestrator needs.
type Camera interface {
	CaptureHighRes() (string, error)
}

// Result is the outcome of one completed capture, detection and persist
// sequence.
type Result struct {
	RecordID      string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	ObjectCount   int       `json:"object_count"`
	ImageFilename string    `json:"image_filename"`
	DurationMs    int64     `json:"duration_ms"`
	Confidence    float64   `json:"confidence"`
	Slices        int       `json:"slices"`
}

// AutoStatus describes the automated run for status polling.
type AutoStatus struct {
	Interval      float64 `json:"auto_interval"`
	MaxCaptures   int     `json:"auto_max_captures"`
	CapturesDone  int     `json:"auto_captures_done"`
	Remaining     int     `json:"auto_remaining"`
	NextCaptureIn float64 `json:"auto_next_capture_in"`
}

// Status is the pollable capture state snapshot.
type Status struct {
	Mode              Mode        `json:"mode"`
	IsProcessing      bool        `json:"is_processing"`
	CooldownRemaining float64     `json:"cooldown_remaining"`
	Confidence        float64     `json:"confidence"`
	Slices            int         `json:"slices"`
	LastResult        *Result     `json:"last_result"`
	Auto              *AutoStatus `json:"auto,omitempty"`
}

// Config holds the orchestrator's collaborators and limits.
type Config struct {
	Camera   Camera
	Pipeline detector.Pipeline
	Store    *store.Store

	// MinInterval is the capture cooldown. Zero means the default.
	MinInterval time.Duration

	// Initial settings; both are clamped.
	Confidence float64
	Slices     int
}

// Orchestrator enforces capture cooldown and mode exclusivity, and runs the
// capture, detect, persist sequence for both manual and automated captures.
type Orchestrator struct {
	camera      Camera
	pipeline    detector.Pipeline
	store       *store.Store
	minInterval time.Duration

	// captureMu is held across an entire capture sequence so concurrent
	// requests serialize and re-check the cooldown against the true
	// last-capture time.
	captureMu sync.Mutex

	// mu guards the state fields below. Never held across a hardware or
	// pipeline call.
	mu          sync.Mutex
	mode        Mode
	confidence  float64
	slices      int
	lastCapture time.Time
	processing  bool
	lastResult  *Result

	auto struct {
		interval time.Duration
		max      int
		done     int
		nextAt   time.Time
		running  bool
	}
	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates an Orchestrator in manual mode.
func New(cfg Config) *Orchestrator {
	minInterval := cfg.MinInterval
	if minInterval <= 0 {
		minInterval = config.MinCaptureInterval
	}
	confidence := cfg.Confidence
	if confidence == 0 {
		confidence = config.DefaultConfidence
	}
	slices := cfg.Slices
	if slices == 0 {
		slices = config.DefaultSlices
	}

	return &Orchestrator{
		camera:      cfg.Camera,
		pipeline:    cfg.Pipeline,
		store:       cfg.Store,
		minInterval: minInterval,
		mode:        ModeManual,
		confidence:  clampConfidence(confidence),
		slices:      clampSlices(slices),
	}
}

func clampConfidence(v float64) float64 {
	if v < config.MinConfidence {
		return config.MinConfidence
	}
	if v > config.MaxConfidence {
		return config.MaxConfidence
	}
	return v
}

func clampSlices(n int) int {
	if n < config.MinSlices {
		return config.MinSlices
	}
	if n > config.MaxSlices {
		return config.MaxSlices
	}
	return n
}

// SetConfidence updates the confidence threshold, clamped to its valid range.
// Takes effect on the next capture, including mid-automated-run.
func (o *Orchestrator) SetConfidence(v float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.confidence = clampConfidence(v)
}

// Confidence returns the current confidence threshold.
func (o *Orchestrator) Confidence() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.confidence
}

// SetSlices updates the slice-grid dimension, clamped to its valid range.
func (o *Orchestrator) SetSlices(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.slices = clampSlices(n)
}

// Slices returns the current slice-grid dimension.
func (o *Orchestrator) Slices() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.slices
}

// cooldownRemaining returns how much of the cooldown window is left.
// o.mu must be held.
func (o *Orchestrator) cooldownRemaining(now time.Time) time.Duration {
	if o.lastCapture.IsZero() {
		return 0
	}
	remaining := o.minInterval - now.Sub(o.lastCapture)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ManualCapture triggers a single capture. It fails with ErrModeConflict
// during an automated run and with CooldownError inside the cooldown window;
// neither failure mutates any state.
func (o *Orchestrator) ManualCapture() (*Result, error) {
	o.captureMu.Lock()
	defer o.captureMu.Unlock()

	o.mu.Lock()
	if o.mode == ModeAutomated {
		o.mu.Unlock()
		return nil, ErrModeConflict
	}
	if remaining := o.cooldownRemaining(time.Now()); remaining > 0 {
		o.mu.Unlock()
		return nil, &CooldownError{Remaining: remaining}
	}
	o.mu.Unlock()

	return o.doCapture()
}

// StartAutomated begins an automated run taking up to maxCaptures captures
// spaced by interval. Validation failures never mutate state.
func (o *Orchestrator) StartAutomated(interval time.Duration, maxCaptures int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if interval < o.minInterval {
		return ErrInvalidInterval
	}
	if maxCaptures < 1 {
		return ErrInvalidMaxCaptures
	}
	if o.mode == ModeAutomated {
		return ErrAlreadyRunning
	}

	o.mode = ModeAutomated
	o.auto.interval = interval
	o.auto.max = maxCaptures
	o.auto.done = 0
	o.auto.nextAt = time.Time{}
	o.auto.running = true
	o.stopCh = make(chan struct{})
	o.doneCh = make(chan struct{})
	go o.automatedLoop(o.stopCh, o.doneCh)

	log.Printf("Automated capture started: interval=%s, max=%d", interval, maxCaptures)
	return nil
}

// StopAutomated ends the automated run, waiting for the loop with a bounded
// timeout. Safe to call when no run is active.
func (o *Orchestrator) StopAutomated() {
	o.mu.Lock()
	stop, done := o.stopCh, o.doneCh
	o.stopCh = nil
	o.doneCh = nil
	o.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	select {
	case <-done:
	case <-time.After(stopTimeout):
		log.Println("Automated loop did not exit in time")
	}

	o.mu.Lock()
	doneCount, max := o.auto.done, o.auto.max
	o.mu.Unlock()
	log.Printf("Automated capture stopped. Completed %d/%d captures.", doneCount, max)
}

// automatedLoop takes captures spaced by the run interval until the target
// count is reached or stop closes. Only successful captures count; a failed
// attempt is logged and the loop pauses briefly before trying again.
func (o *Orchestrator) automatedLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer func() {
		o.mu.Lock()
		o.mode = ModeManual
		o.auto.running = false
		o.auto.nextAt = time.Time{}
		o.mu.Unlock()
		log.Println("Automated capture session ended")
	}()

	for {
		o.mu.Lock()
		if o.auto.done >= o.auto.max {
			o.mu.Unlock()
			return
		}
		wait := o.auto.interval - time.Since(o.lastCapture)
		if o.lastCapture.IsZero() {
			wait = 0
		}
		if wait > 0 {
			o.auto.nextAt = time.Now().Add(wait)
		}
		o.mu.Unlock()

		if wait > 0 {
			select {
			case <-stop:
				return
			case <-time.After(wait):
			}
		}
		select {
		case <-stop:
			return
		default:
		}

		o.captureMu.Lock()
		_, err := o.doCapture()
		o.captureMu.Unlock()
		if err != nil {
			log.Printf("Automated capture failed: %v", err)
			select {
			case <-stop:
				return
			case <-time.After(failurePause):
			}
			continue
		}

		o.mu.Lock()
		o.auto.done++
		doneCount, max := o.auto.done, o.auto.max
		o.mu.Unlock()
		log.Printf("Automated capture %d/%d complete", doneCount, max)
	}
}

// doCapture runs the capture, detect, persist sequence. The processing flag
// is cleared on every exit path. The last-capture time only advances on
// success, so a failed attempt does not impose a fresh cooldown window.
func (o *Orchestrator) doCapture() (*Result, error) {
	o.mu.Lock()
	o.processing = true
	confidence, slices := o.confidence, o.slices
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.processing = false
		o.mu.Unlock()
	}()

	rawPath, err := o.camera.CaptureHighRes()
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}

	det, err := o.pipeline.DetectSliced(rawPath, confidence, slices)
	if err != nil {
		return nil, fmt.Errorf("detection: %w", err)
	}

	record := &store.Detection{
		ObjectCount:         det.ObjectCount,
		ConfidenceThreshold: confidence,
		SliceCount:          slices,
		ImageFilename:       det.ImageFilename,
	}
	if err := o.store.Detections().Create(record); err != nil {
		return nil, fmt.Errorf("persist detection: %w", err)
	}

	result := &Result{
		RecordID:      record.ID,
		Timestamp:     record.Timestamp,
		ObjectCount:   det.ObjectCount,
		ImageFilename: det.ImageFilename,
		DurationMs:    det.DurationMs,
		Confidence:    confidence,
		Slices:        slices,
	}

	// Cooldown is measured from completion, not request start.
	o.mu.Lock()
	o.lastCapture = time.Now()
	o.lastResult = result
	o.mu.Unlock()

	return result, nil
}

// Status returns the current capture state for polling callers.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := time.Now()
	st := Status{
		Mode:              o.mode,
		IsProcessing:      o.processing,
		CooldownRemaining: roundTenth(o.cooldownRemaining(now).Seconds()),
		Confidence:        o.confidence,
		Slices:            o.slices,
		LastResult:        o.lastResult,
	}

	if o.mode == ModeAutomated {
		nextIn := 0.0
		if o.auto.running && !o.auto.nextAt.IsZero() {
			nextIn = o.auto.nextAt.Sub(now).Seconds()
			if nextIn < 0 {
				nextIn = 0
			}
		}
		st.Auto = &AutoStatus{
			Interval:      o.auto.interval.Seconds(),
			MaxCaptures:   o.auto.max,
			CapturesDone:  o.auto.done,
			Remaining:     o.auto.max - o.auto.done,
			NextCaptureIn: roundTenth(nextIn),
		}
	}

	return st
}

// LastCaptureTime returns when the last capture completed, zero if none has.
func (o *Orchestrator) LastCaptureTime() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastCapture
}

func roundTenth(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}
