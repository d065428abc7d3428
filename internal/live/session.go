// Package live implements continuous direct-inference detection over the
// camera's main stream.
package live

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/birdseye-cam/birdseye/internal/config"
	"github.com/birdseye-cam/birdseye/internal/detector"
)

// ErrUnknownResolution is returned for a resolution key outside the fixed
// preset set.
var ErrUnknownResolution = errors.New("unknown resolution preset")

const (
	// loopBackoff is how long the frame loop waits after a failed iteration.
	loopBackoff = 500 * time.Millisecond

	// stopTimeout bounds the wait for the frame loop on Stop.
	stopTimeout = 5 * time.Second

	// streamQuality is the JPEG quality of published annotated frames.
	streamQuality = 70
)

// Camera is the slice of the camera manager the session needs.
type Camera interface {
	CaptureMainFrame() (gocv.Mat, error)
	Reconfigure(width, height int) error
}

// Status is the pollable live detection snapshot.
type Status struct {
	Active               bool     `json:"active"`
	Confidence           float64  `json:"confidence"`
	Resolution           string   `json:"resolution"`
	FPS                  float64  `json:"fps"`
	ObjectCount          int      `json:"object_count"`
	AvailableResolutions []string `json:"available_resolutions"`
}

// Config holds the session's collaborators and initial settings.
type Config struct {
	Camera   Camera
	Pipeline detector.Pipeline

	// Confidence and Resolution default to the standard live settings.
	Confidence float64
	Resolution string

	// CaptureWidth/Height is the main-stream size restored on Stop, handing
	// the hardware back to still capture. Zero means the defaults.
	CaptureWidth  int
	CaptureHeight int
}

// Session toggles a continuous detection loop against the main stream. While
// active, one goroutine pulls frames, runs direct inference and publishes the
// annotated JPEG plus object count and fps tallies into latest-value slots
// read by status polls and any number of MJPEG viewers.
//
// The session does not arbitrate against the capture orchestrator; both
// serialize through the camera manager, but driving them at the same time
// makes each reconfigure the hardware to its own preferred resolution.
type Session struct {
	camera   Camera
	pipeline detector.Pipeline
	presets  map[string]config.Resolution
	captureW int
	captureH int

	mu          sync.Mutex
	active      bool
	confidence  float64
	resolution  string
	fps         float64
	objectCount int
	stopCh      chan struct{}
	doneCh      chan struct{}

	// frameMu guards only the published frame, never held with mu.
	frameMu sync.Mutex
	frame   []byte
}

// New creates an inactive Session.
func New(cfg Config) *Session {
	confidence := cfg.Confidence
	if confidence == 0 {
		confidence = config.DefaultConfidence
	}
	resolution := cfg.Resolution
	if resolution == "" {
		resolution = config.DefaultLiveResolution
	}
	captureW, captureH := cfg.CaptureWidth, cfg.CaptureHeight
	if captureW == 0 || captureH == 0 {
		captureW, captureH = config.DefaultCaptureWidth, config.DefaultCaptureHeight
	}

	return &Session{
		camera:     cfg.Camera,
		pipeline:   cfg.Pipeline,
		presets:    config.ResolutionPresets,
		captureW:   captureW,
		captureH:   captureH,
		confidence: clampConfidence(confidence),
		resolution: resolution,
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

// Start reconfigures the camera to the current resolution preset and starts
// the frame loop. Idempotent while active: a second call performs no
// duplicate reconfigure.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return nil
	}

	res, ok := s.presets[s.resolution]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownResolution, s.resolution)
	}
	if err := s.camera.Reconfigure(res.Width, res.Height); err != nil {
		return fmt.Errorf("reconfigure for live detection: %w", err)
	}

	s.active = true
	s.fps = 0
	s.objectCount = 0
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.frameLoop(s.stopCh, s.doneCh)

	log.Printf("Live detection started at %s", s.resolution)
	return nil
}

// Stop ends the frame loop with a bounded wait and restores the still-capture
// resolution, handing exclusive hardware use back to the capture workflow.
func (s *Session) Stop() error {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return nil
	}
	s.active = false
	stop, done := s.stopCh, s.doneCh
	s.mu.Unlock()

	close(stop)
	select {
	case <-done:
	case <-time.After(stopTimeout):
		log.Println("Live frame loop did not exit in time")
	}

	s.frameMu.Lock()
	s.frame = nil
	s.frameMu.Unlock()

	if err := s.camera.Reconfigure(s.captureW, s.captureH); err != nil {
		return fmt.Errorf("restore capture resolution: %w", err)
	}
	log.Println("Live detection stopped, camera restored to capture resolution")
	return nil
}

// UpdateSettings applies any non-nil setting. Confidence is clamped; an
// unrecognized resolution key fails without mutating anything. A resolution
// change while active reconfigures the camera immediately so the loop picks
// up the new frame size on its next pull.
func (s *Session) UpdateSettings(confidence *float64, resolution *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res config.Resolution
	if resolution != nil {
		var ok bool
		res, ok = s.presets[*resolution]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownResolution, *resolution)
		}
	}

	if confidence != nil {
		s.confidence = clampConfidence(*confidence)
	}

	if resolution != nil && *resolution != s.resolution {
		if s.active {
			if err := s.camera.Reconfigure(res.Width, res.Height); err != nil {
				return fmt.Errorf("reconfigure for %s: %w", *resolution, err)
			}
		}
		s.resolution = *resolution
	}

	return nil
}

// frameLoop pulls main-stream frames, runs direct inference and publishes
// the annotated result until stop closes. Frames arrive in BGR layout per
// the hardware contract, so no color conversion is needed before inference.
// Per-iteration failures are logged and retried after a short backoff.
func (s *Session) frameLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	frameCount := 0
	windowStart := time.Now()

	for {
		select {
		case <-stop:
			return
		default:
		}

		frame, err := s.camera.CaptureMainFrame()
		if err != nil {
			log.Printf("Live frame capture failed: %v", err)
			if !sleepUnless(stop, loopBackoff) {
				return
			}
			continue
		}

		count, err := s.pipeline.DetectDirect(&frame, s.Confidence())
		if err != nil {
			frame.Close()
			log.Printf("Live detection failed: %v", err)
			if !sleepUnless(stop, loopBackoff) {
				return
			}
			continue
		}

		buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, frame,
			[]int{gocv.IMWriteJpegQuality, streamQuality})
		frame.Close()
		if err != nil {
			log.Printf("Live frame encode failed: %v", err)
			continue
		}
		encoded := make([]byte, buf.Len())
		copy(encoded, buf.GetBytes())
		buf.Close()

		s.frameMu.Lock()
		s.frame = encoded
		s.frameMu.Unlock()

		frameCount++
		elapsed := time.Since(windowStart)

		s.mu.Lock()
		s.objectCount = count
		if elapsed >= time.Second {
			s.fps = float64(frameCount) / elapsed.Seconds()
			frameCount = 0
			windowStart = time.Now()
		}
		s.mu.Unlock()
	}
}

// sleepUnless waits for d, returning false if stop closes first.
func sleepUnless(stop <-chan struct{}, d time.Duration) bool {
	select {
	case <-stop:
		return false
	case <-time.After(d):
		return true
	}
}

// Active reports whether the session is running.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Confidence returns the current confidence threshold.
func (s *Session) Confidence() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confidence
}

// AnnotatedFrame returns the latest published annotated JPEG, empty before
// the first successful iteration or while inactive.
func (s *Session) AnnotatedFrame() []byte {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()
	return s.frame
}

// Status returns the live detection snapshot for polling callers.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Status{
		Active:               s.active,
		Confidence:           s.confidence,
		Resolution:           s.resolution,
		FPS:                  roundTenth(s.fps),
		ObjectCount:          s.objectCount,
		AvailableResolutions: config.ResolutionKeys(),
	}
}

func roundTenth(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}
