package camera

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/birdseye-cam/birdseye/internal/config"
)

// ErrNotInitialized is returned when a capture is requested before Start.
var ErrNotInitialized = errors.New("camera manager is not initialized")

const (
	// previewBackoff is how long the preview loop waits after a failed
	// acquisition before retrying.
	previewBackoff = 500 * time.Millisecond

	// stopTimeout bounds the wait for the preview loop on Stop. Shutdown
	// proceeds regardless once it elapses.
	stopTimeout = 5 * time.Second
)

// DefaultStreamSpec is the dual-stream configuration used for still capture.
func DefaultStreamSpec() StreamSpec {
	return StreamSpec{
		MainWidth:     config.DefaultCaptureWidth,
		MainHeight:    config.DefaultCaptureHeight,
		PreviewWidth:  config.DefaultPreviewWidth,
		PreviewHeight: config.DefaultPreviewHeight,
		PixelFormat:   "BGR888",
	}
}

// Manager is the exclusive owner of the camera hardware. It runs the
// background preview loop and serializes every configure and capture call so
// the preview loop, still captures, raw frame pulls and reconfigures never
// overlap on the device.
type Manager struct {
	hw      Hardware
	tempDir string

	// hwMu serializes all hardware access and guards spec/running/stopCh.
	hwMu    sync.Mutex
	spec    StreamSpec
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	// frameMu guards only the preview buffer. It is never held across a
	// hardware call, so viewers never wait on the camera.
	frameMu sync.Mutex
	frame   []byte
	frameAt time.Time

	previewInterval time.Duration
}

// NewManager creates a Manager that will drive the given hardware with spec.
// Raw stills are written into tempDir.
func NewManager(hw Hardware, spec StreamSpec, tempDir string) *Manager {
	return &Manager{
		hw:              hw,
		spec:            spec,
		tempDir:         tempDir,
		previewInterval: time.Second / config.PreviewFPS,
	}
}

// Start configures and starts the hardware, then launches the preview loop.
// Initialization failures propagate; there is no retry at this layer.
func (m *Manager) Start() error {
	m.hwMu.Lock()
	defer m.hwMu.Unlock()

	if m.running {
		return nil
	}

	if err := m.spec.Validate(); err != nil {
		return err
	}
	if err := m.hw.Configure(m.spec); err != nil {
		return fmt.Errorf("configure camera: %w", err)
	}
	if err := m.hw.Start(); err != nil {
		return fmt.Errorf("start camera: %w", err)
	}

	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	go m.previewLoop(m.stopCh, m.doneCh)

	log.Printf("Camera started: preview %dx%d, capture %dx%d",
		m.spec.PreviewWidth, m.spec.PreviewHeight, m.spec.MainWidth, m.spec.MainHeight)
	return nil
}

// Stop signals the preview loop, waits for it with a bounded timeout, then
// stops and releases the hardware. Safe to call if Start failed or was never
// called.
func (m *Manager) Stop() {
	m.hwMu.Lock()
	if !m.running {
		m.hwMu.Unlock()
		return
	}
	m.running = false
	stop, done := m.stopCh, m.doneCh
	m.hwMu.Unlock()

	close(stop)
	select {
	case <-done:
	case <-time.After(stopTimeout):
		log.Println("Preview loop did not exit in time, releasing camera anyway")
	}

	m.hwMu.Lock()
	defer m.hwMu.Unlock()
	if err := m.hw.Stop(); err != nil {
		log.Printf("Error stopping camera: %v", err)
	}
	if err := m.hw.Close(); err != nil {
		log.Printf("Error closing camera: %v", err)
	}
	log.Println("Camera stopped")
}

// previewLoop continuously refills the preview buffer with the latest low-res
// JPEG frame. Transient capture failures (including the stop/restart window
// of a concurrent Reconfigure) are logged and retried; the loop only exits
// when stop is closed.
func (m *Manager) previewLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		m.hwMu.Lock()
		buf, err := m.hw.CaptureEncoded(StreamPreview)
		m.hwMu.Unlock()

		if err != nil {
			log.Printf("Preview capture failed: %v", err)
			if !sleepUnless(stop, previewBackoff) {
				return
			}
			continue
		}

		m.frameMu.Lock()
		m.frame = buf
		m.frameAt = time.Now()
		m.frameMu.Unlock()

		if !sleepUnless(stop, m.previewInterval) {
			return
		}
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

// PreviewFrame returns the latest buffered preview frame. It never blocks on
// the hardware and returns an empty slice before the first acquisition. The
// returned bytes are never mutated after publication.
func (m *Manager) PreviewFrame() []byte {
	m.frameMu.Lock()
	defer m.frameMu.Unlock()
	return m.frame
}

// PreviewFrameTime returns the capture time of the buffered preview frame.
func (m *Manager) PreviewFrameTime() time.Time {
	m.frameMu.Lock()
	defer m.frameMu.Unlock()
	return m.frameAt
}

// CaptureHighRes writes one full-resolution still from the main stream into
// the temp directory and returns its path.
func (m *Manager) CaptureHighRes() (string, error) {
	m.hwMu.Lock()
	defer m.hwMu.Unlock()

	if !m.running {
		return "", ErrNotInitialized
	}

	path := filepath.Join(m.tempDir, fmt.Sprintf("capture_%d.jpg", time.Now().UnixMilli()))
	if err := m.hw.CaptureToFile(StreamMain, path); err != nil {
		return "", fmt.Errorf("high-res capture: %w", err)
	}
	log.Printf("High-res capture saved: %s", path)
	return path, nil
}

// CaptureMainFrame returns one in-memory frame from the main stream, avoiding
// storage I/O. The caller owns the Mat and must close it.
func (m *Manager) CaptureMainFrame() (gocv.Mat, error) {
	m.hwMu.Lock()
	defer m.hwMu.Unlock()

	if !m.running {
		return gocv.Mat{}, ErrNotInitialized
	}

	mat, err := m.hw.CaptureRaw(StreamMain)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("main frame capture: %w", err)
	}
	return mat, nil
}

// Reconfigure changes the main-stream resolution, keeping the preview stream
// unchanged. A request matching the current resolution is a no-op. Otherwise
// the hardware is stopped, reconfigured and restarted as one unit under the
// hardware lock; the preview loop observes transient failures during that
// window and retries. A failure here leaves the hardware in an indeterminate
// state and propagates.
func (m *Manager) Reconfigure(width, height int) error {
	m.hwMu.Lock()
	defer m.hwMu.Unlock()

	if !m.running {
		return ErrNotInitialized
	}
	if width == m.spec.MainWidth && height == m.spec.MainHeight {
		return nil
	}

	next := m.spec
	next.MainWidth = width
	next.MainHeight = height
	if err := next.Validate(); err != nil {
		return err
	}

	if err := m.hw.Stop(); err != nil {
		return fmt.Errorf("stop camera for reconfigure: %w", err)
	}
	if err := m.hw.Configure(next); err != nil {
		return fmt.Errorf("reconfigure camera: %w", err)
	}
	if err := m.hw.Start(); err != nil {
		return fmt.Errorf("restart camera: %w", err)
	}

	m.spec = next
	log.Printf("Camera reconfigured to %dx%d", width, height)
	return nil
}

// Spec returns the current stream configuration.
func (m *Manager) Spec() StreamSpec {
	m.hwMu.Lock()
	defer m.hwMu.Unlock()
	return m.spec
}
