package camera

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockHardware is a test implementation of the Hardware interface. It records
// lifecycle calls and serves canned frames so tests can drive the Manager
// without a physical camera.
type MockHardware struct {
	mu      sync.Mutex
	spec    StreamSpec
	started bool

	// Error overrides for each operation.
	ConfigureErr error
	StartErr     error
	StopErr      error
	CaptureErr   error

	// Frame served by CaptureEncoded.
	EncodedFrame []byte

	// Call counters.
	ConfigureCalls int
	StartCalls     int
	StopCalls      int
	CaptureCalls   int
	FileCaptures   []string
}

// NewMockHardware creates a mock that serves the given encoded preview frame.
func NewMockHardware(frame []byte) *MockHardware {
	return &MockHardware{EncodedFrame: frame}
}

func (m *MockHardware) Configure(spec StreamSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ConfigureCalls++
	if m.ConfigureErr != nil {
		return m.ConfigureErr
	}
	m.spec = spec
	return nil
}

func (m *MockHardware) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.StartCalls++
	if m.StartErr != nil {
		return m.StartErr
	}
	m.started = true
	return nil
}

func (m *MockHardware) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.StopCalls++
	if m.StopErr != nil {
		return m.StopErr
	}
	m.started = false
	return nil
}

func (m *MockHardware) CaptureEncoded(stream string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CaptureCalls++
	if !m.started {
		return nil, ErrHardwareNotStarted
	}
	if m.CaptureErr != nil {
		return nil, m.CaptureErr
	}
	return m.EncodedFrame, nil
}

func (m *MockHardware) CaptureRaw(stream string) (gocv.Mat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CaptureCalls++
	if !m.started {
		return gocv.Mat{}, ErrHardwareNotStarted
	}
	if m.CaptureErr != nil {
		return gocv.Mat{}, m.CaptureErr
	}

	w, h := m.spec.MainWidth, m.spec.MainHeight
	if w <= 0 || h <= 0 {
		w, h = 64, 48
	}
	return gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC3), nil
}

func (m *MockHardware) CaptureToFile(stream, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CaptureCalls++
	if !m.started {
		return ErrHardwareNotStarted
	}
	if m.CaptureErr != nil {
		return m.CaptureErr
	}
	m.FileCaptures = append(m.FileCaptures, path)
	return nil
}

func (m *MockHardware) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = false
	return nil
}

// Spec returns the last configured stream spec.
func (m *MockHardware) Spec() StreamSpec {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.spec
}

// IsStarted reports whether the hardware is currently started.
func (m *MockHardware) IsStarted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// SetCaptureErr swaps the capture error while the Manager is running.
func (m *MockHardware) SetCaptureErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CaptureErr = err
}
