package detector

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockPipeline is a test implementation of the Pipeline interface. It lets
// tests control detection results and inspect the parameters they were
// invoked with.
type MockPipeline struct {
	mu sync.Mutex

	result      *Result
	directCount int
	err         error

	SlicedCalls    int
	DirectCalls    int
	LastImagePath  string
	LastConfidence float64
	LastSlices     int
}

// NewMockPipeline creates a mock that reports zero detections.
func NewMockPipeline() *MockPipeline {
	return &MockPipeline{
		result: &Result{ObjectCount: 0, ImageFilename: "mock.jpg", DurationMs: 1},
	}
}

// SetResult sets the result returned by DetectSliced.
func (m *MockPipeline) SetResult(r *Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.result = r
}

// SetDirectCount sets the count returned by DetectDirect.
func (m *MockPipeline) SetDirectCount(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.directCount = n
}

// SetError sets the error returned by both operations.
func (m *MockPipeline) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockPipeline) DetectSliced(imagePath string, confidence float64, slices int) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SlicedCalls++
	m.LastImagePath = imagePath
	m.LastConfidence = confidence
	m.LastSlices = slices

	if m.err != nil {
		return nil, m.err
	}
	r := *m.result
	return &r, nil
}

func (m *MockPipeline) DetectDirect(frame *gocv.Mat, confidence float64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.DirectCalls++
	m.LastConfidence = confidence

	if m.err != nil {
		return 0, m.err
	}
	return m.directCount, nil
}

func (m *MockPipeline) Close() error {
	return nil
}

// Calls returns the sliced and direct invocation counts.
func (m *MockPipeline) Calls() (sliced, direct int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.SlicedCalls, m.DirectCalls
}
