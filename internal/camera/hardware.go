// Package camera owns the single physical camera. All configuration and
// capture calls are serialized through the Manager; nothing else in the
// process touches the hardware directly.
package camera

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/birdseye-cam/birdseye/internal/config"
)

// ErrHardwareNotStarted is returned when a capture is requested from hardware
// that has not been started.
var ErrHardwareNotStarted = errors.New("camera hardware is not started")

// Hardware is the capability contract for the physical camera. Calls are not
// safe for concurrent use; the Manager serializes them.
type Hardware interface {
	// Configure applies a dual-stream configuration. May be called again
	// after Stop to change resolution.
	Configure(spec StreamSpec) error

	// Start opens the device with the configured streams.
	Start() error

	// Stop halts frame delivery but keeps the configuration.
	Stop() error

	// CaptureEncoded grabs one frame from the named stream as JPEG bytes.
	CaptureEncoded(stream string) ([]byte, error)

	// CaptureRaw grabs one frame from the named stream as a BGR Mat.
	// The caller owns the returned Mat and must close it.
	CaptureRaw(stream string) (gocv.Mat, error)

	// CaptureToFile grabs one frame from the named stream and writes it to
	// the given path as JPEG.
	CaptureToFile(stream, path string) error

	// Close releases the device.
	Close() error
}

// videoHardware implements Hardware on top of a gocv VideoCapture. The device
// runs at the main-stream resolution; preview frames are downscaled copies.
type videoHardware struct {
	deviceID int
	capture  *gocv.VideoCapture
	spec     StreamSpec
	mu       sync.Mutex
	started  bool
}

// NewVideoHardware creates hardware backed by the V4L2 device with the given ID.
func NewVideoHardware(deviceID int) Hardware {
	return &videoHardware{deviceID: deviceID}
}

func (h *videoHardware) Configure(spec StreamSpec) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := spec.Validate(); err != nil {
		return err
	}
	h.spec = spec

	if h.capture != nil {
		h.capture.Set(gocv.VideoCaptureFrameWidth, float64(spec.MainWidth))
		h.capture.Set(gocv.VideoCaptureFrameHeight, float64(spec.MainHeight))
	}
	return nil
}

func (h *videoHardware) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.started {
		return nil
	}

	capture, err := gocv.OpenVideoCapture(h.deviceID)
	if err != nil {
		return fmt.Errorf("open camera device %d: %w", h.deviceID, err)
	}
	capture.Set(gocv.VideoCaptureFrameWidth, float64(h.spec.MainWidth))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(h.spec.MainHeight))

	h.capture = capture
	h.started = true
	return nil
}

func (h *videoHardware) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started || h.capture == nil {
		h.started = false
		return nil
	}

	err := h.capture.Close()
	h.capture = nil
	h.started = false
	return err
}

// readFrame grabs one main-stream frame. Caller must close the Mat.
// h.mu must be held.
func (h *videoHardware) readFrame() (gocv.Mat, error) {
	if !h.started || h.capture == nil {
		return gocv.Mat{}, ErrHardwareNotStarted
	}

	mat := gocv.NewMat()
	if ok := h.capture.Read(&mat); !ok {
		mat.Close()
		return gocv.Mat{}, errors.New("failed to read frame from camera")
	}
	if mat.Empty() {
		mat.Close()
		return gocv.Mat{}, errors.New("captured frame is empty")
	}
	return mat, nil
}

// frameFor grabs a frame sized for the named stream. h.mu must be held.
func (h *videoHardware) frameFor(stream string) (gocv.Mat, error) {
	mat, err := h.readFrame()
	if err != nil {
		return gocv.Mat{}, err
	}

	if stream == StreamPreview {
		scaled := gocv.NewMat()
		gocv.Resize(mat, &scaled, image.Pt(h.spec.PreviewWidth, h.spec.PreviewHeight), 0, 0, gocv.InterpolationArea)
		mat.Close()
		return scaled, nil
	}
	return mat, nil
}

func (h *videoHardware) CaptureEncoded(stream string) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	mat, err := h.frameFor(stream)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat,
		[]int{gocv.IMWriteJpegQuality, config.PreviewQuality})
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", stream, err)
	}
	defer buf.Close()

	// Copy out: the native buffer is freed on Close.
	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

func (h *videoHardware) CaptureRaw(stream string) (gocv.Mat, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.frameFor(stream)
}

func (h *videoHardware) CaptureToFile(stream, path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	mat, err := h.frameFor(stream)
	if err != nil {
		return err
	}
	defer mat.Close()

	if ok := gocv.IMWrite(path, mat); !ok {
		return fmt.Errorf("failed to write %s frame to %s", stream, path)
	}
	return nil
}

func (h *videoHardware) Close() error {
	return h.Stop()
}
