package camera

import "fmt"

// Stream names for the hardware's dual output. The main stream carries
// full-resolution frames for stills and live inference; the preview stream is
// the cheap low-res path behind the live MJPEG view.
const (
	StreamMain    = "main"
	StreamPreview = "lores"
)

// StreamSpec describes the hardware's dual-output configuration.
type StreamSpec struct {
	MainWidth     int
	MainHeight    int
	PreviewWidth  int
	PreviewHeight int
	PixelFormat   string
}

// Validate checks that both streams have positive dimensions and that the
// preview stream is no larger than the main stream in pixel count.
func (s StreamSpec) Validate() error {
	if s.MainWidth <= 0 || s.MainHeight <= 0 {
		return fmt.Errorf("invalid main stream size %dx%d", s.MainWidth, s.MainHeight)
	}
	if s.PreviewWidth <= 0 || s.PreviewHeight <= 0 {
		return fmt.Errorf("invalid preview stream size %dx%d", s.PreviewWidth, s.PreviewHeight)
	}
	if s.PreviewWidth*s.PreviewHeight > s.MainWidth*s.MainHeight {
		return fmt.Errorf("preview stream %dx%d larger than main stream %dx%d",
			s.PreviewWidth, s.PreviewHeight, s.MainWidth, s.MainHeight)
	}
	return nil
}
