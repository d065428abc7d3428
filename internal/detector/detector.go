// Package detector provides the object detection pipeline: sliced inference
// over high-resolution stills and direct inference over live frames.
package detector

import (
	"errors"

	"gocv.io/x/gocv"
)

// ErrModelUnavailable is returned when the model artifact is missing or
// cannot be loaded.
var ErrModelUnavailable = errors.New("detection model unavailable")

// ErrInvalidInput is returned when an input image cannot be read.
var ErrInvalidInput = errors.New("invalid detection input")

// Result holds the outcome of a sliced detection over a still image.
type Result struct {
	ObjectCount   int    `json:"object_count"`
	ImageFilename string `json:"image_filename"`
	DurationMs    int64  `json:"duration_ms"`
}

// Pipeline defines the two independent detection operations the orchestrators
// consume. Implementations must be safe for concurrent use.
type Pipeline interface {
	// DetectSliced tiles the image at imagePath into a slices x slices grid,
	// runs inference per tile, writes an annotated copy into the captures
	// directory and returns the summary. The raw input file is removed on
	// success.
	DetectSliced(imagePath string, confidence float64, slices int) (*Result, error)

	// DetectDirect runs single-pass inference over frame, drawing boxes on
	// it in place, and returns the number of detected objects.
	DetectDirect(frame *gocv.Mat, confidence float64) (int, error)

	// Close releases the model.
	Close() error
}
