package detector

import (
	"fmt"
	"image"
	"image/color"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

const (
	// netInputSize is the square input size the network was exported with.
	netInputSize = 640

	// tileOverlap is the fraction of each tile shared with its neighbor, so
	// objects on a tile boundary appear whole in at least one tile.
	tileOverlap = 0.2

	// nmsThreshold is the IoU threshold for cross-tile box suppression.
	nmsThreshold = 0.45
)

var boxColor = color.RGBA{G: 255}

// YOLOPipeline runs a YOLO ONNX model through OpenCV's DNN module on the CPU.
// The model is loaded lazily on first use so the process starts even when the
// artifact has not been deployed yet.
type YOLOPipeline struct {
	modelPath   string
	capturesDir string
	labels      []string

	mu     sync.Mutex
	net    gocv.Net
	loaded bool
}

// NewYOLOPipeline creates a pipeline for the ONNX model at modelPath.
// Annotated images are written into capturesDir. labels maps class IDs to
// display names; out-of-range IDs render as "Object".
func NewYOLOPipeline(modelPath, capturesDir string, labels []string) *YOLOPipeline {
	return &YOLOPipeline{
		modelPath:   modelPath,
		capturesDir: capturesDir,
		labels:      labels,
	}
}

// loadNet loads the model if it is not loaded yet. p.mu must be held.
func (p *YOLOPipeline) loadNet() error {
	if p.loaded {
		return nil
	}

	if _, err := os.Stat(p.modelPath); err != nil {
		return fmt.Errorf("%w: %s", ErrModelUnavailable, p.modelPath)
	}

	log.Printf("Loading detection model from %s ...", p.modelPath)
	net := gocv.ReadNetFromONNX(p.modelPath)
	if net.Empty() {
		return fmt.Errorf("%w: failed to load %s", ErrModelUnavailable, p.modelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	p.net = net
	p.loaded = true
	log.Println("Detection model loaded")
	return nil
}

// detection is one raw box before suppression.
type detection struct {
	rect  image.Rectangle
	score float32
	class int
}

// infer runs one forward pass over frame and returns raw detections in frame
// coordinates. p.mu must be held.
func (p *YOLOPipeline) infer(frame gocv.Mat, confidence float64) ([]detection, error) {
	blob := gocv.BlobFromImage(frame, 1.0/255.0,
		image.Pt(netInputSize, netInputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	p.net.SetInput(blob, "")
	output := p.net.Forward("")
	defer output.Close()

	dims := output.Size()
	if len(dims) < 3 {
		return nil, fmt.Errorf("unexpected model output rank %d", len(dims))
	}
	rows, cols := dims[1], dims[2]

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read model output: %w", err)
	}

	// BlobFromImage stretches to the square input, so coordinates scale back
	// independently per axis.
	scaleX := float32(frame.Cols()) / netInputSize
	scaleY := float32(frame.Rows()) / netInputSize

	var out []detection
	for i := 0; i < rows; i++ {
		row := data[i*cols : (i+1)*cols]

		objectness := row[4]
		classID := 0
		best := float32(0)
		for c := 5; c < cols; c++ {
			if row[c] > best {
				best = row[c]
				classID = c - 5
			}
		}
		score := objectness * best
		if float64(score) < confidence {
			continue
		}

		cx, cy := row[0]*scaleX, row[1]*scaleY
		w, h := row[2]*scaleX, row[3]*scaleY
		rect := image.Rect(
			int(cx-w/2), int(cy-h/2),
			int(cx+w/2), int(cy+h/2),
		)
		out = append(out, detection{rect: rect, score: score, class: classID})
	}
	return out, nil
}

// suppress applies non-maximum suppression across candidate boxes.
func suppress(candidates []detection, confidence float64) []detection {
	if len(candidates) == 0 {
		return nil
	}

	rects := make([]image.Rectangle, len(candidates))
	scores := make([]float32, len(candidates))
	for i, d := range candidates {
		rects[i] = d.rect
		scores[i] = d.score
	}

	indices := gocv.NMSBoxes(rects, scores, float32(confidence), nmsThreshold)
	kept := make([]detection, 0, len(indices))
	for _, idx := range indices {
		kept = append(kept, candidates[idx])
	}
	return kept
}

// label returns the display name for a class ID.
func (p *YOLOPipeline) label(classID int) string {
	if classID >= 0 && classID < len(p.labels) {
		return p.labels[classID]
	}
	return "Object"
}

// annotate draws a box and a label chip for each detection.
func (p *YOLOPipeline) annotate(img *gocv.Mat, dets []detection, thickness int) {
	for _, d := range dets {
		gocv.Rectangle(img, d.rect, boxColor, thickness)

		text := fmt.Sprintf("%s %.0f%%", p.label(d.class), d.score*100)
		size := gocv.GetTextSize(text, gocv.FontHersheySimplex, 0.7, 2)
		chip := image.Rect(
			d.rect.Min.X, d.rect.Min.Y-size.Y-8,
			d.rect.Min.X+size.X+8, d.rect.Min.Y,
		)
		gocv.Rectangle(img, chip, boxColor, -1)
		gocv.PutText(img, text,
			image.Pt(d.rect.Min.X+4, d.rect.Min.Y-6),
			gocv.FontHersheySimplex, 0.7, color.RGBA{}, 2)
	}
}

// DetectSliced runs tiled inference over the still at imagePath. The image is
// cut into a slices x slices grid with 20% overlap, each tile is inferred
// separately, boxes are mapped back to full-image coordinates and suppressed
// globally. The annotated image lands in the captures directory and the raw
// input is deleted on success.
func (p *YOLOPipeline) DetectSliced(imagePath string, confidence float64, slices int) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.loadNet(); err != nil {
		return nil, err
	}

	start := time.Now()

	img := gocv.IMRead(imagePath, gocv.IMReadColor)
	if img.Empty() {
		return nil, fmt.Errorf("%w: could not read image %s", ErrInvalidInput, imagePath)
	}
	defer img.Close()

	w, h := img.Cols(), img.Rows()
	sliceW := maxInt(w/slices, 1)
	sliceH := maxInt(h/slices, 1)
	stepX := maxInt(int(float64(sliceW)*(1-tileOverlap)), 1)
	stepY := maxInt(int(float64(sliceH)*(1-tileOverlap)), 1)

	log.Printf("Running sliced detection: confidence=%.2f, grid=%dx%d on %s",
		confidence, slices, slices, imagePath)

	var candidates []detection
	for y := 0; y < h; y += stepY {
		for x := 0; x < w; x += stepX {
			rect := image.Rect(x, y, minInt(x+sliceW, w), minInt(y+sliceH, h))
			tile := img.Region(rect)

			dets, err := p.infer(tile, confidence)
			tile.Close()
			if err != nil {
				return nil, err
			}

			for _, d := range dets {
				d.rect = d.rect.Add(image.Pt(x, y))
				candidates = append(candidates, d)
			}

			if rect.Max.X >= w {
				break
			}
		}
		if y+sliceH >= h {
			break
		}
	}

	kept := suppress(candidates, confidence)
	p.annotate(&img, kept, 3)

	filename := fmt.Sprintf("detection_%d.jpg", time.Now().UnixMilli())
	outputPath := filepath.Join(p.capturesDir, filename)
	if ok := gocv.IMWrite(outputPath, img); !ok {
		return nil, fmt.Errorf("failed to write annotated image %s", outputPath)
	}

	// The raw still has served its purpose; reclaim the tmpfs space.
	if err := os.Remove(imagePath); err != nil {
		log.Printf("Could not remove raw capture %s: %v", imagePath, err)
	}

	durationMs := time.Since(start).Milliseconds()
	log.Printf("Detection complete: %d objects in %d ms -> %s",
		len(kept), durationMs, filename)

	return &Result{
		ObjectCount:   len(kept),
		ImageFilename: filename,
		DurationMs:    durationMs,
	}, nil
}

// DetectDirect runs a single forward pass over frame and annotates it in
// place. Used by the live detection loop where latency matters more than
// small-object recall.
func (p *YOLOPipeline) DetectDirect(frame *gocv.Mat, confidence float64) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.loadNet(); err != nil {
		return 0, err
	}
	if frame == nil || frame.Empty() {
		return 0, fmt.Errorf("%w: empty frame", ErrInvalidInput)
	}

	dets, err := p.infer(*frame, confidence)
	if err != nil {
		return 0, err
	}
	kept := suppress(dets, confidence)
	p.annotate(frame, kept, 2)
	return len(kept), nil
}

// Close releases the loaded network.
func (p *YOLOPipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.loaded {
		p.loaded = false
		return p.net.Close()
	}
	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
