// Package config holds the fixed operating limits and tunable settings for
// the Birdseye detection control panel.
package config

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

// Camera geometry defaults. The preview stream is deliberately small: it only
// feeds the live MJPEG view, while stills and live inference use the main
// stream.
const (
	DefaultPreviewWidth  = 640
	DefaultPreviewHeight = 480
	DefaultCaptureWidth  = 3280
	DefaultCaptureHeight = 2464

	// PreviewFPS is the target cadence of the background preview loop.
	PreviewFPS = 30

	// PreviewQuality is the JPEG quality used for preview frames.
	PreviewQuality = 60
)

// Detection defaults and hard validation limits. Setters clamp into these
// ranges on every mutating call.
const (
	DefaultConfidence = 0.25
	MinConfidence     = 0.01
	MaxConfidence     = 1.0

	DefaultSlices = 2
	MinSlices     = 1
	MaxSlices     = 8
)

// MinCaptureInterval is the minimum time between two completed still
// captures, and also the lower bound for the automated capture interval.
const MinCaptureInterval = 45 * time.Second

// DefaultLiveResolution is the preset used for live detection until the
// operator picks another one.
const DefaultLiveResolution = "1280x1280"

// Resolution is one entry of the fixed set of supported main-stream sizes.
type Resolution struct {
	Width  int
	Height int
}

// ResolutionPresets enumerates the main-stream sizes live detection may run
// at. The set is fixed; unknown keys are rejected.
var ResolutionPresets = map[string]Resolution{
	"640x480":   {640, 480},
	"1280x720":  {1280, 720},
	"1280x1280": {1280, 1280},
	"1920x1080": {1920, 1080},
}

// ResolutionKeys returns the preset names in stable order for status payloads.
func ResolutionKeys() []string {
	keys := make([]string, 0, len(ResolutionPresets))
	for k := range ResolutionPresets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Config holds the runtime configuration for the application.
type Config struct {
	Addr        string
	DataDir     string
	CapturesDir string
	TempDir     string
	ModelPath   string
	DBPath      string
	StaticDir   string
	CameraID    int
}

// Default returns the configuration used when no overrides are set.
// TempDir points at tmpfs so raw stills never touch the SD card.
func Default() *Config {
	dataDir := "data"
	return &Config{
		Addr:        ":8080",
		DataDir:     dataDir,
		CapturesDir: filepath.Join(dataDir, "captures"),
		TempDir:     "/dev/shm/birdseye",
		ModelPath:   filepath.Join("model", "best.onnx"),
		DBPath:      filepath.Join(dataDir, "detections.db"),
		StaticDir:   "static",
		CameraID:    0,
	}
}

// Load returns the default configuration with environment overrides applied.
func Load() *Config {
	cfg := Default()

	if v := os.Getenv("BIRDSEYE_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("BIRDSEYE_DATA_DIR"); v != "" {
		cfg.DataDir = v
		cfg.CapturesDir = filepath.Join(v, "captures")
		cfg.DBPath = filepath.Join(v, "detections.db")
	}
	if v := os.Getenv("BIRDSEYE_TEMP_DIR"); v != "" {
		cfg.TempDir = v
	}
	if v := os.Getenv("BIRDSEYE_MODEL"); v != "" {
		cfg.ModelPath = v
	}
	if v := os.Getenv("BIRDSEYE_STATIC_DIR"); v != "" {
		cfg.StaticDir = v
	}
	if v := os.Getenv("BIRDSEYE_CAMERA_ID"); v != "" {
		if id, err := strconv.Atoi(v); err == nil {
			cfg.CameraID = id
		}
	}

	return cfg
}

// EnsureDirs creates the data, captures and temp directories.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.DataDir, c.CapturesDir, c.TempDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
