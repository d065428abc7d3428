package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/birdseye-cam/birdseye/internal/camera"
	"github.com/birdseye-cam/birdseye/internal/capture"
	"github.com/birdseye-cam/birdseye/internal/config"
	"github.com/birdseye-cam/birdseye/internal/detector"
	"github.com/birdseye-cam/birdseye/internal/live"
	"github.com/birdseye-cam/birdseye/internal/server"
	"github.com/birdseye-cam/birdseye/internal/store"
)

// detectionLabels maps class indices of the bundled model to display names.
var detectionLabels = []string{"Plastic Bottle"}

func main() {
	fmt.Println("Birdseye - Camera Detection Panel")

	cfg := config.Load()
	if err := cfg.EnsureDirs(); err != nil {
		log.Fatalf("Failed to create data directories: %v", err)
	}

	st, err := store.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer st.Close()

	hw := camera.NewVideoHardware(cfg.CameraID)
	manager := camera.NewManager(hw, camera.DefaultStreamSpec(), cfg.TempDir)
	if err := manager.Start(); err != nil {
		log.Fatalf("Failed to start camera: %v", err)
	}
	defer manager.Stop()

	pipeline := detector.NewYOLOPipeline(cfg.ModelPath, cfg.CapturesDir, detectionLabels)
	defer pipeline.Close()

	orchestrator := capture.New(capture.Config{
		Camera:   manager,
		Pipeline: pipeline,
		Store:    st,
	})

	session := live.New(live.Config{
		Camera:   manager,
		Pipeline: pipeline,
	})
	defer session.Stop()

	staticDir := findStaticDir(cfg.StaticDir)
	if staticDir != "" {
		fmt.Printf("Serving static files from: %s\n", staticDir)
	}

	srv := server.New(server.Config{
		Preview:     manager,
		Capture:     orchestrator,
		Live:        session,
		Store:       st,
		CapturesDir: cfg.CapturesDir,
		StaticDir:   staticDir,
	})

	// Shut down cleanly on SIGINT/SIGTERM so the camera and the store are
	// released before exit.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received %v, shutting down", sig)
		session.Stop()
		orchestrator.StopAutomated()
		manager.Stop()
		st.Close()
		os.Exit(0)
	}()

	fmt.Printf("Starting server on %s\n", cfg.Addr)
	if err := srv.ListenAndServe(cfg.Addr); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// findStaticDir resolves the static asset directory, checking the configured
// path and common relative locations. Returns empty string if none exists.
func findStaticDir(configured string) string {
	candidates := []string{configured, "static", "../static", "../../static"}
	for _, p := range candidates {
		if p == "" {
			continue
		}
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return ""
}
