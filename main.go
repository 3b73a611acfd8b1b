package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/BrunoKrugel/bikefit-vision/internal/bus"
	"github.com/BrunoKrugel/bikefit-vision/internal/config"
	"github.com/BrunoKrugel/bikefit-vision/internal/device"
	"github.com/BrunoKrugel/bikefit-vision/internal/orchestrator"
	"github.com/BrunoKrugel/bikefit-vision/internal/recorder"
	"github.com/BrunoKrugel/bikefit-vision/internal/replay"
	"github.com/BrunoKrugel/bikefit-vision/internal/ring"
	"github.com/BrunoKrugel/bikefit-vision/internal/security"
	"github.com/BrunoKrugel/bikefit-vision/internal/worker"

	_ "github.com/BrunoKrugel/bikefit-vision/internal/stages"
)

func main() {
	recordRing := flag.String("record", "", "attach read-only to this ring name and record it to a .bfm file in RECORDINGS_DIR, instead of running the camera orchestrator")
	replayFile := flag.String("replay", "", "replay a .bfm recording into a new ring, instead of running the camera orchestrator")
	replayRing := flag.String("replay-ring", "", "ring name to create for -replay (required with -replay)")
	recordWidth := flag.Int("width", 0, "ring width for -record, if it differs from CAMERA_WIDTH (learn this from the camera's shm_handshake payload)")
	recordHeight := flag.Int("height", 0, "ring height for -record, if it differs from CAMERA_HEIGHT")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if *recordRing != "" {
		width, height := *recordWidth, *recordHeight
		if width <= 0 {
			width = cfg.CameraWidth
		}
		if height <= 0 {
			height = cfg.CameraHeight
		}
		runRecord(cfg, *recordRing, width, height)
		return
	}
	if *replayFile != "" {
		runReplay(*replayFile, *replayRing)
		return
	}

	profile, err := config.LoadProfile(cfg.ProfilePath)
	if err != nil {
		log.Printf("no camera profile at %s, starting with zero cameras: %v", cfg.ProfilePath, err)
		profile = &config.Profile{}
	}

	manifest, err := config.LoadPluginManifest(cfg.PluginManifestPath)
	if err != nil {
		log.Fatalf("load plugin manifest: %v", err)
	}
	if len(manifest.Enabled) > 0 {
		log.Printf("plugin manifest lists %d optional stage(s): %v", len(manifest.Enabled), manifest.Enabled)
	}

	b := bus.New()

	factory := func(alloc device.Allocation, width, height, fps int) worker.Camera {
		if width <= 0 {
			width = cfg.CameraWidth
		}
		if height <= 0 {
			height = cfg.CameraHeight
		}
		return worker.NewMockCamera(alloc.RoleID, width, height, fps)
	}

	orch := orchestrator.New(b, device.NullScanner{}, factory, cfg.CameraFPS, nil)
	if err := orch.Start(profile.Cameras); err != nil {
		log.Fatalf("start orchestrator: %v", err)
	}

	var provider security.Provider = security.NewDevProvider()
	if cfg.LicenseCheckURL != "" {
		provider = security.NewRemoteProvider(cfg.LicenseCheckURL)
	}

	securityStop := make(chan struct{})
	go security.Run(b, provider, time.Duration(cfg.MathSaltIntervalSeconds)*time.Second, securityStop)

	log.Printf("bikefit-vision running: %d camera(s) configured, API %s:%s", len(profile.Cameras), cfg.APIHost, cfg.APIPort)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("shutting down")
	close(securityStop)
	orch.Stop()
}

// runRecord attaches to an already-running camera's ring and records it to
// disk until interrupted. width/height must match what the camera's
// shm_handshake announced; they default to the configured camera
// resolution when -width/-height aren't given.
func runRecord(cfg *config.Infrastructure, ringName string, width, height int) {
	if err := os.MkdirAll(cfg.RecordingsDir, 0o755); err != nil {
		log.Fatalf("record: create recordings dir: %v", err)
	}
	file := filepath.Join(cfg.RecordingsDir, fmt.Sprintf("%s.bfm", ringName))
	shape := ring.Shape{Height: height, Width: width, Channels: 3}

	rec := recorder.New(file, ringName, shape)
	if err := rec.Start(); err != nil {
		log.Fatalf("record: %v", err)
	}
	log.Printf("recording ring %q to %s (ctrl-c to stop)", ringName, file)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("stopping recording")
	rec.Stop()
}

// runReplay plays a recorded session back into a freshly created ring at
// the cadence it was captured at, until the file is exhausted or the
// process is interrupted.
func runReplay(file, ringName string) {
	if ringName == "" {
		log.Fatal("replay: -replay-ring is required with -replay")
	}

	rw := replay.New(file, ringName)
	done := make(chan error, 1)
	go func() { done <- rw.Run() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-done:
		if err != nil {
			log.Fatalf("replay: %v", err)
		}
		log.Println("replay finished")
	case <-sigCh:
		log.Println("stopping replay")
		rw.Stop()
		<-done
	}
}
