// Package worker runs one camera's capture/process/publish loop: it owns
// the device, the shared-memory ring it writes frames into, and the
// pipeline engine that turns each frame into a stream payload.
package worker

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BrunoKrugel/bikefit-vision/internal/bus"
	"github.com/BrunoKrugel/bikefit-vision/internal/device"
	"github.com/BrunoKrugel/bikefit-vision/internal/logging"
	"github.com/BrunoKrugel/bikefit-vision/internal/model"
	"github.com/BrunoKrugel/bikefit-vision/internal/pipeline"
	"github.com/BrunoKrugel/bikefit-vision/internal/ring"
)

const (
	heartbeatInterval = 1 * time.Second

	// ringSwapGrace is how long a retired ring is left mapped after its
	// replacement's handshake goes out, giving a slow consumer that hasn't
	// yet switched readers a sliver of time before the old region is
	// unlinked out from under it. There's no ack protocol (spec.md §9:
	// "best-effort; the core does not ack"), so this is a fixed wait, not
	// a real handshake.
	ringSwapGrace = 500 * time.Millisecond
)

// Worker owns one camera's full lifecycle: device, ring, pipeline engine,
// and the run loop tying them together.
type Worker struct {
	cameraID int
	roleName string
	serial   string
	fps      int

	cam    Camera
	b      *bus.Bus
	engine *pipeline.Engine
	log    *logging.Logger

	ringMu   sync.RWMutex
	r        *ring.Ring
	shape    ring.Shape
	config   model.CameraConfig
	mathSalt float32

	commands <-chan bus.Command
	stop     chan struct{}
	done     chan struct{}
}

// New constructs a worker for the given allocation. cam is the opened (but
// not yet Connect'd) device; plugins are the manifest-enabled optional
// stages this camera's engine should run in addition to the core stages.
func New(b *bus.Bus, alloc device.Allocation, cam Camera, fps int, plugins []pipeline.Stage) *Worker {
	return &Worker{
		cameraID: alloc.RoleID,
		roleName: alloc.Profile.RoleName,
		serial:   alloc.Profile.SerialNumber,
		fps:      fps,
		cam:      cam,
		b:        b,
		engine:   pipeline.NewEngine(alloc.RoleID, plugins),
		log:      logging.For(fmt.Sprintf("worker[%d]", alloc.RoleID)),
		config:   model.DefaultCameraConfig(alloc.RoleID),
		mathSalt: 1.0,
		commands: b.RegisterWorker(alloc.RoleID),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run drives the full C4 lifecycle: open the device, allocate the ring at
// the device's ACTUAL reported resolution, publish a handshake, then loop
// capture->ring-write->pipeline->heartbeat until Stop is called. If the
// device's reported resolution ever changes, the loop hot-swaps to a new
// ring (see swapRing) before capturing the next frame.
func (w *Worker) Run() error {
	defer close(w.done)

	if err := w.cam.Connect(); err != nil {
		return fmt.Errorf("worker[%d]: connect device: %w", w.cameraID, err)
	}
	defer w.cam.Release()
	w.log.Printf("camera %d (%s) connected", w.cameraID, w.roleName)

	width, height := w.cam.Resolution()
	w.shape = ring.Shape{Height: height, Width: width, Channels: 3}

	sessionID := uuid.New().String()[:8]
	ringName := fmt.Sprintf("cam_%d_%s", w.cameraID, sessionID)

	r, err := ring.Create(ringName, w.shape, 0)
	if err != nil {
		return fmt.Errorf("worker[%d]: allocate ring: %w", w.cameraID, err)
	}
	w.ringMu.Lock()
	w.r = r
	w.ringMu.Unlock()
	defer func() {
		w.ringMu.RLock()
		current := w.r
		w.ringMu.RUnlock()
		if err := current.Unlink(); err != nil {
			w.log.Printf("unlink ring on shutdown: %v", err)
		}
	}()

	w.publishHandshake()

	pixels := make([]byte, w.shape.Bytes())
	frameID := int64(0)
	lastHeartbeat := time.Now()

	frameInterval := time.Second / time.Duration(maxInt(1, w.fps))
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return nil
		case cmd := <-w.commands:
			w.handleCommand(cmd)
		case <-ticker.C:
			if newWidth, newHeight := w.cam.Resolution(); newWidth != width || newHeight != height {
				if err := w.swapRing(newWidth, newHeight); err != nil {
					w.log.Printf("resolution change %dx%d -> %dx%d: %v", width, height, newWidth, newHeight, err)
					continue
				}
				width, height = newWidth, newHeight
				pixels = make([]byte, w.shape.Bytes())
			}

			if !w.cam.CaptureFrame(pixels) {
				continue
			}

			frameID++
			timestamp := float64(time.Now().UnixNano()) / 1e9

			w.ringMu.RLock()
			r := w.r
			w.ringMu.RUnlock()
			if err := r.Write(frameID, timestamp, w.mathSalt, 0, pixels); err != nil {
				w.log.Printf("ring write failed: %v", err)
				continue
			}

			ctx := pipeline.NewFrameContext(pixels, width, height, w.shape.Channels, frameID, timestamp, w.cameraID, w.config)
			payload := w.engine.ProcessFrame(ctx)
			w.b.PublishStream(payload)

			if time.Since(lastHeartbeat) >= heartbeatInterval {
				w.publishHeartbeat()
				lastHeartbeat = time.Now()
			}
		}
	}
}

// Stop signals the run loop to exit and blocks until it has.
func (w *Worker) Stop() {
	close(w.stop)
	<-w.done
}

// RingName returns the name of the ring this worker currently owns, or
// the empty string before Run has allocated one. Used by the orchestrator
// to unlink a dead worker's ring before respawning it.
func (w *Worker) RingName() string {
	w.ringMu.RLock()
	defer w.ringMu.RUnlock()
	if w.r == nil {
		return ""
	}
	return w.r.Name()
}

// swapRing implements the resolution-change hot-swap policy: allocate a new
// ring at the new geometry, publish a fresh handshake announcing it, and
// only then retire the old ring (after ringSwapGrace, so a consumer still
// reading the old name has a moment to switch).
func (w *Worker) swapRing(width, height int) error {
	newShape := ring.Shape{Height: height, Width: width, Channels: 3}
	sessionID := uuid.New().String()[:8]
	name := fmt.Sprintf("cam_%d_%s", w.cameraID, sessionID)

	newRing, err := ring.Create(name, newShape, 0)
	if err != nil {
		return fmt.Errorf("allocate resized ring: %w", err)
	}

	w.ringMu.Lock()
	oldRing := w.r
	w.r = newRing
	w.shape = newShape
	w.ringMu.Unlock()

	w.log.Printf("camera %d resolution changed, hot-swapping ring %s -> %s (%dx%d)", w.cameraID, oldRing.Name(), name, width, height)
	w.publishHandshake()

	go func() {
		time.Sleep(ringSwapGrace)
		if err := oldRing.Unlink(); err != nil {
			w.log.Printf("unlink retired ring %s: %v", oldRing.Name(), err)
		}
	}()

	return nil
}

func (w *Worker) publishHandshake() {
	w.b.PublishCritical(bus.Event{
		Type: "shm_handshake",
		Payload: map[string]any{
			"camera_id": w.cameraID,
			"role":      w.roleName,
			"shm_name":  w.r.Name(),
			"shape":     [3]int{w.shape.Height, w.shape.Width, w.shape.Channels},
			"dtype":     "uint8",
		},
	})
}

func (w *Worker) publishHeartbeat() {
	w.b.PublishUpstream("heartbeat", map[string]any{
		"camera_id": w.cameraID,
		"role":      w.roleName,
		"sn":        w.serial,
		"config":    w.config,
	})
}

// handleCommand intercepts SET_SALT and SET_CONFIG for itself (they mutate
// worker-local state the engine never sees); anything else is forwarded to
// the pipeline engine.
func (w *Worker) handleCommand(cmd bus.Command) {
	switch cmd.Cmd {
	case "SET_SALT", "set_salt":
		if v, ok := cmd.Args["salt"]; ok {
			if f, ok := toFloat(v); ok {
				w.mathSalt = float32(f)
			}
		}
	case "SET_CONFIG", "set_config":
		w.config = w.config.Merge(cmd.Args)
		w.cam.ApplyConfig(w.config)
	default:
		w.engine.HandleCommand(cmd.Target, cmd.Cmd, cmd.Args)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
