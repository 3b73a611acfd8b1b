// Package orchestrator is the process-global supervisor: it allocates
// devices to camera roles, spawns and restarts one worker goroutine per
// role, refreshes per-camera health from heartbeats, and periodically
// broadcasts system status — the single authority deciding when a worker
// needs to be restarted.
package orchestrator

import (
	"sync"
	"time"

	"github.com/BrunoKrugel/bikefit-vision/internal/bus"
	"github.com/BrunoKrugel/bikefit-vision/internal/config"
	"github.com/BrunoKrugel/bikefit-vision/internal/device"
	"github.com/BrunoKrugel/bikefit-vision/internal/logging"
	"github.com/BrunoKrugel/bikefit-vision/internal/model"
	"github.com/BrunoKrugel/bikefit-vision/internal/pipeline"
	"github.com/BrunoKrugel/bikefit-vision/internal/ring"
	"github.com/BrunoKrugel/bikefit-vision/internal/worker"
)

const (
	heartbeatTimeout = 5 * time.Second
	monitorTick      = 200 * time.Millisecond
	broadcastPeriod  = 1 * time.Second
)

// CameraFactory opens the device behind an allocation. Swappable in tests
// (and eventually for a real UVC-backed Camera) without touching the
// supervision logic.
type CameraFactory func(alloc device.Allocation, width, height, fps int) worker.Camera

// runningWorker tracks one supervised worker goroutine's bookkeeping, the
// Go equivalent of the orchestrator's per-process record in spec.md §4.5.
type runningWorker struct {
	alloc        device.Allocation
	w            *worker.Worker
	restartCount int
}

// Orchestrator owns device allocation, worker supervision, and the
// SystemState every client-facing broadcast derives from.
type Orchestrator struct {
	b       *bus.Bus
	log     *logging.Logger
	scanner device.Scanner
	factory CameraFactory
	fps     int
	plugins []pipeline.Stage

	mu      sync.Mutex
	workers map[int]*runningWorker
	state   map[int]model.CameraState

	stop chan struct{}
	wg   sync.WaitGroup
}

// New constructs an orchestrator. scanner enumerates attached devices;
// factory builds the Camera implementation a worker will drive.
func New(b *bus.Bus, scanner device.Scanner, factory CameraFactory, fps int, plugins []pipeline.Stage) *Orchestrator {
	return &Orchestrator{
		b:       b,
		log:     logging.For("orchestrator"),
		scanner: scanner,
		factory: factory,
		fps:     fps,
		plugins: plugins,
		workers: make(map[int]*runningWorker),
		state:   make(map[int]model.CameraState),
		stop:    make(chan struct{}),
	}
}

// Start allocates devices to the enabled profiles, spawns one worker per
// allocation, and launches the monitor loop. It returns immediately; call
// Stop for orderly shutdown.
func (o *Orchestrator) Start(profiles []config.CameraProfile) error {
	devices, err := o.scanner.Scan()
	if err != nil {
		return err
	}

	allocs := device.Allocate(profiles, devices)
	for _, alloc := range allocs {
		o.spawn(alloc)
	}

	o.wg.Add(1)
	go o.monitorLoop()

	return nil
}

// Stop signals every worker and the monitor loop to exit, then waits.
func (o *Orchestrator) Stop() {
	close(o.stop)

	o.mu.Lock()
	workers := make([]*runningWorker, 0, len(o.workers))
	for _, rw := range o.workers {
		workers = append(workers, rw)
	}
	o.mu.Unlock()

	for _, rw := range workers {
		rw.w.Stop()
	}
	o.wg.Wait()
}

func (o *Orchestrator) spawn(alloc device.Allocation) {
	width, height := alloc.Profile.Resolution[0], alloc.Profile.Resolution[1]
	cam := o.factory(alloc, width, height, o.fps)
	w := worker.New(o.b, alloc, cam, o.fps, o.plugins)

	o.mu.Lock()
	o.workers[alloc.RoleID] = &runningWorker{alloc: alloc, w: w}
	o.state[alloc.RoleID] = model.CameraState{
		CameraID:     alloc.RoleID,
		Role:         alloc.Profile.RoleName,
		SerialNumber: alloc.Profile.SerialNumber,
		Status:       "spawned",
	}
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := w.Run(); err != nil {
			o.log.Printf("camera %d worker exited: %v", alloc.RoleID, err)
			o.b.PublishUpstream("error", map[string]any{"camera_id": alloc.RoleID, "message": err.Error()})
		}
	}()
}

// restart unlinks the dead worker's old ring (best-effort), rescans
// devices, and respawns the role — using the freshly discovered index if
// the serial moved.
func (o *Orchestrator) restart(roleID int) {
	o.mu.Lock()
	rw, ok := o.workers[roleID]
	o.mu.Unlock()
	if !ok {
		return
	}

	if name := rw.w.RingName(); name != "" {
		if err := ring.ForceUnlink(name); err != nil {
			o.log.Printf("ring cleanup for %s: %v (tolerated)", name, err)
		}
	}

	devices, err := o.scanner.Scan()
	if err != nil {
		o.log.Printf("restart: rescan failed: %v", err)
		return
	}
	allocs := device.Allocate([]config.CameraProfile{rw.alloc.Profile}, devices)
	if len(allocs) == 0 {
		o.log.Printf("restart: role %d no longer resolves to a device", roleID)
		return
	}

	rw.restartCount++
	o.log.Printf("restarting camera %d (attempt %d)", roleID, rw.restartCount)
	o.spawn(allocs[0])

	o.mu.Lock()
	if nw, ok := o.workers[roleID]; ok {
		nw.restartCount = rw.restartCount
	}
	o.mu.Unlock()
}

// monitorLoop drains the upstream channel for heartbeats, checks every
// worker's liveness, and broadcasts system_monitor at 1 Hz.
func (o *Orchestrator) monitorLoop() {
	defer o.wg.Done()

	ticker := time.NewTicker(monitorTick)
	defer ticker.Stop()
	lastBroadcast := time.Now()

	for {
		select {
		case <-o.stop:
			return
		case evt := <-o.b.Upstream():
			o.handleUpstream(evt)
		case <-ticker.C:
			o.checkHealth()
			if time.Since(lastBroadcast) >= broadcastPeriod {
				o.broadcastSystemMonitor()
				lastBroadcast = time.Now()
			}
		}
	}
}

func (o *Orchestrator) handleUpstream(evt bus.Event) {
	if evt.Type != "heartbeat" {
		return
	}
	payload, ok := evt.Payload.(map[string]any)
	if !ok {
		return
	}
	camID, ok := toInt(payload["camera_id"])
	if !ok {
		return
	}
	role, _ := payload["role"].(string)
	sn, _ := payload["sn"].(string)
	cfg, _ := payload["config"].(model.CameraConfig)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.state[camID] = model.CameraState{
		CameraID:      camID,
		Role:          role,
		SerialNumber:  sn,
		LastHeartbeat: float64(time.Now().UnixNano()) / 1e9,
		Config:        cfg,
		FPS:           float64(o.fps),
		Status:        "attached",
	}
}

func (o *Orchestrator) checkHealth() {
	now := time.Now()

	o.mu.Lock()
	var dead []int
	for id, st := range o.state {
		if st.LastHeartbeat == 0 {
			continue
		}
		age := now.Sub(time.Unix(0, int64(st.LastHeartbeat*1e9)))
		if age > heartbeatTimeout {
			dead = append(dead, id)
		}
	}
	o.mu.Unlock()

	for _, id := range dead {
		o.log.Printf("camera %d heartbeat stale, restarting", id)
		o.restart(id)
	}
}

func (o *Orchestrator) broadcastSystemMonitor() {
	o.mu.Lock()
	snapshot := make(map[int]model.CameraState, len(o.state))
	for k, v := range o.state {
		snapshot[k] = v
	}
	o.mu.Unlock()

	o.b.PublishBroadcast("system_monitor", snapshot)
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
