package pipeline

import (
	"fmt"
	"time"

	"github.com/BrunoKrugel/bikefit-vision/internal/logging"
	"github.com/BrunoKrugel/bikefit-vision/internal/model"
)

const maxConsecutiveErrors = 20

type stageHealth struct {
	active     bool
	errorCount int
	lastPerfMs float64
	isCore     bool
}

// StreamPayload is the per-frame sample published on the bus's stream
// channel: {frame_id, fps, errors, active_plugins, camera_config
// (throttled), notifications, widgets, results, camera_id} from spec.md
// §6.
type StreamPayload struct {
	FrameID        int64                     `json:"frame_id"`
	FPS            float64                   `json:"fps"`
	Errors         []model.ModuleError       `json:"errors"`
	ActivePlugins  []model.PluginStatus      `json:"active_plugins"`
	CameraConfig   *model.CameraConfig       `json:"camera_config,omitempty"`
	Notifications  []model.Notification      `json:"notifications"`
	Widgets        []model.WidgetUpdate      `json:"widgets"`
	Results        map[string]map[string]any `json:"results"`
	CameraID       int                       `json:"camera_id"`
}

// Engine runs one camera worker's ordered stage sequence once per frame,
// isolating stage failures and assembling the UI-facing payload.
type Engine struct {
	cameraID int
	log      *logging.Logger

	stages   []Stage
	stageMap map[string]Stage
	health   map[string]*stageHealth
}

// NewEngine builds the engine's stage sequence: the fixed core stages
// first, then the caller-supplied plugin stages, appended in discovery
// order, matching _load_pipeline's core-then-plugins ordering.
func NewEngine(cameraID int, plugins []Stage) *Engine {
	e := &Engine{
		cameraID: cameraID,
		log:      logging.For(fmt.Sprintf("engine[%d]", cameraID)),
		stageMap: make(map[string]Stage),
		health:   make(map[string]*stageHealth),
	}
	for _, s := range BuildCore() {
		e.register(s, true)
	}
	for _, s := range plugins {
		e.register(s, false)
	}
	e.log.Printf("initialized with %d stages", len(e.stages))
	return e
}

func (e *Engine) register(s Stage, isCore bool) {
	e.stages = append(e.stages, s)
	e.stageMap[s.Name()] = s
	e.health[s.Name()] = &stageHealth{active: true, isCore: isCore}
}

// HandleCommand dispatches one command to the stage(s) it targets.
// "broadcast"/"all" reaches every stage; an exact stage-name match
// reaches only that stage (falling back to a generic set_params
// attribute write if the stage has no custom handler); anything else is
// dropped with a log line (the bus has already fanned this out to every
// worker, so a silent drop here is expected, not an error).
func (e *Engine) HandleCommand(target, cmd string, args map[string]any) {
	if target == "broadcast" || target == "all" {
		for _, s := range e.stages {
			if h, ok := s.(CommandHandler); ok {
				e.safeHandle(s.Name(), func() { h.HandleCommand(cmd, args) })
			}
		}
		return
	}

	stage, ok := e.stageMap[target]
	if !ok {
		e.log.Printf("command target %q not found, dropping %q", target, cmd)
		return
	}

	if h, ok := stage.(CommandHandler); ok {
		e.safeHandle(stage.Name(), func() { h.HandleCommand(cmd, args) })
		return
	}
	if cmd == "set_params" {
		applyParams(stage, args)
	}
}

func (e *Engine) safeHandle(stageName string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Printf("stage %q command handler panicked: %v", stageName, r)
		}
	}()
	fn()
}

// ResetStage clears a stage's error count and re-activates it, the
// "reset command" scenario spec.md §8 describes for recovering from an
// auto-disable.
func (e *Engine) ResetStage(name string) {
	if h, ok := e.health[name]; ok {
		h.active = true
		h.errorCount = 0
	}
}

// ActivePlugins reports the current health snapshot, used outside a
// frame run (e.g. by tests) to observe auto-disable behaviour.
func (e *Engine) ActivePlugins() []model.PluginStatus {
	out := make([]model.PluginStatus, 0, len(e.stages))
	for _, s := range e.stages {
		h := e.health[s.Name()]
		out = append(out, model.PluginStatus{ID: s.Name(), IsActive: h.active, PerformanceMs: h.lastPerfMs})
	}
	return out
}

// ProcessFrame runs every active stage over ctx in order, recovering
// panics the same way a returned error is handled, then assembles the
// stream payload. frameID drives the config-embedding throttle
// (camera_config is only populated every 60th frame).
func (e *Engine) ProcessFrame(ctx *FrameContext) StreamPayload {
	activePlugins := make([]model.PluginStatus, 0, len(e.stages))

	for _, s := range e.stages {
		h := e.health[s.Name()]
		if !h.active {
			activePlugins = append(activePlugins, model.PluginStatus{ID: s.Name(), IsActive: false, PerformanceMs: 0})
			continue
		}

		start := time.Now()
		err := e.runStage(s, ctx)
		elapsedMs := float64(time.Since(start).Microseconds()) / 1000.0

		if err != nil {
			h.errorCount++
			ctx.AddError(s.Name(), err.Error())
			e.log.Printf("stage %q failed: %v", s.Name(), err)
			if h.errorCount >= maxConsecutiveErrors {
				h.active = false
				e.log.Printf("stage %q disabled after %d consecutive errors", s.Name(), h.errorCount)
			}
		} else if h.errorCount > 0 {
			h.errorCount = 0
		}

		h.lastPerfMs = elapsedMs
		activePlugins = append(activePlugins, model.PluginStatus{ID: s.Name(), IsActive: h.active, PerformanceMs: elapsedMs})
	}

	notifications, widgets := ctx.UI.snapshot()

	var cfgPayload *model.CameraConfig
	if ctx.FrameID%60 == 0 {
		cfg := ctx.Config
		cfgPayload = &cfg
	}

	return StreamPayload{
		FrameID:       ctx.FrameID,
		FPS:           0,
		Errors:        ctx.errors,
		ActivePlugins: activePlugins,
		CameraConfig:  cfgPayload,
		Notifications: notifications,
		Widgets:       widgets,
		Results:       ctx.DataSnapshot(),
		CameraID:      e.cameraID,
	}
}

// runStage invokes one stage, converting a panic into an error so a
// misbehaving stage can never crash the worker's run loop.
func (e *Engine) runStage(s Stage, ctx *FrameContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Process(ctx)
}
