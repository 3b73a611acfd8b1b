package pipeline

import (
	"errors"
	"testing"

	"github.com/BrunoKrugel/bikefit-vision/internal/logging"
	"github.com/BrunoKrugel/bikefit-vision/internal/model"
)

type countingStage struct {
	name    string
	failing bool
	calls   int
}

func (s *countingStage) Name() string { return s.name }
func (s *countingStage) Process(ctx *FrameContext) error {
	s.calls++
	if s.failing {
		return errors.New("boom")
	}
	return nil
}

type commandStage struct {
	countingStage
	lastCmd  string
	lastArgs map[string]any
}

func (s *commandStage) HandleCommand(cmd string, args map[string]any) {
	s.lastCmd = cmd
	s.lastArgs = args
}

func newCtx(frameID int64) *FrameContext {
	return NewFrameContext([]byte{1, 2, 3}, 1, 1, 3, frameID, 0, 1, model.DefaultCameraConfig(1))
}

func TestAutoDisableAfter20Errors(t *testing.T) {
	stage := &countingStage{name: "broken", failing: true}
	e := &Engine{
		cameraID: 1,
		log:      logging.For("test"),
		stageMap: map[string]Stage{},
		health:   map[string]*stageHealth{},
	}
	e.register(stage, false)

	var payload StreamPayload
	for i := 0; i < 20; i++ {
		payload = e.ProcessFrame(newCtx(int64(i)))
	}

	if payload.ActivePlugins[0].IsActive {
		t.Fatal("expected stage to be disabled after 20 consecutive errors")
	}

	stage.failing = false
	e.ResetStage("broken")
	payload = e.ProcessFrame(newCtx(20))
	if !payload.ActivePlugins[0].IsActive {
		t.Fatal("expected stage to be active again after reset")
	}
}

func TestSuccessResetsErrorCounter(t *testing.T) {
	stage := &countingStage{name: "flaky", failing: true}
	e := &Engine{cameraID: 1, log: logging.For("test"), stageMap: map[string]Stage{}, health: map[string]*stageHealth{}}
	e.register(stage, false)

	for i := 0; i < 19; i++ {
		e.ProcessFrame(newCtx(int64(i)))
	}
	stage.failing = false
	e.ProcessFrame(newCtx(19))
	if e.health["flaky"].errorCount != 0 {
		t.Fatalf("errorCount = %d, want 0 after a success", e.health["flaky"].errorCount)
	}
}

func TestCommandDispatchBroadcast(t *testing.T) {
	a := &commandStage{countingStage: countingStage{name: "a"}}
	b := &commandStage{countingStage: countingStage{name: "b"}}
	e := &Engine{cameraID: 1, log: logging.For("test"), stageMap: map[string]Stage{}, health: map[string]*stageHealth{}}
	e.register(a, false)
	e.register(b, false)

	e.HandleCommand("broadcast", "increment", map[string]any{"by": 1})

	if a.lastCmd != "increment" || b.lastCmd != "increment" {
		t.Fatal("expected broadcast command to reach every stage")
	}
}

func TestCommandDispatchUnknownTargetDropped(t *testing.T) {
	a := &commandStage{countingStage: countingStage{name: "a"}}
	e := &Engine{cameraID: 1, log: logging.For("test"), stageMap: map[string]Stage{}, health: map[string]*stageHealth{}}
	e.register(a, false)

	e.HandleCommand("counter", "increment", map[string]any{})
	if a.lastCmd != "" {
		t.Fatal("expected unknown target not to reach an unrelated stage")
	}
}

func TestWidgetAutoInjectsCameraID(t *testing.T) {
	ctx := NewFrameContext([]byte{}, 0, 0, 0, 1, 0, 7, model.DefaultCameraConfig(7))
	ctx.UI.UpdateWidget("w1", "Title", map[string]any{"value": 1}, model.WidgetText)

	_, widgets := ctx.UI.snapshot()
	data := widgets[0].Data.(map[string]any)
	if data["camera_id"] != 7 {
		t.Fatalf("camera_id = %v, want 7", data["camera_id"])
	}
}
