package worker

import (
	"testing"
	"time"

	"github.com/BrunoKrugel/bikefit-vision/internal/bus"
	"github.com/BrunoKrugel/bikefit-vision/internal/config"
	"github.com/BrunoKrugel/bikefit-vision/internal/device"
	"github.com/BrunoKrugel/bikefit-vision/internal/model"
)

// resizingCamera reports a new resolution once it has served enough
// frames at the original one, to exercise the resolution-change hot-swap.
type resizingCamera struct {
	captures       int
	switchAfter    int
	w1, h1, w2, h2 int
}

func (c *resizingCamera) Connect() error { return nil }
func (c *resizingCamera) Release() error { return nil }
func (c *resizingCamera) Resolution() (int, int) {
	if c.captures >= c.switchAfter {
		return c.w2, c.h2
	}
	return c.w1, c.h1
}
func (c *resizingCamera) CaptureFrame(dst []byte) bool {
	c.captures++
	return true
}
func (c *resizingCamera) SetExposure(int) bool           { return true }
func (c *resizingCamera) ApplyConfig(model.CameraConfig) {}

func nextCriticalWithTimeout(t *testing.T, b *bus.Bus, timeout time.Duration) bus.Event {
	t.Helper()
	ch := make(chan bus.Event, 1)
	go func() { ch <- b.NextCritical() }()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(timeout):
		t.Fatal("timed out waiting for critical event")
		return bus.Event{}
	}
}

func testAllocation() device.Allocation {
	return device.Allocation{
		RoleID:  1,
		OSIndex: 0,
		Profile: config.CameraProfile{RoleID: 1, RoleName: "front", Enabled: true},
	}
}

func TestRunPublishesHandshakeBeforeFrames(t *testing.T) {
	b := bus.New()
	cam := NewMockCamera(1, 8, 8, 200)
	w := New(b, testAllocation(), cam, 200, nil)

	done := make(chan error, 1)
	go func() { done <- w.Run() }()

	evt := b.NextCritical()
	if evt.Type != "shm_handshake" {
		t.Fatalf("expected shm_handshake, got %q", evt.Type)
	}
	payload, ok := evt.Payload.(map[string]any)
	if !ok {
		t.Fatalf("expected map payload, got %T", evt.Payload)
	}
	if payload["camera_id"] != 1 {
		t.Fatalf("expected camera_id 1, got %v", payload["camera_id"])
	}

	w.Stop()
	if err := <-done; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
}

func TestSetConfigCommandAppliesToCameraAndConfig(t *testing.T) {
	b := bus.New()
	cam := NewMockCamera(2, 8, 8, 200)
	w := New(b, device.Allocation{RoleID: 2, Profile: config.CameraProfile{RoleID: 2, RoleName: "side"}}, cam, 200, nil)

	go w.Run()
	b.NextCritical() // drain handshake

	b.SendCommand("cam_2", "SET_CONFIG", map[string]any{"exposure": 77})

	// Give the run loop a tick to drain the command inbox.
	time.Sleep(20 * time.Millisecond)
	w.Stop()

	if w.config.Exposure == nil || *w.config.Exposure != 77 {
		t.Fatalf("expected exposure 77 after SET_CONFIG, got %+v", w.config.Exposure)
	}
	if cam.exposure != 77 {
		t.Fatalf("expected camera exposure applied, got %d", cam.exposure)
	}
}

func TestSetSaltCommandUpdatesMathSalt(t *testing.T) {
	b := bus.New()
	cam := NewMockCamera(3, 8, 8, 200)
	w := New(b, device.Allocation{RoleID: 3, Profile: config.CameraProfile{RoleID: 3}}, cam, 200, nil)

	go w.Run()
	b.NextCritical()

	b.SendCommand("cam_3", "SET_SALT", map[string]any{"salt": 2.5})
	time.Sleep(20 * time.Millisecond)
	w.Stop()

	if w.mathSalt != 2.5 {
		t.Fatalf("expected math salt 2.5, got %v", w.mathSalt)
	}
}

func TestResolutionChangeHotSwapsRing(t *testing.T) {
	b := bus.New()
	cam := &resizingCamera{w1: 8, h1: 8, w2: 4, h2: 4, switchAfter: 3}
	w := New(b, device.Allocation{RoleID: 5, Profile: config.CameraProfile{RoleID: 5, RoleName: "top"}}, cam, 400, nil)

	go w.Run()

	first := nextCriticalWithTimeout(t, b, 2*time.Second)
	firstPayload := first.Payload.(map[string]any)
	firstName, _ := firstPayload["shm_name"].(string)
	firstShape, _ := firstPayload["shape"].([3]int)
	if firstShape != ([3]int{8, 8, 3}) {
		t.Fatalf("expected initial shape [8 8 3], got %v", firstShape)
	}

	second := nextCriticalWithTimeout(t, b, 2*time.Second)
	secondPayload := second.Payload.(map[string]any)
	secondName, _ := secondPayload["shm_name"].(string)
	secondShape, _ := secondPayload["shape"].([3]int)

	if secondName == firstName {
		t.Fatalf("expected a new ring name after resolution change, got the same name %q", firstName)
	}
	if secondShape != ([3]int{4, 4, 3}) {
		t.Fatalf("expected swapped shape [4 4 3], got %v", secondShape)
	}

	w.Stop()
}
