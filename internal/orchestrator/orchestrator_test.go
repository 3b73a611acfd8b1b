package orchestrator

import (
	"testing"
	"time"

	"github.com/BrunoKrugel/bikefit-vision/internal/bus"
	"github.com/BrunoKrugel/bikefit-vision/internal/config"
	"github.com/BrunoKrugel/bikefit-vision/internal/device"
	"github.com/BrunoKrugel/bikefit-vision/internal/model"
	"github.com/BrunoKrugel/bikefit-vision/internal/worker"
)

type fakeScanner struct{ devices map[string]int }

func (f fakeScanner) Scan() (map[string]int, error) { return f.devices, nil }

func mockFactory(alloc device.Allocation, width, height, fps int) worker.Camera {
	if width == 0 {
		width = 8
	}
	if height == 0 {
		height = 8
	}
	return worker.NewMockCamera(alloc.RoleID, width, height, fps)
}

func testProfiles() []config.CameraProfile {
	return []config.CameraProfile{
		{RoleID: 1, RoleName: "front", SerialNumber: "SN1", Resolution: [2]int{8, 8}, Enabled: true},
	}
}

func TestStartSpawnsAllocatedWorkers(t *testing.T) {
	b := bus.New()
	scanner := fakeScanner{devices: map[string]int{"SN1": 0}}
	o := New(b, scanner, mockFactory, 200, nil)

	if err := o.Start(testProfiles()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	critical := make(chan bus.Event, 1)
	go func() { critical <- b.NextCritical() }()

	select {
	case evt := <-critical:
		if evt.Type != "shm_handshake" {
			t.Fatalf("expected shm_handshake, got %q", evt.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for handshake")
	}

	o.Stop()
}

func TestHeartbeatRefreshesState(t *testing.T) {
	b := bus.New()
	scanner := fakeScanner{devices: map[string]int{"SN1": 0}}
	o := New(b, scanner, mockFactory, 200, nil)

	if err := o.Start(testProfiles()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer o.Stop()

	b.NextCritical() // drain handshake

	deadline := time.After(3 * time.Second)
	var st model.CameraState
	for {
		o.mu.Lock()
		st = o.state[1]
		o.mu.Unlock()
		if st.LastHeartbeat > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for heartbeat to refresh state")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if st.Role != "front" {
		t.Fatalf("expected role %q replaced from heartbeat payload, got %q", "front", st.Role)
	}
	if st.Config.CameraID != 1 {
		t.Fatalf("expected config replaced from heartbeat payload, got %+v", st.Config)
	}
}
