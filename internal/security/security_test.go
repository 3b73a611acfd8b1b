package security

import (
	"testing"
	"time"

	"github.com/BrunoKrugel/bikefit-vision/internal/bus"
)

func TestDevProviderAlwaysValid(t *testing.T) {
	p := NewDevProvider()
	ok, err := p.VerifyLicense()
	if err != nil || !ok {
		t.Fatalf("expected valid, got ok=%v err=%v", ok, err)
	}
	if p.MathSalt() != 1.0 {
		t.Fatalf("expected default salt 1.0, got %v", p.MathSalt())
	}
}

type failingProvider struct{}

func (failingProvider) VerifyLicense() (bool, error) { return false, nil }
func (failingProvider) MathSalt() float64            { return 1.0 }

func TestRunBroadcastsLockOnFailureAndExits(t *testing.T) {
	b := bus.New()
	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		Run(b, failingProvider{}, 5*time.Millisecond, stop)
		close(done)
	}()

	select {
	case evt := <-b.Broadcast():
		if evt.Type != "SECURITY_LOCK" {
			t.Fatalf("expected SECURITY_LOCK, got %q", evt.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for SECURITY_LOCK broadcast")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("security thread did not exit after lockdown")
	}
}

func TestRunBroadcastsSaltOnSuccess(t *testing.T) {
	b := bus.New()
	inbox := b.RegisterWorker(1)
	stop := make(chan struct{})
	defer close(stop)

	go Run(b, NewDevProvider(), 5*time.Millisecond, stop)

	select {
	case cmd := <-inbox:
		if cmd.Cmd != "SET_SALT" {
			t.Fatalf("expected SET_SALT, got %q", cmd.Cmd)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for SET_SALT command")
	}
}
