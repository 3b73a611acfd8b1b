package replay

import (
	"fmt"
	"testing"
	"time"

	"github.com/BrunoKrugel/bikefit-vision/internal/recorder"
	"github.com/BrunoKrugel/bikefit-vision/internal/ring"
)

func TestReplayMissingFile(t *testing.T) {
	w := New("/no/such/file.bfm", "replay_test_missing")
	if err := w.Run(); err == nil {
		t.Fatal("expected error for missing recording file")
	}
}

func TestRoundTripRecordThenReplay(t *testing.T) {
	shape := ring.Shape{Height: 2, Width: 2, Channels: 1}
	srcName := fmt.Sprintf("replay_src_%s", t.Name())

	src, err := ring.Create(srcName, shape, 4)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer src.Unlink()

	if err := src.Write(1, 0.0, 1.0, 0, []byte{9, 9, 9, 9}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	file := t.TempDir() + "/session.bfm"
	rec := recorder.New(file, srcName, shape)
	if err := rec.Start(); err != nil {
		t.Fatalf("recorder Start: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	rec.Stop()

	dstName := fmt.Sprintf("replay_dst_%s", t.Name())
	rw := New(file, dstName)

	done := make(chan error, 1)
	go func() { done <- rw.Run() }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("replay Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("replay did not finish")
	}

	// Run unlinks its ring on completion (it is the owner), so by now the
	// destination region should be gone.
	if _, err := ring.Attach(dstName, shape); err != ring.ErrNotFound {
		t.Fatalf("expected destination ring to be unlinked after replay, got err=%v", err)
	}
}
