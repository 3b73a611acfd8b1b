package recorder

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/BrunoKrugel/bikefit-vision/internal/ring"
)

func TestRecorderAttachFailsWithoutRing(t *testing.T) {
	r := New(t.TempDir()+"/out.bfm", "no-such-ring-ever", ring.Shape{Height: 2, Width: 2, Channels: 1})
	if err := r.Start(); err == nil {
		t.Fatal("expected Start to fail when the source ring does not exist")
	}
}

func TestRecorderWritesNewFrames(t *testing.T) {
	shape := ring.Shape{Height: 2, Width: 2, Channels: 1}
	shmName := fmt.Sprintf("recorder_test_%s", t.Name())

	src, err := ring.Create(shmName, shape, 4)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer src.Unlink()

	if err := src.Write(1, 0.0, 1.0, 0, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	file := t.TempDir() + "/session.bfm"
	rec := New(file, shmName, shape)
	if err := rec.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	if err := src.Write(2, 0.1, 1.0, 0, []byte{5, 6, 7, 8}); err != nil {
		t.Fatalf("Write 2: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	rec.Stop()

	info, err := os.Stat(file)
	if err != nil {
		t.Fatalf("stat recording: %v", err)
	}
	if info.Size() <= int64(len(fileMagic)) {
		t.Fatalf("expected recording to contain frame data, size=%d", info.Size())
	}
}
