package ring

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/BrunoKrugel/bikefit-vision/internal/model"
)

func testShape() Shape { return Shape{Height: 2, Width: 2, Channels: 1} }

func TestCreateAttachRoundTrip(t *testing.T) {
	name := fmt.Sprintf("test_%s", t.Name())
	shape := testShape()

	w, err := Create(name, shape, 4)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer w.Unlink()

	pixels := []byte{1, 2, 3, 4}
	if err := w.Write(42, 1.5, 0.9, model.FlagSyncFlash, pixels); err != nil {
		t.Fatalf("Write: %v", err)
	}

	r, err := Attach(name, shape)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	defer r.Close()

	hdr, body, err := r.ReadLatest()
	if err != nil {
		t.Fatalf("ReadLatest: %v", err)
	}
	if hdr.FrameID != 42 {
		t.Errorf("FrameID = %d, want 42", hdr.FrameID)
	}
	if !bytes.Equal(body, pixels) {
		t.Errorf("body = %v, want %v", body, pixels)
	}
}

func TestCapacityOne(t *testing.T) {
	name := fmt.Sprintf("test_cap1_%s", t.Name())
	shape := testShape()

	w, err := Create(name, shape, 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer w.Unlink()

	if err := w.Write(1, 0, 0, 0, []byte{9, 9, 9, 9}); err != nil {
		t.Fatalf("Write 1: %v", err)
	}
	if err := w.Write(2, 0, 0, 0, []byte{7, 7, 7, 7}); err != nil {
		t.Fatalf("Write 2: %v", err)
	}

	hdr, body, err := w.ReadLatest()
	if err != nil {
		t.Fatalf("ReadLatest: %v", err)
	}
	if hdr.FrameID != 2 {
		t.Errorf("FrameID = %d, want 2", hdr.FrameID)
	}
	if !bytes.Equal(body, []byte{7, 7, 7, 7}) {
		t.Errorf("body = %v, want last write", body)
	}
}

func TestAttachNotFound(t *testing.T) {
	_, err := Attach("does-not-exist-ever", testShape())
	if err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUnlinkRemovesRegion(t *testing.T) {
	name := fmt.Sprintf("test_unlink_%s", t.Name())
	w, err := Create(name, testShape(), 2)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := w.Unlink(); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if _, err := Attach(name, testShape()); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound after unlink", err)
	}
}

func TestForceUnlinkToleratesMissingRegion(t *testing.T) {
	if err := ForceUnlink("never-existed-region"); err != nil {
		t.Fatalf("ForceUnlink on missing region: %v", err)
	}
}

func TestForceUnlinkRemovesExistingRegion(t *testing.T) {
	name := fmt.Sprintf("test_forceunlink_%s", t.Name())
	w, err := Create(name, testShape(), 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	w.Close()

	if err := ForceUnlink(name); err != nil {
		t.Fatalf("ForceUnlink: %v", err)
	}
	if _, err := Attach(name, testShape()); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound after ForceUnlink", err)
	}
}

func TestWriteWrongSizeRejected(t *testing.T) {
	name := fmt.Sprintf("test_wrongsize_%s", t.Name())
	w, err := Create(name, testShape(), 2)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer w.Unlink()

	if err := w.Write(1, 0, 0, 0, []byte{1, 2, 3}); err == nil {
		t.Fatal("expected error writing wrong-sized payload")
	}
}
