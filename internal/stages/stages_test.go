package stages

import (
	"testing"

	"github.com/BrunoKrugel/bikefit-vision/internal/model"
	"github.com/BrunoKrugel/bikefit-vision/internal/pipeline"
)

func frame4x4() (frame []byte, w, h, c int) {
	w, h, c = 4, 4, 1
	frame = make([]byte, w*h*c)
	// a 2x2 bright block in the top-left corner
	for _, idx := range []int{0, 1, 4, 5} {
		frame[idx] = 255
	}
	return
}

func TestBlobDetectorFindsComponent(t *testing.T) {
	frame, w, h, c := frame4x4()
	ctx := pipeline.NewFrameContext(frame, w, h, c, 1, 0, 1, model.DefaultCameraConfig(1))
	ctx.Config.MinArea = 15
	threshold := 100
	ctx.Config.Threshold = &threshold

	d := NewBlobDetector()
	d.minArea = 1
	if err := d.Process(ctx); err != nil {
		t.Fatalf("Process: %v", err)
	}

	points, _ := ctx.GetData("vision", "keypoints", nil).([]model.Point)
	if len(points) != 1 {
		t.Fatalf("got %d points, want 1", len(points))
	}
}

func TestCentroidTrackerAssignsStableID(t *testing.T) {
	tr := NewCentroidTracker()
	cfg := model.DefaultCameraConfig(1)

	ctx1 := pipeline.NewFrameContext(nil, 0, 0, 0, 0, 0, 1, cfg)
	ctx1.SetData("vision", "keypoints", []model.Point{{X: 10, Y: 10}})
	if err := tr.Process(ctx1); err != nil {
		t.Fatalf("Process frame 1: %v", err)
	}
	first, _ := ctx1.GetData("vision", "keypoints", nil).([]model.Point)
	if len(first) != 1 || first[0].ID != 1 {
		t.Fatalf("expected point assigned ID 1, got %+v", first)
	}

	ctx2 := pipeline.NewFrameContext(nil, 0, 0, 0, 1, 0, 1, cfg)
	ctx2.SetData("vision", "keypoints", []model.Point{{X: 11, Y: 11}})
	if err := tr.Process(ctx2); err != nil {
		t.Fatalf("Process frame 2: %v", err)
	}
	second, _ := ctx2.GetData("vision", "keypoints", nil).([]model.Point)
	if len(second) != 1 || second[0].ID != 1 {
		t.Fatalf("expected same track ID to persist, got %+v", second)
	}
}

func TestUndistortPassThroughWhenInactive(t *testing.T) {
	u := &Undistort{isActive: false}
	ctx := pipeline.NewFrameContext(nil, 0, 0, 0, 0, 0, 1, model.DefaultCameraConfig(1))
	ctx.SetData("vision", "keypoints", []model.Point{{X: 5, Y: 7}})

	if err := u.Process(ctx); err != nil {
		t.Fatalf("Process: %v", err)
	}
	points, _ := ctx.GetData("vision", "keypoints", nil).([]model.Point)
	if points[0].UX != 5 || points[0].UY != 7 {
		t.Fatalf("expected pass-through ux/uy, got %+v", points[0])
	}
}

func TestPerspectiveFallbackScale(t *testing.T) {
	p := &Perspective{isActive: false, pxPerCM: 2.0}
	ctx := pipeline.NewFrameContext(nil, 0, 0, 0, 0, 0, 1, model.DefaultCameraConfig(1))
	ctx.SetData("vision", "keypoints", []model.Point{{X: 5, Y: 7, UX: 10, UY: 20}})

	if err := p.Process(ctx); err != nil {
		t.Fatalf("Process: %v", err)
	}
	points, _ := ctx.GetData("vision", "keypoints", nil).([]model.Point)
	if points[0].WX != 5 || points[0].WY != 10 {
		t.Fatalf("expected wx/wy scaled by pxPerCM, got %+v", points[0])
	}
}
