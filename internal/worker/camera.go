package worker

import (
	"math"
	"time"

	"github.com/BrunoKrugel/bikefit-vision/internal/model"
)

// Camera abstracts the out-of-scope device driver: UVC parameter
// control and MJPEG decoding are specified only by this contract.
type Camera interface {
	Connect() error
	Release() error
	Resolution() (width, height int)
	CaptureFrame(dst []byte) bool
	SetExposure(value int) bool
	ApplyConfig(cfg model.CameraConfig)
}

// MockCamera stands in for the real UVC driver: a synthetic camera
// painting one moving 10x10 marker plus a single full-frame sync-flash
// (frame indices 28-32 after Connect), so the rest of the pipeline has
// something to detect and
// track without real hardware.
type MockCamera struct {
	width, height, fps, id int
	connected               bool
	startTime               time.Time
	exposure                int
}

// NewMockCamera constructs a synthetic camera at the given geometry.
func NewMockCamera(id, width, height, fps int) *MockCamera {
	return &MockCamera{id: id, width: width, height: height, fps: fps, exposure: 100}
}

func (c *MockCamera) Connect() error {
	c.connected = true
	c.startTime = time.Now()
	return nil
}

func (c *MockCamera) Release() error {
	c.connected = false
	return nil
}

func (c *MockCamera) Resolution() (int, int) { return c.width, c.height }

func (c *MockCamera) SetExposure(value int) bool {
	c.exposure = value
	return true
}

func (c *MockCamera) ApplyConfig(cfg model.CameraConfig) {
	if cfg.Exposure != nil {
		c.SetExposure(*cfg.Exposure)
	}
}

// CaptureFrame paints a synthetic grayscale-ish BGR frame into dst
// (row-major H*W*3). It always succeeds once connected.
func (c *MockCamera) CaptureFrame(dst []byte) bool {
	if !c.connected {
		return false
	}

	elapsed := time.Since(c.startTime).Seconds()
	frameIdx := int(elapsed * float64(c.fps))

	for i := range dst {
		dst[i] = 0
	}

	if frameIdx >= 28 && frameIdx <= 32 {
		for i := range dst {
			dst[i] = 255
		}
		return true
	}

	cx, cy := c.width/2, c.height/2
	const radius = 400
	angle := elapsed * 2.0

	offsetX := 0
	switch c.id {
	case 1:
		offsetX = 50
	case 2:
		offsetX = -50
	}

	px := cx + int(math.Cos(angle)*radius) + offsetX
	py := cy + int(math.Sin(angle)*radius)

	brightness := byte(minInt(255, maxInt(50, c.exposure)))

	y1, y2 := maxInt(0, py-5), minInt(c.height, py+5)
	x1, x2 := maxInt(0, px-5), minInt(c.width, px+5)
	for y := y1; y < y2; y++ {
		for x := x1; x < x2; x++ {
			off := (y*c.width + x) * 3
			dst[off], dst[off+1], dst[off+2] = brightness, brightness, brightness
		}
	}
	return true
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
