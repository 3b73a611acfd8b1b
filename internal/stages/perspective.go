package stages

import (
	"github.com/BrunoKrugel/bikefit-vision/internal/model"
	"github.com/BrunoKrugel/bikefit-vision/internal/pipeline"
)

type perspectiveFile struct {
	PerspectiveMatrix [][]float64 `json:"perspective_matrix"`
	PxPerCM           float64     `json:"px_per_cm"`
}

// Perspective maps undistorted pixel coordinates to world centimetres via
// a 3x3 homography, falling back to a linear px-per-cm scale when no
// calibration is loaded. CORE stage.
type Perspective struct {
	matrix    [3][3]float64
	pxPerCM   float64
	isActive  bool
	isPaused  bool
}

// NewPerspective constructs the stage and attempts to load calibration
// immediately.
func NewPerspective() *Perspective {
	p := &Perspective{pxPerCM: 1.0}
	p.loadConfig()
	return p
}

func (p *Perspective) Name() string { return "perspective" }

func (p *Perspective) loadConfig() {
	var f perspectiveFile
	if !loadJSON("world.json", &f) || len(f.PerspectiveMatrix) != 3 {
		p.isActive = false
		return
	}
	for i := 0; i < 3; i++ {
		if len(f.PerspectiveMatrix[i]) != 3 {
			p.isActive = false
			return
		}
		copy(p.matrix[i][:], f.PerspectiveMatrix[i])
	}
	if f.PxPerCM > 0 {
		p.pxPerCM = f.PxPerCM
	} else {
		p.pxPerCM = 1.0
	}
	p.isActive = true
}

func (p *Perspective) HandleCommand(cmd string, args map[string]any) {
	switch cmd {
	case "toggle_pause":
		p.isPaused = !p.isPaused
	case "reload_config":
		p.loadConfig()
	}
}

func (p *Perspective) Process(ctx *pipeline.FrameContext) error {
	points, _ := ctx.GetData("vision", "keypoints", []model.Point{}).([]model.Point)
	if len(points) == 0 {
		return nil
	}

	if !p.isActive || p.isPaused {
		scale := p.pxPerCM
		if scale <= 0 {
			scale = 1.0
		}
		for i := range points {
			valX, valY := points[i].UX, points[i].UY
			if valX == 0 && valY == 0 {
				valX, valY = points[i].X, points[i].Y
			}
			points[i].WX = valX / scale
			points[i].WY = valY / scale
		}
		ctx.SetData("vision", "keypoints", points)
		return nil
	}

	for i := range points {
		px, py := points[i].UX, points[i].UY
		if px == 0 && py == 0 {
			px, py = points[i].X, points[i].Y
		}
		wxMeters, wyMeters := applyHomography(p.matrix, px, py)
		// The calibration board's geometry is specified in metres; convert
		// to centimetres for the wire format, same unit fixup the source
		// applies after perspectiveTransform.
		points[i].WX = wxMeters * 100.0
		points[i].WY = wyMeters * 100.0
	}
	ctx.SetData("vision", "keypoints", points)
	return nil
}

func applyHomography(h [3][3]float64, x, y float64) (float64, float64) {
	wx := h[0][0]*x + h[0][1]*y + h[0][2]
	wy := h[1][0]*x + h[1][1]*y + h[1][2]
	w := h[2][0]*x + h[2][1]*y + h[2][2]
	if w == 0 {
		return 0, 0
	}
	return wx / w, wy / w
}
