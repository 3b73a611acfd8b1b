package stages

import (
	"github.com/BrunoKrugel/bikefit-vision/internal/model"
	"github.com/BrunoKrugel/bikefit-vision/internal/pipeline"
)

type cameraMatrix struct {
	FX, FY, CX, CY float64
}

type distCoeffs struct {
	K1, K2, P1, P2, K3 float64
}

type undistortFile struct {
	Mtx          [][]float64 `json:"mtx"`
	CameraMatrix [][]float64 `json:"camera_matrix"`
	Dist         []float64   `json:"dist"`
	DistCoeffs   []float64   `json:"dist_coeffs"`
}

// Undistort corrects lens distortion on tracked points: raw (x, y) in,
// undistorted (ux, uy) out. It is a CORE stage — always present, only
// ever disabled by the health policy or manually paused.
type Undistort struct {
	matrix   cameraMatrix
	coeffs   distCoeffs
	isActive bool
	isPaused bool
}

// NewUndistort constructs the stage and attempts to load calibration
// immediately, matching the source's eager _load_config in __init__.
func NewUndistort() *Undistort {
	u := &Undistort{}
	u.loadConfig()
	return u
}

func (u *Undistort) Name() string { return "undistort" }

func (u *Undistort) loadConfig() {
	var f undistortFile
	if !loadJSON("result.json", &f) {
		u.isActive = false
		return
	}
	mtx := f.Mtx
	if mtx == nil {
		mtx = f.CameraMatrix
	}
	dist := f.Dist
	if dist == nil {
		dist = f.DistCoeffs
	}
	if mtx == nil || dist == nil || len(mtx) < 2 || len(mtx[0]) < 3 {
		u.isActive = false
		return
	}
	u.matrix = cameraMatrix{FX: mtx[0][0], FY: mtx[1][1], CX: mtx[0][2], CY: mtx[1][2]}
	u.coeffs = distCoeffsFrom(dist)
	u.isActive = true
}

func distCoeffsFrom(d []float64) distCoeffs {
	var c distCoeffs
	get := func(i int) float64 {
		if i < len(d) {
			return d[i]
		}
		return 0
	}
	c.K1, c.K2, c.P1, c.P2, c.K3 = get(0), get(1), get(2), get(3), get(4)
	return c
}

func (u *Undistort) HandleCommand(cmd string, args map[string]any) {
	switch cmd {
	case "toggle_pause":
		u.isPaused = !u.isPaused
	case "reload_config":
		u.loadConfig()
	}
}

func (u *Undistort) Process(ctx *pipeline.FrameContext) error {
	points, _ := ctx.GetData("vision", "keypoints", []model.Point{}).([]model.Point)
	if len(points) == 0 {
		return nil
	}

	if !u.isActive || u.isPaused {
		for i := range points {
			points[i].UX, points[i].UY = points[i].X, points[i].Y
		}
		ctx.SetData("vision", "keypoints", points)
		return nil
	}

	for i := range points {
		ux, uy := undistortPoint(points[i].X, points[i].Y, u.matrix, u.coeffs)
		points[i].UX, points[i].UY = ux, uy
	}
	ctx.SetData("vision", "keypoints", points)
	return nil
}

// undistortPoint inverts the Brown-Conrady distortion model via
// fixed-point iteration, then reprojects through the same camera matrix
// (P=camera_matrix) so the result stays in pixel units, matching
// cv2.undistortPoints(..., P=self.camera_matrix)'s behaviour.
func undistortPoint(x, y float64, m cameraMatrix, d distCoeffs) (float64, float64) {
	xn := (x - m.CX) / m.FX
	yn := (y - m.CY) / m.FY

	xu, yu := xn, yn
	for iter := 0; iter < 5; iter++ {
		r2 := xu*xu + yu*yu
		radial := 1 + d.K1*r2 + d.K2*r2*r2 + d.K3*r2*r2*r2
		dx := 2*d.P1*xu*yu + d.P2*(r2+2*xu*xu)
		dy := d.P1*(r2+2*yu*yu) + 2*d.P2*xu*yu
		xu = (xn - dx) / radial
		yu = (yn - dy) / radial
	}

	return xu*m.FX + m.CX, yu*m.FY + m.CY
}
