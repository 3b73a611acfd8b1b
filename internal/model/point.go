package model

// Point is a tracked keypoint carried through the three coordinate systems
// the pipeline stages successively fill in: raw screen pixels, undistorted
// pixels, and world centimetres.
type Point struct {
	ID         int
	Label      string
	X, Y       float64 // raw screen
	UX, UY     float64 // undistorted
	WX, WY     float64 // world (cm)
	Confidence float64
	VX, VY     float64
	Speed      float64
	Age        int
	IsStable   bool
}
