package stages

import "github.com/BrunoKrugel/bikefit-vision/internal/pipeline"

// init registers the core stages in one place, in the fixed order
// required by the per-frame pipeline: detection feeds tracking, tracking
// feeds undistort, and undistort's UX/UY are what perspective projects
// into world coordinates. Registration order here is what RegisterCore
// preserves into BuildCore, so this list — not file layout — is the
// single source of truth for the sequence; it must not be left to
// package init() order across files, which depends on filename sort and
// says nothing about pipeline semantics.
func init() {
	pipeline.RegisterCore(func() pipeline.Stage { return NewBlobDetector() })
	pipeline.RegisterCore(func() pipeline.Stage { return NewCentroidTracker() })
	pipeline.RegisterCore(func() pipeline.Stage { return NewUndistort() })
	pipeline.RegisterCore(func() pipeline.Stage { return NewPerspective() })
}
