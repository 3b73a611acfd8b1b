// Package stages implements the fixed core vision pipeline: blob
// detection, centroid tracking, lens undistortion and perspective
// projection, each grounded on the original stage implementations'
// algorithms re-expressed without a CV library dependency.
package stages

import (
	"math"
	"sort"

	"github.com/BrunoKrugel/bikefit-vision/internal/model"
	"github.com/BrunoKrugel/bikefit-vision/internal/pipeline"
)

// BlobDetector finds bright connected components in the frame and emits
// their centroids as candidate points, filtered by a minimum physical
// separation so two touching markers aren't merged.
type BlobDetector struct {
	minArea    int
	maxBlobs   int
	minDistCM  float64
	defaultScale float64
}

// NewBlobDetector constructs a detector with the source's defaults.
func NewBlobDetector() *BlobDetector {
	return &BlobDetector{
		minArea:      15,
		maxBlobs:     50,
		minDistCM:    5.0,
		defaultScale: 10.0, // pixels per cm absent calibration
	}
}

func (s *BlobDetector) Name() string { return "blob_detector" }

type blobCandidate struct {
	x, y float64
	area int
}

func (s *BlobDetector) Process(ctx *pipeline.FrameContext) error {
	if len(ctx.Frame) == 0 || ctx.Width == 0 || ctx.Height == 0 {
		return nil
	}

	threshold := 200
	if ctx.Config.Threshold != nil {
		threshold = *ctx.Config.Threshold
	}

	scale := s.defaultScale
	if worldData, ok := ctx.GetData("calibration", "world_data", nil).(map[string]any); ok {
		if v, ok := worldData["scale"].(float64); ok {
			scale = v
		}
	}
	minDistPx := s.minDistCM * scale

	mask := thresholdMask(ctx.Frame, ctx.Width, ctx.Height, ctx.Channels, threshold)
	components := connectedComponents(mask, ctx.Width, ctx.Height)

	candidates := make([]blobCandidate, 0, len(components))
	for _, c := range components {
		if c.area < s.minArea {
			continue
		}
		candidates = append(candidates, blobCandidate{x: c.sumX / float64(c.area), y: c.sumY / float64(c.area), area: c.area})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].area > candidates[j].area })

	accepted := make([]model.Point, 0, len(candidates))
	for _, cand := range candidates {
		tooClose := false
		for _, existing := range accepted {
			dx, dy := cand.x-existing.X, cand.y-existing.Y
			if math.Hypot(dx, dy) < minDistPx {
				tooClose = true
				break
			}
		}
		if tooClose {
			continue
		}
		accepted = append(accepted, model.Point{X: cand.x, Y: cand.y, Confidence: 1.0, Label: "blob"})
		if len(accepted) >= s.maxBlobs {
			break
		}
	}

	ctx.SetData("vision", "keypoints", accepted)

	if ctx.FrameID%15 == 0 {
		status := "warning"
		switch {
		case len(accepted) == 0:
			status = "neutral"
		case len(accepted) < s.maxBlobs:
			status = "success"
		}
		ctx.UI.UpdateWidget("blobs_found", "Markers", map[string]any{
			"value":  len(accepted),
			"status": status,
		}, model.WidgetStatusIndicator)
	}

	return nil
}

func (s *BlobDetector) HandleCommand(cmd string, args map[string]any) {
	switch cmd {
	case "set_min_area":
		if v, ok := numericArg(args["value"]); ok {
			s.minArea = int(v)
		}
	case "set_min_dist_cm":
		if v, ok := numericArg(args["value"]); ok {
			s.minDistCM = v
		}
	}
}

func numericArg(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// thresholdMask produces a binary mask from the first channel of each
// pixel (the luminance channel when the source is grayscale, or a
// reasonable proxy when it isn't — full colour-to-gray conversion is out
// of scope for the core pipeline's replacement of cv2.cvtColor).
func thresholdMask(frame []byte, width, height, channels, threshold int) []bool {
	mask := make([]bool, width*height)
	for i := 0; i < width*height; i++ {
		v := int(frame[i*channels])
		mask[i] = v >= threshold
	}
	return mask
}

type component struct {
	area       int
	sumX, sumY float64
}

// connectedComponents labels 4-connected regions of mask via iterative
// flood fill, replacing cv2.findContours+moments with equivalent
// external-contour semantics (RETR_EXTERNAL's effect of finding each
// blob's area and centroid, without contour boundary geometry no caller
// here needs).
func connectedComponents(mask []bool, width, height int) []component {
	visited := make([]bool, len(mask))
	var out []component
	stack := make([]int, 0, 64)

	for start := 0; start < len(mask); start++ {
		if !mask[start] || visited[start] {
			continue
		}
		visited[start] = true
		stack = append(stack[:0], start)
		var c component

		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			x, y := idx%width, idx/width
			c.area++
			c.sumX += float64(x)
			c.sumY += float64(y)

			neighbors := [4][2]int{{x - 1, y}, {x + 1, y}, {x, y - 1}, {x, y + 1}}
			for _, n := range neighbors {
				nx, ny := n[0], n[1]
				if nx < 0 || nx >= width || ny < 0 || ny >= height {
					continue
				}
				nIdx := ny*width + nx
				if mask[nIdx] && !visited[nIdx] {
					visited[nIdx] = true
					stack = append(stack, nIdx)
				}
			}
		}
		out = append(out, c)
	}
	return out
}
