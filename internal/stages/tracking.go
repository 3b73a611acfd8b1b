package stages

import (
	"math"
	"sort"

	"github.com/BrunoKrugel/bikefit-vision/internal/model"
	"github.com/BrunoKrugel/bikefit-vision/internal/pipeline"
)

const trackerDT = 1.0 / 90.0 // approximate frame interval at 90fps

// CentroidTracker assigns stable IDs to detector output across frames
// using greedy nearest-neighbour matching against a linearly-predicted
// position, with EMA-smoothed velocity so fast motion doesn't break the
// ID assignment.
type CentroidTracker struct {
	nextID         int
	objects        map[int]*model.Point
	order          []int // insertion order, for deterministic iteration
	disappeared    map[int]int
	maxDisappeared int
	maxDistance    float64
}

// NewCentroidTracker constructs a tracker with the source's defaults.
func NewCentroidTracker() *CentroidTracker {
	return &CentroidTracker{
		nextID:         1,
		objects:        make(map[int]*model.Point),
		disappeared:    make(map[int]int),
		maxDisappeared: 45,  // ~0.5s at 90fps
		maxDistance:    150, // max pixel displacement between frames
	}
}

func (t *CentroidTracker) Name() string { return "tracker" }

func (t *CentroidTracker) register(p model.Point) {
	p.ID = t.nextID
	p.Label = idLabel(t.nextID)
	p.Age = 0
	p.IsStable = false
	t.objects[t.nextID] = &p
	t.disappeared[t.nextID] = 0
	t.order = append(t.order, t.nextID)
	t.nextID++
}

func idLabel(id int) string {
	return "ID " + itoa(id)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func (t *CentroidTracker) deregister(id int) {
	delete(t.objects, id)
	delete(t.disappeared, id)
	for i, oid := range t.order {
		if oid == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

func (t *CentroidTracker) Process(ctx *pipeline.FrameContext) error {
	input, _ := ctx.GetData("vision", "keypoints", []model.Point{}).([]model.Point)

	if len(t.objects) == 0 {
		for _, p := range input {
			t.register(p)
		}
		t.finalize(ctx)
		return nil
	}

	if len(input) == 0 {
		for _, id := range append([]int(nil), t.order...) {
			t.disappeared[id]++
			if t.disappeared[id] > t.maxDisappeared {
				t.deregister(id)
			}
		}
		t.finalize(ctx)
		return nil
	}

	objectIDs := append([]int(nil), t.order...)
	predicted := make([][2]float64, len(objectIDs))
	for i, id := range objectIDs {
		obj := t.objects[id]
		predicted[i] = [2]float64{obj.X + obj.VX*trackerDT, obj.Y + obj.VY*trackerDT}
	}

	dist := make([][]float64, len(predicted))
	for r := range predicted {
		dist[r] = make([]float64, len(input))
		for c, p := range input {
			dist[r][c] = math.Hypot(predicted[r][0]-p.X, predicted[r][1]-p.Y)
		}
	}

	rowOrder := make([]int, len(predicted))
	rowMinCol := make([]int, len(predicted))
	for r := range predicted {
		rowOrder[r] = r
		minVal := math.Inf(1)
		minCol := 0
		for c, d := range dist[r] {
			if d < minVal {
				minVal = d
				minCol = c
			}
		}
		rowMinCol[r] = minCol
	}
	sort.Slice(rowOrder, func(i, j int) bool {
		return dist[rowOrder[i]][rowMinCol[rowOrder[i]]] < dist[rowOrder[j]][rowMinCol[rowOrder[j]]]
	})

	usedRows := make(map[int]bool)
	usedCols := make(map[int]bool)

	for _, row := range rowOrder {
		col := rowMinCol[row]
		if usedRows[row] || usedCols[col] {
			continue
		}
		if dist[row][col] > t.maxDistance {
			continue
		}

		objectID := objectIDs[row]
		newObs := input[col]
		existing := t.objects[objectID]

		instVX := (newObs.X - existing.X) / trackerDT
		instVY := (newObs.Y - existing.Y) / trackerDT

		const alpha = 0.5
		existing.VX = existing.VX*alpha + instVX*(1-alpha)
		existing.VY = existing.VY*alpha + instVY*(1-alpha)

		existing.X = newObs.X
		existing.Y = newObs.Y
		existing.Confidence = newObs.Confidence
		existing.Age++
		t.disappeared[objectID] = 0

		// Undistorted coordinates must be recomputed by the next stage.
		existing.UX, existing.UY = 0, 0

		usedRows[row] = true
		usedCols[col] = true
	}

	for row := range predicted {
		if usedRows[row] {
			continue
		}
		id := objectIDs[row]
		t.disappeared[id]++
		if t.disappeared[id] > t.maxDisappeared {
			t.deregister(id)
		}
	}

	for col := range input {
		if !usedCols[col] {
			t.register(input[col])
		}
	}

	t.finalize(ctx)
	return nil
}

func (t *CentroidTracker) finalize(ctx *pipeline.FrameContext) {
	tracked := make([]model.Point, 0, len(t.objects))
	for _, id := range t.order {
		if t.disappeared[id] == 0 {
			tracked = append(tracked, *t.objects[id])
		}
	}
	ctx.SetData("vision", "keypoints", tracked)

	if ctx.FrameID%15 == 0 {
		ctx.UI.UpdateWidget("tracker_stat", "Tracking", map[string]any{
			"active": len(tracked),
			"total":  t.nextID - 1,
		}, model.WidgetText)
	}
}

func (t *CentroidTracker) HandleCommand(cmd string, args map[string]any) {
	if cmd == "reset_tracker" {
		t.objects = make(map[int]*model.Point)
		t.disappeared = make(map[int]int)
		t.order = nil
		t.nextID = 1
	}
}
