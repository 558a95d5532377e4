package mock

import "math"

// Logit values whose sigmoid is well clear of the default thresholds.
const (
	HighLogit float32 = 6
	LowLogit  float32 = -6
)

// Rect is an inclusive cell rectangle on a score map.
type Rect struct {
	X0, Y0, X1, Y1 int
}

// ScoreMap builds a [1][h][w][2] text/link logit map with every cell low
// except the text channel inside rects.
func ScoreMap(w, h int, rects ...Rect) []float32 {
	data := make([]float32, w*h*2)
	for i := range w * h {
		data[i*2] = LowLogit
		data[i*2+1] = LowLogit
	}
	for _, r := range rects {
		for y := max(r.Y0, 0); y <= min(r.Y1, h-1); y++ {
			for x := max(r.X0, 0); x <= min(r.X1, w-1); x++ {
				data[(y*w+x)*2] = HighLogit
			}
		}
	}
	return data
}

// LinkCells raises the link logit of individual cells in a map built by ScoreMap.
func LinkCells(data []float32, w int, cells ...[2]int) {
	for _, c := range cells {
		data[(c[1]*w+c[0])*2+1] = HighLogit
	}
}

// OneHotSequence builds a [T][classes] row-major matrix whose argmax at step t is indices[t].
func OneHotSequence(indices []int, classes int) []float32 {
	out := make([]float32, len(indices)*classes)
	for t, idx := range indices {
		for c := range classes {
			out[t*classes+c] = -4
		}
		if idx >= 0 && idx < classes {
			out[t*classes+idx] = 4
		}
	}
	return out
}

// Sigmoid mirrors the detector's squashing for building expectations.
func Sigmoid(v float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(v))))
}
