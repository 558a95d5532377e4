package detector

import "github.com/MeKo-Tech/craftocr/internal/mempool"

// DefaultMinArea is the smallest bounding-box area, in mask cells, that is kept.
const DefaultMinArea = 10

// Component is one 8-connected foreground region of a mask.
type Component struct {
	Box    MaskBox
	Pixels int
	// Mean and maximum text probability over the component's cells. Zero when
	// no probabilities were supplied.
	MeanScore float64
	MaxScore  float64
}

type compStats struct {
	count      int
	sum        float64
	maxV       float64
	minX, minY int
	maxX, maxY int
}

func (st *compStats) add(x, y int, p float32) {
	st.count++
	st.sum += float64(p)
	st.maxV = max(st.maxV, float64(p))
	st.minX = min(st.minX, x)
	st.minY = min(st.minY, y)
	st.maxX = max(st.maxX, x)
	st.maxY = max(st.maxY, y)
}

var neighbors8 = [8][2]int{
	{-1, -1}, {0, -1}, {1, -1},
	{-1, 0}, {1, 0},
	{-1, 1}, {0, 1}, {1, 1},
}

// FindComponents labels 8-connected foreground regions in row-major discovery
// order and keeps those whose bounding-box area is at least minArea. scores is
// an optional per-cell text probability plane used for confidence.
func FindComponents(mask Mask, scores []float32, minArea int) []Component {
	w, h := mask.Width, mask.Height
	if w <= 0 || h <= 0 {
		return nil
	}
	if len(scores) != w*h {
		scores = nil
	}

	visited := mempool.GetBool(w * h)
	defer mempool.PutBool(visited)

	var out []Component
	queue := make([]int, 0, 64)
	for y := range h {
		for x := range w {
			start := y*w + x
			if !mask.Data[start] || visited[start] {
				continue
			}
			st := compStats{minX: x, minY: y, maxX: x, maxY: y}
			visited[start] = true
			queue = append(queue[:0], start)
			for head := 0; head < len(queue); head++ {
				ci := queue[head]
				cx, cy := ci%w, ci/w
				var p float32
				if scores != nil {
					p = scores[ci]
				}
				st.add(cx, cy, p)
				for _, d := range neighbors8 {
					nx, ny := cx+d[0], cy+d[1]
					if nx < 0 || nx >= w || ny < 0 || ny >= h {
						continue
					}
					ni := ny*w + nx
					if mask.Data[ni] && !visited[ni] {
						visited[ni] = true
						queue = append(queue, ni)
					}
				}
			}

			box := MaskBox{XMin: st.minX, YMin: st.minY, XMax: st.maxX, YMax: st.maxY}
			if box.Area() < minArea {
				continue
			}
			c := Component{Box: box, Pixels: st.count}
			if scores != nil {
				c.MeanScore = st.sum / float64(st.count)
				c.MaxScore = st.maxV
			}
			out = append(out, c)
		}
	}
	return out
}

// FindBoxes returns only the bounding boxes of FindComponents.
func FindBoxes(mask Mask, minArea int) []MaskBox {
	comps := FindComponents(mask, nil, minArea)
	boxes := make([]MaskBox, len(comps))
	for i, c := range comps {
		boxes[i] = c.Box
	}
	return boxes
}
