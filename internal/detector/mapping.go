package detector

import (
	"fmt"
	"math"
)

// DefaultMaskStride is the ratio between the detector input and its output grid.
const DefaultMaskStride = 2

// Mapper converts mask-space boxes to original-image boxes.
type Mapper struct {
	Stride         int
	MaskWidth      int
	MaskHeight     int
	ResizedWidth   int
	ResizedHeight  int
	OriginalWidth  int
	OriginalHeight int
}

// Validate checks that every dimension is positive.
func (m Mapper) Validate() error {
	dims := []struct {
		name string
		v    int
	}{
		{"stride", m.Stride},
		{"mask width", m.MaskWidth}, {"mask height", m.MaskHeight},
		{"resized width", m.ResizedWidth}, {"resized height", m.ResizedHeight},
		{"original width", m.OriginalWidth}, {"original height", m.OriginalHeight},
	}
	for _, d := range dims {
		if d.v <= 0 {
			return fmt.Errorf("mapper %s must be positive, got %d", d.name, d.v)
		}
	}
	return nil
}

// mapAxis scales [lo, hi] inclusive mask cells to [a, b) pixels along one axis.
func (m Mapper) mapAxis(lo, hi, resized, orig int) (int, int) {
	scale := float64(orig) / float64(resized)
	a := int(math.Round(float64(lo*m.Stride) * scale))
	b := int(math.Round(float64((hi+1)*m.Stride) * scale))
	a = min(max(a, 0), orig-1)
	b = min(max(b, 1), orig)
	if b <= a {
		b = a + 1
	}
	return a, b
}

// Map returns a box with 0 <= X1 < X2 <= OriginalWidth and 0 <= Y1 < Y2 <= OriginalHeight.
func (m Mapper) Map(b MaskBox) ImageBox {
	x1, x2 := m.mapAxis(b.XMin, b.XMax, m.ResizedWidth, m.OriginalWidth)
	y1, y2 := m.mapAxis(b.YMin, b.YMax, m.ResizedHeight, m.OriginalHeight)
	return ImageBox{X1: x1, Y1: y1, X2: x2, Y2: y2}
}
