package detector

import (
	"fmt"
	"image"
)

// MaskBox is an axis-aligned box on the detector output grid. Both maxima are inclusive.
type MaskBox struct {
	XMin int `json:"x_min"`
	YMin int `json:"y_min"`
	XMax int `json:"x_max"`
	YMax int `json:"y_max"`
}

// Area is the number of cells the box covers.
func (b MaskBox) Area() int {
	return (b.XMax - b.XMin + 1) * (b.YMax - b.YMin + 1)
}

func (b MaskBox) String() string {
	return fmt.Sprintf("MaskBox(%d,%d,%d,%d)", b.XMin, b.YMin, b.XMax, b.YMax)
}

// ImageBox is a box in original image pixels. X2 and Y2 are exclusive.
type ImageBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

func (b ImageBox) Width() int  { return b.X2 - b.X1 }
func (b ImageBox) Height() int { return b.Y2 - b.Y1 }

// Rect converts the box to an image.Rectangle.
func (b ImageBox) Rect() image.Rectangle {
	return image.Rect(b.X1, b.Y1, b.X2, b.Y2)
}

func (b ImageBox) String() string {
	return fmt.Sprintf("Box(%d,%d,%d,%d)", b.X1, b.Y1, b.X2, b.Y2)
}
