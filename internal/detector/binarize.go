package detector

import (
	"fmt"
	"math"
)

// Default thresholds applied to the sigmoid of the text and link logits.
const (
	DefaultTextThreshold float32 = 0.7
	DefaultLinkThreshold float32 = 0.4
)

// Thresholds decide which cells of a score map are foreground.
type Thresholds struct {
	Text float32 `json:"text"`
	Link float32 `json:"link"`
}

// DefaultThresholds returns the text 0.7 / link 0.4 pair.
func DefaultThresholds() Thresholds {
	return Thresholds{Text: DefaultTextThreshold, Link: DefaultLinkThreshold}
}

// InvalidScoreMapError reports a detector output that is not [1][H][W][C>=2].
type InvalidScoreMapError struct {
	Shape  []int64
	Reason string
}

func (e *InvalidScoreMapError) Error() string {
	return fmt.Sprintf("invalid score map %v: %s", e.Shape, e.Reason)
}

// ScoreMap is a view over detector logits laid out [1][H][W][C].
// Channel 0 carries the text logit and channel 1 the link logit.
type ScoreMap struct {
	Data     []float32
	Height   int
	Width    int
	Channels int
}

// NewScoreMap validates shape against data and wraps it without copying.
func NewScoreMap(data []float32, shape []int64) (ScoreMap, error) {
	if len(shape) != 4 {
		return ScoreMap{}, &InvalidScoreMapError{Shape: shape, Reason: "rank must be 4"}
	}
	if shape[0] != 1 {
		return ScoreMap{}, &InvalidScoreMapError{Shape: shape, Reason: "batch must be 1"}
	}
	if shape[1] <= 0 || shape[2] <= 0 {
		return ScoreMap{}, &InvalidScoreMapError{Shape: shape, Reason: "height and width must be positive"}
	}
	if shape[3] < 2 {
		return ScoreMap{}, &InvalidScoreMapError{Shape: shape, Reason: "need text and link channels"}
	}
	m := ScoreMap{Data: data, Height: int(shape[1]), Width: int(shape[2]), Channels: int(shape[3])}
	if len(data) != m.Height*m.Width*m.Channels {
		return ScoreMap{}, &InvalidScoreMapError{
			Shape:  shape,
			Reason: fmt.Sprintf("data has %d values", len(data)),
		}
	}
	return m, nil
}

func (m ScoreMap) text(i int) float32 { return m.Data[i*m.Channels] }
func (m ScoreMap) link(i int) float32 { return m.Data[i*m.Channels+1] }

// TextProbabilities returns sigmoid(text) for every cell in row-major order.
func (m ScoreMap) TextProbabilities() []float32 {
	out := make([]float32, m.Height*m.Width)
	for i := range out {
		out[i] = sigmoid(m.text(i))
	}
	return out
}

// Mask is a binary foreground grid stored row-major.
type Mask struct {
	Data   []bool
	Width  int
	Height int
}

// NewMask returns an empty mask.
func NewMask(w, h int) Mask {
	return Mask{Data: make([]bool, w*h), Width: w, Height: h}
}

// At reports whether cell (x, y) is foreground.
func (m Mask) At(x, y int) bool { return m.Data[y*m.Width+x] }

// Set marks cell (x, y).
func (m Mask) Set(x, y int, v bool) { m.Data[y*m.Width+x] = v }

// Count returns the number of foreground cells.
func (m Mask) Count() int {
	n := 0
	for _, v := range m.Data {
		if v {
			n++
		}
	}
	return n
}

func sigmoid(v float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(v))))
}

// Binarize marks a cell when sigmoid(text) > th.Text or sigmoid(link) > th.Link.
func Binarize(m ScoreMap, th Thresholds) Mask {
	mask := NewMask(m.Width, m.Height)
	for i := range mask.Data {
		mask.Data[i] = sigmoid(m.text(i)) > th.Text || sigmoid(m.link(i)) > th.Link
	}
	return mask
}
