package recognizer

import (
	"fmt"
	"math"
	"strings"
)

// Placeholder is emitted for argmax indices that have no label.
const Placeholder = "?"

// UnsupportedBatchError is returned for recognizer outputs with more than one sequence.
type UnsupportedBatchError struct {
	Batch int64
}

func (e *UnsupportedBatchError) Error() string {
	return fmt.Sprintf("unsupported recognizer batch size %d, expected 1", e.Batch)
}

// Decoded is the greedy CTC decoding of one sequence.
type Decoded struct {
	Text string
	// Indices holds the argmax class of every time step.
	Indices []int
	// Collapsed holds the emitted classes after dropping repeats and blanks.
	Collapsed []int
	CharProbs []float64
}

// Confidence is the mean probability of the emitted characters, 0 when empty.
func (d *Decoded) Confidence() float64 {
	if len(d.CharProbs) == 0 {
		return 0
	}
	var s float64
	for _, p := range d.CharProbs {
		s += p
	}
	return s / float64(len(d.CharProbs))
}

// argmax returns the first index holding the maximum value.
func argmax(v []float32) int {
	idx := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[idx] {
			idx = i
		}
	}
	return idx
}

// probOf returns v[idx] when v already looks like a distribution, else its softmax probability.
func probOf(v []float32, idx int) float64 {
	var sum float64
	lo, hi := v[0], v[0]
	for _, x := range v {
		sum += float64(x)
		lo = min(lo, x)
		hi = max(hi, x)
	}
	if sum > 0.99 && sum < 1.01 && lo >= 0 && hi <= 1 {
		return float64(v[idx])
	}
	var denom float64
	for _, x := range v {
		denom += math.Exp(float64(x - hi))
	}
	return math.Exp(float64(v[idx]-hi)) / denom
}

// DecodeGreedy decodes a [1][T][C] class score sequence. A step emits its
// label unless its class equals the previous step's class or the blank.
func DecodeGreedy(scores []float32, shape []int64, labels *Labels) (*Decoded, error) {
	if len(shape) != 3 {
		return nil, fmt.Errorf("recognizer output rank %d, expected 3", len(shape))
	}
	if shape[0] != 1 {
		return nil, &UnsupportedBatchError{Batch: shape[0]}
	}
	steps, classes := int(shape[1]), int(shape[2])
	if steps < 0 || classes <= 0 {
		return nil, fmt.Errorf("invalid recognizer output shape %v", shape)
	}
	if len(scores) != steps*classes {
		return nil, fmt.Errorf("recognizer output has %d values, shape %v needs %d", len(scores), shape, steps*classes)
	}

	blank := labels.Blank()
	d := &Decoded{Indices: make([]int, steps)}
	var sb strings.Builder
	prev := -1
	for t := range steps {
		row := scores[t*classes : (t+1)*classes]
		idx := argmax(row)
		d.Indices[t] = idx
		if idx != prev && idx != blank {
			tok, ok := labels.Token(idx)
			if !ok {
				tok = Placeholder
			}
			sb.WriteString(tok)
			d.Collapsed = append(d.Collapsed, idx)
			d.CharProbs = append(d.CharProbs, probOf(row, idx))
		}
		prev = idx
	}
	d.Text = sb.String()
	return d, nil
}
