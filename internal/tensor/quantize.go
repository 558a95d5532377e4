package tensor

import "math"

// DefaultQuantization is used for integer tensors that carry no parameters.
// It maps [0,1] onto the full integer range of the dtype.
func DefaultQuantization(dt DType) Quantization {
	if dt == Int8 {
		return Quantization{Scale: 1.0 / 255.0, ZeroPoint: -128}
	}
	return Quantization{Scale: 1.0 / 255.0, ZeroPoint: 0}
}

// Effective returns q when it is usable for dt, otherwise the dtype default.
func (q *Quantization) Effective(dt DType) Quantization {
	if q == nil || q.Scale <= 0 || math.IsNaN(float64(q.Scale)) {
		return DefaultQuantization(dt)
	}
	return *q
}

func rangeOf(dt DType) (int32, int32) {
	if dt == Int8 {
		return math.MinInt8, math.MaxInt8
	}
	return 0, math.MaxUint8
}

// Quantize maps a real value to the integer domain of dt, rounding to nearest
// and saturating at the dtype limits.
func Quantize(v float32, q Quantization, dt DType) int32 {
	lo, hi := rangeOf(dt)
	r := math.Round(float64(v)/float64(q.Scale)) + float64(q.ZeroPoint)
	switch {
	case math.IsNaN(r):
		return q.ZeroPoint
	case r < float64(lo):
		return lo
	case r > float64(hi):
		return hi
	}
	return int32(r)
}

// Dequantize is the inverse affine mapping of Quantize.
func Dequantize(v int32, q Quantization) float32 {
	return float32(v-q.ZeroPoint) * q.Scale
}
