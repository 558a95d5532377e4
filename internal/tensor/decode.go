package tensor

import (
	"encoding/binary"
	"math"
)

// ElementsIn returns the number of dt elements held by a byte buffer.
func ElementsIn(data []byte, dt DType) (int, error) {
	bpe, err := dt.BytesPerElement()
	if err != nil {
		return 0, err
	}
	if len(data)%bpe != 0 {
		return 0, &BufferSizeMismatchError{Got: len(data), Want: (len(data)/bpe + 1) * bpe}
	}
	return len(data) / bpe, nil
}

// DecodeInto converts a raw output buffer into real values, dequantizing
// integer dtypes. dst must hold exactly ElementsIn(data, dt) values.
func DecodeInto(dst []float32, data []byte, dt DType, quant *Quantization) error {
	n, err := ElementsIn(data, dt)
	if err != nil {
		return err
	}
	if len(dst) != n {
		return &BufferSizeMismatchError{Got: len(dst) * 4, Want: n * 4}
	}
	switch dt {
	case Float32:
		for i := range dst {
			dst[i] = math.Float32frombits(binary.NativeEndian.Uint32(data[i*4:]))
		}
	case Uint8:
		q := quant.Effective(dt)
		for i, b := range data {
			dst[i] = Dequantize(int32(b), q)
		}
	case Int8:
		q := quant.Effective(dt)
		for i, b := range data {
			dst[i] = Dequantize(int32(int8(b)), q)
		}
	}
	return nil
}

// ToFloat32 is DecodeInto with a freshly allocated destination.
func ToFloat32(data []byte, dt DType, quant *Quantization) ([]float32, error) {
	n, err := ElementsIn(data, dt)
	if err != nil {
		return nil, err
	}
	out := make([]float32, n)
	if err := DecodeInto(out, data, dt, quant); err != nil {
		return nil, err
	}
	return out, nil
}

// FromFloat32 packs float32 values into a native-endian byte buffer.
func FromFloat32(values []float32) []byte {
	out := make([]byte, len(values)*4)
	for i, v := range values {
		binary.NativeEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

// Stats returns min, max and mean of values for debug output.
func Stats(values []float32) (float32, float32, float32) {
	if len(values) == 0 {
		return 0, 0, 0
	}
	lo, hi := values[0], values[0]
	var sum float64
	for _, v := range values {
		lo = min(lo, v)
		hi = max(hi, v)
		sum += float64(v)
	}
	return lo, hi, float32(sum / float64(len(values)))
}
