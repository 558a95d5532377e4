package tensor

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuantize_Clamping(t *testing.T) {
	q := Quantization{Scale: 0.1, ZeroPoint: 0}
	assert.Equal(t, int32(255), Quantize(1000, q, Uint8))
	assert.Equal(t, int32(0), Quantize(-5, q, Uint8))
	assert.Equal(t, int32(127), Quantize(1000, q, Int8))
	assert.Equal(t, int32(-128), Quantize(-1000, q, Int8))
	assert.Equal(t, int32(3), Quantize(0.3, q, Uint8))
}

func TestQuantization_Effective(t *testing.T) {
	var q *Quantization
	assert.Equal(t, DefaultQuantization(Uint8), q.Effective(Uint8))
	assert.Equal(t, int32(-128), (&Quantization{}).Effective(Int8).ZeroPoint)
	custom := &Quantization{Scale: 0.25, ZeroPoint: 3}
	assert.Equal(t, *custom, custom.Effective(Uint8))
}

// Values inside the representable range survive a round trip within one step.
func TestQuantize_RoundTripProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("uint8 dequantize(quantize(v)) within one scale step", prop.ForAll(
		func(v float32, scale float32, zp int32) bool {
			q := Quantization{Scale: scale, ZeroPoint: zp}
			lo := Dequantize(0, q)
			hi := Dequantize(255, q)
			if v < lo || v > hi {
				return true
			}
			back := Dequantize(Quantize(v, q, Uint8), q)
			return math.Abs(float64(back-v)) <= float64(scale)+1e-6
		},
		gen.Float32Range(-2, 2),
		gen.Float32Range(0.001, 0.05),
		gen.Int32Range(0, 255),
	))

	properties.Property("int8 dequantize(quantize(v)) within one scale step", prop.ForAll(
		func(v float32, scale float32, zp int32) bool {
			q := Quantization{Scale: scale, ZeroPoint: zp}
			lo := Dequantize(-128, q)
			hi := Dequantize(127, q)
			if v < lo || v > hi {
				return true
			}
			back := Dequantize(Quantize(v, q, Int8), q)
			return math.Abs(float64(back-v)) <= float64(scale)+1e-6
		},
		gen.Float32Range(-2, 2),
		gen.Float32Range(0.001, 0.05),
		gen.Int32Range(-128, 127),
	))

	properties.TestingRun(t)
}

func TestToFloat32(t *testing.T) {
	vals := []float32{0, -1.5, 3.25, 1e-3}
	out, err := ToFloat32(FromFloat32(vals), Float32, nil)
	require.NoError(t, err)
	assert.Equal(t, vals, out)

	out, err = ToFloat32([]byte{0, 255, 128}, Uint8, &Quantization{Scale: 0.5, ZeroPoint: 128})
	require.NoError(t, err)
	assert.Equal(t, []float32{-64, 63.5, 0}, out)

	out, err = ToFloat32([]byte{0x80, 0x7f}, Int8, &Quantization{Scale: 1, ZeroPoint: 0})
	require.NoError(t, err)
	assert.Equal(t, []float32{-128, 127}, out)

	_, err = ToFloat32([]byte{1, 2, 3}, Float32, nil)
	var se *BufferSizeMismatchError
	require.ErrorAs(t, err, &se)
}

func TestStats(t *testing.T) {
	lo, hi, mean := Stats([]float32{1, 2, 3, 6})
	assert.Equal(t, float32(1), lo)
	assert.Equal(t, float32(6), hi)
	assert.InDelta(t, 3.0, mean, 1e-6)
}

func TestParseDType(t *testing.T) {
	d, err := ParseDType("UINT8")
	require.NoError(t, err)
	assert.Equal(t, Uint8, d)
	_, err = ParseDType("float16")
	require.Error(t, err)
}
