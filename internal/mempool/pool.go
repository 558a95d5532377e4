// Package mempool keeps size-classed sync.Pools for the scratch slices used on
// the detection hot path (score planes, visited masks, encoded buffers).
package mempool

import "sync"

const classStep = 1024

type sizedPool[T any] struct {
	pools sync.Map // size class -> *sync.Pool
}

func classOf(n int) int {
	if n <= classStep {
		return classStep
	}
	return ((n + classStep - 1) / classStep) * classStep
}

func (s *sizedPool[T]) pool(cls int) *sync.Pool {
	p, _ := s.pools.LoadOrStore(cls, &sync.Pool{New: func() any {
		buf := make([]T, cls)
		return &buf
	}})
	return p.(*sync.Pool) //nolint:forcetypeassert // only *sync.Pool is stored
}

func (s *sizedPool[T]) get(n int, zero bool) []T {
	cls := classOf(n)
	bp, ok := s.pool(cls).Get().(*[]T)
	if !ok || cap(*bp) < cls {
		return make([]T, n)
	}
	buf := (*bp)[:n]
	if zero {
		clear(buf)
	}
	return buf
}

func (s *sizedPool[T]) put(buf []T) {
	if cap(buf) < classStep {
		return
	}
	// Round down so a buffer never lands in a class larger than its capacity.
	cls := (cap(buf) / classStep) * classStep
	buf = buf[:cap(buf)]
	s.pool(cls).Put(&buf)
}

var (
	float32s sizedPool[float32]
	bools    sizedPool[bool]
	bytesBuf sizedPool[byte]
)

// GetFloat32 returns a slice of length n. Contents are not zeroed.
func GetFloat32(n int) []float32 { return float32s.get(n, false) }

// PutFloat32 returns a slice obtained from GetFloat32. Nil is accepted.
func PutFloat32(buf []float32) { float32s.put(buf) }

// GetBool returns a zeroed slice of length n.
func GetBool(n int) []bool { return bools.get(n, true) }

// PutBool returns a slice obtained from GetBool. Nil is accepted.
func PutBool(buf []bool) { bools.put(buf) }

// GetBytes returns a zeroed byte slice of length n.
func GetBytes(n int) []byte { return bytesBuf.get(n, true) }

// PutBytes returns a slice obtained from GetBytes. Nil is accepted.
func PutBytes(buf []byte) { bytesBuf.put(buf) }
