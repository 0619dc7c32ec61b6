package utils

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// RandomArray returns 'size' samples from U(-1/sqrt(v), 1/sqrt(v)) drawn from rng.
func RandomArray(rng *rand.Rand, size int, v float64) []float64 {
	min := -1.0 / math.Sqrt(v+1e-12)
	max := 1.0 / math.Sqrt(v+1e-12)
	out := make([]float64, size)
	for i := 0; i < size; i++ {
		out[i] = min + (max-min)*rng.Float64()
	}
	return out
}

func MatrixNorm(m *mat.Dense) float64 {
	return mat.Norm(m, 2)
}

// ClipGrads scales all grads so their combined norm <= maxNorm.
// Returns the scale actually applied (<=1.0) or 1.0 if no clip.
func ClipGrads(maxNorm float64, grads ...*mat.Dense) float64 {
	if maxNorm <= 0 {
		return 1.0
	}
	sum := 0.0
	for _, g := range grads {
		if g == nil {
			continue
		}
		n := MatrixNorm(g)
		sum += n * n
	}
	gn := math.Sqrt(sum)
	if gn <= maxNorm || gn == 0 {
		return 1.0
	}
	s := maxNorm / gn
	for _, g := range grads {
		if g != nil {
			g.Scale(s, g)
		}
	}
	return s
}

// Flatten concatenates the raw data of ms into dst (grown as needed).
func Flatten(dst []float64, ms ...*mat.Dense) []float64 {
	dst = dst[:0]
	for _, m := range ms {
		dst = append(dst, m.RawMatrix().Data...)
	}
	return dst
}

// Unflatten copies src back into ms, in the order Flatten wrote them.
func Unflatten(src []float64, ms ...*mat.Dense) {
	off := 0
	for _, m := range ms {
		raw := m.RawMatrix().Data
		copy(raw, src[off:off+len(raw)])
		off += len(raw)
	}
}

// AddFlat adds alpha*src into ms, in Flatten order.
func AddFlat(ms []*mat.Dense, alpha float64, src []float64) {
	off := 0
	for _, m := range ms {
		raw := m.RawMatrix().Data
		floats.AddScaled(raw, alpha, src[off:off+len(raw)])
		off += len(raw)
	}
}
