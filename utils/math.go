package utils

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// CausalMask is a T x T lower-triangular 0/1 matrix: [i][j] = 1 iff j <= i.
func CausalMask(T int) *mat.Dense {
	out := mat.NewDense(T, T, nil)
	for i := 0; i < T; i++ {
		for j := 0; j <= i; j++ {
			out.Set(i, j, 1)
		}
	}
	return out
}

// Softmax writes softmax(logits) into dst and returns log p[gold].
func Softmax(dst, logits []float64, gold int) float64 {
	lse := floats.LogSumExp(logits)
	for i, l := range logits {
		dst[i] = math.Exp(l - lse)
	}
	return logits[gold] - lse
}
