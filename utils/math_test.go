package utils

import (
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestCausalMask(t *testing.T) {
	m := CausalMask(4)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			want := 0.0
			if j <= i {
				want = 1
			}
			if m.At(i, j) != want {
				t.Fatalf("mask[%d][%d] = %v, want %v", i, j, m.At(i, j), want)
			}
		}
	}
}

func TestSoftmax(t *testing.T) {
	logits := []float64{1, 2, 3}
	p := make([]float64, 3)
	logp := Softmax(p, logits, 2)
	sum := p[0] + p[1] + p[2]
	if math.Abs(sum-1) > 1e-12 {
		t.Fatalf("probabilities sum to %v", sum)
	}
	if math.Abs(math.Exp(logp)-p[2]) > 1e-12 {
		t.Fatalf("log p[gold] = %v, p[gold] = %v", logp, p[2])
	}
	if !(p[0] < p[1] && p[1] < p[2]) {
		t.Fatalf("softmax not monotone: %v", p)
	}
}

func TestClipGrads(t *testing.T) {
	a := mat.NewDense(1, 2, []float64{3, 0})
	b := mat.NewDense(1, 1, []float64{4})
	if s := ClipGrads(10, a, b); s != 1 {
		t.Fatalf("no clip expected, got scale %v", s)
	}
	s := ClipGrads(1, a, b)
	if math.Abs(s-0.2) > 1e-12 {
		t.Fatalf("scale = %v, want 0.2", s)
	}
	if math.Abs(a.At(0, 0)-0.6) > 1e-12 || math.Abs(b.At(0, 0)-0.8) > 1e-12 {
		t.Fatalf("clipped values %v %v", a.At(0, 0), b.At(0, 0))
	}
}

func TestFlattenUnflatten(t *testing.T) {
	a := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	b := mat.NewDense(1, 3, []float64{5, 6, 7})
	flat := Flatten(nil, a, b)
	if len(flat) != 7 || flat[4] != 5 {
		t.Fatalf("flat = %v", flat)
	}
	for i := range flat {
		flat[i] *= 10
	}
	Unflatten(flat, a, b)
	if a.At(1, 1) != 40 || b.At(0, 2) != 70 {
		t.Fatalf("unflatten wrote %v %v", a.At(1, 1), b.At(0, 2))
	}
	AddFlat([]*mat.Dense{a, b}, 0.5, flat)
	if a.At(0, 0) != 15 {
		t.Fatalf("AddFlat wrote %v", a.At(0, 0))
	}
}

func TestRandomArrayBounds(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	bound := 1 / math.Sqrt(16+1e-12)
	for _, v := range RandomArray(rng, 100, 16) {
		if v < -bound || v > bound {
			t.Fatalf("%v outside ±%v", v, bound)
		}
	}
}
