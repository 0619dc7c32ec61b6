package optimizations

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/NMT/params"
)

func TestScheduleShape(t *testing.T) {
	s, err := NewSchedule(4, 12, 1e-7, 5e-4, 1e-9)
	if err != nil {
		t.Fatal(err)
	}
	if got := s.LR(); got != 1e-7 {
		t.Fatalf("first lr %g", got)
	}
	prev := s.LR()
	for i := 0; i < 4; i++ {
		s.Step()
		if s.LR() <= prev {
			t.Fatalf("warmup not increasing at %d", i)
		}
		prev = s.LR()
	}
	if s.At(4) != 5e-4 {
		t.Fatalf("peak %g", s.At(4))
	}
	if math.Abs(s.At(8)-(5e-4+1e-9)/2) > 1e-15 {
		t.Fatalf("midpoint of warmdown %g", s.At(8))
	}
	if s.At(12) != 1e-9 || s.At(100) != 1e-9 {
		t.Fatal("schedule must clamp at min lr")
	}
}

func TestScheduleWithoutWarmup(t *testing.T) {
	s, _ := NewSchedule(0, 10, 1e-7, 1, 0)
	if s.LR() != 1 {
		t.Fatalf("no warmup starts at max, got %g", s.LR())
	}
	if _, err := NewSchedule(-1, 10, 0, 0, 0); err == nil {
		t.Fatal("negative warmup must be rejected")
	}
}

func TestAdamMovesAgainstGradient(t *testing.T) {
	cfg := params.Config
	cfg.WeightDecay = 0
	p := mat.NewDense(1, 2, []float64{1, 1})
	g := mat.NewDense(1, 2, []float64{0.5, -0.5})
	a, err := NewAdam(cfg, []*mat.Dense{p}, []*mat.Dense{g})
	if err != nil {
		t.Fatal(err)
	}
	a.Step(0.1)
	// first bias-corrected step has magnitude lr
	if math.Abs(p.At(0, 0)-0.9) > 1e-6 || math.Abs(p.At(0, 1)-1.1) > 1e-6 {
		t.Fatalf("unexpected params %v", mat.Formatted(p))
	}
	if a.Steps() != 1 {
		t.Fatalf("steps %d", a.Steps())
	}
}

func TestAdamClipsGradients(t *testing.T) {
	cfg := params.Config
	cfg.GradClip = 1
	p := mat.NewDense(1, 2, nil)
	g := mat.NewDense(1, 2, []float64{3, 4})
	a, _ := NewAdam(cfg, []*mat.Dense{p}, []*mat.Dense{g})
	if s := a.Step(0); math.Abs(s-0.2) > 1e-12 {
		t.Fatalf("clip scale %g", s)
	}
	if n := mat.Norm(g, 2); math.Abs(n-1) > 1e-12 {
		t.Fatalf("clipped norm %g", n)
	}
}

func TestAdamRejectsShapeMismatch(t *testing.T) {
	_, err := NewAdam(params.Config, []*mat.Dense{mat.NewDense(2, 2, nil)}, []*mat.Dense{mat.NewDense(1, 2, nil)})
	if err == nil {
		t.Fatal("shape mismatch must be rejected")
	}
}
