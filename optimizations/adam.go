package optimizations

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/NMT/params"
	"github.com/manningwu07/NMT/utils"
)

// p -= lr * (mhat/(sqrt(vhat)+eps) + wd * p) with bias correction (AdamW).
func AdamUpdateInPlace(
	p, g, m, v *mat.Dense,
	t int,
	lr, beta1, beta2, eps, weightDecay float64,
) {
	pr, pc := p.Dims()
	if gr, gc := g.Dims(); gr != pr || gc != pc {
		panic("adamUpdateInPlace: grad shape mismatch")
	}
	if mr, mc := m.Dims(); mr != pr || mc != pc {
		panic("adamUpdateInPlace: m shape mismatch")
	}
	if vr, vc := v.Dims(); vr != pr || vc != pc {
		panic("adamUpdateInPlace: v shape mismatch")
	}
	c1 := 1.0 / (1.0 - math.Pow(beta1, float64(t)))
	c2 := 1.0 / (1.0 - math.Pow(beta2, float64(t)))
	for i := 0; i < pr; i++ {
		for j := 0; j < pc; j++ {
			gij := g.At(i, j)
			mij := beta1*m.At(i, j) + (1.0-beta1)*gij
			vij := beta2*v.At(i, j) + (1.0-beta2)*gij*gij
			denom := math.Sqrt(vij*c2) + eps
			update := mij*c1/denom + weightDecay*p.At(i, j)
			m.Set(i, j, mij)
			v.Set(i, j, vij)
			p.Set(i, j, p.At(i, j)-lr*update)
		}
	}
}

// Adam holds the moment estimates for a fixed list of parameters.
type Adam struct {
	Beta1, Beta2 float64
	Eps          float64
	WeightDecay  float64
	GradClip     float64

	params []*mat.Dense
	grads  []*mat.Dense
	m, v   []*mat.Dense
	t      int
}

// NewAdam pairs params with grads; both lists must have matching shapes.
func NewAdam(cfg params.TrainingConfig, ps, gs []*mat.Dense) (*Adam, error) {
	if len(ps) != len(gs) {
		return nil, errors.Errorf("adam: %d params but %d grads", len(ps), len(gs))
	}
	a := &Adam{
		Beta1:       cfg.AdamBeta1,
		Beta2:       cfg.AdamBeta2,
		Eps:         cfg.AdamEps,
		WeightDecay: cfg.WeightDecay,
		GradClip:    cfg.GradClip,
		params:      ps,
		grads:       gs,
	}
	for i, p := range ps {
		pr, pc := p.Dims()
		if gr, gc := gs[i].Dims(); gr != pr || gc != pc {
			return nil, errors.Errorf("adam: param %d is %dx%d, grad is %dx%d", i, pr, pc, gr, gc)
		}
		a.m = append(a.m, zerosLike(p))
		a.v = append(a.v, zerosLike(p))
	}
	return a, nil
}

// Steps is the number of updates applied so far.
func (a *Adam) Steps() int { return a.t }

// Step applies one update at learning rate lr and returns the clip scale used.
func (a *Adam) Step(lr float64) float64 {
	scale := utils.ClipGrads(a.GradClip, a.grads...)
	a.t++
	for i, p := range a.params {
		AdamUpdateInPlace(p, a.grads[i], a.m[i], a.v[i], a.t, lr, a.Beta1, a.Beta2, a.Eps, a.WeightDecay)
	}
	return scale
}

func zerosLike(a *mat.Dense) *mat.Dense {
	r, c := a.Dims()
	return mat.NewDense(r, c, nil)
}
