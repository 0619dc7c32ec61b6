// Package model holds the trainable sequence-to-sequence models and the
// gradient-synchronized wrapper the workers train through.
package model

import (
	"math/rand/v2"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/NMT/data"
	"github.com/manningwu07/NMT/params"
	"github.com/manningwu07/NMT/utils"
)

// Reduction selects how per-token losses are combined.
type Reduction int

const (
	Mean Reduction = iota // training
	Sum                   // evaluation
)

func (r Reduction) String() string {
	if r == Sum {
		return "sum"
	}
	return "mean"
}

var (
	ErrTokenRange = errors.New("token id outside vocabulary")
	ErrNoForward  = errors.New("backward without a training forward")
)

// Named is one parameter tensor as it appears in a checkpoint.
type Named struct {
	Name   string
	Tensor *mat.Dense
}

// Model is what a worker drives. Backward writes the gradient of the last
// training-mode Forward into Gradients(), replacing what was there.
type Model interface {
	Forward(t *data.Tensors, r Reduction) (float64, error)
	Backward() error
	Parameters() []*mat.Dense
	Gradients() []*mat.Dense
	SetTraining(on bool)
	StateDict() []Named
}

// New builds the configured variant with parameters drawn from cfg.Seed.
func New(cfg params.TrainingConfig) (Model, error) {
	switch cfg.Model {
	case params.Bigram, params.Conditional:
	default:
		return nil, errors.Wrapf(params.ErrUnknownModel, "%q", cfg.Model)
	}
	if cfg.VocabSize <= 0 || cfg.DModel <= 0 {
		return nil, errors.Errorf("model needs positive vocab and dim, got %d and %d", cfg.VocabSize, cfg.DModel)
	}
	rng := rand.New(rand.NewPCG(uint64(cfg.Seed), 0))
	dense := func() *mat.Dense {
		return mat.NewDense(cfg.VocabSize, cfg.DModel, utils.RandomArray(rng, cfg.VocabSize*cfg.DModel, float64(cfg.DModel)))
	}
	m := &LogLinear{
		variant: cfg.Model,
		vocab:   cfg.VocabSize,
		dim:     cfg.DModel,
		tgtEmb:  dense(),
		out:     dense(),
	}
	if cfg.Model == params.Conditional {
		m.srcEmb = dense()
	}
	for _, p := range m.Parameters() {
		r, c := p.Dims()
		m.grads = append(m.grads, mat.NewDense(r, c, nil))
	}
	return m, nil
}
