package model

import (
	"context"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/NMT/collective"
	"github.com/manningwu07/NMT/utils"
)

// Replicated keeps one rank's copy of a model in step with the other ranks.
// Gradients() returns the accumulation buffers the optimizer consumes:
// each Backward adds the rank-averaged micro-batch gradient into them.
type Replicated struct {
	Model
	group collective.Group
	accum []*mat.Dense
	flat  []float64
}

// Replicate broadcasts rank 0's parameters to every rank.
func Replicate(ctx context.Context, m Model, g collective.Group) (*Replicated, error) {
	r := &Replicated{Model: m, group: g}
	r.flat = utils.Flatten(r.flat, m.Parameters()...)
	if g.Rank() != 0 {
		clear(r.flat)
	}
	if err := g.AllReduce(ctx, r.flat); err != nil {
		return nil, errors.Wrap(err, "broadcasting parameters")
	}
	utils.Unflatten(r.flat, m.Parameters()...)
	for _, p := range m.Gradients() {
		rows, cols := p.Dims()
		r.accum = append(r.accum, mat.NewDense(rows, cols, nil))
	}
	return r, nil
}

// Module is the wrapped model, the one that gets checkpointed.
func (r *Replicated) Module() Model { return r.Model }

func (r *Replicated) Gradients() []*mat.Dense { return r.accum }

// Backward computes this rank's gradient, averages it over ranks and adds it
// to the accumulation buffers.
func (r *Replicated) Backward(ctx context.Context) error {
	if err := r.Model.Backward(); err != nil {
		return err
	}
	r.flat = utils.Flatten(r.flat, r.Model.Gradients()...)
	if err := r.group.AllReduce(ctx, r.flat); err != nil {
		return errors.Wrap(err, "averaging gradients")
	}
	utils.AddFlat(r.accum, 1/float64(r.group.WorldSize()), r.flat)
	return nil
}

func (r *Replicated) ZeroGrad() {
	for _, g := range r.accum {
		g.Zero()
	}
}
