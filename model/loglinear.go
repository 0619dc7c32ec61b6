package model

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/NMT/data"
	"github.com/manningwu07/NMT/params"
	"github.com/manningwu07/NMT/utils"
)

// LogLinear predicts target token t+1 from a context vector h:
// p = softmax(out * h). For Bigram h is the embedding of target token t;
// for Conditional h is the mean embedding of the causally visible target
// prefix plus the mean embedding of the unmasked source tokens.
type LogLinear struct {
	variant    params.ModelVariant
	vocab, dim int

	tgtEmb *mat.Dense // V x D
	srcEmb *mat.Dense // V x D, Conditional only
	out    *mat.Dense // V x D
	grads  []*mat.Dense

	training bool
	tape     []prediction
	scale    float64 // d loss / d per-token loss of the last forward
	recorded bool
}

// prediction is what Backward needs to replay one predicted token.
type prediction struct {
	h    []float64
	gold int
	tgt  []int // target ids averaged into h
	src  []int // source ids averaged into h
}

func (m *LogLinear) Parameters() []*mat.Dense {
	if m.srcEmb == nil {
		return []*mat.Dense{m.tgtEmb, m.out}
	}
	return []*mat.Dense{m.tgtEmb, m.srcEmb, m.out}
}

func (m *LogLinear) Gradients() []*mat.Dense { return m.grads }

func (m *LogLinear) SetTraining(on bool) {
	m.training = on
	if !on {
		m.tape, m.recorded = nil, false
	}
}

func (m *LogLinear) StateDict() []Named {
	names := []string{"tgt_emb", "out"}
	if m.srcEmb != nil {
		names = []string{"tgt_emb", "src_emb", "out"}
	}
	out := make([]Named, len(names))
	for i, p := range m.Parameters() {
		out[i] = Named{Name: names[i], Tensor: p}
	}
	return out
}

// Forward returns the loss over every non-padding target position that has
// a non-padding successor.
func (m *LogLinear) Forward(t *data.Tensors, r Reduction) (float64, error) {
	rows, width := t.TargetIDs.Dims()
	_, srcWidth := t.SourceIDs.Dims()
	logits := mat.NewVecDense(m.vocab, nil)
	probs := make([]float64, m.vocab)

	var tape []prediction
	loss, count := 0.0, 0
	for i := 0; i < rows; i++ {
		var src []int
		if m.variant == params.Conditional {
			for j := 0; j < srcWidth; j++ {
				if !t.SourceVisible(i, j) {
					continue
				}
				id, err := m.id(t.SourceIDs.At(i, j))
				if err != nil {
					return 0, err
				}
				src = append(src, id)
			}
		}
		for pos := 0; pos+1 < width; pos++ {
			cur, next := int(t.TargetIDs.At(i, pos)), int(t.TargetIDs.At(i, pos+1))
			if cur == params.PadID || next == params.PadID {
				continue
			}
			gold, err := m.id(float64(next))
			if err != nil {
				return 0, err
			}
			p := prediction{gold: gold, src: src}
			for j := 0; j < width; j++ {
				tok := int(t.TargetIDs.At(i, j))
				if !t.CausalVisible(pos, j) || tok == params.PadID {
					continue
				}
				if m.variant == params.Bigram && j != pos {
					continue
				}
				id, err := m.id(float64(tok))
				if err != nil {
					return 0, err
				}
				p.tgt = append(p.tgt, id)
			}
			p.h = m.context(p.tgt, p.src)
			logits.MulVec(m.out, mat.NewVecDense(m.dim, p.h))
			loss -= utils.Softmax(probs, logits.RawVector().Data, gold)
			count++
			if m.training {
				tape = append(tape, p)
			}
		}
	}

	scale := 1.0
	if r == Mean && count > 0 {
		scale = 1 / float64(count)
	}
	if m.training {
		m.tape, m.scale, m.recorded = tape, scale, true
	}
	return loss * scale, nil
}

// Backward replays the recorded predictions to form the gradients.
func (m *LogLinear) Backward() error {
	if !m.recorded {
		return ErrNoForward
	}
	for _, g := range m.grads {
		g.Zero()
	}
	gTgt, gOut := m.grads[0], m.grads[len(m.grads)-1]
	var gSrc *mat.Dense
	if m.srcEmb != nil {
		gSrc = m.grads[1]
	}

	logits := mat.NewVecDense(m.vocab, nil)
	probs := make([]float64, m.vocab)
	dh := mat.NewVecDense(m.dim, nil)
	for _, p := range m.tape {
		h := mat.NewVecDense(m.dim, p.h)
		logits.MulVec(m.out, h)
		utils.Softmax(probs, logits.RawVector().Data, p.gold)
		probs[p.gold] -= 1
		floats.Scale(m.scale, probs)
		dLogits := mat.NewVecDense(m.vocab, probs)

		gOut.RankOne(gOut, 1, dLogits, h)
		dh.MulVec(m.out.T(), dLogits)
		scatter(gTgt, p.tgt, dh.RawVector().Data)
		if gSrc != nil {
			scatter(gSrc, p.src, dh.RawVector().Data)
		}
	}
	m.tape, m.recorded = nil, false
	return nil
}

// context averages the target rows and, if any, adds the averaged source rows.
func (m *LogLinear) context(tgt, src []int) []float64 {
	h := make([]float64, m.dim)
	for _, id := range tgt {
		floats.AddScaled(h, 1/float64(len(tgt)), m.tgtEmb.RawRowView(id))
	}
	for _, id := range src {
		floats.AddScaled(h, 1/float64(len(src)), m.srcEmb.RawRowView(id))
	}
	return h
}

// scatter adds dh/len(ids) to each listed row of g.
func scatter(g *mat.Dense, ids []int, dh []float64) {
	for _, id := range ids {
		floats.AddScaled(g.RawRowView(id), 1/float64(len(ids)), dh)
	}
}

func (m *LogLinear) id(v float64) (int, error) {
	id := int(v)
	if id < 0 || id >= m.vocab {
		return 0, errors.Wrapf(ErrTokenRange, "id %d, vocab %d", id, m.vocab)
	}
	return id, nil
}
