package data

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/NMT/device"
	"github.com/manningwu07/NMT/params"
	"github.com/manningwu07/NMT/utils"
)

// Tensors is a collated batch. Ids are stored as float64 so the model can
// consume them with gonum directly; padding is params.PadID.
type Tensors struct {
	SourceIDs  *mat.Dense // N x S
	TargetIDs  *mat.Dense // N x T
	SourceMask *mat.Dense // N x S, 1 where SourceIDs is not padding
	CausalMask *mat.Dense // T x T, 1 where j <= i; shared by every row
	Device     device.Device
}

func (t *Tensors) Rows() int {
	r, _ := t.TargetIDs.Dims()
	return r
}

// SourceVisible reports source_mask[i][j].
func (t *Tensors) SourceVisible(i, j int) bool { return t.SourceMask.At(i, j) != 0 }

// CausalVisible reports causal_mask[i][j].
func (t *Tensors) CausalVisible(i, j int) bool { return t.CausalMask.At(i, j) != 0 }

// NonPadTargets counts target ids that are not padding.
func (t *Tensors) NonPadTargets() int {
	r, c := t.TargetIDs.Dims()
	n := 0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if int(t.TargetIDs.At(i, j)) != params.PadID {
				n++
			}
		}
	}
	return n
}

// Collator pads batches and places them on its device.
type Collator struct {
	Device device.Device

	// causal masks are read-only once built, so one per length is shared
	maskCache map[int]*mat.Dense
}

func NewCollator(d device.Device) *Collator {
	return &Collator{Device: d, maskCache: make(map[int]*mat.Dense)}
}

// Collate right-pads sources and targets to the batch maxima and derives
// the source validity mask and the causal mask.
func (c *Collator) Collate(b Batch) (*Tensors, error) {
	if len(b) == 0 {
		return nil, errors.New("collate: empty batch")
	}
	srcLen, tgtLen := 1, 1 // gonum has no zero-width matrices
	for _, p := range b {
		srcLen = max(srcLen, len(p.Source))
		tgtLen = max(tgtLen, len(p.Target))
	}
	t := &Tensors{
		SourceIDs:  padded(b, srcLen, func(p PairSample) []int { return p.Source }),
		TargetIDs:  padded(b, tgtLen, func(p PairSample) []int { return p.Target }),
		SourceMask: mat.NewDense(len(b), srcLen, nil),
	}
	for i := 0; i < len(b); i++ {
		for j := 0; j < srcLen; j++ {
			if int(t.SourceIDs.At(i, j)) != params.PadID {
				t.SourceMask.Set(i, j, 1)
			}
		}
	}
	if c.maskCache == nil {
		c.maskCache = make(map[int]*mat.Dense)
	}
	mask, ok := c.maskCache[tgtLen]
	if !ok {
		mask = utils.CausalMask(tgtLen)
		c.maskCache[tgtLen] = mask
	}
	t.CausalMask = mask
	return c.to(t), nil
}

// to is the single point where host data is handed to the rank's device.
func (c *Collator) to(t *Tensors) *Tensors {
	t.Device = c.Device
	return t
}

func padded(b Batch, width int, seq func(PairSample) []int) *mat.Dense {
	m := mat.NewDense(len(b), width, nil)
	for i, p := range b {
		ids := seq(p)
		for j := 0; j < width; j++ {
			v := params.PadID
			if j < len(ids) {
				v = ids[j]
			}
			m.Set(i, j, float64(v))
		}
	}
	return m
}
