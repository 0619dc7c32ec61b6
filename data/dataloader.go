package data

import (
	"iter"
	"math/rand/v2"
	"slices"
)

// Dataloader draws token-budgeted batches from one shard.
type Dataloader struct {
	dataset     Dataset
	tokenCounts []int
	seed        uint64
	passes      uint64
}

// NewDataloader precomputes per-entry token counts. seed fixes the sequence
// of shuffles drawn by successive GetBatches calls.
func NewDataloader(ds Dataset, seed uint64) *Dataloader {
	counts := make([]int, len(ds))
	for i, p := range ds {
		counts[i] = p.Tokens()
	}
	return &Dataloader{dataset: ds, tokenCounts: counts, seed: seed}
}

func (d *Dataloader) Len() int { return len(d.dataset) }

// GetBatches starts a new pass. Entries of equal length are shuffled among
// themselves, packed greedily in ascending length under batchSize tokens, and
// the finished batches are yielded in random order. An entry longer than
// batchSize gets a batch of its own. Every call draws a fresh grouping;
// ranging over the same returned sequence twice replays it.
func (d *Dataloader) GetBatches(batchSize int) iter.Seq[Batch] {
	d.passes++
	pass := d.passes
	return func(yield func(Batch) bool) {
		rng := rand.New(rand.NewPCG(d.seed, pass))
		for _, idx := range d.plan(batchSize, rng) {
			b := make(Batch, len(idx))
			for i, j := range idx {
				b[i] = d.dataset[j]
			}
			if !yield(b) {
				return
			}
		}
	}
}

// plan groups entry indices into batches.
func (d *Dataloader) plan(batchSize int, rng *rand.Rand) [][]int {
	order := make([]int, len(d.tokenCounts))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return d.tokenCounts[a] - d.tokenCounts[b]
	})

	// shuffle within each bucket of identical token count
	for lo := 0; lo < len(order); {
		hi := lo + 1
		for hi < len(order) && d.tokenCounts[order[hi]] == d.tokenCounts[order[lo]] {
			hi++
		}
		bucket := order[lo:hi]
		rng.Shuffle(len(bucket), func(i, j int) { bucket[i], bucket[j] = bucket[j], bucket[i] })
		lo = hi
	}

	var (
		batches   [][]int
		batch     []int
		numTokens int
	)
	for _, idx := range order {
		size := d.tokenCounts[idx]
		if len(batch) > 0 && numTokens+size > batchSize {
			batches = append(batches, batch)
			batch, numTokens = nil, 0
		}
		batch = append(batch, idx)
		numTokens += size
	}
	if len(batch) > 0 {
		batches = append(batches, batch)
	}

	rng.Shuffle(len(batches), func(i, j int) { batches[i], batches[j] = batches[j], batches[i] })
	return batches
}
