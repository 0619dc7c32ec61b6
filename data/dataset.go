// Package data holds paired sequence datasets and turns them into padded
// batches: rank sharding, token-budgeted bucketing and collation.
package data

// PairSample is one source/target pair, identified only by its position.
type PairSample struct {
	Source []int
	Target []int
}

// Tokens is the pair's combined length, the unit of the batch budget.
func (p PairSample) Tokens() int { return len(p.Source) + len(p.Target) }

type Dataset []PairSample

// IDRange returns the smallest and largest token id in ds; ok is false when
// ds holds no ids at all.
func (ds Dataset) IDRange() (lo, hi int, ok bool) {
	for _, p := range ds {
		for _, seq := range [][]int{p.Source, p.Target} {
			for _, id := range seq {
				if !ok {
					lo, hi, ok = id, id, true
					continue
				}
				lo, hi = min(lo, id), max(hi, id)
			}
		}
	}
	return lo, hi, ok
}

// Batch is a group of pairs processed by one forward pass.
type Batch []PairSample

func (b Batch) Tokens() int {
	n := 0
	for _, p := range b {
		n += p.Tokens()
	}
	return n
}
