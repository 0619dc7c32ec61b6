package data

import (
	"slices"

	"github.com/pkg/errors"
)

// SplitDataset sorts ds by pair length (stable) and gives rank every
// worldSize-th entry starting at position rank. Over all ranks the shards
// partition ds exactly; each rank still sees short through long pairs.
func SplitDataset(ds Dataset, worldSize, rank int) (Dataset, error) {
	if worldSize <= 0 {
		return nil, errors.Errorf("world size must be positive, got %d", worldSize)
	}
	if rank < 0 || rank >= worldSize {
		return nil, errors.Errorf("rank %d outside [0, %d)", rank, worldSize)
	}
	sorted := slices.Clone(ds)
	slices.SortStableFunc(sorted, func(a, b PairSample) int {
		return a.Tokens() - b.Tokens()
	})
	shard := make(Dataset, 0, (len(sorted)-rank+worldSize-1)/worldSize)
	for i := rank; i < len(sorted); i += worldSize {
		shard = append(shard, sorted[i])
	}
	return shard, nil
}
