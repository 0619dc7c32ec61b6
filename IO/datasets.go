package IO

import (
	"github.com/pkg/errors"

	"github.com/manningwu07/NMT/data"
)

// Subsets in the order LoadDatasets returns them by default.
var Subsets = []string{"train", "dev", "test"}

// LoadDatasets pairs {subset}.{src}.vec with {subset}.{tgt}.vec line by line.
// With flip, source and target swap after loading.
func LoadDatasets(dir string, subsets []string, src, tgt string, flip bool) ([]data.Dataset, error) {
	out := make([]data.Dataset, 0, len(subsets))
	for _, subset := range subsets {
		srcSeqs, err := ReadVectorized(CorpusPath(dir, subset, src, VecExt))
		if err != nil {
			return nil, err
		}
		tgtSeqs, err := ReadVectorized(CorpusPath(dir, subset, tgt, VecExt))
		if err != nil {
			return nil, err
		}
		if len(srcSeqs) != len(tgtSeqs) {
			return nil, errors.Errorf("subset %q: %d %s lines but %d %s lines", subset, len(srcSeqs), src, len(tgtSeqs), tgt)
		}
		if flip {
			srcSeqs, tgtSeqs = tgtSeqs, srcSeqs
		}
		ds := make(data.Dataset, len(srcSeqs))
		for i := range srcSeqs {
			ds[i] = data.PairSample{Source: srcSeqs[i], Target: tgtSeqs[i]}
		}
		out = append(out, ds)
	}
	return out, nil
}
