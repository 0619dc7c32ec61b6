package trainer

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/manningwu07/NMT/collective"
	"github.com/manningwu07/NMT/data"
	"github.com/manningwu07/NMT/params"
)

var ErrVocabMismatch = errors.New("token ids do not fit vocab_size")

// Spawn runs cfg.WorldSize workers in one process and waits for all of them.
// The first failing rank cancels the others' collective calls. Datasets with
// ids outside the vocabulary are rejected before any rank starts.
func Spawn(ctx context.Context, cfg params.TrainingConfig, train, dev data.Dataset, out io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := checkVocab(cfg.VocabSize, "train", train); err != nil {
		return err
	}
	if err := checkVocab(cfg.VocabSize, "dev", dev); err != nil {
		return err
	}
	hub, err := collective.NewLocal(cfg.WorldSize)
	if err != nil {
		return err
	}
	out = &lockedWriter{w: out}

	g, ctx := errgroup.WithContext(ctx)
	for rank := 0; rank < cfg.WorldSize; rank++ {
		g.Go(func() error {
			w, err := NewWorker(ctx, cfg, rank, hub, train, dev, out)
			if err != nil {
				return errors.Wrapf(err, "rank %d", rank)
			}
			return errors.Wrapf(w.Run(ctx), "rank %d", rank)
		})
	}
	return g.Wait()
}

// checkVocab fails when a dataset holds an id the model has no row for.
func checkVocab(vocabSize int, name string, ds data.Dataset) error {
	lo, hi, ok := ds.IDRange()
	if ok && (lo < 0 || hi >= vocabSize) {
		return errors.Wrapf(ErrVocabMismatch, "%s set holds ids in [%d, %d], vocab_size is %d", name, lo, hi, vocabSize)
	}
	return nil
}

// lockedWriter serializes progress lines from concurrent ranks.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
