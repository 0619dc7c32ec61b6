// Package trainer runs the data-parallel training loop, one Worker per rank.
package trainer

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/manningwu07/NMT/collective"
	"github.com/manningwu07/NMT/data"
	"github.com/manningwu07/NMT/device"
	"github.com/manningwu07/NMT/model"
	"github.com/manningwu07/NMT/optimizations"
	"github.com/manningwu07/NMT/params"
)

var ErrEmptyShard = errors.New("empty training shard")

// Worker owns one rank's shard, batcher, model replica and optimizer.
type Worker struct {
	Rank  int
	State State

	cfg    params.TrainingConfig
	out    io.Writer
	group  collective.Group
	device device.Device

	train    *data.Dataloader
	dev      data.Dataset
	collator *data.Collator
	model    *model.Replicated
	optim    *optimizations.Adam
	sched    *optimizations.Schedule
	log      *MetricsLog // rank 0 with a store path only

	steps, updates, evals int
	smoothed              float64
	lastLR                float64
}

// NewWorker joins the group as rank and prepares everything the loop needs.
// train and dev are the full datasets; the worker keeps its own shards.
func NewWorker(ctx context.Context, cfg params.TrainingConfig, rank int, hub *collective.Local, train, dev data.Dataset, out io.Writer) (*Worker, error) {
	start := time.Now()
	w := &Worker{Rank: rank, State: Initializing, cfg: cfg, out: out}

	group, err := hub.Join(ctx, rank)
	if err != nil {
		return nil, errors.Wrap(err, "joining group")
	}
	w.group = group
	w.device = device.Bind(rank)

	shard, err := data.SplitDataset(train, cfg.WorldSize, rank)
	if err != nil {
		return nil, err
	}
	if len(shard) == 0 {
		return nil, errors.Wrapf(ErrEmptyShard, "rank %d of %d, %d training pairs", rank, cfg.WorldSize, len(train))
	}
	if w.dev, err = data.SplitDataset(dev, cfg.WorldSize, rank); err != nil {
		return nil, err
	}
	w.train = data.NewDataloader(shard, uint64(cfg.Seed)+uint64(rank))
	fmt.Fprintf(out, "%d:%d:%d\n", start.Unix(), rank, w.train.Len())
	w.collator = data.NewCollator(w.device)

	net, err := model.New(cfg)
	if err != nil {
		return nil, err
	}
	if w.model, err = model.Replicate(ctx, net, group); err != nil {
		return nil, err
	}
	if w.optim, err = optimizations.NewAdam(cfg, w.model.Parameters(), w.model.Gradients()); err != nil {
		return nil, err
	}
	w.sched, err = optimizations.NewSchedule(cfg.WarmupSteps, cfg.NumUpdates, cfg.InitLR, cfg.MaxLR, cfg.MinLR)
	if err != nil {
		return nil, err
	}

	if rank == 0 && cfg.StorePath != "" {
		if err := os.MkdirAll(cfg.StorePath, 0o755); err != nil {
			return nil, errors.Wrap(err, "creating store")
		}
		if w.log, err = OpenMetricsLog(filepath.Join(cfg.StorePath, LogName)); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func (w *Worker) Updates() int { return w.updates }
func (w *Worker) Steps() int { return w.steps }
func (w *Worker) Evaluations() int { return w.evals }
func (w *Worker) SmoothedLoss() float64 { return w.smoothed }
func (w *Worker) Device() device.Device { return w.device }

// Run trains until the update budget is spent, then leaves the group.
// Every rank takes the same number of micro-batches, so the collective
// calls inside line up.
func (w *Worker) Run(ctx context.Context) error {
	w.State = Training
	w.model.SetTraining(true)
	for w.updates < w.cfg.NumUpdates {
		for batch := range w.train.GetBatches(w.cfg.BatchSize) {
			if err := w.step(ctx, batch); err != nil {
				return w.abort(err)
			}
			if w.updates >= w.cfg.NumUpdates {
				break
			}
		}
	}
	return w.terminate(ctx)
}

func (w *Worker) step(ctx context.Context, batch data.Batch) error {
	t, err := w.collator.Collate(batch)
	if err != nil {
		return err
	}
	loss, err := w.model.Forward(t, model.Mean)
	if err != nil {
		return errors.Wrapf(err, "step %d", w.steps+1)
	}
	if err := w.model.Backward(ctx); err != nil {
		return errors.Wrapf(err, "step %d", w.steps+1)
	}
	w.steps++
	if w.steps == 1 {
		w.smoothed = loss
	} else {
		w.smoothed = 0.98*w.smoothed + 0.02*loss
	}

	if w.steps%w.cfg.UpdateEvery != 0 {
		return nil
	}
	w.lastLR = w.sched.LR()
	w.optim.Step(w.lastLR)
	w.sched.Step()
	w.model.ZeroGrad()
	w.updates++
	if w.updates%w.cfg.EvalEvery == 0 {
		return w.evaluate(ctx)
	}
	return nil
}

// evaluate averages the smoothed loss over ranks, scores the dev shards and,
// on rank 0, reports and checkpoints. Every rank waits for rank 0 to finish.
func (w *Worker) evaluate(ctx context.Context) error {
	w.State = Evaluating
	defer func() { w.State = Training }()

	buf := []float64{w.smoothed}
	if err := w.group.AllReduce(ctx, buf); err != nil {
		return errors.Wrap(err, "reducing train loss")
	}
	w.smoothed = buf[0] / float64(w.group.WorldSize())

	w.model.SetTraining(false)
	devLoss, numels := 0.0, 0
	for batch := range data.NewDataloader(w.dev, uint64(w.cfg.Seed)).GetBatches(w.cfg.BatchSize) {
		t, err := w.collator.Collate(batch)
		if err != nil {
			return err
		}
		loss, err := w.model.Forward(t, model.Sum)
		if err != nil {
			return errors.Wrap(err, "evaluating")
		}
		devLoss += loss
		numels += t.NonPadTargets()
	}
	w.model.SetTraining(true)

	sums := []float64{devLoss, float64(numels)}
	if err := w.group.AllReduce(ctx, sums); err != nil {
		return errors.Wrap(err, "reducing dev loss")
	}
	w.evals++
	if w.Rank == 0 {
		if err := w.report(sums[0], sums[1]); err != nil {
			return err
		}
	}
	// nobody resumes before rank 0's checkpoint is on disk
	return errors.Wrap(w.group.Barrier(ctx), "waiting for checkpoint")
}

// report prints and logs one evaluation and writes the checkpoint when due.
func (w *Worker) report(devLoss, numels float64) error {
	perToken := math.NaN()
	if numels > 0 {
		perToken = devLoss / numels
	}
	fmt.Fprintf(w.out, "%d:%v:%v\n", w.updates, w.smoothed, perToken)
	if w.cfg.StorePath == "" {
		return nil
	}
	if err := w.log.Record(w.updates, w.smoothed, perToken, w.lastLR); err != nil {
		return err
	}
	if w.updates%w.cfg.SaveEvery == 0 {
		path := filepath.Join(w.cfg.StorePath, fmt.Sprintf("%d.chk", w.updates/w.cfg.SaveEvery))
		if err := model.SaveCheckpoint(path, w.model.Module()); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) terminate(ctx context.Context) error {
	w.State = Terminating
	if err := w.group.Leave(ctx); err != nil {
		return w.abort(errors.Wrap(err, "leaving group"))
	}
	return w.closeLog()
}

// abort releases the worker's files and returns err unchanged.
func (w *Worker) abort(err error) error {
	w.closeLog()
	return err
}

func (w *Worker) closeLog() error {
	if w.log == nil {
		return nil
	}
	l := w.log
	w.log = nil
	return l.Close()
}
