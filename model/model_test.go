package model

import (
	"context"
	"math"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/NMT/collective"
	"github.com/manningwu07/NMT/data"
	"github.com/manningwu07/NMT/device"
	"github.com/manningwu07/NMT/params"
)

func tinyConfig(v params.ModelVariant) params.TrainingConfig {
	cfg := params.Config
	cfg.Model = v
	cfg.VocabSize = 7
	cfg.DModel = 4
	cfg.NumHeads = 1
	return cfg
}

func tinyBatch(t *testing.T) *data.Tensors {
	t.Helper()
	b := data.Batch{
		{Source: []int{0, 3, 4, 1}, Target: []int{0, 5, 6, 1}},
		{Source: []int{0, 2, 1}, Target: []int{0, 3, 1}},
	}
	tensors, err := data.NewCollator(device.Bind(0)).Collate(b)
	if err != nil {
		t.Fatal(err)
	}
	return tensors
}

func TestGradientsMatchFiniteDifferences(t *testing.T) {
	for _, v := range params.Variants() {
		t.Run(string(v), func(t *testing.T) {
			m, err := New(tinyConfig(v))
			if err != nil {
				t.Fatal(err)
			}
			batch := tinyBatch(t)
			m.SetTraining(true)
			if _, err := m.Forward(batch, Mean); err != nil {
				t.Fatal(err)
			}
			if err := m.Backward(); err != nil {
				t.Fatal(err)
			}
			m.SetTraining(false)

			const eps = 1e-6
			for k, p := range m.Parameters() {
				g := m.Gradients()[k]
				rows, cols := p.Dims()
				for i := 0; i < rows; i++ {
					for j := 0; j < cols; j++ {
						orig := p.At(i, j)
						p.Set(i, j, orig+eps)
						up, _ := m.Forward(batch, Mean)
						p.Set(i, j, orig-eps)
						down, _ := m.Forward(batch, Mean)
						p.Set(i, j, orig)
						want := (up - down) / (2 * eps)
						if math.Abs(want-g.At(i, j)) > 1e-5 {
							t.Fatalf("param %d [%d,%d]: analytic %g, numeric %g", k, i, j, g.At(i, j), want)
						}
					}
				}
			}
		})
	}
}

func TestSumIsMeanTimesCount(t *testing.T) {
	m, _ := New(tinyConfig(params.Conditional))
	batch := tinyBatch(t)
	mean, _ := m.Forward(batch, Mean)
	sum, _ := m.Forward(batch, Sum)
	// 3 predictions in the first row, 2 in the second
	if math.Abs(sum-5*mean) > 1e-9 {
		t.Fatalf("sum %g, mean %g", sum, mean)
	}
}

func TestForwardRejectsOutOfRangeIDs(t *testing.T) {
	cfg := tinyConfig(params.Bigram)
	cfg.VocabSize = 4
	m, _ := New(cfg)
	if _, err := m.Forward(tinyBatch(t), Mean); !errors.Is(err, ErrTokenRange) {
		t.Fatalf("expected ErrTokenRange, got %v", err)
	}
}

func TestBackwardNeedsTrainingForward(t *testing.T) {
	m, _ := New(tinyConfig(params.Bigram))
	if _, err := m.Forward(tinyBatch(t), Sum); err != nil {
		t.Fatal(err)
	}
	if err := m.Backward(); !errors.Is(err, ErrNoForward) {
		t.Fatalf("expected ErrNoForward, got %v", err)
	}
}

func TestNewRejectsUnknownVariant(t *testing.T) {
	if _, err := New(tinyConfig("Unitary")); !errors.Is(err, params.ErrUnknownModel) {
		t.Fatalf("expected ErrUnknownModel, got %v", err)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "1.chk")
	a, _ := New(tinyConfig(params.Conditional))
	if err := SaveCheckpoint(path, a); err != nil {
		t.Fatal(err)
	}
	cfg := tinyConfig(params.Conditional)
	cfg.Seed = 7
	b, _ := New(cfg)
	if err := LoadCheckpoint(path, b); err != nil {
		t.Fatal(err)
	}
	for i, p := range a.Parameters() {
		if !mat.Equal(p, b.Parameters()[i]) {
			t.Fatalf("tensor %d differs after load", i)
		}
	}

	bigram, _ := New(tinyConfig(params.Bigram))
	if err := LoadCheckpoint(path, bigram); err == nil {
		t.Fatal("loading into a different architecture must fail")
	}
}

func TestSaveCheckpointMissingDir(t *testing.T) {
	m, _ := New(tinyConfig(params.Bigram))
	if err := SaveCheckpoint(filepath.Join(t.TempDir(), "nope", "1.chk"), m); err == nil {
		t.Fatal("expected an error for a missing directory")
	}
}

func TestReplicatedBroadcastsAndAverages(t *testing.T) {
	const world = 2
	hub, _ := collective.NewLocal(world)
	replicas := make([]*Replicated, world)
	locals := make([][]*mat.Dense, world)
	errs := make([]error, world)
	batch := tinyBatch(t)

	var wg sync.WaitGroup
	for rank := 0; rank < world; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			ctx := context.Background()
			g, err := hub.Join(ctx, rank)
			if err != nil {
				errs[rank] = err
				return
			}
			cfg := tinyConfig(params.Conditional)
			cfg.Seed = int64(rank)
			m, _ := New(cfg)
			r, err := Replicate(ctx, m, g)
			if err != nil {
				errs[rank] = err
				return
			}
			r.SetTraining(true)
			if _, err := r.Forward(batch, Mean); err != nil {
				errs[rank] = err
				return
			}
			errs[rank] = r.Backward(ctx)
			replicas[rank] = r
			locals[rank] = m.Gradients()
		}(rank)
	}
	wg.Wait()
	for rank, err := range errs {
		if err != nil {
			t.Fatalf("rank %d: %v", rank, err)
		}
	}

	for i := range replicas[0].Parameters() {
		if !mat.Equal(replicas[0].Parameters()[i], replicas[1].Parameters()[i]) {
			t.Fatalf("parameter %d differs across ranks after broadcast", i)
		}
		// same params, same batch: the averaged gradient equals each local one
		if !mat.EqualApprox(replicas[0].Gradients()[i], locals[0][i], 1e-12) {
			t.Fatalf("gradient %d is not the rank average", i)
		}
	}

	replicas[0].ZeroGrad()
	for _, g := range replicas[0].Gradients() {
		if mat.Norm(g, 2) != 0 {
			t.Fatal("ZeroGrad left a non-zero gradient")
		}
	}
}
