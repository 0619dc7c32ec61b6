package collective

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
)

// runRanks joins every rank and runs body concurrently, returning per-rank errors.
func runRanks(t *testing.T, l *Local, body func(g Group) error) []error {
	t.Helper()
	errs := make([]error, l.size)
	var wg sync.WaitGroup
	for rank := 0; rank < l.size; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			g, err := l.Join(context.Background(), rank)
			if err != nil {
				errs[rank] = err
				return
			}
			errs[rank] = body(g)
		}(rank)
	}
	wg.Wait()
	return errs
}

func TestAllReduceSums(t *testing.T) {
	l, err := NewLocal(4)
	if err != nil {
		t.Fatal(err)
	}
	results := make([][]float64, 4)
	errs := runRanks(t, l, func(g Group) error {
		buf := []float64{float64(g.Rank()), 1}
		if err := g.AllReduce(context.Background(), buf); err != nil {
			return err
		}
		results[g.Rank()] = buf
		if err := g.Barrier(context.Background()); err != nil {
			return err
		}
		return g.Leave(context.Background())
	})
	for rank, err := range errs {
		if err != nil {
			t.Fatalf("rank %d: %v", rank, err)
		}
	}
	for rank, buf := range results {
		if buf[0] != 0+1+2+3 || buf[1] != 4 {
			t.Fatalf("rank %d got %v", rank, buf)
		}
	}
	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("hub did not stop after every rank left")
	}
}

func TestMismatchFailsEveryRank(t *testing.T) {
	l, _ := NewLocal(2)
	errs := runRanks(t, l, func(g Group) error {
		if g.Rank() == 0 {
			return g.Barrier(context.Background())
		}
		return g.AllReduce(context.Background(), []float64{1})
	})
	for rank, err := range errs {
		if !errors.Is(err, ErrMismatch) {
			t.Fatalf("rank %d: expected ErrMismatch, got %v", rank, err)
		}
	}
}

func TestLengthMismatch(t *testing.T) {
	l, _ := NewLocal(2)
	errs := runRanks(t, l, func(g Group) error {
		return g.AllReduce(context.Background(), make([]float64, 1+g.Rank()))
	})
	for rank, err := range errs {
		if !errors.Is(err, ErrMismatch) {
			t.Fatalf("rank %d: expected ErrMismatch, got %v", rank, err)
		}
	}
}

func TestCallsAfterLeave(t *testing.T) {
	l, _ := NewLocal(1)
	g, err := l.Join(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if g.WorldSize() != 1 {
		t.Fatalf("world size %d", g.WorldSize())
	}
	if err := g.Leave(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := g.Barrier(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestCancelUnblocksWaitingRank(t *testing.T) {
	l, _ := NewLocal(2)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	// rank 1 never joins, so rank 0 waits until the context ends
	_, err := l.Join(ctx, 0)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestJoinRejectsBadRank(t *testing.T) {
	l, _ := NewLocal(2)
	if _, err := l.Join(context.Background(), 2); err == nil {
		t.Fatal("rank 2 of 2 must be rejected")
	}
	if _, err := NewLocal(0); err == nil {
		t.Fatal("empty group must be rejected")
	}
}
