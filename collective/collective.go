// Package collective provides the rendezvous operations workers use to
// coordinate: join, all-reduce, barrier and leave. Every call blocks until
// all ranks of the group have issued the matching call.
package collective

import (
	"context"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

var (
	ErrClosed   = errors.New("collective group closed")
	ErrMismatch = errors.New("collective call mismatch")
)

// Group is one rank's handle on a joined group.
type Group interface {
	Rank() int
	WorldSize() int
	// AllReduce sums buf element-wise across ranks; every rank gets the sum in buf.
	AllReduce(ctx context.Context, buf []float64) error
	Barrier(ctx context.Context) error
	// Leave is the last collective call; the group is unusable afterwards.
	Leave(ctx context.Context) error
}

type op int

const (
	opJoin op = iota
	opAllReduce
	opBarrier
	opLeave
)

func (o op) String() string {
	switch o {
	case opJoin:
		return "join"
	case opAllReduce:
		return "all_reduce"
	case opBarrier:
		return "barrier"
	case opLeave:
		return "leave"
	}
	return "unknown"
}

type request struct {
	op    op
	rank  int
	buf   []float64
	reply chan result
}

type result struct {
	buf []float64
	err error
}

// Local is a group whose ranks run in one process. A hub goroutine collects
// one request per rank, then answers all of them.
type Local struct {
	size     int
	requests chan request
	done     chan struct{}
}

// NewLocal starts the hub for worldSize ranks.
func NewLocal(worldSize int) (*Local, error) {
	if worldSize <= 0 {
		return nil, errors.Errorf("world size must be positive, got %d", worldSize)
	}
	l := &Local{
		size:     worldSize,
		requests: make(chan request),
		done:     make(chan struct{}),
	}
	go l.serve()
	return l, nil
}

// Join blocks until every rank has joined.
func (l *Local) Join(ctx context.Context, rank int) (Group, error) {
	if rank < 0 || rank >= l.size {
		return nil, errors.Errorf("rank %d outside [0, %d)", rank, l.size)
	}
	m := &member{hub: l, rank: rank}
	if _, err := m.call(ctx, opJoin, nil); err != nil {
		return nil, err
	}
	return m, nil
}

// Done is closed once every rank has left.
func (l *Local) Done() <-chan struct{} { return l.done }

func (l *Local) serve() {
	pending := make([]request, 0, l.size)
	for req := range l.requests {
		pending = append(pending, req)
		if len(pending) < l.size {
			continue
		}
		leaving := l.answer(pending)
		pending = make([]request, 0, l.size)
		if leaving {
			close(l.done)
			return
		}
	}
}

// answer completes one round and reports whether it was a successful leave.
func (l *Local) answer(round []request) bool {
	err := l.check(round)
	var sum []float64
	if err == nil && round[0].op == opAllReduce {
		sum = make([]float64, len(round[0].buf))
		for _, req := range round {
			floats.Add(sum, req.buf)
		}
	}
	for _, req := range round {
		res := result{err: err}
		if sum != nil {
			res.buf = append([]float64(nil), sum...)
		}
		req.reply <- res
	}
	return err == nil && round[0].op == opLeave
}

func (l *Local) check(round []request) error {
	seen := make([]bool, l.size)
	first := round[0]
	for _, req := range round {
		if seen[req.rank] {
			return errors.Wrapf(ErrMismatch, "rank %d called twice in one %s round", req.rank, req.op)
		}
		seen[req.rank] = true
		if req.op != first.op {
			return errors.Wrapf(ErrMismatch, "rank %d called %s while rank %d called %s", req.rank, req.op, first.rank, first.op)
		}
		if len(req.buf) != len(first.buf) {
			return errors.Wrapf(ErrMismatch, "rank %d reduces %d values, rank %d reduces %d", req.rank, len(req.buf), first.rank, len(first.buf))
		}
	}
	return nil
}

type member struct {
	hub  *Local
	rank int
	left bool
}

func (m *member) Rank() int      { return m.rank }
func (m *member) WorldSize() int { return m.hub.size }

func (m *member) AllReduce(ctx context.Context, buf []float64) error {
	out, err := m.call(ctx, opAllReduce, buf)
	if err != nil {
		return err
	}
	copy(buf, out)
	return nil
}

func (m *member) Barrier(ctx context.Context) error {
	_, err := m.call(ctx, opBarrier, nil)
	return err
}

func (m *member) Leave(ctx context.Context) error {
	if _, err := m.call(ctx, opLeave, nil); err != nil {
		return err
	}
	m.left = true
	return nil
}

// call hands a request to the hub and waits for the round to complete.
// The caller's buffer is not touched by the hub.
func (m *member) call(ctx context.Context, o op, buf []float64) ([]float64, error) {
	if m.left {
		return nil, ErrClosed
	}
	req := request{op: o, rank: m.rank, buf: append([]float64(nil), buf...), reply: make(chan result, 1)}
	select {
	case m.hub.requests <- req:
	case <-m.hub.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "rank %d waiting to %s", m.rank, o)
	}
	select {
	case res := <-req.reply:
		return res.buf, res.err
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "rank %d inside %s", m.rank, o)
	}
}
