package optimizations

import "github.com/pkg/errors"

// Schedule is a linear warmup from InitLR to MaxLR over Warmup updates,
// followed by a linear warmdown to MinLR at Total updates.
type Schedule struct {
	Warmup, Total       int
	InitLR, MaxLR, MinLR float64

	step int
}

func NewSchedule(warmup, total int, initLR, maxLR, minLR float64) (*Schedule, error) {
	if warmup < 0 || total <= 0 {
		return nil, errors.Errorf("schedule: warmup %d, total %d", warmup, total)
	}
	return &Schedule{Warmup: warmup, Total: total, InitLR: initLR, MaxLR: maxLR, MinLR: minLR}, nil
}

// At returns the learning rate after step updates.
func (s *Schedule) At(step int) float64 {
	switch {
	case step < s.Warmup:
		return s.InitLR + (s.MaxLR-s.InitLR)*float64(step)/float64(s.Warmup)
	case step >= s.Total:
		return s.MinLR
	}
	warmdown := s.Total - s.Warmup
	return s.MaxLR - (s.MaxLR-s.MinLR)*float64(step-s.Warmup)/float64(warmdown)
}

// LR is the rate for the next update.
func (s *Schedule) LR() float64 { return s.At(s.step) }

func (s *Schedule) Step() { s.step++ }
