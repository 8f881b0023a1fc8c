package command

import (
	"math/rand"
	"sync"
)

// Rand is the randomness source behind jitter, failure and destruction
// draws. Float64 returns a value in [0,1).
type Rand interface {
	Float64() float64
}

// NewRand returns a seeded source that is safe for concurrent use.
func NewRand(seed int64) Rand {
	return &lockedRand{r: rand.New(rand.NewSource(seed))}
}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

// FixedRand always returns the same draw. With a value of 0.5 every jitter
// lands mid-range and only probabilities above one half fire.
type FixedRand float64

func (f FixedRand) Float64() float64 { return float64(f) }

// SequenceRand replays draws in order and then repeats the last one. An
// empty sequence draws 0.5.
type SequenceRand struct {
	mu    sync.Mutex
	draws []float64
	next  int
}

// NewSequenceRand creates a SequenceRand over draws.
func NewSequenceRand(draws ...float64) *SequenceRand {
	return &SequenceRand{draws: draws}
}

func (s *SequenceRand) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.draws) == 0 {
		return 0.5
	}
	if s.next >= len(s.draws) {
		return s.draws[len(s.draws)-1]
	}
	v := s.draws[s.next]
	s.next++
	return v
}
