package dqn

import "golang.org/x/exp/rand"

// Transition is one step of experience.
type Transition struct {
	Obs     []float64
	Action  int
	Reward  float64
	NextObs []float64
	Done    bool
}

// ReplayBuffer is a fixed-capacity ring buffer with uniform sampling.
type ReplayBuffer struct {
	data []Transition
	next int
	full bool
}

// NewReplayBuffer allocates a buffer holding up to capacity transitions.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	return &ReplayBuffer{data: make([]Transition, capacity)}
}

// Add stores a transition, overwriting the oldest one once full.
func (b *ReplayBuffer) Add(t Transition) {
	b.data[b.next] = t
	b.next++
	if b.next == len(b.data) {
		b.next = 0
		b.full = true
	}
}

// Len returns the number of stored transitions.
func (b *ReplayBuffer) Len() int {
	if b.full {
		return len(b.data)
	}
	return b.next
}

// Sample draws n transitions uniformly with replacement.
func (b *ReplayBuffer) Sample(rng *rand.Rand, n int) []Transition {
	size := b.Len()
	out := make([]Transition, n)
	for i := range out {
		out[i] = b.data[rng.Intn(size)]
	}
	return out
}
