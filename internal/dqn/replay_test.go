package dqn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func TestReplayBufferLen(t *testing.T) {
	b := NewReplayBuffer(3)
	assert.Zero(t, b.Len())

	b.Add(Transition{Reward: 1})
	b.Add(Transition{Reward: 2})
	assert.Equal(t, 2, b.Len())

	b.Add(Transition{Reward: 3})
	b.Add(Transition{Reward: 4})
	assert.Equal(t, 3, b.Len(), "capacity caps the length")
}

func TestReplayBufferOverwritesOldest(t *testing.T) {
	b := NewReplayBuffer(2)
	b.Add(Transition{Reward: 1})
	b.Add(Transition{Reward: 2})
	b.Add(Transition{Reward: 3})

	rng := rand.New(rand.NewSource(1))
	seen := map[float64]bool{}
	for i := 0; i < 100; i++ {
		for _, tr := range b.Sample(rng, 2) {
			seen[tr.Reward] = true
		}
	}
	assert.False(t, seen[1], "the oldest transition is gone")
	assert.True(t, seen[2])
	assert.True(t, seen[3])
}

func TestReplayBufferSampleSize(t *testing.T) {
	b := NewReplayBuffer(10)
	b.Add(Transition{Reward: 1})

	rng := rand.New(rand.NewSource(1))
	batch := b.Sample(rng, 5)
	require.Len(t, batch, 5)
	for _, tr := range batch {
		assert.Equal(t, 1.0, tr.Reward)
	}
}
