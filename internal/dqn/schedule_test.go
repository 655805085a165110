package dqn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLinearSchedule(t *testing.T) {
	s := LinearSchedule{Initial: 1, Final: 0.05, DecaySteps: 100}

	assert.InDelta(t, 1.0, s.Value(0), 1e-12)
	assert.InDelta(t, 0.525, s.Value(50), 1e-12)
	assert.InDelta(t, 0.05, s.Value(100), 1e-12)
	assert.InDelta(t, 0.05, s.Value(10_000), 1e-12)
}

func TestLinearScheduleNoDecay(t *testing.T) {
	s := LinearSchedule{Initial: 1, Final: 0.1, DecaySteps: 0}
	assert.Equal(t, 0.1, s.Value(0))
}
