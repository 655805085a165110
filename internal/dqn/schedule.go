package dqn

// LinearSchedule interpolates epsilon from Initial to Final over DecaySteps
// timesteps, then stays at Final.
type LinearSchedule struct {
	Initial    float64
	Final      float64
	DecaySteps int
}

// Value returns the schedule value at the given timestep.
func (s LinearSchedule) Value(step int) float64 {
	if s.DecaySteps <= 0 || step >= s.DecaySteps {
		return s.Final
	}
	frac := float64(step) / float64(s.DecaySteps)
	return s.Initial + frac*(s.Final-s.Initial)
}
