package env

import (
	"fmt"
	"strings"
)

// ActionName maps an action index to its display name, e.g. 0 to "QUIT".
func ActionName(action int) string {
	switch {
	case action == ActionQuit:
		return "QUIT"
	case action == ActionAnswerNegligently:
		return "ANSWER NEGLIGENTLY"
	case action == ActionAnswerDiligently:
		return "ANSWER DILIGENTLY"
	case action >= ActionSwitchTask0:
		return fmt.Sprintf("SWITCH TO TASK %d", action-ActionSwitchTask0)
	}
	return fmt.Sprintf("UNKNOWN(%d)", action)
}

// ObservationString renders an observation vector for the replay surface.
func (e *Env) ObservationString(obs []float64) string {
	var b strings.Builder
	b.WriteString("Observation:\n")
	numTasks := e.NumTasks()
	for i := 0; i < numTasks; i++ {
		base := i * obsPerTask
		fmt.Fprintf(&b, "  Task %d:\n", i)
		fmt.Fprintf(&b, "      payout %.3f | rounds %.0f\n", obs[base], obs[base+1])
		fmt.Fprintf(&b, "      expert %.3f | effort %.3f | interest %.3f\n", obs[base+2], obs[base+3], obs[base+4])
	}
	base := numTasks * obsPerTask
	fmt.Fprintf(&b, "  current task: %.0f\n", obs[base])
	fmt.Fprintf(&b, "  reputation: %.3f\n", obs[base+1])
	fmt.Fprintf(&b, "  time: %.2f/%.2f\n", obs[base+3], obs[base+2])
	return b.String()
}
