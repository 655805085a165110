// Package worker holds the behavioral parameters of the simulated
// crowdworker.
package worker

import (
	"encoding/json"
	"fmt"
	"os"
)

// Properties parameterizes the worker's utility function and time model.
type Properties struct {
	// InterestingnessSensitivity multiplies a task's interestingness factor
	// in the reward for diligent answers.
	InterestingnessSensitivity float64 `json:"interestingness_sensitivity"`
	// PayoutSensitivity multiplies a task's payout in the reward.
	PayoutSensitivity float64 `json:"payout_sensitivity"`
	// TimeSensitivity multiplies the remaining time budget in the reward for
	// quitting. Legacy knob; kept so persisted properties stay faithful.
	TimeSensitivity float64 `json:"time_sensitivity"`

	// TimeBudget is how much time the worker can spend on the platform.
	TimeBudget float64 `json:"time_budget"`
	// StartReputation is the reputation the worker begins an episode with.
	StartReputation float64 `json:"start_reputation"`

	// RandomAnswerTime is the time cost of a negligent answer.
	RandomAnswerTime float64 `json:"random_answer_time"`
	// IntentionalAnswerTime scales a task's effort into the time cost of a
	// diligent answer.
	IntentionalAnswerTime float64 `json:"intentional_answer_time"`
	// SwitchTaskTime is the time cost of switching between tasks.
	SwitchTaskTime float64 `json:"switch_task_time"`
}

// Default returns worker properties with the reference answer-time model.
func Default() Properties {
	return Properties{
		InterestingnessSensitivity: 1,
		PayoutSensitivity:          1,
		TimeSensitivity:            0,
		TimeBudget:                 100,
		StartReputation:            0.7,
		RandomAnswerTime:           0.1,
		IntentionalAnswerTime:      1,
		SwitchTaskTime:             1,
	}
}

// Save writes the properties as indented JSON.
func Save(p Properties, path string) error {
	data, err := json.MarshalIndent(p, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal worker properties: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write worker properties: %w", err)
	}
	return nil
}

// Load reads properties previously written by Save.
func Load(path string) (Properties, error) {
	var p Properties
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read worker properties: %w", err)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("decode worker properties: %w", err)
	}
	return p, nil
}
