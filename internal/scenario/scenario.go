// Package scenario loads the HCL description of an experiment: the worker's
// behavioral parameters, the anti-cheat settings, the task-givers and the
// training hyperparameters.
package scenario

import (
	"fmt"

	"github.com/behaviorlab/crowdsim/internal/dqn"
	"github.com/behaviorlab/crowdsim/internal/task"
	"github.com/behaviorlab/crowdsim/internal/worker"
)

// Scenario is the fully resolved experiment description.
type Scenario struct {
	Worker         worker.Properties
	AntiCheat      task.AntiCheatSettings
	TaskNames      []string
	Distributions  []task.Distribution
	Training       dqn.Config
	TotalTimesteps int
	Seed           uint64
}

// DefaultAntiCheat is used when the scenario has no anti_cheat block.
func DefaultAntiCheat() task.AntiCheatSettings {
	return task.AntiCheatSettings{
		QAFalseMax:           3,
		QAModeProb:           0.1,
		ReputationPunishment: -0.05,
		ReputationBonus:      0.05,
		MinReputation:        0.3,
	}
}

// Validate reports the first structural problem of a resolved scenario.
func (s *Scenario) Validate() error {
	if len(s.Distributions) == 0 {
		return fmt.Errorf("scenario: at least one task block is required")
	}
	if s.TotalTimesteps <= 0 {
		return fmt.Errorf("scenario: total_timesteps must be positive, got %d", s.TotalTimesteps)
	}
	if s.Worker.TimeBudget <= 0 {
		return fmt.Errorf("scenario: worker time_budget must be positive, got %v", s.Worker.TimeBudget)
	}
	if s.Worker.StartReputation < 0 || s.Worker.StartReputation > 1 {
		return fmt.Errorf("scenario: start_reputation must be in [0,1], got %v", s.Worker.StartReputation)
	}
	if s.AntiCheat.QAModeProb < 0 || s.AntiCheat.QAModeProb > 1 {
		return fmt.Errorf("scenario: qa_mode_prob must be in [0,1], got %v", s.AntiCheat.QAModeProb)
	}
	return s.Training.Validate()
}
