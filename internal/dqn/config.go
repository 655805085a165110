// Package dqn implements the value-based agents that learn the worker
// policy: plain deep Q-learning and its quantile-regression variant.
package dqn

import "fmt"

// Algorithm selects the learner.
type Algorithm string

const (
	// AlgorithmDQN is standard deep Q-learning with a target network.
	AlgorithmDQN Algorithm = "DQN"
	// AlgorithmQRDQN learns a quantile distribution of returns per action.
	AlgorithmQRDQN Algorithm = "QR-DQN"
)

// ParseAlgorithm validates an algorithm name from config.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case AlgorithmDQN, AlgorithmQRDQN:
		return Algorithm(s), nil
	}
	return "", fmt.Errorf("dqn: unknown algorithm %q (want %q or %q)", s, AlgorithmDQN, AlgorithmQRDQN)
}

// Config holds the training hyperparameters.
type Config struct {
	Algorithm    Algorithm `json:"algorithm"`
	Gamma        float64   `json:"gamma"`
	LearningRate float64   `json:"learning_rate"`

	BufferSize     int `json:"buffer_size"`
	BatchSize      int `json:"batch_size"`
	LearningStarts int `json:"learning_starts"`
	TrainFreq      int `json:"train_freq"`
	TargetSync     int `json:"target_sync_interval"`

	ExplorationFraction   float64 `json:"exploration_fraction"`
	ExplorationInitialEps float64 `json:"exploration_initial_eps"`
	ExplorationFinalEps   float64 `json:"exploration_final_eps"`

	HiddenDims []int `json:"hidden_dims"`
	// NumQuantiles is only used by QR-DQN.
	NumQuantiles int `json:"num_quantiles"`

	// LogInterval is the progress-report period in timesteps.
	LogInterval int `json:"log_interval"`

	Seed uint64 `json:"seed"`
}

// DefaultConfig returns the reference hyperparameters.
func DefaultConfig() Config {
	return Config{
		Algorithm:             AlgorithmDQN,
		Gamma:                 0.99,
		LearningRate:          1e-4,
		BufferSize:            100_000,
		BatchSize:             32,
		LearningStarts:        1000,
		TrainFreq:             4,
		TargetSync:            1000,
		ExplorationFraction:   0.1,
		ExplorationInitialEps: 1,
		ExplorationFinalEps:   0.05,
		HiddenDims:            []int{64, 64},
		NumQuantiles:          50,
		LogInterval:           1000,
	}
}

// Validate reports the first invalid hyperparameter.
func (c Config) Validate() error {
	if _, err := ParseAlgorithm(string(c.Algorithm)); err != nil {
		return err
	}
	if c.Gamma <= 0 || c.Gamma > 1 {
		return fmt.Errorf("dqn: gamma must be in (0,1], got %v", c.Gamma)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("dqn: learning rate must be positive, got %v", c.LearningRate)
	}
	if c.BufferSize <= 0 || c.BatchSize <= 0 || c.BatchSize > c.BufferSize {
		return fmt.Errorf("dqn: invalid buffer/batch sizes %d/%d", c.BufferSize, c.BatchSize)
	}
	if c.TrainFreq <= 0 || c.TargetSync <= 0 || c.LogInterval <= 0 {
		return fmt.Errorf("dqn: train_freq, target_sync_interval and log_interval must be positive")
	}
	if c.ExplorationFraction < 0 || c.ExplorationFraction > 1 {
		return fmt.Errorf("dqn: exploration_fraction must be in [0,1], got %v", c.ExplorationFraction)
	}
	if c.Algorithm == AlgorithmQRDQN && c.NumQuantiles <= 0 {
		return fmt.Errorf("dqn: num_quantiles must be positive for QR-DQN")
	}
	return nil
}
