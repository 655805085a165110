package task

import (
	"encoding/json"
	"fmt"
	"os"
)

// AntiCheatSettings configures the two deterrents a task-giver uses against
// low-effort answering: hidden gold questions and a reputation system.
type AntiCheatSettings struct {
	// QAFalseMax is the maximum number of hidden gold questions the worker
	// can answer incorrectly before being banned from a task (exclusive).
	QAFalseMax int `json:"qa_false_max"`
	// QAModeProb is the probability of handing out a hidden gold question
	// instead of a real one.
	QAModeProb float64 `json:"qa_mode_prob"`
	// ReputationPunishment is added to the reputation when a gold question is
	// answered incorrectly; a value of -0.05 decreases reputation by 0.05.
	ReputationPunishment float64 `json:"reputation_punishment"`
	// ReputationBonus is added to the reputation when a gold question is
	// answered correctly.
	ReputationBonus float64 `json:"reputation_bonus"`
	// MinReputation is the reputation below which the worker is banned.
	MinReputation float64 `json:"min_reputation"`
}

// SaveAntiCheatSettings writes the settings as indented JSON.
func SaveAntiCheatSettings(s AntiCheatSettings, path string) error {
	data, err := json.MarshalIndent(s, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal anti-cheat settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write anti-cheat settings: %w", err)
	}
	return nil
}

// LoadAntiCheatSettings reads settings previously written by SaveAntiCheatSettings.
func LoadAntiCheatSettings(path string) (AntiCheatSettings, error) {
	var s AntiCheatSettings
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("read anti-cheat settings: %w", err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("decode anti-cheat settings: %w", err)
	}
	return s, nil
}
