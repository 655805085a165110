// Package task models the supply side of the platform: task-givers,
// the tasks they publish and the anti-cheat machinery attached to them.
package task

import (
	"fmt"

	"golang.org/x/exp/rand"
)

// Instance is a single question, e.g. an image in a labeling task.
type Instance struct {
	TrueLabel int
	// Label is the label assigned by the worker, -1 until answered.
	Label int
}

// Properties describes a published task. All values except
// TargetNumInstances live in [0,1]; interestingness is shifted to [-0.5,0.5].
type Properties struct {
	Payout             float64 `json:"payout"`
	Expertise          float64 `json:"expertise"`
	Effort             float64 `json:"effort"`
	Interestingness    float64 `json:"interestingness"`
	TargetNumInstances float64 `json:"target_num_instances"`
	NumClasses         int     `json:"num_classes"`
}

// Mode says whether the current question is a hidden gold question or a
// real (unknown-answer) one.
type Mode int

const (
	// ModeNone means no question has been handed out yet.
	ModeNone Mode = iota
	// ModeQualityControl marks a hidden gold question.
	ModeQualityControl
	// ModeLabel marks actual labeling of an unknown-answer question.
	ModeLabel
)

// Response classifies the worker's last answer for logging.
type Response string

const (
	ResponseNotSet      Response = "not-set"
	ResponseCorrect     Response = "correct"
	ResponseIncorrect   Response = "incorrect"
	ResponseQACorrect   Response = "qa_correct"
	ResponseQAIncorrect Response = "qa_incorrect"
)

// Task is one task as seen by a single worker over an episode.
type Task struct {
	Properties Properties
	AntiCheat  AntiCheatSettings

	Mode            Mode
	CurrentInstance *Instance

	// InstanceCounter counts every answered question including gold ones.
	InstanceCounter int
	// RealInstanceCounter counts only the non-gold questions.
	RealInstanceCounter int
	// QAFalseCounter counts gold questions answered incorrectly.
	QAFalseCounter int

	LastResponse Response
}

// New returns a task with no question handed out yet.
func New(props Properties, antiCheat AntiCheatSettings) *Task {
	return &Task{
		Properties:   props,
		AntiCheat:    antiCheat,
		Mode:         ModeNone,
		LastResponse: ResponseNotSet,
	}
}

// ReceiveAnswer records the worker's answer to the current question and
// returns the resulting reputation change. Gold questions pay out the
// reputation bonus or punishment; real questions only update the counters.
func (t *Task) ReceiveAnswer(label int) (float64, error) {
	if t.Mode == ModeNone || t.CurrentInstance == nil {
		return 0, fmt.Errorf("task: answer received before any question was handed out")
	}

	t.InstanceCounter++
	t.CurrentInstance.Label = label
	reputationChange := 0.0

	switch t.Mode {
	case ModeQualityControl:
		if label != t.CurrentInstance.TrueLabel {
			t.QAFalseCounter++
			reputationChange = t.AntiCheat.ReputationPunishment
			t.LastResponse = ResponseQAIncorrect
		} else {
			reputationChange = t.AntiCheat.ReputationBonus
			t.LastResponse = ResponseQACorrect
		}
	case ModeLabel:
		t.RealInstanceCounter++
		if label != t.CurrentInstance.TrueLabel {
			t.LastResponse = ResponseIncorrect
		} else {
			t.LastResponse = ResponseCorrect
		}
	}

	return reputationChange, nil
}

// GiveNewInstance hands out the next question. With probability QAModeProb it
// is a hidden gold question, otherwise a real one. The simulation has no
// corpus of truly unlabeled data, so real questions also carry a known
// ground-truth label the worker never sees.
func (t *Task) GiveNewInstance(rng *rand.Rand) {
	if rng.Float64() < t.AntiCheat.QAModeProb {
		t.Mode = ModeQualityControl
	} else {
		t.Mode = ModeLabel
	}
	t.CurrentInstance = &Instance{
		TrueLabel: rng.Intn(t.Properties.NumClasses),
		Label:     -1,
	}
}

// IsActive reports whether the task-giver still supplies questions to the
// worker: the target instance count is not reached, the gold-question failure
// budget is not exhausted and the reputation is above the ban threshold.
func (t *Task) IsActive(reputation float64) bool {
	return float64(t.RealInstanceCounter) < t.Properties.TargetNumInstances &&
		t.QAFalseCounter < t.AntiCheat.QAFalseMax &&
		reputation >= t.AntiCheat.MinReputation
}

func (t *Task) String() string {
	return fmt.Sprintf("Task(%d instances labeled, %d real, %d QA answers failed)",
		t.InstanceCounter, t.RealInstanceCounter, t.QAFalseCounter)
}
