// Package env implements the crowdworking platform as an episodic
// environment: the worker observes the platform state, picks an action and
// receives a subjective reward.
package env

import (
	"errors"
	"fmt"

	"golang.org/x/exp/rand"

	"github.com/behaviorlab/crowdsim/internal/task"
	"github.com/behaviorlab/crowdsim/internal/worker"
)

// Action indices. Everything at or above ActionSwitchTask0 selects the task
// with index action-ActionSwitchTask0.
const (
	ActionQuit = iota
	// ActionAnswerNegligently answers with a uniformly random label.
	ActionAnswerNegligently
	// ActionAnswerDiligently answers correctly with probability equal to the
	// task's expertise value.
	ActionAnswerDiligently
	ActionSwitchTask0
)

// End reasons reported when an episode terminates.
const (
	EndReasonQuit       = "user_quit"
	EndReasonTimeBudget = "end_of_user_time_budget"
)

// ErrEpisodeDone is returned by Step once the episode has terminated.
var ErrEpisodeDone = errors.New("env: episode is done, call Reset")

// obsPerTask is the number of observation entries contributed by each task.
const obsPerTask = 5

// StepInfo carries side-channel information about a step.
type StepInfo struct {
	EndReason string
}

// Env is one worker's session on the platform. Not safe for concurrent use;
// evaluation runs one Env per goroutine.
type Env struct {
	workerProps   worker.Properties
	distributions []task.Distribution
	antiCheat     task.AntiCheatSettings

	tasks []*task.Task
	// taskDistMap recovers, per shuffled task index, the index of the
	// task-giver that generated it.
	taskDistMap map[int]int

	reputation     float64
	currentTaskIdx int
	timeSpent      float64
	lastAction     int
	done           bool

	rng *rand.Rand
}

// New builds an environment with one task per task-giver. Seed must be
// called before Reset.
func New(workerProps worker.Properties, distributions []task.Distribution, antiCheat task.AntiCheatSettings) (*Env, error) {
	if len(distributions) == 0 {
		return nil, errors.New("env: at least one task distribution is required")
	}
	return &Env{
		workerProps:    workerProps,
		distributions:  distributions,
		antiCheat:      antiCheat,
		currentTaskIdx: -1,
		reputation:     -1,
		lastAction:     -1,
	}, nil
}

// Seed fixes the random source for reproducible episodes.
func (e *Env) Seed(seed uint64) {
	e.rng = rand.New(rand.NewSource(seed))
}

// NumTasks returns the number of tasks offered per episode.
func (e *Env) NumTasks() int { return len(e.distributions) }

// NumActions returns the size of the discrete action space: quit, the two
// answer styles and one switch action per task.
func (e *Env) NumActions() int { return 3 + len(e.distributions) }

// ObservationSize returns the length of the observation vector.
func (e *Env) ObservationSize() int { return obsPerTask*len(e.distributions) + 4 }

// Tasks exposes the current episode's tasks, read-only by convention.
func (e *Env) Tasks() []*task.Task { return e.tasks }

// TaskDistMap maps each shuffled task index back to the index of its
// generating task-giver for the current episode.
func (e *Env) TaskDistMap() map[int]int { return e.taskDistMap }

// Reputation returns the worker's current reputation.
func (e *Env) Reputation() float64 { return e.reputation }

// TimeSpent returns the time consumed so far this episode.
func (e *Env) TimeSpent() float64 { return e.timeSpent }

// Reset starts a new episode: each task-giver publishes a fresh task, the
// tasks are shuffled so the agent cannot learn which slot belongs to which
// task-giver, and the worker state is reinitialized.
func (e *Env) Reset() ([]float64, error) {
	if e.rng == nil {
		return nil, errors.New("env: Seed must be called before Reset")
	}

	newTasks := make([]*task.Task, 0, len(e.distributions))
	for _, dist := range e.distributions {
		props := dist.CreateProperties(e.rng)
		newTasks = append(newTasks, task.New(props, e.antiCheat))
	}

	e.tasks = make([]*task.Task, 0, len(newTasks))
	e.taskDistMap = make(map[int]int, len(newTasks))
	for taskIdx, distIdx := range e.rng.Perm(len(newTasks)) {
		e.tasks = append(e.tasks, newTasks[distIdx])
		e.taskDistMap[taskIdx] = distIdx
	}

	e.currentTaskIdx = -1
	e.lastAction = -1
	e.timeSpent = 0
	e.reputation = e.workerProps.StartReputation
	e.done = false

	return e.Observation(), nil
}

// Step applies the worker's action and returns the next observation, the
// subjective reward, whether the episode ended and step metadata.
func (e *Env) Step(action int) ([]float64, float64, bool, StepInfo, error) {
	if e.done {
		return nil, 0, true, StepInfo{}, ErrEpisodeDone
	}
	if action < 0 || action >= e.NumActions() {
		return nil, 0, false, StepInfo{}, fmt.Errorf("env: action %d out of range [0,%d)", action, e.NumActions())
	}
	e.lastAction = action

	// Worker quits: the remaining budget is worth spending elsewhere.
	if action == ActionQuit {
		e.done = true
		reward := (e.workerProps.TimeBudget - e.timeSpent) * e.workerProps.TimeSensitivity
		return e.Observation(), reward, true, StepInfo{EndReason: EndReasonQuit}, nil
	}

	// Worker ran out of time.
	if e.timeSpent > e.workerProps.TimeBudget {
		e.done = true
		return e.Observation(), 0, true, StepInfo{EndReason: EndReasonTimeBudget}, nil
	}

	if action == ActionAnswerNegligently || action == ActionAnswerDiligently {
		return e.stepAnswer(action)
	}
	return e.stepSwitch(action - ActionSwitchTask0)
}

func (e *Env) stepAnswer(action int) ([]float64, float64, bool, StepInfo, error) {
	// Answering without a selected, active task wastes time.
	if e.currentTaskIdx == -1 || !e.tasks[e.currentTaskIdx].IsActive(e.reputation) {
		e.timeSpent += e.workerProps.RandomAnswerTime
		return e.Observation(), -1, false, StepInfo{}, nil
	}

	current := e.tasks[e.currentTaskIdx]
	rewardPayout := e.workerProps.PayoutSensitivity * current.Properties.Payout

	var answer int
	var timeSpent, reward float64
	if action == ActionAnswerNegligently {
		timeSpent = e.workerProps.RandomAnswerTime
		answer = e.rng.Intn(current.Properties.NumClasses)
		reward = rewardPayout // only monetary reward
	} else {
		timeSpent = e.workerProps.IntentionalAnswerTime * current.Properties.Effort
		if e.rng.Float64() < current.Properties.Expertise {
			answer = current.CurrentInstance.TrueLabel
		} else {
			answer = e.rng.Intn(current.Properties.NumClasses)
		}
		reward = rewardPayout + e.workerProps.InterestingnessSensitivity*current.Properties.Interestingness
	}
	e.timeSpent += timeSpent

	reputationChange, err := current.ReceiveAnswer(answer)
	if err != nil {
		return nil, 0, false, StepInfo{}, err
	}
	e.reputation = clamp01(e.reputation + reputationChange)

	// The task-giver bans the worker or runs out of questions.
	if !current.IsActive(e.reputation) {
		e.currentTaskIdx = -1
	} else {
		current.GiveNewInstance(e.rng)
	}

	return e.Observation(), reward, false, StepInfo{}, nil
}

func (e *Env) stepSwitch(target int) ([]float64, float64, bool, StepInfo, error) {
	previous := e.currentTaskIdx
	e.currentTaskIdx = target
	e.timeSpent += e.workerProps.SwitchTaskTime

	// Selecting an inactive task is invalid.
	if !e.tasks[target].IsActive(e.reputation) {
		e.currentTaskIdx = -1
		return e.Observation(), -1, false, StepInfo{}, nil
	}

	// Re-selecting the current task is pointless; it still hands out a new
	// question, which a future agent may exploit to skip one.
	reward := 0.0
	if previous == target {
		reward = -1
	}
	e.tasks[target].GiveNewInstance(e.rng)

	return e.Observation(), reward, false, StepInfo{}, nil
}

// Observation builds the part of the platform visible to the worker: per
// task [payout, answered count or -1 if inactive, expertise/effort/
// interestingness or -1 each until the task has been tried], then the
// current task index, reputation, time budget and time spent.
func (e *Env) Observation() []float64 {
	obs := make([]float64, 0, e.ObservationSize())
	for _, t := range e.tasks {
		obs = append(obs, t.Properties.Payout)
		if t.IsActive(e.reputation) {
			obs = append(obs, float64(t.InstanceCounter))
		} else {
			obs = append(obs, -1)
		}
		if t.InstanceCounter > 0 {
			obs = append(obs, t.Properties.Expertise, t.Properties.Effort, t.Properties.Interestingness)
		} else {
			obs = append(obs, -1, -1, -1)
		}
	}
	obs = append(obs, float64(e.currentTaskIdx), e.reputation, e.workerProps.TimeBudget, e.timeSpent)
	return obs
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
