package dqn

import (
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/behaviorlab/crowdsim/internal/ctxlog"
	"github.com/behaviorlab/crowdsim/internal/env"
	"github.com/behaviorlab/crowdsim/internal/nn"
)

// EpisodeStat summarizes one finished training episode.
type EpisodeStat struct {
	Index     int
	Reward    float64
	Length    int
	Elapsed   time.Duration
	EndReason string
	Epsilon   float64
	Timesteps int
}

// ProgressStat is a periodic training progress report.
type ProgressStat struct {
	Timesteps     int
	Episodes      int
	MeanReward100 float64
	Epsilon       float64
	Loss          float64
	FPS           float64
	Elapsed       time.Duration
}

// Hooks receives training telemetry; nil members are skipped.
type Hooks struct {
	OnEpisode  func(EpisodeStat)
	OnProgress func(ProgressStat)
}

// Agent is a value-based learner over a discrete action space.
type Agent struct {
	cfg        Config
	obsDim     int
	numActions int

	online *nn.Network
	target *nn.Network
	buffer *ReplayBuffer
	rng    *rand.Rand
}

// NewAgent builds an untrained agent for the given observation/action sizes.
func NewAgent(cfg Config, obsDim, numActions int) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if obsDim <= 0 || numActions <= 0 {
		return nil, fmt.Errorf("dqn: invalid space sizes obs=%d actions=%d", obsDim, numActions)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	outputDim := numActions
	if cfg.Algorithm == AlgorithmQRDQN {
		outputDim = numActions * cfg.NumQuantiles
	}
	online, err := nn.New(nn.Config{
		InputDim:     obsDim,
		HiddenDims:   cfg.HiddenDims,
		OutputDim:    outputDim,
		LearningRate: cfg.LearningRate,
	}, rng)
	if err != nil {
		return nil, err
	}

	a := &Agent{
		cfg:        cfg,
		obsDim:     obsDim,
		numActions: numActions,
		online:     online,
		target:     online.Clone(),
		buffer:     NewReplayBuffer(cfg.BufferSize),
		rng:        rng,
	}
	return a, nil
}

// Config returns the agent's hyperparameters.
func (a *Agent) Config() Config { return a.cfg }

// NumActions returns the size of the agent's action space.
func (a *Agent) NumActions() int { return a.numActions }

// ObservationDim returns the expected observation length.
func (a *Agent) ObservationDim() int { return a.obsDim }

// QValues returns the state-action values for an observation. For QR-DQN the
// value of an action is the mean of its return quantiles.
func (a *Agent) QValues(obs []float64) []float64 {
	out := a.online.Predict(obs)
	if a.cfg.Algorithm != AlgorithmQRDQN {
		return out
	}
	q := make([]float64, a.numActions)
	n := a.cfg.NumQuantiles
	for act := 0; act < a.numActions; act++ {
		sum := 0.0
		for i := 0; i < n; i++ {
			sum += out[act*n+i]
		}
		q[act] = sum / float64(n)
	}
	return q
}

// GreedyAction returns the action with the highest value.
func (a *Agent) GreedyAction(obs []float64) int {
	return argmax(a.QValues(obs))
}

// SelectAction is epsilon-greedy over the agent's value estimates.
func (a *Agent) SelectAction(obs []float64, epsilon float64) int {
	if a.rng.Float64() < epsilon {
		return a.rng.Intn(a.numActions)
	}
	return a.GreedyAction(obs)
}

// Learn runs the training loop for totalTimesteps environment steps. The
// environment must already be seeded. Cancelling the context stops training
// at the next step boundary.
func (a *Agent) Learn(ctx context.Context, e *env.Env, totalTimesteps int, hooks Hooks) error {
	logger := ctxlog.FromContext(ctx)

	if e.NumActions() != a.numActions || e.ObservationSize() != a.obsDim {
		return fmt.Errorf("dqn: environment spaces (%d obs, %d actions) do not match agent (%d obs, %d actions)",
			e.ObservationSize(), e.NumActions(), a.obsDim, a.numActions)
	}

	schedule := LinearSchedule{
		Initial:    a.cfg.ExplorationInitialEps,
		Final:      a.cfg.ExplorationFinalEps,
		DecaySteps: int(a.cfg.ExplorationFraction * float64(totalTimesteps)),
	}

	obs, err := e.Reset()
	if err != nil {
		return err
	}

	start := time.Now()
	episodeStart := start
	var (
		episodes      int
		episodeReward float64
		episodeLength int
		lastLoss      float64
		recentRewards []float64
	)

	logger.Info("training started",
		"algorithm", string(a.cfg.Algorithm),
		"total_timesteps", totalTimesteps,
		"obs_dim", a.obsDim,
		"num_actions", a.numActions)

	for step := 1; step <= totalTimesteps; step++ {
		if err := ctx.Err(); err != nil {
			logger.Warn("training cancelled", "timesteps", step-1, "episodes", episodes)
			return err
		}

		epsilon := schedule.Value(step)
		action := a.SelectAction(obs, epsilon)
		nextObs, reward, done, info, err := e.Step(action)
		if err != nil {
			return fmt.Errorf("dqn: environment step %d: %w", step, err)
		}

		a.buffer.Add(Transition{
			Obs:     obs,
			Action:  action,
			Reward:  reward,
			NextObs: nextObs,
			Done:    done,
		})
		obs = nextObs
		episodeReward += reward
		episodeLength++

		if done {
			episodes++
			recentRewards = append(recentRewards, episodeReward)
			if len(recentRewards) > 100 {
				recentRewards = recentRewards[1:]
			}
			if hooks.OnEpisode != nil {
				hooks.OnEpisode(EpisodeStat{
					Index:     episodes,
					Reward:    episodeReward,
					Length:    episodeLength,
					Elapsed:   time.Since(episodeStart),
					EndReason: info.EndReason,
					Epsilon:   epsilon,
					Timesteps: step,
				})
			}
			episodeReward = 0
			episodeLength = 0
			episodeStart = time.Now()
			if obs, err = e.Reset(); err != nil {
				return err
			}
		}

		if step >= a.cfg.LearningStarts && step%a.cfg.TrainFreq == 0 {
			lastLoss = a.trainStep()
		}
		if step%a.cfg.TargetSync == 0 {
			if err := a.target.CopyWeightsFrom(a.online); err != nil {
				return err
			}
		}
		if step%a.cfg.LogInterval == 0 {
			elapsed := time.Since(start)
			stat := ProgressStat{
				Timesteps:     step,
				Episodes:      episodes,
				MeanReward100: mean(recentRewards),
				Epsilon:       epsilon,
				Loss:          lastLoss,
				FPS:           float64(step) / elapsed.Seconds(),
				Elapsed:       elapsed,
			}
			logger.Info("training progress",
				"timesteps", stat.Timesteps,
				"episodes", stat.Episodes,
				"mean_reward_100", stat.MeanReward100,
				"epsilon", stat.Epsilon,
				"loss", stat.Loss,
				"fps", stat.FPS)
			if hooks.OnProgress != nil {
				hooks.OnProgress(stat)
			}
		}
	}

	logger.Info("training finished",
		"episodes", episodes,
		"duration_seconds", time.Since(start).Seconds())
	return nil
}

// trainStep samples a batch and applies one gradient step.
func (a *Agent) trainStep() float64 {
	batch := a.buffer.Sample(a.rng, a.cfg.BatchSize)
	x := mat.NewDense(len(batch), a.obsDim, nil)
	nextX := mat.NewDense(len(batch), a.obsDim, nil)
	for i, t := range batch {
		x.SetRow(i, t.Obs)
		nextX.SetRow(i, t.NextObs)
	}
	if a.cfg.Algorithm == AlgorithmQRDQN {
		return a.trainStepQR(batch, x, nextX)
	}
	return a.trainStepDQN(batch, x, nextX)
}

func (a *Agent) trainStepDQN(batch []Transition, x, nextX *mat.Dense) float64 {
	nextQ := a.target.Forward(nextX)
	y := mat.DenseCopyOf(a.online.Forward(x))
	for i, t := range batch {
		target := t.Reward
		if !t.Done {
			target += a.cfg.Gamma * mat.Max(nextQ.RowView(i))
		}
		y.Set(i, t.Action, target)
	}
	return a.online.TrainMSE(x, y)
}

// trainStepQR fits the chosen action's return quantiles against the target
// network's quantiles under the quantile-regression Huber loss (kappa = 1).
func (a *Agent) trainStepQR(batch []Transition, x, nextX *mat.Dense) float64 {
	n := a.cfg.NumQuantiles
	nextOut := a.target.Forward(nextX)

	// Per-sample target quantiles of the greedy next action.
	targets := make([][]float64, len(batch))
	for i, t := range batch {
		row := make([]float64, n)
		if t.Done {
			for j := range row {
				row[j] = t.Reward
			}
		} else {
			best := 0
			bestMean := math.Inf(-1)
			for act := 0; act < a.numActions; act++ {
				sum := 0.0
				for j := 0; j < n; j++ {
					sum += nextOut.At(i, act*n+j)
				}
				if m := sum / float64(n); m > bestMean {
					bestMean = m
					best = act
				}
			}
			for j := 0; j < n; j++ {
				row[j] = t.Reward + a.cfg.Gamma*nextOut.At(i, best*n+j)
			}
		}
		targets[i] = row
	}

	taus := make([]float64, n)
	for i := range taus {
		taus[i] = (float64(i) + 0.5) / float64(n)
	}

	return a.online.TrainCustom(x, func(pred *mat.Dense) (*mat.Dense, float64) {
		rows, cols := pred.Dims()
		grad := mat.NewDense(rows, cols, nil)
		loss := 0.0
		for i, t := range batch {
			base := t.Action * n
			for qi := 0; qi < n; qi++ {
				theta := pred.At(i, base+qi)
				g := 0.0
				for j := 0; j < n; j++ {
					delta := targets[i][j] - theta
					weight := taus[qi]
					if delta < 0 {
						weight = 1 - taus[qi]
					}
					loss += weight * huber(delta) / float64(n*n*rows)
					g -= weight * clip(delta, -1, 1) / float64(n*rows)
				}
				grad.Set(i, base+qi, g)
			}
		}
		return grad, loss
	})
}

func huber(delta float64) float64 {
	if math.Abs(delta) <= 1 {
		return 0.5 * delta * delta
	}
	return math.Abs(delta) - 0.5
}

func clip(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

func argmax(values []float64) int {
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// savedModel is the gob wire form of a trained agent.
type savedModel struct {
	Config     Config
	ObsDim     int
	NumActions int
	Online     *nn.Network
}

// Save writes the trained policy to path (conventionally "model.save").
func (a *Agent) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create model file: %w", err)
	}
	defer f.Close()
	state := savedModel{
		Config:     a.cfg,
		ObsDim:     a.obsDim,
		NumActions: a.numActions,
		Online:     a.online,
	}
	if err := gob.NewEncoder(f).Encode(&state); err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	return nil
}

// Load reads an agent previously written by Save. The replay buffer starts
// empty; the loaded agent is ready for greedy rollouts or further training.
func Load(path string) (*Agent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model file: %w", err)
	}
	defer f.Close()
	var state savedModel
	if err := gob.NewDecoder(f).Decode(&state); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	if err := state.Config.Validate(); err != nil {
		return nil, fmt.Errorf("dqn: saved model has invalid config: %w", err)
	}
	return &Agent{
		cfg:        state.Config,
		obsDim:     state.ObsDim,
		numActions: state.NumActions,
		online:     state.Online,
		target:     state.Online.Clone(),
		buffer:     NewReplayBuffer(state.Config.BufferSize),
		rng:        rand.New(rand.NewSource(state.Config.Seed)),
	}, nil
}
