package dqn

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/behaviorlab/crowdsim/internal/env"
	"github.com/behaviorlab/crowdsim/internal/task"
	"github.com/behaviorlab/crowdsim/internal/worker"
)

func tinyConfig(alg Algorithm) Config {
	cfg := DefaultConfig()
	cfg.Algorithm = alg
	cfg.LearningRate = 1e-3
	cfg.BufferSize = 500
	cfg.BatchSize = 8
	cfg.LearningStarts = 20
	cfg.TargetSync = 50
	cfg.HiddenDims = []int{8}
	cfg.NumQuantiles = 5
	cfg.LogInterval = 50
	cfg.Seed = 9
	return cfg
}

func smokeEnv(t *testing.T) *env.Env {
	t.Helper()
	w := worker.Default()
	w.TimeBudget = 10
	e, err := env.New(w, []task.Distribution{
		task.DefaultFixedDistribution(),
		task.DefaultFixedDistribution(),
	}, task.AntiCheatSettings{
		QAFalseMax:           3,
		QAModeProb:           0.1,
		ReputationPunishment: -0.05,
		ReputationBonus:      0.05,
		MinReputation:        0.3,
	})
	require.NoError(t, err)
	e.Seed(17)
	return e
}

func TestNewAgentValidation(t *testing.T) {
	cfg := tinyConfig(AlgorithmDQN)
	cfg.Gamma = -1
	_, err := NewAgent(cfg, 4, 3)
	require.Error(t, err)

	_, err = NewAgent(tinyConfig(AlgorithmDQN), 0, 3)
	require.Error(t, err)
}

func TestQValuesShape(t *testing.T) {
	for _, alg := range []Algorithm{AlgorithmDQN, AlgorithmQRDQN} {
		t.Run(string(alg), func(t *testing.T) {
			agent, err := NewAgent(tinyConfig(alg), 4, 3)
			require.NoError(t, err)

			obs := []float64{0.1, 0.2, 0.3, 0.4}
			q := agent.QValues(obs)
			require.Len(t, q, 3)
			assert.Equal(t, argmax(q), agent.GreedyAction(obs))
		})
	}
}

func TestSelectAction(t *testing.T) {
	agent, err := NewAgent(tinyConfig(AlgorithmDQN), 4, 3)
	require.NoError(t, err)
	obs := []float64{0.1, 0.2, 0.3, 0.4}

	greedy := agent.GreedyAction(obs)
	for i := 0; i < 10; i++ {
		assert.Equal(t, greedy, agent.SelectAction(obs, 0))
	}
	for i := 0; i < 100; i++ {
		a := agent.SelectAction(obs, 1)
		assert.GreaterOrEqual(t, a, 0)
		assert.Less(t, a, 3)
	}
}

func TestLearnSpaceMismatch(t *testing.T) {
	e := smokeEnv(t)
	agent, err := NewAgent(tinyConfig(AlgorithmDQN), e.ObservationSize()+1, e.NumActions())
	require.NoError(t, err)
	require.Error(t, agent.Learn(context.Background(), e, 10, Hooks{}))
}

func TestLearnCancellation(t *testing.T) {
	e := smokeEnv(t)
	agent, err := NewAgent(tinyConfig(AlgorithmDQN), e.ObservationSize(), e.NumActions())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, agent.Learn(ctx, e, 1000, Hooks{}), context.Canceled)
}

func TestLearnSmoke(t *testing.T) {
	for _, alg := range []Algorithm{AlgorithmDQN, AlgorithmQRDQN} {
		t.Run(string(alg), func(t *testing.T) {
			e := smokeEnv(t)
			agent, err := NewAgent(tinyConfig(alg), e.ObservationSize(), e.NumActions())
			require.NoError(t, err)

			var episodes []EpisodeStat
			var progress []ProgressStat
			hooks := Hooks{
				OnEpisode:  func(s EpisodeStat) { episodes = append(episodes, s) },
				OnProgress: func(s ProgressStat) { progress = append(progress, s) },
			}
			require.NoError(t, agent.Learn(context.Background(), e, 300, hooks))

			require.NotEmpty(t, episodes, "a 10-step budget must finish episodes within 300 steps")
			require.NotEmpty(t, progress)
			for i, s := range episodes {
				assert.Equal(t, i+1, s.Index)
				assert.Positive(t, s.Length)
				assert.Contains(t,
					[]string{env.EndReasonQuit, env.EndReasonTimeBudget}, s.EndReason)
			}
			assert.Equal(t, 300, progress[len(progress)-1].Timesteps)
			assert.Equal(t, 300, agent.buffer.Len())
		})
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	e := smokeEnv(t)
	agent, err := NewAgent(tinyConfig(AlgorithmQRDQN), e.ObservationSize(), e.NumActions())
	require.NoError(t, err)
	require.NoError(t, agent.Learn(context.Background(), e, 100, Hooks{}))

	path := filepath.Join(t.TempDir(), "model.save")
	require.NoError(t, agent.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, agent.Config(), loaded.Config())
	assert.Equal(t, agent.NumActions(), loaded.NumActions())
	assert.Equal(t, agent.ObservationDim(), loaded.ObservationDim())

	obs, err := e.Reset()
	require.NoError(t, err)
	assert.Equal(t, agent.QValues(obs), loaded.QValues(obs))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.save"))
	require.Error(t, err)
}
