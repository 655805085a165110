package app_test

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/behaviorlab/crowdsim/internal/app"
	"github.com/behaviorlab/crowdsim/internal/dqn"
	"github.com/behaviorlab/crowdsim/internal/exp"
	"github.com/behaviorlab/crowdsim/internal/metrics"
	"github.com/behaviorlab/crowdsim/internal/testutil"
)

func TestTrainProducesAllArtifacts(t *testing.T) {
	res := testutil.RunTraining(t, testutil.TinyScenario, nil)
	require.NoError(t, res.Err)
	require.NotNil(t, res.Run)

	for _, file := range []string{
		exp.ConfigFile,
		exp.WorkerPropertiesFile,
		exp.AntiCheatFile,
		exp.DistributionsTextFile,
		exp.DistributionsGobFile,
		exp.MonitorFile,
		exp.ProgressFile,
		exp.MetricsFile,
		exp.ModelFile,
	} {
		_, err := os.Stat(res.Run.Path(file))
		assert.NoError(t, err, "artifact %s should exist", file)
	}

	cfg := res.Run.Config
	assert.Equal(t, "test-run", cfg.Name)
	assert.NotEmpty(t, cfg.RunID)
	assert.Equal(t, 2, cfg.NumTasks)
	assert.Equal(t, 300, cfg.TotalTimesteps)
	assert.Equal(t, uint64(7), cfg.MainSeed)
	assert.Equal(t, dqn.AlgorithmDQN, cfg.Training.Algorithm)

	assert.Contains(t, res.LogOutput, "training started")
	assert.Contains(t, res.LogOutput, "training finished")

	// progress.csv has its header plus one row per log interval.
	data, err := os.ReadFile(res.Run.Path(exp.ProgressFile))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	assert.Len(t, lines, 4)
}

func TestTrainVarOverride(t *testing.T) {
	src := `
task "only" {
  kind = "fixed"
}

training {
  total_timesteps = var.steps
  learning_starts = 50
  hidden_dims     = [8]
}
`
	res := testutil.RunTraining(t, src, []string{"steps=150"})
	require.NoError(t, res.Err)
	assert.Equal(t, 150, res.Run.Config.TotalTimesteps)
}

func TestTrainRefusesExistingRun(t *testing.T) {
	res := testutil.RunTraining(t, testutil.TinyScenario, nil)
	require.NoError(t, res.Err)

	scenarioPath := testutil.WriteScenario(t, testutil.TinyScenario)
	_, err := res.App.Train(context.Background(), app.TrainOptions{
		ScenarioPath: scenarioPath,
		Name:         "test-run",
	})
	require.Error(t, err)

	_, err = res.App.Train(context.Background(), app.TrainOptions{
		ScenarioPath: scenarioPath,
		Name:         "test-run",
		Overwrite:    true,
	})
	require.NoError(t, err)
}

func TestTrainCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := testutil.RunTrainingWithContext(ctx, t, testutil.TinyScenario, nil)
	assert.ErrorIs(t, res.Err, context.Canceled)
}

func TestEvaluateTrainedRun(t *testing.T) {
	res := testutil.RunTraining(t, testutil.TinyScenario, nil)
	require.NoError(t, res.Err)

	report, err := res.App.Evaluate(context.Background(), app.EvaluateOptions{
		Run:      "test-run",
		Episodes: 4,
		Workers:  2,
		Seed:     11,
		Record:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, report.Episodes)

	store, err := metrics.Open(res.Run.Path(exp.MetricsFile))
	require.NoError(t, err)
	defer store.Close()
	evals, err := store.Evaluations(res.Run.Config.RunID)
	require.NoError(t, err)
	require.Len(t, evals, 1)
	assert.Equal(t, 4, evals[0].Episodes)
	assert.InDelta(t, report.MeanReward, evals[0].MeanReward, 1e-9)
}

func TestEvaluateMissingRun(t *testing.T) {
	res := testutil.RunTraining(t, testutil.TinyScenario, nil)
	require.NoError(t, res.Err)

	_, err := res.App.Evaluate(context.Background(), app.EvaluateOptions{
		Run: "nope", Episodes: 1, Workers: 1,
	})
	assert.ErrorIs(t, err, exp.ErrRunNotFound)
}

func TestReplayWritesTranscript(t *testing.T) {
	res := testutil.RunTraining(t, testutil.TinyScenario, nil)
	require.NoError(t, res.Err)

	var out bytes.Buffer
	require.NoError(t, res.App.Replay(context.Background(), "test-run", 5, &out))

	transcript := out.String()
	assert.Contains(t, transcript, `Replaying run "test-run" (seed 5)`)
	assert.Contains(t, transcript, "Observation:")
	assert.Contains(t, transcript, "Step 1:")
	assert.Contains(t, transcript, "Episode over after")
}
