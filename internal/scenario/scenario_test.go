package scenario

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/behaviorlab/crowdsim/internal/dqn"
	"github.com/behaviorlab/crowdsim/internal/task"
	"github.com/behaviorlab/crowdsim/internal/worker"
)

func parse(t *testing.T, src string, vars map[string]cty.Value) *Scenario {
	t.Helper()
	sc, err := Parse([]byte(src), "test.hcl", vars)
	require.NoError(t, err)
	return sc
}

func TestMinimalScenarioUsesDefaults(t *testing.T) {
	sc := parse(t, `
task "default" {
  kind = "beta"
}
`, nil)

	assert.Equal(t, worker.Default(), sc.Worker)
	assert.Equal(t, DefaultAntiCheat(), sc.AntiCheat)
	assert.Equal(t, []string{"default"}, sc.TaskNames)
	require.Len(t, sc.Distributions, 1)
	assert.IsType(t, task.BetaDistribution{}, sc.Distributions[0])
	assert.Equal(t, 100_000, sc.TotalTimesteps)
	assert.Equal(t, dqn.AlgorithmDQN, sc.Training.Algorithm)
}

func TestFullScenario(t *testing.T) {
	sc := parse(t, `
worker {
  time_budget      = 50
  start_reputation = 0.9
}

anti_cheat {
  qa_false_max = 5
  min_reputation = 0.2
}

task "skewed" {
  kind   = "custom_beta"
  payout = [2, 8]
  target_num_instances_scale = 10
}

task "control" {
  kind   = "fixed"
  payout = 0.25
}

training {
  algorithm       = "QR-DQN"
  total_timesteps = 5000
  seed            = 21
  gamma           = 0.95
  hidden_dims     = [32, 32]
  num_quantiles   = 25
}
`, nil)

	assert.Equal(t, 50.0, sc.Worker.TimeBudget)
	assert.Equal(t, 0.9, sc.Worker.StartReputation)
	assert.Equal(t, 1.0, sc.Worker.PayoutSensitivity, "untouched fields keep defaults")

	assert.Equal(t, 5, sc.AntiCheat.QAFalseMax)
	assert.Equal(t, 0.2, sc.AntiCheat.MinReputation)
	assert.Equal(t, 0.1, sc.AntiCheat.QAModeProb)

	require.Len(t, sc.Distributions, 2)
	custom := sc.Distributions[0].(task.CustomBetaDistribution)
	assert.Equal(t, task.BetaParams{Alpha: 2, Beta: 8}, custom.Payout)
	assert.Equal(t, task.BetaParams{Alpha: 40, Beta: 10}, custom.Expertise)
	assert.Equal(t, 10.0, custom.TargetNumInstancesScale)
	fixed := sc.Distributions[1].(task.FixedDistribution)
	assert.Equal(t, 0.25, fixed.Payout)
	assert.Equal(t, 0.8, fixed.Expertise)

	assert.Equal(t, dqn.AlgorithmQRDQN, sc.Training.Algorithm)
	assert.Equal(t, 5000, sc.TotalTimesteps)
	assert.Equal(t, uint64(21), sc.Seed)
	assert.Equal(t, uint64(21), sc.Training.Seed, "main seed flows into training")
	assert.Equal(t, 0.95, sc.Training.Gamma)
	assert.Equal(t, []int{32, 32}, sc.Training.HiddenDims)
	assert.Equal(t, 25, sc.Training.NumQuantiles)
}

func TestScenarioVariables(t *testing.T) {
	vars, err := ParseVars([]string{"steps=500", "budget=25"})
	require.NoError(t, err)

	sc := parse(t, `
worker {
  time_budget = var.budget
}

task "t" {
  kind = "beta"
}

training {
  total_timesteps = var.steps
}
`, vars)
	assert.Equal(t, 500, sc.TotalTimesteps)
	assert.Equal(t, 25.0, sc.Worker.TimeBudget)
}

func TestParseVars(t *testing.T) {
	vars, err := ParseVars([]string{"n=3", "name=pilot"})
	require.NoError(t, err)
	assert.Equal(t, cty.NumberFloatVal(3), vars["n"])
	assert.Equal(t, cty.StringVal("pilot"), vars["name"])

	_, err = ParseVars([]string{"missing-equals"})
	require.Error(t, err)
}

func TestScenarioErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
	}{
		{"no tasks", `worker {}`},
		{"unknown task kind", `task "t" { kind = "zipf" }`},
		{"beta with extra attributes", `task "t" { kind = "beta"` + "\n" + `payout = 0.5 }`},
		{"bad beta pair", `task "t" { kind = "custom_beta"` + "\n" + `payout = [1, 2, 3] }`},
		{"unknown algorithm", `task "t" { kind = "beta" }` + "\n" + `training { algorithm = "SAC" }`},
		{"non-positive timesteps", `task "t" { kind = "beta" }` + "\n" + `training { total_timesteps = 0 }`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.src), "test.hcl", nil)
			assert.Error(t, err)
		})
	}
}
