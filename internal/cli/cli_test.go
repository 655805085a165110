package cli_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/behaviorlab/crowdsim/internal/cli"
	"github.com/behaviorlab/crowdsim/internal/testutil"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	outW := &testutil.SafeBuffer{}
	errW := &testutil.SafeBuffer{}
	err := cli.Execute(context.Background(), args, outW, errW)
	return outW.String(), errW.String(), err
}

func TestInvalidLogFormat(t *testing.T) {
	_, _, err := execute(t, "--log-format", "yaml", "train", "--scenario", "x", "--name", "y")
	var exitErr *cli.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
}

func TestUnknownCommand(t *testing.T) {
	_, _, err := execute(t, "frobnicate")
	var exitErr *cli.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.Code)
}

func TestTrainRequiresFlags(t *testing.T) {
	_, _, err := execute(t, "train")
	require.Error(t, err)
}

func TestTrainEvaluateReplayFlow(t *testing.T) {
	scenarioPath := testutil.WriteScenario(t, testutil.TinyScenario)
	expRoot := t.TempDir()

	out, logs, err := execute(t,
		"--exp-root", expRoot,
		"train", "--scenario", scenarioPath, "--name", "pilot")
	require.NoError(t, err)
	assert.Contains(t, out, `Run "pilot" trained`)
	assert.Contains(t, logs, "training finished")

	out, _, err = execute(t,
		"--exp-root", expRoot,
		"evaluate", "pilot", "--episodes", "3", "--workers", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Episodes:     3")
	assert.Contains(t, out, "Mean reward:")

	out, _, err = execute(t,
		"--exp-root", expRoot,
		"replay", "pilot", "--seed", "2")
	require.NoError(t, err)
	assert.Contains(t, out, `Replaying run "pilot" (seed 2)`)
	assert.Contains(t, out, "Episode over after")
}

func TestEvaluateMissingRun(t *testing.T) {
	_, _, err := execute(t, "--exp-root", t.TempDir(), "evaluate", "ghost")
	var exitErr *cli.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Contains(t, exitErr.Message, "run not found")
}
