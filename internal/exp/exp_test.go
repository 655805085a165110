package exp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/behaviorlab/crowdsim/internal/dqn"
)

func TestCreateAndOpen(t *testing.T) {
	root := t.TempDir()

	run, err := Create(root, "first", false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "first"), run.Dir)
	assert.Equal(t, "first", run.Config.Name)
	assert.NotEmpty(t, run.Config.RunID)
	assert.NotEmpty(t, run.Config.Timestamp)

	run.Config.NumTasks = 3
	run.Config.Training = dqn.DefaultConfig()
	require.NoError(t, run.SaveConfig())

	opened, err := Open(root, "first")
	require.NoError(t, err)
	assert.Equal(t, run.Config, opened.Config)
}

func TestCreateRefusesExisting(t *testing.T) {
	root := t.TempDir()
	_, err := Create(root, "run", false)
	require.NoError(t, err)

	_, err = Create(root, "run", false)
	require.Error(t, err)
}

func TestCreateOverwriteClearsOldArtifacts(t *testing.T) {
	root := t.TempDir()
	run, err := Create(root, "run", false)
	require.NoError(t, err)
	stale := run.Path(ModelFile)
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0644))

	_, err = Create(root, "run", true)
	require.NoError(t, err)
	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
}

func TestOpenMissingRun(t *testing.T) {
	_, err := Open(t.TempDir(), "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestList(t *testing.T) {
	root := t.TempDir()

	names, err := List(root)
	require.NoError(t, err)
	assert.Empty(t, names)

	for _, name := range []string{"bravo", "alpha"} {
		run, err := Create(root, name, false)
		require.NoError(t, err)
		require.NoError(t, run.SaveConfig())
	}
	// A directory without a config is not a run.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "scratch"), 0755))

	names, err = List(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "bravo"}, names)

	names, err = List(filepath.Join(root, "missing"))
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestClone(t *testing.T) {
	root := t.TempDir()
	src, err := Create(root, "base", false)
	require.NoError(t, err)
	src.Config.NumTasks = 2
	src.Config.TotalTimesteps = 5000
	src.Config.MainSeed = 11
	src.Config.Training = dqn.DefaultConfig()
	require.NoError(t, src.SaveConfig())
	require.NoError(t, os.WriteFile(src.Path(WorkerPropertiesFile), []byte("{}"), 0644))
	require.NoError(t, os.WriteFile(src.Path(ModelFile), []byte("weights"), 0644))

	clone, err := src.Clone(root, "branch")
	require.NoError(t, err)
	assert.Equal(t, "branch", clone.Config.Name)
	assert.NotEqual(t, src.Config.RunID, clone.Config.RunID)
	assert.Equal(t, src.Config.NumTasks, clone.Config.NumTasks)
	assert.Equal(t, src.Config.Training, clone.Config.Training)
	assert.Equal(t, "This run directory is based on base.", clone.Config.BasedOn)

	data, err := os.ReadFile(clone.Path(ModelFile))
	require.NoError(t, err)
	assert.Equal(t, "weights", string(data))

	// The clone got its own config, not a copy of the source's.
	opened, err := Open(root, "branch")
	require.NoError(t, err)
	assert.Equal(t, clone.Config, opened.Config)
}
