// Package exp manages experiment result directories. Every training run
// lives in its own directory under a common root and carries a fixed set of
// artifacts: the run configuration, the worker and anti-cheat settings, the
// task-giver list, the training logs, the metrics database and the saved
// model.
package exp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/behaviorlab/crowdsim/internal/dqn"
)

// Artifact file names inside a run directory.
const (
	ConfigFile            = "config.json"
	WorkerPropertiesFile  = "user_properties.json"
	AntiCheatFile         = "anti_cheat_settings.json"
	DistributionsTextFile = "task_properties_distributions.txt"
	DistributionsGobFile  = "task_properties_distributions.gob"
	MonitorFile           = "train.monitor.csv"
	ProgressFile          = "progress.csv"
	MetricsFile           = "train.db"
	ModelFile             = "model.save"
)

// ErrRunNotFound is returned when opening a run directory without a config.
var ErrRunNotFound = errors.New("exp: run not found")

// timestampLayout matches the human-readable run timestamps in config.json.
const timestampLayout = "15:04 MST on Jan 02, 2006"

// Config is the persisted description of a run.
type Config struct {
	Name           string     `json:"name"`
	RunID          string     `json:"run_id"`
	Timestamp      string     `json:"timestamp"`
	Scenario       string     `json:"scenario,omitempty"`
	BasedOn        string     `json:"based_on,omitempty"`
	NumTasks       int        `json:"num_tasks"`
	TotalTimesteps int        `json:"total_timesteps"`
	MainSeed       uint64     `json:"main_seed"`
	Training       dqn.Config `json:"training"`
}

// Run is an open experiment directory.
type Run struct {
	Dir    string
	Config Config
}

// Create makes a fresh run directory. It fails if the directory already
// exists unless overwrite is set, in which case the old artifacts are
// removed first.
func Create(root, name string, overwrite bool) (*Run, error) {
	dir := filepath.Join(root, name)
	if _, err := os.Stat(dir); err == nil {
		if !overwrite {
			return nil, fmt.Errorf("exp: run directory %s already exists", dir)
		}
		if err := os.RemoveAll(dir); err != nil {
			return nil, fmt.Errorf("exp: clear run directory: %w", err)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("exp: create run directory: %w", err)
	}
	return &Run{
		Dir: dir,
		Config: Config{
			Name:      name,
			RunID:     uuid.NewString(),
			Timestamp: time.Now().Format(timestampLayout),
		},
	}, nil
}

// Open loads an existing run.
func Open(root, name string) (*Run, error) {
	dir := filepath.Join(root, name)
	data, err := os.ReadFile(filepath.Join(dir, ConfigFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, name)
		}
		return nil, fmt.Errorf("exp: read run config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("exp: decode run config: %w", err)
	}
	return &Run{Dir: dir, Config: cfg}, nil
}

// List returns the names of all runs under root, sorted. Directories without
// a config file are skipped.
func List(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("exp: read experiment root: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(root, e.Name(), ConfigFile)); err == nil {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Path joins a file name into the run directory.
func (r *Run) Path(file string) string {
	return filepath.Join(r.Dir, file)
}

// SaveConfig writes config.json, indented.
func (r *Run) SaveConfig() error {
	data, err := json.MarshalIndent(r.Config, "", "    ")
	if err != nil {
		return fmt.Errorf("exp: marshal run config: %w", err)
	}
	if err := os.WriteFile(r.Path(ConfigFile), data, 0o644); err != nil {
		return fmt.Errorf("exp: write run config: %w", err)
	}
	return nil
}

// Clone copies this run's artifacts into a fresh directory under root and
// returns the new run. Config entries of the source that the new config does
// not set (name, id, timestamp) are carried over, and the provenance is
// recorded. Artifacts in the clone may still reference the source run's
// settings; the clone is meant for branching follow-up experiments.
func (r *Run) Clone(root, newName string) (*Run, error) {
	clone, err := Create(root, newName, false)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(r.Dir)
	if err != nil {
		return nil, fmt.Errorf("exp: read source run: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || e.Name() == ConfigFile {
			continue
		}
		if err := copyFile(filepath.Join(r.Dir, e.Name()), clone.Path(e.Name())); err != nil {
			return nil, err
		}
	}

	clone.Config.Scenario = r.Config.Scenario
	clone.Config.NumTasks = r.Config.NumTasks
	clone.Config.TotalTimesteps = r.Config.TotalTimesteps
	clone.Config.MainSeed = r.Config.MainSeed
	clone.Config.Training = r.Config.Training
	clone.Config.BasedOn = fmt.Sprintf("This run directory is based on %s.", r.Config.Name)
	if err := clone.SaveConfig(); err != nil {
		return nil, err
	}
	return clone, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("exp: open %s: %w", src, err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("exp: create %s: %w", dst, err)
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("exp: copy %s: %w", src, err)
	}
	return out.Close()
}
