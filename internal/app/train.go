package app

import (
	"context"
	"fmt"

	"github.com/behaviorlab/crowdsim/internal/dqn"
	"github.com/behaviorlab/crowdsim/internal/env"
	"github.com/behaviorlab/crowdsim/internal/exp"
	"github.com/behaviorlab/crowdsim/internal/metrics"
	"github.com/behaviorlab/crowdsim/internal/scenario"
	"github.com/behaviorlab/crowdsim/internal/task"
	"github.com/behaviorlab/crowdsim/internal/trainlog"
	"github.com/behaviorlab/crowdsim/internal/worker"
)

// envID names the environment in the monitor-file header.
const envID = "crowdworker-platform-v1"

// TrainOptions parameterizes one training run.
type TrainOptions struct {
	ScenarioPath string
	// Vars are key=value pairs exposed to the scenario as var.<key>.
	Vars      []string
	Name      string
	Overwrite bool
}

// Train runs a full training pipeline: load the scenario, create the run
// directory with all its artifacts, train the agent and save the model.
func (a *App) Train(ctx context.Context, opts TrainOptions) (*exp.Run, error) {
	ctx = a.Context(ctx)

	vars, err := scenario.ParseVars(opts.Vars)
	if err != nil {
		return nil, err
	}
	sc, err := scenario.Load(ctx, opts.ScenarioPath, vars)
	if err != nil {
		return nil, err
	}

	run, err := exp.Create(a.config.ExpRoot, opts.Name, opts.Overwrite)
	if err != nil {
		return nil, err
	}
	a.logger.Info("run directory created", "run", opts.Name, "dir", run.Dir)

	// Persist the run's inputs before training starts so a crashed run can
	// still be inspected.
	if err := worker.Save(sc.Worker, run.Path(exp.WorkerPropertiesFile)); err != nil {
		return nil, err
	}
	if err := task.SaveAntiCheatSettings(sc.AntiCheat, run.Path(exp.AntiCheatFile)); err != nil {
		return nil, err
	}
	if err := task.SaveDistributions(sc.Distributions,
		run.Path(exp.DistributionsTextFile), run.Path(exp.DistributionsGobFile)); err != nil {
		return nil, err
	}
	run.Config.Scenario = opts.ScenarioPath
	run.Config.NumTasks = len(sc.Distributions)
	run.Config.TotalTimesteps = sc.TotalTimesteps
	run.Config.MainSeed = sc.Seed
	run.Config.Training = sc.Training
	if err := run.SaveConfig(); err != nil {
		return nil, err
	}

	e, err := env.New(sc.Worker, sc.Distributions, sc.AntiCheat)
	if err != nil {
		return nil, err
	}
	e.Seed(sc.Seed)

	agent, err := dqn.NewAgent(sc.Training, e.ObservationSize(), e.NumActions())
	if err != nil {
		return nil, err
	}

	monitor, err := trainlog.NewMonitor(run.Path(exp.MonitorFile), envID)
	if err != nil {
		return nil, err
	}
	defer monitor.Close()

	progress, err := trainlog.NewProgressWriter(run.Path(exp.ProgressFile))
	if err != nil {
		return nil, err
	}
	defer progress.Close()

	store, err := metrics.Open(run.Path(exp.MetricsFile))
	if err != nil {
		return nil, err
	}
	defer store.Close()

	hooks := dqn.Hooks{
		OnEpisode: func(stat dqn.EpisodeStat) {
			if err := monitor.Record(stat.Reward, stat.Length); err != nil {
				a.logger.Error("monitor write failed", "error", err)
			}
			err := store.RecordEpisode(metrics.EpisodeRecord{
				RunID:     run.Config.RunID,
				Episode:   stat.Index,
				Reward:    stat.Reward,
				Length:    stat.Length,
				Epsilon:   stat.Epsilon,
				EndReason: stat.EndReason,
				Timesteps: stat.Timesteps,
			})
			if err != nil {
				a.logger.Error("metrics write failed", "error", err)
			}
		},
		OnProgress: func(stat dqn.ProgressStat) {
			err := progress.Record(trainlog.ProgressRow{
				Timesteps:      stat.Timesteps,
				Episodes:       stat.Episodes,
				MeanReward100:  stat.MeanReward100,
				Epsilon:        stat.Epsilon,
				Loss:           stat.Loss,
				FPS:            stat.FPS,
				ElapsedSeconds: stat.Elapsed.Seconds(),
			})
			if err != nil {
				a.logger.Error("progress write failed", "error", err)
			}
		},
	}

	if err := agent.Learn(ctx, e, sc.TotalTimesteps, hooks); err != nil {
		return nil, fmt.Errorf("training run %s: %w", opts.Name, err)
	}

	if err := agent.Save(run.Path(exp.ModelFile)); err != nil {
		return nil, err
	}
	a.logger.Info("model saved", "run", opts.Name, "path", run.Path(exp.ModelFile))
	return run, nil
}
