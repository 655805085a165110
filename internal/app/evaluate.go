package app

import (
	"context"
	"fmt"
	"io"

	"github.com/behaviorlab/crowdsim/internal/dqn"
	"github.com/behaviorlab/crowdsim/internal/env"
	"github.com/behaviorlab/crowdsim/internal/exp"
	"github.com/behaviorlab/crowdsim/internal/metrics"
	"github.com/behaviorlab/crowdsim/internal/rollout"
	"github.com/behaviorlab/crowdsim/internal/task"
	"github.com/behaviorlab/crowdsim/internal/worker"
)

// OpenRun loads a run plus the inputs needed to rebuild its environment.
func (a *App) OpenRun(name string) (*exp.Run, *dqn.Agent, rollout.EnvFactory, error) {
	run, err := exp.Open(a.config.ExpRoot, name)
	if err != nil {
		return nil, nil, nil, err
	}
	workerProps, err := worker.Load(run.Path(exp.WorkerPropertiesFile))
	if err != nil {
		return nil, nil, nil, err
	}
	antiCheat, err := task.LoadAntiCheatSettings(run.Path(exp.AntiCheatFile))
	if err != nil {
		return nil, nil, nil, err
	}
	dists, err := task.LoadDistributions(run.Path(exp.DistributionsGobFile))
	if err != nil {
		return nil, nil, nil, err
	}
	agent, err := dqn.Load(run.Path(exp.ModelFile))
	if err != nil {
		return nil, nil, nil, err
	}
	factory := func() (*env.Env, error) {
		return env.New(workerProps, dists, antiCheat)
	}
	return run, agent, factory, nil
}

// EvaluateOptions parameterizes a policy evaluation.
type EvaluateOptions struct {
	Run      string
	Episodes int
	Workers  int
	Seed     uint64
	// Record stores the aggregated result in the run's metrics database.
	Record bool
}

// Evaluate rolls out a run's saved policy and returns the aggregated report.
func (a *App) Evaluate(ctx context.Context, opts EvaluateOptions) (*rollout.Report, error) {
	ctx = a.Context(ctx)

	run, agent, factory, err := a.OpenRun(opts.Run)
	if err != nil {
		return nil, err
	}

	report, err := rollout.Evaluate(ctx, agent, factory, opts.Episodes, opts.Workers, opts.Seed)
	if err != nil {
		return nil, fmt.Errorf("evaluate run %s: %w", opts.Run, err)
	}
	a.logger.Info("evaluation finished",
		"run", opts.Run,
		"episodes", report.Episodes,
		"mean_reward", report.MeanReward,
		"std_reward", report.StdReward)

	if opts.Record {
		store, err := metrics.Open(run.Path(exp.MetricsFile))
		if err != nil {
			return nil, err
		}
		defer store.Close()
		_, err = store.RecordEvaluation(metrics.EvaluationRecord{
			RunID:      run.Config.RunID,
			Episodes:   report.Episodes,
			MeanReward: report.MeanReward,
			StdReward:  report.StdReward,
			MinReward:  report.MinReward,
			MaxReward:  report.MaxReward,
			MeanLength: report.MeanLength,
		})
		if err != nil {
			return nil, err
		}
	}
	return report, nil
}

// Replay plays one greedy episode of a run's saved policy, writing a
// step-by-step text rendering to out.
func (a *App) Replay(ctx context.Context, runName string, seed uint64, out io.Writer) error {
	ctx = a.Context(ctx)

	_, agent, factory, err := a.OpenRun(runName)
	if err != nil {
		return err
	}
	e, err := factory()
	if err != nil {
		return err
	}
	e.Seed(seed)

	obs, err := e.Reset()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Replaying run %q (seed %d)\n\n", runName, seed)
	fmt.Fprint(out, e.ObservationString(obs))

	step := 0
	total := 0.0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		action := agent.GreedyAction(obs)
		next, reward, done, info, err := e.Step(action)
		if err != nil {
			return err
		}
		step++
		total += reward
		fmt.Fprintf(out, "\nStep %d: %s (reward %.3f)\n", step, env.ActionName(action), reward)
		fmt.Fprint(out, e.ObservationString(next))
		obs = next
		if done {
			fmt.Fprintf(out, "\nEpisode over after %d steps: %s (total reward %.3f)\n", step, info.EndReason, total)
			return nil
		}
	}
}
