// Package rollout evaluates a trained policy by running greedy episodes
// across a pool of workers.
package rollout

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/behaviorlab/crowdsim/internal/ctxlog"
	"github.com/behaviorlab/crowdsim/internal/dqn"
	"github.com/behaviorlab/crowdsim/internal/env"
)

// maxEpisodeSteps caps a single evaluation episode against degenerate
// configurations where no action consumes time.
const maxEpisodeSteps = 1_000_000

// EnvFactory builds one environment per worker goroutine; environments are
// not safe for concurrent use.
type EnvFactory func() (*env.Env, error)

// Episode is the outcome of one greedy episode.
type Episode struct {
	Seed      uint64  `json:"seed"`
	Reward    float64 `json:"reward"`
	Length    int     `json:"length"`
	EndReason string  `json:"end_reason"`
}

// Report aggregates an evaluation.
type Report struct {
	Episodes   int            `json:"episodes"`
	MeanReward float64        `json:"mean_reward"`
	StdReward  float64        `json:"std_reward"`
	MinReward  float64        `json:"min_reward"`
	MaxReward  float64        `json:"max_reward"`
	MeanLength float64        `json:"mean_length"`
	EndReasons map[string]int `json:"end_reasons"`
}

// RunEpisode plays one greedy episode on an already seeded environment.
func RunEpisode(agent *dqn.Agent, e *env.Env) (Episode, error) {
	obs, err := e.Reset()
	if err != nil {
		return Episode{}, err
	}
	var ep Episode
	for ep.Length < maxEpisodeSteps {
		action := agent.GreedyAction(obs)
		next, reward, done, info, err := e.Step(action)
		if err != nil {
			return Episode{}, err
		}
		ep.Reward += reward
		ep.Length++
		obs = next
		if done {
			ep.EndReason = info.EndReason
			return ep, nil
		}
	}
	ep.EndReason = "step_limit"
	return ep, nil
}

// Evaluate runs episodes greedy rollouts over workers goroutines. Episode i
// is seeded with seed+i, so results are independent of the worker count.
func Evaluate(ctx context.Context, agent *dqn.Agent, newEnv EnvFactory, episodes, workers int, seed uint64) (*Report, error) {
	if episodes <= 0 {
		return nil, fmt.Errorf("rollout: episodes must be positive, got %d", episodes)
	}
	if workers <= 0 {
		workers = 1
	}
	if workers > episodes {
		workers = episodes
	}
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Evaluation starting.", "episodes", episodes, "workers", workers, "seed", seed)

	// Buffered and pre-filled so early worker exits cannot block the send.
	seeds := make(chan uint64, episodes)
	for i := 0; i < episodes; i++ {
		seeds <- seed + uint64(i)
	}
	close(seeds)

	results := make([]Episode, 0, episodes)
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
	)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			workerLogger := logger.With("workerID", workerID)

			e, err := newEnv()
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			for s := range seeds {
				if ctx.Err() != nil {
					return
				}
				e.Seed(s)
				ep, err := RunEpisode(agent, e)
				if err != nil {
					workerLogger.Error("Episode failed.", "seed", s, "error", err)
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					return
				}
				ep.Seed = s
				mu.Lock()
				results = append(results, ep)
				mu.Unlock()
			}
		}(w)
	}

	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return summarize(results), nil
}

func summarize(episodes []Episode) *Report {
	r := &Report{
		Episodes:   len(episodes),
		MinReward:  math.Inf(1),
		MaxReward:  math.Inf(-1),
		EndReasons: make(map[string]int),
	}
	var sum, sumSq, lengths float64
	for _, ep := range episodes {
		sum += ep.Reward
		sumSq += ep.Reward * ep.Reward
		lengths += float64(ep.Length)
		r.MinReward = math.Min(r.MinReward, ep.Reward)
		r.MaxReward = math.Max(r.MaxReward, ep.Reward)
		r.EndReasons[ep.EndReason]++
	}
	n := float64(len(episodes))
	r.MeanReward = sum / n
	r.MeanLength = lengths / n
	variance := sumSq/n - r.MeanReward*r.MeanReward
	if variance > 0 {
		r.StdReward = math.Sqrt(variance)
	}
	return r
}
