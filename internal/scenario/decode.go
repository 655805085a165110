package scenario

import (
	"context"
	"fmt"
	"strconv"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/behaviorlab/crowdsim/internal/ctxlog"
	"github.com/behaviorlab/crowdsim/internal/dqn"
	"github.com/behaviorlab/crowdsim/internal/task"
	"github.com/behaviorlab/crowdsim/internal/worker"
)

// fileSchema is the top-level HCL layout of a scenario file.
type fileSchema struct {
	Worker    *workerBlock    `hcl:"worker,block"`
	AntiCheat *antiCheatBlock `hcl:"anti_cheat,block"`
	Tasks     []taskBlock     `hcl:"task,block"`
	Training  *trainingBlock  `hcl:"training,block"`
}

type workerBlock struct {
	InterestingnessSensitivity *float64 `hcl:"interestingness_sensitivity,optional"`
	PayoutSensitivity          *float64 `hcl:"payout_sensitivity,optional"`
	TimeSensitivity            *float64 `hcl:"time_sensitivity,optional"`
	TimeBudget                 *float64 `hcl:"time_budget,optional"`
	StartReputation            *float64 `hcl:"start_reputation,optional"`
	RandomAnswerTime           *float64 `hcl:"random_answer_time,optional"`
	IntentionalAnswerTime      *float64 `hcl:"intentional_answer_time,optional"`
	SwitchTaskTime             *float64 `hcl:"switch_task_time,optional"`
}

type antiCheatBlock struct {
	QAFalseMax           *int     `hcl:"qa_false_max,optional"`
	QAModeProb           *float64 `hcl:"qa_mode_prob,optional"`
	ReputationPunishment *float64 `hcl:"reputation_punishment,optional"`
	ReputationBonus      *float64 `hcl:"reputation_bonus,optional"`
	MinReputation        *float64 `hcl:"min_reputation,optional"`
}

// taskBlock defers its kind-specific attributes to a second decode pass.
type taskBlock struct {
	Name   string   `hcl:"name,label"`
	Kind   string   `hcl:"kind"`
	Remain hcl.Body `hcl:",remain"`
}

type customBetaBody struct {
	Payout                  []float64 `hcl:"payout,optional"`
	Expertise               []float64 `hcl:"expertise,optional"`
	Effort                  []float64 `hcl:"effort,optional"`
	Interestingness         []float64 `hcl:"interestingness,optional"`
	TargetNumInstances      []float64 `hcl:"target_num_instances,optional"`
	TargetNumInstancesScale *float64  `hcl:"target_num_instances_scale,optional"`
}

type fixedBody struct {
	Payout             *float64 `hcl:"payout,optional"`
	Expertise          *float64 `hcl:"expertise,optional"`
	Effort             *float64 `hcl:"effort,optional"`
	Interestingness    *float64 `hcl:"interestingness,optional"`
	TargetNumInstances *float64 `hcl:"target_num_instances,optional"`
}

type emptyBody struct{}

type trainingBlock struct {
	Algorithm             *string  `hcl:"algorithm,optional"`
	TotalTimesteps        *int     `hcl:"total_timesteps,optional"`
	Seed                  *uint64  `hcl:"seed,optional"`
	Gamma                 *float64 `hcl:"gamma,optional"`
	LearningRate          *float64 `hcl:"learning_rate,optional"`
	BufferSize            *int     `hcl:"buffer_size,optional"`
	BatchSize             *int     `hcl:"batch_size,optional"`
	LearningStarts        *int     `hcl:"learning_starts,optional"`
	TrainFreq             *int     `hcl:"train_freq,optional"`
	TargetSync            *int     `hcl:"target_sync_interval,optional"`
	ExplorationFraction   *float64 `hcl:"exploration_fraction,optional"`
	ExplorationFinalEps   *float64 `hcl:"exploration_final_eps,optional"`
	ExplorationInitialEps *float64 `hcl:"exploration_initial_eps,optional"`
	HiddenDims            []int    `hcl:"hidden_dims,optional"`
	NumQuantiles          *int     `hcl:"num_quantiles,optional"`
	LogInterval           *int     `hcl:"log_interval,optional"`
}

// Load parses and resolves a scenario file. vars are exposed to the file as
// the `var` object, e.g. `total_timesteps = var.steps`.
func Load(ctx context.Context, path string, vars map[string]cty.Value) (*Scenario, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Decoding scenario file.", "path", path)

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse scenario %s: %s", path, diags.Error())
	}
	sc, err := decode(file.Body, vars)
	if err != nil {
		return nil, fmt.Errorf("decode scenario %s: %w", path, err)
	}
	logger.Debug("Scenario decoded.",
		"tasks", len(sc.Distributions),
		"algorithm", string(sc.Training.Algorithm),
		"total_timesteps", sc.TotalTimesteps)
	return sc, nil
}

// Parse is Load for in-memory sources, used by tests and the harness.
func Parse(src []byte, filename string, vars map[string]cty.Value) (*Scenario, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse scenario %s: %s", filename, diags.Error())
	}
	sc, err := decode(file.Body, vars)
	if err != nil {
		return nil, fmt.Errorf("decode scenario %s: %w", filename, err)
	}
	return sc, nil
}

// ParseVars turns CLI key=value pairs into the scenario's `var` object.
// Values that parse as numbers become numbers, everything else is a string.
func ParseVars(pairs []string) (map[string]cty.Value, error) {
	vars := make(map[string]cty.Value, len(pairs))
	for _, pair := range pairs {
		key, value, ok := cut(pair)
		if !ok {
			return nil, fmt.Errorf("scenario: malformed variable %q, want key=value", pair)
		}
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			vars[key] = cty.NumberFloatVal(f)
		} else {
			vars[key] = cty.StringVal(value)
		}
	}
	return vars, nil
}

func cut(s string) (string, string, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			return s[:i], s[i+1:], true
		}
	}
	return s, "", false
}

func decode(body hcl.Body, vars map[string]cty.Value) (*Scenario, error) {
	evalCtx := &hcl.EvalContext{}
	if len(vars) > 0 {
		evalCtx.Variables = map[string]cty.Value{"var": cty.ObjectVal(vars)}
	}

	var file fileSchema
	if diags := gohcl.DecodeBody(body, evalCtx, &file); diags.HasErrors() {
		return nil, fmt.Errorf("%s", diags.Error())
	}

	sc := &Scenario{
		Worker:    worker.Default(),
		AntiCheat: DefaultAntiCheat(),
		Training:  dqn.DefaultConfig(),
	}

	if file.Worker != nil {
		applyWorker(&sc.Worker, file.Worker)
	}
	if file.AntiCheat != nil {
		applyAntiCheat(&sc.AntiCheat, file.AntiCheat)
	}

	for _, tb := range file.Tasks {
		dist, err := decodeTask(tb, evalCtx)
		if err != nil {
			return nil, err
		}
		sc.TaskNames = append(sc.TaskNames, tb.Name)
		sc.Distributions = append(sc.Distributions, dist)
	}

	sc.TotalTimesteps = 100_000
	if file.Training != nil {
		if err := applyTraining(sc, file.Training); err != nil {
			return nil, err
		}
	}
	sc.Training.Seed = sc.Seed

	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return sc, nil
}

func decodeTask(tb taskBlock, evalCtx *hcl.EvalContext) (task.Distribution, error) {
	switch tb.Kind {
	case "beta":
		// No further attributes allowed.
		var rest emptyBody
		if diags := gohcl.DecodeBody(tb.Remain, evalCtx, &rest); diags.HasErrors() {
			return nil, fmt.Errorf("task %q: %s", tb.Name, diags.Error())
		}
		return task.BetaDistribution{}, nil

	case "custom_beta":
		var body customBetaBody
		if diags := gohcl.DecodeBody(tb.Remain, evalCtx, &body); diags.HasErrors() {
			return nil, fmt.Errorf("task %q: %s", tb.Name, diags.Error())
		}
		dist := task.DefaultCustomBetaDistribution()
		for _, p := range []struct {
			name   string
			pair   []float64
			target *task.BetaParams
		}{
			{"payout", body.Payout, &dist.Payout},
			{"expertise", body.Expertise, &dist.Expertise},
			{"effort", body.Effort, &dist.Effort},
			{"interestingness", body.Interestingness, &dist.Interestingness},
			{"target_num_instances", body.TargetNumInstances, &dist.TargetNumInstances},
		} {
			if p.pair == nil {
				continue
			}
			if len(p.pair) != 2 {
				return nil, fmt.Errorf("task %q: %s must be an [alpha, beta] pair, got %d values", tb.Name, p.name, len(p.pair))
			}
			*p.target = task.BetaParams{Alpha: p.pair[0], Beta: p.pair[1]}
		}
		if body.TargetNumInstancesScale != nil {
			dist.TargetNumInstancesScale = *body.TargetNumInstancesScale
		}
		return dist, nil

	case "fixed":
		var body fixedBody
		if diags := gohcl.DecodeBody(tb.Remain, evalCtx, &body); diags.HasErrors() {
			return nil, fmt.Errorf("task %q: %s", tb.Name, diags.Error())
		}
		dist := task.DefaultFixedDistribution()
		setIf(&dist.Payout, body.Payout)
		setIf(&dist.Expertise, body.Expertise)
		setIf(&dist.Effort, body.Effort)
		setIf(&dist.Interestingness, body.Interestingness)
		setIf(&dist.TargetNumInstances, body.TargetNumInstances)
		return dist, nil
	}
	return nil, fmt.Errorf("task %q: unknown kind %q (want beta, custom_beta or fixed)", tb.Name, tb.Kind)
}

func applyWorker(w *worker.Properties, b *workerBlock) {
	setIf(&w.InterestingnessSensitivity, b.InterestingnessSensitivity)
	setIf(&w.PayoutSensitivity, b.PayoutSensitivity)
	setIf(&w.TimeSensitivity, b.TimeSensitivity)
	setIf(&w.TimeBudget, b.TimeBudget)
	setIf(&w.StartReputation, b.StartReputation)
	setIf(&w.RandomAnswerTime, b.RandomAnswerTime)
	setIf(&w.IntentionalAnswerTime, b.IntentionalAnswerTime)
	setIf(&w.SwitchTaskTime, b.SwitchTaskTime)
}

func applyAntiCheat(a *task.AntiCheatSettings, b *antiCheatBlock) {
	setIf(&a.QAFalseMax, b.QAFalseMax)
	setIf(&a.QAModeProb, b.QAModeProb)
	setIf(&a.ReputationPunishment, b.ReputationPunishment)
	setIf(&a.ReputationBonus, b.ReputationBonus)
	setIf(&a.MinReputation, b.MinReputation)
}

func applyTraining(sc *Scenario, b *trainingBlock) error {
	if b.Algorithm != nil {
		alg, err := dqn.ParseAlgorithm(*b.Algorithm)
		if err != nil {
			return err
		}
		sc.Training.Algorithm = alg
	}
	setIf(&sc.TotalTimesteps, b.TotalTimesteps)
	setIf(&sc.Seed, b.Seed)
	setIf(&sc.Training.Gamma, b.Gamma)
	setIf(&sc.Training.LearningRate, b.LearningRate)
	setIf(&sc.Training.BufferSize, b.BufferSize)
	setIf(&sc.Training.BatchSize, b.BatchSize)
	setIf(&sc.Training.LearningStarts, b.LearningStarts)
	setIf(&sc.Training.TrainFreq, b.TrainFreq)
	setIf(&sc.Training.TargetSync, b.TargetSync)
	setIf(&sc.Training.ExplorationFraction, b.ExplorationFraction)
	setIf(&sc.Training.ExplorationFinalEps, b.ExplorationFinalEps)
	setIf(&sc.Training.ExplorationInitialEps, b.ExplorationInitialEps)
	if b.HiddenDims != nil {
		sc.Training.HiddenDims = b.HiddenDims
	}
	setIf(&sc.Training.NumQuantiles, b.NumQuantiles)
	setIf(&sc.Training.LogInterval, b.LogInterval)
	return nil
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
