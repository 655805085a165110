package task

import (
	"encoding/gob"
	"fmt"
	"os"
	"strings"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// numClasses is the label-class count shared by every generated task.
const numClasses = 10

// Distribution is a task-giver: it decides the properties of the task it
// publishes at the start of each episode.
type Distribution interface {
	// CreateProperties draws one task's properties.
	CreateProperties(rng *rand.Rand) Properties
	// String is the human-readable form persisted next to the binary copy.
	String() string
}

// BetaParams is an (alpha, beta) shape-parameter pair.
type BetaParams struct {
	Alpha float64
	Beta  float64
}

func (p BetaParams) sample(rng *rand.Rand) float64 {
	return distuv.Beta{Alpha: p.Alpha, Beta: p.Beta, Src: rng}.Rand()
}

// BetaDistribution is the default task-giver: every property follows a fixed
// Beta distribution (payout/effort/interestingness Beta(10,10), expertise
// Beta(40,10)), interestingness shifted by -0.5 and the instance count
// scaled by 100.
type BetaDistribution struct{}

func (BetaDistribution) CreateProperties(rng *rand.Rand) Properties {
	return Properties{
		Payout:             BetaParams{10, 10}.sample(rng),
		Expertise:          BetaParams{40, 10}.sample(rng),
		Effort:             BetaParams{10, 10}.sample(rng),
		Interestingness:    BetaParams{10, 10}.sample(rng) - 0.5,
		TargetNumInstances: BetaParams{10, 10}.sample(rng) * 100,
		NumClasses:         numClasses,
	}
}

func (BetaDistribution) String() string { return "BetaDistribution" }

// CustomBetaDistribution draws each property from its own Beta distribution.
type CustomBetaDistribution struct {
	Payout             BetaParams
	Expertise          BetaParams
	Effort             BetaParams
	Interestingness    BetaParams
	TargetNumInstances BetaParams
	// TargetNumInstancesScale scales the [0,1] draw up to a question count.
	TargetNumInstancesScale float64
}

// DefaultCustomBetaDistribution mirrors BetaDistribution but with the shape
// parameters exposed for overriding.
func DefaultCustomBetaDistribution() CustomBetaDistribution {
	return CustomBetaDistribution{
		Payout:                  BetaParams{10, 10},
		Expertise:               BetaParams{40, 10},
		Effort:                  BetaParams{10, 10},
		Interestingness:         BetaParams{10, 10},
		TargetNumInstances:      BetaParams{10, 10},
		TargetNumInstancesScale: 100,
	}
}

func (d CustomBetaDistribution) CreateProperties(rng *rand.Rand) Properties {
	return Properties{
		Payout:             d.Payout.sample(rng),
		Expertise:          d.Expertise.sample(rng),
		Effort:             d.Effort.sample(rng),
		Interestingness:    d.Interestingness.sample(rng) - 0.5,
		TargetNumInstances: d.TargetNumInstances.sample(rng) * d.TargetNumInstancesScale,
		NumClasses:         numClasses,
	}
}

func (d CustomBetaDistribution) String() string {
	return fmt.Sprintf("CustomBetaDistribution(payout:%v;expertise:%v;effort:%v;interestingness:%v;target_num_instances:%v;target_num_instances_scale:%v)",
		d.Payout, d.Expertise, d.Effort, d.Interestingness, d.TargetNumInstances, d.TargetNumInstancesScale)
}

// FixedDistribution publishes constant property values, for a more
// controlled environment. Interestingness is stored in [0,1] and shifted by
// -0.5 on creation, like the Beta variants.
type FixedDistribution struct {
	Payout             float64
	Expertise          float64
	Effort             float64
	Interestingness    float64
	TargetNumInstances float64
}

// DefaultFixedDistribution returns the reference fixed task-giver.
func DefaultFixedDistribution() FixedDistribution {
	return FixedDistribution{
		Payout:             0.5,
		Expertise:          0.8,
		Effort:             0.5,
		Interestingness:    0.5,
		TargetNumInstances: 50,
	}
}

func (d FixedDistribution) CreateProperties(_ *rand.Rand) Properties {
	return Properties{
		Payout:             d.Payout,
		Expertise:          d.Expertise,
		Effort:             d.Effort,
		Interestingness:    d.Interestingness - 0.5,
		TargetNumInstances: d.TargetNumInstances,
		NumClasses:         numClasses,
	}
}

func (d FixedDistribution) String() string {
	return fmt.Sprintf("FixedDistribution(payout:%v;expertise:%v;effort:%v;interestingness:%v;target_num_instances:%v)",
		d.Payout, d.Expertise, d.Effort, d.Interestingness, d.TargetNumInstances)
}

func init() {
	gob.Register(BetaDistribution{})
	gob.Register(CustomBetaDistribution{})
	gob.Register(FixedDistribution{})
}

// SaveDistributions stores a list of task-givers both human-readable (txtPath,
// one String() per line) and machine-readable (gobPath).
func SaveDistributions(dists []Distribution, txtPath, gobPath string) error {
	var b strings.Builder
	for _, d := range dists {
		b.WriteString(d.String())
		b.WriteString("\n")
	}
	if err := os.WriteFile(txtPath, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write distribution list: %w", err)
	}

	f, err := os.Create(gobPath)
	if err != nil {
		return fmt.Errorf("create distribution list: %w", err)
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(&dists); err != nil {
		return fmt.Errorf("encode distribution list: %w", err)
	}
	return nil
}

// LoadDistributions reads a list of task-givers from its machine-readable form.
func LoadDistributions(gobPath string) ([]Distribution, error) {
	f, err := os.Open(gobPath)
	if err != nil {
		return nil, fmt.Errorf("open distribution list: %w", err)
	}
	defer f.Close()
	var dists []Distribution
	if err := gob.NewDecoder(f).Decode(&dists); err != nil {
		return nil, fmt.Errorf("decode distribution list: %w", err)
	}
	return dists, nil
}
