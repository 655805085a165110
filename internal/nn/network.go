// Package nn implements the small feed-forward networks used as value
// function approximators: ReLU hidden layers, linear output, Adam updates.
package nn

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"os"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// Config describes a network architecture.
type Config struct {
	InputDim     int
	HiddenDims   []int
	OutputDim    int
	LearningRate float64
}

// Adam hyperparameters.
const (
	adamBeta1 = 0.9
	adamBeta2 = 0.999
	adamEps   = 1e-8
)

// Network is a fully connected regressor. Not safe for concurrent use.
type Network struct {
	cfg   Config
	sizes []int

	weights []*mat.Dense // sizes[l] x sizes[l+1]
	biases  [][]float64  // sizes[l+1]

	// Adam moment estimates, same shapes as weights/biases.
	mW, vW []*mat.Dense
	mB, vB [][]float64
	step   int
}

// New builds a network with Xavier-initialized weights and zero biases.
func New(cfg Config, rng *rand.Rand) (*Network, error) {
	if cfg.InputDim <= 0 || cfg.OutputDim <= 0 {
		return nil, fmt.Errorf("nn: invalid dimensions %dx%d", cfg.InputDim, cfg.OutputDim)
	}
	if cfg.LearningRate <= 0 {
		return nil, fmt.Errorf("nn: learning rate must be positive, got %v", cfg.LearningRate)
	}

	sizes := append([]int{cfg.InputDim}, cfg.HiddenDims...)
	sizes = append(sizes, cfg.OutputDim)

	n := &Network{cfg: cfg, sizes: sizes}
	for l := 0; l < len(sizes)-1; l++ {
		in, out := sizes[l], sizes[l+1]
		scale := math.Sqrt(2.0 / float64(in+out))
		backing := make([]float64, in*out)
		for i := range backing {
			backing[i] = (rng.Float64()*2 - 1) * scale
		}
		n.weights = append(n.weights, mat.NewDense(in, out, backing))
		n.biases = append(n.biases, make([]float64, out))

		n.mW = append(n.mW, mat.NewDense(in, out, nil))
		n.vW = append(n.vW, mat.NewDense(in, out, nil))
		n.mB = append(n.mB, make([]float64, out))
		n.vB = append(n.vB, make([]float64, out))
	}
	return n, nil
}

// Config returns the architecture the network was built with.
func (n *Network) Config() Config { return n.cfg }

// forward runs the batch through all layers and returns the pre-activation
// and post-activation values per layer; acts[0] is the input.
func (n *Network) forward(x *mat.Dense) (zs, acts []*mat.Dense) {
	acts = []*mat.Dense{x}
	a := x
	for l, w := range n.weights {
		rows, _ := a.Dims()
		_, out := w.Dims()
		z := mat.NewDense(rows, out, nil)
		z.Mul(a, w)
		for r := 0; r < rows; r++ {
			for c := 0; c < out; c++ {
				z.Set(r, c, z.At(r, c)+n.biases[l][c])
			}
		}
		zs = append(zs, z)

		if l == len(n.weights)-1 {
			a = z // linear output layer
		} else {
			relu := mat.NewDense(rows, out, nil)
			relu.Apply(func(_, _ int, v float64) float64 { return math.Max(0, v) }, z)
			a = relu
		}
		acts = append(acts, a)
	}
	return zs, acts
}

// Forward computes the network output for a batch, one sample per row.
func (n *Network) Forward(x *mat.Dense) *mat.Dense {
	_, acts := n.forward(x)
	return acts[len(acts)-1]
}

// Predict computes the output for a single input vector.
func (n *Network) Predict(input []float64) []float64 {
	out := n.Forward(mat.NewDense(1, len(input), append([]float64(nil), input...)))
	return append([]float64(nil), out.RawRowView(0)...)
}

// GradFunc maps a batch prediction to the loss value and the gradient of the
// loss with respect to every output element (including any averaging).
type GradFunc func(pred *mat.Dense) (grad *mat.Dense, loss float64)

// TrainCustom runs one forward/backward pass over the batch with a
// caller-supplied output gradient and applies an Adam step. Returns the loss.
func (n *Network) TrainCustom(x *mat.Dense, gradFn GradFunc) float64 {
	zs, acts := n.forward(x)
	pred := acts[len(acts)-1]
	delta, loss := gradFn(pred)

	n.step++
	for l := len(n.weights) - 1; l >= 0; l-- {
		aPrev := acts[l]
		rows, _ := delta.Dims()

		in, out := n.weights[l].Dims()
		gradW := mat.NewDense(in, out, nil)
		gradW.Mul(aPrev.T(), delta)
		gradB := make([]float64, out)
		for r := 0; r < rows; r++ {
			for c := 0; c < out; c++ {
				gradB[c] += delta.At(r, c)
			}
		}

		// Propagate before updating the layer's weights.
		if l > 0 {
			prev := mat.NewDense(rows, in, nil)
			prev.Mul(delta, n.weights[l].T())
			// ReLU derivative on the previous layer's pre-activations.
			z := zs[l-1]
			prev.Apply(func(r, c int, v float64) float64 {
				if z.At(r, c) <= 0 {
					return 0
				}
				return v
			}, prev)
			delta = prev
		}

		n.adamStep(l, gradW, gradB)
	}
	return loss
}

// TrainMSE fits the batch against targets under mean squared error.
func (n *Network) TrainMSE(x, y *mat.Dense) float64 {
	return n.TrainCustom(x, func(pred *mat.Dense) (*mat.Dense, float64) {
		rows, cols := pred.Dims()
		grad := mat.NewDense(rows, cols, nil)
		total := 0.0
		scale := 1.0 / float64(rows*cols)
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				diff := pred.At(r, c) - y.At(r, c)
				total += diff * diff
				grad.Set(r, c, 2*diff*scale)
			}
		}
		return grad, total * scale
	})
}

func (n *Network) adamStep(l int, gradW *mat.Dense, gradB []float64) {
	lr := n.cfg.LearningRate
	c1 := 1 - math.Pow(adamBeta1, float64(n.step))
	c2 := 1 - math.Pow(adamBeta2, float64(n.step))

	in, out := n.weights[l].Dims()
	for r := 0; r < in; r++ {
		for c := 0; c < out; c++ {
			g := gradW.At(r, c)
			m := adamBeta1*n.mW[l].At(r, c) + (1-adamBeta1)*g
			v := adamBeta2*n.vW[l].At(r, c) + (1-adamBeta2)*g*g
			n.mW[l].Set(r, c, m)
			n.vW[l].Set(r, c, v)
			update := lr * (m / c1) / (math.Sqrt(v/c2) + adamEps)
			n.weights[l].Set(r, c, n.weights[l].At(r, c)-update)
		}
	}
	for c := 0; c < out; c++ {
		g := gradB[c]
		m := adamBeta1*n.mB[l][c] + (1-adamBeta1)*g
		v := adamBeta2*n.vB[l][c] + (1-adamBeta2)*g*g
		n.mB[l][c] = m
		n.vB[l][c] = v
		n.biases[l][c] -= lr * (m / c1) / (math.Sqrt(v/c2) + adamEps)
	}
}

// CopyWeightsFrom overwrites this network's parameters with src's. The two
// networks must share an architecture; used for target network syncs.
func (n *Network) CopyWeightsFrom(src *Network) error {
	if len(n.weights) != len(src.weights) {
		return fmt.Errorf("nn: architecture mismatch: %v vs %v", n.sizes, src.sizes)
	}
	for l := range n.weights {
		ar, ac := n.weights[l].Dims()
		br, bc := src.weights[l].Dims()
		if ar != br || ac != bc {
			return fmt.Errorf("nn: layer %d shape mismatch: %dx%d vs %dx%d", l, ar, ac, br, bc)
		}
		n.weights[l].Copy(src.weights[l])
		copy(n.biases[l], src.biases[l])
	}
	return nil
}

// Clone returns an independent copy of the network, including optimizer state.
func (n *Network) Clone() *Network {
	c := &Network{cfg: n.cfg, sizes: append([]int(nil), n.sizes...), step: n.step}
	for l := range n.weights {
		c.weights = append(c.weights, mat.DenseCopyOf(n.weights[l]))
		c.biases = append(c.biases, append([]float64(nil), n.biases[l]...))
		c.mW = append(c.mW, mat.DenseCopyOf(n.mW[l]))
		c.vW = append(c.vW, mat.DenseCopyOf(n.vW[l]))
		c.mB = append(c.mB, append([]float64(nil), n.mB[l]...))
		c.vB = append(c.vB, append([]float64(nil), n.vB[l]...))
	}
	return c
}

// netState is the gob wire form of a network. Optimizer state is not
// persisted: saved models are used for greedy inference or fresh fine-tuning.
type netState struct {
	Config  Config
	Sizes   []int
	Weights [][]float64
	Biases  [][]float64
}

// GobEncode implements gob.GobEncoder so a Network can be embedded in larger
// saved-model structures.
func (n *Network) GobEncode() ([]byte, error) {
	state := netState{Config: n.cfg, Sizes: n.sizes}
	for l := range n.weights {
		state.Weights = append(state.Weights, append([]float64(nil), n.weights[l].RawMatrix().Data...))
		state.Biases = append(state.Biases, append([]float64(nil), n.biases[l]...))
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&state); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (n *Network) GobDecode(data []byte) error {
	var state netState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&state); err != nil {
		return err
	}
	n.cfg = state.Config
	n.sizes = state.Sizes
	n.weights, n.biases = nil, nil
	n.mW, n.vW, n.mB, n.vB = nil, nil, nil, nil
	n.step = 0
	for l := 0; l < len(state.Sizes)-1; l++ {
		in, out := state.Sizes[l], state.Sizes[l+1]
		if len(state.Weights[l]) != in*out || len(state.Biases[l]) != out {
			return fmt.Errorf("nn: corrupt model state: layer %d shape mismatch", l)
		}
		n.weights = append(n.weights, mat.NewDense(in, out, append([]float64(nil), state.Weights[l]...)))
		n.biases = append(n.biases, append([]float64(nil), state.Biases[l]...))
		n.mW = append(n.mW, mat.NewDense(in, out, nil))
		n.vW = append(n.vW, mat.NewDense(in, out, nil))
		n.mB = append(n.mB, make([]float64, out))
		n.vB = append(n.vB, make([]float64, out))
	}
	return nil
}

// Save writes the architecture and parameters to path.
func (n *Network) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create model file: %w", err)
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(n); err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	return nil
}

// Load reads a network previously written by Save.
func Load(path string) (*Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model file: %w", err)
	}
	defer f.Close()
	n := new(Network)
	if err := gob.NewDecoder(f).Decode(n); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	return n, nil
}
