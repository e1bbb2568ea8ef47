package mlp

import (
	mat "github.com/nlpodyssey/spago/pkg/mat32"
	"github.com/nlpodyssey/spago/pkg/mat32/rand"
	"github.com/nlpodyssey/spago/pkg/ml/ag"
	"github.com/nlpodyssey/spago/pkg/ml/initializers"
	"github.com/nlpodyssey/spago/pkg/ml/nn"
	"github.com/nlpodyssey/spago/pkg/ml/nn/linear"
)

var (
	_ nn.Model = &Model{}
)

type Activation int

const (
	Identity Activation = iota
	Sigmoid
	ReLU
)

func (a Activation) apply(g *ag.Graph, x ag.Node) ag.Node {
	switch a {
	case Sigmoid:
		return g.Sigmoid(x)
	case ReLU:
		return g.ReLU(x)
	default:
		return x
	}
}

func (a Activation) gain() mat.Float {
	switch a {
	case Sigmoid:
		return initializers.Gain(ag.OpSigmoid)
	case ReLU:
		return initializers.Gain(ag.OpReLU)
	default:
		return initializers.Gain(ag.OpIdentity)
	}
}

// Model is a stack of fully connected layers. Hidden is applied after every layer but the last,
// which is followed by Output.
type Model struct {
	nn.BaseModel
	Layers  []*linear.Model
	Hidden  Activation
	Output  Activation
	Dropout mat.Float
}

// New builds a stack whose layer widths are sizes, sizes[0] being the input dimension.
// Dropout is applied to the hidden activations while training.
func New(sizes []int, hidden, output Activation, dropout float64) *Model {
	layers := make([]*linear.Model, len(sizes)-1)
	for i := range layers {
		layers[i] = linear.New(sizes[i], sizes[i+1])
	}
	return &Model{
		Layers:  layers,
		Hidden:  hidden,
		Output:  output,
		Dropout: mat.Float(dropout),
	}
}

func (m *Model) Init(generator *rand.LockedRand) {
	for i, layer := range m.Layers {
		activation := m.Hidden
		if i == len(m.Layers)-1 {
			activation = m.Output
		}
		initializers.XavierUniform(layer.W.Value(), activation.gain(), generator)
	}
}

func (m *Model) Forward(xs ...ag.Node) []ag.Node {
	g := m.Graph()
	ys := xs
	last := len(m.Layers) - 1
	for i, layer := range m.Layers {
		ys = layer.Forward(ys...)
		if i == last {
			for k := range ys {
				ys[k] = m.Output.apply(g, ys[k])
			}
			break
		}
		for k := range ys {
			ys[k] = m.Hidden.apply(g, ys[k])
			if m.Dropout > 0 && m.Mode() == nn.Training {
				ys[k] = g.Dropout(ys[k], m.Dropout)
			}
		}
	}
	return ys
}
