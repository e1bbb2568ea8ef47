package model

import (
	"github.com/nlpodyssey/spago/pkg/mat32/rand"
	"github.com/nlpodyssey/spago/pkg/ml/ag"
	"github.com/nlpodyssey/spago/pkg/ml/nn"

	"cruisemlp/pkg/config"
	"cruisemlp/pkg/model/mlp"
)

var (
	_ Predictor = &Network{}
)

// Network is the two headed cruise predictor. The classifier head estimates the lane commitment
// probability, the regressor head the time to reach the lane center, which is never negative.
// With Cascade set the regressor also sees the classifier output.
type Network struct {
	nn.BaseModel
	Config     config.Model
	Classifier *mlp.Model
	Regressor  *mlp.Model
}

func NewNetwork(cfg config.Model) *Network {
	classifierSizes := append([]int{cfg.DimInput}, cfg.ClassifierHidden...)
	classifierSizes = append(classifierSizes, 1)

	regressorInput := cfg.DimInput
	if cfg.Cascade {
		regressorInput++
	}
	regressorSizes := []int{regressorInput, cfg.DimHidden1, cfg.DimHidden2, 1}

	return &Network{
		Config:     cfg,
		Classifier: mlp.New(classifierSizes, mlp.Sigmoid, mlp.Sigmoid, cfg.Dropout),
		Regressor:  mlp.New(regressorSizes, mlp.ReLU, mlp.ReLU, cfg.Dropout),
	}
}

func (m *Network) Init(generator *rand.LockedRand) {
	m.Classifier.Init(generator)
	m.Regressor.Init(generator)
}

// Forward returns, per input, a 1x1 probability node and a 1x1 time node.
func (m *Network) Forward(xs ...ag.Node) (classes, times []ag.Node) {
	g := m.Graph()
	classes = m.Classifier.Forward(xs...)
	regressorInput := xs
	if m.Config.Cascade {
		regressorInput = make([]ag.Node, len(xs))
		for i := range xs {
			regressorInput[i] = g.Concat(xs[i], classes[i])
		}
	}
	times = m.Regressor.Forward(regressorInput...)
	return classes, times
}
