package model

import (
	"fmt"

	mat "github.com/nlpodyssey/spago/pkg/mat32"
	"github.com/nlpodyssey/spago/pkg/ml/ag"
	"github.com/nlpodyssey/spago/pkg/ml/nn"
)

// Predictor is a parameterized differentiable model mapping one feature vector per sample to the
// probability the obstacle commits to the lane and the time it needs to reach the lane center.
// Training and validation depend only on this capability.
type Predictor interface {
	nn.Model
	Forward(xs ...ag.Node) (classes, times []ag.Node)
}

// Param is the value of a single trainable parameter.
type Param struct {
	Rows    int
	Columns int
	Data    []mat.Float
}

// Model is the persisted form of a trained network.
type Model struct {
	MetaData *Metadata
	Params   []Param
}

// NewModel snapshots the params of m.
func NewModel(metaData *Metadata, m nn.Model) *Model {
	return &Model{
		MetaData: metaData,
		Params:   Snapshot(m),
	}
}

// Network rebuilds the network described by the metadata and loads the stored params into it.
func (m *Model) Network() (*Network, error) {
	if m.MetaData == nil {
		return nil, fmt.Errorf("model carries no metadata")
	}
	network := NewNetwork(m.MetaData.Config)
	if err := Restore(network, m.Params); err != nil {
		return nil, err
	}
	return network, nil
}

// Snapshot copies the values of every param of m in traversal order.
func Snapshot(m nn.Model) []Param {
	var result []Param
	nn.ForEachParam(m, func(param nn.Param) {
		value := param.Value()
		data := make([]mat.Float, len(value.Data()))
		copy(data, value.Data())
		result = append(result, Param{
			Rows:    value.Rows(),
			Columns: value.Columns(),
			Data:    data,
		})
	})
	return result
}

// Restore overwrites the params of m with a snapshot taken from a model of the same topology.
func Restore(m nn.Model, params []Param) error {
	var targets []nn.Param
	nn.ForEachParam(m, func(param nn.Param) {
		targets = append(targets, param)
	})
	if len(targets) != len(params) {
		return fmt.Errorf("snapshot holds %d params, model has %d", len(params), len(targets))
	}
	for i, param := range targets {
		value := param.Value()
		if value.Rows() != params[i].Rows || value.Columns() != params[i].Columns {
			return fmt.Errorf("param %d: snapshot shape %dx%d does not match model shape %dx%d",
				i, params[i].Rows, params[i].Columns, value.Rows(), value.Columns())
		}
	}
	for i, param := range targets {
		copy(param.Value().Data(), params[i].Data)
	}
	return nil
}
