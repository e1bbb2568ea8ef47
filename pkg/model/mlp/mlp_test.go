package mlp

import (
	"testing"

	mat "github.com/nlpodyssey/spago/pkg/mat32"
	"github.com/nlpodyssey/spago/pkg/mat32/rand"
	"github.com/nlpodyssey/spago/pkg/ml/ag"
	"github.com/nlpodyssey/spago/pkg/ml/nn"
	"github.com/stretchr/testify/require"
)

func forward(m *Model, mode nn.ProcessingMode, xs ...mat.Matrix) []mat.Matrix {
	g := ag.NewGraph(ag.Rand(rand.NewLockedRand(1)))
	defer g.Clear()
	input := make([]ag.Node, len(xs))
	for i, x := range xs {
		input[i] = g.NewVariable(x, false)
	}
	proc := nn.Reify(nn.Context{Graph: g, Mode: mode}, m).(*Model)
	result := make([]mat.Matrix, len(xs))
	for i, y := range proc.Forward(input...) {
		result[i] = y.Value().Clone()
	}
	return result
}

func TestModel_Forward(t *testing.T) {
	tests := []struct {
		sizes  []int
		output Activation
	}{
		{sizes: []int{6, 4, 1}, output: Sigmoid},
		{sizes: []int{6, 5, 3, 2}, output: Identity},
		{sizes: []int{3, 1}, output: ReLU},
	}

	for _, tt := range tests {
		m := New(tt.sizes, ReLU, tt.output, 0.5)
		m.Init(rand.NewLockedRand(42))
		require.Len(t, m.Layers, len(tt.sizes)-1)

		x := mat.NewInitVecDense(tt.sizes[0], 0.3)
		ys := forward(m, nn.Inference, x, x)
		require.Len(t, ys, 2)
		out := tt.sizes[len(tt.sizes)-1]
		require.Equal(t, out, ys[0].Rows())
		require.Equal(t, ys[0].Data(), ys[1].Data())

		for _, v := range ys[0].Data() {
			switch tt.output {
			case Sigmoid:
				require.True(t, v >= 0 && v <= 1)
			case ReLU:
				require.GreaterOrEqual(t, v, mat.Float(0))
			}
		}
	}
}

func TestModel_DropoutOnlyWhileTraining(t *testing.T) {
	m := New([]int{8, 16, 16, 1}, Sigmoid, Identity, 0)
	m.Init(rand.NewLockedRand(7))
	x := mat.NewInitVecDense(8, 1)

	// Without dropout both modes agree
	require.Equal(t, forward(m, nn.Inference, x)[0].Data(), forward(m, nn.Training, x)[0].Data())

	m.Dropout = 0.5
	inference := forward(m, nn.Inference, x)[0].Data()
	require.Equal(t, inference, forward(m, nn.Inference, x)[0].Data())
	require.NotEqual(t, inference, forward(m, nn.Training, x)[0].Data())
}
