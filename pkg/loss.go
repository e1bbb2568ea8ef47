package pkg

import (
	"math"

	mat "github.com/nlpodyssey/spago/pkg/mat32"
	"github.com/nlpodyssey/spago/pkg/ml/ag"
	"gonum.org/v1/gonum/stat"

	"cruisemlp/pkg/io"
)

const (
	DefaultClassWeight   = 4.0
	DefaultTimeThreshold = 10.0

	// probabilityEpsilon keeps the cross entropy finite for probabilities of exactly 0 or 1
	probabilityEpsilon = 1e-6
)

// CompositeLoss combines the binary cross entropy of the classification head with the gated
// squared error of the time head: ClassWeight*BCE + MSE.
//
// Samples whose time target is at or above TimeThreshold contribute no time residual.
type CompositeLoss struct {
	ClassWeight   mat.Float
	TimeThreshold mat.Float
}

// Loss holds the graph nodes of a batch loss. Total is the node to differentiate.
type Loss struct {
	Total ag.Node
	Class ag.Node
	Time  ag.Node
}

func NewCompositeLoss(classWeight, timeThreshold float64) CompositeLoss {
	return CompositeLoss{ClassWeight: mat.Float(classWeight), TimeThreshold: mat.Float(timeThreshold)}
}

// Compute builds the batch loss on g. classes and times are the 1x1 outputs of the two heads,
// aligned with batch.
func (l CompositeLoss) Compute(g *ag.Graph, classes, times []ag.Node, batch io.DataBatch) Loss {
	classLoss := g.NewScalar(0)
	timeLoss := g.NewScalar(0)
	for i, record := range batch {
		classLoss = g.Add(classLoss, binaryCrossEntropy(g, classes[i], record.Class))
		if record.Time < l.TimeThreshold {
			timeLoss = g.Add(timeLoss, g.Square(g.SubScalar(times[i], g.Constant(record.Time))))
		}
	}
	batchSize := g.NewScalar(mat.Float(len(batch)))
	classLoss = g.Div(classLoss, batchSize)
	timeLoss = g.Div(timeLoss, batchSize)

	return Loss{
		Total: g.Add(g.ProdScalar(classLoss, g.Constant(l.ClassWeight)), timeLoss),
		Class: classLoss,
		Time:  timeLoss,
	}
}

// gatedTime is the time prediction the loss compares with the target.
func (l CompositeLoss) gatedTime(prediction, target mat.Float) mat.Float {
	if target < l.TimeThreshold {
		return prediction
	}
	return target
}

// binaryCrossEntropy is NaN, without gradient, when p is not a probability.
func binaryCrossEntropy(g *ag.Graph, p ag.Node, label mat.Float) ag.Node {
	if v := float64(p.ScalarValue()); !isFinite(v) || v < 0 || v > 1 {
		return g.NewScalar(mat.Float(math.NaN()))
	}
	p = g.AddScalar(g.ProdScalar(p, g.Constant(1-2*probabilityEpsilon)), g.Constant(probabilityEpsilon))
	complement := g.Neg(g.SubScalar(p, g.Constant(1)))
	positive := g.ProdScalar(g.Log(p), g.Constant(label))
	negative := g.ProdScalar(g.Log(complement), g.Constant(1-label))
	return g.Neg(g.Add(positive, negative))
}

// LossHistory is the sequence of batch losses of one pass.
type LossHistory []float64

func (h *LossHistory) Add(loss float64) {
	*h = append(*h, loss)
}

// Mean is NaN when the history is empty.
func (h LossHistory) Mean() float64 {
	if len(h) == 0 {
		return math.NaN()
	}
	return stat.Mean(h, nil)
}

// WindowMean is the mean of the last n losses.
func (h LossHistory) WindowMean(n int) float64 {
	if n > 0 && len(h) > n {
		return h[len(h)-n:].Mean()
	}
	return h.Mean()
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
