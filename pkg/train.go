package pkg

import (
	"errors"

	mat "github.com/nlpodyssey/spago/pkg/mat32"
	"github.com/nlpodyssey/spago/pkg/mat32/rand"
	"github.com/nlpodyssey/spago/pkg/ml/ag"
	"github.com/nlpodyssey/spago/pkg/ml/nn"
	"github.com/nlpodyssey/spago/pkg/ml/optimizers/gd"
	"github.com/nlpodyssey/spago/pkg/ml/optimizers/gd/adam"
	"github.com/rs/zerolog/log"

	"cruisemlp/pkg/config"
	"cruisemlp/pkg/io"
	"cruisemlp/pkg/model"
)

// ErrNumericInstability marks a batch whose loss is NaN or infinite.
var ErrNumericInstability = errors.New("non-finite loss")

type TrainingParameters struct {
	BatchSize           int
	ValidationBatchSize int
	NumEpochs           int
	LearningRate        float64
	PlateauFactor       float64
	PlateauPatience     int
	PlateauThreshold    float64
	MinLearningRate     float64
	ReportInterval      int
	ReportWindow        int
	ClassWeight         float64
	TimeThreshold       float64
	GradientClip        float64 // 0 disables clipping
	RndSeed             uint64
	Shuffle             bool
	ShuffleSeed         int64
	CheckpointFile      string
	BestCheckpointFile  string // optional
}

func DefaultTrainingParameters() TrainingParameters {
	return TrainingParameters{
		BatchSize:           2048,
		ValidationBatchSize: 1024,
		NumEpochs:           100,
		LearningRate:        5e-4,
		PlateauFactor:       0.5,
		PlateauPatience:     3,
		PlateauThreshold:    1e-4,
		MinLearningRate:     1e-8,
		ReportInterval:      500,
		ReportWindow:        100,
		ClassWeight:         DefaultClassWeight,
		TimeThreshold:       DefaultTimeThreshold,
		RndSeed:             42,
		Shuffle:             true,
		ShuffleSeed:         233,
		CheckpointFile:      "cruiseMLP_saved_model.bin",
	}
}

func (p TrainingParameters) Validate() error {
	invalid := func(reason string) error {
		return &config.ConfigurationError{Reason: reason}
	}
	switch {
	case p.BatchSize <= 0 || p.ValidationBatchSize <= 0:
		return invalid("batch sizes must be positive")
	case p.NumEpochs <= 0:
		return invalid("epochs must be positive")
	case p.LearningRate < 0 || p.MinLearningRate < 0:
		return invalid("learning rates must not be negative")
	case p.PlateauFactor <= 0 || p.PlateauFactor >= 1:
		return invalid("plateau factor must be in (0,1)")
	case p.PlateauPatience < 0:
		return invalid("plateau patience must not be negative")
	case p.ReportInterval <= 0 || p.ReportWindow <= 0:
		return invalid("report interval and window must be positive")
	case p.GradientClip < 0:
		return invalid("gradient clip must not be negative")
	case p.CheckpointFile == "":
		return invalid("checkpoint file is required")
	}
	return nil
}

// Trainer runs mini-batch gradient descent over a Predictor with Adam.
type Trainer struct {
	params    TrainingParameters
	loss      CompositeLoss
	model     model.Predictor
	updater   *adam.Adam
	optimizer *gd.GradientDescent
	rndGen    *rand.LockedRand
	metrics   *Metrics
}

func NewTrainer(m model.Predictor, params TrainingParameters, metrics *Metrics) *Trainer {
	updaterConfig := adam.NewDefaultConfig()
	updaterConfig.StepSize = mat.Float(params.LearningRate)
	updater := adam.New(updaterConfig)

	var options []gd.Option
	if params.GradientClip > 0 {
		options = append(options, gd.ClipGradByValue(mat.Float(params.GradientClip)))
	}

	return &Trainer{
		params:    params,
		loss:      NewCompositeLoss(params.ClassWeight, params.TimeThreshold),
		model:     m,
		updater:   updater,
		optimizer: gd.NewOptimizer(updater, nn.NewDefaultParamsIterator(m), options...),
		rndGen:    rand.NewLockedRand(params.RndSeed),
		metrics:   metrics,
	}
}

// SetLearningRate changes the Adam step size from the next update on.
func (t *Trainer) SetLearningRate(learningRate float64) {
	t.updater.StepSize = mat.Float(learningRate)
}

func (t *Trainer) LearningRate() float64 {
	return float64(t.updater.StepSize)
}

// RunEpoch makes one pass over data in its current order, one optimizer step per batch.
// Batches with a non finite loss are logged and skipped without touching the params, they are
// left out of the returned history and counted in nonFinite.
func (t *Trainer) RunEpoch(epoch int, data *io.DataSet) (history LossHistory, nonFinite int) {
	t.optimizer.IncEpoch()
	data.Rewind()

	step := 0
	for batch := data.Next(); len(batch) > 0; batch = data.Next() {
		loss, ok := t.trainBatch(batch)
		if ok {
			history.Add(loss)
			t.metrics.observeStep(loss)
		} else {
			nonFinite++
			t.metrics.observeNonFinite()
			log.Warn().Err(ErrNumericInstability).Int("epoch", epoch).Int("step", step).
				Float64("loss", loss).Msg("Skipping optimizer update")
		}
		if step%t.params.ReportInterval == 0 && len(history) > 0 {
			log.Info().Int("epoch", epoch).Int("step", step).
				Float64("loss", history.WindowMean(t.params.ReportWindow)).Msg("Training")
		}
		step++
	}
	return history, nonFinite
}

func (t *Trainer) trainBatch(batch io.DataBatch) (float64, bool) {
	t.optimizer.IncBatch()
	nn.ZeroGrad(t.model)

	g := ag.NewGraph(ag.Rand(t.rndGen))
	defer g.Clear()
	input := createInputNodes(batch, g)
	proc := nn.Reify(nn.Context{Graph: g, Mode: nn.Training}, t.model).(model.Predictor)
	classes, times := proc.Forward(input...)

	loss := t.loss.Compute(g, classes, times, batch)
	value := float64(loss.Total.ScalarValue())
	if !isFinite(value) {
		return value, false
	}

	g.Backward(loss.Total)
	t.optimizer.IncExample() // refreshes the Adam step size
	t.optimizer.Optimize()
	return value, true
}

func createInputNodes(batch io.DataBatch, g *ag.Graph) []ag.Node {
	input := make([]ag.Node, len(batch))
	for i := range input {
		input[i] = g.NewVariable(batch[i].Features, false)
	}
	return input
}
