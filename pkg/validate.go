package pkg

import (
	"fmt"
	gio "io"
	"math"

	"github.com/nlpodyssey/spago/pkg/ml/ag"
	"github.com/nlpodyssey/spago/pkg/ml/nn"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"

	"cruisemlp/pkg/config"
	"cruisemlp/pkg/io"
	"cruisemlp/pkg/model"
)

// Evaluation summarizes a forward only pass over held out data.
type Evaluation struct {
	// Loss is the mean composite loss over the batches with a finite loss
	Loss float64
	// Accuracy is the share of samples where (p > 0.5) matches the class label
	Accuracy float64
	// TimeRSquared is the coefficient of determination of the time head over the gated samples
	TimeRSquared float64
	Samples      int
	Batches      int
	NonFinite    int
}

type Validator struct {
	loss CompositeLoss
}

func NewValidator(loss CompositeLoss) *Validator {
	return &Validator{loss: loss}
}

// Evaluate runs m in inference mode over data. Params are only read.
func (v *Validator) Evaluate(m model.Predictor, data *io.DataSet) Evaluation {
	data.Rewind()

	var history LossHistory
	var estimated, observed []float64
	result := Evaluation{}
	correct := 0

	for batch := data.Next(); len(batch) > 0; batch = data.Next() {
		g := ag.NewGraph()
		proc := nn.Reify(nn.Context{Graph: g, Mode: nn.Inference}, m).(model.Predictor)
		classes, times := proc.Forward(createInputNodes(batch, g)...)

		loss := float64(v.loss.Compute(g, classes, times, batch).Total.ScalarValue())
		if isFinite(loss) {
			history.Add(loss)
		} else {
			result.NonFinite++
			log.Warn().Err(ErrNumericInstability).Int("batch", result.Batches).Msg("Validation batch excluded from the mean loss")
		}

		for i, record := range batch {
			if (classes[i].ScalarValue() > 0.5) == (record.Class == 1) {
				correct++
			}
			if record.Time < v.loss.TimeThreshold {
				estimated = append(estimated, float64(v.loss.gatedTime(times[i].ScalarValue(), record.Time)))
				observed = append(observed, float64(record.Time))
			}
		}
		result.Samples += len(batch)
		result.Batches++
		g.Clear()
	}

	result.Loss = history.Mean()
	result.Accuracy = math.NaN()
	if result.Samples > 0 {
		result.Accuracy = float64(correct) / float64(result.Samples)
	}
	result.TimeRSquared = math.NaN()
	if len(observed) > 1 {
		result.TimeRSquared = stat.RSquaredFrom(estimated, observed, nil)
	}
	return result
}

// Test evaluates a checkpoint on a feature file and writes a summary table to out.
func Test(modelFileName, inputFileName string, batchSize int, loss CompositeLoss, out gio.Writer) (Evaluation, error) {
	if batchSize <= 0 {
		return Evaluation{}, &config.ConfigurationError{Reason: fmt.Sprintf("batch size must be positive, got %d", batchSize)}
	}
	m, err := io.LoadModelFile(modelFileName)
	if err != nil {
		return Evaluation{}, fmt.Errorf("error loading model from file %s: %w", modelFileName, err)
	}
	network, err := m.Network()
	if err != nil {
		return Evaluation{}, fmt.Errorf("error restoring model from file %s: %w", modelFileName, err)
	}

	data, err := loadDataSet(inputFileName, m.MetaData.Config.Dimensions, batchSize)
	if err != nil {
		return Evaluation{}, err
	}

	result := NewValidator(loss).Evaluate(network, data)
	log.Info().Str("run", m.MetaData.RunID).Int("epoch", m.MetaData.Epoch).
		Float64("loss", result.Loss).Float64("accuracy", result.Accuracy).Msg("Evaluation")

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Checkpoint", "Epoch", "Samples", "Loss", "Accuracy", "Time R2", "Non finite"})
	table.Append([]string{
		modelFileName,
		fmt.Sprint(m.MetaData.Epoch),
		fmt.Sprint(result.Samples),
		fmt.Sprintf("%.5f", result.Loss),
		fmt.Sprintf("%.5f", result.Accuracy),
		fmt.Sprintf("%.5f", result.TimeRSquared),
		fmt.Sprint(result.NonFinite),
	})
	table.Render()
	return result, nil
}
