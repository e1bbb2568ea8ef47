package pkg

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nlpodyssey/spago/pkg/mat32/rand"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"cruisemlp/pkg/config"
	"cruisemlp/pkg/history"
	"cruisemlp/pkg/io"
	"cruisemlp/pkg/model"
)

func testModelConfig() config.Model {
	return config.Model{
		Dimensions: config.Dimensions{DimInput: 3, DimHidden1: 4, DimHidden2: 3, DimOutput: 2},
		Topology:   config.Topology{ClassifierHidden: []int{4, 2}, Dropout: 0.1, Cascade: true},
	}
}

// writeTestCSV writes a header and rows of dims.Columns() values.
func writeTestCSV(t *testing.T, dir, name string, rows int, dims config.Dimensions) string {
	var b strings.Builder
	columns := dims.Columns()
	header := make([]string, columns)
	for j := range header {
		header[j] = fmt.Sprintf("c%d", j)
	}
	b.WriteString(strings.Join(header, ",") + "\n")
	for i := 0; i < rows; i++ {
		values := make([]string, columns)
		for j := 0; j < dims.DimInput; j++ {
			values[j] = fmt.Sprintf("%.3f", float64((i+j)%5)/5)
		}
		values[columns-2] = fmt.Sprint(i%4 - 1)
		values[columns-1] = fmt.Sprintf("%.1f", float64(i%13))
		b.WriteString(strings.Join(values, ",") + "\n")
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0600))
	return path
}

type recorder struct {
	epochs []history.Epoch
}

func (r *recorder) Record(epoch history.Epoch) error {
	r.epochs = append(r.epochs, epoch)
	return nil
}

func newTestNetwork() *model.Network {
	network := model.NewNetwork(testModelConfig())
	network.Init(rand.NewLockedRand(42))
	return network
}

func TestOrchestratorRun(t *testing.T) {
	dir := t.TempDir()
	params := testParameters()
	params.CheckpointFile = filepath.Join(dir, "latest.bin")
	params.BestCheckpointFile = filepath.Join(dir, "best.bin")

	registry := prometheus.NewRegistry()
	metrics, err := NewMetrics(registry)
	require.NoError(t, err)
	rec := &recorder{}

	network := newTestNetwork()
	o := NewOrchestrator(network, params, WithMetrics(metrics), WithRecorder(rec), WithRunID("run-1"))
	require.Equal(t, Initializing, o.State())

	report, err := o.Run(newTestDataSet(10, params.BatchSize), newTestDataSet(7, params.ValidationBatchSize))
	require.NoError(t, err)
	require.Equal(t, Done, o.State())
	require.Equal(t, Done, report.State)
	require.Equal(t, "run-1", report.RunID)
	require.Len(t, report.Epochs, params.NumEpochs)
	require.Equal(t, report.Epochs, rec.epochs)
	require.Equal(t, 0, report.Epochs[0].Epoch)
	require.True(t, report.Epochs[0].Improved)
	require.GreaterOrEqual(t, report.BestEpoch, 0)

	// The latest checkpoint holds the last epoch and reloads into a fresh network
	latest, err := io.LoadModelFile(params.CheckpointFile)
	require.NoError(t, err)
	require.Equal(t, "run-1", latest.MetaData.RunID)
	require.Equal(t, params.NumEpochs-1, latest.MetaData.Epoch)
	require.Equal(t, testModelConfig(), latest.MetaData.Config)
	restored, err := latest.Network()
	require.NoError(t, err)
	require.Equal(t, model.Snapshot(network), model.Snapshot(restored))

	best, err := io.LoadModelFile(params.BestCheckpointFile)
	require.NoError(t, err)
	require.Equal(t, report.BestEpoch, best.MetaData.Epoch)
	require.Equal(t, report.BestValidationLoss, best.MetaData.ValidationLoss)

	require.Equal(t, float64(params.NumEpochs-1), testutil.ToFloat64(metrics.Epoch))
	require.Equal(t, float64(params.NumEpochs), testutil.ToFloat64(metrics.Checkpoints.WithLabelValues("latest")))
	require.Equal(t, float64(params.NumEpochs*3), testutil.ToFloat64(metrics.Steps))
	require.Equal(t, report.Epochs[params.NumEpochs-1].LearningRate, testutil.ToFloat64(metrics.LearningRate))
}

func TestOrchestratorCheckpointStructureIsStable(t *testing.T) {
	dir := t.TempDir()
	params := testParameters()
	params.NumEpochs = 1
	params.CheckpointFile = filepath.Join(dir, "latest.bin")

	network := newTestNetwork()
	o := NewOrchestrator(network, params)
	train := newTestDataSet(10, params.BatchSize)
	valid := newTestDataSet(7, params.ValidationBatchSize)

	_, err := o.Run(train, valid)
	require.NoError(t, err)
	first, err := io.LoadModelFile(params.CheckpointFile)
	require.NoError(t, err)

	_, err = o.Run(train, valid)
	require.NoError(t, err)
	second, err := io.LoadModelFile(params.CheckpointFile)
	require.NoError(t, err)

	require.Len(t, second.Params, len(first.Params))
	for i := range first.Params {
		require.Equal(t, first.Params[i].Rows, second.Params[i].Rows)
		require.Equal(t, first.Params[i].Columns, second.Params[i].Columns)
	}
	require.NotEqual(t, first.Params, second.Params)
}

func TestOrchestratorAbortsOnCheckpointError(t *testing.T) {
	params := testParameters()
	params.CheckpointFile = filepath.Join(t.TempDir(), "missing", "latest.bin")
	rec := &recorder{}

	o := NewOrchestrator(newTestNetwork(), params, WithRecorder(rec))
	report, err := o.Run(newTestDataSet(10, params.BatchSize), newTestDataSet(7, params.ValidationBatchSize))
	require.Error(t, err)
	require.Equal(t, Aborted, o.State())
	require.Equal(t, Aborted, report.State)
	require.Empty(t, report.Epochs)
	require.Empty(t, rec.epochs)
}

func TestTrain(t *testing.T) {
	dir := t.TempDir()
	cfg := testModelConfig()
	params := testParameters()
	params.NumEpochs = 2
	params.CheckpointFile = filepath.Join(dir, "cruise.bin")

	trainFile := writeTestCSV(t, dir, "train.csv", 30, cfg.Dimensions)
	validFile := writeTestCSV(t, dir, "valid.csv", 9, cfg.Dimensions)

	report, err := Train(trainFile, validFile, cfg, params)
	require.NoError(t, err)
	require.Equal(t, Done, report.State)
	require.Len(t, report.Epochs, 2)
	require.NotEmpty(t, report.RunID)

	checkpoint, err := io.LoadModelFile(params.CheckpointFile)
	require.NoError(t, err)
	require.Equal(t, report.RunID, checkpoint.MetaData.RunID)
	require.Equal(t, 1, checkpoint.MetaData.Epoch)
}

func TestTrainErrors(t *testing.T) {
	dir := t.TempDir()
	cfg := testModelConfig()
	params := testParameters()
	params.CheckpointFile = filepath.Join(dir, "cruise.bin")
	validFile := writeTestCSV(t, dir, "valid.csv", 9, cfg.Dimensions)

	var cfgErr *config.ConfigurationError
	_, err := Train(filepath.Join(dir, "missing.csv"), validFile, cfg, params)
	require.ErrorAs(t, err, &cfgErr)
	require.Contains(t, err.Error(), "missing.csv")

	_, err = Train(validFile, validFile, config.Model{}, params)
	require.ErrorAs(t, err, &cfgErr)

	params.NumEpochs = 0
	_, err = Train(validFile, validFile, cfg, params)
	require.ErrorAs(t, err, &cfgErr)

	_, err = os.Stat(filepath.Join(dir, "cruise.bin"))
	require.True(t, os.IsNotExist(err))
}

func TestStateString(t *testing.T) {
	require.Equal(t, "training", TrainingEpoch.String())
	require.Equal(t, "aborted", Aborted.String())
	require.Equal(t, "State(42)", State(42).String())
}

func TestMetricsRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := NewMetrics(registry)
	require.NoError(t, err)
	_, err = NewMetrics(registry)
	require.Error(t, err)

	var m *Metrics
	m.observeStep(1)
	m.observeCheckpoint("latest")
}
