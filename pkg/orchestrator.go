package pkg

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/guptarohit/asciigraph"
	"github.com/nlpodyssey/spago/pkg/mat32/rand"
	"github.com/rs/zerolog/log"

	"cruisemlp/pkg/config"
	"cruisemlp/pkg/history"
	"cruisemlp/pkg/io"
	"cruisemlp/pkg/model"
)

type State int

const (
	Initializing State = iota
	TrainingEpoch
	Validating
	Scheduling
	Checkpointing
	Done
	Aborted
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case TrainingEpoch:
		return "training"
	case Validating:
		return "validating"
	case Scheduling:
		return "scheduling"
	case Checkpointing:
		return "checkpointing"
	case Done:
		return "done"
	case Aborted:
		return "aborted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Recorder persists the outcome of every epoch.
type Recorder interface {
	Record(epoch history.Epoch) error
}

type Option func(o *Orchestrator)

func WithMetrics(metrics *Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = metrics
	}
}

func WithRecorder(recorder Recorder) Option {
	return func(o *Orchestrator) {
		o.recorder = recorder
	}
}

func WithRunID(runID string) Option {
	return func(o *Orchestrator) {
		o.runID = runID
	}
}

// Report is the outcome of a run.
type Report struct {
	RunID              string
	Epochs             []history.Epoch
	BestEpoch          int
	BestValidationLoss float64
	State              State
}

// Orchestrator runs the epoch loop: train, validate, schedule the learning rate, checkpoint.
// The checkpoint file is overwritten after every epoch.
type Orchestrator struct {
	params    TrainingParameters
	network   *model.Network
	trainer   *Trainer
	validator *Validator
	scheduler *PlateauScheduler
	runID     string
	state     State
	metrics   *Metrics
	recorder  Recorder
}

func NewOrchestrator(network *model.Network, params TrainingParameters, options ...Option) *Orchestrator {
	o := &Orchestrator{
		params:  params,
		network: network,
		runID:   uuid.New().String(),
		state:   Initializing,
	}
	for _, option := range options {
		option(o)
	}
	o.trainer = NewTrainer(network, params, o.metrics)
	o.validator = NewValidator(NewCompositeLoss(params.ClassWeight, params.TimeThreshold))
	o.scheduler = NewPlateauScheduler(params.LearningRate, params.PlateauFactor, params.PlateauPatience,
		params.MinLearningRate, params.PlateauThreshold)
	return o
}

func (o *Orchestrator) State() State {
	return o.state
}

func (o *Orchestrator) RunID() string {
	return o.runID
}

func (o *Orchestrator) setState(state State) {
	o.state = state
	log.Debug().Str("run", o.runID).Str("state", state.String()).Msg("")
}

// Run trains for the configured number of epochs. A failed checkpoint write aborts the run.
func (o *Orchestrator) Run(train, valid *io.DataSet) (Report, error) {
	report := Report{RunID: o.runID, BestEpoch: -1, BestValidationLoss: math.Inf(1)}
	log.Info().Str("run", o.runID).Int("train_samples", train.Size()).Int("valid_samples", valid.Size()).
		Int("epochs", o.params.NumEpochs).Float64("learning_rate", o.trainer.LearningRate()).Msg("Starting training")

	for epoch := 0; epoch < o.params.NumEpochs; epoch++ {
		o.setState(TrainingEpoch)
		losses, nonFinite := o.trainer.RunEpoch(epoch, train)

		o.setState(Validating)
		evaluation := o.validator.Evaluate(o.network, valid)

		o.setState(Scheduling)
		plateau := o.scheduler.Step(evaluation.Loss)
		if plateau.Reduced {
			o.trainer.SetLearningRate(plateau.LearningRate)
			log.Info().Int("epoch", epoch).Float64("learning_rate", plateau.LearningRate).Msg("Reducing learning rate")
		}

		record := history.Epoch{
			RunID:          o.runID,
			Epoch:          epoch,
			TrainLoss:      losses.Mean(),
			ValidationLoss: evaluation.Loss,
			Accuracy:       evaluation.Accuracy,
			LearningRate:   plateau.LearningRate,
			NonFinite:      nonFinite + evaluation.NonFinite,
			Improved:       plateau.Improved,
			RecordedAt:     time.Now(),
		}
		log.Info().Int("epoch", epoch).
			Float64("train_loss", record.TrainLoss).
			Float64("valid_loss", record.ValidationLoss).
			Float64("accuracy", record.Accuracy).
			Float64("time_r2", evaluation.TimeRSquared).
			Float64("learning_rate", record.LearningRate).
			Msg("Epoch")

		o.setState(Checkpointing)
		if err := o.checkpoint(record); err != nil {
			o.setState(Aborted)
			report.State = o.state
			return report, err
		}

		if plateau.Improved {
			report.BestEpoch = epoch
			report.BestValidationLoss = evaluation.Loss
		}
		report.Epochs = append(report.Epochs, record)
		o.metrics.observeEpoch(record)
		if o.recorder != nil {
			if err := o.recorder.Record(record); err != nil {
				log.Error().Err(err).Int("epoch", epoch).Msg("Error recording epoch history")
			}
		}
	}

	o.setState(Done)
	report.State = o.state
	log.Info().Str("run", o.runID).Int("best_epoch", report.BestEpoch).
		Float64("best_valid_loss", report.BestValidationLoss).Msg("Training done")
	if curve := validationCurve(report.Epochs); len(curve) > 1 {
		log.Info().Msg("\n" + asciigraph.Plot(curve, asciigraph.Height(10), asciigraph.Caption("validation loss")))
	}
	return report, nil
}

// checkpoint writes the latest checkpoint, and the best one when the epoch improved the validation loss.
func (o *Orchestrator) checkpoint(record history.Epoch) error {
	m := model.NewModel(&model.Metadata{
		RunID:          o.runID,
		Epoch:          record.Epoch,
		Config:         o.network.Config,
		LearningRate:   record.LearningRate,
		TrainLoss:      record.TrainLoss,
		ValidationLoss: record.ValidationLoss,
		Accuracy:       record.Accuracy,
		SavedAt:        record.RecordedAt,
	}, o.network)

	if err := io.SaveModelFile(m, o.params.CheckpointFile); err != nil {
		return err
	}
	o.metrics.observeCheckpoint("latest")

	if o.params.BestCheckpointFile != "" && record.Improved {
		if err := io.SaveModelFile(m, o.params.BestCheckpointFile); err != nil {
			return err
		}
		o.metrics.observeCheckpoint("best")
		log.Info().Int("epoch", record.Epoch).Str("file", o.params.BestCheckpointFile).Msg("Saved best checkpoint")
	}
	return nil
}

func validationCurve(epochs []history.Epoch) []float64 {
	var result []float64
	for _, e := range epochs {
		if isFinite(e.ValidationLoss) {
			result = append(result, e.ValidationLoss)
		}
	}
	return result
}

// Train loads the training and validation files, builds a freshly initialized network and runs the
// epoch loop on it.
func Train(trainFile, validFile string, cfg config.Model, params TrainingParameters, options ...Option) (Report, error) {
	if err := cfg.Validate(); err != nil {
		return Report{}, err
	}
	if err := params.Validate(); err != nil {
		return Report{}, err
	}

	train, err := loadDataSet(trainFile, cfg.Dimensions, params.BatchSize)
	if err != nil {
		return Report{}, fmt.Errorf("error reading training data: %w", err)
	}
	valid, err := loadDataSet(validFile, cfg.Dimensions, params.ValidationBatchSize)
	if err != nil {
		return Report{}, fmt.Errorf("error reading validation data: %w", err)
	}
	if params.Shuffle {
		train.Shuffle(params.ShuffleSeed)
		valid.Shuffle(params.ShuffleSeed)
	}

	network := model.NewNetwork(cfg)
	network.Init(rand.NewLockedRand(params.RndSeed))
	return NewOrchestrator(network, params, options...).Run(train, valid)
}
