package pkg

import (
	"github.com/prometheus/client_golang/prometheus"

	"cruisemlp/pkg/history"
)

const metricsNamespace = "cruise_mlp"

// Metrics exposes training progress to prometheus. A nil *Metrics records nothing.
type Metrics struct {
	Steps          prometheus.Counter
	NonFinite      prometheus.Counter
	StepLoss       prometheus.Gauge
	Epoch          prometheus.Gauge
	TrainLoss      prometheus.Gauge
	ValidationLoss prometheus.Gauge
	Accuracy       prometheus.Gauge
	LearningRate   prometheus.Gauge
	Checkpoints    *prometheus.CounterVec
}

func gauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: metricsNamespace, Name: name, Help: help})
}

func counter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{Namespace: metricsNamespace, Name: name, Help: help})
}

// NewMetrics creates the training metrics and registers them with registerer.
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Steps:          counter("steps_total", "Optimizer steps applied."),
		NonFinite:      counter("non_finite_batches_total", "Training batches skipped for a non finite loss."),
		StepLoss:       gauge("step_loss", "Loss of the last training batch."),
		Epoch:          gauge("epoch", "Last completed epoch."),
		TrainLoss:      gauge("train_loss", "Mean training loss of the last epoch."),
		ValidationLoss: gauge("validation_loss", "Mean validation loss of the last epoch."),
		Accuracy:       gauge("validation_accuracy", "Validation accuracy of the last epoch."),
		LearningRate:   gauge("learning_rate", "Current learning rate."),
		Checkpoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "checkpoints_total",
			Help:      "Checkpoints written, by kind.",
		}, []string{"kind"}),
	}
	collectors := []prometheus.Collector{m.Steps, m.NonFinite, m.StepLoss, m.Epoch, m.TrainLoss,
		m.ValidationLoss, m.Accuracy, m.LearningRate, m.Checkpoints}
	for _, c := range collectors {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeStep(loss float64) {
	if m == nil {
		return
	}
	m.Steps.Inc()
	m.StepLoss.Set(loss)
}

func (m *Metrics) observeNonFinite() {
	if m == nil {
		return
	}
	m.NonFinite.Inc()
}

func (m *Metrics) observeEpoch(record history.Epoch) {
	if m == nil {
		return
	}
	m.Epoch.Set(float64(record.Epoch))
	m.TrainLoss.Set(record.TrainLoss)
	m.ValidationLoss.Set(record.ValidationLoss)
	m.Accuracy.Set(record.Accuracy)
	m.LearningRate.Set(record.LearningRate)
}

func (m *Metrics) observeCheckpoint(kind string) {
	if m == nil {
		return
	}
	m.Checkpoints.WithLabelValues(kind).Inc()
}
