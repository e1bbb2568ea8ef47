package model

import (
	"time"

	"cruisemlp/pkg/config"
)

// Metadata describes the run and epoch a checkpoint was taken at.
type Metadata struct {
	RunID string
	Epoch int

	// Config is the topology the params belong to, it is enough to rebuild the network
	Config config.Model

	LearningRate   float64
	TrainLoss      float64
	ValidationLoss float64
	Accuracy       float64
	SavedAt        time.Time
}
