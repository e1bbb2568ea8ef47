package pkg

import (
	"math"
)

// minLearningRateDelta is the smallest reduction the scheduler applies, smaller ones are ignored.
const minLearningRateDelta = 1e-8

// PlateauScheduler multiplies the learning rate by Factor once the validation loss has not improved
// for more than Patience consecutive epochs, so with Patience 0 every bad epoch reduces it.
// The learning rate never drops below MinLearningRate.
//
// A loss improves when it is lower than the best seen loss by more than the relative Threshold.
// Non finite losses never improve.
type PlateauScheduler struct {
	Factor          float64
	Patience        int
	MinLearningRate float64
	Threshold       float64

	learningRate float64
	best         float64
	badEpochs    int
}

// Plateau is the outcome of one scheduler step.
type Plateau struct {
	Improved     bool
	Reduced      bool
	LearningRate float64
}

func NewPlateauScheduler(learningRate, factor float64, patience int, minLearningRate, threshold float64) *PlateauScheduler {
	return &PlateauScheduler{
		Factor:          factor,
		Patience:        patience,
		MinLearningRate: minLearningRate,
		Threshold:       threshold,
		learningRate:    learningRate,
		best:            math.Inf(1),
	}
}

func (s *PlateauScheduler) LearningRate() float64 {
	return s.learningRate
}

func (s *PlateauScheduler) Best() float64 {
	return s.best
}

// Step feeds the validation loss of an epoch to the scheduler.
func (s *PlateauScheduler) Step(loss float64) Plateau {
	result := Plateau{}
	if isFinite(loss) && loss < s.best*(1-s.Threshold) {
		s.best = loss
		s.badEpochs = 0
		result.Improved = true
	} else {
		s.badEpochs++
	}

	if s.badEpochs > s.Patience {
		reduced := math.Max(s.learningRate*s.Factor, s.MinLearningRate)
		if s.learningRate-reduced > minLearningRateDelta {
			s.learningRate = reduced
			result.Reduced = true
		}
		s.badEpochs = 0
	}

	result.LearningRate = s.learningRate
	return result
}
