// Package stub provides a scripted scoring model for tests.
package stub

import "txn-sentinel/internal/model"

// Model is a deterministic ScoringModel for testing the lifecycle
// controller. Scores are taken from Errors (cycled row-wise); training
// records the matrices it was given.
type Model struct {
	// Errors is returned per row by Score, repeating the last value when
	// the batch is longer. Defaults to all zeros.
	Errors []float64

	// ThresholdValue is returned by Threshold after training.
	ThresholdValue float64

	// TrainErr / ScoreErr force failures.
	TrainErr error
	ScoreErr error

	// TrainCalls records each training matrix.
	TrainCalls [][][]float64

	trained bool
}

// Compile-time interface check.
var _ model.ScoringModel = (*Model)(nil)

// Train records the matrix and marks the model trained.
func (m *Model) Train(matrix [][]float64) error {
	if m.TrainErr != nil {
		return m.TrainErr
	}
	m.TrainCalls = append(m.TrainCalls, matrix)
	m.trained = true
	return nil
}

// Score returns the scripted errors aligned with input rows.
func (m *Model) Score(matrix [][]float64) ([]float64, error) {
	if m.ScoreErr != nil {
		return nil, m.ScoreErr
	}
	if !m.trained {
		return nil, model.ErrNotTrained
	}

	errs := make([]float64, len(matrix))
	for i := range matrix {
		switch {
		case i < len(m.Errors):
			errs[i] = m.Errors[i]
		case len(m.Errors) > 0:
			errs[i] = m.Errors[len(m.Errors)-1]
		}
	}
	return errs, nil
}

// Threshold returns the scripted threshold.
func (m *Model) Threshold() float64 {
	return m.ThresholdValue
}
