// Package model defines the scoring model contract used by the detection
// lifecycle, plus a reference reconstruction-error implementation.
package model

import "errors"

// Errors returned by scoring models.
var (
	ErrNotTrained = errors.New("model not trained")
	ErrNoData     = errors.New("empty training data")
	ErrBadShape   = errors.New("matrix width does not match trained model")
)

// ScoringModel is a trainable reconstruction-error model. The detection
// core never inspects model internals; it only compares per-row errors
// against Threshold.
type ScoringModel interface {
	// Train fits the model on a standardized feature matrix and derives the
	// anomaly threshold from the training reconstruction errors.
	Train(matrix [][]float64) error

	// Score returns per-row reconstruction error aligned with input rows.
	// Returns ErrNotTrained before the first successful Train.
	Score(matrix [][]float64) ([]float64, error)

	// Threshold returns the anomaly threshold set by the last Train: the
	// 97.5th percentile of training reconstruction error.
	Threshold() float64
}
