// Package storage defines contracts for anomaly record persistence.
package storage

import (
	"context"

	"txn-sentinel/internal/domain"
)

// AnomalyStore provides access to the append-only anomaly record stream.
// Records are immutable once written; there is no update or delete.
// Timestamps are domain.TimeLayout strings, which order lexically.
type AnomalyStore interface {
	// Append persists one record. Returns ErrInvalidInput for a nil record
	// or an empty Types set.
	Append(ctx context.Context, rec *domain.AnomalyRecord) error

	// GetByMerchant retrieves all records for a merchant, ordered by
	// detected_at ASC.
	GetByMerchant(ctx context.Context, merchant string) ([]*domain.AnomalyRecord, error)

	// GetByTimeRange retrieves records with event timestamp within
	// [start, end] (inclusive), ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, start, end string) ([]*domain.AnomalyRecord, error)

	// CountByType returns the number of records carrying the given label.
	CountByType(ctx context.Context, label string) (int, error)
}
