// Package memory provides in-memory store implementations for tests and
// offline replay.
package memory

import (
	"context"
	"sort"
	"sync"

	"txn-sentinel/internal/domain"
	"txn-sentinel/internal/storage"
)

// AnomalyStore is an in-memory implementation of storage.AnomalyStore.
type AnomalyStore struct {
	mu   sync.RWMutex
	data []*domain.AnomalyRecord
}

// NewAnomalyStore creates a new in-memory anomaly store.
func NewAnomalyStore() *AnomalyStore {
	return &AnomalyStore{}
}

// Compile-time interface check.
var _ storage.AnomalyStore = (*AnomalyStore)(nil)

// Append persists one record.
func (s *AnomalyStore) Append(_ context.Context, rec *domain.AnomalyRecord) error {
	if rec == nil || len(rec.Types) == 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := cloneRecord(rec)
	s.data = append(s.data, cp)
	return nil
}

// GetByMerchant retrieves all records for a merchant, ordered by
// detected_at ASC.
func (s *AnomalyStore) GetByMerchant(_ context.Context, merchant string) ([]*domain.AnomalyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.AnomalyRecord
	for _, r := range s.data {
		if r.Merchant == merchant {
			result = append(result, cloneRecord(r))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].DetectedAt < result[j].DetectedAt
	})
	return result, nil
}

// GetByTimeRange retrieves records with event timestamp within
// [start, end] (inclusive), ordered by timestamp ASC.
func (s *AnomalyStore) GetByTimeRange(_ context.Context, start, end string) ([]*domain.AnomalyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.AnomalyRecord
	for _, r := range s.data {
		if r.Timestamp >= start && r.Timestamp <= end {
			result = append(result, cloneRecord(r))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp < result[j].Timestamp
	})
	return result, nil
}

// CountByType returns the number of records carrying the given label.
func (s *AnomalyStore) CountByType(_ context.Context, label string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, r := range s.data {
		for _, t := range r.Types {
			if t == label {
				count++
				break
			}
		}
	}
	return count, nil
}

// All returns every record in append order. Used by the replay summary.
func (s *AnomalyStore) All() []*domain.AnomalyRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.AnomalyRecord, len(s.data))
	for i, r := range s.data {
		result[i] = cloneRecord(r)
	}
	return result
}

// cloneRecord deep-copies a record so callers cannot mutate stored state.
func cloneRecord(r *domain.AnomalyRecord) *domain.AnomalyRecord {
	cp := *r
	cp.Types = append([]string(nil), r.Types...)
	if r.ReconErr != nil {
		v := *r.ReconErr
		cp.ReconErr = &v
	}
	return &cp
}
