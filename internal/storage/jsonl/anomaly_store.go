// Package jsonl persists anomaly records as an append-only NDJSON file,
// one JSON object per line.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"txn-sentinel/internal/domain"
	"txn-sentinel/internal/storage"
)

// AnomalyStore writes records to an append-only NDJSON file. Reads scan
// the whole file; lines that fail strict JSON decoding are skipped, never
// interpreted any other way.
type AnomalyStore struct {
	mu     sync.Mutex
	path   string
	f      *os.File
	w      *bufio.Writer
	closed bool
}

// NewAnomalyStore opens (or creates) the NDJSON file at path, creating
// parent directories as needed.
func NewAnomalyStore(path string) (*AnomalyStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create anomaly file directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open anomaly file: %w", err)
	}

	return &AnomalyStore{
		path: path,
		f:    f,
		w:    bufio.NewWriter(f),
	}, nil
}

// Compile-time interface check.
var _ storage.AnomalyStore = (*AnomalyStore)(nil)

// Append writes one record as a JSON line and flushes it.
func (s *AnomalyStore) Append(_ context.Context, rec *domain.AnomalyRecord) error {
	if rec == nil || len(rec.Types) == 0 {
		return storage.ErrInvalidInput
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal anomaly record: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrClosed
	}
	if _, err := s.w.Write(data); err != nil {
		return fmt.Errorf("write anomaly record: %w", err)
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("flush anomaly record: %w", err)
	}
	return nil
}

// GetByMerchant retrieves all records for a merchant, ordered by
// detected_at ASC.
func (s *AnomalyStore) GetByMerchant(_ context.Context, merchant string) ([]*domain.AnomalyRecord, error) {
	records, err := s.scan(func(r *domain.AnomalyRecord) bool {
		return r.Merchant == merchant
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].DetectedAt < records[j].DetectedAt
	})
	return records, nil
}

// GetByTimeRange retrieves records with event timestamp within
// [start, end] (inclusive), ordered by timestamp ASC.
func (s *AnomalyStore) GetByTimeRange(_ context.Context, start, end string) ([]*domain.AnomalyRecord, error) {
	records, err := s.scan(func(r *domain.AnomalyRecord) bool {
		return r.Timestamp >= start && r.Timestamp <= end
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp < records[j].Timestamp
	})
	return records, nil
}

// CountByType returns the number of records carrying the given label.
func (s *AnomalyStore) CountByType(_ context.Context, label string) (int, error) {
	records, err := s.scan(func(r *domain.AnomalyRecord) bool {
		for _, t := range r.Types {
			if t == label {
				return true
			}
		}
		return false
	})
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// Close flushes and closes the file. Append after Close returns ErrClosed.
func (s *AnomalyStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.w.Flush(); err != nil {
		s.f.Close()
		return fmt.Errorf("flush anomaly file: %w", err)
	}
	return s.f.Close()
}

// scan reads the file and returns records matching the filter. Undecodable
// lines are skipped.
func (s *AnomalyStore) scan(match func(*domain.AnomalyRecord) bool) ([]*domain.AnomalyRecord, error) {
	s.mu.Lock()
	if !s.closed {
		if err := s.w.Flush(); err != nil {
			s.mu.Unlock()
			return nil, fmt.Errorf("flush before scan: %w", err)
		}
	}
	s.mu.Unlock()

	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open anomaly file for scan: %w", err)
	}
	defer f.Close()

	var result []*domain.AnomalyRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec domain.AnomalyRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		if match(&rec) {
			cp := rec
			result = append(result, &cp)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan anomaly file: %w", err)
	}
	return result, nil
}
