package domain

import "time"

// TimeLayout is the timestamp format used by the transaction log producer
// and by persisted anomaly records. Lexical order equals chronological order.
const TimeLayout = "2006-01-02 15:04:05"

// TransactionEvent is one parsed transaction log line.
// Created by the line parser; never mutated afterwards.
type TransactionEvent struct {
	Timestamp time.Time // event time as written by the producer
	Succeeded bool      // status == SUCCESS
	LatencyMs float64   // processing latency in milliseconds, >= 0
	Merchant  string
	Region    string
	Amount    float64 // transaction amount, >= 0
	RawLine   string  // original line with trailing newline stripped
}

// Hour returns the event's hour of day (0-23).
func (e *TransactionEvent) Hour() int {
	return e.Timestamp.Hour()
}

// StatusInt returns 1 for a successful transaction, 0 otherwise.
func (e *TransactionEvent) StatusInt() int {
	if e.Succeeded {
		return 1
	}
	return 0
}
