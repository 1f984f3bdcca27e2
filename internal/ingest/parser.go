// Package ingest provides raw line delivery and parsing for the
// transaction log stream.
package ingest

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"txn-sentinel/internal/domain"
)

// LineParser extracts transaction events from raw log lines.
// Lines that do not match the format are dropped silently: partial or
// malformed lines are expected noise at the tail of a growing file.
type LineParser struct {
	// txPattern matches:
	// [<YYYY-MM-DD HH:MM:SS>] status=<word> latency=<float>ms merchant=<token> region=<token> amount=<float>
	txPattern *regexp.Regexp
}

// NewParser creates a new LineParser.
func NewParser() *LineParser {
	return &LineParser{
		txPattern: regexp.MustCompile(`\[([^\]]+)\]\s+status=(\w+)\s+latency=([\d.]+)ms\s+merchant=(\S+)\s+region=(\S+)\s+amount=([\d.]+)`),
	}
}

// Parse extracts a transaction event from one line.
// Returns (nil, false) when the line does not match or a field fails to
// parse; a drop is never an error.
func (p *LineParser) Parse(line string) (*domain.TransactionEvent, bool) {
	matches := p.txPattern.FindStringSubmatch(line)
	if matches == nil {
		return nil, false
	}

	ts, err := time.Parse(domain.TimeLayout, matches[1])
	if err != nil {
		return nil, false
	}

	latency, err := strconv.ParseFloat(matches[3], 64)
	if err != nil || latency < 0 {
		return nil, false
	}

	amount, err := strconv.ParseFloat(matches[6], 64)
	if err != nil || amount < 0 {
		return nil, false
	}

	return &domain.TransactionEvent{
		Timestamp: ts,
		Succeeded: matches[2] == "SUCCESS",
		LatencyMs: latency,
		Merchant:  matches[4],
		Region:    matches[5],
		Amount:    amount,
		RawLine:   strings.TrimRight(line, "\r\n"),
	}, true
}

// ParseBatch extracts events from a batch of lines, preserving input order.
// Non-matching lines are skipped.
func (p *LineParser) ParseBatch(lines []string) []*domain.TransactionEvent {
	var events []*domain.TransactionEvent
	for _, line := range lines {
		if e, ok := p.Parse(line); ok {
			events = append(events, e)
		}
	}
	return events
}
