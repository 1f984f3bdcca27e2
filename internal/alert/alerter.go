// Package alert delivers best-effort operator notifications. A failed
// send is the caller's to log; it never affects detection or persistence.
package alert

import (
	"context"
	"log"
)

// Alerter sends a short text notification.
type Alerter interface {
	// Send delivers one message. Best-effort: callers log failures and
	// move on.
	Send(ctx context.Context, text string) error
}

// LogAlerter writes alerts to a logger. Used when no delivery channel is
// configured, and in tests.
type LogAlerter struct {
	logger *log.Logger
}

// NewLogAlerter creates a LogAlerter.
func NewLogAlerter(logger *log.Logger) *LogAlerter {
	if logger == nil {
		logger = log.Default()
	}
	return &LogAlerter{logger: logger}
}

// Compile-time interface check.
var _ Alerter = (*LogAlerter)(nil)

// Send logs the message.
func (a *LogAlerter) Send(_ context.Context, text string) error {
	a.logger.Printf("[alert] %s", text)
	return nil
}
