package ingest

import "context"

// LineSource delivers raw log lines from an external producer.
type LineSource interface {
	// Subscribe returns a channel of raw lines. The channel is closed when
	// the source stops; the source stops when ctx is cancelled.
	// Lines are delivered in arrival order.
	Subscribe(ctx context.Context) (<-chan string, error)
}
