package ingest

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// WSSourceConfig configures WebSocket line shipping behavior.
type WSSourceConfig struct {
	// ReconnectDelay is the initial delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is the maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// ReadTimeout is the timeout for reading messages.
	ReadTimeout time.Duration
}

// DefaultWSSourceConfig returns default WebSocket source configuration.
func DefaultWSSourceConfig() WSSourceConfig {
	return WSSourceConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
	}
}

// WSLineSource receives shipped log lines over a WebSocket connection.
// Each text frame carries one or more newline-separated raw lines.
// The connection is re-established with capped exponential backoff.
type WSLineSource struct {
	endpoint string
	config   WSSourceConfig
	logger   *log.Logger
}

// NewWSLineSource creates a WebSocket line source for the given endpoint.
func NewWSLineSource(endpoint string, config *WSSourceConfig, logger *log.Logger) *WSLineSource {
	cfg := DefaultWSSourceConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = log.Default()
	}
	return &WSLineSource{
		endpoint: endpoint,
		config:   cfg,
		logger:   logger,
	}
}

// Compile-time interface check.
var _ LineSource = (*WSLineSource)(nil)

// Subscribe connects to the endpoint and returns the line channel.
// The initial dial failure is returned; later failures reconnect.
func (s *WSLineSource) Subscribe(ctx context.Context) (<-chan string, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return nil, err
	}

	ch := make(chan string, 256)

	go func() {
		defer close(ch)
		defer func() {
			if conn != nil {
				conn.Close()
			}
		}()

		delay := s.config.ReconnectDelay
		for {
			if conn == nil {
				select {
				case <-ctx.Done():
					return
				case <-time.After(delay):
				}
				delay *= 2
				if delay > s.config.MaxReconnectDelay {
					delay = s.config.MaxReconnectDelay
				}

				c, _, err := websocket.DefaultDialer.DialContext(ctx, s.endpoint, nil)
				if err != nil {
					s.logger.Printf("[ws-source] reconnect %s: %v", s.endpoint, err)
					continue
				}
				s.logger.Printf("[ws-source] reconnected to %s", s.endpoint)
				conn = c
				delay = s.config.ReconnectDelay
			}

			conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
			_, payload, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Printf("[ws-source] read: %v", err)
				conn.Close()
				conn = nil
				continue
			}

			for _, line := range strings.Split(string(payload), "\n") {
				line = strings.TrimRight(line, "\r")
				if line == "" {
					continue
				}
				select {
				case ch <- line:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}
