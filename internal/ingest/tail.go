package ingest

import (
	"context"
	"log"
	"os"
	"strings"
	"time"
)

// TailSource polls a growing log file and delivers newly appended lines.
// It tracks a byte offset past the last complete line; a trailing partial
// line stays unread until its newline arrives. Truncation resets the offset.
type TailSource struct {
	path         string
	pollInterval time.Duration
	logger       *log.Logger

	offset int64
}

// TailOptions configures a TailSource.
type TailOptions struct {
	Path         string
	PollInterval time.Duration // default 1s
	Logger       *log.Logger
}

// NewTailSource creates a file tail source.
func NewTailSource(opts TailOptions) *TailSource {
	pollInterval := opts.PollInterval
	if pollInterval == 0 {
		pollInterval = 1 * time.Second
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &TailSource{
		path:         opts.Path,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Compile-time interface check.
var _ LineSource = (*TailSource)(nil)

// Subscribe starts polling the file and returns the line channel.
func (s *TailSource) Subscribe(ctx context.Context) (<-chan string, error) {
	ch := make(chan string, 256)

	go func() {
		defer close(ch)

		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				lines, err := s.readNew()
				if err != nil {
					s.logger.Printf("[tail] read %s: %v", s.path, err)
					continue
				}
				for _, line := range lines {
					select {
					case ch <- line:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return ch, nil
}

// readNew reads all complete lines appended since the last call and
// advances the offset past them.
func (s *TailSource) readNew() ([]string, error) {
	info, err := os.Stat(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	// File was truncated or rotated in place: start over.
	if info.Size() < s.offset {
		s.offset = 0
	}
	if info.Size() == s.offset {
		return nil, nil
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if _, err := f.Seek(s.offset, 0); err != nil {
		return nil, err
	}

	buf := make([]byte, info.Size()-s.offset)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return nil, err
	}
	chunk := string(buf[:n])

	// Keep only complete lines; the partial tail is re-read next poll.
	last := strings.LastIndexByte(chunk, '\n')
	if last < 0 {
		return nil, nil
	}
	s.offset += int64(last + 1)

	var lines []string
	for _, line := range strings.Split(chunk[:last], "\n") {
		line = strings.TrimRight(line, "\r")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}
