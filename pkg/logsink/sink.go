// Package logsink is the log destination shared by the measurement workers.
package logsink

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
)

// Sink serializes whole lines from concurrent writers. A nil target means
// logging is disabled and writes are dropped.
type Sink struct {
	mu     sync.Mutex
	target io.WriteCloser
	w      *bufio.Writer
}

func New() *Sink { return &Sink{} }

// WriteLine writes and flushes line while holding the sink lock, so lines
// from different workers never interleave.
func (s *Sink) WriteLine(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return nil
	}
	if _, err := s.w.WriteString(line); err != nil {
		return err
	}
	return s.w.Flush()
}

// Swap installs target and returns the previous one, which the caller owns
// and must close. The error is the one left by the last write to the
// previous target, if any. Callers stop the workers before swapping.
func (s *Sink) Swap(target io.WriteCloser) (io.WriteCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.target
	var err error
	if s.w != nil {
		err = s.w.Flush()
	}
	s.target = target
	s.w = nil
	if target != nil {
		s.w = bufio.NewWriter(target)
	}
	return old, err
}

// Disable is Swap(nil).
func (s *Sink) Disable() (io.WriteCloser, error) { return s.Swap(nil) }

func (s *Sink) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target != nil
}

// Create opens path for a new logging session, truncating any previous
// content.
func Create(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create log file: %w", err)
	}
	return f, nil
}
