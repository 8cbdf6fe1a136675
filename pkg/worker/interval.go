package worker

import (
	"errors"
	"fmt"
	"sync"
)

var ErrInvalidInterval = errors.New("interval must be >= 0")

// Interval is a channel's polling interval in seconds. Each channel owns
// its own Interval so the two channels never contend on a shared lock.
type Interval struct {
	mu      sync.Mutex
	seconds int
}

// NewInterval returns an Interval set to seconds, clamped at 0.
func NewInterval(seconds int) *Interval {
	if seconds < 0 {
		seconds = 0
	}
	return &Interval{seconds: seconds}
}

func (i *Interval) Get() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.seconds
}

// Set changes the interval. A worker picks it up at its next sleep.
func (i *Interval) Set(seconds int) error {
	if seconds < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidInterval, seconds)
	}
	i.mu.Lock()
	i.seconds = seconds
	i.mu.Unlock()
	return nil
}
