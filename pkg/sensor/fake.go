package sensor

import (
	"errors"
	"math/rand"
	"strconv"
	"sync"
)

var ErrFakeClosed = errors.New("fake source closed")

// FakeSource replays scripted values; the last value repeats once the
// script is exhausted. It can be told to fail after a number of reads.
type FakeSource struct {
	mu        sync.Mutex
	values    []string
	next      int
	reads     int
	resets    int
	failAfter int
	failErr   error
	closed    bool
}

func NewFakeSource(values ...string) *FakeSource {
	if len(values) == 0 {
		values = []string{"0"}
	}
	return &FakeSource{values: values, failAfter: -1}
}

// FailAfter makes every read after the first n successful ones return err.
func (f *FakeSource) FailAfter(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAfter = n
	f.failErr = err
}

func (f *FakeSource) ReadValue() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return "", ErrFakeClosed
	}
	if f.failAfter >= 0 && f.reads >= f.failAfter {
		return "", f.failErr
	}
	f.reads++
	v := f.values[f.next]
	if f.next < len(f.values)-1 {
		f.next++
	}
	return v, nil
}

func (f *FakeSource) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return nil
}

func (f *FakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Reads returns the number of successful reads.
func (f *FakeSource) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

func (f *FakeSource) Resets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resets
}

func (f *FakeSource) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// simulatedSource produces plausible random milli-unit values.
type simulatedSource struct {
	mu       sync.Mutex
	rnd      *rand.Rand
	min, max float64
}

// NewSimulatedSources returns sources for running without hardware:
// temperature between 18 and 28 °C, humidity between 30 and 70 %RH.
func NewSimulatedSources(seed int64) Sources {
	rnd := rand.New(rand.NewSource(seed))
	return Sources{
		Temperature: &simulatedSource{rnd: rand.New(rand.NewSource(rnd.Int63())), min: 18, max: 28},
		Humidity:    &simulatedSource{rnd: rand.New(rand.NewSource(rnd.Int63())), min: 30, max: 70},
	}
}

func (s *simulatedSource) ReadValue() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.min + s.rnd.Float64()*(s.max-s.min)
	return strconv.Itoa(int(v * 1000)), nil
}

func (s *simulatedSource) Reset() error { return nil }
func (s *simulatedSource) Close() error { return nil }
