// Package monitor owns the shared state of a logging session: the channel
// sources, per-channel intervals, the log sink and the two workers. It is
// the command surface used by the interactive menu and the HTTP API.
package monitor

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/ericogr/htu21d-logger/pkg/logsink"
	"github.com/ericogr/htu21d-logger/pkg/sensor"
	"github.com/ericogr/htu21d-logger/pkg/worker"
)

var (
	ErrClosed    = errors.New("monitor is shut down")
	ErrEmptyPath = errors.New("log file name is empty")
)

type Options struct {
	// Intervals holds the initial interval in seconds per channel, 1 when
	// missing.
	Intervals map[sensor.Channel]int
	Scales    map[sensor.Channel]sensor.Scale
	// Publisher is owned by the monitor: Shutdown closes it when it
	// implements io.Closer.
	Publisher worker.Publisher
	Queue     int
	Unit      time.Duration
	Sleep     func(time.Duration)
	Now       func() time.Time
	// CreateLog opens the log target for a session, logsink.Create unless set.
	CreateLog func(path string) (io.WriteCloser, error)
}

type Monitor struct {
	// mu serializes controller commands; workers never take it.
	mu sync.Mutex

	sources   sensor.Sources
	intervals map[sensor.Channel]*worker.Interval
	sink      *logsink.Sink
	workers   map[sensor.Channel]*worker.Worker
	opts      Options

	file    io.WriteCloser
	path    string
	session string
	closed  bool
}

// New takes ownership of sources; they are closed by Shutdown.
func New(sources sensor.Sources, opts Options) (*Monitor, error) {
	m := &Monitor{
		sources:   sources,
		intervals: make(map[sensor.Channel]*worker.Interval, len(sensor.Channels)),
		sink:      logsink.New(),
		workers:   make(map[sensor.Channel]*worker.Worker, len(sensor.Channels)),
		opts:      opts,
	}
	if m.opts.CreateLog == nil {
		m.opts.CreateLog = func(path string) (io.WriteCloser, error) { return logsink.Create(path) }
	}
	for _, ch := range sensor.Channels {
		if src, ok := sources[ch]; !ok || src == nil {
			return nil, fmt.Errorf("no source for %s", ch)
		}
		secs, ok := opts.Intervals[ch]
		if !ok {
			secs = 1
		}
		if secs < 0 {
			return nil, fmt.Errorf("%s: %w", ch, worker.ErrInvalidInterval)
		}
		m.intervals[ch] = worker.NewInterval(secs)
	}
	return m, nil
}

// StartLogging truncates path, makes it the shared log target and spawns
// both workers with their elapsed counters at 0. It reports false, with no
// error, when logging is already enabled.
func (m *Monitor) StartLogging(path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrClosed
	}
	if m.file != nil {
		return false, nil
	}
	if path == "" {
		return false, ErrEmptyPath
	}
	f, err := m.opts.CreateLog(path)
	if err != nil {
		return false, err
	}
	m.sink.Swap(f)
	m.file = f
	m.path = path
	m.session = uuid.NewString()

	fields := log.Fields{"session": m.session}
	for _, ch := range sensor.Channels {
		src := m.sources[ch]
		if err := src.Reset(); err != nil {
			log.WithFields(fields).WithError(err).Warnf("rewind %s", ch)
		}
		w := worker.New(ch, src, m.sink, m.intervals[ch], worker.Options{
			Scale:     m.scale(ch),
			Publisher: m.opts.Publisher,
			Queue:     m.opts.Queue,
			Unit:      m.opts.Unit,
			Sleep:     m.opts.Sleep,
			Now:       m.opts.Now,
			Fields:    fields,
		})
		m.workers[ch] = w
		w.Start()
	}
	log.WithFields(fields).WithField("path", path).Info("logging enabled")
	return true, nil
}

// StopLogging stops and joins both workers, then closes the log file. It
// reports false when logging is already disabled.
func (m *Monitor) StopLogging() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrClosed
	}
	if m.file == nil {
		return false, nil
	}
	return true, m.stopLocked()
}

func (m *Monitor) stopLocked() error {
	for _, w := range m.workers {
		w.Stop()
	}
	for _, w := range m.workers {
		w.Wait()
	}
	if m.file == nil {
		return nil
	}
	_, ferr := m.sink.Disable()
	err := m.file.Close()
	log.WithField("session", m.session).WithField("path", m.path).Info("logging disabled")
	m.file = nil
	m.path = ""
	if err != nil {
		err = fmt.Errorf("close log file: %w", err)
	}
	if ferr != nil {
		ferr = fmt.Errorf("flush log file: %w", ferr)
	}
	return errors.Join(ferr, err)
}

// ReadNow reads ch directly from its source, independent of the workers.
func (m *Monitor) ReadNow(ch sensor.Channel) (sensor.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return sensor.Reading{}, ErrClosed
	}
	src, ok := m.sources[ch]
	if !ok {
		return sensor.Reading{}, fmt.Errorf("%w: %v", sensor.ErrUnknownChannel, ch)
	}
	if err := src.Reset(); err != nil {
		return sensor.Reading{}, fmt.Errorf("rewind %s: %w", ch, err)
	}
	raw, err := src.ReadValue()
	if err != nil {
		return sensor.Reading{}, fmt.Errorf("read %s: %w", ch, err)
	}
	return sensor.Reading{
		Channel:   ch,
		Raw:       raw,
		Value:     m.scale(ch).Convert(raw),
		Timestamp: m.now(),
	}, nil
}

// SetInterval changes the interval of ch. Running workers use it from
// their next sleep on; invalid values leave everything unchanged.
func (m *Monitor) SetInterval(ch sensor.Channel, seconds int) error {
	iv, ok := m.intervals[ch]
	if !ok {
		return fmt.Errorf("%w: %v", sensor.ErrUnknownChannel, ch)
	}
	if err := iv.Set(seconds); err != nil {
		return err
	}
	log.WithField("channel", ch.String()).Debugf("interval set to %ds", seconds)
	return nil
}

func (m *Monitor) Interval(ch sensor.Channel) int {
	if iv, ok := m.intervals[ch]; ok {
		return iv.Get()
	}
	return 0
}

// Logging reports whether a logging session is active.
func (m *Monitor) Logging() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.file != nil
}

// Shutdown stops and joins the workers, closes the log file, releases the
// sources and closes the publisher. It blocks for up to one interval while
// a worker finishes its sleep; readings still queued for the publisher are
// not waited for. Calling it again is a no-op.
func (m *Monitor) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	var errs []error
	if err := m.stopLocked(); err != nil {
		errs = append(errs, err)
	}
	if err := m.sources.Close(); err != nil {
		errs = append(errs, err)
	}
	if c, ok := m.opts.Publisher.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (m *Monitor) scale(ch sensor.Channel) sensor.Scale {
	if s, ok := m.opts.Scales[ch]; ok {
		return s
	}
	return sensor.DefaultScale
}

func (m *Monitor) now() time.Time {
	if m.opts.Now != nil {
		return m.opts.Now()
	}
	return time.Now()
}
