// Package worker implements the per-channel poll loop: read, scale, log,
// publish, sleep, repeat.
package worker

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ericogr/htu21d-logger/pkg/logsink"
	"github.com/ericogr/htu21d-logger/pkg/sensor"
)

type State int32

const (
	Created State = iota
	Running
	StopRequested
	Terminated
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Running:
		return "running"
	case StopRequested:
		return "stop-requested"
	case Terminated:
		return "terminated"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Publisher receives the readings a worker takes, in addition to the log.
// Publish runs on its own goroutine per worker, never inside the poll loop.
type Publisher interface {
	Publish([]sensor.Reading) error
}

// DefaultQueue is the number of readings buffered for the publisher.
const DefaultQueue = 16

type Options struct {
	Scale     sensor.Scale
	Publisher Publisher
	// Queue bounds the readings waiting for Publisher; when it is full new
	// readings are dropped.
	Queue int
	// Unit is the duration of one interval step, time.Second unless set.
	Unit  time.Duration
	Sleep func(time.Duration)
	Now   func() time.Time
	// Fields are attached to every diagnostic the worker logs.
	Fields log.Fields
}

// Worker polls one channel until stopped or until the source fails.
type Worker struct {
	channel  sensor.Channel
	source   sensor.Source
	sink     *logsink.Sink
	interval *Interval
	opts     Options
	log      *log.Entry

	state   atomic.Int32
	stop    atomic.Bool
	elapsed atomic.Int64
	cycles  atomic.Int64

	done     chan struct{}
	doneOnce sync.Once
	err      error

	pubQ    chan sensor.Reading
	pubDone chan struct{}
	dropped atomic.Int64
}

func New(ch sensor.Channel, src sensor.Source, sink *logsink.Sink, interval *Interval, opts Options) *Worker {
	if opts.Unit <= 0 {
		opts.Unit = time.Second
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Scale == (sensor.Scale{}) {
		opts.Scale = sensor.DefaultScale
	}
	if opts.Queue <= 0 {
		opts.Queue = DefaultQueue
	}
	w := &Worker{
		channel:  ch,
		source:   src,
		sink:     sink,
		interval: interval,
		opts:     opts,
		log:      log.WithFields(opts.Fields).WithField("channel", ch.String()),
		done:     make(chan struct{}),
		pubDone:  make(chan struct{}),
	}
	if opts.Publisher != nil {
		w.pubQ = make(chan sensor.Reading, opts.Queue)
	} else {
		close(w.pubDone)
	}
	return w
}

// Start spawns the poll loop. It has no effect unless the worker is in
// the Created state.
func (w *Worker) Start() {
	if !w.state.CompareAndSwap(int32(Created), int32(Running)) {
		return
	}
	if w.pubQ != nil {
		go w.publish()
	}
	go w.run()
}

// Stop asks the loop to exit at the top of its next cycle. An in-progress
// read or sleep is not interrupted.
func (w *Worker) Stop() {
	w.stop.Store(true)
	if w.state.CompareAndSwap(int32(Created), int32(Terminated)) {
		w.finish()
		if w.pubQ != nil {
			close(w.pubDone)
		}
		return
	}
	w.state.CompareAndSwap(int32(Running), int32(StopRequested))
}

// Wait blocks until the loop has returned and reports the read error that
// ended it, if any.
func (w *Worker) Wait() error {
	<-w.done
	return w.err
}

// Done is closed once the worker has terminated.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Published is closed once every reading queued before termination has
// been handed to the publisher.
func (w *Worker) Published() <-chan struct{} { return w.pubDone }

// Dropped is the number of readings discarded because the publisher queue
// was full.
func (w *Worker) Dropped() int { return int(w.dropped.Load()) }

// Err returns the error that terminated the worker, or nil while it runs.
func (w *Worker) Err() error {
	select {
	case <-w.done:
		return w.err
	default:
		return nil
	}
}

func (w *Worker) State() State { return State(w.state.Load()) }

func (w *Worker) Channel() sensor.Channel { return w.channel }

// Elapsed is the sum of the intervals slept since the worker started.
func (w *Worker) Elapsed() int { return int(w.elapsed.Load()) }

// Cycles is the number of completed read-log-sleep cycles.
func (w *Worker) Cycles() int { return int(w.cycles.Load()) }

func (w *Worker) run() {
	defer w.finish()

	for !w.stop.Load() {
		raw, err := w.source.ReadValue()
		if err != nil {
			w.fail(fmt.Errorf("read %s: %w", w.channel, err))
			return
		}

		r := sensor.Reading{
			Channel:   w.channel,
			Raw:       raw,
			Value:     w.opts.Scale.Convert(raw),
			Elapsed:   w.Elapsed(),
			Timestamp: w.opts.Now(),
		}
		if err := w.sink.WriteLine(r.LogLine()); err != nil {
			w.log.WithError(err).Warn("log write failed")
		}
		w.enqueue(r)

		secs := w.interval.Get()
		w.opts.Sleep(time.Duration(secs) * w.opts.Unit)
		w.elapsed.Add(int64(secs))
		w.cycles.Add(1)

		if err := w.source.Reset(); err != nil {
			w.fail(fmt.Errorf("rewind %s: %w", w.channel, err))
			return
		}
	}
	w.log.Debugf("Exit from %s worker", w.channel)
}

func (w *Worker) enqueue(r sensor.Reading) {
	if w.pubQ == nil {
		return
	}
	select {
	case w.pubQ <- r:
	default:
		w.dropped.Add(1)
		w.log.Debug("publisher queue full, reading dropped")
	}
}

func (w *Worker) publish() {
	defer close(w.pubDone)
	for r := range w.pubQ {
		if err := w.opts.Publisher.Publish([]sensor.Reading{r}); err != nil {
			w.log.WithError(err).Warn("publish failed")
		}
	}
}

func (w *Worker) fail(err error) {
	w.err = err
	w.log.WithError(err).Errorf("Failed to read %s data", w.channel)
}

func (w *Worker) finish() {
	w.doneOnce.Do(func() {
		w.state.Store(int32(Terminated))
		if w.pubQ != nil {
			close(w.pubQ)
		}
		close(w.done)
	})
}
