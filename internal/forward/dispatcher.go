package forward

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/knx-monitor/internal/kdrive"
	"github.com/nerrad567/knx-monitor/internal/telegram"
)

const (
	defaultQueueSize = 256

	// defaultWriteTimeout bounds a single sink write.
	defaultWriteTimeout = 5 * time.Second
)

// Sink receives parsed records in bus order from the dispatcher worker.
type Sink interface {
	Name() string
	Write(ctx context.Context, r Record) error
}

// EventSink is implemented by sinks that also want access-port events.
type EventSink interface {
	WriteEvent(ctx context.Context, event kdrive.EventCode) error
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Options configures a Dispatcher.
type Options struct {
	// QueueSize is the number of records buffered ahead of the worker.
	QueueSize int

	// WriteTimeout bounds each sink call.
	WriteTimeout time.Duration

	// Datapoints selects the value decoder per group address.
	Datapoints map[telegram.GroupAddress]telegram.DPT

	// Now is the clock used to stamp records. Defaults to time.Now.
	Now func() time.Time
}

// Stats reports dispatcher counters.
type Stats struct {
	Forwarded     uint64
	Dropped       uint64
	ParseFailures uint64
	SinkErrors    uint64
}

type item struct {
	record Record
	event  kdrive.EventCode
	isEvt  bool
}

// Dispatcher is an accessport.Handler that forwards telegrams to sinks.
//
// Thread Safety: On* methods and Close are safe for concurrent use.
type Dispatcher struct {
	sinks  []Sink
	opts   Options
	logger Logger

	queue  chan item
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	forwarded     atomic.Uint64
	dropped       atomic.Uint64
	parseFailures atomic.Uint64
	sinkErrors    atomic.Uint64
}

// NewDispatcher starts the worker. Call Close to drain and stop it.
func NewDispatcher(opts Options, logger Logger, sinks ...Sink) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = nopLogger{}
	}

	d := &Dispatcher{
		sinks:  sinks,
		opts:   opts,
		logger: logger,
		queue:  make(chan item, opts.QueueSize),
	}

	d.wg.Add(1)
	go d.worker()
	return d
}

// OnError logs access-port errors; they are not forwarded.
func (d *Dispatcher) OnError(code kdrive.ErrorCode, message string) {
	d.logger.Warn("access port error", "code", fmt.Sprintf("0x%x", uint32(code)), "message", message)
}

// OnEvent queues the event for sinks implementing EventSink.
func (d *Dispatcher) OnEvent(_ kdrive.Descriptor, event kdrive.EventCode) {
	d.enqueue(item{event: event, isEvt: true})
}

// OnTelegram parses t and queues the record. Unparsable frames are counted
// and skipped.
func (d *Dispatcher) OnTelegram(t telegram.Telegram) {
	r, err := NewRecord(t, d.opts.Now(), d.opts.Datapoints)
	if err != nil {
		d.parseFailures.Add(1)
		d.logger.Debug("skipping telegram", "error", err, "raw", t.String())
		return
	}
	d.enqueue(item{record: r})
}

func (d *Dispatcher) enqueue(it item) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.dropped.Add(1)
		return
	}

	select {
	case d.queue <- it:
	default:
		n := d.dropped.Add(1)
		d.logger.Warn("forward queue full, dropping", "dropped_total", n)
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for it := range d.queue {
		if it.isEvt {
			d.deliverEvent(it.event)
			continue
		}
		d.deliver(it.record)
	}
}

func (d *Dispatcher) deliver(r Record) {
	for _, s := range d.sinks {
		err := d.call(func(ctx context.Context) error { return s.Write(ctx, r) })
		if err != nil {
			d.sinkErrors.Add(1)
			d.logger.Warn("sink write failed", "sink", s.Name(), "group_address", r.Address.String(), "error", err)
		}
	}
	d.forwarded.Add(1)
}

func (d *Dispatcher) deliverEvent(event kdrive.EventCode) {
	for _, s := range d.sinks {
		es, ok := s.(EventSink)
		if !ok {
			continue
		}
		if err := d.call(func(ctx context.Context) error { return es.WriteEvent(ctx, event) }); err != nil {
			d.sinkErrors.Add(1)
			d.logger.Warn("sink event write failed", "sink", s.Name(), "event", event.String(), "error", err)
		}
	}
}

// call runs fn with a write timeout and converts panics into errors.
func (d *Dispatcher) call(fn func(ctx context.Context) error) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.WriteTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrSinkPanic, r)
		}
	}()
	return fn(ctx)
}

// Close stops accepting records, drains the queue and waits for the worker.
// Sinks are not closed. Safe to call more than once.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

// Stats returns a snapshot of the counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Forwarded:     d.forwarded.Load(),
		Dropped:       d.dropped.Load(),
		ParseFailures: d.parseFailures.Load(),
		SinkErrors:    d.sinkErrors.Load(),
	}
}
