package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool

	// OnDrop is invoked once per event discarded because the buffer was
	// full. May be nil.
	OnDrop func()
}

// Dispatcher forwards audit events to a sink from a single worker
// goroutine. A nil Dispatcher is valid and drops everything, which is
// how audit-disabled engines run.
type Dispatcher struct {
	sink       Sink
	ch         chan Event
	dropIfFull bool
	onDrop     func()

	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	dropped atomic.Uint64
}

// NewDispatcher starts the worker. Returns nil when auditing is
// disabled.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		sink:       sink,
		ch:         make(chan Event, cfg.BufferSize),
		dropIfFull: cfg.DropIfFull,
		onDrop:     cfg.OnDrop,
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for event := range d.ch {
			d.sink.Emit(context.Background(), event)
		}
	}()

	return d
}

// Emit queues an event for delivery. With DropIfFull set a full buffer
// increments the drop counter instead of blocking; otherwise Emit waits
// until there is room or ctx is done.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}

	// The read lock pins the channel open so a concurrent Close cannot
	// close it mid-send.
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if d.dropIfFull {
		select {
		case d.ch <- event:
		default:
			d.dropped.Add(1)
			if d.onDrop != nil {
				d.onDrop()
			}
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.ch <- event:
	case <-ctx.Done():
	}
}

// Close stops intake and waits for the worker to deliver everything
// still buffered. Safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.ch)
	d.mu.Unlock()

	d.wg.Wait()
}

// Dropped reports how many events were discarded because the buffer was
// full.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
