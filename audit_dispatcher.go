package portalauth

import (
	"context"
	"sync"
	"sync/atomic"
)

// auditDispatcher hands events to one worker goroutine that owns the sink. Emit
// never calls the sink itself.
//
// Senders hold sendMu for reading while they enqueue; Close takes it for writing
// before closing the queue, so no send can race the close.
type auditDispatcher struct {
	sink       AuditSink
	dropIfFull bool

	queue    chan AuditEvent
	stopping chan struct{}
	sendMu   sync.RWMutex
	finished chan struct{}

	delivered atomic.Uint64
	dropped   atomic.Uint64
	stopOnce  sync.Once
}

// newAuditDispatcher returns nil when auditing is off; a nil dispatcher accepts
// and discards everything.
func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	d := &auditDispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		queue:      make(chan AuditEvent, max(cfg.BufferSize, 1)),
		stopping:   make(chan struct{}),
		finished:   make(chan struct{}),
	}
	go d.work()
	return d
}

func (d *auditDispatcher) work() {
	defer close(d.finished)
	for ev := range d.queue {
		d.sink.Emit(context.Background(), ev)
		d.delivered.Add(1)
	}
}

// Emit queues ev. With dropIfFull a full queue drops the event; otherwise Emit
// waits for room until ctx ends or the dispatcher closes.
func (d *auditDispatcher) Emit(ctx context.Context, ev AuditEvent) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.sendMu.RLock()
	defer d.sendMu.RUnlock()
	select {
	case <-d.stopping:
		return
	default:
	}

	if d.dropIfFull {
		select {
		case d.queue <- ev:
		default:
			d.dropped.Add(1)
		}
		return
	}
	select {
	case d.queue <- ev:
	case <-ctx.Done():
		d.dropped.Add(1)
	case <-d.stopping:
	}
}

// Close rejects further events, then waits for the worker to deliver what was
// already queued.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() {
		close(d.stopping)
		d.sendMu.Lock()
		close(d.queue)
		d.sendMu.Unlock()
	})
	<-d.finished
}

func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

func (d *auditDispatcher) Emitted() uint64 {
	if d == nil {
		return 0
	}
	return d.delivered.Load()
}
