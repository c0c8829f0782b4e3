package goGuard

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
)

// auditDispatcher hands events to the sink on a single goroutine so the gate
// and recovery paths never wait on sink I/O. Under DropIfFull, gate events
// are shed when the queue is full; recovery events always queue.
type auditDispatcher struct {
	sink  AuditSink
	queue chan AuditEvent
	stop  chan struct{}
	shed  bool

	wg       sync.WaitGroup
	stopOnce sync.Once
	dropped  atomic.Uint64
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &auditDispatcher{
		sink:  sink,
		queue: make(chan AuditEvent, max(cfg.BufferSize, 1)),
		stop:  make(chan struct{}),
		shed:  cfg.DropIfFull,
	}
	d.wg.Go(d.run)
	return d
}

func (d *auditDispatcher) run() {
	ctx := context.Background()
	for {
		select {
		case ev := <-d.queue:
			d.sink.Emit(ctx, ev)
		case <-d.stop:
			for {
				select {
				case ev := <-d.queue:
					d.sink.Emit(ctx, ev)
				default:
					return
				}
			}
		}
	}
}

// Emit queues event. A caller whose context ends while waiting for space
// gives up and the event is counted as dropped.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil || d.stopped() {
		return
	}

	if d.shed && sheddable(event.EventType) {
		select {
		case d.queue <- event:
		default:
			d.dropped.Add(1)
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
	case <-d.stop:
	}
}

func (d *auditDispatcher) stopped() bool {
	select {
	case <-d.stop:
		return true
	default:
		return false
	}
}

// sheddable reports whether an event may be dropped under back-pressure.
func sheddable(eventType string) bool {
	return !strings.HasPrefix(eventType, "recovery_")
}

// Close stops intake and waits until everything already queued reached the
// sink. Safe to call more than once.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() { close(d.stop) })
	d.wg.Wait()
}

func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
