package goGrant

import (
	"context"
	"sync"
	"sync/atomic"
)

// dropReason says why the dispatcher gave up on an event.
type dropReason string

const (
	dropQueueFull dropReason = "queue_full"
	dropCancelled dropReason = "request_cancelled"
	dropClosed    dropReason = "dispatcher_closed"
)

// queuedEvent keeps the publishing request's context values (trace and
// request ids) with the event. Cancellation is stripped so a finished
// request does not cancel delivery.
type queuedEvent struct {
	ctx   context.Context
	event Event
}

// eventDispatcher delivers lifecycle events to the external sink from one
// goroutine. Every event that does not reach the queue is counted and
// reported through onDrop. Close drains what is already queued.
type eventDispatcher struct {
	sink       EventSink
	dropIfFull bool
	onDrop     func(Event, dropReason)

	queue     chan queuedEvent
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func newEventDispatcher(cfg EventsConfig, sink EventSink, onDrop func(Event, dropReason)) *eventDispatcher {
	if !cfg.Async || sink == nil {
		return nil
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}

	d := &eventDispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		onDrop:     onDrop,
		queue:      make(chan queuedEvent, size),
		done:       make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *eventDispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case q := <-d.queue:
			d.sink.Emit(q.ctx, q.event)
		case <-d.done:
			for {
				select {
				case q := <-d.queue:
					d.sink.Emit(q.ctx, q.event)
				default:
					return
				}
			}
		}
	}
}

// Emit queues event. With DropIfFull a full queue drops the event;
// otherwise Emit waits for room until ctx ends or the dispatcher closes,
// and either of those drops it too.
func (d *eventDispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if d.closed.Load() {
		d.drop(event, dropClosed)
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	q := queuedEvent{ctx: context.WithoutCancel(ctx), event: event}

	if d.dropIfFull {
		select {
		case d.queue <- q:
		case <-d.done:
			d.drop(event, dropClosed)
		default:
			d.drop(event, dropQueueFull)
		}
		return
	}

	select {
	case d.queue <- q:
	case <-ctx.Done():
		d.drop(event, dropCancelled)
	case <-d.done:
		d.drop(event, dropClosed)
	}
}

func (d *eventDispatcher) drop(event Event, reason dropReason) {
	d.dropped.Add(1)
	if d.onDrop != nil {
		d.onDrop(event, reason)
	}
}

func (d *eventDispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped is the number of events that never reached the queue.
func (d *eventDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
