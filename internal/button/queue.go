package button

import (
	"context"
	"sync/atomic"
	"time"
)

// DefaultQueueSize matches the edge queue depth of the reference hardware.
const DefaultQueueSize = 10

// Queue is the bounded FIFO between edge producers and the engine worker.
// Pushes never block: when the queue is full the edge is dropped and counted.
// Receive must only be called from a single goroutine.
type Queue struct {
	ch      chan EdgeEvent
	dropped atomic.Uint64
	timer   *time.Timer
}

// NewQueue creates a queue holding up to size events.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	t := time.NewTimer(time.Hour)
	if !t.Stop() {
		<-t.C
	}
	return &Queue{
		ch:    make(chan EdgeEvent, size),
		timer: t,
	}
}

// TryPush enqueues evt without blocking. It returns false if the queue was full
// and the event was dropped.
func (q *Queue) TryPush(evt EdgeEvent) bool {
	select {
	case q.ch <- evt:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Dropped returns the number of events lost to overflow.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return cap(q.ch)
}

// Receive waits for the next event. When bounded is false it waits until an
// event arrives or ctx is done. When bounded is true it gives up after wait
// and returns ok == false; a non-positive wait only polls.
func (q *Queue) Receive(ctx context.Context, wait time.Duration, bounded bool) (evt EdgeEvent, ok bool, err error) {
	if !bounded {
		select {
		case evt = <-q.ch:
			return evt, true, nil
		case <-ctx.Done():
			return EdgeEvent{}, false, ctx.Err()
		}
	}

	if wait <= 0 {
		select {
		case evt = <-q.ch:
			return evt, true, nil
		case <-ctx.Done():
			return EdgeEvent{}, false, ctx.Err()
		default:
			return EdgeEvent{}, false, nil
		}
	}

	q.resetTimer(wait)
	select {
	case evt = <-q.ch:
		return evt, true, nil
	case <-q.timer.C:
		return EdgeEvent{}, false, nil
	case <-ctx.Done():
		return EdgeEvent{}, false, ctx.Err()
	}
}

// resetTimer rearms the single consumer timer, discarding any stale fire.
func (q *Queue) resetTimer(d time.Duration) {
	if !q.timer.Stop() {
		select {
		case <-q.timer.C:
		default:
		}
	}
	q.timer.Reset(d)
}
