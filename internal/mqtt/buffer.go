package mqtt

import (
	log "github.com/sirupsen/logrus"
)

// outgoing is a serialized MQTT message held for replay after reconnection.
type outgoing struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ring is a fixed-capacity FIFO that overwrites its oldest entry when full.
// Not safe for concurrent use; caller must synchronize.
type ring[T any] struct {
	items   []T
	next    int // next write position
	size    int
	dropped int // entries overwritten since the last drain
}

func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{items: make([]T, capacity)}
}

func (r *ring[T]) push(v T) {
	if r.size == len(r.items) {
		if r.dropped == 0 {
			log.Warnf("mqtt: offline buffer full (%d messages), dropping oldest", len(r.items))
		}
		r.dropped++
	} else {
		r.size++
	}
	r.items[r.next] = v
	r.next = (r.next + 1) % len(r.items)
}

// drain returns the buffered entries oldest first and empties the ring.
func (r *ring[T]) drain() []T {
	if r.size == 0 {
		return nil
	}
	out := make([]T, 0, r.size)
	first := (r.next - r.size + len(r.items)) % len(r.items)
	for i := 0; i < r.size; i++ {
		out = append(out, r.items[(first+i)%len(r.items)])
	}
	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.next, r.size, r.dropped = 0, 0, 0
	return out
}

func (r *ring[T]) len() int {
	return r.size
}
