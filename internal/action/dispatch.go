// Package action turns engine callbacks into published gestures and screen
// changes. Callbacks only enqueue; all slow work happens on the dispatcher's
// own goroutine.
package action

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sweeney/buttond/internal/button"
	"github.com/sweeney/buttond/internal/config"
	"github.com/sweeney/buttond/internal/mqtt"
	"github.com/sweeney/buttond/internal/status"
)

// DefaultOutboxSize is the number of gestures that may wait for dispatch.
const DefaultOutboxSize = 32

// Broadcaster receives every published gesture payload, e.g. a live web feed.
type Broadcaster interface {
	Broadcast(payload []byte)
}

// Options configures a Dispatcher. Publisher is required.
type Options struct {
	Publisher  mqtt.Publisher
	Tracker    *status.Tracker // optional
	Live       Broadcaster     // optional
	Session    string          // defaults to a random UUID
	Now        func() time.Time
	OutboxSize int
	Logger     *logrus.Entry
}

type gesture struct {
	combo   string
	kind    button.Kind
	ts      time.Duration
	step    int
	publish bool
}

// Dispatcher owns the gesture outbox.
type Dispatcher struct {
	pub     mqtt.Publisher
	tracker *status.Tracker
	live    Broadcaster
	session string
	now     func() time.Time
	log     *logrus.Entry

	outbox  chan gesture
	dropped atomic.Uint64
}

// New creates a Dispatcher.
func New(opts Options) *Dispatcher {
	size := opts.OutboxSize
	if size <= 0 {
		size = DefaultOutboxSize
	}
	session := opts.Session
	if session == "" {
		session = uuid.NewString()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Dispatcher{
		pub:     opts.Publisher,
		tracker: opts.Tracker,
		live:    opts.Live,
		session: session,
		now:     now,
		log:     logger,
		outbox:  make(chan gesture, size),
	}
}

// Session returns the per-boot id stamped on every gesture.
func (d *Dispatcher) Session() string {
	return d.session
}

// Dropped returns the number of gestures lost because the outbox was full.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Callback builds the engine callback for one kind of c. It has the
// config.CallbackFactory signature. The returned callback never blocks.
func (d *Dispatcher) Callback(c config.Combo, kind button.Kind) button.Callback {
	publish := true
	if kinds, err := c.Kinds(); err == nil {
		publish = containsKind(kinds, kind)
	}
	step := 0
	if kind == button.Release {
		step, _ = c.ScreenStep()
	}
	name := c.Name
	return func(ts time.Duration, k button.Kind) {
		d.enqueue(gesture{combo: name, kind: k, ts: ts, step: step, publish: publish})
	}
}

func (d *Dispatcher) enqueue(g gesture) {
	select {
	case d.outbox <- g:
	default:
		if d.dropped.Add(1) == 1 {
			d.log.WithField("combo", g.combo).Warn("gesture outbox full, dropping")
		}
	}
}

// Run dispatches queued gestures until ctx is done, then flushes what is
// already queued and returns.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case g := <-d.outbox:
			d.handle(g)
		case <-ctx.Done():
			for {
				select {
				case g := <-d.outbox:
					d.handle(g)
				default:
					return nil
				}
			}
		}
	}
}

func (d *Dispatcher) handle(g gesture) {
	event := mqtt.GestureEvent{
		Timestamp: d.now(),
		Session:   d.session,
		Combo:     g.combo,
		Kind:      g.kind,
		Monotonic: g.ts,
	}
	if d.tracker != nil {
		if g.step != 0 {
			screen := d.tracker.StepScreen(g.step)
			event.Screen = &screen
			d.log.WithField("combo", g.combo).Infof("screen %d", screen)
		}
		if g.publish {
			d.tracker.RecordGesture(g.kind)
		}
	}
	if !g.publish {
		return
	}

	d.log.WithFields(logrus.Fields{
		"combo": g.combo,
		"kind":  g.kind,
	}).Info("gesture")

	if err := d.pub.Publish(event); err != nil {
		d.log.WithError(err).Warn("publish error")
	}
	if d.live != nil {
		if payload, err := mqtt.FormatPayload(event); err == nil {
			d.live.Broadcast(payload)
		}
	}
}

func containsKind(kinds []button.Kind, k button.Kind) bool {
	for _, have := range kinds {
		if have == k {
			return true
		}
	}
	return false
}
