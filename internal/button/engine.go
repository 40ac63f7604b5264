package button

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/bits"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrNotArmed is returned by Run before Arm has succeeded.
var ErrNotArmed = errors.New("button: engine not armed")

// EdgeSource delivers pin transitions. Start enables delivery for every
// button, indexed as in buttons, and calls push from its own goroutine(s) for
// each edge. push never blocks and reports false when the edge was dropped.
type EdgeSource interface {
	Start(buttons []ButtonSpec, push func(EdgeEvent) bool) error
}

// Options configures an Engine.
type Options struct {
	// QueueSize is the edge queue capacity. Zero means DefaultQueueSize.
	QueueSize int
	// Clock stamps synthetic wake-ups and measures deadlines. Nil means a
	// clock started at New.
	Clock Clock
	// Logger defaults to the logrus standard logger.
	Logger *logrus.Entry
	// OnMask, if set, is called on the worker goroutine each time the active
	// mask changes.
	OnMask func(Mask)
}

// Engine is the gesture worker. Registration and Arm happen on the setup
// goroutine; after Arm only Run touches engine state.
type Engine struct {
	reg    Registry
	queue  *Queue
	clock  Clock
	log    *logrus.Entry
	onMask func(Mask)

	active Mask
	start  [MaxButtons]time.Duration
}

// New creates an unarmed engine.
func New(opts Options) *Engine {
	clock := opts.Clock
	if clock == nil {
		clock = SinceClock(time.Now())
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Engine{
		queue:  NewQueue(opts.QueueSize),
		clock:  clock,
		log:    logger,
		onMask: opts.OnMask,
	}
}

// RegisterButton assigns the next button index. It fails once armed.
func (e *Engine) RegisterButton(spec ButtonSpec) (int, error) {
	return e.reg.RegisterButton(spec)
}

// RegisterCombo validates and appends a combo. It fails once armed.
func (e *Engine) RegisterCombo(spec ComboSpec) (Handle, error) {
	return e.reg.RegisterCombo(spec)
}

// Buttons returns the registered buttons by index.
func (e *Engine) Buttons() []ButtonSpec {
	return e.reg.Buttons()
}

// Queue returns the engine's edge queue.
func (e *Engine) Queue() *Queue {
	return e.queue
}

// Dropped returns the number of edges lost to queue overflow.
func (e *Engine) Dropped() uint64 {
	return e.queue.Dropped()
}

// Arm freezes the registry and starts edge delivery. It may succeed only once.
func (e *Engine) Arm(src EdgeSource) error {
	if e.reg.frozen {
		return ErrArmed
	}
	e.reg.freeze()
	if err := src.Start(e.reg.Buttons(), e.queue.TryPush); err != nil {
		e.reg.frozen = false
		return fmt.Errorf("start edge source: %w", err)
	}
	e.log.WithFields(logrus.Fields{
		"buttons": len(e.reg.buttons),
		"combos":  len(e.reg.combos),
		"queue":   e.queue.Cap(),
	}).Info("button engine armed")
	return nil
}

// Run is the worker loop. With no buttons active it sleeps until the next
// edge; otherwise it wakes at the soonest pending deadline and re-evaluates
// with a synthetic event. It returns only when ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	if !e.reg.frozen {
		return ErrNotArmed
	}
	var (
		deadline time.Duration
		pending  bool
	)
	for {
		var wait time.Duration
		if pending {
			wait = deadline - e.clock()
		}
		evt, ok, err := e.queue.Receive(ctx, wait, pending)
		if err != nil {
			return err
		}
		if !ok {
			evt = EdgeEvent{Wake: true}
		}
		deadline, pending = e.Process(evt)
	}
}

// Process runs one engine iteration for evt and returns the soonest deadline
// at which the engine must be woken even without a new edge. pending is false
// when nothing is scheduled.
func (e *Engine) Process(evt EdgeEvent) (deadline time.Duration, pending bool) {
	mask := e.active
	if evt.Wake {
		evt.Time = e.clock()
	} else if evt.Button < 0 || evt.Button >= len(e.reg.buttons) {
		e.log.WithField("button", evt.Button).Warn("edge for unknown button")
	} else {
		bit := Bit(evt.Button)
		if evt.Level == e.reg.buttons[evt.Button].ActiveLevel {
			if mask&bit == 0 {
				e.start[evt.Button] = evt.Time
			}
			mask |= bit
		} else {
			mask &^= bit
		}
	}
	if e.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		e.log.WithField("mask", fmt.Sprintf("%#x", uint64(mask))).Debugf("edge %s", evt)
	}

	now := evt.Time
	for i := range e.reg.combos {
		c := &e.reg.combos[i]
		start := e.startTime(c.spec.Buttons)
		dur := now - start

		if mask&c.spec.Buttons == c.spec.Buttons && mask&c.spec.Ignore == 0 {
			if !c.pressed {
				if dur > c.spec.MinTime {
					c.pressed = true
					e.fire(c, c.spec.OnPress, start, Press)
				} else {
					deadline, pending = earliest(deadline, pending, due(start+c.spec.MinTime))
				}
			}
			if c.spec.OnHeld != nil {
				// Repeats are paced from the last fire, not the baseline, so a
				// combo satisfied late still fires once per interval.
				next := due(start + c.spec.MinTime)
				if c.heldCount > 0 {
					next = c.nextHeld
				}
				if now >= next {
					c.heldCount++
					c.nextHeld = now + c.spec.Interval
					e.fire(c, c.spec.OnHeld, now, Held)
					next = c.nextHeld
				}
				deadline, pending = earliest(deadline, pending, next)
			}
			continue
		}

		if c.pressed {
			c.pressed = false
			// A combo held for MaxTime or longer releases silently: the long
			// press is consumed rather than reported as a tap.
			if dur < c.spec.MaxTime {
				e.fire(c, c.spec.OnRelease, now, Release)
			}
		}
		c.heldCount = 0
	}

	if mask != e.active {
		e.active = mask
		if e.onMask != nil {
			e.onMask(mask)
		}
	}
	if mask == 0 {
		return 0, false
	}
	return deadline, pending
}

// startTime returns the earliest activation time among the buttons in m.
func (e *Engine) startTime(m Mask) time.Duration {
	start := time.Duration(math.MaxInt64)
	for b := uint64(m); b != 0; b &= b - 1 {
		if t := e.start[bits.TrailingZeros64(b)]; t < start {
			start = t
		}
	}
	return start
}

// fire invokes cb after the combo's run-state has been committed. A panicking
// callback is logged and does not stop the worker.
func (e *Engine) fire(c *combo, cb Callback, ts time.Duration, kind Kind) {
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.log.WithFields(logrus.Fields{
				"combo": c.spec.Name,
				"kind":  kind,
			}).Errorf("callback panic: %v", r)
		}
	}()
	if e.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		e.log.WithFields(logrus.Fields{
			"combo": c.spec.Name,
			"kind":  kind,
			"ts_us": ts.Microseconds(),
		}).Debug("gesture")
	}
	cb(ts, kind)
}

// due converts a duration threshold into the first instant past it, since
// durations must strictly exceed their thresholds.
func due(threshold time.Duration) time.Duration {
	return threshold + 1
}

func earliest(cur time.Duration, ok bool, t time.Duration) (time.Duration, bool) {
	if !ok || t < cur {
		return t, true
	}
	return cur, true
}
