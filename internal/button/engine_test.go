package button

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

const us = time.Microsecond

type manualClock struct {
	now time.Duration
}

func (c *manualClock) Now() time.Duration { return c.now }

type gesture struct {
	combo string
	kind  Kind
	ts    time.Duration // timestamp passed to the callback
	at    time.Duration // clock reading when the callback ran
}

type recorder struct {
	clock  *manualClock
	events []gesture
}

func (r *recorder) cb(combo string) Callback {
	return func(ts time.Duration, kind Kind) {
		r.events = append(r.events, gesture{combo: combo, kind: kind, ts: ts, at: r.clock.now})
	}
}

func (r *recorder) kinds(kind Kind) []gesture {
	var out []gesture
	for _, g := range r.events {
		if g.kind == kind {
			out = append(out, g)
		}
	}
	return out
}

type stubSource struct {
	buttons []ButtonSpec
	push    func(EdgeEvent) bool
	err     error
}

func (s *stubSource) Start(buttons []ButtonSpec, push func(EdgeEvent) bool) error {
	if s.err != nil {
		return s.err
	}
	s.buttons = buttons
	s.push = push
	return nil
}

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// newTestEngine registers active-high buttons A, B and C (indexes 0, 1, 2).
func newTestEngine(t *testing.T) (*Engine, *manualClock, *recorder) {
	t.Helper()
	clk := &manualClock{}
	e := New(Options{Clock: clk.Now, Logger: quietLogger()})
	for _, name := range []string{"A", "B", "C"} {
		if _, err := e.RegisterButton(ButtonSpec{Name: name, ActiveLevel: High}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	return e, clk, &recorder{clock: clk}
}

func (r *recorder) combo(name string, buttons, ignore Mask, min, max, interval time.Duration, held bool) ComboSpec {
	spec := ComboSpec{
		Name:      name,
		Buttons:   buttons,
		Ignore:    ignore,
		MinTime:   min,
		MaxTime:   max,
		Interval:  interval,
		OnPress:   r.cb(name),
		OnRelease: r.cb(name),
	}
	if held {
		spec.OnHeld = r.cb(name)
	}
	return spec
}

// edge delivers a real edge at ts, advancing the clock to it.
func edge(e *Engine, clk *manualClock, ts time.Duration, button int, level Level) (time.Duration, bool) {
	clk.now = ts
	return e.Process(EdgeEvent{Time: ts, Button: button, Level: level})
}

// wakeUntil emulates the worker's timeouts: it wakes the engine at every
// pending deadline up to and including limit.
func wakeUntil(e *Engine, clk *manualClock, deadline time.Duration, pending bool, limit time.Duration) (time.Duration, bool) {
	for pending && deadline <= limit {
		clk.now = deadline
		deadline, pending = e.Process(EdgeEvent{Wake: true})
	}
	return deadline, pending
}

func TestDebounceRejection(t *testing.T) {
	e, clk, rec := newTestEngine(t)
	if _, err := e.RegisterCombo(rec.combo("a", Bit(0), 0, 100000*us, 2000000*us, 0, false)); err != nil {
		t.Fatal(err)
	}

	d, p := edge(e, clk, 0, 0, High)
	d, p = wakeUntil(e, clk, d, p, 50000*us-1)
	edge(e, clk, 50000*us, 0, Low)
	wakeUntil(e, clk, d, p, 10*time.Second)

	if len(rec.events) != 0 {
		t.Errorf("expected no gestures for a bounce, got %+v", rec.events)
	}
}

func TestPressThenTapRelease(t *testing.T) {
	e, clk, rec := newTestEngine(t)
	if _, err := e.RegisterCombo(rec.combo("a", Bit(0), 0, 100000*us, 2000000*us, 0, false)); err != nil {
		t.Fatal(err)
	}

	d, p := edge(e, clk, 0, 0, High)
	if !p {
		t.Fatal("expected a pending press deadline")
	}
	if d.Microseconds() != 100000 {
		t.Errorf("press deadline: got %v, want ~100ms", d)
	}

	d, p = wakeUntil(e, clk, d, p, 150000*us-1)
	if p {
		t.Errorf("expected nothing pending after press, got deadline %v", d)
	}
	edge(e, clk, 150000*us, 0, Low)

	if len(rec.events) != 2 {
		t.Fatalf("expected press and release, got %+v", rec.events)
	}
	press, release := rec.events[0], rec.events[1]
	if press.kind != Press {
		t.Errorf("first gesture: got %s, want PRESS", press.kind)
	}
	if press.ts != 0 {
		t.Errorf("press timestamp: got %v, want baseline 0", press.ts)
	}
	if press.at.Microseconds() != 100000 {
		t.Errorf("press fired at %v, want ~100ms", press.at)
	}
	if release.kind != Release {
		t.Errorf("second gesture: got %s, want RELEASE", release.kind)
	}
	if release.ts != 150000*us {
		t.Errorf("release timestamp: got %v, want 150ms", release.ts)
	}
}

func TestLongHoldSuppressesRelease(t *testing.T) {
	e, clk, rec := newTestEngine(t)
	if _, err := e.RegisterCombo(rec.combo("a", Bit(0), 0, 100000*us, 2000000*us, 500000*us, true)); err != nil {
		t.Fatal(err)
	}

	d, p := edge(e, clk, 0, 0, High)
	wakeUntil(e, clk, d, p, 2100000*us-1)
	edge(e, clk, 2100000*us, 0, Low)

	if n := len(rec.kinds(Press)); n != 1 {
		t.Errorf("expected 1 press, got %d", n)
	}
	if n := len(rec.kinds(Held)); n < 2 {
		t.Errorf("expected periodic held gestures, got %d", n)
	}
	if n := len(rec.kinds(Release)); n != 0 {
		t.Errorf("expected no release after holding past max_time, got %d", n)
	}
}

func TestReleaseJustUnderMaxTime(t *testing.T) {
	e, clk, rec := newTestEngine(t)
	if _, err := e.RegisterCombo(rec.combo("a", Bit(0), 0, 100000*us, 2000000*us, 0, false)); err != nil {
		t.Fatal(err)
	}

	d, p := edge(e, clk, 0, 0, High)
	wakeUntil(e, clk, d, p, 1999999*us)
	edge(e, clk, 1999999*us, 0, Low)

	if n := len(rec.kinds(Release)); n != 1 {
		t.Errorf("expected release just under max_time, got %d", n)
	}
}

func TestHoldRepeatCadence(t *testing.T) {
	e, clk, rec := newTestEngine(t)
	if _, err := e.RegisterCombo(rec.combo("a", Bit(0), 0, 100000*us, 10*time.Second, 50000*us, true)); err != nil {
		t.Fatal(err)
	}

	d, p := edge(e, clk, 0, 0, High)
	wakeUntil(e, clk, d, p, 260000*us)

	held := rec.kinds(Held)
	want := []int64{100000, 150000, 200000, 250000}
	if len(held) != len(want) {
		t.Fatalf("expected %d held gestures, got %d: %+v", len(want), len(held), held)
	}
	for i, g := range held {
		if g.ts.Microseconds() != want[i] {
			t.Errorf("held %d: got %dus, want %dus", i, g.ts.Microseconds(), want[i])
		}
	}
	if c := e.reg.combos[0].heldCount; c != uint64(len(want)) {
		t.Errorf("held count: got %d, want %d", c, len(want))
	}
	if n := len(rec.kinds(Press)); n != 1 {
		t.Errorf("expected 1 press, got %d", n)
	}
}

func TestHeldCountResetsOnRelease(t *testing.T) {
	e, clk, rec := newTestEngine(t)
	if _, err := e.RegisterCombo(rec.combo("a", Bit(0), 0, 100000*us, 10*time.Second, 50000*us, true)); err != nil {
		t.Fatal(err)
	}

	d, p := edge(e, clk, 0, 0, High)
	wakeUntil(e, clk, d, p, 200000*us)
	edge(e, clk, 210000*us, 0, Low)

	c := e.reg.combos[0]
	if c.pressed || c.heldCount != 0 {
		t.Errorf("run-state not reset: pressed=%v heldCount=%d", c.pressed, c.heldCount)
	}

	rec.events = nil
	d, p = edge(e, clk, 1000000*us, 0, High)
	wakeUntil(e, clk, d, p, 1120000*us)
	held := rec.kinds(Held)
	if len(held) != 1 || held[0].ts.Microseconds() != 1100000 {
		t.Errorf("expected cadence to restart from the new press, got %+v", held)
	}
}

func TestLateComboHeldPacedByInterval(t *testing.T) {
	e, clk, rec := newTestEngine(t)
	if _, err := e.RegisterCombo(rec.combo("ab", Bit(0)|Bit(1), 0, 100000*us, 10*time.Second, 50000*us, true)); err != nil {
		t.Fatal(err)
	}

	edge(e, clk, 0, 0, High)
	d, p := edge(e, clk, 2*time.Second, 1, High)
	if n := len(rec.kinds(Held)); n != 1 {
		t.Fatalf("expected 1 held when the combo completes, got %d", n)
	}
	if !p || d != 2050000*us {
		t.Fatalf("next deadline: got %v (pending %v), want 2.05s", d, p)
	}
	if d, p := e.Process(EdgeEvent{Wake: true}); len(rec.kinds(Held)) != 1 || d != 2050000*us || !p {
		t.Fatalf("early wake fired or moved the deadline: held %d, deadline %v", len(rec.kinds(Held)), d)
	}

	wakeUntil(e, clk, d, p, 2120000*us)

	held := rec.kinds(Held)
	want := []int64{2000000, 2050000, 2100000}
	if len(held) != len(want) {
		t.Fatalf("expected %d held gestures, got %d: %+v", len(want), len(held), held)
	}
	for i, g := range held {
		if g.ts.Microseconds() != want[i] {
			t.Errorf("held %d: got %dus, want %dus", i, g.ts.Microseconds(), want[i])
		}
	}
}

func TestIgnoreReleaseHeldPacedByInterval(t *testing.T) {
	e, clk, rec := newTestEngine(t)
	if _, err := e.RegisterCombo(rec.combo("a", Bit(0), Bit(2), 100000*us, 10*time.Second, 50000*us, true)); err != nil {
		t.Fatal(err)
	}

	edge(e, clk, 0, 2, High)
	edge(e, clk, 10000*us, 0, High)
	d, p := edge(e, clk, time.Second, 2, Low)
	d, p = wakeUntil(e, clk, d, p, 1149000*us)

	held := rec.kinds(Held)
	if len(held) != 3 {
		t.Fatalf("expected 3 held gestures, got %d: %+v", len(held), held)
	}
	if !p || d != 1150000*us {
		t.Errorf("next deadline: got %v (pending %v), want 1.15s", d, p)
	}
}

func TestComboGating(t *testing.T) {
	e, clk, rec := newTestEngine(t)
	if _, err := e.RegisterCombo(rec.combo("ab", MaskOf(0, 1), Bit(2), 100000*us, 2000000*us, 0, false)); err != nil {
		t.Fatal(err)
	}

	edge(e, clk, 0, 0, High)
	d, p := edge(e, clk, 10000*us, 1, High)
	wakeUntil(e, clk, d, p, 300000*us)
	if n := len(rec.kinds(Press)); n != 1 {
		t.Fatalf("expected press while A and B held, got %d", n)
	}

	edge(e, clk, 400000*us, 2, High)
	rel := rec.kinds(Release)
	if len(rel) != 1 {
		t.Fatalf("expected C to release the combo, got %+v", rec.events)
	}
	if rel[0].ts != 400000*us {
		t.Errorf("release timestamp: got %v, want 400ms", rel[0].ts)
	}

	// A and B still held but C forbids the combo.
	d, p = edge(e, clk, 500000*us, 0, High)
	wakeUntil(e, clk, d, p, 5*time.Second)
	if n := len(rec.kinds(Press)); n != 1 {
		t.Errorf("combo must not press while C is active, got %d presses", n)
	}
}

func TestStartTimeMinimum(t *testing.T) {
	e, clk, rec := newTestEngine(t)
	if _, err := e.RegisterCombo(rec.combo("ab", MaskOf(0, 1), 0, 100000*us, 2000000*us, 0, false)); err != nil {
		t.Fatal(err)
	}

	edge(e, clk, 0, 0, High)
	d, p := edge(e, clk, 30000*us, 1, High)
	if !p || d.Microseconds() != 100000 {
		t.Errorf("deadline: got %v (pending=%v), want ~100ms from the earliest button", d, p)
	}
	wakeUntil(e, clk, d, p, time.Second)

	press := rec.kinds(Press)
	if len(press) != 1 {
		t.Fatalf("expected 1 press, got %d", len(press))
	}
	if press[0].ts != 0 {
		t.Errorf("press baseline: got %v, want 0", press[0].ts)
	}
}

func TestIdleNeverFires(t *testing.T) {
	e, clk, rec := newTestEngine(t)
	if _, err := e.RegisterCombo(rec.combo("a", Bit(0), 0, 100000*us, 2000000*us, 50000*us, true)); err != nil {
		t.Fatal(err)
	}

	clk.now = 5 * time.Second
	if _, p := e.Process(EdgeEvent{Wake: true}); p {
		t.Error("idle engine should have nothing pending")
	}
	if len(rec.events) != 0 {
		t.Errorf("idle engine fired %+v", rec.events)
	}
}

func TestRegistrationOrderIsEvaluationOrder(t *testing.T) {
	e, clk, _ := newTestEngine(t)
	var order []string
	for _, name := range []string{"first", "second", "third"} {
		name := name
		_, err := e.RegisterCombo(ComboSpec{
			Name:    name,
			Buttons: Bit(0),
			MinTime: 10 * time.Millisecond,
			MaxTime: time.Second,
			OnPress: func(time.Duration, Kind) { order = append(order, name) },
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	d, p := edge(e, clk, 0, 0, High)
	wakeUntil(e, clk, d, p, time.Second)

	want := []string{"first", "second", "third"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("position %d: got %s, want %s", i, order[i], want[i])
		}
	}
}

func TestSoonestDeadlineWins(t *testing.T) {
	e, clk, rec := newTestEngine(t)
	if _, err := e.RegisterCombo(rec.combo("slow", Bit(0), 0, 500*time.Millisecond, 2*time.Second, 0, false)); err != nil {
		t.Fatal(err)
	}
	if _, err := e.RegisterCombo(rec.combo("fast", Bit(0), 0, 100*time.Millisecond, 2*time.Second, 0, false)); err != nil {
		t.Fatal(err)
	}

	d, p := edge(e, clk, 0, 0, High)
	if !p || d != 100*time.Millisecond+1 {
		t.Errorf("deadline: got %v, want the fast combo's", d)
	}
}

func TestActiveLowButton(t *testing.T) {
	clk := &manualClock{}
	rec := &recorder{clock: clk}
	e := New(Options{Clock: clk.Now, Logger: quietLogger()})
	if _, err := e.RegisterButton(ButtonSpec{Name: "boot", Pin: 0, Pull: PullUp, ActiveLevel: Low}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.RegisterCombo(rec.combo("boot", Bit(0), 0, 100*time.Millisecond, 2*time.Second, 0, false)); err != nil {
		t.Fatal(err)
	}

	d, p := edge(e, clk, 0, 0, Low)
	wakeUntil(e, clk, d, p, 200*time.Millisecond)
	edge(e, clk, 300*time.Millisecond, 0, High)

	if len(rec.events) != 2 || rec.events[0].kind != Press || rec.events[1].kind != Release {
		t.Errorf("expected press then release, got %+v", rec.events)
	}
}

func TestRepeatedActiveEdgeKeepsStartTime(t *testing.T) {
	e, clk, rec := newTestEngine(t)
	if _, err := e.RegisterCombo(rec.combo("a", Bit(0), 0, 100*time.Millisecond, 2*time.Second, 0, false)); err != nil {
		t.Fatal(err)
	}

	edge(e, clk, 0, 0, High)
	// A dropped release leaves two active edges in a row.
	d, p := edge(e, clk, 80*time.Millisecond, 0, High)
	if d != 100*time.Millisecond+1 || !p {
		t.Errorf("deadline: got %v, want baseline from the first edge", d)
	}
}

func TestUnknownButtonEdgeIgnored(t *testing.T) {
	e, clk, rec := newTestEngine(t)
	if _, err := e.RegisterCombo(rec.combo("a", Bit(0), 0, 100*time.Millisecond, 2*time.Second, 0, false)); err != nil {
		t.Fatal(err)
	}
	edge(e, clk, 0, 7, High)
	edge(e, clk, 0, -1, High)
	if e.active != 0 {
		t.Errorf("active mask: got %#x, want 0", e.active)
	}
	if len(rec.events) != 0 {
		t.Errorf("unexpected gestures %+v", rec.events)
	}
}

func TestCallbackPanicKeepsState(t *testing.T) {
	e, clk, _ := newTestEngine(t)
	_, err := e.RegisterCombo(ComboSpec{
		Name:    "boom",
		Buttons: Bit(0),
		MinTime: 10 * time.Millisecond,
		MaxTime: time.Second,
		OnPress: func(time.Duration, Kind) { panic("boom") },
	})
	if err != nil {
		t.Fatal(err)
	}

	d, p := edge(e, clk, 0, 0, High)
	wakeUntil(e, clk, d, p, time.Second)

	if !e.reg.combos[0].pressed {
		t.Error("pressed should be committed even though the callback panicked")
	}
}

func TestOnMask(t *testing.T) {
	clk := &manualClock{}
	var masks []Mask
	e := New(Options{Clock: clk.Now, Logger: quietLogger(), OnMask: func(m Mask) { masks = append(masks, m) }})
	for i := 0; i < 2; i++ {
		if _, err := e.RegisterButton(ButtonSpec{ActiveLevel: High}); err != nil {
			t.Fatal(err)
		}
	}

	edge(e, clk, 0, 0, High)
	edge(e, clk, 1, 1, High)
	edge(e, clk, 2, 1, High) // no change
	edge(e, clk, 3, 0, Low)
	edge(e, clk, 4, 1, Low)

	want := []Mask{0x1, 0x3, 0x2, 0x0}
	if len(masks) != len(want) {
		t.Fatalf("got %v, want %v", masks, want)
	}
	for i := range want {
		if masks[i] != want[i] {
			t.Errorf("mask %d: got %#x, want %#x", i, masks[i], want[i])
		}
	}
}

func TestArm(t *testing.T) {
	e, _, _ := newTestEngine(t)
	src := &stubSource{}
	if err := e.Arm(src); err != nil {
		t.Fatalf("arm: %v", err)
	}
	if len(src.buttons) != 3 {
		t.Errorf("source got %d buttons, want 3", len(src.buttons))
	}
	if err := e.Arm(src); !errors.Is(err, ErrArmed) {
		t.Errorf("second arm: got %v, want ErrArmed", err)
	}
	if _, err := e.RegisterButton(ButtonSpec{}); !errors.Is(err, ErrArmed) {
		t.Errorf("register after arm: got %v, want ErrArmed", err)
	}
	if _, err := e.RegisterCombo(ComboSpec{Buttons: Bit(0)}); !errors.Is(err, ErrArmed) {
		t.Errorf("register combo after arm: got %v, want ErrArmed", err)
	}
}

func TestArmSourceFailure(t *testing.T) {
	e, _, _ := newTestEngine(t)
	err := e.Arm(&stubSource{err: errors.New("no chip")})
	if err == nil {
		t.Fatal("expected arm to fail")
	}
	if _, err := e.RegisterButton(ButtonSpec{}); err != nil {
		t.Errorf("failed arm should leave registry open, got %v", err)
	}
	if err := e.Run(context.Background()); !errors.Is(err, ErrNotArmed) {
		t.Errorf("run: got %v, want ErrNotArmed", err)
	}
}

func TestRunIdleBlocksUntilCancel(t *testing.T) {
	e, _, rec := newTestEngine(t)
	if _, err := e.RegisterCombo(rec.combo("a", Bit(0), 0, time.Millisecond, time.Second, time.Millisecond, true)); err != nil {
		t.Fatal(err)
	}
	if err := e.Arm(&stubSource{}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := e.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("run: got %v, want deadline exceeded", err)
	}
	if len(rec.events) != 0 {
		t.Errorf("idle run fired %+v", rec.events)
	}
}

func TestRunDeliversGestures(t *testing.T) {
	e := New(Options{Logger: quietLogger()})
	if _, err := e.RegisterButton(ButtonSpec{Name: "A", ActiveLevel: High}); err != nil {
		t.Fatal(err)
	}

	var kinds []Kind
	got := make(chan Kind, 16)
	cb := func(_ time.Duration, k Kind) { got <- k }
	_, err := e.RegisterCombo(ComboSpec{
		Buttons:   Bit(0),
		MinTime:   20 * time.Millisecond,
		MaxTime:   time.Second,
		OnPress:   cb,
		OnRelease: cb,
	})
	if err != nil {
		t.Fatal(err)
	}
	src := &stubSource{}
	if err := e.Arm(src); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	src.push(EdgeEvent{Time: e.clock(), Button: 0, Level: High})

	wait := func() {
		select {
		case k := <-got:
			kinds = append(kinds, k)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for gesture")
		}
	}
	// Press comes from the engine's own deadline, not from a new edge.
	wait()
	src.push(EdgeEvent{Time: e.clock(), Button: 0, Level: Low})
	wait()

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("run: got %v, want context.Canceled", err)
	}

	if len(kinds) != 2 || kinds[0] != Press || kinds[1] != Release {
		t.Errorf("got %v, want [PRESS RELEASE]", kinds)
	}
}
