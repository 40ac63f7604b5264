package gpio

import (
	"errors"
	"sync"
	"time"

	"github.com/sweeney/buttond/internal/button"
)

// FakeSource is a test double that injects scripted edges.
type FakeSource struct {
	mu      sync.Mutex
	buttons []button.ButtonSpec
	push    func(button.EdgeEvent) bool

	// StartError, if set, will be returned by Start.
	StartError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeSource creates an unstarted FakeSource.
func NewFakeSource() *FakeSource {
	return &FakeSource{}
}

// Start records the buttons and the push function.
func (f *FakeSource) Start(buttons []button.ButtonSpec, push func(button.EdgeEvent) bool) error {
	if f.StartError != nil {
		return f.StartError
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.push != nil {
		return errors.New("fake source already started")
	}
	f.buttons = buttons
	f.push = push
	return nil
}

// Buttons returns the buttons passed to Start.
func (f *FakeSource) Buttons() []button.ButtonSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buttons
}

// Emit delivers a raw edge for button index at ts. It reports whether the
// edge was queued.
func (f *FakeSource) Emit(index int, raw int, ts time.Duration) (bool, error) {
	f.mu.Lock()
	push := f.push
	f.mu.Unlock()
	if push == nil {
		return false, errors.New("fake source not started")
	}
	return push(button.EdgeEvent{Time: ts, Button: index, Level: levelOf(raw)}), nil
}

// Press emits the active level for button index.
func (f *FakeSource) Press(index int, ts time.Duration) (bool, error) {
	return f.Emit(index, f.raw(index, true), ts)
}

// Release emits the inactive level for button index.
func (f *FakeSource) Release(index int, ts time.Duration) (bool, error) {
	return f.Emit(index, f.raw(index, false), ts)
}

func (f *FakeSource) raw(index int, active bool) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	level := button.High
	if index >= 0 && index < len(f.buttons) {
		level = f.buttons[index].ActiveLevel
	}
	if !active {
		level ^= 1
	}
	return int(level)
}

// Close marks the source as closed.
func (f *FakeSource) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}
