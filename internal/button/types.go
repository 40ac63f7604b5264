// Package button turns raw GPIO edge transitions into press, held and release
// gestures for button combinations.
//
// Edges arrive from an EdgeSource on its own goroutine and are handed to the
// engine through a bounded queue that drops on overflow. A single worker
// (Engine.Run) owns all gesture state: the active-button mask, the per-button
// activation times and every combo's run-state. Nothing else touches that
// state, so no locks are taken on the hot path.
//
// Time is always a monotonic time.Duration since an arbitrary origin and is
// injectable through Options.Clock.
package button

import (
	"fmt"
	"math/bits"
	"time"
)

// MaxButtons is the number of buttons a Mask can address.
const MaxButtons = 64

// Level is an electrical pin level.
type Level uint8

const (
	Low  Level = 0
	High Level = 1
)

func (l Level) String() string {
	if l == High {
		return "HIGH"
	}
	return "LOW"
}

// Pull is the bias applied to an input pin.
type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

func (p Pull) String() string {
	switch p {
	case PullUp:
		return "up"
	case PullDown:
		return "down"
	default:
		return "none"
	}
}

// ButtonSpec is the physical identity of a button.
type ButtonSpec struct {
	Name        string
	Pin         int   // line offset on the GPIO chip
	Pull        Pull  // bias
	ActiveLevel Level // level that means "pressed"
}

// EdgeEvent is a single pin transition, or a synthetic wake-up when Wake is set.
type EdgeEvent struct {
	Time   time.Duration
	Button int
	Level  Level
	Wake   bool
}

func (e EdgeEvent) String() string {
	if e.Wake {
		return fmt.Sprintf("(%d) wake", e.Time.Microseconds())
	}
	return fmt.Sprintf("(%d) (%d)->%s", e.Time.Microseconds(), e.Button, e.Level)
}

// Mask is a set of button indexes, bit i for button i.
type Mask uint64

// Bit returns the mask containing only button i.
func Bit(i int) Mask {
	return Mask(1) << uint(i)
}

// MaskOf returns the mask containing the given buttons.
func MaskOf(buttons ...int) Mask {
	var m Mask
	for _, b := range buttons {
		m |= Bit(b)
	}
	return m
}

// Has reports whether button i is in the mask.
func (m Mask) Has(i int) bool {
	return m&Bit(i) != 0
}

// Count returns the number of buttons in the mask.
func (m Mask) Count() int {
	return bits.OnesCount64(uint64(m))
}

// Kind is the gesture reported to a callback.
type Kind uint8

const (
	Press Kind = iota
	Held
	Release
)

func (k Kind) String() string {
	switch k {
	case Press:
		return "PRESS"
	case Held:
		return "HELD"
	case Release:
		return "RELEASE"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Callback receives a gesture. It runs on the engine's worker goroutine and
// must return quickly; slow work belongs on the callee's own queue.
type Callback func(ts time.Duration, kind Kind)

// ComboSpec describes a combination of buttons and the gestures it reports.
//
// A combo is satisfied while every button in Buttons is active and every
// button in Ignore is inactive. Any of the three callbacks may be nil.
type ComboSpec struct {
	Name string

	Buttons Mask
	Ignore  Mask

	// MinTime is how long the combo must stay satisfied before it counts as
	// pressed. MaxTime caps the press duration for which a release is
	// reported. Interval is the held callback period.
	MinTime  time.Duration
	MaxTime  time.Duration
	Interval time.Duration

	OnPress   Callback
	OnHeld    Callback
	OnRelease Callback
}

// Handle identifies a registered combo.
type Handle int
