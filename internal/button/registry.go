package button

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrArmed          = errors.New("button: registry already armed")
	ErrTooManyButtons = fmt.Errorf("button: more than %d buttons", MaxButtons)
	ErrMaskOverlap    = errors.New("button: combo buttons and ignore masks overlap")
	ErrEmptyMask      = errors.New("button: combo has no buttons")
	ErrUnknownButton  = errors.New("button: combo references unregistered button")
	ErrBadInterval    = errors.New("button: held callback needs a positive interval")
)

// combo is a registered ComboSpec plus the run-state the engine mutates.
type combo struct {
	spec      ComboSpec
	pressed   bool
	heldCount uint64
	nextHeld  time.Duration // valid once heldCount > 0
}

// Registry holds buttons and combos in registration order. It is append-only
// and becomes read-only once frozen.
type Registry struct {
	buttons []ButtonSpec
	combos  []combo
	frozen  bool
}

// RegisterButton assigns the next dense index to spec.
func (r *Registry) RegisterButton(spec ButtonSpec) (int, error) {
	if r.frozen {
		return 0, ErrArmed
	}
	if len(r.buttons) >= MaxButtons {
		return 0, ErrTooManyButtons
	}
	r.buttons = append(r.buttons, spec)
	return len(r.buttons) - 1, nil
}

// RegisterCombo validates spec and appends it to the evaluation order.
func (r *Registry) RegisterCombo(spec ComboSpec) (Handle, error) {
	if r.frozen {
		return 0, ErrArmed
	}
	if err := r.validate(spec); err != nil {
		if spec.Name != "" {
			return 0, fmt.Errorf("combo %q: %w", spec.Name, err)
		}
		return 0, err
	}
	r.combos = append(r.combos, combo{spec: spec})
	return Handle(len(r.combos) - 1), nil
}

func (r *Registry) validate(spec ComboSpec) error {
	if spec.Buttons == 0 {
		return ErrEmptyMask
	}
	if spec.Buttons&spec.Ignore != 0 {
		return ErrMaskOverlap
	}
	if (spec.Buttons|spec.Ignore)&^r.known() != 0 {
		return ErrUnknownButton
	}
	if spec.OnHeld != nil && spec.Interval <= 0 {
		return ErrBadInterval
	}
	return nil
}

// known returns the mask of every registered button.
func (r *Registry) known() Mask {
	if len(r.buttons) == MaxButtons {
		return ^Mask(0)
	}
	return Bit(len(r.buttons)) - 1
}

// Buttons returns a copy of the registered buttons, indexed by button index.
func (r *Registry) Buttons() []ButtonSpec {
	out := make([]ButtonSpec, len(r.buttons))
	copy(out, r.buttons)
	return out
}

// Combo returns the spec registered under h.
func (r *Registry) Combo(h Handle) (ComboSpec, bool) {
	if h < 0 || int(h) >= len(r.combos) {
		return ComboSpec{}, false
	}
	return r.combos[h].spec, true
}

// NumCombos returns the number of registered combos.
func (r *Registry) NumCombos() int {
	return len(r.combos)
}

func (r *Registry) freeze() {
	r.frozen = true
}
