package config

import (
	"fmt"

	"github.com/sweeney/buttond/internal/button"
)

// Registrar is the registration surface of the button engine.
type Registrar interface {
	RegisterButton(button.ButtonSpec) (int, error)
	RegisterCombo(button.ComboSpec) (button.Handle, error)
}

// CallbackFactory builds the callback for one gesture kind of a combo.
// Returning nil leaves that slot empty.
type CallbackFactory func(c Combo, kind button.Kind) button.Callback

// Register registers every button, then every combo, in layout order. Combos
// with a screen action always get a release callback.
func (c *Config) Register(r Registrar, callbacks CallbackFactory) error {
	index := make(map[string]int, len(c.Buttons))
	for _, b := range c.Buttons {
		spec, err := b.Spec()
		if err != nil {
			return fmt.Errorf("button %q: %w", b.Name, err)
		}
		i, err := r.RegisterButton(spec)
		if err != nil {
			return fmt.Errorf("register button %q: %w", b.Name, err)
		}
		index[b.Name] = i
	}

	for _, cb := range c.Combos {
		spec, err := cb.spec(index)
		if err != nil {
			return fmt.Errorf("combo %q: %w", cb.Name, err)
		}
		kinds, err := cb.Kinds()
		if err != nil {
			return fmt.Errorf("combo %q: %w", cb.Name, err)
		}
		if step, _ := cb.ScreenStep(); step != 0 && !hasKind(kinds, button.Release) {
			kinds = append(kinds, button.Release)
		}
		for _, k := range kinds {
			f := callbacks(cb, k)
			switch k {
			case button.Press:
				spec.OnPress = f
			case button.Held:
				spec.OnHeld = f
			case button.Release:
				spec.OnRelease = f
			}
		}
		if _, err := r.RegisterCombo(spec); err != nil {
			return fmt.Errorf("register combo %q: %w", cb.Name, err)
		}
	}
	return nil
}

func (c Combo) spec(index map[string]int) (button.ComboSpec, error) {
	spec := button.ComboSpec{
		Name:     c.Name,
		MinTime:  c.MinTime,
		MaxTime:  c.MaxTime,
		Interval: c.Interval,
	}
	for _, n := range c.Buttons {
		i, ok := index[n]
		if !ok {
			return spec, fmt.Errorf("unknown button %q", n)
		}
		spec.Buttons |= button.Bit(i)
	}
	for _, n := range c.Ignore {
		i, ok := index[n]
		if !ok {
			return spec, fmt.Errorf("unknown button %q", n)
		}
		spec.Ignore |= button.Bit(i)
	}
	return spec, nil
}

func hasKind(kinds []button.Kind, k button.Kind) bool {
	for _, have := range kinds {
		if have == k {
			return true
		}
	}
	return false
}
