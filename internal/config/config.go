// Package config loads the button layout: physical buttons, the combos built
// from them, and what each combo's gestures should do.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/buttond/internal/button"
	"github.com/sweeney/buttond/internal/gpio"
)

// DefaultScreens is the number of screens the screen action cycles through.
const DefaultScreens = 6

// Config is the root of the YAML layout file.
type Config struct {
	Chip      string   `yaml:"chip"`
	QueueSize int      `yaml:"queue_size"`
	Screens   int      `yaml:"screens"`
	Buttons   []Button `yaml:"buttons"`
	Combos    []Combo  `yaml:"combos"`
}

// Button describes one physical input line.
type Button struct {
	Name   string `yaml:"name"`
	Pin    int    `yaml:"pin"`
	Pull   string `yaml:"pull"`   // none, up, down
	Active string `yaml:"active"` // low, high
}

// Combo describes a combination of buttons and its actions.
type Combo struct {
	Name     string        `yaml:"name"`
	Buttons  []string      `yaml:"buttons"`
	Ignore   []string      `yaml:"ignore"`
	MinTime  time.Duration `yaml:"min_time"`
	MaxTime  time.Duration `yaml:"max_time"`
	Interval time.Duration `yaml:"interval"`
	// Events lists the gestures to report: press, held, release.
	Events []string `yaml:"events"`
	// Screen steps the current screen on release: next or prev.
	Screen string `yaml:"screen"`
}

// Default returns the two-button layout of the reference board: two active-low
// buttons, each a tap that steps the screen while the other button is up.
func Default() *Config {
	return &Config{
		Chip:      gpio.DefaultChip,
		QueueSize: button.DefaultQueueSize,
		Screens:   DefaultScreens,
		Buttons: []Button{
			{Name: "left", Pin: 26, Pull: "up", Active: "low"},
			{Name: "right", Pin: 16, Pull: "up", Active: "low"},
		},
		Combos: []Combo{
			{
				Name:    "left-tap",
				Buttons: []string{"left"},
				Ignore:  []string{"right"},
				MinTime: 100 * time.Millisecond,
				MaxTime: 2 * time.Second,
				Events:  []string{"release"},
				Screen:  "prev",
			},
			{
				Name:    "right-tap",
				Buttons: []string{"right"},
				Ignore:  []string{"left"},
				MinTime: 100 * time.Millisecond,
				MaxTime: 2 * time.Second,
				Events:  []string{"release"},
				Screen:  "next",
			},
		},
	}
}

// Load reads and validates a layout file. An empty path returns Default.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML. Unknown fields are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Chip == "" {
		cfg.Chip = gpio.DefaultChip
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = button.DefaultQueueSize
	}
	if cfg.Screens == 0 {
		cfg.Screens = DefaultScreens
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks the layout without registering it.
func (c *Config) Validate() error {
	if len(c.Buttons) == 0 {
		return errors.New("no buttons")
	}
	if len(c.Buttons) > button.MaxButtons {
		return fmt.Errorf("%d buttons, at most %d supported", len(c.Buttons), button.MaxButtons)
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("queue_size %d must be positive", c.QueueSize)
	}
	if c.Screens < 0 {
		return fmt.Errorf("screens %d must be positive", c.Screens)
	}

	names := make(map[string]bool)
	for i, b := range c.Buttons {
		if b.Name == "" {
			return fmt.Errorf("button %d: missing name", i)
		}
		if names[b.Name] {
			return fmt.Errorf("button %q: duplicate name", b.Name)
		}
		names[b.Name] = true
		if _, err := b.Spec(); err != nil {
			return fmt.Errorf("button %q: %w", b.Name, err)
		}
	}

	combos := make(map[string]bool)
	for i, cb := range c.Combos {
		if cb.Name == "" {
			return fmt.Errorf("combo %d: missing name", i)
		}
		if combos[cb.Name] {
			return fmt.Errorf("combo %q: duplicate name", cb.Name)
		}
		combos[cb.Name] = true
		if len(cb.Buttons) == 0 {
			return fmt.Errorf("combo %q: no buttons", cb.Name)
		}
		for _, n := range append(append([]string{}, cb.Buttons...), cb.Ignore...) {
			if !names[n] {
				return fmt.Errorf("combo %q: unknown button %q", cb.Name, n)
			}
		}
		if cb.MinTime < 0 || cb.MaxTime < 0 || cb.Interval < 0 {
			return fmt.Errorf("combo %q: negative duration", cb.Name)
		}
		if _, err := cb.Kinds(); err != nil {
			return fmt.Errorf("combo %q: %w", cb.Name, err)
		}
		step, err := cb.ScreenStep()
		if err != nil {
			return fmt.Errorf("combo %q: %w", cb.Name, err)
		}
		// Release only fires below max_time, so a zero max_time never steps.
		if step != 0 && cb.MaxTime == 0 {
			return fmt.Errorf("combo %q: screen action needs max_time", cb.Name)
		}
	}
	return nil
}

// Spec converts the button to an engine ButtonSpec.
func (b Button) Spec() (button.ButtonSpec, error) {
	spec := button.ButtonSpec{Name: b.Name, Pin: b.Pin}
	if b.Pin < 0 {
		return spec, fmt.Errorf("pin %d must not be negative", b.Pin)
	}
	switch strings.ToLower(b.Pull) {
	case "", "none":
		spec.Pull = button.PullNone
	case "up":
		spec.Pull = button.PullUp
	case "down":
		spec.Pull = button.PullDown
	default:
		return spec, fmt.Errorf("unknown pull %q", b.Pull)
	}
	switch strings.ToLower(b.Active) {
	case "", "low":
		spec.ActiveLevel = button.Low
	case "high":
		spec.ActiveLevel = button.High
	default:
		return spec, fmt.Errorf("unknown active level %q", b.Active)
	}
	return spec, nil
}

// Kinds returns the gestures the combo reports. No events means press and
// release, plus held when an interval is set.
func (c Combo) Kinds() ([]button.Kind, error) {
	if len(c.Events) == 0 {
		if c.Interval > 0 {
			return []button.Kind{button.Press, button.Held, button.Release}, nil
		}
		return []button.Kind{button.Press, button.Release}, nil
	}
	var kinds []button.Kind
	for _, e := range c.Events {
		switch strings.ToLower(e) {
		case "press":
			kinds = append(kinds, button.Press)
		case "held":
			kinds = append(kinds, button.Held)
		case "release":
			kinds = append(kinds, button.Release)
		default:
			return nil, fmt.Errorf("unknown event %q", e)
		}
	}
	return kinds, nil
}

// ScreenStep returns +1 for next, -1 for prev and 0 for no screen action.
func (c Combo) ScreenStep() (int, error) {
	switch strings.ToLower(c.Screen) {
	case "":
		return 0, nil
	case "next":
		return 1, nil
	case "prev":
		return -1, nil
	default:
		return 0, fmt.Errorf("unknown screen action %q", c.Screen)
	}
}

// ButtonSpecs returns the engine specs in layout order.
func (c *Config) ButtonSpecs() ([]button.ButtonSpec, error) {
	specs := make([]button.ButtonSpec, len(c.Buttons))
	for i, b := range c.Buttons {
		spec, err := b.Spec()
		if err != nil {
			return nil, fmt.Errorf("button %q: %w", b.Name, err)
		}
		specs[i] = spec
	}
	return specs, nil
}
