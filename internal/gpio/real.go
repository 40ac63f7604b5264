//go:build linux

package gpio

import (
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
	"golang.org/x/sys/unix"

	"github.com/sweeney/buttond/internal/button"
)

// LineSource watches button lines for both edges. Each edge is stamped by the
// kernel on CLOCK_MONOTONIC, the same base as Now.
type LineSource struct {
	chip  *gpiocdev.Chip
	lines []*gpiocdev.Line
}

// NewLineSource opens the named GPIO chip.
func NewLineSource(chip string) (*LineSource, error) {
	c, err := gpiocdev.NewChip(chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chip, err)
	}
	return &LineSource{chip: c}, nil
}

// Start requests every button line with both-edge detection. The event
// handler runs on gpiocdev's watcher goroutine and only pushes onto the
// engine queue; it never blocks. On failure any lines already requested are
// released.
func (s *LineSource) Start(buttons []button.ButtonSpec, push func(button.EdgeEvent) bool) error {
	for i, b := range buttons {
		index := i
		handler := func(evt gpiocdev.LineEvent) {
			level := button.Low
			if evt.Type == gpiocdev.LineEventRisingEdge {
				level = button.High
			}
			push(button.EdgeEvent{Time: evt.Timestamp, Button: index, Level: level})
		}
		opts := []gpiocdev.LineReqOption{
			gpiocdev.AsInput,
			biasOption(b.Pull),
			gpiocdev.WithBothEdges,
			gpiocdev.WithMonotonicEventClock,
			gpiocdev.WithEventHandler(handler),
		}
		if b.Name != "" {
			opts = append(opts, gpiocdev.WithConsumer("buttond-"+b.Name))
		}
		line, err := s.chip.RequestLine(b.Pin, opts...)
		if err != nil {
			s.closeLines()
			return fmt.Errorf("request button %d (pin %d): %w", i, b.Pin, err)
		}
		s.lines = append(s.lines, line)
	}
	return nil
}

// Close releases all lines and the chip. Lines are reconfigured to plain
// inputs first so the pins are left in a safe state.
func (s *LineSource) Close() error {
	var errs []error
	for _, l := range s.lines {
		if err := l.Reconfigure(gpiocdev.AsInput); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure line %d: %w", l.Offset(), err))
		}
	}
	errs = append(errs, s.closeLines()...)
	if s.chip != nil {
		if err := s.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func (s *LineSource) closeLines() []error {
	var errs []error
	for _, l := range s.lines {
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line %d: %w", l.Offset(), err))
		}
	}
	s.lines = nil
	return errs
}

// ReadLevels reads the current level of each button without watching edges.
func ReadLevels(chip string, buttons []button.ButtonSpec) ([]button.Level, error) {
	c, err := gpiocdev.NewChip(chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chip, err)
	}
	defer c.Close()

	levels := make([]button.Level, len(buttons))
	for i, b := range buttons {
		line, err := c.RequestLine(b.Pin, gpiocdev.AsInput, biasOption(b.Pull))
		if err != nil {
			return nil, fmt.Errorf("request button %d (pin %d): %w", i, b.Pin, err)
		}
		v, err := line.Value()
		line.Close()
		if err != nil {
			return nil, fmt.Errorf("read button %d (pin %d): %w", i, b.Pin, err)
		}
		levels[i] = levelOf(v)
	}
	return levels, nil
}

// Now returns CLOCK_MONOTONIC, the base of gpiocdev edge timestamps.
func Now() time.Duration {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return time.Duration(ts.Nano())
}

func biasOption(p button.Pull) gpiocdev.LineReqOption {
	switch p {
	case button.PullUp:
		return gpiocdev.WithPullUp
	case button.PullDown:
		return gpiocdev.WithPullDown
	default:
		return gpiocdev.WithBiasDisabled
	}
}
