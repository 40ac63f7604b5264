// Package gpio delivers button edges from the Linux GPIO character device.
// The real implementation uses go-gpiocdev edge events; the fake lets tests
// inject edges without hardware.
package gpio

import (
	"github.com/sweeney/buttond/internal/button"
)

// DefaultChip is the GPIO chip on a Raspberry Pi.
const DefaultChip = "gpiochip0"

// Source is an edge source that owns hardware resources.
type Source interface {
	button.EdgeSource
	Close() error
}

// levelOf maps a raw line value to a level.
func levelOf(v int) button.Level {
	if v != 0 {
		return button.High
	}
	return button.Low
}
