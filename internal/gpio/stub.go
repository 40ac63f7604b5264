//go:build !linux

package gpio

import (
	"errors"
	"time"

	"github.com/sweeney/buttond/internal/button"
)

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// LineSource is not available on non-Linux platforms.
type LineSource struct{}

// NewLineSource returns an error on non-Linux platforms.
func NewLineSource(chip string) (*LineSource, error) {
	return nil, errUnsupported
}

// Start is not implemented on non-Linux platforms.
func (s *LineSource) Start(buttons []button.ButtonSpec, push func(button.EdgeEvent) bool) error {
	return errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (s *LineSource) Close() error {
	return nil
}

// ReadLevels is not implemented on non-Linux platforms.
func ReadLevels(chip string, buttons []button.ButtonSpec) ([]button.Level, error) {
	return nil, errUnsupported
}

var origin = time.Now()

// Now returns time since process start on non-Linux platforms.
func Now() time.Duration {
	return time.Since(origin)
}
