//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealSensor is not available on non-Linux platforms.
type RealSensor struct{}

// NewRealSensor returns an error on non-Linux platforms.
func NewRealSensor(chip string, pinTrigger, pinEcho int) (*RealSensor, error) {
	return nil, errUnsupported
}

// Write is not implemented on non-Linux platforms.
func (s *RealSensor) Write(high bool) error { return errUnsupported }

// Read is not implemented on non-Linux platforms.
func (s *RealSensor) Read() (bool, error) { return false, errUnsupported }

// Close is not implemented on non-Linux platforms.
func (s *RealSensor) Close() error { return nil }

// RealPWM is not available on non-Linux platforms.
type RealPWM struct{}

// NewRealPWM returns an error on non-Linux platforms.
func NewRealPWM(chip string, pin int, frequency int) (*RealPWM, error) {
	return nil, errUnsupported
}

// SetLevel is not implemented on non-Linux platforms.
func (p *RealPWM) SetLevel(level int) error { return errUnsupported }

// Close is not implemented on non-Linux platforms.
func (p *RealPWM) Close() error { return nil }
