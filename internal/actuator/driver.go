// Package actuator drives the LED strip and arbitrates between automatic
// presence-driven commands and manual overrides.
package actuator

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sweeney/kiosk-agent/internal/gpio"
	"github.com/sweeney/kiosk-agent/internal/logic"
)

// ErrHardwareUnavailable is returned when no PWM line was initialized.
var ErrHardwareUnavailable = errors.New("actuator: hardware unavailable")

// Driver applies commands to a PWM capability. It keeps the last requested
// command so it can be sent again after a failure.
type Driver struct {
	mu      sync.Mutex
	pwm     gpio.PWM
	last    logic.ActuatorCommand
	has     bool
	applied bool
}

// NewDriver creates a Driver. A nil pwm yields a driver whose every Apply
// fails with ErrHardwareUnavailable (demo mode).
func NewDriver(pwm gpio.PWM) *Driver {
	return &Driver{pwm: pwm}
}

// Clamp bounds a command level to [0,100].
func Clamp(cmd logic.ActuatorCommand) logic.ActuatorCommand {
	if cmd.Level < 0 {
		cmd.Level = 0
	}
	if cmd.Level > 100 {
		cmd.Level = 100
	}
	return cmd
}

// Apply clamps and applies cmd. A disabled command drives level 0.
// The command becomes the last requested one even if it fails.
func (d *Driver) Apply(cmd logic.ActuatorCommand) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.last = Clamp(cmd)
	d.has = true
	err := d.setLocked(d.last)
	d.applied = err == nil
	return err
}

// Reapply sends the last requested command again. It is a no-op before the
// first Apply.
func (d *Driver) Reapply() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.has {
		return nil
	}
	err := d.setLocked(d.last)
	d.applied = err == nil
	return err
}

func (d *Driver) setLocked(cmd logic.ActuatorCommand) error {
	if d.pwm == nil {
		return ErrHardwareUnavailable
	}
	level := cmd.Level
	if !cmd.Enabled {
		level = 0
	}
	if err := d.pwm.SetLevel(level); err != nil {
		return fmt.Errorf("set level %d: %w", level, err)
	}
	return nil
}

// Last returns the last requested command and whether it reached the
// hardware.
func (d *Driver) Last() (logic.ActuatorCommand, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last, d.applied
}

// Available reports whether a PWM line is attached.
func (d *Driver) Available() bool {
	return d.pwm != nil
}
