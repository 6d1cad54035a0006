package actuator

import (
	"sync"
	"time"

	"github.com/sweeney/kiosk-agent/internal/logic"
)

// Store receives the effective actuator state.
type Store interface {
	SetActuator(logic.ActuatorState)
}

// Control arbitrates the actuator between automatic and manual producers.
//
// A manual command wins until Resume is called. Automatic commands issued
// while manual override is active are remembered and applied on Resume.
// The store is updated while holding the control lock so it always agrees
// with whoever owns the hardware.
type Control struct {
	mu     sync.Mutex
	driver *Driver
	store  Store
	now    func() time.Time

	manual    bool
	manualCmd logic.ActuatorCommand
	autoCmd   logic.ActuatorCommand
	// dirty is set when the effective command failed to reach the hardware.
	dirty     bool
	updatedAt time.Time
}

// NewControl creates a Control starting in automatic mode with the light off.
func NewControl(driver *Driver, store Store, now func() time.Time) *Control {
	return &Control{
		driver:  driver,
		store:   store,
		now:     now,
		autoCmd: logic.AutoCommand(logic.Absent),
	}
}

// Auto records an automatic command and applies it unless a manual override
// is active. It reports whether the command was sent to the hardware.
func (c *Control) Auto(cmd logic.ActuatorCommand) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.autoCmd = Clamp(cmd)
	if c.manual {
		return false, nil
	}
	return true, c.applyLocked(c.autoCmd)
}

// Manual applies cmd and makes it take precedence over automatic commands.
func (c *Control) Manual(cmd logic.ActuatorCommand) (logic.ActuatorState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.manual = true
	c.manualCmd = Clamp(cmd)
	err := c.applyLocked(c.manualCmd)
	return c.stateLocked(), err
}

// Resume clears a manual override and re-applies the latest automatic
// command.
func (c *Control) Resume() (logic.ActuatorState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.manual = false
	err := c.applyLocked(c.autoCmd)
	return c.stateLocked(), err
}

// Retry re-applies the effective command if the last application failed.
// Without hardware there is nothing to retry.
func (c *Control) Retry() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.dirty || !c.driver.Available() {
		return nil
	}
	// The driver still holds the effective command: every change to it
	// goes through applyLocked.
	return c.recordLocked(c.driver.Reapply())
}

// State returns the effective actuator state.
func (c *Control) State() logic.ActuatorState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Control) applyLocked(cmd logic.ActuatorCommand) error {
	return c.recordLocked(c.driver.Apply(cmd))
}

func (c *Control) recordLocked(err error) error {
	c.dirty = err != nil
	c.updatedAt = c.now()
	if c.store != nil {
		c.store.SetActuator(c.stateLocked())
	}
	return err
}

func (c *Control) effectiveLocked() logic.ActuatorCommand {
	if c.manual {
		return c.manualCmd
	}
	return c.autoCmd
}

func (c *Control) stateLocked() logic.ActuatorState {
	return logic.ActuatorState{
		Command:   c.effectiveLocked(),
		Manual:    c.manual,
		Applied:   !c.dirty,
		UpdatedAt: c.updatedAt,
	}
}
