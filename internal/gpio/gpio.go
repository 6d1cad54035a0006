// Package gpio provides the GPIO capabilities used by the agent with hardware
// abstraction: the ultrasonic sensor's trigger and echo lines and the PWM
// line driving the LED strip.
// The real implementation uses the Linux GPIO character device.
// The fake implementations allow testing without hardware.
package gpio

// Trigger drives the sensor trigger line.
type Trigger interface {
	// Write sets the line high (true) or low (false).
	Write(high bool) error
}

// Echo reads the sensor echo line.
type Echo interface {
	// Read returns true while the echo line is high.
	Read() (bool, error)
}

// PWM sets a duty-cycle level on an output line.
type PWM interface {
	// SetLevel sets the duty cycle in percent (0..100).
	SetLevel(level int) error
}

// Pin definitions (BCM numbering)
const (
	DefaultPinLED     = 18 // LED strip, PWM capable
	DefaultPinTrigger = 23 // HC-SR04 TRIG
	DefaultPinEcho    = 24 // HC-SR04 ECHO
)

// DefaultChip is the GPIO character device holding the header pins.
const DefaultChip = "gpiochip0"
