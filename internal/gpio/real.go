//go:build linux

package gpio

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// RealSensor drives an HC-SR04 through the Linux GPIO character device.
type RealSensor struct {
	chip    *gpiocdev.Chip
	trigger *gpiocdev.Line
	echo    *gpiocdev.Line
}

// NewRealSensor requests the trigger line as output (low) and the echo line
// as input with pull-down.
func NewRealSensor(chipName string, pinTrigger, pinEcho int) (*RealSensor, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	trig, err := chip.RequestLine(pinTrigger, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request trigger pin %d: %w", pinTrigger, err)
	}

	echo, err := chip.RequestLine(pinEcho, gpiocdev.AsInput, gpiocdev.WithPullDown)
	if err != nil {
		trig.Close()
		chip.Close()
		return nil, fmt.Errorf("request echo pin %d: %w", pinEcho, err)
	}

	return &RealSensor{chip: chip, trigger: trig, echo: echo}, nil
}

// Write sets the trigger line.
func (s *RealSensor) Write(high bool) error {
	v := 0
	if high {
		v = 1
	}
	if err := s.trigger.SetValue(v); err != nil {
		return fmt.Errorf("write trigger pin: %w", err)
	}
	return nil
}

// Read returns the echo line level.
func (s *RealSensor) Read() (bool, error) {
	v, err := s.echo.Value()
	if err != nil {
		return false, fmt.Errorf("read echo pin: %w", err)
	}
	return v == 1, nil
}

// Close releases GPIO resources.
// Reconfigures both pins to input with pull-down (matching Pi boot defaults)
// before closing so the sensor is not left driven through a reboot.
func (s *RealSensor) Close() error {
	var errs []error
	for name, l := range map[string]*gpiocdev.Line{"trigger": s.trigger, "echo": s.echo} {
		if l == nil {
			continue
		}
		if err := l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s pin: %w", name, err))
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s pin: %w", name, err))
		}
	}
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

// RealPWM is a software PWM on a single output line.
// The character device has no hardware PWM, so a goroutine toggles the line.
// Levels 0 and 100 hold the line steady.
type RealPWM struct {
	chip   *gpiocdev.Chip
	line   *gpiocdev.Line
	period time.Duration
	level  atomic.Int32

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewRealPWM requests pin as output (low) and starts the PWM goroutine at
// the given frequency in Hz.
func NewRealPWM(chipName string, pin int, frequency int) (*RealPWM, error) {
	if frequency <= 0 {
		return nil, fmt.Errorf("invalid pwm frequency %d", frequency)
	}
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	line, err := chip.RequestLine(pin, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request led pin %d: %w", pin, err)
	}

	p := &RealPWM{
		chip:   chip,
		line:   line,
		period: time.Second / time.Duration(frequency),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go p.run()
	return p, nil
}

// SetLevel sets the duty cycle; out-of-range values are clamped.
func (p *RealPWM) SetLevel(level int) error {
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}
	select {
	case <-p.done:
		return fmt.Errorf("pwm closed")
	default:
	}
	p.level.Store(int32(level))
	return nil
}

func (p *RealPWM) run() {
	defer close(p.done)
	for {
		l := time.Duration(p.level.Load())
		switch {
		case l <= 0:
			p.line.SetValue(0)
			if !p.wait(p.period) {
				return
			}
		case l >= 100:
			p.line.SetValue(1)
			if !p.wait(p.period) {
				return
			}
		default:
			on := p.period * l / 100
			p.line.SetValue(1)
			if !p.wait(on) {
				return
			}
			p.line.SetValue(0)
			if !p.wait(p.period - on) {
				return
			}
		}
	}
}

// wait sleeps for d and reports false if the PWM was stopped meanwhile.
func (p *RealPWM) wait(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-p.stop:
		return false
	case <-t.C:
		return true
	}
}

// Close stops the PWM, drives the line low and releases it.
func (p *RealPWM) Close() error {
	p.stopOnce.Do(func() { close(p.stop) })
	<-p.done

	var errs []error
	if err := p.line.SetValue(0); err != nil {
		errs = append(errs, fmt.Errorf("drive led pin low: %w", err))
	}
	if err := p.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure led pin: %w", err))
	}
	if err := p.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close led pin: %w", err))
	}
	if err := p.chip.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close chip: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
