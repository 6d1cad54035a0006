// Package sensor measures distance with an HC-SR04 ultrasonic sensor.
package sensor

import (
	"log"
	"math"
	"sync"
	"time"

	"github.com/sweeney/kiosk-agent/internal/gpio"
	"github.com/sweeney/kiosk-agent/internal/logic"
)

// SpeedOfSoundCmPerSec is the speed of sound in air at ~20°C.
const SpeedOfSoundCmPerSec = 34300.0

const (
	// DefaultPulse is the trigger pulse width.
	DefaultPulse = 10 * time.Microsecond
	// DefaultTimeout bounds both echo edge waits together.
	DefaultTimeout = 100 * time.Millisecond
)

// Sampler performs one-shot round-trip measurements.
// Measure is serialized so concurrent callers never interleave pulses.
type Sampler struct {
	mu      sync.Mutex
	trigger gpio.Trigger
	echo    gpio.Echo
	pulse   time.Duration
	timeout time.Duration
	now     func() time.Time
	sleep   func(time.Duration)
}

// New creates a Sampler on the given lines using the real clock.
func New(trigger gpio.Trigger, echo gpio.Echo) *Sampler {
	return NewWithClock(trigger, echo, time.Now, time.Sleep)
}

// NewWithClock creates a Sampler with injected time functions.
func NewWithClock(trigger gpio.Trigger, echo gpio.Echo, now func() time.Time, sleep func(time.Duration)) *Sampler {
	return &Sampler{
		trigger: trigger,
		echo:    echo,
		pulse:   DefaultPulse,
		timeout: DefaultTimeout,
		now:     now,
		sleep:   sleep,
	}
}

// Measure fires one trigger pulse and times the echo.
// It never blocks longer than the timeout after the pulse; on timeout or a
// GPIO error it returns an invalid sample. There are no retries.
func (s *Sampler) Measure() logic.DistanceSample {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.trigger.Write(true); err != nil {
		log.Printf("sensor: %v", err)
		return logic.InvalidSample(s.now())
	}
	s.sleep(s.pulse)
	if err := s.trigger.Write(false); err != nil {
		log.Printf("sensor: %v", err)
		return logic.InvalidSample(s.now())
	}

	deadline := s.now().Add(s.timeout)

	start, ok := s.waitEcho(true, deadline)
	if !ok {
		return logic.InvalidSample(start)
	}
	end, ok := s.waitEcho(false, deadline)
	if !ok {
		return logic.InvalidSample(end)
	}

	return logic.DistanceSample{
		DistanceCm: Distance(end.Sub(start)),
		MeasuredAt: end,
		Valid:      true,
	}
}

// waitEcho polls the echo line until it reaches level or the deadline
// passes. Returns the time of the matching read and whether it matched.
func (s *Sampler) waitEcho(level bool, deadline time.Time) (time.Time, bool) {
	for {
		v, err := s.echo.Read()
		t := s.now()
		if err != nil {
			log.Printf("sensor: %v", err)
			return t, false
		}
		if v == level {
			return t, true
		}
		if !t.Before(deadline) {
			return t, false
		}
	}
}

// Distance converts an echo round-trip time to centimeters, rounded to 0.01.
func Distance(elapsed time.Duration) float64 {
	cm := elapsed.Seconds() * SpeedOfSoundCmPerSec / 2
	return math.Round(cm*100) / 100
}
