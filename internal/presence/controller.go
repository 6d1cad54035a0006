// Package presence runs the presence control loop: it samples the distance
// sensor, feeds the debounced presence state machine and, on transitions,
// drives the light, updates the state cache and notifies the mirror.
package presence

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sweeney/kiosk-agent/internal/logic"
	"github.com/sweeney/kiosk-agent/internal/state"
)

// Sampler measures distance.
type Sampler interface {
	Measure() logic.DistanceSample
}

// Actuator accepts automatic light commands.
type Actuator interface {
	// Auto applies cmd unless a manual override is active.
	Auto(cmd logic.ActuatorCommand) (bool, error)
	// Retry re-applies the effective command after a failed application.
	Retry() error
}

// Store is the part of the state cache the controller writes.
type Store interface {
	SetPresence(logic.PresenceState)
	CountInvalidSample()
	CountFailedCycle()
	Snapshot() state.Snapshot
}

// Config holds loop timing and thresholds.
type Config struct {
	Period          time.Duration
	Backoff         time.Duration
	ThresholdCm     float64
	DebounceSamples int
}

// DefaultConfig returns the production loop settings.
func DefaultConfig() Config {
	return Config{
		Period:          500 * time.Millisecond,
		Backoff:         time.Second,
		ThresholdCm:     logic.DefaultThresholdCm,
		DebounceSamples: 1,
	}
}

// Controller owns the presence state machine. It is the only writer of
// presence state.
type Controller struct {
	cfg      Config
	sampler  Sampler
	detector *logic.PresenceDetector
	actuator Actuator
	store    Store
	sink     state.Sink
}

// New creates a Controller starting Absent at startTime.
func New(cfg Config, sampler Sampler, actuator Actuator, store Store, sink state.Sink, startTime time.Time) *Controller {
	if sink == nil {
		sink = state.NopSink{}
	}
	return &Controller{
		cfg:      cfg,
		sampler:  sampler,
		detector: logic.NewPresenceDetector(cfg.ThresholdCm, cfg.DebounceSamples, startTime),
		actuator: actuator,
		store:    store,
		sink:     sink,
	}
}

// Step runs one sampling cycle and returns the transition it caused, if any.
// A panic inside the cycle is recovered and returned as an error.
func (c *Controller) Step() (tr *logic.Transition, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in presence cycle: %v", r)
		}
	}()

	var errs []error
	if err := c.actuator.Retry(); err != nil {
		errs = append(errs, fmt.Errorf("retry actuator: %w", err))
	}

	s := c.sampler.Measure()
	if !s.Valid {
		c.store.CountInvalidSample()
	}

	tr = c.detector.Process(s)
	if tr == nil {
		return nil, errors.Join(errs...)
	}

	applied, err := c.actuator.Auto(logic.AutoCommand(tr.To))
	if err != nil {
		errs = append(errs, fmt.Errorf("apply light for %s: %w", tr.To, err))
	}
	c.store.SetPresence(logic.PresenceState{State: tr.To, Since: tr.At})

	if applied {
		log.Printf("presence: %s at %.2fcm, light %s", tr.To, tr.Sample.DistanceCm, lightString(tr.To))
	} else {
		log.Printf("presence: %s at %.2fcm, light under manual override", tr.To, tr.Sample.DistanceCm)
	}

	c.sink.Push(c.store.Snapshot())
	return tr, errors.Join(errs...)
}

// State returns the current presence state.
// Only safe from the goroutine running the loop.
func (c *Controller) State() logic.PresenceState {
	return c.detector.State()
}

// Run samples on the configured period until ctx is cancelled.
// A failed cycle is logged and followed by the backoff; Run never returns
// early because of a cycle error.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.Period)
	defer ticker.Stop()
	return c.run(ctx, ticker.C)
}

func (c *Controller) run(ctx context.Context, tick <-chan time.Time) error {
	log.Printf("presence: started: period=%v threshold=%.0fcm debounce=%d",
		c.cfg.Period, c.cfg.ThresholdCm, c.cfg.DebounceSamples)

	for {
		select {
		case <-ctx.Done():
			log.Printf("presence: stopped")
			return nil

		case <-tick:
			if _, err := c.Step(); err != nil {
				log.Printf("presence: cycle error: %v", err)
				c.store.CountFailedCycle()
				if !sleepCtx(ctx, c.cfg.Backoff) {
					log.Printf("presence: stopped")
					return nil
				}
			}
		}
	}
}

// sleepCtx waits for d or until ctx is done; reports false if cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func lightString(p logic.Presence) string {
	if p == logic.Present {
		return "ON"
	}
	return "OFF"
}
