// Package agent wires the presence loop, the detection pipeline and the
// state cache together and exposes the operations used by the HTTP surface.
package agent

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sweeney/kiosk-agent/internal/actuator"
	"github.com/sweeney/kiosk-agent/internal/detect"
	"github.com/sweeney/kiosk-agent/internal/gpio"
	"github.com/sweeney/kiosk-agent/internal/logic"
	"github.com/sweeney/kiosk-agent/internal/presence"
	"github.com/sweeney/kiosk-agent/internal/state"
)

// Config holds loop settings.
type Config struct {
	Presence presence.Config
	Detect   detect.Config
}

// Deps are the capabilities the agent drives. Any hardware dependency may
// be nil; the agent then runs without it (demo mode).
type Deps struct {
	Sampler  presence.Sampler
	PWM      gpio.PWM
	Camera   detect.Camera
	Detector detect.Detector
	Inferer  detect.Inferer

	Cache *state.Cache
	Sink  state.Sink

	// Background tasks run alongside the loops, e.g. the MQTT mirror.
	Background []func(context.Context) error

	Now func() time.Time
}

// Agent is the core of the kiosk.
type Agent struct {
	cache      *state.Cache
	sink       state.Sink
	light      *actuator.Control
	sampler    presence.Sampler
	presence   *presence.Controller
	pipeline   *detect.Pipeline
	background []func(context.Context) error
	now        func() time.Time
}

// New creates an Agent. The light starts off in automatic mode.
func New(cfg Config, d Deps) *Agent {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Sink == nil {
		d.Sink = state.NopSink{}
	}

	light := actuator.NewControl(actuator.NewDriver(d.PWM), d.Cache, d.Now)
	d.Cache.SetActuator(light.State())

	a := &Agent{
		cache:      d.Cache,
		sink:       d.Sink,
		light:      light,
		sampler:    d.Sampler,
		background: d.Background,
		now:        d.Now,
	}
	if d.Sampler != nil {
		a.presence = presence.New(cfg.Presence, d.Sampler, light, d.Cache, d.Sink, d.Now())
	}

	camera := d.Camera
	if d.Detector == nil {
		camera = nil
	}
	a.pipeline = detect.New(cfg.Detect, camera, d.Detector, d.Inferer, d.Cache, d.Sink)
	return a
}

// Snapshot returns a consistent copy of the agent state.
func (a *Agent) Snapshot() state.Snapshot {
	return a.cache.Snapshot()
}

// SetManualActuator sets the light and keeps it there until the override is
// cleared. The level is clamped to 0..100. On hardware failure the returned
// state has Applied=false and the error wraps actuator.ErrHardwareUnavailable
// or the driver error.
func (a *Agent) SetManualActuator(enabled bool, level int) (logic.ActuatorState, error) {
	st, err := a.light.Manual(logic.ActuatorCommand{Enabled: enabled, Level: level})
	if err != nil {
		log.Printf("agent: manual light %v/%d not applied: %v", enabled, st.Command.Level, err)
	} else {
		log.Printf("agent: manual light enabled=%v level=%d", enabled, st.Command.Level)
	}
	a.sink.Push(a.cache.Snapshot())
	return st, err
}

// ClearManualOverride hands the light back to presence control.
func (a *Agent) ClearManualOverride() (logic.ActuatorState, error) {
	st, err := a.light.Resume()
	if err != nil {
		log.Printf("agent: resume automatic light: %v", err)
	} else {
		log.Printf("agent: light back to automatic (enabled=%v)", st.Command.Enabled)
	}
	a.sink.Push(a.cache.Snapshot())
	return st, err
}

// LatestDetection returns the most recent recorded detection.
func (a *Agent) LatestDetection() (logic.DetectionResult, bool) {
	return a.cache.LatestDetection()
}

// DetectionHistory returns up to limit recent detections, oldest first.
func (a *Agent) DetectionHistory(limit int) []logic.DetectionResult {
	return a.cache.History(limit)
}

// TriggerDetection runs one detection cycle now.
func (a *Agent) TriggerDetection(ctx context.Context) (logic.DetectionResult, error) {
	return a.pipeline.RunCycle(ctx)
}

// DistanceSample takes one sensor reading. Without a sensor the sample is
// invalid.
func (a *Agent) DistanceSample() logic.DistanceSample {
	if a.sampler == nil {
		return logic.InvalidSample(a.now())
	}
	return a.sampler.Measure()
}

// StreamFrame returns one annotated JPEG for the live view.
func (a *Agent) StreamFrame(ctx context.Context) ([]byte, error) {
	return a.pipeline.StreamFrame(ctx)
}

// Run runs the presence and detection loops and any background tasks until
// ctx is cancelled or one of them fails.
func (a *Agent) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if a.presence != nil {
		g.Go(func() error { return a.presence.Run(ctx) })
	} else {
		log.Printf("agent: no distance sensor, presence loop disabled")
	}
	g.Go(func() error { return a.pipeline.Run(ctx) })
	for _, task := range a.background {
		g.Go(func() error { return task(ctx) })
	}
	return g.Wait()
}
