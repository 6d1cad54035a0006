package web

import (
	"context"
	"sync"
	"time"

	"github.com/sweeney/kiosk-agent/internal/actuator"
	"github.com/sweeney/kiosk-agent/internal/logic"
	"github.com/sweeney/kiosk-agent/internal/state"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeCore is an in-memory Core backed by a real state cache.
type fakeCore struct {
	mu       sync.Mutex
	cache    *state.Cache
	manual   bool
	cmd      logic.ActuatorCommand
	setErr   error
	detect   logic.DetectionResult
	detErr   error
	distance logic.DistanceSample
	frame    []byte
	frameErr error
	frames   int
}

func newFakeCore() *fakeCore {
	return &fakeCore{
		cache: state.NewCache(t0, state.DefaultHistorySize, state.Config{
			Broker:      "tcp://192.168.1.200:1883",
			HTTPAddr:    ":5000",
			DeviceID:    "pi5_imx500_001",
			Location:    "Kiosk Main Display",
			HeartbeatMs: 900000,
			Attributes:  true,
		}),
		frame: []byte{0xFF, 0xD8, 0xFF, 0xD9},
	}
}

func (c *fakeCore) Snapshot() state.Snapshot { return c.cache.Snapshot() }

func (c *fakeCore) SetManualActuator(enabled bool, level int) (logic.ActuatorState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.manual = true
	c.cmd = actuator.Clamp(logic.ActuatorCommand{Enabled: enabled, Level: level})
	st := logic.ActuatorState{Command: c.cmd, Manual: true, Applied: c.setErr == nil, UpdatedAt: t0}
	c.cache.SetActuator(st)
	return st, c.setErr
}

func (c *fakeCore) ClearManualOverride() (logic.ActuatorState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.manual = false
	c.cmd = logic.AutoCommand(c.cache.Snapshot().Presence.State)
	st := logic.ActuatorState{Command: c.cmd, Applied: c.setErr == nil, UpdatedAt: t0}
	c.cache.SetActuator(st)
	return st, c.setErr
}

func (c *fakeCore) LatestDetection() (logic.DetectionResult, bool) {
	return c.cache.LatestDetection()
}

func (c *fakeCore) DetectionHistory(limit int) []logic.DetectionResult {
	return c.cache.History(limit)
}

func (c *fakeCore) TriggerDetection(ctx context.Context) (logic.DetectionResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.detErr != nil {
		return logic.DetectionResult{}, c.detErr
	}
	if len(c.detect.Faces) > 0 {
		c.cache.AppendDetection(c.detect)
	}
	return c.detect, nil
}

func (c *fakeCore) DistanceSample() logic.DistanceSample {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.distance
}

func (c *fakeCore) StreamFrame(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames++
	if c.frameErr != nil {
		return nil, c.frameErr
	}
	return c.frame, nil
}

func (c *fakeCore) setFrame(frame []byte) {
	c.mu.Lock()
	c.frame = frame
	c.mu.Unlock()
}
