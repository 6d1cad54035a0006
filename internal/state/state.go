// Package state provides the shared state cache of the kiosk agent.
// It is the single source of truth for presence, actuator, latest detection
// and detection history, read by HTTP handlers and the cloud mirror and
// written by the presence and detection loops.
package state

import (
	"sync"
	"time"

	"github.com/sweeney/kiosk-agent/internal/logic"
)

// DefaultHistorySize is the number of detection results retained.
const DefaultHistorySize = 100

// NetworkInfo contains network state as reported by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains agent configuration for display.
type Config struct {
	PresencePeriodMs int64
	DetectPeriodMs   int64
	ThresholdCm      float64
	DebounceSamples  int
	HistorySize      int
	HeartbeatMs      int64
	Broker           string
	HTTPAddr         string
	DeviceID         string
	Location         string
	RecordEmpty      bool
	FaceSelection    string
	Attributes       bool
}

// Snapshot is a point-in-time view of agent state.
// It is a value type and safe to use after the lock is released.
// LatestDetection, when set, points at the last element of History.
type Snapshot struct {
	Presence        logic.PresenceState
	Actuator        logic.ActuatorState
	LatestDetection *logic.DetectionResult
	History         []logic.DetectionResult
	Counts          logic.Counts
	CameraReady     bool
	StartTime       time.Time
	Now             time.Time
	MQTTConnected   bool
	Network         *NetworkInfo
	Config          Config
}

// Uptime returns the duration since the agent started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Sink receives best-effort snapshots for mirroring.
// Push must return promptly and never report failure to the caller.
type Sink interface {
	Push(Snapshot)
}

// NopSink discards snapshots.
type NopSink struct{}

// Push does nothing.
func (NopSink) Push(Snapshot) {}

// Cache holds mutable agent state behind an RWMutex.
// Every method is a short in-memory operation; callers never hold the lock
// across hardware I/O.
type Cache struct {
	mu          sync.RWMutex
	presence    logic.PresenceState
	actuator    logic.ActuatorState
	history     *history
	counts      logic.Counts
	cameraReady bool
	startTime   time.Time
	mqtt        bool
	network     *NetworkInfo
	config      Config
}

// NewCache creates a Cache with the given start time, history capacity and
// config. The initial presence is Absent since startTime.
func NewCache(startTime time.Time, capacity int, cfg Config) *Cache {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	cfg.HistorySize = capacity
	return &Cache{
		presence:  logic.PresenceState{State: logic.Absent, Since: startTime},
		history:   newHistory(capacity),
		startTime: startTime,
		config:    cfg,
	}
}

// SetPresence records the presence state, counting a transition if the
// state changed.
func (c *Cache) SetPresence(st logic.PresenceState) {
	c.mu.Lock()
	if st.State != c.presence.State {
		if st.State == logic.Present {
			c.counts.PresentTransitions++
		} else {
			c.counts.AbsentTransitions++
		}
	}
	c.presence = st
	c.mu.Unlock()
}

// SetActuator records the effective actuator state.
func (c *Cache) SetActuator(st logic.ActuatorState) {
	c.mu.Lock()
	c.actuator = st
	c.mu.Unlock()
}

// AppendDetection appends r to the history, evicting the oldest entry when
// full, and makes it the latest detection in the same critical section.
func (c *Cache) AppendDetection(r logic.DetectionResult) {
	c.mu.Lock()
	c.history.push(r)
	c.counts.Detections++
	c.mu.Unlock()
}

// LatestDetection returns the most recent detection, if any.
func (c *Cache) LatestDetection() (logic.DetectionResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.history.last()
}

// History returns up to limit most recent detections, oldest first.
// A limit <= 0 returns the whole history.
func (c *Cache) History(limit int) []logic.DetectionResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.history.tail(limit)
}

// HistoryLen returns the number of retained detections.
func (c *Cache) HistoryLen() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.history.len()
}

// CountInvalidSample records a sensor sample without an echo.
func (c *Cache) CountInvalidSample() {
	c.mu.Lock()
	c.counts.InvalidSamples++
	c.mu.Unlock()
}

// CountFailedCycle records a loop cycle that ended in error.
func (c *Cache) CountFailedCycle() {
	c.mu.Lock()
	c.counts.FailedCycles++
	c.mu.Unlock()
}

// SetCameraReady sets whether the camera is initialized.
func (c *Cache) SetCameraReady(ready bool) {
	c.mu.Lock()
	c.cameraReady = ready
	c.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (c *Cache) SetMQTTConnected(connected bool) {
	c.mu.Lock()
	c.mqtt = connected
	c.mu.Unlock()
}

// SetNetwork sets the network info.
func (c *Cache) SetNetwork(info *NetworkInfo) {
	c.mu.Lock()
	c.network = info
	c.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the agent state.
// The Now field is set to the current time at the moment of the call.
func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	s := Snapshot{
		Presence:      c.presence,
		Actuator:      c.actuator,
		History:       c.history.tail(0),
		Counts:        c.counts,
		CameraReady:   c.cameraReady,
		StartTime:     c.startTime,
		MQTTConnected: c.mqtt,
		Network:       c.network,
		Config:        c.config,
	}
	c.mu.RUnlock()

	if n := len(s.History); n > 0 {
		s.LatestDetection = &s.History[n-1]
	}
	s.Now = time.Now()
	return s
}
