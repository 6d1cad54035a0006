// Package mqtt mirrors agent state to an MQTT broker, with an abstraction
// for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/kiosk-agent/internal/logic"
	"github.com/sweeney/kiosk-agent/internal/state"
)

// System event names.
const (
	EventStartup     = "STARTUP"
	EventHeartbeat   = "HEARTBEAT"
	EventShutdown    = "SHUTDOWN"
	EventState       = "STATE"
	EventOffline     = "OFFLINE"
	EventReconnected = "RECONNECTED"
)

// Topics holds the per-device topic names.
type Topics struct {
	State      string // retained full status
	Detections string // one message per recorded detection
	System     string // lifecycle events and last will
}

// NewTopics returns the topics for a device, rooted at kiosk/<deviceID>.
func NewTopics(deviceID string) Topics {
	base := "kiosk/" + deviceID
	return Topics{
		State:      base + "/state",
		Detections: base + "/detections",
		System:     base + "/system",
	}
}

// Message is a single MQTT publication.
type Message struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// Publisher publishes messages to MQTT.
type Publisher interface {
	// Publish sends a message to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(msg Message) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent is a lifecycle event without a status snapshot
// (last will, reconnect notices).
type SystemEvent struct {
	Timestamp time.Time
	Event     string
	Reason    string
}

// SystemPayload represents the MQTT message payload for simple system events.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a simple system event.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// DetectionPayload is the MQTT payload for one recorded detection.
type DetectionPayload struct {
	Detection state.DetectionJSON `json:"detection"`
}

// FormatDetectionPayload creates the JSON payload for a detection result.
func FormatDetectionPayload(r logic.DetectionResult) ([]byte, error) {
	return json.Marshal(DetectionPayload{Detection: state.DetectionToJSON(r)})
}
