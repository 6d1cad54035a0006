package state

import (
	"encoding/json"
	"time"

	"github.com/sweeney/kiosk-agent/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event           string         `json:"event,omitempty"`
	Reason          string         `json:"reason,omitempty"`
	Presence        PresenceJSON   `json:"presence"`
	LED             LEDJSON        `json:"led"`
	Camera          string         `json:"camera"`
	LatestDetection *DetectionJSON `json:"latest_detection"`
	HistorySize     int            `json:"history_size"`
	UptimeSeconds   int64          `json:"uptime_seconds"`
	StartTime       string         `json:"start_time"`
	Timestamp       string         `json:"timestamp"`
	MQTT            MQTTStatus     `json:"mqtt"`
	Counts          CountsJSON     `json:"counts"`
	Network         *NetworkJSON   `json:"network,omitempty"`
	Config          ConfigJSON     `json:"config"`
}

// PresenceJSON is the JSON representation of presence state.
type PresenceJSON struct {
	UserPresent bool   `json:"user_present"`
	State       string `json:"state"`
	Since       string `json:"since"`
}

// LEDJSON is the JSON representation of the actuator state.
type LEDJSON struct {
	Enabled    bool   `json:"enabled"`
	Brightness int    `json:"brightness"`
	Mode       string `json:"mode"`
	Applied    bool   `json:"applied"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

// DetectionJSON is the JSON representation of a detection result.
type DetectionJSON struct {
	ID            string          `json:"id"`
	FacesDetected int             `json:"faces_detected"`
	Faces         []FaceJSON      `json:"faces"`
	Attributes    *AttributesJSON `json:"attributes"`
	Timestamp     string          `json:"timestamp"`
	DeviceID      string          `json:"device_id"`
	Location      string          `json:"location"`
}

// FaceJSON is the JSON representation of a face box.
type FaceJSON struct {
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Confidence float64 `json:"confidence"`
}

// AttributesJSON is the JSON representation of inferred face attributes.
type AttributesJSON struct {
	Age             int                `json:"age"`
	Gender          string             `json:"gender"`
	DominantEmotion string             `json:"dominant_emotion"`
	EmotionScores   map[string]float64 `json:"emotion_scores,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of activity counts.
type CountsJSON struct {
	PresentTransitions int `json:"present_transitions"`
	AbsentTransitions  int `json:"absent_transitions"`
	InvalidSamples     int `json:"invalid_samples"`
	Detections         int `json:"detections"`
	FailedCycles       int `json:"failed_cycles"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of agent config.
type ConfigJSON struct {
	PresencePeriodMs int64   `json:"presence_period_ms"`
	DetectPeriodMs   int64   `json:"detect_period_ms"`
	ThresholdCm      float64 `json:"threshold_cm"`
	DebounceSamples  int     `json:"debounce_samples"`
	HistorySize      int     `json:"history_capacity"`
	HeartbeatMs      int64   `json:"heartbeat_ms"`
	Broker           string  `json:"broker"`
	HTTPAddr         string  `json:"http_addr"`
	DeviceID         string  `json:"device_id"`
	Location         string  `json:"location"`
	RecordEmpty      bool    `json:"record_empty"`
	FaceSelection    string  `json:"face_selection"`
	Attributes       bool    `json:"attributes"`
}

// DetectionToJSON converts a detection result to its JSON form.
func DetectionToJSON(r logic.DetectionResult) DetectionJSON {
	d := DetectionJSON{
		ID:            r.ID,
		FacesDetected: len(r.Faces),
		Faces:         make([]FaceJSON, 0, len(r.Faces)),
		Timestamp:     r.CapturedAt.UTC().Format(time.RFC3339Nano),
		DeviceID:      r.DeviceID,
		Location:      r.Location,
	}
	for _, f := range r.Faces {
		d.Faces = append(d.Faces, FaceJSON{
			X:          f.X,
			Y:          f.Y,
			Width:      f.Width,
			Height:     f.Height,
			Confidence: f.Confidence,
		})
	}
	if a := r.Attributes; a != nil {
		d.Attributes = &AttributesJSON{
			Age:             a.Age,
			Gender:          a.Gender,
			DominantEmotion: a.DominantEmotion,
			EmotionScores:   a.EmotionScores,
		}
	}
	return d
}

// DetectionsToJSON converts a slice of results, preserving order.
func DetectionsToJSON(rs []logic.DetectionResult) []DetectionJSON {
	out := make([]DetectionJSON, 0, len(rs))
	for _, r := range rs {
		out = append(out, DetectionToJSON(r))
	}
	return out
}

func buildInner(snap Snapshot) StatusInner {
	presence := string(snap.Presence.State)
	if presence == "" {
		presence = "UNKNOWN"
	}
	mode := "auto"
	if snap.Actuator.Manual {
		mode = "manual"
	}
	camera := "offline"
	if snap.CameraReady {
		camera = "online"
	}

	inner := StatusInner{
		Presence: PresenceJSON{
			UserPresent: snap.Presence.State == logic.Present,
			State:       presence,
			Since:       snap.Presence.Since.UTC().Format(time.RFC3339),
		},
		LED: LEDJSON{
			Enabled:    snap.Actuator.Command.Enabled,
			Brightness: snap.Actuator.Command.Level,
			Mode:       mode,
			Applied:    snap.Actuator.Applied,
		},
		Camera:        camera,
		HistorySize:   len(snap.History),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			PresentTransitions: snap.Counts.PresentTransitions,
			AbsentTransitions:  snap.Counts.AbsentTransitions,
			InvalidSamples:     snap.Counts.InvalidSamples,
			Detections:         snap.Counts.Detections,
			FailedCycles:       snap.Counts.FailedCycles,
		},
		Config: ConfigJSON{
			PresencePeriodMs: snap.Config.PresencePeriodMs,
			DetectPeriodMs:   snap.Config.DetectPeriodMs,
			ThresholdCm:      snap.Config.ThresholdCm,
			DebounceSamples:  snap.Config.DebounceSamples,
			HistorySize:      snap.Config.HistorySize,
			HeartbeatMs:      snap.Config.HeartbeatMs,
			Broker:           snap.Config.Broker,
			HTTPAddr:         snap.Config.HTTPAddr,
			DeviceID:         snap.Config.DeviceID,
			Location:         snap.Config.Location,
			RecordEmpty:      snap.Config.RecordEmpty,
			FaceSelection:    snap.Config.FaceSelection,
			Attributes:       snap.Config.Attributes,
		},
	}
	if !snap.Actuator.UpdatedAt.IsZero() {
		inner.LED.UpdatedAt = snap.Actuator.UpdatedAt.UTC().Format(time.RFC3339)
	}
	if snap.LatestDetection != nil {
		d := DetectionToJSON(*snap.LatestDetection)
		inner.LatestDetection = &d
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
