package state

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/sweeney/kiosk-agent/internal/logic"
)

func testSnapshot() Snapshot {
	r := logic.DetectionResult{
		ID:         "abc",
		CapturedAt: time.Date(2026, 1, 1, 0, 10, 0, 0, time.UTC),
		Faces:      []logic.FaceBox{{X: 10, Y: 20, Width: 60, Height: 60, Confidence: 0.85}},
		Attributes: &logic.Attributes{
			Age:             31,
			Gender:          "Woman",
			DominantEmotion: "Happy",
			EmotionScores:   map[string]float64{"happy": 92.5, "neutral": 7.5},
		},
		DeviceID: "pi5_imx500_001",
		Location: "Kiosk Main Display",
	}
	history := []logic.DetectionResult{r}
	return Snapshot{
		Presence: logic.PresenceState{State: logic.Present, Since: start.Add(time.Minute)},
		Actuator: logic.ActuatorState{
			Command:   logic.ActuatorCommand{Enabled: true, Level: 40},
			Manual:    true,
			Applied:   true,
			UpdatedAt: start.Add(2 * time.Minute),
		},
		History:         history,
		LatestDetection: &history[0],
		Counts:          logic.Counts{PresentTransitions: 5, AbsentTransitions: 4, Detections: 1},
		CameraReady:     true,
		StartTime:       start,
		Now:             start.Add(15 * time.Minute),
		MQTTConnected:   true,
		Config:          Config{PresencePeriodMs: 500, ThresholdCm: 100, HistorySize: 100, Broker: "tcp://localhost:1883", HTTPAddr: ":5000"},
	}
}

func TestFormatJSON(t *testing.T) {
	data := FormatJSON(testSnapshot())

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	s := parsed.Status

	if !s.Presence.UserPresent || s.Presence.State != "PRESENT" {
		t.Errorf("Presence: got %+v", s.Presence)
	}
	if !s.LED.Enabled || s.LED.Brightness != 40 || s.LED.Mode != "manual" {
		t.Errorf("LED: got %+v", s.LED)
	}
	if s.Camera != "online" {
		t.Errorf("Camera: got %q, want online", s.Camera)
	}
	if s.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", s.UptimeSeconds)
	}
	if !s.MQTT.Connected || s.MQTT.Broker != "tcp://localhost:1883" {
		t.Errorf("MQTT: got %+v", s.MQTT)
	}
	if s.Counts.PresentTransitions != 5 || s.Counts.Detections != 1 {
		t.Errorf("Counts: got %+v", s.Counts)
	}
	if s.HistorySize != 1 {
		t.Errorf("HistorySize: got %d, want 1", s.HistorySize)
	}
	if s.LatestDetection == nil {
		t.Fatal("expected latest_detection")
	}
	d := s.LatestDetection
	if d.FacesDetected != 1 || d.Faces[0].Width != 60 || d.Faces[0].Confidence != 0.85 {
		t.Errorf("LatestDetection: got %+v", d)
	}
	if d.Attributes == nil || d.Attributes.Age != 31 || d.Attributes.DominantEmotion != "Happy" {
		t.Errorf("Attributes: got %+v", d.Attributes)
	}
	if d.DeviceID != "pi5_imx500_001" {
		t.Errorf("DeviceID: got %q", d.DeviceID)
	}
	// Event and Reason should be omitted
	if s.Event != "" || s.Reason != "" {
		t.Errorf("expected empty event/reason for web format, got %q/%q", s.Event, s.Reason)
	}
}

func TestFormatJSONEmptyState(t *testing.T) {
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(time.Second),
	}

	var raw map[string]map[string]interface{}
	if err := json.Unmarshal(FormatJSON(snap), &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	status := raw["status"]
	if v, ok := status["latest_detection"]; !ok || v != nil {
		t.Errorf("latest_detection: got %v, want explicit null", v)
	}
	presence := status["presence"].(map[string]interface{})
	if presence["state"] != "UNKNOWN" {
		t.Errorf("presence.state: got %v, want UNKNOWN", presence["state"])
	}
	if status["camera"] != "offline" {
		t.Errorf("camera: got %v, want offline", status["camera"])
	}
}

func TestDetectionToJSONNoFaces(t *testing.T) {
	d := DetectionToJSON(logic.DetectionResult{ID: "x", CapturedAt: start})
	if d.Faces == nil {
		t.Error("Faces should marshal as [] not null")
	}
	if d.Attributes != nil {
		t.Error("Attributes should be nil")
	}

	data, _ := json.Marshal(d)
	var raw map[string]interface{}
	json.Unmarshal(data, &raw)
	if faces, ok := raw["faces"].([]interface{}); !ok || len(faces) != 0 {
		t.Errorf("faces: got %v, want []", raw["faces"])
	}
}

func TestFormatStatusEvent(t *testing.T) {
	data := FormatStatusEvent(testSnapshot(), "HEARTBEAT", "")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Event != "HEARTBEAT" {
		t.Errorf("Event: got %q, want HEARTBEAT", parsed.Status.Event)
	}
	if parsed.Status.Reason != "" {
		t.Errorf("Reason: got %q, want empty", parsed.Status.Reason)
	}
}

func TestFormatStatusEventShutdown(t *testing.T) {
	data := FormatStatusEvent(testSnapshot(), "SHUTDOWN", "SIGTERM")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Event != "SHUTDOWN" || parsed.Status.Reason != "SIGTERM" {
		t.Errorf("event/reason: got %q/%q", parsed.Status.Event, parsed.Status.Reason)
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	data := FormatStatusEvent(Snapshot{StartTime: start, Now: start}, "STARTUP", "")

	var raw map[string]interface{}
	json.Unmarshal(data, &raw)
	status := raw["status"].(map[string]interface{})
	if _, exists := status["reason"]; exists {
		t.Error("reason should be omitted when empty")
	}
	if status["event"] != "STARTUP" {
		t.Errorf("event: got %v, want STARTUP", status["event"])
	}
}

func TestFormatJSONWithNetwork(t *testing.T) {
	snap := testSnapshot()
	snap.Network = &NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected", SSID: "MyNet"}

	var parsed StatusJSON
	json.Unmarshal(FormatJSON(snap), &parsed)

	if parsed.Status.Network == nil {
		t.Fatal("expected Network in JSON")
	}
	if parsed.Status.Network.SSID != "MyNet" {
		t.Errorf("Network.SSID: got %q, want MyNet", parsed.Status.Network.SSID)
	}
}
