// Package logic contains the pure domain model of the kiosk agent: presence
// state tracking and the value types shared by the loops and the cache.
// This package has NO external dependencies (no GPIO, MQTT, camera, OS, or
// time.Sleep). Time is always injectable via time.Time parameters.
package logic

import "time"

// Presence is the inferred state of a user in front of the kiosk.
type Presence string

const (
	Absent  Presence = "ABSENT"
	Present Presence = "PRESENT"
)

// DefaultThresholdCm is the distance below which a user counts as present.
const DefaultThresholdCm = 100.0

// InvalidDistance is the sentinel distance carried by invalid samples.
const InvalidDistance = -1.0

// DistanceSample is a single ultrasonic measurement.
// Valid is false when no echo arrived within the sampling window.
type DistanceSample struct {
	DistanceCm float64
	MeasuredAt time.Time
	Valid      bool
}

// InvalidSample returns the sample reported on timeout or read failure.
func InvalidSample(at time.Time) DistanceSample {
	return DistanceSample{DistanceCm: InvalidDistance, MeasuredAt: at}
}

// PresenceState is the current debounced presence and when it was entered.
type PresenceState struct {
	State Presence
	Since time.Time
}

// Transition is emitted when the presence state changes.
type Transition struct {
	From   Presence
	To     Presence
	At     time.Time
	Sample DistanceSample
}

// ActuatorCommand is a requested light level.
type ActuatorCommand struct {
	Enabled bool
	Level   int // 0..100
}

// AutoCommand returns the automatic light command for a presence state.
func AutoCommand(p Presence) ActuatorCommand {
	if p == Present {
		return ActuatorCommand{Enabled: true, Level: 100}
	}
	return ActuatorCommand{Enabled: false, Level: 0}
}

// ActuatorState is the effective actuator command as seen by readers.
type ActuatorState struct {
	Command ActuatorCommand
	// Manual is true while a manual override owns the actuator.
	Manual bool
	// Applied is false if the last application did not reach the hardware.
	Applied   bool
	UpdatedAt time.Time
}

// FaceBox is a detected face in frame pixel coordinates.
type FaceBox struct {
	X          int
	Y          int
	Width      int
	Height     int
	Confidence float64 // 0.0..1.0
}

// Area returns the box area in pixels.
func (f FaceBox) Area() int {
	return f.Width * f.Height
}

// Attributes are inferred properties of a single face.
type Attributes struct {
	Age             int
	Gender          string
	DominantEmotion string
	EmotionScores   map[string]float64
}

// DetectionResult is the outcome of one detection cycle.
// It is immutable once created; readers share its slices.
type DetectionResult struct {
	ID         string
	CapturedAt time.Time
	Faces      []FaceBox
	Attributes *Attributes // nil when not inferred
	DeviceID   string
	Location   string
}

// Counts tracks loop activity since startup.
type Counts struct {
	PresentTransitions int
	AbsentTransitions  int
	InvalidSamples     int
	Detections         int
	FailedCycles       int
}
