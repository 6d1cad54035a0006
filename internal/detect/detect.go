// Package detect runs the face detection pipeline: capture a frame, find
// faces, optionally infer attributes for one face, and record the result in
// the bounded detection history. It also produces annotated frames for the
// live view.
package detect

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/sweeney/kiosk-agent/internal/logic"
	"github.com/sweeney/kiosk-agent/internal/state"
)

var (
	// ErrCameraUnavailable is returned when no frame can be captured.
	ErrCameraUnavailable = errors.New("detect: camera unavailable")

	// ErrTimeout is returned when a cycle overruns its soft timeout.
	// Nothing is recorded for a timed-out cycle.
	ErrTimeout = errors.New("detect: cycle timed out")
)

// Frame is a captured image.
type Frame struct {
	Image      *image.RGBA
	CapturedAt time.Time
}

// Width returns the frame width in pixels.
func (f Frame) Width() int { return f.Image.Bounds().Dx() }

// Height returns the frame height in pixels.
func (f Frame) Height() int { return f.Image.Bounds().Dy() }

// Camera captures frames.
type Camera interface {
	// Open (re)initializes the device.
	Open() error
	// Capture returns the next frame. A lost device is reported with an
	// error wrapping ErrCameraUnavailable.
	Capture() (Frame, error)
}

// Detector finds faces in a frame. Boxes are returned in scan order.
type Detector interface {
	Find(f Frame) ([]logic.FaceBox, error)
}

// Inferer estimates attributes of one face.
type Inferer interface {
	Attributes(ctx context.Context, f Frame, face logic.FaceBox) (logic.Attributes, error)
}

// Store is the part of the state cache the pipeline writes.
type Store interface {
	AppendDetection(logic.DetectionResult)
	LatestDetection() (logic.DetectionResult, bool)
	SetCameraReady(bool)
	CountFailedCycle()
	Snapshot() state.Snapshot
}

// Selection chooses which face gets attribute inference.
type Selection string

const (
	// SelectFirst picks the first face in detector scan order.
	SelectFirst Selection = "first"
	// SelectLargest picks the face with the largest box; ties go to the
	// earlier face.
	SelectLargest Selection = "largest"
)

// ParseSelection validates a selection name.
func ParseSelection(s string) (Selection, error) {
	switch Selection(s) {
	case SelectFirst, SelectLargest:
		return Selection(s), nil
	}
	return "", fmt.Errorf("unknown face selection %q (want first or largest)", s)
}

// SelectFace returns the face chosen by sel. faces must not be empty.
func SelectFace(faces []logic.FaceBox, sel Selection) logic.FaceBox {
	best := faces[0]
	if sel != SelectLargest {
		return best
	}
	for _, f := range faces[1:] {
		if f.Area() > best.Area() {
			best = f
		}
	}
	return best
}
