package detect

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"time"

	"github.com/sweeney/kiosk-agent/internal/logic"
)

// NewFrame returns a frame of the given size filled with a mid grey.
func NewFrame(width, height int, at time.Time) Frame {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{R: 128, G: 128, B: 128, A: 255}), image.Point{}, draw.Src)
	return Frame{Image: img, CapturedAt: at}
}

// FakeCamera returns synthetic frames. Safe for concurrent use.
type FakeCamera struct {
	mu sync.Mutex

	// Width and Height of captured frames.
	Width, Height int

	// Now stamps captured frames.
	Now func() time.Time

	// CaptureErrors are returned by successive Capture calls before frames
	// are produced again.
	CaptureErrors []error

	// OpenError, if set, is returned by Open.
	OpenError error

	// Unopened makes Capture fail with ErrCameraUnavailable until an Open
	// succeeds.
	Unopened bool

	// Block, if set, makes Capture wait until it is closed.
	Block chan struct{}

	opens    int
	captures int
}

// NewFakeCamera creates a FakeCamera producing 640x480 frames.
func NewFakeCamera(now func() time.Time) *FakeCamera {
	return &FakeCamera{Width: 640, Height: 480, Now: now}
}

// Open records the call.
func (c *FakeCamera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opens++
	if c.OpenError == nil {
		c.Unopened = false
	}
	return c.OpenError
}

// SetOpenError changes the error returned by Open.
func (c *FakeCamera) SetOpenError(err error) {
	c.mu.Lock()
	c.OpenError = err
	c.mu.Unlock()
}

// Capture returns the next scripted error or a new frame.
func (c *FakeCamera) Capture() (Frame, error) {
	c.mu.Lock()
	block := c.Block
	c.mu.Unlock()
	if block != nil {
		<-block
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.captures++
	if c.Unopened {
		return Frame{}, fmt.Errorf("%w: fake camera not open", ErrCameraUnavailable)
	}
	if len(c.CaptureErrors) > 0 {
		err := c.CaptureErrors[0]
		c.CaptureErrors = c.CaptureErrors[1:]
		return Frame{}, err
	}
	return NewFrame(c.Width, c.Height, c.Now()), nil
}

// Opens returns the number of Open calls.
func (c *FakeCamera) Opens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens
}

// Captures returns the number of Capture calls.
func (c *FakeCamera) Captures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.captures
}

// FakeDetector returns scripted faces. Safe for concurrent use.
type FakeDetector struct {
	mu    sync.Mutex
	faces []logic.FaceBox
	err   error
}

// NewFakeDetector creates a FakeDetector that finds the given faces.
func NewFakeDetector(faces ...logic.FaceBox) *FakeDetector {
	return &FakeDetector{faces: faces}
}

// SetFaces changes the faces returned by Find.
func (d *FakeDetector) SetFaces(faces ...logic.FaceBox) {
	d.mu.Lock()
	d.faces = faces
	d.mu.Unlock()
}

// SetError makes Find fail with err (nil clears it).
func (d *FakeDetector) SetError(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

// Find returns a copy of the scripted faces.
func (d *FakeDetector) Find(Frame) ([]logic.FaceBox, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	return append([]logic.FaceBox(nil), d.faces...), nil
}

// FakeInferer returns fixed attributes and records which faces it saw.
// Safe for concurrent use.
type FakeInferer struct {
	mu    sync.Mutex
	attrs logic.Attributes
	err   error
	seen  []logic.FaceBox
}

// NewFakeInferer creates a FakeInferer returning attrs.
func NewFakeInferer(attrs logic.Attributes) *FakeInferer {
	return &FakeInferer{attrs: attrs}
}

// SetError makes Attributes fail with err (nil clears it).
func (f *FakeInferer) SetError(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

// Attributes records face and returns the configured attributes.
func (f *FakeInferer) Attributes(_ context.Context, _ Frame, face logic.FaceBox) (logic.Attributes, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, face)
	if f.err != nil {
		return logic.Attributes{}, f.err
	}
	return f.attrs, nil
}

// Seen returns the faces passed to Attributes, in order.
func (f *FakeInferer) Seen() []logic.FaceBox {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]logic.FaceBox(nil), f.seen...)
}
