// Package camera captures frames and finds faces with OpenCV.
package camera

import (
	"fmt"
	"image"
	"image/draw"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/sweeney/kiosk-agent/internal/detect"
)

// Device is a V4L2 camera opened through OpenCV.
type Device struct {
	mu     sync.Mutex
	index  int
	width  int
	height int
	now    func() time.Time

	vc  *gocv.VideoCapture
	mat gocv.Mat
}

// NewDevice creates an unopened camera for /dev/video<index>.
func NewDevice(index, width, height int) *Device {
	return &Device{
		index:  index,
		width:  width,
		height: height,
		now:    time.Now,
		mat:    gocv.NewMat(),
	}
}

// Open (re)opens the device. Any previous handle is released first.
func (d *Device) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.vc != nil {
		d.vc.Close()
		d.vc = nil
	}

	vc, err := gocv.OpenVideoCapture(d.index)
	if err != nil {
		return fmt.Errorf("%w: open device %d: %v", detect.ErrCameraUnavailable, d.index, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return fmt.Errorf("%w: device %d not opened", detect.ErrCameraUnavailable, d.index)
	}
	if d.width > 0 && d.height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(d.width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(d.height))
	}
	// Keep only the newest frame so captures are not stale
	vc.Set(gocv.VideoCaptureBufferSize, 1)

	d.vc = vc
	return nil
}

// Capture reads one frame.
func (d *Device) Capture() (detect.Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.vc == nil {
		return detect.Frame{}, fmt.Errorf("%w: device %d not open", detect.ErrCameraUnavailable, d.index)
	}
	if ok := d.vc.Read(&d.mat); !ok || d.mat.Empty() {
		return detect.Frame{}, fmt.Errorf("%w: read from device %d failed", detect.ErrCameraUnavailable, d.index)
	}
	at := d.now()

	img, err := d.mat.ToImage()
	if err != nil {
		return detect.Frame{}, fmt.Errorf("convert frame: %w", err)
	}
	return detect.Frame{Image: toRGBA(img), CapturedAt: at}, nil
}

// Close releases the device.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var err error
	if d.vc != nil {
		err = d.vc.Close()
		d.vc = nil
	}
	if cerr := d.mat.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}
