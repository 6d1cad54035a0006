package camera

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/sweeney/kiosk-agent/internal/detect"
	"github.com/sweeney/kiosk-agent/internal/logic"
)

// DefaultCascade is the stock OpenCV frontal face model on Raspberry Pi OS.
const DefaultCascade = "/usr/share/opencv4/haarcascades/haarcascade_frontalface_default.xml"

// Haar cascades give no score; every hit is reported with this confidence.
const cascadeConfidence = 0.85

// CascadeDetector finds faces with a Haar cascade classifier.
type CascadeDetector struct {
	mu         sync.Mutex
	classifier gocv.CascadeClassifier
	minSize    image.Point
}

// NewCascadeDetector loads the cascade model at path.
func NewCascadeDetector(path string) (*CascadeDetector, error) {
	c := gocv.NewCascadeClassifier()
	if !c.Load(path) {
		c.Close()
		return nil, fmt.Errorf("load cascade %s", path)
	}
	return &CascadeDetector{classifier: c, minSize: image.Pt(30, 30)}, nil
}

// Find returns face boxes in classifier scan order.
func (d *CascadeDetector) Find(f detect.Frame) ([]logic.FaceBox, error) {
	mat, err := gocv.ImageToMatRGB(f.Image)
	if err != nil {
		return nil, fmt.Errorf("frame to mat: %w", err)
	}
	defer mat.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(mat, &gray, gocv.ColorBGRToGray)

	d.mu.Lock()
	rects := d.classifier.DetectMultiScaleWithParams(gray, 1.1, 5, 0, d.minSize, image.Point{})
	d.mu.Unlock()

	faces := make([]logic.FaceBox, 0, len(rects))
	for _, r := range rects {
		faces = append(faces, logic.FaceBox{
			X:          r.Min.X,
			Y:          r.Min.Y,
			Width:      r.Dx(),
			Height:     r.Dy(),
			Confidence: cascadeConfidence,
		})
	}
	return faces, nil
}

// Close releases the classifier.
func (d *CascadeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.classifier.Close()
}
