package detect

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sweeney/kiosk-agent/internal/logic"
	"github.com/sweeney/kiosk-agent/internal/state"
)

// Config controls the pipeline.
type Config struct {
	DeviceID string
	Location string

	// Timeout bounds one cycle, including waiting for the camera.
	Timeout time.Duration
	// Period is the detection loop interval.
	Period time.Duration

	// Attributes enables attribute inference on one face per cycle.
	Attributes    bool
	FaceSelection Selection
	// RecordEmpty records cycles that found no face.
	RecordEmpty bool

	// StreamAttributes overlays the latest recorded attributes on
	// live-view frames.
	StreamAttributes bool
	JPEGQuality      int
}

// DefaultConfig returns the production pipeline settings.
func DefaultConfig() Config {
	return Config{
		DeviceID:         "pi5_imx500_001",
		Location:         "Kiosk Main Display",
		Timeout:          2 * time.Second,
		Period:           500 * time.Millisecond,
		Attributes:       true,
		FaceSelection:    SelectFirst,
		StreamAttributes: true,
		JPEGQuality:      85,
	}
}

// Pipeline runs detection cycles against one camera.
//
// Hardware work is serialized by a single slot. A cycle that overruns its
// timeout is abandoned: the caller gets ErrTimeout, nothing is recorded, and
// the slot stays taken until the hardware call returns, so later cycles time
// out rather than pile up.
type Pipeline struct {
	cfg      Config
	camera   Camera
	detector Detector
	inferer  Inferer
	store    Store
	sink     state.Sink
	newID    func() string

	slot chan struct{}
}

// New creates a Pipeline. camera may be nil (no camera attached), in which
// case every cycle fails with ErrCameraUnavailable. inferer may be nil.
func New(cfg Config, camera Camera, detector Detector, inferer Inferer, store Store, sink state.Sink) *Pipeline {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = DefaultConfig().JPEGQuality
	}
	if sink == nil {
		sink = state.NopSink{}
	}
	return &Pipeline{
		cfg:      cfg,
		camera:   camera,
		detector: detector,
		inferer:  inferer,
		store:    store,
		sink:     sink,
		newID:    uuid.NewString,
		slot:     make(chan struct{}, 1),
	}
}

// job tracks one exclusive hardware run.
type job struct {
	mu        sync.Mutex
	abandoned bool
	committed bool
	done      chan struct{}
	err       error
}

// commit runs fn unless the caller already gave up waiting.
func (j *job) commit(fn func()) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.abandoned {
		return false
	}
	fn()
	j.committed = true
	return true
}

// exclusive runs work holding the hardware slot, bounded by the soft
// timeout. Work publishes its outcome through commit as its last step.
func (p *Pipeline) exclusive(ctx context.Context, work func(ctx context.Context, commit func(func()) bool) error) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	select {
	case p.slot <- struct{}{}:
	case <-ctx.Done():
		return timeoutErr(ctx)
	}

	j := &job{done: make(chan struct{})}
	go func() {
		defer func() { <-p.slot }()
		defer close(j.done)
		defer func() {
			if r := recover(); r != nil {
				j.err = fmt.Errorf("panic in detection cycle: %v", r)
			}
		}()
		j.err = work(ctx, j.commit)
	}()

	select {
	case <-j.done:
		return j.err
	case <-ctx.Done():
		j.mu.Lock()
		committed := j.committed
		j.abandoned = true
		j.mu.Unlock()
		if committed {
			<-j.done
			return j.err
		}
		return timeoutErr(ctx)
	}
}

func timeoutErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ctx.Err()
}

// RunCycle captures, detects, optionally infers attributes and records the
// result. A cycle with no face is returned but only recorded when
// RecordEmpty is set. Attribute failure leaves Attributes nil and does not
// fail the cycle.
func (p *Pipeline) RunCycle(ctx context.Context) (logic.DetectionResult, error) {
	var result logic.DetectionResult
	err := p.exclusive(ctx, func(ctx context.Context, commit func(func()) bool) error {
		frame, err := p.capture()
		if err != nil {
			return err
		}
		faces, err := p.detector.Find(frame)
		if err != nil {
			return fmt.Errorf("find faces: %w", err)
		}

		r := logic.DetectionResult{
			ID:         p.newID(),
			CapturedAt: frame.CapturedAt,
			Faces:      faces,
			DeviceID:   p.cfg.DeviceID,
			Location:   p.cfg.Location,
		}
		if len(faces) > 0 && p.cfg.Attributes && p.inferer != nil {
			face := SelectFace(faces, p.cfg.FaceSelection)
			attrs, err := p.inferer.Attributes(ctx, frame, face)
			if err != nil {
				log.Printf("detect: attribute inference failed: %v", err)
			} else {
				r.Attributes = &attrs
			}
		}

		commit(func() {
			result = r
			if len(r.Faces) > 0 || p.cfg.RecordEmpty {
				p.store.AppendDetection(r)
				p.sink.Push(p.store.Snapshot())
			}
		})
		return nil
	})
	if err != nil {
		return logic.DetectionResult{}, err
	}
	return result, nil
}

// capture reads a frame, re-opening the camera once if it was lost.
func (p *Pipeline) capture() (Frame, error) {
	if p.camera == nil {
		return Frame{}, ErrCameraUnavailable
	}

	frame, err := p.camera.Capture()
	if errors.Is(err, ErrCameraUnavailable) {
		log.Printf("detect: %v, reinitializing camera", err)
		if oerr := p.camera.Open(); oerr != nil {
			p.store.SetCameraReady(false)
			return Frame{}, fmt.Errorf("%w: reopen: %v", ErrCameraUnavailable, oerr)
		}
		frame, err = p.camera.Capture()
	}
	if err != nil {
		p.store.SetCameraReady(false)
		return Frame{}, fmt.Errorf("capture: %w", err)
	}
	p.store.SetCameraReady(true)
	return frame, nil
}

// StreamFrame captures and detects like RunCycle, then returns the
// annotated frame as JPEG. Nothing is recorded.
func (p *Pipeline) StreamFrame(ctx context.Context) ([]byte, error) {
	var out []byte
	err := p.exclusive(ctx, func(ctx context.Context, commit func(func()) bool) error {
		frame, err := p.capture()
		if err != nil {
			return err
		}
		faces, err := p.detector.Find(frame)
		if err != nil {
			return fmt.Errorf("find faces: %w", err)
		}

		var attrs *logic.Attributes
		if p.cfg.StreamAttributes && len(faces) > 0 {
			if latest, ok := p.store.LatestDetection(); ok {
				attrs = latest.Attributes
			}
		}
		img := Annotate(frame, faces, attrs, p.cfg.FaceSelection)

		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: p.cfg.JPEGQuality}); err != nil {
			return fmt.Errorf("encode jpeg: %w", err)
		}
		commit(func() { out = buf.Bytes() })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Run executes detection cycles on the configured period until ctx is
// cancelled. Cycle errors are counted and logged when they change.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.camera == nil {
		log.Printf("detect: no camera, detection loop disabled")
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(p.cfg.Period)
	defer ticker.Stop()
	return p.run(ctx, ticker.C)
}

func (p *Pipeline) run(ctx context.Context, tick <-chan time.Time) error {
	log.Printf("detect: started: period=%v timeout=%v attributes=%v record_empty=%v",
		p.cfg.Period, p.cfg.Timeout, p.cfg.Attributes, p.cfg.RecordEmpty)

	var lastErr string
	lastFaces := 0
	for {
		select {
		case <-ctx.Done():
			log.Printf("detect: stopped")
			return nil

		case <-tick:
			r, err := p.RunCycle(ctx)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				p.store.CountFailedCycle()
				if msg := err.Error(); msg != lastErr {
					log.Printf("detect: cycle failed: %v", err)
					lastErr = msg
				}
				continue
			}
			if lastErr != "" {
				log.Printf("detect: recovered")
				lastErr = ""
			}
			if n := len(r.Faces); n != lastFaces {
				log.Printf("detect: %d face(s) in view", n)
				lastFaces = n
			}
		}
	}
}
