package detect

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sweeney/kiosk-agent/internal/logic"
	"github.com/sweeney/kiosk-agent/internal/state"
)

var t0 = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

var testAttrs = logic.Attributes{
	Age:             31,
	Gender:          "female",
	DominantEmotion: "happy",
	EmotionScores:   map[string]float64{"happy": 0.9, "neutral": 0.1},
}

type fixture struct {
	p     *Pipeline
	cam   *FakeCamera
	det   *FakeDetector
	inf   *FakeInferer
	cache *state.Cache
	sink  *state.FakeSink
}

func newFixture(t *testing.T, cfg Config, capacity int) *fixture {
	t.Helper()
	f := &fixture{
		cam:   NewFakeCamera(func() time.Time { return t0 }),
		det:   NewFakeDetector(),
		inf:   NewFakeInferer(testAttrs),
		cache: state.NewCache(t0, capacity, state.Config{}),
		sink:  state.NewFakeSink(),
	}
	f.p = New(cfg, f.cam, f.det, f.inf, f.cache, f.sink)

	var mu sync.Mutex
	n := 0
	f.p.newID = func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("det-%d", n)
	}
	return f
}

func face(x, w int) logic.FaceBox {
	return logic.FaceBox{X: x, Y: 40, Width: w, Height: w, Confidence: 0.85}
}

func TestRunCycleRecordsFaces(t *testing.T) {
	f := newFixture(t, DefaultConfig(), state.DefaultHistorySize)
	f.det.SetFaces(face(10, 50))

	r, err := f.p.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	want := logic.DetectionResult{
		ID:         "det-1",
		CapturedAt: t0,
		Faces:      []logic.FaceBox{face(10, 50)},
		Attributes: &testAttrs,
		DeviceID:   "pi5_imx500_001",
		Location:   "Kiosk Main Display",
	}
	if diff := cmp.Diff(want, r); diff != "" {
		t.Errorf("result (-want +got):\n%s", diff)
	}

	latest, ok := f.cache.LatestDetection()
	if !ok || latest.ID != "det-1" {
		t.Errorf("latest: got %+v, %v", latest, ok)
	}
	if f.sink.Len() != 1 {
		t.Errorf("sink pushes: got %d, want 1", f.sink.Len())
	}
	if !f.cache.Snapshot().CameraReady {
		t.Error("camera should be marked ready after a capture")
	}
}

func TestZeroFacePolicy(t *testing.T) {
	tests := []struct {
		name        string
		recordEmpty bool
		wantLen     int
	}{
		{"skipped by default", false, 0},
		{"recorded when enabled", true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.RecordEmpty = tt.recordEmpty
			f := newFixture(t, cfg, state.DefaultHistorySize)

			r, err := f.p.RunCycle(context.Background())
			if err != nil {
				t.Fatalf("RunCycle: %v", err)
			}
			if len(r.Faces) != 0 || r.Attributes != nil {
				t.Errorf("result: got %+v", r)
			}
			if got := f.cache.HistoryLen(); got != tt.wantLen {
				t.Errorf("history: got %d, want %d", got, tt.wantLen)
			}
			if got := f.sink.Len(); got != tt.wantLen {
				t.Errorf("sink pushes: got %d, want %d", got, tt.wantLen)
			}
			if len(f.inf.Seen()) != 0 {
				t.Error("inference must not run without a face")
			}
		})
	}
}

func TestAttributeFailureStillRecords(t *testing.T) {
	f := newFixture(t, DefaultConfig(), state.DefaultHistorySize)
	f.det.SetFaces(face(10, 50))
	f.inf.SetError(errors.New("model not loaded"))

	r, err := f.p.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if r.Attributes != nil {
		t.Errorf("attributes: got %+v, want nil", r.Attributes)
	}
	if f.cache.HistoryLen() != 1 {
		t.Errorf("history: got %d, want 1", f.cache.HistoryLen())
	}
}

func TestAttributesDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Attributes = false
	f := newFixture(t, cfg, state.DefaultHistorySize)
	f.det.SetFaces(face(10, 50))

	r, _ := f.p.RunCycle(context.Background())
	if r.Attributes != nil || len(f.inf.Seen()) != 0 {
		t.Errorf("inference ran while disabled: %+v", r.Attributes)
	}
}

func TestFaceSelection(t *testing.T) {
	faces := []logic.FaceBox{face(0, 20), face(100, 60), face(200, 60)}
	tests := []struct {
		sel  Selection
		want logic.FaceBox
	}{
		{SelectFirst, faces[0]},
		{SelectLargest, faces[1]},
	}

	for _, tt := range tests {
		t.Run(string(tt.sel), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.FaceSelection = tt.sel
			f := newFixture(t, cfg, state.DefaultHistorySize)
			f.det.SetFaces(faces...)

			r, err := f.p.RunCycle(context.Background())
			if err != nil {
				t.Fatalf("RunCycle: %v", err)
			}
			if diff := cmp.Diff([]logic.FaceBox{tt.want}, f.inf.Seen()); diff != "" {
				t.Errorf("inferred face (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(faces, r.Faces); diff != "" {
				t.Errorf("scan order not kept (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCameraReinitializedOnce(t *testing.T) {
	f := newFixture(t, DefaultConfig(), state.DefaultHistorySize)
	f.det.SetFaces(face(10, 50))
	f.cam.CaptureErrors = []error{fmt.Errorf("read frame: %w", ErrCameraUnavailable)}

	if _, err := f.p.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if f.cam.Opens() != 1 || f.cam.Captures() != 2 {
		t.Errorf("opens=%d captures=%d, want 1 and 2", f.cam.Opens(), f.cam.Captures())
	}
	if f.cache.HistoryLen() != 1 {
		t.Errorf("history: got %d, want 1", f.cache.HistoryLen())
	}
}

func TestCameraStillUnavailableAfterRetry(t *testing.T) {
	f := newFixture(t, DefaultConfig(), state.DefaultHistorySize)
	f.cache.SetCameraReady(true)
	f.cam.CaptureErrors = []error{ErrCameraUnavailable, ErrCameraUnavailable, ErrCameraUnavailable}

	_, err := f.p.RunCycle(context.Background())
	if !errors.Is(err, ErrCameraUnavailable) {
		t.Fatalf("got %v, want ErrCameraUnavailable", err)
	}
	if f.cam.Opens() != 1 || f.cam.Captures() != 2 {
		t.Errorf("opens=%d captures=%d, want exactly one retry", f.cam.Opens(), f.cam.Captures())
	}
	if f.cache.Snapshot().CameraReady {
		t.Error("camera should be marked not ready")
	}
	if f.cache.HistoryLen() != 0 {
		t.Error("failed cycle must not record")
	}
}

func TestCameraReopenFails(t *testing.T) {
	f := newFixture(t, DefaultConfig(), state.DefaultHistorySize)
	f.cam.CaptureErrors = []error{ErrCameraUnavailable}
	f.cam.OpenError = errors.New("device busy")

	_, err := f.p.RunCycle(context.Background())
	if !errors.Is(err, ErrCameraUnavailable) {
		t.Fatalf("got %v, want ErrCameraUnavailable", err)
	}
	if f.cam.Captures() != 1 {
		t.Errorf("captures: got %d, want 1", f.cam.Captures())
	}
}

func TestOtherCaptureErrorNotRetried(t *testing.T) {
	f := newFixture(t, DefaultConfig(), state.DefaultHistorySize)
	f.cam.CaptureErrors = []error{errors.New("bad frame")}

	if _, err := f.p.RunCycle(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if f.cam.Opens() != 0 {
		t.Errorf("opens: got %d, want 0", f.cam.Opens())
	}
}

func TestNoCamera(t *testing.T) {
	p := New(DefaultConfig(), nil, NewFakeDetector(), nil, state.NewCache(t0, 10, state.Config{}), nil)

	if _, err := p.RunCycle(context.Background()); !errors.Is(err, ErrCameraUnavailable) {
		t.Errorf("RunCycle: got %v, want ErrCameraUnavailable", err)
	}
	if _, err := p.StreamFrame(context.Background()); !errors.Is(err, ErrCameraUnavailable) {
		t.Errorf("StreamFrame: got %v, want ErrCameraUnavailable", err)
	}
}

func TestDetectorError(t *testing.T) {
	f := newFixture(t, DefaultConfig(), state.DefaultHistorySize)
	f.det.SetError(errors.New("cascade not loaded"))

	if _, err := f.p.RunCycle(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if f.cache.HistoryLen() != 0 {
		t.Error("failed cycle must not record")
	}
}

type panickingDetector struct{}

func (panickingDetector) Find(Frame) ([]logic.FaceBox, error) { panic("bad model") }

func TestPanicIsRecovered(t *testing.T) {
	f := newFixture(t, DefaultConfig(), state.DefaultHistorySize)
	f.p.detector = panickingDetector{}

	if _, err := f.p.RunCycle(context.Background()); err == nil {
		t.Fatal("expected error from panicking detector")
	}

	// Slot released after the panic
	f.p.detector = f.det
	if _, err := f.p.RunCycle(context.Background()); err != nil {
		t.Errorf("RunCycle after panic: %v", err)
	}
}

func TestTimeoutRecordsNothing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timeout = 20 * time.Millisecond
	f := newFixture(t, cfg, state.DefaultHistorySize)
	f.det.SetFaces(face(10, 50))

	block := make(chan struct{})
	f.cam.Block = block

	if _, err := f.p.RunCycle(context.Background()); !errors.Is(err, ErrTimeout) {
		t.Fatalf("first cycle: got %v, want ErrTimeout", err)
	}
	// The abandoned cycle still holds the camera
	if _, err := f.p.RunCycle(context.Background()); !errors.Is(err, ErrTimeout) {
		t.Fatalf("second cycle: got %v, want ErrTimeout", err)
	}

	f.cam.mu.Lock()
	f.cam.Block = nil
	f.cam.mu.Unlock()
	close(block)

	var r logic.DetectionResult
	var err error
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r, err = f.p.RunCycle(context.Background()); err == nil {
			break
		}
	}
	if err != nil {
		t.Fatalf("cycle after unblock: %v", err)
	}

	history := f.cache.History(0)
	if len(history) != 1 || history[0].ID != r.ID {
		t.Errorf("abandoned cycle recorded: history %+v", history)
	}
}

func TestCancelledContext(t *testing.T) {
	f := newFixture(t, DefaultConfig(), state.DefaultHistorySize)
	block := make(chan struct{})
	defer close(block)
	f.cam.Block = block

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.p.RunCycle(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestHistoryBounded(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 3)
	f.det.SetFaces(face(10, 50))

	for i := 0; i < 5; i++ {
		if _, err := f.p.RunCycle(context.Background()); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
	}

	snap := f.cache.Snapshot()
	var ids []string
	for _, r := range snap.History {
		ids = append(ids, r.ID)
	}
	if diff := cmp.Diff([]string{"det-3", "det-4", "det-5"}, ids); diff != "" {
		t.Errorf("history (-want +got):\n%s", diff)
	}
	if snap.LatestDetection == nil || snap.LatestDetection.ID != "det-5" {
		t.Errorf("latest: got %+v", snap.LatestDetection)
	}
}

func TestConcurrentTriggers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timeout = 5 * time.Second
	f := newFixture(t, cfg, state.DefaultHistorySize)
	f.det.SetFaces(face(10, 50))

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.p.RunCycle(context.Background()); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("RunCycle: %v", err)
	}

	seen := map[string]bool{}
	for _, r := range f.cache.History(0) {
		if seen[r.ID] {
			t.Errorf("duplicate id %s", r.ID)
		}
		seen[r.ID] = true
	}
	if len(seen) != 10 {
		t.Errorf("history: got %d, want 10", len(seen))
	}
}

func TestStreamFrame(t *testing.T) {
	f := newFixture(t, DefaultConfig(), state.DefaultHistorySize)
	f.det.SetFaces(face(10, 50))

	data, err := f.p.StreamFrame(context.Background())
	if err != nil {
		t.Fatalf("StreamFrame: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("not a JPEG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 640 || b.Dy() != 480 {
		t.Errorf("size: got %v", b)
	}
	if f.cache.HistoryLen() != 0 || f.sink.Len() != 0 {
		t.Error("stream frames must not be recorded")
	}
	if len(f.inf.Seen()) != 0 {
		t.Error("stream frames must not run inference")
	}
}

func TestRunLoop(t *testing.T) {
	f := newFixture(t, DefaultConfig(), state.DefaultHistorySize)
	f.det.SetFaces(face(10, 50))
	ctx, cancel := context.WithCancel(context.Background())
	tick := make(chan time.Time)

	done := make(chan error, 1)
	go func() { done <- f.p.run(ctx, tick) }()

	for i := 0; i < 3; i++ {
		tick <- t0
	}
	deadline := time.Now().Add(2 * time.Second)
	for f.cache.HistoryLen() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	f.det.SetError(errors.New("cascade not loaded"))
	tick <- t0
	tick <- t0
	cancel()

	if err := <-done; err != nil {
		t.Errorf("run: %v", err)
	}
	if got := f.cache.HistoryLen(); got != 3 {
		t.Errorf("history: got %d, want 3", got)
	}
	if got := f.cache.Snapshot().Counts.FailedCycles; got < 1 {
		t.Errorf("FailedCycles: got %d, want >= 1", got)
	}
}
