package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"farmsentry/internal/config"
	"farmsentry/internal/dto"
	"farmsentry/internal/logger"
	"farmsentry/internal/model"
	"farmsentry/internal/service/ai"
	"farmsentry/internal/service/camera"
	"farmsentry/internal/service/recorder"

	"gocv.io/x/gocv"
)

// ========================================
// Fakes
// ========================================

// fakeSource hands out the same image with a fresh timestamp on every call.
type fakeSource struct {
	data []byte
}

func newFakeSource(t *testing.T) *fakeSource {
	t.Helper()
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(50, 50, 50, 0), 240, 320, gocv.MatTypeCV8UC3)
	defer mat.Close()
	frame, err := camera.EncodeFrame(mat, time.Now(), 80)
	if err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}
	return &fakeSource{data: frame.Data}
}

func (s *fakeSource) Current() (camera.Frame, bool) {
	return camera.Frame{Data: s.data, Timestamp: time.Now(), Width: 320, Height: 240}, true
}
func (s *fakeSource) Snapshot() []camera.Frame { return nil }
func (s *fakeSource) FPS() int                 { return 15 }
func (s *fakeSource) Size() (int, int)         { return 320, 240 }

type fakeMotion struct {
	calls  atomic.Int32
	panics atomic.Int32 // number of calls that panic before motion is reported
	hang   chan struct{} // when set, Compare blocks until it is closed
}

func (m *fakeMotion) Compare(a, b camera.Frame) (bool, error) {
	m.calls.Add(1)
	if m.hang != nil {
		<-m.hang
	}
	if m.panics.Add(-1) >= 0 {
		panic("corrupt frame")
	}
	return true, nil
}

type fakeInferencer struct {
	detections []ai.RawDetection
	calls      atomic.Int32
}

func (f *fakeInferencer) Infer(img gocv.Mat) ([]ai.RawDetection, error) {
	f.calls.Add(1)
	return f.detections, nil
}

func (f *fakeInferencer) Close() error { return nil }

type fakeRecorder struct {
	block bool
	calls atomic.Int32
}

func (r *fakeRecorder) Record(ctx context.Context, triggeredAt time.Time, snapshot []camera.Frame, live recorder.LiveSource, pre, post time.Duration) (string, error) {
	r.calls.Add(1)
	if r.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return recorder.ClipName(triggeredAt, "mp4"), nil
}

type persistCall struct {
	image []byte
	clip  string
}

type fakePersister struct {
	mu    sync.Mutex
	calls []persistCall
	err   error
}

func (p *fakePersister) Persist(ctx context.Context, image []byte, clip string, result dto.DetectionResult) (*model.Alert, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, persistCall{image: image, clip: clip})
	if p.err != nil {
		return nil, p.err
	}
	return &model.Alert{
		ID:             "alert-1",
		Timestamp:      time.Now(),
		DetectedObject: result.Label,
		Confidence:     result.Confidence,
		VideoFilename:  clip,
	}, nil
}

func (p *fakePersister) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type fakeBroadcaster struct {
	payloads chan dto.AlertPayload
}

func (b *fakeBroadcaster) BroadcastAlert(ctx context.Context, payload dto.AlertPayload) error {
	b.payloads <- payload
	return nil
}

type fakeWarnings struct {
	updates atomic.Int32
}

func (w *fakeWarnings) UpdateJPEG(jpeg []byte) { w.updates.Add(1) }

type harness struct {
	manager     *Manager
	motion      *fakeMotion
	inferencer  *fakeInferencer
	recorder    *fakeRecorder
	persister   *fakePersister
	broadcaster *fakeBroadcaster
	warnings    *fakeWarnings
}

func newHarness(t *testing.T, cooldown time.Duration, detections ...ai.RawDetection) *harness {
	t.Helper()

	cfg := &config.Config{
		SampleInterval:      10 * time.Millisecond,
		SampleGap:           5 * time.Millisecond,
		PreTrigger:          time.Second,
		PostTrigger:         time.Second,
		Cooldown:            cooldown,
		ConfidenceThreshold: 0.6,
		IntruderClasses:     config.DefaultIntruderClasses,
		JPEGQuality:         80,
	}
	log := logger.NewWithWriter(io.Discard)

	h := &harness{
		motion:      &fakeMotion{},
		inferencer:  &fakeInferencer{detections: detections},
		recorder:    &fakeRecorder{},
		persister:   &fakePersister{},
		broadcaster: &fakeBroadcaster{payloads: make(chan dto.AlertPayload, 16)},
		warnings:    &fakeWarnings{},
	}
	classifier := ai.NewIntrusionClassifierWithInferencer(cfg, log, h.inferencer)
	h.manager = NewManager(cfg, log, newFakeSource(t), h.motion, classifier, h.recorder, h.persister, h.broadcaster, h.warnings)
	return h
}

func (h *harness) start(t *testing.T) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.manager.Run(ctx)
		close(done)
	}()

	return func() {
		stop()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("Run did not return after cancellation")
		}
	}
}

func person(conf float32) ai.RawDetection {
	return ai.RawDetection{ClassID: 1, Confidence: conf, Left: 0.2, Top: 0.2, Right: 0.6, Bottom: 0.9}
}

func waitPayload(t *testing.T, b *fakeBroadcaster) dto.AlertPayload {
	t.Helper()
	select {
	case p := <-b.payloads:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for a broadcast")
	}
	return dto.AlertPayload{}
}

// ========================================
// Security Loop Tests
// ========================================

func TestManager_PersonTriggersPersistAndBroadcast(t *testing.T) {
	h := newHarness(t, time.Hour, person(0.8))
	stop := h.start(t)

	payload := waitPayload(t, h.broadcaster)
	stop()

	if payload.DetectedObject != "Person" {
		t.Errorf("Expected detectedObject Person, got %s", payload.DetectedObject)
	}
	if payload.ImageData == "" {
		t.Error("Expected base64 image data in the payload")
	}

	if h.persister.count() != 1 {
		t.Fatalf("Expected persist to be called once, got %d", h.persister.count())
	}
	call := h.persister.calls[0]
	if len(call.image) == 0 {
		t.Error("Expected a non-empty image buffer")
	}
	if call.clip == "" {
		t.Error("Expected a clip filename")
	}
	if payload.VideoFilename == nil || *payload.VideoFilename != call.clip {
		t.Errorf("Expected video_filename %s in the payload", call.clip)
	}
	if h.warnings.updates.Load() != 1 {
		t.Errorf("Expected the warning stream to receive the annotated still once, got %d", h.warnings.updates.Load())
	}
}

func TestManager_LowConfidenceRaisesNothing(t *testing.T) {
	h := newHarness(t, time.Hour, person(0.3))
	stop := h.start(t)

	deadline := time.Now().Add(2 * time.Second)
	for h.inferencer.calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	stop()

	if h.inferencer.calls.Load() < 3 {
		t.Fatalf("Expected several classification cycles, got %d", h.inferencer.calls.Load())
	}
	if h.recorder.calls.Load() != 0 {
		t.Errorf("Expected no recording, got %d", h.recorder.calls.Load())
	}
	if h.persister.count() != 0 {
		t.Errorf("Expected persist never to be called, got %d", h.persister.count())
	}
	if len(h.broadcaster.payloads) != 0 {
		t.Errorf("Expected no broadcast, got %d", len(h.broadcaster.payloads))
	}
}

func TestManager_CooldownSuppressesRepeatAlerts(t *testing.T) {
	h := newHarness(t, time.Hour, person(0.9))
	stop := h.start(t)

	waitPayload(t, h.broadcaster)
	// Several sampling intervals pass while intrusion conditions persist.
	time.Sleep(150 * time.Millisecond)

	if state := h.manager.State(); state != StateCoolingDown {
		t.Errorf("Expected state %s, got %s", StateCoolingDown, state)
	}
	stop()

	if h.persister.count() != 1 {
		t.Errorf("Expected a single alert during the cool-down, got %d", h.persister.count())
	}
	if h.motion.calls.Load() != 1 {
		t.Errorf("Expected no sampling during the cool-down, got %d motion checks", h.motion.calls.Load())
	}
}

func TestManager_AlertsAgainAfterCooldown(t *testing.T) {
	h := newHarness(t, 30*time.Millisecond, person(0.9))
	stop := h.start(t)
	defer stop()

	waitPayload(t, h.broadcaster)
	waitPayload(t, h.broadcaster)
}

func TestManager_PersistenceFailureSkipsBroadcast(t *testing.T) {
	h := newHarness(t, time.Hour, person(0.9))
	h.persister.err = errors.New("disk full")
	stop := h.start(t)

	deadline := time.Now().Add(2 * time.Second)
	for h.persister.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	stop()

	if h.persister.count() != 1 {
		t.Fatalf("Expected one persist attempt, got %d", h.persister.count())
	}
	if len(h.broadcaster.payloads) != 0 {
		t.Error("Expected no broadcast after a persistence failure")
	}
}

func TestManager_SurvivesPanickingCycle(t *testing.T) {
	h := newHarness(t, time.Hour, person(0.9))
	h.motion.panics.Store(2)
	stop := h.start(t)
	defer stop()

	payload := waitPayload(t, h.broadcaster)
	if payload.DetectedObject != "Person" {
		t.Errorf("Expected detectedObject Person, got %s", payload.DetectedObject)
	}
	if h.motion.calls.Load() < 3 {
		t.Errorf("Expected the loop to continue after panics, got %d motion checks", h.motion.calls.Load())
	}
}

func TestManager_ShutdownDuringRecording(t *testing.T) {
	h := newHarness(t, time.Hour, person(0.9))
	h.recorder.block = true
	stop := h.start(t)

	deadline := time.Now().Add(2 * time.Second)
	for h.manager.State() != StateRecording && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	stop()

	if h.persister.count() != 0 {
		t.Errorf("Expected no alert for an interrupted recording, got %d", h.persister.count())
	}
	if h.manager.State() != StateIdle {
		t.Errorf("Expected state %s after shutdown, got %s", StateIdle, h.manager.State())
	}
}

func TestManager_ShutdownDoesNotWaitForHungStep(t *testing.T) {
	h := newHarness(t, time.Hour, person(0.9))
	h.motion.hang = make(chan struct{})
	t.Cleanup(func() { close(h.motion.hang) })
	h.manager.drainTimeout = 50 * time.Millisecond
	stop := h.start(t)

	deadline := time.Now().Add(2 * time.Second)
	for h.motion.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if h.motion.calls.Load() == 0 {
		t.Fatal("Expected the loop to reach motion detection")
	}

	stop()

	if h.persister.count() != 0 {
		t.Errorf("Expected no alert, got %d", h.persister.count())
	}
}

func TestWaitTimeout(t *testing.T) {
	var wg sync.WaitGroup
	if !waitTimeout(&wg, 10*time.Millisecond) {
		t.Error("Expected an idle WaitGroup to finish immediately")
	}

	wg.Add(1)
	if waitTimeout(&wg, 20*time.Millisecond) {
		t.Error("Expected the wait to time out")
	}
	wg.Done()
}

func TestOffload_ReturnsContextError(t *testing.T) {
	var wg sync.WaitGroup
	release := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := offload(ctx, &wg, func() (int, error) {
		<-release
		return 1, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}

	close(release)
	wg.Wait()
}

func TestOffload_RecoversPanic(t *testing.T) {
	var wg sync.WaitGroup
	_, err := offload(context.Background(), &wg, func() (int, error) {
		panic("boom")
	})
	if err == nil {
		t.Error("Expected the panic to surface as an error")
	}
	wg.Wait()
}
