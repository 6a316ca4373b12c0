package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"farmsentry/internal/config"
	"farmsentry/internal/dto"
	"farmsentry/internal/logger"
	"farmsentry/internal/model"
	"farmsentry/internal/service/camera"
	"farmsentry/internal/service/recorder"
)

// drainTimeout bounds how long Run waits for offloaded work on shutdown.
const drainTimeout = 5 * time.Second

// State is the security loop's current phase.
type State int32

const (
	StateIdle State = iota
	StateSampling
	StateDetecting
	StateRecording
	StateCoolingDown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSampling:
		return "sampling"
	case StateDetecting:
		return "detecting"
	case StateRecording:
		return "recording"
	case StateCoolingDown:
		return "cooling_down"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// FrameProvider is the live camera as seen by the loop.
type FrameProvider interface {
	Current() (camera.Frame, bool)
	Snapshot() []camera.Frame
	FPS() int
	Size() (int, int)
}

type MotionComparer interface {
	Compare(a, b camera.Frame) (bool, error)
}

type Classifier interface {
	Classify(frame camera.Frame) (dto.DetectionResult, error)
}

type ClipRecorder interface {
	Record(ctx context.Context, triggeredAt time.Time, snapshot []camera.Frame, live recorder.LiveSource, pre, post time.Duration) (string, error)
}

type AlertPersister interface {
	Persist(ctx context.Context, image []byte, clip string, result dto.DetectionResult) (*model.Alert, error)
}

type AlertBroadcaster interface {
	BroadcastAlert(ctx context.Context, payload dto.AlertPayload) error
}

// WarningSink receives every annotated alert still, e.g. an MJPEG stream.
type WarningSink interface {
	UpdateJPEG(jpeg []byte)
}

// Manager runs the security loop: sample two frames, look for motion, classify,
// record a clip, persist and broadcast the alert, then cool down.
type Manager struct {
	source      FrameProvider
	motion      MotionComparer
	classifier  Classifier
	recorder    ClipRecorder
	persister   AlertPersister
	broadcaster AlertBroadcaster
	warnings    WarningSink
	logger      *logger.Logger

	sampleInterval time.Duration
	sampleGap      time.Duration
	preTrigger     time.Duration
	postTrigger    time.Duration
	cooldown       time.Duration

	mu    sync.RWMutex
	state State

	// wg tracks offloaded work so Run can wait for it on shutdown.
	wg           sync.WaitGroup
	drainTimeout time.Duration
}

// NewManager creates a Manager. warnings may be nil.
func NewManager(cfg *config.Config, logger *logger.Logger, source FrameProvider, motion MotionComparer, classifier Classifier,
	recorder ClipRecorder, persister AlertPersister, broadcaster AlertBroadcaster, warnings WarningSink) *Manager {
	return &Manager{
		source:         source,
		motion:         motion,
		classifier:     classifier,
		recorder:       recorder,
		persister:      persister,
		broadcaster:    broadcaster,
		warnings:       warnings,
		logger:         logger,
		sampleInterval: cfg.SampleInterval,
		sampleGap:      cfg.SampleGap,
		preTrigger:     cfg.PreTrigger,
		postTrigger:    cfg.PostTrigger,
		cooldown:       cfg.Cooldown,
		drainTimeout:   drainTimeout,
	}
}

// State returns the loop's current phase.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// Run drives the loop until ctx is cancelled. A failing cycle is logged and the
// loop starts over. On shutdown Run waits up to drainTimeout for offloaded work;
// a step that is still running after that (a hung inference) is left behind.
func (m *Manager) Run(ctx context.Context) {
	m.logger.Info("🛡️ Security loop started (interval %v, cool-down %v)", m.sampleInterval, m.cooldown)

	for ctx.Err() == nil {
		if err := m.safeCycle(ctx); err != nil && ctx.Err() == nil {
			m.logger.Error("Security cycle failed: %v", err)
		}
		m.setState(StateIdle)
	}

	if !waitTimeout(&m.wg, m.drainTimeout) {
		m.logger.Warning("⏳ Offloaded work still running after %v, not waiting for it", m.drainTimeout)
	}
	m.logger.Info("🛑 Security loop stopped")
}

// waitTimeout reports whether wg finished within d.
func waitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

func (m *Manager) safeCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return m.cycle(ctx)
}

// cycle runs one pass through the states and returns to Idle.
func (m *Manager) cycle(ctx context.Context) error {
	m.setState(StateIdle)
	if err := sleep(ctx, m.sampleInterval); err != nil {
		return err
	}

	m.setState(StateSampling)
	first, ok := m.source.Current()
	if !ok {
		return nil
	}
	if err := sleep(ctx, m.sampleGap); err != nil {
		return err
	}
	second, ok := m.source.Current()
	if !ok || !second.Timestamp.After(first.Timestamp) {
		return nil
	}

	m.setState(StateDetecting)
	moved, err := offload(ctx, &m.wg, func() (bool, error) {
		return m.motion.Compare(first, second)
	})
	if err != nil {
		return fmt.Errorf("motion detection: %w", err)
	}
	if !moved {
		return nil
	}

	result, err := offload(ctx, &m.wg, func() (dto.DetectionResult, error) {
		return m.classifier.Classify(second)
	})
	if err != nil {
		return fmt.Errorf("classification: %w", err)
	}
	if !result.Found {
		return nil
	}

	m.setState(StateRecording)
	if err := m.raiseAlert(ctx, second.Timestamp, result); err != nil {
		return err
	}

	m.setState(StateCoolingDown)
	return sleep(ctx, m.cooldown)
}

// raiseAlert records the clip, persists the alert and broadcasts it. Only a
// cancelled ctx is returned as an error; other failures are logged.
func (m *Manager) raiseAlert(ctx context.Context, triggeredAt time.Time, result dto.DetectionResult) error {
	if m.warnings != nil {
		m.warnings.UpdateJPEG(result.Annotated)
	}

	snapshot := m.source.Snapshot()
	clip, err := offload(ctx, &m.wg, func() (string, error) {
		return m.recorder.Record(ctx, triggeredAt, snapshot, m.source, m.preTrigger, m.postTrigger)
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		m.logger.Warning("Alert continues without a clip: %v", err)
		clip = ""
	}

	alert, err := offload(ctx, &m.wg, func() (*model.Alert, error) {
		return m.persister.Persist(ctx, result.Annotated, clip, result)
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		m.logger.Error("Alert not saved, broadcast skipped: %v", err)
		return nil
	}

	payload := dto.NewAlertPayload(alert, result.Annotated)
	if err := m.broadcaster.BroadcastAlert(ctx, payload); err != nil {
		m.logger.Warning("Alert %s broadcast incomplete: %v", alert.ID, err)
	}
	return nil
}

// offload runs fn on its own goroutine and waits for it or for ctx. When ctx
// wins, fn keeps running and is tracked by wg.
func offload[T any](ctx context.Context, wg *sync.WaitGroup, fn func() (T, error)) (T, error) {
	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		v, err := fn()
		done <- outcome{value: v, err: err}
	}()

	select {
	case out := <-done:
		return out.value, out.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
