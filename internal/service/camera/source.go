package camera

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"farmsentry/internal/config"
	"farmsentry/internal/logger"

	"gocv.io/x/gocv"
)

// ErrDeviceUnavailable is returned when the capture device cannot be opened.
var ErrDeviceUnavailable = errors.New("capture device unavailable")

const (
	readRetryDelay = 20 * time.Millisecond
	reopenDelay    = 2 * time.Second
)

// Capturer is the part of a capture device the acquisition loop needs.
type Capturer interface {
	Read(m *gocv.Mat) bool
	Close() error
}

// CaptureOpener opens a capture device at the requested resolution and rate.
type CaptureOpener func(device string, width, height, fps int) (Capturer, error)

// FrameSource owns the capture device. A dedicated goroutine reads frames,
// publishes the latest one and appends it to the history.
type FrameSource struct {
	device          string
	width           int
	height          int
	fps             int
	quality         int
	maxReadFailures int
	open            CaptureOpener
	logger          *logger.Logger

	history *FrameHistory

	frameMu  sync.RWMutex
	current  Frame
	hasFrame bool

	lifecycleMu sync.Mutex
	started     bool
	stopOnce    sync.Once
	stopCh      chan struct{}
	done        chan struct{}
}

// NewFrameSource creates a source for the configured device. The device is not
// opened until Start.
func NewFrameSource(cfg *config.Config, logger *logger.Logger) *FrameSource {
	return NewFrameSourceWithOpener(cfg, logger, OpenVideoCapture)
}

// NewFrameSourceWithOpener is NewFrameSource with a custom device opener.
func NewFrameSourceWithOpener(cfg *config.Config, logger *logger.Logger, open CaptureOpener) *FrameSource {
	maxFailures := cfg.MaxReadFailures
	if maxFailures <= 0 {
		maxFailures = 50
	}
	quality := cfg.JPEGQuality
	if quality <= 0 || quality > 100 {
		quality = 85
	}

	return &FrameSource{
		device:          cfg.CameraDevice,
		width:           cfg.CaptureWidth,
		height:          cfg.CaptureHeight,
		fps:             cfg.CaptureFPS,
		quality:         quality,
		maxReadFailures: maxFailures,
		open:            open,
		logger:          logger,
		history:         NewFrameHistory(HistoryCapacity(cfg.RetentionSeconds, cfg.CaptureFPS)),
		stopCh:          make(chan struct{}),
		done:            make(chan struct{}),
	}
}

// OpenVideoCapture opens a local camera (numeric id) or a stream URL with gocv.
func OpenVideoCapture(device string, width, height, fps int) (Capturer, error) {
	var target interface{} = device
	if id, err := strconv.Atoi(device); err == nil {
		target = id
	}

	capture, err := gocv.OpenVideoCapture(target)
	if err != nil {
		return nil, err
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("device %s did not open", device)
	}

	capture.Set(gocv.VideoCaptureFrameWidth, float64(width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(height))
	capture.Set(gocv.VideoCaptureFPS, float64(fps))

	return capture, nil
}

// Start opens the device and launches the acquisition loop.
func (s *FrameSource) Start() error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.started {
		return nil
	}
	select {
	case <-s.stopCh:
		return fmt.Errorf("%w: source already stopped", ErrDeviceUnavailable)
	default:
	}

	capture, err := s.open(s.device, s.width, s.height, s.fps)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, s.device, err)
	}

	s.started = true
	go s.run(capture)

	s.logger.Info("📷 Camera %s opened at %dx%d@%dfps (history %d frames)", s.device, s.width, s.height, s.fps, s.history.Cap())
	return nil
}

// Stop terminates the acquisition loop, releases the device and clears the
// history. It is safe to call more than once.
func (s *FrameSource) Stop() {
	s.stopOnce.Do(func() {
		s.lifecycleMu.Lock()
		started := s.started
		close(s.stopCh)
		s.lifecycleMu.Unlock()

		if started {
			<-s.done
		}
		s.history.Clear()
		s.logger.Info("📷 Camera %s stopped", s.device)
	})
}

// Current returns the most recent frame, or false if none was captured yet.
func (s *FrameSource) Current() (Frame, bool) {
	s.frameMu.RLock()
	defer s.frameMu.RUnlock()
	return s.current, s.hasFrame
}

// Snapshot returns a copy of the buffered history.
func (s *FrameSource) Snapshot() []Frame {
	return s.history.Snapshot()
}

// History returns the source's frame history.
func (s *FrameSource) History() *FrameHistory {
	return s.history
}

// FPS returns the nominal frame rate.
func (s *FrameSource) FPS() int {
	return s.fps
}

// Size returns the nominal capture resolution.
func (s *FrameSource) Size() (int, int) {
	return s.width, s.height
}

func (s *FrameSource) setCurrent(frame Frame) {
	s.frameMu.Lock()
	s.current = frame
	s.hasFrame = true
	s.frameMu.Unlock()
}

// run is the acquisition loop. It only blocks on the device.
func (s *FrameSource) run(capture Capturer) {
	defer close(s.done)
	defer func() {
		if capture != nil {
			capture.Close()
		}
	}()

	mat := gocv.NewMat()
	defer mat.Close()

	failures := 0
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		if capture == nil {
			capture = s.reopen()
			continue
		}

		if ok := capture.Read(&mat); !ok || mat.Empty() {
			failures++
			if failures >= s.maxReadFailures {
				s.logger.Warning("Camera %s: %d consecutive read failures, reopening", s.device, failures)
				capture.Close()
				capture = nil
				failures = 0
				continue
			}
			s.wait(readRetryDelay)
			continue
		}
		failures = 0

		frame, err := EncodeFrame(mat, time.Now(), s.quality)
		if err != nil {
			s.logger.Warning("Camera %s: %v", s.device, err)
			continue
		}

		s.setCurrent(frame)
		s.history.Push(frame)
	}
}

// reopen tries once to reopen the device, pausing after a failure. It returns
// nil when the device is still unavailable.
func (s *FrameSource) reopen() Capturer {
	capture, err := s.open(s.device, s.width, s.height, s.fps)
	if err != nil {
		s.logger.Error("Camera %s: reopen failed: %v", s.device, err)
		s.wait(reopenDelay)
		return nil
	}
	s.logger.Info("📷 Camera %s reopened", s.device)
	return capture
}

func (s *FrameSource) wait(d time.Duration) {
	select {
	case <-s.stopCh:
	case <-time.After(d):
	}
}
