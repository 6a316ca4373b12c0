package recorder

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"farmsentry/internal/config"
	"farmsentry/internal/logger"
	"farmsentry/internal/service/camera"

	"gocv.io/x/gocv"
)

// ErrEncodingFailure is returned when no codec could produce a clip. The alert
// still proceeds, just without a video.
var ErrEncodingFailure = errors.New("encoding failure")

const (
	clipPrefix     = "alert_"
	clipTimeLayout = "20060102_150405"
)

// Codec pairs a FourCC with the container extension it is written to.
type Codec struct {
	FourCC string
	Ext    string
}

// DefaultCodecs tries browser-playable H.264 first and falls back to Motion JPEG.
var DefaultCodecs = []Codec{
	{FourCC: "avc1", Ext: "mp4"},
	{FourCC: "MJPG", Ext: "avi"},
}

// LiveSource is the live side of a recording: the latest frame plus the
// source's nominal rate and resolution.
type LiveSource interface {
	Current() (camera.Frame, bool)
	FPS() int
	Size() (int, int)
}

// FrameWriter is an open video encoder.
type FrameWriter interface {
	Write(img gocv.Mat) error
	Close() error
}

// WriterOpener opens an encoder for path with the given codec.
type WriterOpener func(path, fourcc string, fps float64, width, height int) (FrameWriter, error)

// ClipRecorder assembles pre- and post-trigger frames into a clip file.
type ClipRecorder struct {
	dir    string
	codecs []Codec
	open   WriterOpener
	logger *logger.Logger
}

// NewClipRecorder creates a recorder writing to cfg.ClipDirectory with gocv.
func NewClipRecorder(cfg *config.Config, logger *logger.Logger) *ClipRecorder {
	return NewClipRecorderWithOpener(cfg.ClipDirectory, DefaultCodecs, OpenVideoWriter, logger)
}

// NewClipRecorderWithOpener creates a recorder with explicit codecs and encoder.
func NewClipRecorderWithOpener(dir string, codecs []Codec, open WriterOpener, logger *logger.Logger) *ClipRecorder {
	return &ClipRecorder{
		dir:    dir,
		codecs: codecs,
		open:   open,
		logger: logger,
	}
}

// OpenVideoWriter opens a gocv VideoWriter and fails if OpenCV could not
// initialise the codec.
func OpenVideoWriter(path, fourcc string, fps float64, width, height int) (FrameWriter, error) {
	writer, err := gocv.VideoWriterFile(path, fourcc, fps, width, height, true)
	if err != nil {
		return nil, err
	}
	if !writer.IsOpened() {
		writer.Close()
		return nil, fmt.Errorf("codec %s not available", fourcc)
	}
	return writer, nil
}

// ClipName returns the clip file name for a detection at t.
func ClipName(t time.Time, ext string) string {
	return clipPrefix + t.Format(clipTimeLayout) + "." + ext
}

// ParseClipName extracts the detection time from a clip file name.
func ParseClipName(name string) (time.Time, error) {
	base := filepath.Base(name)
	ext := filepath.Ext(base)
	if !strings.HasPrefix(base, clipPrefix) || ext == "" {
		return time.Time{}, fmt.Errorf("not a clip name: %s", name)
	}

	stamp := strings.TrimSuffix(strings.TrimPrefix(base, clipPrefix), ext)
	if len(stamp) > len(clipTimeLayout) {
		stamp = stamp[:len(clipTimeLayout)] // drop a collision suffix
	}
	return time.ParseInLocation(clipTimeLayout, stamp, time.Local)
}

// IsClipFile reports whether name has one of the extensions written by the recorder.
func IsClipFile(name string) bool {
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	for _, c := range DefaultCodecs {
		if strings.EqualFold(ext, c.Ext) {
			return true
		}
	}
	return false
}

// Record writes up to pre of buffered frames from the tail of snapshot followed
// by post of live frames. It returns the clip's file name, which exists and is
// non-empty, or an error wrapping ErrEncodingFailure. A recording interrupted
// by ctx is discarded.
func (r *ClipRecorder) Record(ctx context.Context, triggeredAt time.Time, snapshot []camera.Frame, live LiveSource, pre, post time.Duration) (string, error) {
	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncodingFailure, err)
	}

	fps := live.FPS()
	if fps <= 0 {
		fps = 15
	}
	width, height := live.Size()
	preFrames := camera.FramesWithin(snapshot, pre)
	if len(preFrames) > 0 {
		width, height = preFrames[0].Width, preFrames[0].Height
	}

	writer, path, err := r.openWriter(triggeredAt, float64(fps), width, height)
	if err != nil {
		return "", err
	}
	name := filepath.Base(path)

	written := 0
	size := image.Pt(width, height)
	for _, frame := range preFrames {
		if r.writeFrame(writer, frame, size) {
			written++
		}
	}

	total := int(post.Seconds() * float64(fps))
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	// One live frame per tick. A stalled camera repeats its last frame, which
	// keeps the clip's playback speed.
	for i := 0; i < total; i++ {
		select {
		case <-ctx.Done():
			writer.Close()
			os.Remove(path)
			r.logger.Warning("Recording %s interrupted, partial clip discarded", name)
			return "", ctx.Err()
		case <-ticker.C:
		}

		frame, ok := live.Current()
		if !ok {
			continue
		}
		if r.writeFrame(writer, frame, size) {
			written++
		}
	}

	if err := writer.Close(); err != nil {
		r.logger.Warning("Closing clip %s: %v", name, err)
	}

	if written == 0 {
		os.Remove(path)
		return "", fmt.Errorf("%w: no frames written to %s", ErrEncodingFailure, name)
	}

	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		os.Remove(path)
		return "", fmt.Errorf("%w: clip %s is missing or empty", ErrEncodingFailure, name)
	}

	r.logger.Info("🎬 Clip saved: %s (%d frames, %d bytes)", name, written, info.Size())
	return name, nil
}

// openWriter tries each codec in order. A codec that fails to open leaves no
// file behind under its name.
func (r *ClipRecorder) openWriter(triggeredAt time.Time, fps float64, width, height int) (FrameWriter, string, error) {
	var lastErr error
	for i, codec := range r.codecs {
		path := r.uniquePath(triggeredAt, codec.Ext)
		writer, err := r.open(path, codec.FourCC, fps, width, height)
		if err == nil {
			if i > 0 {
				r.logger.Warning("Recording with fallback codec %s", codec.FourCC)
			}
			return writer, path, nil
		}

		lastErr = err
		os.Remove(path)
		r.logger.Warning("Codec %s unavailable: %v", codec.FourCC, err)
	}

	if lastErr == nil {
		lastErr = errors.New("no codecs configured")
	}
	return nil, "", fmt.Errorf("%w: %v", ErrEncodingFailure, lastErr)
}

func (r *ClipRecorder) uniquePath(triggeredAt time.Time, ext string) string {
	path := filepath.Join(r.dir, ClipName(triggeredAt, ext))
	for n := 1; ; n++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path
		}
		name := fmt.Sprintf("%s%s_%d.%s", clipPrefix, triggeredAt.Format(clipTimeLayout), n, ext)
		path = filepath.Join(r.dir, name)
	}
}

// writeFrame decodes frame, resizes it to the encoder size if needed and writes
// it. Failures are logged and skipped.
func (r *ClipRecorder) writeFrame(writer FrameWriter, frame camera.Frame, size image.Point) bool {
	mat, err := frame.Decode()
	if err != nil {
		r.logger.Warning("Skipping clip frame: %v", err)
		return false
	}
	defer mat.Close()

	if mat.Cols() != size.X || mat.Rows() != size.Y {
		resized := gocv.NewMat()
		defer resized.Close()
		gocv.Resize(mat, &resized, size, 0, 0, gocv.InterpolationLinear)
		if resized.Empty() {
			return false
		}
		mat, resized = resized, mat
	}

	if err := writer.Write(mat); err != nil {
		r.logger.Warning("Failed to write clip frame: %v", err)
		return false
	}
	return true
}
