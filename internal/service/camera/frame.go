package camera

import (
	"errors"
	"fmt"
	"time"

	"gocv.io/x/gocv"
)

// Frame is one captured image. Data holds the JPEG encoding and must not be
// modified after the frame is created; consumers that need pixels decode their
// own Mat.
type Frame struct {
	Data      []byte
	Timestamp time.Time
	Width     int
	Height    int
}

// IsZero reports whether the frame carries no image.
func (f Frame) IsZero() bool {
	return len(f.Data) == 0
}

// Decode returns a new BGR Mat owned by the caller.
func (f Frame) Decode() (gocv.Mat, error) {
	if f.IsZero() {
		return gocv.NewMat(), errors.New("frame is empty")
	}

	mat, err := gocv.IMDecode(f.Data, gocv.IMReadColor)
	if err != nil {
		return mat, fmt.Errorf("failed to decode frame: %w", err)
	}
	if mat.Empty() {
		mat.Close()
		return gocv.NewMat(), errors.New("decoded frame is empty")
	}
	return mat, nil
}

// EncodeFrame JPEG-encodes mat into a Frame stamped with ts.
func EncodeFrame(mat gocv.Mat, ts time.Time, quality int) (Frame, error) {
	if mat.Empty() {
		return Frame{}, errors.New("cannot encode empty mat")
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return Frame{}, fmt.Errorf("failed to encode frame: %w", err)
	}
	defer buf.Close()

	data := make([]byte, len(buf.GetBytes()))
	copy(data, buf.GetBytes())

	return Frame{
		Data:      data,
		Timestamp: ts,
		Width:     mat.Cols(),
		Height:    mat.Rows(),
	}, nil
}

// FramesWithin returns the suffix of frames (ordered oldest-first) whose
// timestamps lie within d of the last frame.
func FramesWithin(frames []Frame, d time.Duration) []Frame {
	if len(frames) == 0 || d <= 0 {
		return nil
	}

	cutoff := frames[len(frames)-1].Timestamp.Add(-d)
	start := len(frames)
	for start > 0 && !frames[start-1].Timestamp.Before(cutoff) {
		start--
	}
	return frames[start:]
}
