package ai

import (
	"fmt"
	"image"

	"farmsentry/internal/config"
	"farmsentry/internal/logger"
	"farmsentry/internal/service/camera"

	"gocv.io/x/gocv"
)

const (
	// DefaultMotionMinArea ignores lighting flicker but catches an animal-sized object at 640x480.
	DefaultMotionMinArea = 500.0
	motionBlurSize       = 21
	motionDiffThreshold  = 25
	motionDilateSteps    = 2
)

// MotionDetector is the cheap first-pass filter in front of the classifier.
// It is stateless, so one instance can compare frames from any goroutine.
type MotionDetector struct {
	minArea float64
	logger  *logger.Logger
}

// NewMotionDetector creates a detector using cfg.MotionMinArea.
func NewMotionDetector(cfg *config.Config, logger *logger.Logger) *MotionDetector {
	minArea := cfg.MotionMinArea
	if minArea <= 0 {
		minArea = DefaultMotionMinArea
	}
	return &MotionDetector{minArea: minArea, logger: logger}
}

// Compare reports whether b shows a motion region larger than the minimum area
// relative to a.
func (d *MotionDetector) Compare(a, b camera.Frame) (bool, error) {
	grayA, err := blurredGray(a)
	if err != nil {
		return false, err
	}
	defer grayA.Close()

	grayB, err := blurredGray(b)
	if err != nil {
		return false, err
	}
	defer grayB.Close()

	if grayA.Rows() != grayB.Rows() || grayA.Cols() != grayB.Cols() {
		return false, fmt.Errorf("frame sizes differ: %dx%d vs %dx%d", grayA.Cols(), grayA.Rows(), grayB.Cols(), grayB.Rows())
	}

	diff := gocv.NewMat()
	defer diff.Close()
	if err := gocv.AbsDiff(grayA, grayB, &diff); err != nil {
		return false, fmt.Errorf("failed to compute absolute difference: %w", err)
	}

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, motionDiffThreshold, 255, gocv.ThresholdBinary)

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(3, 3))
	defer kernel.Close()
	for i := 0; i < motionDilateSteps; i++ {
		gocv.Dilate(thresh, &thresh, kernel)
	}

	contours := gocv.FindContours(thresh, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	for i := 0; i < contours.Size(); i++ {
		area := gocv.ContourArea(contours.At(i))
		if area > d.minArea {
			d.logger.Info("Motion detected: region of %.0f px", area)
			return true, nil
		}
	}

	return false, nil
}

func blurredGray(frame camera.Frame) (gocv.Mat, error) {
	mat, err := frame.Decode()
	if err != nil {
		return mat, err
	}
	defer mat.Close()

	gray := gocv.NewMat()
	if err := gocv.CvtColor(mat, &gray, gocv.ColorBGRToGray); err != nil {
		gray.Close()
		return gocv.NewMat(), fmt.Errorf("failed to convert image to grayscale: %w", err)
	}

	blurred := gocv.NewMat()
	gocv.GaussianBlur(gray, &blurred, image.Pt(motionBlurSize, motionBlurSize), 0, 0, gocv.BorderDefault)
	gray.Close()
	return blurred, nil
}
