package ai

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"

	"farmsentry/internal/config"
	"farmsentry/internal/dto"
	"farmsentry/internal/logger"
	"farmsentry/internal/service/camera"

	"gocv.io/x/gocv"
)

// ErrInferenceFailure wraps model-load and tensor errors. Callers treat it as
// "no detection".
var ErrInferenceFailure = errors.New("inference failure")

const (
	// DefaultConfidenceThreshold is the minimum score for an accepted detection.
	DefaultConfidenceThreshold = 0.6
	// GenericAnimalLabel names allow-listed classes without a specific label.
	GenericAnimalLabel = "Animal"
)

// intruderLabels maps COCO class ids to the names used in alerts.
var intruderLabels = map[int]string{
	1:  "Person",
	16: "Bird",
	17: "Cat",
	18: "Dog",
	21: "Cow",
}

var (
	boxColor   = color.RGBA{R: 255, G: 0, B: 0, A: 0}
	labelColor = color.RGBA{R: 255, G: 255, B: 255, A: 0}
)

// IntrusionClassifier decides whether a frame with motion contains an intruder.
type IntrusionClassifier struct {
	threshold float64
	allowed   map[int]bool
	quality   int
	logger    *logger.Logger

	mu    sync.Mutex // the inference session is not reentrant
	infer Inferencer
}

// NewIntrusionClassifier creates a classifier backed by the OpenCV DNN model in cfg.
func NewIntrusionClassifier(cfg *config.Config, logger *logger.Logger) *IntrusionClassifier {
	return NewIntrusionClassifierWithInferencer(cfg, logger, NewDNNInferencer(cfg.ModelPath, cfg.ModelConfigPath, cfg.ModelInputSize))
}

// NewIntrusionClassifierWithInferencer creates a classifier around an existing inference backend.
func NewIntrusionClassifierWithInferencer(cfg *config.Config, logger *logger.Logger, infer Inferencer) *IntrusionClassifier {
	threshold := cfg.ConfidenceThreshold
	if threshold <= 0 {
		threshold = DefaultConfidenceThreshold
	}
	classes := cfg.IntruderClasses
	if len(classes) == 0 {
		classes = config.DefaultIntruderClasses
	}
	allowed := make(map[int]bool, len(classes))
	for _, id := range classes {
		allowed[id] = true
	}
	quality := cfg.JPEGQuality
	if quality <= 0 || quality > 100 {
		quality = 85
	}

	return &IntrusionClassifier{
		threshold: threshold,
		allowed:   allowed,
		quality:   quality,
		logger:    logger,
		infer:     infer,
	}
}

// Classify runs the detector on frame. On a hit the result carries a JPEG with
// every accepted detection drawn on it; Label and Confidence reflect the last
// accepted one.
func (c *IntrusionClassifier) Classify(frame camera.Frame) (dto.DetectionResult, error) {
	img, err := frame.Decode()
	if err != nil {
		return dto.DetectionResult{}, fmt.Errorf("%w: %v", ErrInferenceFailure, err)
	}
	defer img.Close()

	c.mu.Lock()
	raw, err := c.infer.Infer(img)
	c.mu.Unlock()
	if err != nil {
		return dto.DetectionResult{}, fmt.Errorf("%w: %v", ErrInferenceFailure, err)
	}

	detections := c.Accept(raw, img.Cols(), img.Rows())
	if len(detections) == 0 {
		return dto.DetectionResult{}, nil
	}

	// img is our own decoded copy, the buffered frame is never touched.
	annotated, err := c.annotate(&img, detections)
	if err != nil {
		return dto.DetectionResult{}, fmt.Errorf("%w: %v", ErrInferenceFailure, err)
	}

	last := detections[len(detections)-1]
	return dto.DetectionResult{
		Found:      true,
		Annotated:  annotated,
		Label:      last.Label,
		Confidence: last.Confidence,
		Detections: detections,
	}, nil
}

// Accept filters raw detector rows down to intruders: confidence above the
// threshold and class id on the allow-list. Boxes are converted to pixels.
func (c *IntrusionClassifier) Accept(raw []RawDetection, width, height int) []dto.Detection {
	var out []dto.Detection
	for _, r := range raw {
		// Compared in the detector's precision so a score equal to the threshold is rejected.
		if r.Confidence <= float32(c.threshold) {
			continue
		}
		if !c.allowed[r.ClassID] {
			continue
		}

		x1 := clamp(int(r.Left*float32(width)), 0, width)
		y1 := clamp(int(r.Top*float32(height)), 0, height)
		x2 := clamp(int(r.Right*float32(width)), 0, width)
		y2 := clamp(int(r.Bottom*float32(height)), 0, height)

		label := LabelFor(r.ClassID)
		out = append(out, dto.Detection{
			ClassID:    r.ClassID,
			Label:      label,
			Confidence: float64(r.Confidence),
			X:          x1,
			Y:          y1,
			Width:      x2 - x1,
			Height:     y2 - y1,
		})
		c.logger.Warning("🚨 Intruder: %s detected with %.1f%% confidence", label, r.Confidence*100)
	}
	return out
}

// LabelFor returns the display name of an intruder class.
func LabelFor(classID int) string {
	if label, ok := intruderLabels[classID]; ok {
		return label
	}
	return GenericAnimalLabel
}

// annotate draws a box and a filled label banner per detection and returns the JPEG.
func (c *IntrusionClassifier) annotate(img *gocv.Mat, detections []dto.Detection) ([]byte, error) {
	for _, d := range detections {
		rect := image.Rect(d.X, d.Y, d.X+d.Width, d.Y+d.Height)
		if err := gocv.Rectangle(img, rect, boxColor, 2); err != nil {
			return nil, fmt.Errorf("failed to draw rectangle: %w", err)
		}

		text := fmt.Sprintf("Intruder: %s, Conf: %.1f%%", d.Label, d.Confidence*100)
		size := gocv.GetTextSize(text, gocv.FontHersheySimplex, 0.5, 1)
		top := d.Y - 20
		if top < 0 {
			top = 0
		}
		banner := image.Rect(d.X, top, d.X+size.X, top+20)
		if err := gocv.Rectangle(img, banner, boxColor, -1); err != nil {
			return nil, fmt.Errorf("failed to draw label banner: %w", err)
		}
		if err := gocv.PutText(img, text, image.Pt(d.X, top+15), gocv.FontHersheySimplex, 0.5, labelColor, 1); err != nil {
			return nil, fmt.Errorf("failed to draw text: %w", err)
		}
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, *img, []int{gocv.IMWriteJpegQuality, c.quality})
	if err != nil {
		return nil, fmt.Errorf("failed to encode annotated image: %w", err)
	}
	defer buf.Close()

	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}

// Close releases the inference session.
func (c *IntrusionClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.infer.Close()
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
