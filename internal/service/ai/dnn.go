package ai

import (
	"errors"
	"fmt"
	"image"
	"os"

	"gocv.io/x/gocv"
)

// RawDetection is one output row of an SSD-style detector. Box coordinates are
// normalized to 0..1.
type RawDetection struct {
	ClassID    int
	Confidence float32
	Left       float32
	Top        float32
	Right      float32
	Bottom     float32
}

// Inferencer runs the neural detector on a BGR image. Implementations need not
// be safe for concurrent use; IntrusionClassifier serializes calls.
type Inferencer interface {
	Infer(img gocv.Mat) ([]RawDetection, error)
	Close() error
}

// DNNInferencer runs an OpenCV DNN model (SSD MobileNet by default). The network
// is loaded on first use and reused afterwards.
type DNNInferencer struct {
	modelPath  string
	configPath string
	inputSize  int
	net        gocv.Net
	loaded     bool
}

// NewDNNInferencer creates an inferencer for the given model artifact.
func NewDNNInferencer(modelPath, configPath string, inputSize int) *DNNInferencer {
	if inputSize <= 0 {
		inputSize = 300
	}
	return &DNNInferencer{
		modelPath:  modelPath,
		configPath: configPath,
		inputSize:  inputSize,
	}
}

// load reads the network from disk and sets backend/target preferences.
func (d *DNNInferencer) load() error {
	if d.loaded {
		return nil
	}

	if _, err := os.Stat(d.modelPath); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", d.modelPath)
	}
	if d.configPath != "" {
		if _, err := os.Stat(d.configPath); os.IsNotExist(err) {
			return fmt.Errorf("model config file not found: %s", d.configPath)
		}
	}

	net := gocv.ReadNet(d.modelPath, d.configPath)
	if net.Empty() {
		net.Close()
		return errors.New("failed to load network")
	}

	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return errors.New("failed to set preferable backend or target")
	}

	d.net = net
	d.loaded = true
	return nil
}

// Infer resizes img to the model input and decodes the [1,1,N,7] output.
func (d *DNNInferencer) Infer(img gocv.Mat) ([]RawDetection, error) {
	if err := d.load(); err != nil {
		return nil, err
	}

	blob := gocv.BlobFromImage(img, 1.0/127.5, image.Pt(d.inputSize, d.inputSize), gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	if output.Empty() {
		return nil, errors.New("network returned an empty output")
	}
	total := output.Total()
	if total%7 != 0 {
		return nil, fmt.Errorf("malformed detection output: %d values", total)
	}

	rows := output.Reshape(1, total/7)
	defer rows.Close()

	detections := make([]RawDetection, 0, rows.Rows())
	for i := 0; i < rows.Rows(); i++ {
		detections = append(detections, RawDetection{
			ClassID:    int(rows.GetFloatAt(i, 1)),
			Confidence: rows.GetFloatAt(i, 2),
			Left:       rows.GetFloatAt(i, 3),
			Top:        rows.GetFloatAt(i, 4),
			Right:      rows.GetFloatAt(i, 5),
			Bottom:     rows.GetFloatAt(i, 6),
		})
	}
	return detections, nil
}

// Close releases the network.
func (d *DNNInferencer) Close() error {
	if !d.loaded {
		return nil
	}
	d.loaded = false
	return d.net.Close()
}
