package dto

// Detection is one accepted intruder box in pixel coordinates.
type Detection struct {
	ClassID    int
	Label      string
	Confidence float64
	X          int
	Y          int
	Width      int
	Height     int
}

// DetectionResult is the outcome of one classification. It lives for a single
// detection cycle and is never stored as such.
type DetectionResult struct {
	Found      bool
	Annotated  []byte // JPEG with every detection drawn, nil when nothing was found
	Label      string
	Confidence float64
	Detections []Detection
}
