package model

import "time"

// Alert represents a stored security alert.
type Alert struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	DetectedObject string    `json:"detectedObject"`
	Confidence     float64   `json:"confidence"`
	ImagePath      string    `json:"-"`
	VideoFilename  string    `json:"video_filename,omitempty"`
	IsRead         bool      `json:"is_read"`
}
