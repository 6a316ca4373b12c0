package dto

import (
	"encoding/base64"
	"time"

	"farmsentry/internal/model"
)

// AlertPayload is what subscribers receive for a new security alert.
type AlertPayload struct {
	ID             string  `json:"id"`
	Timestamp      string  `json:"timestamp"`
	DetectedObject string  `json:"detectedObject"`
	Confidence     float64 `json:"confidence"`
	ImageData      string  `json:"image_data"`
	VideoFilename  *string `json:"video_filename"`
}

// Envelope wraps every message pushed over the websocket.
type Envelope struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp string      `json:"timestamp"`
}

// NewAlertPayload builds the broadcast payload of a stored alert. image is
// the annotated still; a nil video filename is sent as JSON null.
func NewAlertPayload(alert *model.Alert, image []byte) AlertPayload {
	payload := AlertPayload{
		ID:             alert.ID,
		Timestamp:      alert.Timestamp.UTC().Format(time.RFC3339),
		DetectedObject: alert.DetectedObject,
		Confidence:     alert.Confidence,
		ImageData:      base64.StdEncoding.EncodeToString(image),
	}
	if alert.VideoFilename != "" {
		name := alert.VideoFilename
		payload.VideoFilename = &name
	}
	return payload
}
