package handler

import (
	"net/http"
	"strconv"
	"time"

	"farmsentry/internal/logger"
	"farmsentry/internal/service"
	"farmsentry/internal/service/camera"
)

// LiveCamera is the read side of the frame source.
type LiveCamera interface {
	Current() (camera.Frame, bool)
	FPS() int
	Size() (int, int)
	History() *camera.FrameHistory
}

// LoopStatus exposes the security loop's phase.
type LoopStatus interface {
	State() service.State
}

type cameraStatus struct {
	Online      bool   `json:"online"`
	LastFrameAt string `json:"last_frame_at,omitempty"`
	FPS         int    `json:"fps"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	LoopState   string `json:"loop_state"`
	Buffered    int    `json:"buffered_frames"`
	BufferCap   int    `json:"buffer_capacity"`
}

// CameraStatusHandler reports whether frames are flowing and what the loop is doing.
func CameraStatusHandler(cam LiveCamera, loop LoopStatus, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		width, height := cam.Size()
		status := cameraStatus{
			FPS:       cam.FPS(),
			Width:     width,
			Height:    height,
			LoopState: loop.State().String(),
			Buffered:  cam.History().Len(),
			BufferCap: cam.History().Cap(),
		}

		if frame, ok := cam.Current(); ok {
			// A frame older than a few seconds means the device stalled.
			status.Online = time.Since(frame.Timestamp) < 5*time.Second
			status.LastFrameAt = frame.Timestamp.UTC().Format(time.RFC3339)
		}

		writeJSON(w, logger, http.StatusOK, status)
	}
}

// SnapshotHandler serves the latest camera frame as a JPEG.
func SnapshotHandler(cam LiveCamera) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		frame, ok := cam.Current()
		if !ok {
			http.Error(w, "No frame available", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Content-Length", strconv.Itoa(len(frame.Data)))
		w.Header().Set("Cache-Control", "no-cache")
		w.Write(frame.Data)
	}
}
