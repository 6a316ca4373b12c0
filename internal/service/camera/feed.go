package camera

import (
	"context"
	"time"
)

// JPEGSink accepts encoded frames, e.g. an MJPEG stream.
type JPEGSink interface {
	UpdateJPEG(jpeg []byte)
}

// FrameReader is anything that exposes a latest frame.
type FrameReader interface {
	Current() (Frame, bool)
}

// Feed pushes every new frame of src into sink, polling at fps, until ctx is done.
func Feed(ctx context.Context, src FrameReader, sink JPEGSink, fps int) {
	if fps <= 0 {
		fps = 15
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	var last time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame, ok := src.Current()
		if !ok || !frame.Timestamp.After(last) {
			continue
		}
		last = frame.Timestamp
		sink.UpdateJPEG(frame.Data)
	}
}
