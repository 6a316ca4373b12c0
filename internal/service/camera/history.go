package camera

import (
	"math"
	"sync"
	"time"
)

// FrameHistory is a fixed-capacity ring of frames kept in acquisition order.
// Once full, every push evicts the oldest frame.
type FrameHistory struct {
	mu     sync.Mutex
	frames []Frame
	head   int // index of the oldest frame
	size   int
}

// HistoryCapacity returns how many frames cover retentionSeconds at fps.
func HistoryCapacity(retentionSeconds float64, fps int) int {
	capacity := int(math.Ceil(retentionSeconds * float64(fps)))
	if capacity < 1 {
		return 1
	}
	return capacity
}

// NewFrameHistory creates a history holding at most capacity frames.
func NewFrameHistory(capacity int) *FrameHistory {
	if capacity < 1 {
		capacity = 1
	}
	return &FrameHistory{frames: make([]Frame, capacity)}
}

// Push appends frame, evicting the oldest entry when the ring is full.
func (h *FrameHistory) Push(frame Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.size < len(h.frames) {
		h.frames[(h.head+h.size)%len(h.frames)] = frame
		h.size++
		return
	}

	h.frames[h.head] = frame
	h.head = (h.head + 1) % len(h.frames)
}

// Snapshot returns a copy of the current contents, oldest first.
func (h *FrameHistory) Snapshot() []Frame {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Frame, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.frames[(h.head+i)%len(h.frames)]
	}
	return out
}

// RecentWithin returns the frames captured within d of the newest one.
func (h *FrameHistory) RecentWithin(d time.Duration) []Frame {
	return FramesWithin(h.Snapshot(), d)
}

// Len returns the number of buffered frames.
func (h *FrameHistory) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.size
}

// Cap returns the configured capacity.
func (h *FrameHistory) Cap() int {
	return len(h.frames)
}

// Clear drops every buffered frame.
func (h *FrameHistory) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := range h.frames {
		h.frames[i] = Frame{}
	}
	h.head = 0
	h.size = 0
}
