package state

import "github.com/sweeney/kiosk-agent/internal/logic"

// history is a fixed-capacity FIFO of detection results.
// Not safe for concurrent use; the caller must synchronize.
type history struct {
	buf      []logic.DetectionResult
	capacity int
	head     int // next write position
	count    int
}

func newHistory(capacity int) *history {
	return &history{
		buf:      make([]logic.DetectionResult, capacity),
		capacity: capacity,
	}
}

func (h *history) push(r logic.DetectionResult) {
	// When full, head already points at the oldest entry
	h.buf[h.head] = r
	h.head = (h.head + 1) % h.capacity
	if h.count < h.capacity {
		h.count++
	}
}

func (h *history) last() (logic.DetectionResult, bool) {
	if h.count == 0 {
		return logic.DetectionResult{}, false
	}
	return h.buf[(h.head-1+h.capacity)%h.capacity], true
}

// tail returns a copy of the newest n entries, oldest first (n <= 0: all).
func (h *history) tail(n int) []logic.DetectionResult {
	if n <= 0 || n > h.count {
		n = h.count
	}
	if n == 0 {
		return nil
	}

	result := make([]logic.DetectionResult, n)
	start := (h.head - n + h.capacity) % h.capacity
	for i := 0; i < n; i++ {
		result[i] = h.buf[(start+i)%h.capacity]
	}
	return result
}

func (h *history) len() int {
	return h.count
}
