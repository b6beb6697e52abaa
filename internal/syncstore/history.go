package syncstore

import "sync"

// DefaultHistoryLimit is the number of snapshots kept for undo.
const DefaultHistoryLimit = 20

// History is a bounded undo stack of encoded snapshots. When full, pushing
// evicts the oldest snapshot.
type History struct {
	mu    sync.Mutex
	limit int
	items [][]byte
}

// NewHistory creates a history holding at most limit snapshots.
// A non-positive limit uses DefaultHistoryLimit.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{limit: limit, items: make([][]byte, 0, limit)}
}

// Push records a snapshot. The slice is copied.
func (h *History) Push(snapshot []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cp := append([]byte(nil), snapshot...)
	if len(h.items) == h.limit {
		copy(h.items, h.items[1:])
		h.items[len(h.items)-1] = cp
		return
	}
	h.items = append(h.items, cp)
}

// Pop removes and returns the most recent snapshot.
func (h *History) Pop() ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.items) == 0 {
		return nil, false
	}
	last := h.items[len(h.items)-1]
	h.items[len(h.items)-1] = nil
	h.items = h.items[:len(h.items)-1]
	return last, true
}

// Len returns the number of snapshots held.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.items)
}

// Clear drops every snapshot.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	clear(h.items)
	h.items = h.items[:0]
}
