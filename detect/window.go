package detect

import "sync"

// Window keeps the most recent samples of a stream, up to a fixed capacity.
type Window struct {
	mu       sync.Mutex
	samples  []float64
	capacity int
}

func NewWindow(capacity int) *Window {
	return &Window{capacity: capacity}
}

// Push appends samples, dropping the oldest beyond capacity, and returns the
// number of samples held.
func (w *Window) Push(samples []float64) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.samples = append(w.samples, samples...)
	if over := len(w.samples) - w.capacity; over > 0 {
		w.samples = append(w.samples[:0], w.samples[over:]...)
	}
	return len(w.samples)
}

func (w *Window) Snapshot() []float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]float64(nil), w.samples...)
}

func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.samples)
}

func (w *Window) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples = w.samples[:0]
}
