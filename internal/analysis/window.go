package analysis

// window is a trailing-mean ring buffer.
type window struct {
	values []float64
	next   int
	count  int
}

func newWindow(size int) *window {
	if size < 1 {
		size = 1
	}
	return &window{values: make([]float64, size)}
}

// push records a sample and returns the mean of the retained samples.
func (w *window) push(value float64) float64 {
	w.values[w.next] = value
	w.next = (w.next + 1) % len(w.values)
	if w.count < len(w.values) {
		w.count++
	}
	return w.mean()
}

func (w *window) mean() float64 {
	if w.count == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < w.count; i++ {
		sum += w.values[i]
	}
	return sum / float64(w.count)
}
