package strategies

// Window is a fixed-size rolling price series used by the tick strategies.
// Values are appended on every tick and the oldest value drops out once the
// window is full.
type Window struct {
	size   int
	values []float64
}

// NewWindow creates a rolling window holding at most size values.
func NewWindow(size int) *Window {
	return &Window{size: size, values: make([]float64, 0, size)}
}

// Push appends a value, evicting the oldest once the window is full.
func (w *Window) Push(v float64) {
	if len(w.values) == w.size {
		copy(w.values, w.values[1:])
		w.values[len(w.values)-1] = v
		return
	}
	w.values = append(w.values, v)
}

// Full reports whether the window holds its full size of values.
func (w *Window) Full() bool {
	return len(w.values) == w.size
}

// SMA returns the simple moving average of the last n values, or 0 when
// fewer than n values are present.
func (w *Window) SMA(n int) float64 {
	if n <= 0 || len(w.values) < n {
		return 0
	}
	total := 0.0
	for i := len(w.values) - n; i < len(w.values); i++ {
		total += w.values[i]
	}
	return total / float64(n)
}

// Highest returns the maximum of the last n values, or 0 when fewer than n
// values are present.
func (w *Window) Highest(n int) float64 {
	if n <= 0 || len(w.values) < n {
		return 0
	}
	high := w.values[len(w.values)-n]
	for i := len(w.values) - n + 1; i < len(w.values); i++ {
		if w.values[i] > high {
			high = w.values[i]
		}
	}
	return high
}

// Lowest returns the minimum of the last n values, or 0 when fewer than n
// values are present.
func (w *Window) Lowest(n int) float64 {
	if n <= 0 || len(w.values) < n {
		return 0
	}
	low := w.values[len(w.values)-n]
	for i := len(w.values) - n + 1; i < len(w.values); i++ {
		if w.values[i] < low {
			low = w.values[i]
		}
	}
	return low
}
