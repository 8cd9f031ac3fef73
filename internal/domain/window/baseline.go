package window

import "math"

// Baseline keeps the most recent values of a metric and a running sum
// so the mean can be updated as each value is pushed.
type Baseline struct {
	Metric string

	values []float64 // ring buffer
	next   int
	full   bool
	sum    float64
}

// NewBaseline creates a baseline holding at most capacity values.
func NewBaseline(metric string, capacity int) *Baseline {
	if capacity < 1 {
		capacity = 1
	}
	return &Baseline{Metric: metric, values: make([]float64, capacity)}
}

// Push adds a value, evicting the oldest one once the buffer is full.
func (b *Baseline) Push(v float64) {
	if b.full {
		b.sum -= b.values[b.next]
	}
	b.values[b.next] = v
	b.sum += v
	b.next = (b.next + 1) % len(b.values)
	if b.next == 0 {
		b.full = true
	}
}

// Len returns the number of values held.
func (b *Baseline) Len() int {
	if b.full {
		return len(b.values)
	}
	return b.next
}

// Values returns the held values, oldest first.
func (b *Baseline) Values() []float64 {
	n := b.Len()
	out := make([]float64, 0, n)
	start := 0
	if b.full {
		start = b.next
	}
	for i := 0; i < n; i++ {
		out = append(out, b.values[(start+i)%len(b.values)])
	}
	return out
}

// Mean returns the mean of the held values, or NaN when empty.
func (b *Baseline) Mean() float64 {
	n := b.Len()
	if n == 0 {
		return math.NaN()
	}
	return b.sum / float64(n)
}

// StdDev returns the sample standard deviation, or NaN with fewer than
// two values. It takes a second pass over the buffer so a constant
// series yields exactly zero.
func (b *Baseline) StdDev() float64 {
	n := b.Len()
	if n < 2 {
		return math.NaN()
	}
	mean := b.Mean()
	var ss float64
	for _, v := range b.Values() {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}
