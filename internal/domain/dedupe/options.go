package dedupe

// Option applies a configuration option to the deduper.
type Option func(*fifoDeduper)

// WithCapacity sets the maximum number of ids kept. Zero or less keeps
// every id.
func WithCapacity(n int) Option {
	return func(d *fifoDeduper) {
		d.capacity = n
	}
}
