// Package dedupe collapses provider rows to one best lap per pilot.
package dedupe

// Option applies a configuration option to the best-lap deduper.
type Option func(*bestLapDeduper)

// WithKeepAnonymous keeps rows whose identity could not be coerced. Each such
// row is kept individually since there is nothing to group it by.
func WithKeepAnonymous(keep bool) Option {
	return func(d *bestLapDeduper) {
		d.keepAnonymous = keep
	}
}
