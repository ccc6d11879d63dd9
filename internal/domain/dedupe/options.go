package dedupe

// Option applies a configuration option to a Deduper.
type Option func(*seenSet)

// WithMaxSize bounds the number of remembered ids. The oldest id is
// forgotten first. maxSize <= 0 means unbounded.
func WithMaxSize(maxSize int) Option {
	return func(s *seenSet) {
		s.maxSize = maxSize
	}
}
