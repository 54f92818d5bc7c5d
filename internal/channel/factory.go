//go:build !debug

package channel

// New returns the frame hand-off channel for release builds: buffered,
// so the poll loop keeps draining datagrams while a consumer lags.
func New[T any](size int) Channel[T] {
	return NewBuffered[T](size)
}
