//go:build debug

package channel

// New ignores size under the debug tag and hands back an unbuffered
// channel, which surfaces slow-consumer stalls immediately in tests.
func New[T any](size int) Channel[T] {
	return NewUnbuffered[T]()
}
