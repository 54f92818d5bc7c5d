// Package channel provides generic channel interfaces for decoupled
// communication, used to hand frames off between the poll loop and
// consumer workers.
package channel

// Receiver provides read access to a channel.
type Receiver[T any] interface {
	Receive() <-chan T
	Len() int
}

// Sender provides write access to a channel.
type Sender[T any] interface {
	Send(T)
	// TrySend sends without blocking and reports whether the value was
	// accepted. Poll loops use this so a slow consumer costs a dropped
	// frame, never a stalled loop.
	TrySend(T) bool
}

// Channel combines read and write access.
type Channel[T any] interface {
	Receiver[T]
	Sender[T]
	Close()
}
