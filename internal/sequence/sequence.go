// Package sequence stamps outgoing frames and filters incoming ones.
//
// The receive side is a per-stream high-water-mark filter, not a reorder
// buffer: O(1) state and O(1) decision per frame. Late data is worthless in
// this domain because the next frame supersedes it within one tick.
package sequence

import (
	"sync"
	"time"
)

// Convention selects how timestamps are generated and interpreted on a
// stream. Admission compares raw float64 values either way.
type Convention int

const (
	// SessionSeconds stamps monotonic seconds since the sequencer was
	// created. Default.
	SessionSeconds Convention = iota
	// UnixNanos stamps wall-clock unix nanoseconds.
	UnixNanos
)

// String returns the config-file spelling of the convention.
func (c Convention) String() string {
	if c == UnixNanos {
		return "unix-nanos"
	}
	return "session-seconds"
}

// ParseConvention maps a config value to a Convention. Unknown values fall
// back to SessionSeconds.
func ParseConvention(s string) Convention {
	if s == "unix-nanos" {
		return UnixNanos
	}
	return SessionSeconds
}

// Stamper assigns monotonically increasing sequence numbers and timestamps
// to outgoing frames, per stream.
type Stamper struct {
	convention Convention
	start      time.Time
	now        func() time.Time

	mu   sync.Mutex
	next map[uint32]uint64
}

// NewStamper creates a send-side sequencer. The session clock starts at
// construction time.
func NewStamper(convention Convention) *Stamper {
	return &Stamper{
		convention: convention,
		start:      time.Now(),
		now:        time.Now,
		next:       make(map[uint32]uint64),
	}
}

// Next returns the sequence number and timestamp for the next frame on the
// stream. Sequence numbers start at 0 and never wrap; streams restart long
// before 2^63 frames.
func (s *Stamper) Next(streamID uint32) (uint64, float64) {
	s.mu.Lock()
	seq := s.next[streamID]
	s.next[streamID] = seq + 1
	s.mu.Unlock()

	var ts float64
	if s.convention == UnixNanos {
		ts = float64(s.now().UnixNano())
	} else {
		ts = s.now().Sub(s.start).Seconds()
	}
	return seq, ts
}

// Convention returns the timestamp convention in effect.
func (s *Stamper) Convention() Convention { return s.convention }

// Decision is the outcome of an admission check.
type Decision int

const (
	// Accept means the frame advances the stream.
	Accept Decision = iota
	// RejectStale means the frame is at or behind the high-water-mark.
	RejectStale
)

// Admitter is the receive-side filter. Each subscriber owns exactly one;
// admitter state is never shared between subscribers.
type Admitter struct {
	mu   sync.Mutex
	mark map[uint32]float64
}

// NewAdmitter creates an empty receive-side sequencer.
func NewAdmitter() *Admitter {
	return &Admitter{mark: make(map[uint32]float64)}
}

// Admit accepts the frame iff its timestamp is strictly greater than the
// last accepted timestamp on the stream, or the stream has no accepted
// frame yet. Equal timestamps are duplicates and rejected.
func (a *Admitter) Admit(streamID uint32, timestamp float64) Decision {
	a.mu.Lock()
	defer a.mu.Unlock()

	mark, seen := a.mark[streamID]
	if seen && timestamp <= mark {
		return RejectStale
	}
	a.mark[streamID] = timestamp
	return Accept
}

// HighWaterMark returns the last accepted timestamp for the stream and
// whether any frame has been accepted on it.
func (a *Admitter) HighWaterMark(streamID uint32) (float64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	mark, ok := a.mark[streamID]
	return mark, ok
}

// Streams returns the ids of all streams with at least one accepted frame.
func (a *Admitter) Streams() []uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]uint32, 0, len(a.mark))
	for id := range a.mark {
		out = append(out, id)
	}
	return out
}
