package sequence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStamperSequencesPerStream(t *testing.T) {
	s := NewStamper(SessionSeconds)

	seq, _ := s.Next(1)
	assert.Equal(t, uint64(0), seq)
	seq, _ = s.Next(1)
	assert.Equal(t, uint64(1), seq)

	// independent counter per stream
	seq, _ = s.Next(2)
	assert.Equal(t, uint64(0), seq)
	seq, _ = s.Next(1)
	assert.Equal(t, uint64(2), seq)
}

func TestStamperSessionSeconds(t *testing.T) {
	s := NewStamper(SessionSeconds)
	base := s.start
	s.now = func() time.Time { return base.Add(16 * time.Millisecond) }

	_, ts := s.Next(1)
	assert.InDelta(t, 0.016, ts, 1e-9)
}

func TestStamperUnixNanos(t *testing.T) {
	s := NewStamper(UnixNanos)
	fixed := time.Unix(1000, 500)
	s.now = func() time.Time { return fixed }

	_, ts := s.Next(1)
	assert.Equal(t, float64(fixed.UnixNano()), ts)
}

func TestParseConvention(t *testing.T) {
	tests := []struct {
		in   string
		want Convention
	}{
		{"session-seconds", SessionSeconds},
		{"unix-nanos", UnixNanos},
		{"", SessionSeconds},
		{"bogus", SessionSeconds},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseConvention(tt.in))
			assert.Equal(t, tt.want.String(), ParseConvention(tt.want.String()).String())
		})
	}
}

func TestAdmitMonotonic(t *testing.T) {
	a := NewAdmitter()

	assert.Equal(t, Accept, a.Admit(7, 0.000))
	assert.Equal(t, Accept, a.Admit(7, 0.016))
	assert.Equal(t, Accept, a.Admit(7, 0.033))

	// replay of an already-accepted timestamp is a duplicate
	assert.Equal(t, RejectStale, a.Admit(7, 0.016))
	// equal to the mark is stale too
	assert.Equal(t, RejectStale, a.Admit(7, 0.033))

	mark, ok := a.HighWaterMark(7)
	require.True(t, ok)
	assert.Equal(t, 0.033, mark)
}

func TestAdmitFirstFrameAlwaysAccepted(t *testing.T) {
	a := NewAdmitter()
	// even a negative or zero timestamp starts the stream
	assert.Equal(t, Accept, a.Admit(3, -5.0))
	assert.Equal(t, RejectStale, a.Admit(3, -5.0))
}

func TestAdmitStreamsIndependent(t *testing.T) {
	a := NewAdmitter()

	assert.Equal(t, Accept, a.Admit(1, 10.0))
	// a younger timestamp on another stream is unaffected by stream 1
	assert.Equal(t, Accept, a.Admit(2, 1.0))
	assert.Equal(t, RejectStale, a.Admit(1, 9.9))

	assert.ElementsMatch(t, []uint32{1, 2}, a.Streams())
}

func TestHighWaterMarkUnseenStream(t *testing.T) {
	a := NewAdmitter()
	_, ok := a.HighWaterMark(99)
	assert.False(t, ok)
}
