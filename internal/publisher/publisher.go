// Package publisher composes the codec, sequencer and transport into the
// send side of a telemetry stream: build, stamp, encode, offer.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/openmotion/omlt/internal/codec"
	"github.com/openmotion/omlt/internal/sequence"
	"github.com/openmotion/omlt/internal/transport"
	"github.com/openmotion/omlt/pkg/telemetry"
)

// SendResult is the per-call outcome reported to the producer.
type SendResult int

const (
	// Sent means the frame was handed to the network stack.
	Sent SendResult = iota
	// Dropped means backpressure persisted through all immediate retries.
	// The frame is gone; the next one supersedes it anyway.
	Dropped
	// NotConnected means no subscriber endpoint is listening yet. Not an
	// error; producers keep sending.
	NotConnected
)

// String returns a short label for logging.
func (r SendResult) String() string {
	switch r {
	case Sent:
		return "sent"
	case Dropped:
		return "dropped"
	default:
		return "not_connected"
	}
}

// Config holds the publisher's stream bootstrap settings.
type Config struct {
	// Address is the unicast or multicast destination, host:port.
	Address string
	// StreamID identifies the logical stream on that address.
	StreamID uint32
	// GameName identifies the producer; stamped on every frame.
	GameName string
	// Convention selects the timestamp convention for the stream.
	Convention sequence.Convention
	// MaxRetries bounds immediate non-blocking retries on backpressure.
	MaxRetries int
}

// Stats is a snapshot of the publisher's diagnostic counters.
type Stats struct {
	Sent         uint64
	Dropped      uint64
	NotConnected uint64
}

// Publisher owns one stream's send state. Not safe for concurrent Send
// calls: one logical producer per stream id.
type Publisher struct {
	cfg     Config
	pub     *transport.Publication
	stamper *sequence.Stamper
	flags   uint16
	log     *slog.Logger

	// Two rotating encode buffers. The buffer most recently handed to
	// Offer is never written again until the other one has been offered,
	// upholding the no-mutation-after-offer invariant.
	bufs [2][]byte
	cur  int

	sent         atomic.Uint64
	dropped      atomic.Uint64
	notConnected atomic.Uint64

	mSent      metric.Int64Counter
	mDropped   metric.Int64Counter
	streamAttr attribute.KeyValue
}

// New opens the transport publication and prepares the stream. This is the
// only call in the send path that can fail hard.
func New(cfg Config, log *slog.Logger) (*Publisher, error) {
	if cfg.GameName == "" {
		return nil, fmt.Errorf("publisher requires a game name")
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	pub, err := transport.OpenPublication(cfg.Address, cfg.StreamID, log)
	if err != nil {
		return nil, err
	}

	var flags uint16
	if cfg.Convention == sequence.UnixNanos {
		flags |= codec.FlagUnixNanos
	}

	p := &Publisher{
		cfg:        cfg,
		pub:        pub,
		stamper:    sequence.NewStamper(cfg.Convention),
		flags:      flags,
		log:        log,
		streamAttr: attribute.Int64("stream", int64(cfg.StreamID)),
	}

	m := meter()
	p.mSent, err = m.Int64Counter(
		"publisher.frames.sent",
		metric.WithDescription("Frames handed to the network stack"),
	)
	if err != nil {
		pub.Close()
		return nil, fmt.Errorf("creating sent counter: %w", err)
	}
	p.mDropped, err = m.Int64Counter(
		"publisher.frames.dropped",
		metric.WithDescription("Frames dropped after backpressure retries"),
	)
	if err != nil {
		pub.Close()
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	return p, nil
}

// Send builds a frame around the motion object, stamps it, encodes it and
// offers it. Never blocks and never queues: a queued stale frame is worse
// than a dropped one.
func (p *Publisher) Send(obj telemetry.MotionObject) SendResult {
	seq, ts := p.stamper.Next(p.cfg.StreamID)
	frame := telemetry.Frame{
		GameName:         p.cfg.GameName,
		SessionTimestamp: ts,
		Sequence:         seq,
		Object:           obj,
	}

	p.cur = 1 - p.cur
	buf := codec.AppendEncode(p.bufs[p.cur][:0], &frame, p.flags)
	p.bufs[p.cur] = buf[:0]

	for attempt := 0; ; attempt++ {
		status, err := p.pub.Offer(buf)
		switch status {
		case transport.Offered:
			p.sent.Add(1)
			p.mSent.Add(context.Background(), 1, metric.WithAttributes(p.streamAttr))
			return Sent
		case transport.NotConnected:
			p.notConnected.Add(1)
			return NotConnected
		case transport.Backpressured:
			if attempt >= p.cfg.MaxRetries {
				p.drop(seq, "backpressure")
				return Dropped
			}
			runtime.Gosched()
		default:
			p.log.Error("offer failed", "stream", p.cfg.StreamID, "seq", seq, "error", err)
			p.drop(seq, "socket error")
			return Dropped
		}
	}
}

func (p *Publisher) drop(seq uint64, why string) {
	p.dropped.Add(1)
	p.mDropped.Add(context.Background(), 1, metric.WithAttributes(p.streamAttr))
	p.log.Debug("frame dropped", "stream", p.cfg.StreamID, "seq", seq, "reason", why)
}

// Stats returns the current counter snapshot.
func (p *Publisher) Stats() Stats {
	return Stats{
		Sent:         p.sent.Load(),
		Dropped:      p.dropped.Load(),
		NotConnected: p.notConnected.Load(),
	}
}

// Convention returns the stream's timestamp convention.
func (p *Publisher) Convention() sequence.Convention {
	return p.stamper.Convention()
}

// Close releases the underlying publication.
func (p *Publisher) Close() error {
	return p.pub.Close()
}
