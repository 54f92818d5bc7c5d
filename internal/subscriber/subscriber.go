// Package subscriber composes the transport, codec and sequencer into the
// receive side of a telemetry stream: poll, decode, admit, deliver.
package subscriber

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/openmotion/omlt/internal/channel"
	"github.com/openmotion/omlt/internal/codec"
	"github.com/openmotion/omlt/internal/sequence"
	"github.com/openmotion/omlt/internal/transport"
	"github.com/openmotion/omlt/pkg/telemetry"
)

// Handler receives each accepted frame. In synchronous mode it runs inside
// the poll loop; keep it short or configure buffered delivery.
type Handler func(telemetry.Frame)

// Config holds the subscriber's stream bootstrap settings.
type Config struct {
	// Address is the unicast or multicast endpoint to bind, host:port.
	Address string
	// StreamID identifies the logical stream on that address.
	StreamID uint32
	// MaxFragments bounds datagrams drained per poll step. Default 64.
	MaxFragments int
	// IdleSleep is the pause between empty polls. Default 1ms.
	IdleSleep time.Duration
	// BufferSize, when positive, moves handler invocation to a worker
	// goroutine fed through a bounded channel. A full buffer costs a
	// dropped frame, never a stalled poll loop.
	BufferSize int
}

// Stats is a snapshot of the subscriber's diagnostic counters.
type Stats struct {
	Accepted        uint64
	Stale           uint64
	DecodeFailures  uint64
	HandlerFailures uint64
	BufferDropped   uint64
}

// Subscriber owns one stream's receive state, including its private
// admission high-water-mark. Two subscribers on the same stream never
// share sequencer state.
type Subscriber struct {
	cfg      Config
	admitter *sequence.Admitter
	handler  Handler
	log      *slog.Logger

	sub      *transport.Subscription
	delivery channel.Channel[telemetry.Frame]

	quit    chan struct{}
	done    chan struct{}
	workers sync.WaitGroup

	mu      sync.Mutex
	running bool

	accepted        atomic.Uint64
	stale           atomic.Uint64
	decodeFailures  atomic.Uint64
	handlerFailures atomic.Uint64
	bufferDropped   atomic.Uint64

	mAccepted metric.Int64Counter
	mStale    metric.Int64Counter
	mDecode   metric.Int64Counter

	streamAttr attribute.KeyValue
}

// New prepares a subscriber. The endpoint is not bound until Start.
func New(cfg Config, log *slog.Logger) (*Subscriber, error) {
	if cfg.MaxFragments <= 0 {
		cfg.MaxFragments = 64
	}
	if cfg.IdleSleep <= 0 {
		cfg.IdleSleep = time.Millisecond
	}

	s := &Subscriber{
		cfg:        cfg,
		admitter:   sequence.NewAdmitter(),
		log:        log,
		streamAttr: attribute.Int64("stream", int64(cfg.StreamID)),
	}

	m := meter()
	var err error
	s.mAccepted, err = m.Int64Counter(
		"subscriber.frames.accepted",
		metric.WithDescription("Frames admitted and delivered to the handler"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating accepted counter: %w", err)
	}
	s.mStale, err = m.Int64Counter(
		"subscriber.frames.stale",
		metric.WithDescription("Frames rejected by the high-water-mark filter"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating stale counter: %w", err)
	}
	s.mDecode, err = m.Int64Counter(
		"subscriber.frames.decode_failures",
		metric.WithDescription("Datagrams that failed frame decoding"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating decode failure counter: %w", err)
	}

	hwm, err := m.Float64ObservableGauge(
		"subscriber.stream.high_water_mark",
		metric.WithDescription("Last accepted timestamp per stream"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating high-water-mark gauge: %w", err)
	}
	_, err = m.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		for _, id := range s.admitter.Streams() {
			if mark, ok := s.admitter.HighWaterMark(id); ok {
				o.ObserveFloat64(hwm, mark,
					metric.WithAttributes(attribute.Int64("stream", int64(id))))
			}
		}
		return nil
	}, hwm)
	if err != nil {
		return nil, fmt.Errorf("registering high-water-mark callback: %w", err)
	}

	return s, nil
}

// Start binds the endpoint and begins polling. The handler is invoked for
// every accepted frame until Stop.
func (s *Subscriber) Start(handler Handler) error {
	if handler == nil {
		return fmt.Errorf("subscriber requires a handler")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("subscriber already started")
	}

	s.handler = handler
	s.quit = make(chan struct{})
	s.done = make(chan struct{})

	if s.cfg.BufferSize > 0 {
		s.delivery = channel.New[telemetry.Frame](s.cfg.BufferSize)
		s.workers.Add(1)
		go func() {
			defer s.workers.Done()
			for f := range s.delivery.Receive() {
				s.invoke(f)
			}
		}()
	}

	sub, err := transport.OpenSubscription(s.cfg.Address, s.cfg.StreamID, s.onFragment, s.log)
	if err != nil {
		if s.delivery != nil {
			s.delivery.Close()
			s.workers.Wait()
			s.delivery = nil
		}
		return fmt.Errorf("starting subscriber: %w", err)
	}
	s.sub = sub
	s.running = true

	go s.pollLoop()
	return nil
}

// Stop halts polling and closes the endpoint. It is safe to call while a
// poll is in flight; when it returns, no further handler invocations will
// occur.
func (s *Subscriber) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.quit)
	<-s.done
	s.sub.Close()

	if s.delivery != nil {
		s.delivery.Close()
		s.workers.Wait()
		s.delivery = nil
	}
}

func (s *Subscriber) pollLoop() {
	defer close(s.done)

	idle := time.NewTimer(s.cfg.IdleSleep)
	defer idle.Stop()

	for {
		select {
		case <-s.quit:
			return
		default:
		}

		if s.sub.Poll(s.cfg.MaxFragments) > 0 {
			continue
		}

		idle.Reset(s.cfg.IdleSleep)
		select {
		case <-s.quit:
			return
		case <-idle.C:
		}
	}
}

// onFragment handles one datagram payload: header probe, cheap staleness
// pre-check, full decode, authoritative admission, delivery. A failure on
// any one fragment never halts the poll loop.
func (s *Subscriber) onFragment(payload []byte) {
	h, err := codec.ParseHeader(payload)
	if err != nil {
		s.decodeFailure(err)
		return
	}

	// Reject stale frames on the header alone, before paying for a full
	// decode. The high-water-mark only advances after a clean decode.
	if mark, ok := s.admitter.HighWaterMark(s.cfg.StreamID); ok && h.Timestamp <= mark {
		s.rejectStale()
		return
	}

	frame, err := codec.Decode(payload)
	if err != nil {
		s.decodeFailure(err)
		return
	}

	if s.admitter.Admit(s.cfg.StreamID, frame.SessionTimestamp) == sequence.RejectStale {
		s.rejectStale()
		return
	}

	s.accepted.Add(1)
	s.mAccepted.Add(context.Background(), 1, metric.WithAttributes(s.streamAttr))

	if s.delivery != nil {
		if !s.delivery.TrySend(frame) {
			s.bufferDropped.Add(1)
			s.log.Debug("delivery buffer full, frame dropped",
				"stream", s.cfg.StreamID, "seq", frame.Sequence)
		}
		return
	}
	s.invoke(frame)
}

// invoke runs the consumer handler with failure isolation: a panicking
// handler is counted and logged, never propagated into the poll loop.
func (s *Subscriber) invoke(f telemetry.Frame) {
	defer func() {
		if r := recover(); r != nil {
			s.handlerFailures.Add(1)
			s.log.Error("frame handler panicked",
				"stream", s.cfg.StreamID, "seq", f.Sequence, "panic", r)
		}
	}()
	s.handler(f)
}

func (s *Subscriber) rejectStale() {
	s.stale.Add(1)
	s.mStale.Add(context.Background(), 1, metric.WithAttributes(s.streamAttr))
}

func (s *Subscriber) decodeFailure(err error) {
	s.decodeFailures.Add(1)
	s.mDecode.Add(context.Background(), 1, metric.WithAttributes(s.streamAttr))
	s.log.Debug("discarding undecodable frame", "stream", s.cfg.StreamID, "error", err)
}

// Stats returns the current counter snapshot.
func (s *Subscriber) Stats() Stats {
	return Stats{
		Accepted:        s.accepted.Load(),
		Stale:           s.stale.Load(),
		DecodeFailures:  s.decodeFailures.Load(),
		HandlerFailures: s.handlerFailures.Load(),
		BufferDropped:   s.bufferDropped.Load(),
	}
}

// HighWaterMark exposes the stream's last accepted timestamp for the
// diagnostic surface.
func (s *Subscriber) HighWaterMark() (float64, bool) {
	return s.admitter.HighWaterMark(s.cfg.StreamID)
}

// BoundAddr returns the endpoint address after Start, useful when the
// configuration asked for an ephemeral port.
func (s *Subscriber) BoundAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub == nil {
		return ""
	}
	return s.sub.LocalAddr().String()
}
