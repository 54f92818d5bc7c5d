// Package transport is the UDP channel layer: a publication/subscription
// endpoint pair addressed by (network address, stream id). Frames ride as
// individual datagrams; multicast group addressing provides fan-out to any
// number of subscribers without the publisher knowing they exist.
//
// Both offer and poll are non-blocking at this boundary. Waiting is always
// the caller's job, via an outer retry loop.
package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"syscall"
)

// streamIDSize is the per-datagram framing prefix: the stream id, little
// endian, ahead of the encoded frame. It lets streams share a port or
// multicast group.
const streamIDSize = 4

// maxDatagram is the largest payload a subscription will read in one poll
// step. Encoded motion frames are a few hundred bytes; this is headroom,
// not a target.
const maxDatagram = 64 * 1024

// OfferStatus is the outcome of a non-blocking offer.
type OfferStatus int

const (
	// Offered means the datagram was handed to the network stack.
	Offered OfferStatus = iota
	// Backpressured means the socket send buffer is full right now.
	// Retry or drop; this layer never queues.
	Backpressured
	// NotConnected means the peer endpoint is not listening (ICMP
	// unreachable feedback on a connected unicast socket). Informational;
	// never reported for multicast.
	NotConnected
	// Failed means an unexpected socket error; see the returned error.
	Failed
)

// String returns a short label for logging.
func (s OfferStatus) String() string {
	switch s {
	case Offered:
		return "offered"
	case Backpressured:
		return "backpressured"
	case NotConnected:
		return "not_connected"
	default:
		return "failed"
	}
}

// FragmentHandler receives one datagram payload (stream id prefix already
// stripped). The slice is only valid for the duration of the call.
type FragmentHandler func(payload []byte)

// Publication is the send half of a channel. One publisher per stream id;
// concurrent publishers on one stream are unsupported.
type Publication struct {
	conn     *net.UDPConn
	raw      syscall.RawConn
	streamID uint32
	scratch  []byte
	log      *slog.Logger
}

// OpenPublication connects a send endpoint for the stream. Address may be
// unicast or multicast. Bind/connect failure is the only hard error in
// this layer.
func OpenPublication(address string, streamID uint32, log *slog.Logger) (*Publication, error) {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("resolving publication address %q: %w", address, err)
	}

	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("opening publication to %q: %w", address, err)
	}

	raw, err := conn.SyscallConn()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("accessing publication socket: %w", err)
	}

	log.Info("publication open", "address", address, "stream", streamID,
		"multicast", addr.IP.IsMulticast())

	return &Publication{
		conn:     conn,
		raw:      raw,
		streamID: streamID,
		scratch:  make([]byte, 0, 2048),
		log:      log,
	}, nil
}

// Offer sends one encoded frame without blocking. The payload is not
// retained and not mutated.
func (p *Publication) Offer(payload []byte) (OfferStatus, error) {
	if len(payload)+streamIDSize > maxDatagram {
		return Failed, fmt.Errorf("payload %d bytes exceeds datagram limit", len(payload))
	}

	dg := p.scratch[:0]
	dg = binary.LittleEndian.AppendUint32(dg, p.streamID)
	dg = append(dg, payload...)
	p.scratch = dg[:0]

	var serr error
	werr := p.raw.Write(func(fd uintptr) bool {
		_, serr = syscall.Write(int(fd), dg)
		// Done either way: never park waiting for send space.
		return true
	})
	if werr != nil {
		return Failed, fmt.Errorf("publication socket: %w", werr)
	}

	switch {
	case serr == nil:
		return Offered, nil
	case errors.Is(serr, syscall.EAGAIN) || errors.Is(serr, syscall.EWOULDBLOCK):
		return Backpressured, nil
	case errors.Is(serr, syscall.ECONNREFUSED):
		return NotConnected, nil
	default:
		return Failed, fmt.Errorf("offer: %w", serr)
	}
}

// Close releases the publication socket.
func (p *Publication) Close() error {
	return p.conn.Close()
}

// Subscription is the receive half of a channel. Any number of
// subscriptions may bind the same multicast (address, stream id) pair and
// each sees every datagram independently.
type Subscription struct {
	conn     *net.UDPConn
	raw      syscall.RawConn
	streamID uint32
	handler  FragmentHandler
	buf      []byte
	log      *slog.Logger
}

// OpenSubscription binds a receive endpoint for the stream and registers
// the per-fragment handler invoked synchronously during Poll.
func OpenSubscription(address string, streamID uint32, handler FragmentHandler, log *slog.Logger) (*Subscription, error) {
	if handler == nil {
		return nil, errors.New("subscription requires a fragment handler")
	}

	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("resolving subscription address %q: %w", address, err)
	}

	var conn *net.UDPConn
	if addr.IP != nil && addr.IP.IsMulticast() {
		// ListenMulticastUDP sets SO_REUSEADDR and joins the group, so
		// multiple subscribers on one host each get every datagram.
		conn, err = net.ListenMulticastUDP("udp", nil, addr)
	} else {
		conn, err = net.ListenUDP("udp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("opening subscription on %q: %w", address, err)
	}

	if err := conn.SetReadBuffer(4 * 1024 * 1024); err != nil {
		log.Warn("could not grow subscription read buffer", "error", err)
	}

	raw, err := conn.SyscallConn()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("accessing subscription socket: %w", err)
	}

	log.Info("subscription open", "address", address, "stream", streamID,
		"multicast", addr.IP != nil && addr.IP.IsMulticast())

	return &Subscription{
		conn:     conn,
		raw:      raw,
		streamID: streamID,
		handler:  handler,
		buf:      make([]byte, maxDatagram),
		log:      log,
	}, nil
}

// Poll drains up to maxFragments datagrams without blocking and invokes
// the handler for each one that carries this subscription's stream id.
// Returns the number of fragments handled. Datagrams for other streams on
// the same endpoint are skipped silently.
func (s *Subscription) Poll(maxFragments int) int {
	handled := 0
	for handled < maxFragments {
		n, ok := s.readOne()
		if !ok {
			break
		}
		if n < streamIDSize {
			continue // runt datagram, not even a stream id
		}
		if binary.LittleEndian.Uint32(s.buf[:streamIDSize]) != s.streamID {
			continue
		}
		s.handler(s.buf[streamIDSize:n])
		handled++
	}
	return handled
}

// readOne does one non-blocking receive into s.buf. ok is false when the
// socket is drained or closed.
func (s *Subscription) readOne() (int, bool) {
	var n int
	var serr error
	rerr := s.raw.Read(func(fd uintptr) bool {
		n, _, serr = syscall.Recvfrom(int(fd), s.buf, 0)
		// Done either way: never park waiting for data.
		return true
	})
	if rerr != nil || serr != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// Close releases the subscription socket. Safe to call while a Poll is in
// flight on another goroutine; that poll returns once the socket errors.
func (s *Subscription) Close() error {
	return s.conn.Close()
}

// LocalAddr exposes the bound address, mainly for tests that listen on an
// ephemeral port.
func (s *Subscription) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}
