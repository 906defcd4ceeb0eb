// Package udp owns the master server socket: it reads datagrams, rate limits them per
// source IP, hands them to a pool of workers and sends back the replies.
package udp

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/srcmaster/internal/ratelimit"
)

// maxDatagram bounds inbound reads. Anything longer is truncated and fails to decode.
const maxDatagram = 2048

// Handler turns one datagram into an optional reply.
type Handler interface {
	HandlePacket(from netip.AddrPort, data []byte) ([]byte, error)
}

// Options configure a Listener.
type Options struct {
	// Limiter drops datagrams from chatty source IPs. Optional.
	Limiter *ratelimit.Limiter

	// Workers is the number of goroutines calling the handler.
	Workers int

	// QueueSize bounds datagrams waiting for a worker. Overflow is dropped.
	QueueSize int
}

type packet struct {
	data []byte
	from netip.AddrPort
}

// Listener serves master server traffic on one UDP socket.
type Listener struct {
	conn    *net.UDPConn
	handler Handler
	limiter *ratelimit.Limiter
	queue   chan packet
	pool    sync.Pool
	wg      sync.WaitGroup
	workers int
}

// Listen binds addr.
func Listen(addr netip.AddrPort, handler Handler, opts Options) (*Listener, error) {
	conn, err := net.ListenUDP("udp", net.UDPAddrFromAddrPort(addr))
	if err != nil {
		return nil, err
	}

	return newListener(conn, handler, opts), nil
}

func newListener(conn *net.UDPConn, handler Handler, opts Options) *Listener {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 1
	}

	l := &Listener{
		conn:    conn,
		handler: handler,
		limiter: opts.Limiter,
		queue:   make(chan packet, opts.QueueSize),
		workers: opts.Workers,
	}
	l.pool.New = func() any {
		b := make([]byte, maxDatagram)
		return &b
	}

	return l
}

// Addr returns the bound address.
func (l *Listener) Addr() netip.AddrPort {
	return l.conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

// Serve reads datagrams until ctx is canceled, answers the ones already queued and
// closes the socket.
func (l *Listener) Serve(ctx context.Context) error {
	for i := 0; i < l.workers; i++ {
		l.wg.Add(1)
		go l.worker()
	}

	// unblock the pending read
	stop := context.AfterFunc(ctx, func() { _ = l.conn.SetReadDeadline(time.Now()) })
	defer stop()

	err := l.readLoop(ctx)

	close(l.queue)
	l.wg.Wait()

	if cerr := l.conn.Close(); err == nil {
		err = cerr
	}

	return err
}

func (l *Listener) readLoop(ctx context.Context) error {
	for {
		bufp := l.pool.Get().(*[]byte)
		buf := *bufp

		n, from, err := l.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			l.pool.Put(bufp)
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			log.Debug().Err(err).Msg("UDP read failed")
			continue
		}

		from = netip.AddrPortFrom(from.Addr().Unmap(), from.Port())
		if l.limiter != nil && !l.limiter.Allow(from.Addr(), time.Now()) {
			l.pool.Put(bufp)
			log.Trace().Str("addr", from.String()).Msg("Rate limited, datagram dropped")
			continue
		}

		select {
		case l.queue <- packet{from: from, data: buf[:n]}:
		default:
			l.pool.Put(bufp)
			log.Warn().Str("addr", from.String()).Msg("Queue full, datagram dropped")
		}
	}
}

// worker is a background goroutine that processes datagrams from the queue.
func (l *Listener) worker() {
	defer l.wg.Done()

	for p := range l.queue {
		l.process(p)
		buf := p.data[:cap(p.data)]
		l.pool.Put(&buf)
	}
}

func (l *Listener) process(p packet) {
	reply, err := l.handler.HandlePacket(p.from, p.data)
	if err != nil {
		log.Debug().Err(err).Str("addr", p.from.String()).Int("size", len(p.data)).Msg("Datagram dropped")
		return
	}
	if reply == nil {
		return
	}

	if _, err := l.conn.WriteToUDPAddrPort(reply, p.from); err != nil && !errors.Is(err, net.ErrClosed) {
		log.Debug().Err(err).Str("addr", p.from.String()).Msg("Reply not sent")
	}
}
