// Package client talks to a master server: it registers game servers and pages through
// the server list.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/srcmaster/internal/protocol"
)

// ErrTooManyPages is returned by List when the master keeps sending pages past the limit.
var ErrTooManyPages = errors.New("page limit reached")

// Client is a UDP connection to one master server. It is not safe for concurrent use.
type Client struct {
	conn *net.UDPConn

	// Timeout bounds the wait for each reply.
	Timeout time.Duration

	// Retries is how many times an unanswered request is resent.
	Retries int

	// MaxPages stops List after this many pages. Zero means no limit.
	MaxPages int
}

// Dial connects to the master at addr.
func Dial(addr netip.AddrPort) (*Client, error) {
	conn, err := net.DialUDP("udp", nil, net.UDPAddrFromAddrPort(addr))
	if err != nil {
		return nil, err
	}

	return &Client{conn: conn, Timeout: 3 * time.Second, Retries: 2}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// LocalAddr returns the source address the master sees.
func (c *Client) LocalAddr() netip.AddrPort {
	return c.conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

// Challenge requests a challenge for the heartbeat that follows.
func (c *Client) Challenge(ctx context.Context) (uint32, error) {
	msg, err := c.roundTrip(ctx, protocol.ChallengeRequest{})
	if err != nil {
		return 0, err
	}

	reply, ok := msg.(protocol.ChallengeReply)
	if !ok {
		return 0, fmt.Errorf("unexpected reply %T", msg)
	}

	return reply.Challenge, nil
}

// Heartbeat announces info with a challenge. The master sends no answer.
func (c *Client) Heartbeat(info protocol.ServerInfo, challenge uint32) error {
	return c.send(protocol.Heartbeat{Info: info, Challenge: challenge, HasChallenge: true})
}

// Register runs the challenge exchange and sends one heartbeat.
func (c *Client) Register(ctx context.Context, info protocol.ServerInfo) error {
	challenge, err := c.Challenge(ctx)
	if err != nil {
		return fmt.Errorf("challenge: %w", err)
	}

	return c.Heartbeat(info, challenge)
}

// Shutdown asks the master to drop this server from the list.
func (c *Client) Shutdown() error {
	return c.send(protocol.Shutdown{})
}

// Page fetches the page of servers following cursor.
func (c *Client) Page(ctx context.Context, region protocol.Region, filter string, cursor netip.AddrPort) (protocol.QueryReply, error) {
	msg, err := c.roundTrip(ctx, protocol.Query{Region: region, Filter: filter, Cursor: cursor})
	if err != nil {
		return protocol.QueryReply{}, err
	}

	reply, ok := msg.(protocol.QueryReply)
	if !ok {
		return protocol.QueryReply{}, fmt.Errorf("unexpected reply %T", msg)
	}

	return reply, nil
}

// List walks every page of the server list.
func (c *Client) List(ctx context.Context, region protocol.Region, filter string) ([]netip.AddrPort, error) {
	var servers []netip.AddrPort
	cursor := protocol.ZeroAddr

	for page := 1; ; page++ {
		if c.MaxPages > 0 && page > c.MaxPages {
			return servers, ErrTooManyPages
		}

		reply, err := c.Page(ctx, region, filter, cursor)
		if err != nil {
			return servers, fmt.Errorf("page %d: %w", page, err)
		}
		servers = append(servers, reply.Servers...)

		log.Trace().Int("page", page).Int("servers", len(reply.Servers)).Bool("done", reply.Done).Msg("List page received")

		if reply.Done {
			return servers, nil
		}
		if len(reply.Servers) == 0 {
			return servers, errors.New("empty page without terminator")
		}
		cursor = reply.Servers[len(reply.Servers)-1]
	}
}

func (c *Client) send(m protocol.Message) error {
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	_, err = c.conn.Write(data)

	return err
}

// roundTrip sends m and waits for a reply, resending on timeout.
func (c *Client) roundTrip(ctx context.Context, m protocol.Message) (protocol.Message, error) {
	data, err := protocol.Encode(m)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 65535)
	for attempt := 0; ; attempt++ {
		if _, err := c.conn.Write(data); err != nil {
			return nil, err
		}

		deadline := time.Now().Add(c.Timeout)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			return nil, err
		}

		n, err := c.conn.Read(buf)
		if err == nil {
			return protocol.DecodeReply(buf[:n])
		}

		var netErr net.Error
		if !errors.As(err, &netErr) || !netErr.Timeout() {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt >= c.Retries {
			return nil, err
		}
		log.Debug().Int("attempt", attempt+1).Msg("No reply from master, retrying")
	}
}
