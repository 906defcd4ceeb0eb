package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"net/netip"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

// Decode parses a datagram sent to the master by a game server or a client.
// It never reads past len(b) and never panics on hostile input.
func Decode(b []byte) (Message, error) {
	if len(b) == 0 {
		return nil, fieldErr(ErrMalformedHeader, "")
	}

	switch b[0] {
	case 'q':
		return decodeChallengeRequest(b[1:])
	case '0':
		if len(b) < 2 || b[1] != '\n' {
			return nil, fieldErr(ErrMalformedHeader, "")
		}
		return decodeHeartbeat(b[2:])
	case 'b':
		if len(b) != 2 || b[1] != '\n' {
			return nil, fieldErr(ErrMalformedHeader, "")
		}
		return Shutdown{}, nil
	case '1':
		return decodeQuery(b[1:])
	default:
		return nil, fieldErr(ErrMalformedHeader, "")
	}
}

func decodeChallengeRequest(b []byte) (Message, error) {
	switch {
	case len(b) == 0:
		return ChallengeRequest{}, nil
	case b[0] != 0xff || len(b) > 5:
		return nil, fieldErr(ErrMalformedHeader, "")
	case len(b) < 5:
		return nil, fieldErr(ErrTruncatedField, "server_challenge")
	}

	return ChallengeRequest{
		ServerChallenge:    binary.LittleEndian.Uint32(b[1:5]),
		HasServerChallenge: true,
	}, nil
}

func decodeHeartbeat(b []byte) (Message, error) {
	if len(b) == 0 || b[0] == '\n' {
		return nil, fieldErr(ErrTruncatedField, "info")
	}

	r := NewInfoReader(b)
	info, challenge, ok, err := decodeInfo(r)
	if err != nil {
		return nil, err
	}

	if tail := r.Rest(); len(tail) > 1 {
		log.Debug().Int("bytes", len(tail)-1).Msg("Ignoring data after heartbeat info")
	}

	return Heartbeat{Info: info, Challenge: challenge, HasChallenge: ok}, nil
}

func decodeQuery(b []byte) (Message, error) {
	if len(b) == 0 {
		return nil, fieldErr(ErrTruncatedField, "region")
	}

	region, ok := ParseRegion(b[0])
	if !ok {
		return nil, fieldErr(ErrMalformedHeader, "region")
	}

	rawCursor, tail, err := cstring(b[1:], "last_address")
	if err != nil {
		return nil, err
	}
	rawFilter, tail, err := cstring(tail, "filter")
	if err != nil {
		return nil, err
	}
	if len(tail) != 0 {
		return nil, fieldErr(ErrMalformedHeader, "trailing data")
	}

	cursor := ZeroAddr
	if len(rawCursor) > 0 {
		cursor, err = netip.ParseAddrPort(string(rawCursor))
		if err != nil || !cursor.Addr().Is4() {
			return nil, fieldErr(ErrInvalidValue, "last_address")
		}
	}

	return Query{Region: region, Cursor: cursor, Filter: string(rawFilter)}, nil
}

// cstring splits off a NUL terminated UTF-8 string.
func cstring(b []byte, field string) (s, tail []byte, err error) {
	i := bytes.IndexByte(b, 0)
	if i < 0 {
		return nil, nil, fieldErr(ErrTruncatedField, field)
	}
	if !utf8.Valid(b[:i]) {
		return nil, nil, fieldErr(ErrInvalidEncoding, field)
	}

	return b[:i], b[i+1:], nil
}

// Encode serializes any message in its exact wire layout.
func Encode(m Message) ([]byte, error) {
	switch m := m.(type) {
	case ChallengeRequest:
		if !m.HasServerChallenge {
			return []byte{'q'}, nil
		}
		return binary.LittleEndian.AppendUint32([]byte{'q', 0xff}, m.ServerChallenge), nil

	case ChallengeReply:
		buf := append([]byte{}, challengeReplyHeader...)
		buf = binary.LittleEndian.AppendUint32(buf, m.Challenge)
		if m.HasServerChallenge {
			buf = binary.LittleEndian.AppendUint32(buf, m.ServerChallenge)
		}
		return buf, nil

	case Heartbeat:
		var sb strings.Builder
		sb.WriteString("0\n")
		if err := encodeInfo(&sb, &m.Info, m.Challenge, m.HasChallenge); err != nil {
			return nil, err
		}
		return []byte(sb.String()), nil

	case Shutdown:
		return []byte("b\n"), nil

	case Query:
		cursor := m.Cursor
		if !cursor.IsValid() {
			cursor = ZeroAddr
		}
		if !cursor.Addr().Is4() {
			return nil, fieldErr(ErrInvalidValue, "last_address")
		}
		if strings.IndexByte(m.Filter, 0) >= 0 {
			return nil, fieldErr(ErrInvalidValue, "filter")
		}
		buf := []byte{'1', byte(m.Region)}
		buf = append(buf, cursor.String()...)
		buf = append(buf, 0)
		buf = append(buf, m.Filter...)
		return append(buf, 0), nil

	case QueryReply:
		buf := make([]byte, 0, len(serverListHeader)+(len(m.Servers)+1)*EntrySize)
		buf = append(buf, serverListHeader...)
		for _, addr := range m.Servers {
			var err error
			if buf, err = AppendEntry(buf, addr); err != nil {
				return nil, err
			}
		}
		if m.Done {
			buf = append(buf, serverListEnd[:]...)
		}
		return buf, nil

	default:
		return nil, errors.New("protocol: unknown message type")
	}
}

// AppendEntry appends the 6-byte wire form of an IPv4 address.
func AppendEntry(buf []byte, addr netip.AddrPort) ([]byte, error) {
	ip := addr.Addr().Unmap()
	if !ip.Is4() {
		return buf, fieldErr(ErrInvalidValue, "address")
	}

	octets := ip.As4()
	buf = append(buf, octets[:]...)

	return binary.BigEndian.AppendUint16(buf, addr.Port()), nil
}

// DecodeReply parses a datagram sent by the master to a server or a client.
func DecodeReply(b []byte) (Message, error) {
	switch {
	case bytes.HasPrefix(b, challengeReplyHeader):
		body := b[len(challengeReplyHeader):]
		switch len(body) {
		case 4:
			return ChallengeReply{Challenge: binary.LittleEndian.Uint32(body)}, nil
		case 8:
			return ChallengeReply{
				Challenge:          binary.LittleEndian.Uint32(body),
				ServerChallenge:    binary.LittleEndian.Uint32(body[4:]),
				HasServerChallenge: true,
			}, nil
		case 0, 1, 2, 3:
			return nil, fieldErr(ErrTruncatedField, "challenge")
		default:
			return nil, fieldErr(ErrMalformedHeader, "challenge")
		}

	case bytes.HasPrefix(b, serverListHeader):
		body := b[len(serverListHeader):]
		if len(body)%EntrySize != 0 {
			return nil, fieldErr(ErrTruncatedField, "address")
		}

		reply := QueryReply{Servers: make([]netip.AddrPort, 0, len(body)/EntrySize)}
		for len(body) > 0 {
			entry := body[:EntrySize]
			body = body[EntrySize:]

			if bytes.Equal(entry, serverListEnd[:]) {
				if len(body) != 0 {
					return nil, fieldErr(ErrMalformedHeader, "trailing data")
				}
				reply.Done = true
				break
			}

			ip := netip.AddrFrom4([4]byte(entry[:4]))
			reply.Servers = append(reply.Servers, netip.AddrPortFrom(ip, binary.BigEndian.Uint16(entry[4:])))
		}
		return reply, nil

	default:
		return nil, fieldErr(ErrMalformedHeader, "")
	}
}
