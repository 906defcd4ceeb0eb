package filter

import (
	"errors"
	"fmt"
	"io"
	"net/netip"
	"strings"
	"unicode/utf8"

	"github.com/woozymasta/srcmaster/internal/protocol"
)

// Parse failure reasons.
var (
	ErrUnknownKey   = errors.New("unknown key")
	ErrMissingValue = errors.New("missing value")
	ErrInvalidValue = errors.New("invalid value")
	ErrBadGroup     = errors.New("malformed group")
	ErrNestedGroup  = errors.New("nested group")
	ErrSyntax       = errors.New("syntax error")
)

// ParseError reports the key at which parsing stopped.
type ParseError struct {
	Err error
	Key string
}

func (e *ParseError) Error() string {
	if e.Key == "" {
		return "filter: " + e.Err.Error()
	}

	return fmt.Sprintf("filter: %s %q", e.Err, e.Key)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parse builds a Filter from a filter string. Every input either yields a filter or a *ParseError.
func Parse(s string) (*Filter, error) {
	// a newline ends an infostring, but a filter has no terminator of its own
	if !utf8.ValidString(s) || strings.IndexByte(s, '\n') >= 0 {
		return nil, &ParseError{Err: ErrSyntax}
	}

	f := &Filter{}
	open := 0 // clauses still owed to the current nand/nor group

	r := protocol.NewInfoReader([]byte(s))
	for {
		k, v, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			var de *protocol.DecodeError
			if errors.As(err, &de) && errors.Is(err, protocol.ErrTruncatedField) {
				return nil, &ParseError{Err: ErrMissingValue, Key: de.Field}
			}
			return nil, &ParseError{Err: ErrSyntax}
		}

		key, value := string(k), string(v)

		switch key {
		case "nand", "nor":
			if open > 0 {
				return nil, &ParseError{Err: ErrNestedGroup, Key: key}
			}
			n, err := protocol.ParseUint(key, v, 16)
			if err != nil || n == 0 || value[0] == '-' {
				return nil, &ParseError{Err: ErrBadGroup, Key: key}
			}
			marker := item{op: opNand, size: int(n)}
			if key == "nor" {
				marker.op = opNor
			}
			f.items = append(f.items, marker)
			open = int(n)
			continue

		case "collapse_addr_hash":
			if open > 0 {
				return nil, &ParseError{Err: ErrBadGroup, Key: key}
			}
			on, err := protocol.ParseBool(key, v)
			if err != nil {
				return nil, &ParseError{Err: ErrInvalidValue, Key: key}
			}
			f.collapse = on
			continue
		}

		pred, err := clause(key, value)
		if err != nil {
			return nil, err
		}

		f.items = append(f.items, item{op: opClause, pred: pred})
		if open > 0 {
			open--
		}
	}

	if len(r.Rest()) != 0 {
		return nil, &ParseError{Err: ErrSyntax}
	}
	if open > 0 {
		return nil, &ParseError{Err: ErrBadGroup, Key: "nand/nor"}
	}

	return f, nil
}

func clause(key, value string) (predicate, error) {
	invalid := &ParseError{Err: ErrInvalidValue, Key: key}

	boolean := func(test func(Server) bool) (predicate, error) {
		want, err := protocol.ParseBool(key, []byte(value))
		if err != nil {
			return nil, invalid
		}
		return func(s Server) bool { return test(s) == want }, nil
	}
	flag := func(f protocol.Flags) (predicate, error) {
		return boolean(func(s Server) bool { return s.ServerInfo().Flags.Has(f) })
	}

	switch key {
	case "gamedir":
		return func(s Server) bool { return s.ServerInfo().GameDir == value }, nil
	case "map":
		return func(s Server) bool { return s.ServerInfo().Map == value }, nil

	case "empty", "noplayers":
		return boolean(func(s Server) bool { return s.ServerInfo().Empty() })
	case "full":
		return boolean(func(s Server) bool { return s.ServerInfo().Full() })
	case "dedicated":
		return boolean(func(s Server) bool { return s.ServerInfo().Type == protocol.ServerDedicated })
	case "proxy":
		return boolean(func(s Server) bool { return s.ServerInfo().Type == protocol.ServerProxy })
	case "linux":
		return boolean(func(s Server) bool { return s.ServerInfo().OS == protocol.OSLinux })
	case "white":
		return boolean(func(s Server) bool { return s.Whitelisted() })
	case "secure":
		return flag(protocol.FlagSecure)
	case "password":
		return flag(protocol.FlagPassword)
	case "lan":
		return flag(protocol.FlagLAN)
	case "bots":
		return flag(protocol.FlagBots)

	case "appid", "napp":
		n, err := protocol.ParseUint(key, []byte(value), 32)
		if err != nil {
			return nil, invalid
		}
		appid := uint32(n)
		if key == "napp" {
			return func(s Server) bool { return s.ServerInfo().AppID != appid }, nil
		}
		return func(s Server) bool { return s.ServerInfo().AppID == appid }, nil

	case "gametype":
		tags := protocol.SplitTags(value)
		return func(s Server) bool { return hasAllTags(s.ServerInfo().GameType, tags) }, nil
	case "gamedata":
		tags := protocol.SplitTags(value)
		return func(s Server) bool { return hasAllTags(s.ServerInfo().GameData, tags) }, nil
	case "gamedataor":
		tags := protocol.SplitTags(value)
		return func(s Server) bool { return hasAnyTag(s.ServerInfo().GameData, tags) }, nil

	case "name_match":
		return func(s Server) bool { return wildcard(value, s.ServerInfo().Name) }, nil
	case "version_match":
		return func(s Server) bool { return wildcard(value, s.ServerInfo().Version) }, nil

	case "gameaddr":
		if ap, err := netip.ParseAddrPort(value); err == nil && ap.Port() != 0 {
			return func(s Server) bool { return s.Address() == ap }, nil
		} else if err == nil {
			value = ap.Addr().String()
		}
		ip, err := netip.ParseAddr(value)
		if err != nil {
			return nil, invalid
		}
		return func(s Server) bool { return s.Address().Addr() == ip }, nil

	default:
		return nil, &ParseError{Err: ErrUnknownKey, Key: key}
	}
}
