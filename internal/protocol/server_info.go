package protocol

import (
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// ServerType is the kind of game server process.
type ServerType uint8

// Server types as reported in the "type" heartbeat field.
const (
	ServerUnknown ServerType = iota
	ServerDedicated
	ServerLocal
	ServerProxy
)

func (t ServerType) String() string {
	switch t {
	case ServerDedicated:
		return "dedicated"
	case ServerLocal:
		return "local"
	case ServerProxy:
		return "proxy"
	default:
		return "unknown"
	}
}

func (t ServerType) code() string {
	switch t {
	case ServerDedicated:
		return "d"
	case ServerLocal:
		return "l"
	case ServerProxy:
		return "p"
	default:
		return "u"
	}
}

// OS is the platform a server runs on.
type OS uint8

// Platforms as reported in the "os" heartbeat field.
const (
	OSUnknown OS = iota
	OSLinux
	OSWindows
	OSMac
)

func (o OS) String() string {
	switch o {
	case OSLinux:
		return "Linux"
	case OSWindows:
		return "Windows"
	case OSMac:
		return "Mac"
	default:
		return "Unknown"
	}
}

func (o OS) code() string {
	switch o {
	case OSLinux:
		return "l"
	case OSWindows:
		return "w"
	case OSMac:
		return "m"
	default:
		return "u"
	}
}

// Flags are boolean properties self-reported by a server.
type Flags uint8

// Heartbeat flags.
const (
	FlagBots Flags = 1 << iota
	FlagPassword
	FlagSecure
	FlagLAN
)

// Has reports whether all bits of f2 are set.
func (f Flags) Has(f2 Flags) bool {
	return f&f2 == f2
}

func (f *Flags) set(f2 Flags, on bool) {
	if on {
		*f |= f2
	} else {
		*f &^= f2
	}
}

// ServerInfo is the metadata a server reports in its heartbeat.
// Values are never mutated after decoding, so copies may share the tag slices.
type ServerInfo struct {
	Name       string
	GameDir    string
	Map        string
	Version    string
	Product    string
	GameType   []string
	GameData   []string
	AppID      uint32
	Protocol   uint8
	Players    uint8
	MaxPlayers uint8
	Type       ServerType
	OS         OS
	Region     Region
	HasRegion  bool
	Flags      Flags
}

// Empty reports whether no players are connected.
func (s *ServerInfo) Empty() bool {
	return s.Players == 0
}

// Full reports whether every slot is taken.
func (s *ServerInfo) Full() bool {
	return s.Players >= s.MaxPlayers
}

// decodeInfo reads heartbeat fields. Unknown keys are skipped.
func decodeInfo(r *InfoReader) (info ServerInfo, challenge uint32, hasChallenge bool, err error) {
	info.Region = RegionAll

	for {
		k, v, err := r.Next()
		if err == io.EOF {
			return info, challenge, hasChallenge, nil
		}
		if err != nil {
			return info, 0, false, err
		}

		key := string(k)
		switch key {
		case "challenge":
			var n uint64
			n, err = ParseUint(key, v, 32)
			challenge, hasChallenge = uint32(n), true
		case "protocol":
			info.Protocol, err = parseU8(key, v)
		case "players":
			info.Players, err = parseU8(key, v)
		case "max":
			info.MaxPlayers, err = parseU8(key, v)
		case "appid":
			var n uint64
			n, err = ParseUint(key, v, 32)
			info.AppID = uint32(n)
		case "region":
			var n uint8
			if n, err = parseU8(key, v); err == nil {
				reg, ok := ParseRegion(n)
				if !ok {
					return info, 0, false, fieldErr(ErrInvalidValue, key)
				}
				info.Region, info.HasRegion = reg, true
			}
		case "gamedir":
			info.GameDir, err = ParseString(key, v)
		case "map":
			info.Map, err = ParseString(key, v)
		case "version":
			info.Version, err = ParseString(key, v)
		case "product":
			info.Product, err = ParseString(key, v)
		case "name", "hostname":
			info.Name, err = ParseString(key, v)
		case "gametype":
			var s string
			s, err = ParseString(key, v)
			info.GameType = SplitTags(s)
		case "gamedata":
			var s string
			s, err = ParseString(key, v)
			info.GameData = SplitTags(s)
		case "type":
			info.Type = parseServerType(v)
		case "os":
			info.OS = parseOS(v)
		case "bots":
			err = setFlag(&info.Flags, FlagBots, key, v)
		case "password":
			err = setFlag(&info.Flags, FlagPassword, key, v)
		case "secure":
			err = setFlag(&info.Flags, FlagSecure, key, v)
		case "lan":
			err = setFlag(&info.Flags, FlagLAN, key, v)
		default:
			log.Debug().Bytes("field", k).Bytes("value", v).Msg("Unknown server info field")
		}
		if err != nil {
			return info, 0, false, err
		}
	}
}

func encodeInfo(sb *strings.Builder, info *ServerInfo, challenge uint32, hasChallenge bool) error {
	put := func(key, value string) error {
		if strings.ContainsAny(value, "\\\n\x00") {
			return fieldErr(ErrInvalidValue, key)
		}
		sb.WriteByte('\\')
		sb.WriteString(key)
		sb.WriteByte('\\')
		sb.WriteString(value)
		return nil
	}
	num := func(n uint64) string { return strconv.FormatUint(n, 10) }
	flag := func(f Flags) string {
		if info.Flags.Has(f) {
			return "1"
		}
		return "0"
	}

	fields := [][2]string{{"protocol", num(uint64(info.Protocol))}}
	if hasChallenge {
		fields = append(fields, [2]string{"challenge", num(uint64(challenge))})
	}
	fields = append(fields,
		[2]string{"players", num(uint64(info.Players))},
		[2]string{"max", num(uint64(info.MaxPlayers))},
		[2]string{"bots", flag(FlagBots)},
		[2]string{"gamedir", info.GameDir},
		[2]string{"map", info.Map},
		[2]string{"type", info.Type.code()},
		[2]string{"password", flag(FlagPassword)},
		[2]string{"os", info.OS.code()},
		[2]string{"secure", flag(FlagSecure)},
		[2]string{"lan", flag(FlagLAN)},
		[2]string{"version", info.Version},
	)
	if info.HasRegion {
		fields = append(fields, [2]string{"region", num(uint64(info.Region))})
	}
	if info.Product != "" {
		fields = append(fields, [2]string{"product", info.Product})
	}
	if info.Name != "" {
		fields = append(fields, [2]string{"name", info.Name})
	}
	if info.AppID != 0 {
		fields = append(fields, [2]string{"appid", num(uint64(info.AppID))})
	}
	if len(info.GameType) > 0 {
		fields = append(fields, [2]string{"gametype", strings.Join(info.GameType, ",")})
	}
	if len(info.GameData) > 0 {
		fields = append(fields, [2]string{"gamedata", strings.Join(info.GameData, ",")})
	}

	for _, f := range fields {
		if err := put(f[0], f[1]); err != nil {
			return err
		}
	}
	sb.WriteByte('\n')

	return nil
}

func parseU8(field string, v []byte) (uint8, error) {
	n, err := ParseUint(field, v, 8)
	return uint8(n), err
}

func setFlag(flags *Flags, f Flags, field string, v []byte) error {
	on, err := ParseBool(field, v)
	if err != nil {
		return err
	}
	flags.set(f, on)

	return nil
}

func parseServerType(v []byte) ServerType {
	switch string(v) {
	case "d":
		return ServerDedicated
	case "l":
		return ServerLocal
	case "p":
		return ServerProxy
	default:
		return ServerUnknown
	}
}

func parseOS(v []byte) OS {
	switch string(v) {
	case "l":
		return OSLinux
	case "w":
		return OSWindows
	case "m":
		return OSMac
	default:
		return OSUnknown
	}
}
