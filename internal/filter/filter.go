// Package filter parses and evaluates the backslash-delimited server list filter strings
// sent by clients, e.g. "\gamedir\cstrike\empty\0\nor\1\map\de_dust2".
package filter

import (
	"net/netip"
	"strings"

	"github.com/woozymasta/srcmaster/internal/protocol"
)

// Server is the view of a registered server a filter is evaluated against.
type Server interface {
	Address() netip.AddrPort
	ServerInfo() *protocol.ServerInfo
	Whitelisted() bool
}

type predicate func(Server) bool

type op uint8

const (
	opClause op = iota
	opNand
	opNor
)

// item is either a single clause or a group marker owning the next size clauses.
type item struct {
	pred predicate
	size int
	op   op
}

// Filter is a parsed filter string. The zero value matches every server.
type Filter struct {
	items    []item
	collapse bool
}

// CollapseAddr reports whether only one server per IP address should be returned.
func (f *Filter) CollapseAddr() bool {
	return f != nil && f.collapse
}

// Match evaluates the filter against one server.
func (f *Filter) Match(s Server) bool {
	if f == nil {
		return true
	}

	for i := 0; i < len(f.items); {
		it := f.items[i]
		switch it.op {
		case opClause:
			if !it.pred(s) {
				return false
			}
			i++

		case opNand:
			group := f.items[i+1 : i+1+it.size]
			if all(group, s) {
				return false
			}
			i += 1 + it.size

		case opNor:
			group := f.items[i+1 : i+1+it.size]
			if anyOf(group, s) {
				return false
			}
			i += 1 + it.size
		}
	}

	return true
}

func all(group []item, s Server) bool {
	for _, it := range group {
		if !it.pred(s) {
			return false
		}
	}
	return true
}

func anyOf(group []item, s Server) bool {
	for _, it := range group {
		if it.pred(s) {
			return true
		}
	}
	return false
}

// wildcard matches s against pattern where '*' stands for any run of bytes. Case is ignored.
func wildcard(pattern, s string) bool {
	pattern, s = strings.ToLower(pattern), strings.ToLower(s)

	px, sx := 0, 0
	star, mark := -1, 0
	for sx < len(s) {
		switch {
		case px < len(pattern) && pattern[px] == '*':
			star, mark = px, sx
			px++
		case px < len(pattern) && pattern[px] == s[sx]:
			px++
			sx++
		case star >= 0:
			px = star + 1
			mark++
			sx = mark
		default:
			return false
		}
	}

	for px < len(pattern) && pattern[px] == '*' {
		px++
	}

	return px == len(pattern)
}

func hasAllTags(have, want []string) bool {
	for _, w := range want {
		if !hasTag(have, w) {
			return false
		}
	}
	return true
}

func hasAnyTag(have, want []string) bool {
	for _, w := range want {
		if hasTag(have, w) {
			return true
		}
	}
	return false
}

func hasTag(have []string, tag string) bool {
	for _, h := range have {
		if strings.EqualFold(h, tag) {
			return true
		}
	}
	return false
}
