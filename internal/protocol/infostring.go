package protocol

import (
	"bytes"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"
)

// InfoReader walks a backslash-delimited "\key\value\key\value" string.
// A newline or the end of input terminates the sequence.
type InfoReader struct {
	rest []byte
}

// NewInfoReader returns a reader over b. The reader never looks past len(b).
func NewInfoReader(b []byte) *InfoReader {
	return &InfoReader{rest: b}
}

// Next returns the next key/value pair, or io.EOF when the sequence is over.
func (r *InfoReader) Next() (key, value []byte, err error) {
	key, err = r.token()
	if err != nil {
		return nil, nil, err
	}

	value, err = r.token()
	if err == io.EOF {
		return key, nil, fieldErr(ErrTruncatedField, string(key))
	}
	if err != nil {
		return nil, nil, err
	}

	return key, value, nil
}

// Rest returns the unread input, starting at the terminating newline if there was one.
func (r *InfoReader) Rest() []byte {
	return r.rest
}

func (r *InfoReader) token() ([]byte, error) {
	if len(r.rest) == 0 || r.rest[0] == '\n' {
		return nil, io.EOF
	}
	if r.rest[0] != '\\' {
		return nil, fieldErr(ErrMalformedHeader, "infostring")
	}

	tail := r.rest[1:]
	end := bytes.IndexAny(tail, "\\\n")
	if end < 0 {
		end = len(tail)
	}

	tok := tail[:end]
	r.rest = tail[end:]

	return tok, nil
}

// ParseString validates that a value is UTF-8.
func ParseString(field string, v []byte) (string, error) {
	if !utf8.Valid(v) {
		return "", fieldErr(ErrInvalidEncoding, field)
	}

	return string(v), nil
}

// ParseBool accepts exactly "0" or "1".
func ParseBool(field string, v []byte) (bool, error) {
	switch string(v) {
	case "0":
		return false, nil
	case "1":
		return true, nil
	default:
		return false, fieldErr(ErrInvalidValue, field)
	}
}

// ParseUint parses a decimal unsigned integer of the given bit size.
// Negative values that fit the signed type of the same size wrap around, so "-1" is 255 for 8 bits.
func ParseUint(field string, v []byte, bits int) (uint64, error) {
	s := string(v)
	if n, err := strconv.ParseUint(s, 10, bits); err == nil {
		return n, nil
	}

	n, err := strconv.ParseInt(s, 10, bits)
	if err != nil {
		return 0, fieldErr(ErrInvalidValue, field)
	}

	return uint64(n) & (1<<bits - 1), nil
}

// SplitTags splits a comma separated tag list, dropping empty items.
func SplitTags(s string) []string {
	var tags []string
	for _, tag := range strings.Split(s, ",") {
		if tag != "" {
			tags = append(tags, tag)
		}
	}

	return tags
}
