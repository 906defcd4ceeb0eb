package protocol

import (
	"errors"
	"fmt"
)

// Decode failure kinds. Use errors.Is against these on any error returned by the decoders.
var (
	ErrMalformedHeader = errors.New("malformed header")
	ErrTruncatedField  = errors.New("truncated field")
	ErrInvalidEncoding = errors.New("invalid encoding")
	ErrInvalidValue    = errors.New("invalid value")
)

// DecodeError describes why a datagram could not be decoded.
type DecodeError struct {
	Err   error
	Field string
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}

	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func fieldErr(kind error, field string) error {
	return &DecodeError{Err: kind, Field: field}
}
