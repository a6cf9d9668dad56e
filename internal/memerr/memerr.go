// Package memerr defines the closed set of error kinds the core engine can
// fail with. Every kind is a distinct tag rather than a distinct type, so
// callers test an error's kind with Is instead of doing type assertions.
package memerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind tags one of the error conditions named in the differencing/recovery
// pipeline's error handling design.
type Kind string

// The closed set of error kinds. XdeltaFailure is the only kind any caller
// in this module treats as recoverable; every other kind aborts the
// operation it occurred in.
const (
	UnsupportedHeader   Kind = "unsupported_header"
	RamIDNotFound       Kind = "ram_id_not_found"
	MalformedRamHeader  Kind = "malformed_ram_header"
	UnknownBlock        Kind = "unknown_block"
	UnalignedRegion     Kind = "unaligned_region"
	SuspectBaseMismatch Kind = "suspect_base_mismatch"
	XdeltaFailure       Kind = "xdelta_failure"
	CorruptMeta         Kind = "corrupt_meta"
	DeltaSizeMismatch   Kind = "delta_size_mismatch"
	VerificationFailed  Kind = "verification_failed"
)

// Error is a Kind paired with the offset it occurred at (when applicable)
// and the underlying cause.
type Error struct {
	Kind   Kind
	Offset int64
	Err    error
}

func (e *Error) Error() string {
	if e.Offset != 0 {
		return fmt.Sprintf("%s at offset %d: %v", e.Kind, e.Offset, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap lets errors.Is/errors.As see through to the cause.
func (e *Error) Unwrap() error { return e.Err }

// New builds a Kind-tagged error with no associated offset.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Err: errors.New(msg)}
}

// Newf is New with formatting.
func Newf(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Err: errors.Errorf(format, args...)}
}

// NewAt builds a Kind-tagged error naming the offset it occurred at, as the
// error handling design requires wherever an offset is applicable.
func NewAt(kind Kind, offset int64, msg string) error {
	return &Error{Kind: kind, Offset: offset, Err: errors.New(msg)}
}

// NewAtf is NewAt with formatting.
func NewAtf(kind Kind, offset int64, format string, args ...interface{}) error {
	return &Error{Kind: kind, Offset: offset, Err: errors.Errorf(format, args...)}
}

// Is reports whether err (or something it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
