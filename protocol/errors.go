package protocol

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTruncated       = errors.New("protocol: truncated message")
	ErrUnknownStatus   = errors.New("protocol: unknown status byte")
	ErrBadMagic        = errors.New("protocol: invalid magic number")
	ErrBadVersion      = errors.New("protocol: unsupported version")
	ErrBadCodec        = errors.New("protocol: unsupported codec type")
	ErrBadChecksum     = errors.New("protocol: checksum mismatch")
	ErrUnexpectedClass = errors.New("protocol: unexpected frame class")
	ErrBodyTooLarge    = errors.New("protocol: body too large")
	ErrLengthMismatch  = errors.New("protocol: bulk length mismatch")
	ErrMalformed       = errors.New("protocol: malformed body")
)

// Error is a wire-level failure. It unwraps to one of the Err* sentinels.
//
// For ErrUnknownStatus, Status holds the raw byte the device sent.
type Error struct {
	Err    error
	Status byte
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Err.Error())
	if errors.Is(e.Err, ErrUnknownStatus) {
		fmt.Fprintf(&b, " 0x%02x", e.Status)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

// Truncated builds an ErrTruncated error for a body that declared more bytes
// than it holds.
func Truncated(what string, need, have int) *Error {
	return &Error{Err: ErrTruncated, Detail: fmt.Sprintf("%s needs %d bytes, have %d", what, need, have)}
}

func hexDetail(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

func sizeDetail(n uint32) string {
	return fmt.Sprintf("%d bytes (max %d)", n, MaxBodySize)
}
