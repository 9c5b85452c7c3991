package fmr

import (
	"errors"
	"strconv"
	"strings"
)

var (
	ErrTruncated          = errors.New("fmr: truncated descriptor")
	ErrDuplicateIndex     = errors.New("fmr: duplicate function index")
	ErrUnknownType        = errors.New("fmr: unknown type tag")
	ErrBadMagic           = errors.New("fmr: bad magic")
	ErrUnsupportedVersion = errors.New("fmr: unsupported version")
	ErrDuplicateModule    = errors.New("fmr: duplicate module name")
	ErrInvalidName        = errors.New("fmr: invalid name")
	ErrTrailingData       = errors.New("fmr: trailing data after descriptor")
)

// ParseError locates a descriptor failure. It unwraps to one of the Err*
// sentinels above.
type ParseError struct {
	Err      error
	Offset   int
	Module   string
	Function string
	Detail   string
}

func (e *ParseError) Error() string {
	var b strings.Builder
	b.WriteString(e.Err.Error())
	b.WriteString(" at offset ")
	b.WriteString(strconv.Itoa(e.Offset))
	if e.Module != "" {
		b.WriteString(" in module ")
		b.WriteString(e.Module)
		if e.Function != "" {
			b.WriteByte('.')
			b.WriteString(e.Function)
		}
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
