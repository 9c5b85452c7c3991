package codec

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedType   = errors.New("codec: unsupported argument type")
	ErrTooLarge          = errors.New("codec: arguments exceed maximum size")
	ErrSignatureMismatch = errors.New("codec: arguments do not match signature")
	ErrSizeMismatch      = errors.New("codec: argument data does not match type tags")
)

// EncodingError reports a failure to build or read an argument list.
// Index is the position of the offending argument, or -1 when the failure
// concerns the list as a whole.
type EncodingError struct {
	Err    error
	Index  int
	Detail string
}

func (e *EncodingError) Error() string {
	msg := e.Err.Error()
	if e.Index >= 0 {
		msg = fmt.Sprintf("%s (argument %d)", msg, e.Index)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *EncodingError) Unwrap() error { return e.Err }
