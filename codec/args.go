package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/evelyndooley/flipper/fmr"
)

// DefaultMaxArgsSize is the largest fixed-argument buffer a device accepts
// unless configured otherwise.
const DefaultMaxArgsSize = 64

// maxArgc is bounded by the one-byte argument count on the wire.
const maxArgc = 0xFF

type Option func(*Args)

// WithMaxSize overrides DefaultMaxArgsSize.
func WithMaxSize(n int) Option {
	return func(a *Args) {
		if n > 0 {
			a.max = n
		}
	}
}

// Args is an ordered argument list under construction.
//
// Append never fails on the spot: the first error sticks and every later
// Append is ignored, so calls can be chained and checked once in Encode.
// The order values are appended in is the order the device reads them.
type Args struct {
	types []byte
	data  []byte
	max   int
	err   error
}

func NewArgs(opts ...Option) *Args {
	a := &Args{max: DefaultMaxArgsSize}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Append adds v to the list. Supported types are uint8, int8, uint16, int16,
// uint32, int32 and bool (sent as a u8).
func (a *Args) Append(v any) *Args {
	if a.err != nil {
		return a
	}

	var (
		t   fmr.Type
		raw uint64
	)
	switch x := v.(type) {
	case uint8:
		t, raw = fmr.TypeU8, uint64(x)
	case int8:
		t, raw = fmr.TypeI8, uint64(uint8(x))
	case uint16:
		t, raw = fmr.TypeU16, uint64(x)
	case int16:
		t, raw = fmr.TypeI16, uint64(uint16(x))
	case uint32:
		t, raw = fmr.TypeU32, uint64(x)
	case int32:
		t, raw = fmr.TypeI32, uint64(uint32(x))
	case bool:
		t = fmr.TypeU8
		if x {
			raw = 1
		}
	default:
		a.err = &EncodingError{Err: ErrUnsupportedType, Index: len(a.types), Detail: fmt.Sprintf("%T", v)}
		return a
	}
	return a.AppendRaw(t, raw)
}

// AppendRaw adds a value of type t, keeping the low t.Size() bytes of raw.
func (a *Args) AppendRaw(t fmr.Type, raw uint64) *Args {
	if a.err != nil {
		return a
	}
	if !t.Scalar() {
		a.err = &EncodingError{Err: ErrUnsupportedType, Index: len(a.types), Detail: t.String()}
		return a
	}
	if len(a.data)+t.Size() > a.max || len(a.types) == maxArgc {
		a.err = &EncodingError{
			Err:    ErrTooLarge,
			Index:  len(a.types),
			Detail: fmt.Sprintf("%d bytes, limit %d", len(a.data)+t.Size(), a.max),
		}
		return a
	}

	a.types = append(a.types, byte(t))
	switch t.Size() {
	case 1:
		a.data = append(a.data, byte(raw))
	case 2:
		a.data = binary.BigEndian.AppendUint16(a.data, uint16(raw))
	case 4:
		a.data = binary.BigEndian.AppendUint32(a.data, uint32(raw))
	}
	return a
}

// Len returns the number of arguments appended so far.
func (a *Args) Len() int { return len(a.types) }

// Err returns the sticky error, if any.
func (a *Args) Err() error { return a.err }

// Buffer is an encoded argument list. Its slices are not shared with the
// Args that produced it.
type Buffer struct {
	Types []byte
	Data  []byte
}

// Encode returns the encoded list or the first error recorded by Append.
// A nil *Args encodes as an empty list.
func (a *Args) Encode() (Buffer, error) {
	if a == nil {
		return Buffer{}, nil
	}
	if a.err != nil {
		return Buffer{}, a.err
	}
	return Buffer{Types: bytes.Clone(a.types), Data: bytes.Clone(a.data)}, nil
}

// Check reports whether the list matches the scalar arguments of f.
func (a *Args) Check(f fmr.Function) error {
	if a.err != nil {
		return a.err
	}
	want := f.ScalarArgs()
	if len(want) != len(a.types) {
		return &EncodingError{
			Err:    ErrSignatureMismatch,
			Index:  -1,
			Detail: fmt.Sprintf("%s takes %d arguments, have %d", f.Name, len(want), len(a.types)),
		}
	}
	for i, t := range want {
		if byte(t) != a.types[i] {
			return &EncodingError{
				Err:    ErrSignatureMismatch,
				Index:  i,
				Detail: fmt.Sprintf("%s wants %s, have %s", f.Name, t, fmr.Type(a.types[i])),
			}
		}
	}
	return nil
}

// DecodeArgs splits data into one Value per type tag. Signed values are
// sign-extended.
func DecodeArgs(types, data []byte) ([]Value, error) {
	values := make([]Value, 0, len(types))
	offset := 0
	for i, tag := range types {
		t := fmr.Type(tag)
		if !t.Scalar() {
			return nil, &EncodingError{Err: ErrUnsupportedType, Index: i, Detail: t.String()}
		}
		n := t.Size()
		if offset+n > len(data) {
			return nil, &EncodingError{
				Err:    ErrSizeMismatch,
				Index:  i,
				Detail: fmt.Sprintf("need %d bytes, have %d", offset+n, len(data)),
			}
		}

		var raw uint64
		switch n {
		case 1:
			raw = uint64(data[offset])
		case 2:
			raw = uint64(binary.BigEndian.Uint16(data[offset:]))
		case 4:
			raw = uint64(binary.BigEndian.Uint32(data[offset:]))
		}
		offset += n
		values = append(values, Extend(t, raw))
	}
	if offset != len(data) {
		return nil, &EncodingError{
			Err:    ErrSizeMismatch,
			Index:  -1,
			Detail: fmt.Sprintf("%d trailing bytes", len(data)-offset),
		}
	}
	return values, nil
}
