package codec

import (
	"strconv"

	"github.com/evelyndooley/flipper/fmr"
)

// Value is a raw 64-bit return or argument value. The wire does not say how
// wide or signed it is; the accessor the caller picks does.
type Value uint64

// Extend widens the low t.Size() bytes of raw to a Value, sign-extending
// signed types.
func Extend(t fmr.Type, raw uint64) Value {
	switch t {
	case fmr.TypeU8:
		return Value(uint8(raw))
	case fmr.TypeI8:
		return Value(int64(int8(raw)))
	case fmr.TypeU16:
		return Value(uint16(raw))
	case fmr.TypeI16:
		return Value(int64(int16(raw)))
	case fmr.TypeU32:
		return Value(uint32(raw))
	case fmr.TypeI32:
		return Value(int64(int32(raw)))
	case fmr.TypeVoid:
		return 0
	}
	return Value(raw)
}

func (v Value) Uint8() uint8   { return uint8(v) }
func (v Value) Int8() int8     { return int8(v) }
func (v Value) Uint16() uint16 { return uint16(v) }
func (v Value) Int16() int16   { return int16(v) }
func (v Value) Uint32() uint32 { return uint32(v) }
func (v Value) Int32() int32   { return int32(v) }
func (v Value) Uint64() uint64 { return uint64(v) }
func (v Value) Bool() bool     { return v != 0 }

// Format renders v as a value of type t.
func (v Value) Format(t fmr.Type) string {
	switch t {
	case fmr.TypeVoid:
		return ""
	case fmr.TypeI8:
		return strconv.FormatInt(int64(v.Int8()), 10)
	case fmr.TypeI16:
		return strconv.FormatInt(int64(v.Int16()), 10)
	case fmr.TypeI32:
		return strconv.FormatInt(int64(v.Int32()), 10)
	case fmr.TypeU8:
		return strconv.FormatUint(uint64(v.Uint8()), 10)
	case fmr.TypeU16:
		return strconv.FormatUint(uint64(v.Uint16()), 10)
	case fmr.TypeU32:
		return strconv.FormatUint(uint64(v.Uint32()), 10)
	}
	return strconv.FormatUint(uint64(v), 10)
}

// ParseValue parses s as a decimal or 0x-prefixed literal of type t and
// returns its raw bits.
func ParseValue(t fmr.Type, s string) (uint64, error) {
	bits := t.Size() * 8
	if bits == 0 {
		return 0, &EncodingError{Err: ErrUnsupportedType, Index: -1, Detail: t.String()}
	}
	if t.Signed() {
		n, err := strconv.ParseInt(s, 0, bits)
		if err != nil {
			return 0, err
		}
		return uint64(n), nil
	}
	return strconv.ParseUint(s, 0, bits)
}
