// Package fmr implements the Flipper Module Representation descriptor: the
// compact binary description of the functions a device module exports.
//
// Descriptor layout (all multi-byte integers big-endian):
//
//	header:   "FMRD" | u8 version | u16 module count
//	module:   u8 name length | name | u8 function count | function...
//	function: u8 name length | name | u8 index | u8 argc | argc × u8 type tag | u8 return tag
//
// Names are ASCII identifiers of at most 255 bytes.
package fmr

import (
	"fmt"
	"hash/crc32"
)

// Type is the tag of an argument or return type.
type Type byte

const (
	TypeVoid  Type = 0 // return only: nothing is returned
	TypeU8    Type = 1
	TypeI8    Type = 2
	TypeU16   Type = 3
	TypeI16   Type = 4
	TypeU32   Type = 5
	TypeI32   Type = 6
	TypeBytes Type = 7 // argument only: variable-length bulk transfer

	maxType = TypeBytes
)

var typeNames = [...]string{
	TypeVoid:  "void",
	TypeU8:    "u8",
	TypeI8:    "i8",
	TypeU16:   "u16",
	TypeI16:   "i16",
	TypeU32:   "u32",
	TypeI32:   "i32",
	TypeBytes: "bytes",
}

func (t Type) String() string {
	if t > maxType {
		return fmt.Sprintf("type(%d)", byte(t))
	}
	return typeNames[t]
}

// ParseType resolves a type name such as "u16" or "bytes".
func ParseType(name string) (Type, error) {
	for i, n := range typeNames {
		if n == name {
			return Type(i), nil
		}
	}
	return 0, fmt.Errorf("fmr: unknown type name %q", name)
}

// Size returns the encoded width in bytes of a fixed-width type, or 0 for
// TypeVoid and TypeBytes.
func (t Type) Size() int {
	switch t {
	case TypeU8, TypeI8:
		return 1
	case TypeU16, TypeI16:
		return 2
	case TypeU32, TypeI32:
		return 4
	}
	return 0
}

// Signed reports whether t is a signed integer type.
func (t Type) Signed() bool {
	return t == TypeI8 || t == TypeI16 || t == TypeI32
}

// Scalar reports whether t is a fixed-width integer type.
func (t Type) Scalar() bool {
	return t.Size() > 0
}

func (t Type) validArg() bool    { return t.Scalar() || t == TypeBytes }
func (t Type) validReturn() bool { return t.Scalar() || t == TypeVoid }

// Function is the signature of one exported function.
//
// Index is the stable identity used on the wire. By convention it matches the
// function's position in the module, but nothing relies on that.
type Function struct {
	Name   string `json:"name"`
	Index  uint8  `json:"index"`
	Args   []Type `json:"args"`
	Return Type   `json:"return"`
}

// Bulk reports whether the function takes a bulk (push/pull) buffer.
func (f Function) Bulk() bool {
	for _, a := range f.Args {
		if a == TypeBytes {
			return true
		}
	}
	return false
}

// ScalarArgs returns the fixed-width arguments in order, skipping bulk buffers.
func (f Function) ScalarArgs() []Type {
	out := make([]Type, 0, len(f.Args))
	for _, a := range f.Args {
		if a.Scalar() {
			out = append(out, a)
		}
	}
	return out
}

// Module is a parsed module description. Values returned by Parse are never
// mutated by this package.
type Module struct {
	Name      string     `json:"name"`
	Functions []Function `json:"functions"`
}

// Function returns the function with the given wire index.
func (m *Module) Function(index uint8) (Function, bool) {
	for _, f := range m.Functions {
		if f.Index == index {
			return f, true
		}
	}
	return Function{}, false
}

// Lookup returns the function with the given name.
func (m *Module) Lookup(name string) (Function, bool) {
	for _, f := range m.Functions {
		if f.Name == name {
			return f, true
		}
	}
	return Function{}, false
}

// Identifier returns the 32-bit identifier devices use for a module name: the
// CRC-32 (IEEE) of the name followed by a NUL byte.
func Identifier(name string) uint32 {
	return crc32.ChecksumIEEE(append([]byte(name), 0))
}

// validName reports whether s is a non-empty ASCII identifier that fits a
// one-byte length prefix.
func validName(s string) bool {
	if len(s) == 0 || len(s) > 255 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
