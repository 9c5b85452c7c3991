package fmr

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrTooMany is returned by Encode when a count does not fit its field.
var ErrTooMany = errors.New("fmr: count exceeds field width")

type writer struct {
	buf bytes.Buffer
}

func (w *writer) u8(b byte) { w.buf.WriteByte(b) }

func (w *writer) u16(v uint16) {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	w.buf.Write(tmp[:])
}

func (w *writer) name(s string) {
	w.u8(byte(len(s)))
	w.buf.WriteString(s)
}

// Encode produces the descriptor for modules. It enforces the same invariants
// Parse checks, so Parse(Encode(ms)) returns modules equal to ms.
func Encode(modules []Module) ([]byte, error) {
	if len(modules) > 0xFFFF {
		return nil, fmt.Errorf("%w: %d modules", ErrTooMany, len(modules))
	}

	w := &writer{}
	w.buf.WriteString(Magic)
	w.u8(Version)
	w.u16(uint16(len(modules)))

	seen := make(map[string]struct{}, len(modules))
	for _, m := range modules {
		if _, dup := seen[m.Name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateModule, m.Name)
		}
		seen[m.Name] = struct{}{}
		if err := w.module(m); err != nil {
			return nil, err
		}
	}
	return w.buf.Bytes(), nil
}

func (w *writer) module(m Module) error {
	if !validName(m.Name) {
		return fmt.Errorf("%w: module %q", ErrInvalidName, m.Name)
	}
	if len(m.Functions) > 0xFF {
		return fmt.Errorf("%w: module %s has %d functions", ErrTooMany, m.Name, len(m.Functions))
	}
	w.name(m.Name)
	w.u8(byte(len(m.Functions)))

	indices := make(map[uint8]struct{}, len(m.Functions))
	for _, f := range m.Functions {
		if _, dup := indices[f.Index]; dup {
			return fmt.Errorf("%w: %s.%s index %d", ErrDuplicateIndex, m.Name, f.Name, f.Index)
		}
		indices[f.Index] = struct{}{}
		if err := w.function(m.Name, f); err != nil {
			return err
		}
	}
	return nil
}

func (w *writer) function(module string, f Function) error {
	if !validName(f.Name) {
		return fmt.Errorf("%w: function %q in module %s", ErrInvalidName, f.Name, module)
	}
	if len(f.Args) > 0xFF {
		return fmt.Errorf("%w: %s.%s has %d arguments", ErrTooMany, module, f.Name, len(f.Args))
	}
	w.name(f.Name)
	w.u8(f.Index)
	w.u8(byte(len(f.Args)))
	for i, a := range f.Args {
		if !a.validArg() {
			return fmt.Errorf("%w: %s.%s argument %d is %s", ErrUnknownType, module, f.Name, i, a)
		}
		w.u8(byte(a))
	}
	if !f.Return.validReturn() {
		return fmt.Errorf("%w: %s.%s returns %s", ErrUnknownType, module, f.Name, f.Return)
	}
	w.u8(byte(f.Return))
	return nil
}
