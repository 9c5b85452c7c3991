package fmr

import (
	"encoding/binary"
	"fmt"
)

const (
	// Magic opens every descriptor.
	Magic = "FMRD"
	// Version is the descriptor format version this package reads and writes.
	Version byte = 1
	// HeaderSize is 4 (magic) + 1 (version) + 2 (module count).
	HeaderSize = 7
)

// reader walks a descriptor buffer. Every read checks the remaining length so
// a short buffer fails with ErrTruncated instead of reading out of bounds.
type reader struct {
	data    []byte
	offset  int
	modName string
	fnName  string
}

func (r *reader) fail(err error, detail string, args ...any) *ParseError {
	if len(args) > 0 {
		detail = fmt.Sprintf(detail, args...)
	}
	return &ParseError{
		Err:      err,
		Offset:   r.offset,
		Module:   r.modName,
		Function: r.fnName,
		Detail:   detail,
	}
}

func (r *reader) need(n int) error {
	if len(r.data)-r.offset < n {
		return r.fail(ErrTruncated, "need %d bytes, have %d", n, len(r.data)-r.offset)
	}
	return nil
}

func (r *reader) u8() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.data[r.offset]
	r.offset++
	return b, nil
}

func (r *reader) u16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.data[r.offset : r.offset+2])
	r.offset += 2
	return v, nil
}

func (r *reader) name() (string, error) {
	n, err := r.u8()
	if err != nil {
		return "", err
	}
	if err := r.need(int(n)); err != nil {
		return "", err
	}
	s := string(r.data[r.offset : r.offset+int(n)])
	if !validName(s) {
		return "", r.fail(ErrInvalidName, "%q", s)
	}
	r.offset += int(n)
	return s, nil
}

// Parse decodes a descriptor into its modules.
//
// Parse is deterministic and all-or-nothing: on any error it returns nil
// modules and a *ParseError.
func Parse(data []byte) ([]Module, error) {
	r := &reader{data: data}

	// Length first: any prefix of a valid descriptor must report truncation.
	if err := r.need(HeaderSize); err != nil {
		return nil, err
	}
	if string(data[:len(Magic)]) != Magic {
		return nil, r.fail(ErrBadMagic, "%x", data[:len(Magic)])
	}
	r.offset += len(Magic)

	version, _ := r.u8()
	if version != Version {
		return nil, r.fail(ErrUnsupportedVersion, "version %d", version)
	}
	count, _ := r.u16()

	modules := make([]Module, 0, count)
	seen := make(map[string]struct{}, count)
	for i := 0; i < int(count); i++ {
		m, err := r.module()
		if err != nil {
			return nil, err
		}
		if _, dup := seen[m.Name]; dup {
			return nil, r.fail(ErrDuplicateModule, "%q", m.Name)
		}
		seen[m.Name] = struct{}{}
		modules = append(modules, m)
	}

	if r.offset != len(data) {
		r.modName, r.fnName = "", ""
		return nil, r.fail(ErrTrailingData, "%d bytes", len(data)-r.offset)
	}
	return modules, nil
}

func (r *reader) module() (Module, error) {
	r.modName, r.fnName = "", ""
	name, err := r.name()
	if err != nil {
		return Module{}, err
	}
	r.modName = name

	count, err := r.u8()
	if err != nil {
		return Module{}, err
	}

	m := Module{Name: name}
	indices := make(map[uint8]string, count)
	for i := 0; i < int(count); i++ {
		f, err := r.fn()
		if err != nil {
			return Module{}, err
		}
		if prev, dup := indices[f.Index]; dup {
			return Module{}, r.fail(ErrDuplicateIndex, "index %d used by %s and %s", f.Index, prev, f.Name)
		}
		indices[f.Index] = f.Name
		m.Functions = append(m.Functions, f)
	}
	return m, nil
}

func (r *reader) fn() (Function, error) {
	r.fnName = ""
	name, err := r.name()
	if err != nil {
		return Function{}, err
	}
	r.fnName = name

	index, err := r.u8()
	if err != nil {
		return Function{}, err
	}
	argc, err := r.u8()
	if err != nil {
		return Function{}, err
	}

	f := Function{Name: name, Index: index}
	for i := 0; i < int(argc); i++ {
		tag, err := r.u8()
		if err != nil {
			return Function{}, err
		}
		if !Type(tag).validArg() {
			r.offset--
			return Function{}, r.fail(ErrUnknownType, "argument %d has tag %d", i, tag)
		}
		f.Args = append(f.Args, Type(tag))
	}

	tag, err := r.u8()
	if err != nil {
		return Function{}, err
	}
	if !Type(tag).validReturn() {
		r.offset--
		return Function{}, r.fail(ErrUnknownType, "return tag %d", tag)
	}
	f.Return = Type(tag)
	return f, nil
}
