package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/evelyndooley/flipper/message"
	"github.com/evelyndooley/flipper/protocol"
)

// BinaryCodec is the compact body encoding devices speak. Layouts, all
// multi-byte fields big-endian:
//
//	invocation:    u8 nameLen | name | u8 function | u8 argc | argc × u8 tag |
//	               u16 argLen | args | u32 bulkLen | bulk (push only)
//	result:        u8 status | u64 value | u32 bulkLen | bulk
//	configuration: u8 nameLen | name | u32 identifier | u16 version | u8 attributes
type BinaryCodec struct{}

func (c *BinaryCodec) Encode(v any) ([]byte, error) {
	switch msg := v.(type) {
	case *message.Invocation:
		return encodeInvocation(msg)
	case *message.Result:
		return encodeResult(msg)
	case *message.Configuration:
		return encodeConfiguration(msg)
	}
	return nil, fmt.Errorf("BinaryCodec: cannot encode %T", v)
}

func (c *BinaryCodec) Decode(data []byte, v any) error {
	switch msg := v.(type) {
	case *message.Invocation:
		return decodeInvocation(data, msg)
	case *message.Result:
		return decodeResult(data, msg)
	case *message.Configuration:
		return decodeConfiguration(data, msg)
	}
	return fmt.Errorf("BinaryCodec: cannot decode into %T", v)
}

func (c *BinaryCodec) Type() CodecType {
	return CodecTypeBinary
}

func encodeInvocation(msg *message.Invocation) ([]byte, error) {
	if len(msg.Module) > 0xFF {
		return nil, fmt.Errorf("BinaryCodec: module name too long (%d bytes)", len(msg.Module))
	}
	if len(msg.Types) > 0xFF || len(msg.Args) > 0xFFFF {
		return nil, &EncodingError{Err: ErrTooLarge, Index: -1, Detail: fmt.Sprintf("%d arguments, %d bytes", len(msg.Types), len(msg.Args))}
	}
	if len(msg.Bulk) > 0 && uint32(len(msg.Bulk)) != msg.BulkLen {
		return nil, fmt.Errorf("BinaryCodec: bulk holds %d bytes, header says %d", len(msg.Bulk), msg.BulkLen)
	}

	total := 1 + len(msg.Module) + 1 + 1 + len(msg.Types) + 2 + len(msg.Args) + 4 + len(msg.Bulk)
	buf := make([]byte, 0, total)

	// Module name -- 1 + n bytes
	buf = append(buf, byte(len(msg.Module)))
	buf = append(buf, msg.Module...)

	// Function index -- 1 byte
	buf = append(buf, msg.Function)

	// Type tags -- 1 + argc bytes
	buf = append(buf, byte(len(msg.Types)))
	buf = append(buf, msg.Types...)

	// Arguments -- 2 + n bytes
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(msg.Args)))
	buf = append(buf, msg.Args...)

	// Bulk -- 4 + n bytes
	buf = binary.BigEndian.AppendUint32(buf, msg.BulkLen)
	buf = append(buf, msg.Bulk...)
	return buf, nil
}

func decodeInvocation(data []byte, msg *message.Invocation) error {
	r := &bodyReader{data: data, what: "invocation"}

	nameLen, err := r.u8()
	if err != nil {
		return err
	}
	name, err := r.bytes(int(nameLen))
	if err != nil {
		return err
	}
	fn, err := r.u8()
	if err != nil {
		return err
	}
	argc, err := r.u8()
	if err != nil {
		return err
	}
	types, err := r.bytes(int(argc))
	if err != nil {
		return err
	}
	argLen, err := r.u16()
	if err != nil {
		return err
	}
	args, err := r.bytes(int(argLen))
	if err != nil {
		return err
	}
	bulkLen, err := r.u32()
	if err != nil {
		return err
	}

	// Only push carries the bulk bytes; pull and invoke end here. The body
	// does not record its class, so a push with no bulk region decodes with
	// a nil Bulk and the device answers it with ErrBoundary.
	var bulk []byte
	if rest := r.remaining(); rest != 0 {
		if uint32(rest) < bulkLen {
			return protocol.Truncated("invocation bulk", int(bulkLen), rest)
		}
		if uint32(rest) > bulkLen {
			return &protocol.Error{Err: protocol.ErrMalformed, Detail: fmt.Sprintf("%d trailing bytes", uint32(rest)-bulkLen)}
		}
		bulk = clone(r.data[r.offset:])
	}

	*msg = message.Invocation{
		Module:   string(name),
		Function: fn,
		Types:    clone(types),
		Args:     clone(args),
		BulkLen:  bulkLen,
		Bulk:     bulk,
	}
	return nil
}

func encodeResult(msg *message.Result) ([]byte, error) {
	buf := make([]byte, 0, 1+8+4+len(msg.Bulk))
	buf = append(buf, byte(msg.Status))
	buf = binary.BigEndian.AppendUint64(buf, msg.Value)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(msg.Bulk)))
	buf = append(buf, msg.Bulk...)
	return buf, nil
}

func decodeResult(data []byte, msg *message.Result) error {
	r := &bodyReader{data: data, what: "result"}

	status, err := r.u8()
	if err != nil {
		return err
	}
	if !message.ErrorKind(status).Known() {
		return &protocol.Error{Err: protocol.ErrUnknownStatus, Status: status}
	}
	value, err := r.u64()
	if err != nil {
		return err
	}
	bulkLen, err := r.u32()
	if err != nil {
		return err
	}
	bulk, err := r.bytes(int(bulkLen))
	if err != nil {
		return err
	}
	if rest := r.remaining(); rest != 0 {
		return &protocol.Error{Err: protocol.ErrMalformed, Detail: fmt.Sprintf("%d trailing bytes", rest)}
	}

	*msg = message.Result{Status: message.ErrorKind(status), Value: value}
	if bulkLen > 0 {
		msg.Bulk = clone(bulk)
	}
	return nil
}

func encodeConfiguration(msg *message.Configuration) ([]byte, error) {
	if len(msg.Name) > 0xFF {
		return nil, fmt.Errorf("BinaryCodec: device name too long (%d bytes)", len(msg.Name))
	}
	buf := make([]byte, 0, 1+len(msg.Name)+4+2+1)
	buf = append(buf, byte(len(msg.Name)))
	buf = append(buf, msg.Name...)
	buf = binary.BigEndian.AppendUint32(buf, msg.Identifier)
	buf = binary.BigEndian.AppendUint16(buf, msg.Version)
	buf = append(buf, msg.Attributes)
	return buf, nil
}

func decodeConfiguration(data []byte, msg *message.Configuration) error {
	r := &bodyReader{data: data, what: "configuration"}

	nameLen, err := r.u8()
	if err != nil {
		return err
	}
	name, err := r.bytes(int(nameLen))
	if err != nil {
		return err
	}
	id, err := r.u32()
	if err != nil {
		return err
	}
	version, err := r.u16()
	if err != nil {
		return err
	}
	attrs, err := r.u8()
	if err != nil {
		return err
	}
	if rest := r.remaining(); rest != 0 {
		return &protocol.Error{Err: protocol.ErrMalformed, Detail: fmt.Sprintf("%d trailing bytes", rest)}
	}

	*msg = message.Configuration{Name: string(name), Identifier: id, Version: version, Attributes: attrs}
	return nil
}

// bodyReader walks a body, reporting ErrTruncated instead of panicking when a
// field runs past the end.
type bodyReader struct {
	data   []byte
	offset int
	what   string
}

func (r *bodyReader) remaining() int { return len(r.data) - r.offset }

func (r *bodyReader) bytes(n int) ([]byte, error) {
	if r.remaining() < n {
		return nil, protocol.Truncated(r.what, r.offset+n, len(r.data))
	}
	b := r.data[r.offset : r.offset+n]
	r.offset += n
	return b, nil
}

func (r *bodyReader) u8() (byte, error) {
	b, err := r.bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *bodyReader) u16() (uint16, error) {
	b, err := r.bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *bodyReader) u32() (uint32, error) {
	b, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *bodyReader) u64() (uint64, error) {
	b, err := r.bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// clone returns nil for empty input so decoded values compare equal to
// literals with omitted slices.
func clone(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
