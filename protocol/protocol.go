// Package protocol implements the FMR frame: the logical message boundary between
// a host and a device.
//
// A fixed-size 14-byte header is followed by a variable-length body. The receiver
// reads the header first to learn the body length, then reads exactly that many
// bytes and verifies the body checksum.
//
// Frame format (multi-byte fields big-endian):
//
//	0      3  4  5  6          10         14
//	┌──────┬──┬──┬──┬──────────┬──────────┬───────────────┐
//	│magic │v │cd│cl│ checksum │ bodyLen  │    body ...   │
//	│ fmr  │01│  │  │ crc32    │ uint32   │ bodyLen bytes │
//	└──────┴──┴──┴──┴──────────┴──────────┴───────────────┘
//
// There is no sequence number: one frame is answered by exactly one frame, so
// a connection carries at most one outstanding call.
package protocol

import (
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/evelyndooley/flipper/message"
)

// Magic number bytes: "fmr" (Flipper message runtime).
const (
	MagicNumber byte = 0x66 // 'f'
	MagicByte2  byte = 0x6d // 'm'
	MagicByte3  byte = 0x72 // 'r'
	Version     byte = 0x01
	HeaderSize  int  = 14 // 3 (magic) + 1 (version) + 1 (codec) + 1 (class) + 4 (checksum) + 4 (bodyLen)

	// MaxBodySize bounds the body a decoder will allocate for.
	MaxBodySize uint32 = 1 << 20
)

// Codec type constants, mirrored from codec package to avoid circular import.
const (
	CodecTypeJSON   byte = 0
	CodecTypeBinary byte = 1
)

// Header is the fixed 14-byte frame header.
type Header struct {
	CodecType byte          // Body serialization: 0=JSON, 1=Binary
	Class     message.Class // What the body carries
	Checksum  uint32        // CRC-32 (IEEE) of the body, filled in by Encode
	BodyLen   uint32        // Body length in bytes, filled in by Encode
}

// Checksum returns the frame checksum of body.
func Checksum(body []byte) uint32 {
	return crc32.ChecksumIEEE(body)
}

// Encode writes a complete frame (header + body) to w. It sets h.BodyLen and
// h.Checksum from body.
//
// Header and body go out in a single Write so a frame is never split across
// writes on transports that treat each Write as a packet.
func Encode(w io.Writer, h *Header, body []byte) error {
	if uint32(len(body)) > MaxBodySize {
		return &Error{Err: ErrBodyTooLarge, Detail: sizeDetail(uint32(len(body)))}
	}
	h.BodyLen = uint32(len(body))
	h.Checksum = Checksum(body)

	buf := make([]byte, HeaderSize+len(body))

	// Magic number: 3 bytes
	copy(buf[0:3], []byte{MagicNumber, MagicByte2, MagicByte3})
	buf[3] = Version
	buf[4] = h.CodecType
	buf[5] = byte(h.Class)
	binary.BigEndian.PutUint32(buf[6:10], h.Checksum)
	binary.BigEndian.PutUint32(buf[10:14], h.BodyLen)
	copy(buf[HeaderSize:], body)

	_, err := w.Write(buf)
	return err
}

// Decode reads a complete frame (header + body) from r.
// It validates the magic number, version, codec type, class, body size and
// checksum. A stream that ends inside a frame yields ErrTruncated.
func Decode(r io.Reader) (*Header, []byte, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, nil, readError(err)
	}

	if headerBuf[0] != MagicNumber || headerBuf[1] != MagicByte2 || headerBuf[2] != MagicByte3 {
		return nil, nil, &Error{Err: ErrBadMagic, Detail: hexDetail(headerBuf[0:3])}
	}
	if headerBuf[3] != Version {
		return nil, nil, &Error{Err: ErrBadVersion, Detail: hexDetail(headerBuf[3:4])}
	}
	if headerBuf[4] != CodecTypeJSON && headerBuf[4] != CodecTypeBinary {
		return nil, nil, &Error{Err: ErrBadCodec, Detail: hexDetail(headerBuf[4:5])}
	}
	class := message.Class(headerBuf[5])
	if !class.Valid() {
		return nil, nil, &Error{Err: ErrUnexpectedClass, Detail: class.String()}
	}

	checksum := binary.BigEndian.Uint32(headerBuf[6:10])
	bodyLen := binary.BigEndian.Uint32(headerBuf[10:14])
	if bodyLen > MaxBodySize {
		return nil, nil, &Error{Err: ErrBodyTooLarge, Detail: sizeDetail(bodyLen)}
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		// The header promised bodyLen bytes, so any EOF here is short.
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, nil, &Error{Err: ErrTruncated, Cause: err}
		}
		return nil, nil, err
	}
	if Checksum(body) != checksum {
		return nil, nil, &Error{Err: ErrBadChecksum}
	}

	return &Header{
		CodecType: headerBuf[4],
		Class:     class,
		Checksum:  checksum,
		BodyLen:   bodyLen,
	}, body, nil
}

// readError maps a short read to ErrTruncated. A clean io.EOF before any
// header byte is returned as is so servers can tell a closed peer apart.
func readError(err error) error {
	if err == io.ErrUnexpectedEOF {
		return &Error{Err: ErrTruncated, Cause: err}
	}
	return err
}
