// Package message defines the values exchanged between a host and a Flipper device.
//
// An Invocation is the "envelope" for one remote call. It gets serialized by the
// codec layer and wrapped in a protocol frame for transmission; the device answers
// with a Result in a frame of class ClassResult.
package message

import "fmt"

// Class identifies what a frame carries. It travels in the frame header.
type Class byte

const (
	ClassConfiguration Class = 0 // Both ways: empty request, answered with the device configuration
	ClassInvoke        Class = 1 // Host → device: plain invocation
	ClassPush          Class = 2 // Host → device: invocation carrying bulk bytes
	ClassPull          Class = 3 // Host → device: invocation expecting bulk bytes back
	ClassResult        Class = 4 // Device → host: answer to invoke, push or pull
)

func (c Class) String() string {
	switch c {
	case ClassConfiguration:
		return "configuration"
	case ClassInvoke:
		return "invoke"
	case ClassPush:
		return "push"
	case ClassPull:
		return "pull"
	case ClassResult:
		return "result"
	}
	return fmt.Sprintf("class(%d)", byte(c))
}

// Valid reports whether c is one of the defined classes.
func (c Class) Valid() bool {
	return c <= ClassResult
}

// Invocation carries a single remote call.
//
//   - Types holds one type tag per argument, in call order (see fmr.Type).
//   - Args holds the fixed-width argument bytes produced by codec.Args.
//   - BulkLen is the bulk transfer size for push and pull; Bulk holds the bytes
//     for push and is empty otherwise.
type Invocation struct {
	Class    Class  `json:"-"` // From the frame header, not the body
	Module   string `json:"module"`
	Function uint8  `json:"function"`
	Types    []byte `json:"types,omitempty"`
	Args     []byte `json:"args,omitempty"`
	BulkLen  uint32 `json:"bulk_len,omitempty"`
	Bulk     []byte `json:"bulk,omitempty"`
}

// Result is the device's answer.
//
// Value is the raw return value. Its width and signedness are decided by the
// caller's calling convention, not by the wire. Bulk carries pulled bytes.
type Result struct {
	Status ErrorKind `json:"status"`
	Value  uint64    `json:"value"`
	Bulk   []byte    `json:"bulk,omitempty"`
}

// Attribute bits reported in Configuration.Attributes.
const (
	Attr8Bit         byte = 0x00
	Attr16Bit        byte = 0x01
	Attr32Bit        byte = 0x02
	Attr64Bit        byte = 0x03
	AttrWordMask     byte = 0x03
	AttrLittleEndian byte = 0x00
	AttrBigEndian    byte = 0x04
)

// Configuration describes an attached device.
type Configuration struct {
	Name       string `json:"name"`
	Identifier uint32 `json:"identifier"`
	Version    uint16 `json:"version"`
	Attributes byte   `json:"attributes"`
}

// WordSize returns the device word size in bits.
func (c Configuration) WordSize() int {
	switch c.Attributes & AttrWordMask {
	case Attr8Bit:
		return 8
	case Attr16Bit:
		return 16
	case Attr32Bit:
		return 32
	}
	return 64
}
