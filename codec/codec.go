// Package codec turns call arguments and frame bodies into bytes.
//
// Args builds the fixed-width argument buffer for one call. BinaryCodec and
// JSONCodec serialize the message bodies carried inside protocol frames.
package codec

import "github.com/evelyndooley/flipper/protocol"

type CodecType byte

const (
	CodecTypeJSON   CodecType = CodecType(protocol.CodecTypeJSON)
	CodecTypeBinary CodecType = CodecType(protocol.CodecTypeBinary)
)

func (t CodecType) String() string {
	if t == CodecTypeJSON {
		return "json"
	}
	return "binary"
}

// Codec serializes *message.Invocation, *message.Result and
// *message.Configuration values.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() CodecType // 0=JSON, 1=Binary
}

// GetCodec returns the codec for a frame's codec byte. Anything other than
// JSON gets the binary codec.
func GetCodec(codecType CodecType) Codec {
	if codecType == CodecTypeJSON {
		return &JSONCodec{}
	}

	return &BinaryCodec{}
}

// ParseCodecType resolves a configuration name ("binary" or "json").
func ParseCodecType(name string) (CodecType, bool) {
	switch name {
	case "", "binary":
		return CodecTypeBinary, true
	case "json":
		return CodecTypeJSON, true
	}
	return 0, false
}
