package codec

import (
	"encoding/json"

	"github.com/evelyndooley/flipper/message"
	"github.com/evelyndooley/flipper/protocol"
)

// JSONCodec uses Go's standard library encoding/json for serialization.
// Devices never speak it; it exists so a virtual device can be driven and
// inspected with readable bodies while debugging.
type JSONCodec struct{}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (c *JSONCodec) Decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return &protocol.Error{Err: protocol.ErrMalformed, Cause: err}
	}
	if res, ok := v.(*message.Result); ok && !res.Status.Known() {
		return &protocol.Error{Err: protocol.ErrUnknownStatus, Status: byte(res.Status)}
	}
	return nil
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}
