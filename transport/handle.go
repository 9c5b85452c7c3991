// Package transport owns the byte streams that connect a host to devices.
//
// A Handle wraps one stream and carries exactly one outstanding exchange at a
// time: a request frame goes out, the answering frame comes back.
//
//	Session ──RoundTrip(req)──→ Handle ──frame──→ device
//	        ←──────── reply ──────────── frame ←──
//
// Devices answer strictly in order, so there is no sequence number and no
// background reader.
package transport

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/evelyndooley/flipper/protocol"
)

// ErrHandleClosed is returned by RoundTrip after Close.
var ErrHandleClosed = errors.New("transport: handle closed")

// Handle is an owned device connection.
type Handle struct {
	name string
	rwc  io.ReadWriteCloser

	mu     sync.Mutex  // Serializes whole exchanges: a request and its reply
	broken atomic.Bool // Set once framing may be out of sync
	closed atomic.Bool
}

// NewHandle takes ownership of rwc. name identifies the device in errors and
// logs.
func NewHandle(name string, rwc io.ReadWriteCloser) *Handle {
	return &Handle{name: name, rwc: rwc}
}

func (h *Handle) Name() string { return h.name }

// RoundTrip writes one frame and reads the next frame from the device.
//
// Any failure leaves the stream in an unknown position, so the handle is
// marked unusable; callers that pool handles drop it on return.
func (h *Handle) RoundTrip(req *protocol.Header, body []byte) (*protocol.Header, []byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed.Load() {
		return nil, nil, ErrHandleClosed
	}

	if err := protocol.Encode(h.rwc, req, body); err != nil {
		h.broken.Store(true)
		return nil, nil, err
	}

	reply, replyBody, err := protocol.Decode(h.rwc)
	if err != nil {
		h.broken.Store(true)
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, nil, err
	}
	return reply, replyBody, nil
}

// Usable reports whether the handle can carry another exchange.
func (h *Handle) Usable() bool {
	return !h.closed.Load() && !h.broken.Load()
}

// Close releases the underlying stream. It does not wait for an exchange in
// progress; closing the stream makes it fail. Close is idempotent.
func (h *Handle) Close() error {
	if h.closed.Swap(true) {
		return nil
	}
	return h.rwc.Close()
}
