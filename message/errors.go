package message

import "fmt"

// ErrorKind is the device's own error vocabulary, carried as the status byte of
// a Result. The byte values are fixed; zero means success.
//
// ErrorKind implements error so a DeviceError can be matched by kind:
//
//	if errors.Is(err, message.ErrNoDevice) { ... }
type ErrorKind byte

const (
	OK                 ErrorKind = iota
	ErrMalloc                    // out of memory
	ErrNull                      // null reference
	ErrOverflow                  // arithmetic or buffer overflow
	ErrNoDevice                  // no device present
	ErrNotAttached               // device not attached
	ErrAlreadyAttached           // device already attached
	ErrFsExists                  // file already exists
	ErrFsNoFile                  // file does not exist
	ErrFmrOverflow               // FMR argument overflow
	ErrFmr                       // generic FMR failure
	ErrEndpoint                  // endpoint failure
	ErrLibUsb                    // USB stack failure
	ErrCommunication             // transfer failure
	ErrSocket                    // socket failure
	ErrModule                    // no such module
	ErrResolution                // function could not be resolved
	ErrString                    // string handling failure
	ErrChecksum                  // checksum mismatch
	ErrName                      // name resolution failure
	ErrConfiguration             // configuration failure
	ErrAck                       // acknowledgment failure
	ErrType                      // type mismatch
	ErrBoundary                  // boundary violation
	ErrTimer                     // timer failure
	ErrTimeout                   // timed out
	ErrNoPID                     // no such process
	ErrInvalidTask               // invalid task
	ErrSubclass                  // subclass failure
	ErrUnimplemented             // not implemented

	lastKind = ErrUnimplemented
)

var kindNames = [...]string{
	OK:                 "ok",
	ErrMalloc:          "out of memory",
	ErrNull:            "null reference",
	ErrOverflow:        "overflow",
	ErrNoDevice:        "no device",
	ErrNotAttached:     "not attached",
	ErrAlreadyAttached: "already attached",
	ErrFsExists:        "file exists",
	ErrFsNoFile:        "no such file",
	ErrFmrOverflow:     "fmr overflow",
	ErrFmr:             "fmr failure",
	ErrEndpoint:        "endpoint failure",
	ErrLibUsb:          "usb failure",
	ErrCommunication:   "communication failure",
	ErrSocket:          "socket failure",
	ErrModule:          "no such module",
	ErrResolution:      "resolution failure",
	ErrString:          "string failure",
	ErrChecksum:        "checksum mismatch",
	ErrName:            "name failure",
	ErrConfiguration:   "configuration failure",
	ErrAck:             "acknowledgment failure",
	ErrType:            "type mismatch",
	ErrBoundary:        "boundary violation",
	ErrTimer:           "timer failure",
	ErrTimeout:         "timeout",
	ErrNoPID:           "no such pid",
	ErrInvalidTask:     "invalid task",
	ErrSubclass:        "subclass failure",
	ErrUnimplemented:   "unimplemented",
}

// Known reports whether k has a defined meaning.
func (k ErrorKind) Known() bool {
	return k <= lastKind
}

func (k ErrorKind) String() string {
	if !k.Known() {
		return fmt.Sprintf("unknown(0x%02x)", byte(k))
	}
	return kindNames[k]
}

func (k ErrorKind) Error() string {
	return "device: " + k.String()
}

// DeviceError is returned when a device answers with a non-zero status.
type DeviceError struct {
	Kind     ErrorKind
	Module   string
	Function uint8
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device error in %s[%d]: %s", e.Module, e.Function, e.Kind)
}

// Unwrap exposes the kind so callers can use errors.Is with an ErrorKind.
func (e *DeviceError) Unwrap() error {
	return e.Kind
}
