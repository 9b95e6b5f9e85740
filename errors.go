// Copyright 2018 Johan Lindh. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package webcpp

import (
	"io"
	"net/http"

	"github.com/pkg/errors"
)

// MalformedInputError is returned when received bytes do not form a valid message.
type MalformedInputError struct {
	Reason string
}

func (e MalformedInputError) Error() string { return "malformed input: " + e.Reason }

// ResourceExhaustionError is returned when a message exceeds a configured limit
// or a resource needed to hold it cannot be obtained.
type ResourceExhaustionError struct {
	Reason string
}

func (e ResourceExhaustionError) Error() string { return "resource exhaustion: " + e.Reason }

// ProtocolViolationError is returned when a peer breaks the WebSocket protocol.
// All of these are fatal to the connection.
type ProtocolViolationError struct {
	Reason string
}

func (e ProtocolViolationError) Error() string { return "protocol violation: " + e.Reason }

// TransportError is returned when the underlying connection fails.
type TransportError struct {
	Reason string
}

func (e TransportError) Error() string { return "transport failure: " + e.Reason }

type serverClosedError struct{}

func (serverClosedError) Error() string { return "server closed" }

var (
	// ErrServerClosed is returned by Serve after Close has been called.
	ErrServerClosed = serverClosedError{}

	ErrBadStartLine       = MalformedInputError{"bad start line"}
	ErrUnknownMethod      = MalformedInputError{"unknown method"}
	ErrBadVersion         = MalformedInputError{"unsupported protocol version"}
	ErrBadStatus          = MalformedInputError{"bad status code"}
	ErrBadURL             = MalformedInputError{"unresolvable url"}
	ErrBadHeader          = MalformedInputError{"bad header line"}
	ErrBadBoundary        = MalformedInputError{"bad multipart boundary"}
	ErrChunkedUnsupported = MalformedInputError{"chunked transfer encoding is not supported"}
	ErrBadRoute           = MalformedInputError{"bad route template"}

	ErrBodyTooLarge    = ResourceExhaustionError{"declared body exceeds maximum"}
	ErrHeaderTooLarge  = ResourceExhaustionError{"header block exceeds maximum"}
	ErrTempFolder      = ResourceExhaustionError{"temporary folder unavailable"}
	ErrMessageTooBig   = ResourceExhaustionError{"websocket message exceeds maximum"}
	ErrSessionOverflow = ResourceExhaustionError{"unparsed input exceeds maximum"}

	ErrHandshake      = ProtocolViolationError{"bad websocket handshake"}
	ErrAcceptMismatch = ProtocolViolationError{"Sec-WebSocket-Accept mismatch"}
	ErrBadOpcode      = ProtocolViolationError{"unexpected opcode"}
	ErrBadControl     = ProtocolViolationError{"bad control frame"}
	ErrBadFrameLength = ProtocolViolationError{"bad frame length"}

	ErrConnClosed = TransportError{"connection closed"}
	ErrWriteFail  = TransportError{"write failed"}
)

// IsServerClosed returns true if the cause of err is ErrServerClosed.
func IsServerClosed(err error) bool {
	_, ok := errors.Cause(err).(serverClosedError)
	return ok
}

// IsMalformed returns true if the cause of err is a MalformedInputError.
func IsMalformed(err error) bool {
	_, ok := errors.Cause(err).(MalformedInputError)
	return ok
}

// IsResourceExhaustion returns true if the cause of err is a ResourceExhaustionError.
func IsResourceExhaustion(err error) bool {
	_, ok := errors.Cause(err).(ResourceExhaustionError)
	return ok
}

// IsProtocolViolation returns true if the cause of err is a ProtocolViolationError.
func IsProtocolViolation(err error) bool {
	_, ok := errors.Cause(err).(ProtocolViolationError)
	return ok
}

// IsTransportFailure returns true if the cause of err is a TransportError.
func IsTransportFailure(err error) bool {
	_, ok := errors.Cause(err).(TransportError)
	return ok
}

func isClosedError(err error) bool {
	switch errors.Cause(err) {
	case serverClosedError{}:
		return true
	case ErrConnClosed:
		return true
	case io.ErrClosedPipe:
		return true
	case io.EOF:
		return true
	}
	return false
}

// errorStatus maps a parse error to the status code sent back to the client.
func errorStatus(err error) int {
	switch errors.Cause(err) {
	case ErrChunkedUnsupported:
		return http.StatusNotImplemented
	case ErrBodyTooLarge, ErrSessionOverflow:
		return http.StatusRequestEntityTooLarge
	case ErrHeaderTooLarge:
		return http.StatusRequestHeaderFieldsTooLarge
	}
	switch errors.Cause(err).(type) {
	case MalformedInputError:
		return http.StatusBadRequest
	case ResourceExhaustionError:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
