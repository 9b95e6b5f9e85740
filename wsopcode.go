package webcpp

import (
	"encoding/binary"
	"fmt"
)

// Opcode enumerates the WebSocket frame opcodes
type Opcode byte

const (
	// OpContinuation continues a fragmented message
	OpContinuation = Opcode(0x0)
	// OpText starts a UTF-8 text message
	OpText = Opcode(0x1)
	// OpBinary starts a binary message
	OpBinary = Opcode(0x2)
	// OpClose starts the closing handshake
	OpClose = Opcode(0x8)
	// OpPing requests a Pong with the same payload
	OpPing = Opcode(0x9)
	// OpPong answers a Ping
	OpPong = Opcode(0xA)
)

var opcodeTexts = map[Opcode]string{
	OpContinuation: "cont",
	OpText:         "text",
	OpBinary:       "binary",
	OpClose:        "close",
	OpPing:         "ping",
	OpPong:         "pong",
}

func (op Opcode) String() string {
	if s, ok := opcodeTexts[op]; ok {
		return s
	}
	return fmt.Sprintf("0x%x", byte(op))
}

// Valid returns true for opcodes defined by RFC 6455.
func (op Opcode) Valid() bool {
	_, ok := opcodeTexts[op]
	return ok
}

// IsControl returns true for close, ping and pong.
func (op Opcode) IsControl() bool {
	return op&0x8 != 0
}

// Close status codes.
const (
	CloseNormal          = 1000
	CloseGoingAway       = 1001
	CloseProtocolError   = 1002
	CloseUnsupportedData = 1003
	CloseNoStatus        = 1005
	CloseMessageTooBig   = 1009
	CloseInternalError   = 1011
)

// FormatCloseMessage returns the payload of a close frame.
func FormatCloseMessage(code int, text string) []byte {
	if code == CloseNoStatus {
		return nil
	}
	buf := make([]byte, 2+len(text))
	binary.BigEndian.PutUint16(buf, uint16(code))
	copy(buf[2:], text)
	return buf
}

// ParseCloseMessage splits a close frame payload into status code and
// reason. An empty payload yields CloseNoStatus.
func ParseCloseMessage(payload []byte) (code int, text string) {
	if len(payload) < 2 {
		return CloseNoStatus, ""
	}
	return int(binary.BigEndian.Uint16(payload)), string(payload[2:])
}
