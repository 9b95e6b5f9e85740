package webcpp

import (
	"math"

	"github.com/pkg/errors"
)

type parsePhase int

const (
	phaseStartLine = parsePhase(0)
	phaseHeader    = parsePhase(1)
	phaseBody      = parsePhase(2)
	phaseComplete  = parsePhase(3)
)

var parsePhaseTexts = map[parsePhase]string{
	phaseStartLine: "START",
	phaseHeader:    "HEADER",
	phaseBody:      "BODY",
	phaseComplete:  "DONE",
}

func (p parsePhase) String() string {
	return parsePhaseTexts[p]
}

// message holds what requests and responses have in common: the header,
// the body and the incremental parse state.
type message struct {
	Header        Header
	Body          []byte
	MaxBodySize   int64 // zero means no limit
	MaxHeaderSize int   // zero means no limit
	phase         parsePhase
	startLineLen  int
	lastErr       error
}

// Complete returns true once the whole message has been parsed.
func (m *message) Complete() bool {
	return m.phase == phaseComplete
}

// HeaderComplete returns true once the start line and header are parsed.
func (m *message) HeaderComplete() bool {
	return m.phase >= phaseBody
}

// LastError returns the error that stopped the last Parse, if any.
func (m *message) LastError() error {
	return m.lastErr
}

// headerEnd returns the offset of the first body byte.
func (m *message) headerEnd() int {
	return m.startLineLen + len(crlf) + m.Header.Len()
}

// Size returns the total number of bytes the message occupies on the wire,
// or zero while the header is still incomplete.
func (m *message) Size() int {
	if m.phase < phaseBody {
		return 0
	}
	return m.headerEnd() + int(m.Header.BodySize())
}

// findStartLine returns the length of the start line, or NotFound.
func (m *message) findStartLine(buf []byte) (int, error) {
	end := SearchPosition(buf, crlf, 0, len(buf))
	if end == NotFound {
		if m.MaxHeaderSize > 0 && len(buf) > m.MaxHeaderSize {
			return NotFound, errors.WithStack(ErrHeaderTooLarge)
		}
		return end, nil
	}
	if m.MaxHeaderSize > 0 && end >= m.MaxHeaderSize {
		return NotFound, errors.Wrapf(ErrHeaderTooLarge, "start line of %d bytes", end)
	}
	return end, nil
}

// parseRest runs the header and body phases. bodyAllowed is false
// for messages that never carry a body regardless of their header.
func (m *message) parseRest(buf []byte, bodyAllowed bool) (bool, error) {
	if m.phase == phaseHeader {
		maxHeader := 0
		if m.MaxHeaderSize > 0 {
			// a budget used up by the start line must never read as unlimited
			if maxHeader = m.MaxHeaderSize - m.startLineLen; maxHeader <= 0 {
				return false, errors.WithStack(ErrHeaderTooLarge)
			}
		}
		done, err := m.Header.Parse(buf, m.startLineLen+len(crlf), maxHeader)
		if err != nil || !done {
			return false, err
		}
		if m.Header.Chunked() {
			return false, errors.WithStack(ErrChunkedUnsupported)
		}
		if !bodyAllowed {
			m.Header.bodySize = 0
		}
		if m.MaxBodySize > 0 && m.Header.BodySize() > m.MaxBodySize {
			return false, errors.Wrapf(ErrBodyTooLarge, "%d > %d", m.Header.BodySize(), m.MaxBodySize)
		}
		if m.Header.BodySize() > int64(math.MaxInt-m.headerEnd()) {
			return false, errors.Wrapf(ErrBodyTooLarge, "%d is not addressable", m.Header.BodySize())
		}
		m.phase = phaseBody
	}
	if m.phase == phaseBody {
		size := m.Size()
		if len(buf) < size {
			return false, nil
		}
		if start := m.headerEnd(); size > start {
			m.Body = append(m.Body[:0], buf[start:size]...)
		} else {
			m.Body = m.Body[:0]
		}
		m.phase = phaseComplete
	}
	return m.phase == phaseComplete, nil
}

func (m *message) fail(err error) (bool, error) {
	m.lastErr = err
	return false, err
}

func (m *message) reset() {
	m.Header.Clear()
	m.Body = m.Body[:0]
	m.phase = phaseStartLine
	m.startLineLen = 0
	m.lastErr = nil
}
