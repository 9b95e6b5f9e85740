package webcpp

import (
	"bytes"
	"fmt"
)

// NotFound is returned by the search functions when the needle is absent.
const NotFound = -1

// ByteRange is a half-open range [Start, End) of offsets into a buffer.
// It never owns or copies bytes. A ByteRange must be consumed before
// the buffer it refers to is modified.
type ByteRange struct {
	Start int
	End   int
}

func (br ByteRange) String() string {
	return fmt.Sprintf("[%d,%d)", br.Start, br.End)
}

// Len returns the number of bytes covered by the range.
func (br ByteRange) Len() int {
	if br.End < br.Start {
		return 0
	}
	return br.End - br.Start
}

// Empty returns true if the range covers no bytes.
func (br ByteRange) Empty() bool {
	return br.Len() == 0
}

// Bytes returns the slice of buf covered by the range, clamped
// to the length buf has now.
func (br ByteRange) Bytes(buf []byte) []byte {
	start, end := clampRange(len(buf), br.Start, br.End)
	return buf[start:end]
}

// Text returns a copy of the covered bytes as a string.
func (br ByteRange) Text(buf []byte) string {
	return string(br.Bytes(buf))
}

// TrimSpace returns the range shrunk past leading and trailing
// spaces and tabs.
func (br ByteRange) TrimSpace(buf []byte) ByteRange {
	start, end := clampRange(len(buf), br.Start, br.End)
	for start < end && isSpace(buf[start]) {
		start++
	}
	for end > start && isSpace(buf[end-1]) {
		end--
	}
	return ByteRange{start, end}
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t'
}

func clampRange(n, start, end int) (int, int) {
	if end > n {
		end = n
	}
	if start < 0 {
		start = 0
	}
	if start > end {
		start = end
	}
	return start, end
}

// SearchPosition returns the offset of the first occurrence of needle
// within haystack[start:end], or NotFound.
func SearchPosition(haystack, needle []byte, start, end int) int {
	start, end = clampRange(len(haystack), start, end)
	if len(needle) == 0 || len(needle) > end-start {
		return NotFound
	}
	if idx := bytes.Index(haystack[start:end], needle); idx >= 0 {
		return start + idx
	}
	return NotFound
}

// SearchPositionReverse returns the offset of the last occurrence of needle
// within haystack[start:end], or NotFound.
func SearchPositionReverse(haystack, needle []byte, start, end int) int {
	start, end = clampRange(len(haystack), start, end)
	if len(needle) == 0 || len(needle) > end-start {
		return NotFound
	}
	if idx := bytes.LastIndex(haystack[start:end], needle); idx >= 0 {
		return start + idx
	}
	return NotFound
}

// Split returns the ranges of haystack[start:end] between occurrences of
// delim, in order, including the remainder after the last delimiter.
// Delimiters are never part of a returned range.
func Split(haystack, delim []byte, start, end int) (ranges []ByteRange) {
	start, end = clampRange(len(haystack), start, end)
	if len(delim) == 0 {
		return []ByteRange{{start, end}}
	}
	pos := start
	for {
		idx := SearchPosition(haystack, delim, pos, end)
		if idx == NotFound {
			break
		}
		ranges = append(ranges, ByteRange{pos, idx})
		pos = idx + len(delim)
	}
	return append(ranges, ByteRange{pos, end})
}

// SplitReverse is like Split, but scans from the end of the range and
// returns the ranges last-first. Used where the final delimiter is the
// most reliable anchor.
func SplitReverse(haystack, delim []byte, start, end int) (ranges []ByteRange) {
	start, end = clampRange(len(haystack), start, end)
	if len(delim) == 0 {
		return []ByteRange{{start, end}}
	}
	pos := end
	for {
		idx := SearchPositionReverse(haystack, delim, start, pos)
		if idx == NotFound {
			break
		}
		ranges = append(ranges, ByteRange{idx + len(delim), pos})
		pos = idx
	}
	return append(ranges, ByteRange{start, pos})
}
