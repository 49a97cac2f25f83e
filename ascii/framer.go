package ascii

import (
	"bytes"
)

var crlfBytes = []byte(CRLF)

// Framer splits a byte stream into CRLF-terminated lines.
//
// Bytes are accumulated across Feed calls, so a line may arrive in any number
// of fragments. Complete lines are handed to the line function synchronously,
// in stream order, on the goroutine calling Feed. The terminator is stripped.
//
// The line slice aliases the framer's buffer and is only valid until the line
// function returns.
type Framer struct {
	buf    []byte
	onLine func(line []byte)
}

// NewFramer returns a Framer delivering lines to onLine.
func NewFramer(onLine func(line []byte)) *Framer {
	return &Framer{onLine: onLine}
}

// Feed appends p to the buffer and delivers every complete line.
func (f *Framer) Feed(p []byte) {
	f.buf = append(f.buf, p...)

	consumed := 0
	for {
		idx := bytes.Index(f.buf[consumed:], crlfBytes)
		if idx < 0 {
			break
		}
		line := f.buf[consumed : consumed+idx]
		consumed += idx + len(crlfBytes)
		if f.onLine != nil {
			f.onLine(line)
		}
	}

	if consumed == 0 {
		return
	}
	n := copy(f.buf, f.buf[consumed:])
	f.buf = f.buf[:n]
}

// Buffered returns the number of bytes held for an incomplete line.
func (f *Framer) Buffered() int {
	return len(f.buf)
}
