package inet

import "bytes"

// maxUnterminated is how many buffered bytes we tolerate without seeing
// a CRLF before assuming protocol desync and starting over.
const maxUnterminated = 8192

var crlf = []byte("\r\n")

// Assembler accumulates inbound bytes and cuts them into protocol lines.
// Lines end only at CRLF pairs; a bare CR or LF inside a line is repaired
// to a single space so rfc-violating server output survives without
// truncation. Tabs and every other byte pass through unchanged.
type Assembler struct {
	buf []byte
}

// Feed appends read bytes and returns the complete lines they finish,
// without their CRLF terminators. Each returned line is its own copy.
// The reset return is true when the unterminated tail exceeded the
// buffer cap and was discarded; the caller should log it.
func (a *Assembler) Feed(p []byte) (lines [][]byte, reset bool) {
	a.buf = append(a.buf, p...)

	for {
		i := bytes.Index(a.buf, crlf)
		if i < 0 {
			break
		}
		line := make([]byte, i)
		copy(line, a.buf[:i])
		a.buf = a.buf[i+2:]
		lines = append(lines, repairBare(line))
	}

	if len(a.buf) > maxUnterminated {
		a.buf = nil
		reset = true
	}
	return lines, reset
}

// Pending returns how many unterminated bytes are buffered.
func (a *Assembler) Pending() int {
	return len(a.buf)
}

// Reset drops any buffered partial line.
func (a *Assembler) Reset() {
	a.buf = nil
}

// repairBare replaces stray CR and LF bytes inside a line with spaces.
// The CRLF pair itself was already consumed by the caller, so anything
// left is a violation we keep readable. Mutates in place.
func repairBare(line []byte) []byte {
	for i, b := range line {
		if b == '\r' || b == '\n' {
			line[i] = ' '
		}
	}
	return line
}
