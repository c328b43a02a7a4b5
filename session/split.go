package session

import (
	"bytes"
	"unicode/utf8"

	"github.com/ternet/tern/irc"
)

// splitBody splits a message body so that every produced line fits
// MaxLineLen with CRLF and the server-side prefix budget accounted for.
// Splits prefer the last space inside the window and fall back to the
// last UTF-8 code point boundary, so fragments concatenate back to the
// original text byte for byte.
func splitBody(command, target, text string, prefixBudget int) []string {
	// prefix command SP target SP ':' body CRLF
	maxText := irc.MaxLineLen - 2 - prefixBudget - len(command) - 1 - len(target) - 2
	if maxText <= 0 || len(text) <= maxText {
		return []string{text}
	}

	var out []string
	b := []byte(text)
	for len(b) > maxText {
		idx := bytes.LastIndexByte(b[:maxText], ' ')
		if idx > 0 {
			// Keep the space with the leading fragment so joining the
			// fragments reproduces the input.
			idx++
		} else {
			idx = maxText
			for idx > 0 && !utf8.RuneStart(b[idx]) {
				idx--
			}
			if idx <= 0 {
				idx = maxText
			}
		}

		out = append(out, string(b[:idx]))
		b = b[idx:]
	}
	return append(out, string(b))
}
