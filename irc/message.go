/*
Package irc holds the wire-level types shared by the rest of tern: the
message codec, channel name comparisons, CTCP and formatting helpers, and
the record of what the server has told us about itself.
*/
package irc

import (
	"bytes"
	"strings"
)

// Error messages produced while decoding protocol lines.
const (
	errMsgEmptyCommand = "irc: empty command"
	errMsgBadCommand   = "irc: command must be alphabetic or a 3-digit numeric"
	errMsgTooManyArgs  = "irc: too many arguments"
	errMsgEmbeddedNul  = "irc: embedded NUL byte"
)

// ParseError is returned when a line cannot be decoded. The offending
// line is kept so the session can log it before dropping it.
type ParseError struct {
	// Msg describes what was wrong with the line.
	Msg string
	// Irc is the line that failed to decode.
	Irc string
}

// Error satisfies the error interface for ParseError.
func (p ParseError) Error() string {
	return p.Msg
}

// EncodeError is returned when arguments cannot be serialized into a
// legal protocol line.
type EncodeError struct {
	Msg string
}

// Error satisfies the error interface for EncodeError.
func (e EncodeError) Error() string {
	return e.Msg
}

// Message is a single decoded IRC line.
type Message struct {
	// Tags is the raw IRCv3 tag block without its @ prefix, empty when
	// the line carried none. It is passed through opaquely.
	Tags string
	// Sender is the message prefix without its leading colon, normally a
	// servername or a nick!user@host mask.
	Sender string
	// Name is the command, upper-cased for alphabetic commands. Numerics
	// stay as their three digit string.
	Name string
	// Args are the command parameters, trailing last.
	Args []string
	// Raw is the original line as received, without CRLF.
	Raw []byte
}

// Parse decodes a single line. The line must not contain the trailing
// CRLF pair. The returned Message keeps a reference to its input bytes.
func Parse(line []byte) (*Message, error) {
	if bytes.IndexByte(line, 0) >= 0 {
		return nil, ParseError{Msg: errMsgEmbeddedNul, Irc: string(line)}
	}

	msg := &Message{Raw: line}
	rest := line

	if len(rest) > 0 && rest[0] == '@' {
		sp := bytes.IndexByte(rest, ' ')
		if sp < 0 {
			return nil, ParseError{Msg: errMsgEmptyCommand, Irc: string(line)}
		}
		msg.Tags = string(rest[1:sp])
		rest = skipSpace(rest[sp:])
	}

	if len(rest) > 0 && rest[0] == ':' {
		sp := bytes.IndexByte(rest, ' ')
		if sp < 0 {
			return nil, ParseError{Msg: errMsgEmptyCommand, Irc: string(line)}
		}
		msg.Sender = string(rest[1:sp])
		rest = skipSpace(rest[sp:])
	}

	var cmd []byte
	if sp := bytes.IndexByte(rest, ' '); sp >= 0 {
		cmd, rest = rest[:sp], skipSpace(rest[sp:])
	} else {
		cmd, rest = rest, nil
	}
	name, ok := commandName(cmd)
	if !ok {
		if len(cmd) == 0 {
			return nil, ParseError{Msg: errMsgEmptyCommand, Irc: string(line)}
		}
		return nil, ParseError{Msg: errMsgBadCommand, Irc: string(line)}
	}
	msg.Name = name

	for len(rest) > 0 {
		if rest[0] == ':' {
			msg.Args = append(msg.Args, string(rest[1:]))
			break
		}
		var arg []byte
		if sp := bytes.IndexByte(rest, ' '); sp >= 0 {
			arg, rest = rest[:sp], skipSpace(rest[sp:])
		} else {
			arg, rest = rest, nil
		}
		if len(msg.Args) == MaxArgs {
			return nil, ParseError{Msg: errMsgTooManyArgs, Irc: string(line)}
		}
		msg.Args = append(msg.Args, string(arg))
	}

	return msg, nil
}

// commandName validates and normalizes a command token. Alphabetic
// commands upper-case, numerics must be exactly three digits.
func commandName(cmd []byte) (string, bool) {
	if len(cmd) == 0 {
		return "", false
	}

	digits, letters := 0, 0
	for _, c := range cmd {
		switch {
		case c >= '0' && c <= '9':
			digits++
		case c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z':
			letters++
		default:
			return "", false
		}
	}

	switch {
	case letters == len(cmd):
		return strings.ToUpper(string(cmd)), true
	case digits == 3 && len(cmd) == 3:
		return string(cmd), true
	}
	return "", false
}

func skipSpace(b []byte) []byte {
	for len(b) > 0 && b[0] == ' ' {
		b = b[1:]
	}
	return b
}

// Serialize produces a full wire line terminated by CRLF. Every argument
// but the last must be free of space, CR, LF and NUL; the last argument
// gets a leading colon when it contains a space, starts with a colon or
// is empty. The line length, CRLF included, is returned so callers can
// enforce MaxLineLen; Serialize never refuses a line for its length,
// since splitting overlong payloads is the outgoing queue's job. It
// refuses only an empty command, an argument holding CR, LF or NUL, and
// a non-final argument that is empty or holds a space.
func Serialize(name string, args ...string) ([]byte, int, error) {
	return serialize(name, false, args)
}

// SerializeTrailing is Serialize with the final argument always
// rendered as a trailing parameter, colon included. CAP REQ, QUIT and
// NICK changes are conventionally sent this way.
func SerializeTrailing(name string, args ...string) ([]byte, int, error) {
	return serialize(name, true, args)
}

func serialize(name string, forceTrailing bool, args []string) ([]byte, int, error) {
	if len(name) == 0 {
		return nil, 0, EncodeError{Msg: errMsgEmptyCommand}
	}

	b := &bytes.Buffer{}
	b.WriteString(name)

	last := len(args) - 1
	for i, arg := range args {
		if strings.ContainsAny(arg, "\x00\r\n") {
			return nil, 0, EncodeError{Msg: "irc: argument contains line terminator or NUL"}
		}
		b.WriteByte(' ')
		if i == last {
			if forceTrailing || len(arg) == 0 ||
				strings.ContainsRune(arg, ' ') || arg[0] == ':' {
				b.WriteByte(':')
			}
		} else if len(arg) == 0 || strings.ContainsRune(arg, ' ') {
			return nil, 0, EncodeError{Msg: "irc: non-final argument contains space"}
		}
		b.WriteString(arg)
	}
	b.WriteString("\r\n")

	return b.Bytes(), b.Len(), nil
}

// String turns the message back into an IRC style line, without CRLF.
func (m *Message) String() string {
	b := &bytes.Buffer{}
	if len(m.Tags) > 0 {
		b.WriteByte('@')
		b.WriteString(m.Tags)
		b.WriteByte(' ')
	}
	if len(m.Sender) > 0 {
		b.WriteByte(':')
		b.WriteString(m.Sender)
		b.WriteByte(' ')
	}
	b.WriteString(m.Name)

	lastArg := len(m.Args) - 1
	for i, arg := range m.Args {
		b.WriteByte(' ')
		if lastArg == i && (len(arg) == 0 || strings.ContainsRune(arg, ' ') ||
			(len(arg) > 0 && arg[0] == ':')) {
			b.WriteByte(':')
		}
		b.WriteString(arg)
	}

	return b.String()
}

// Nick returns the nick portion of the sender, or the whole sender when
// it carries no user or host part.
func (m *Message) Nick() string {
	return Nick(m.Sender)
}

// SplitHost splits the sender into its fragments: nick, user and host.
func (m *Message) SplitHost() (nick, user, host string) {
	return SplitHost(m.Sender)
}

// HasUserHost reports whether the sender looks like a full nick!user@host
// mask rather than a bare token.
func (m *Message) HasUserHost() bool {
	return strings.ContainsRune(m.Sender, '!') ||
		strings.ContainsRune(m.Sender, '@')
}

// Target retrieves the channel or user this message was sent to. Only
// meaningful for commands that carry a target as their first argument.
func (m *Message) Target() string {
	if len(m.Args) == 0 {
		return ""
	}
	return m.Args[0]
}

// Trailing retrieves the final argument, usually the message body.
func (m *Message) Trailing() string {
	if len(m.Args) == 0 {
		return ""
	}
	return m.Args[len(m.Args)-1]
}

// Nick returns the nick fragment of a prefix or mask.
func Nick(sender string) string {
	if i := strings.IndexByte(sender, '!'); i >= 0 {
		return sender[:i]
	}
	if i := strings.IndexByte(sender, '@'); i >= 0 {
		return sender[:i]
	}
	return sender
}

// SplitHost splits a nick!user@host mask into its fragments. Missing
// fragments come back empty.
func SplitHost(sender string) (nick, user, host string) {
	nick = sender
	if i := strings.IndexByte(nick, '@'); i >= 0 {
		nick, host = nick[:i], nick[i+1:]
	}
	if i := strings.IndexByte(nick, '!'); i >= 0 {
		nick, user = nick[:i], nick[i+1:]
	}
	return nick, user, host
}
