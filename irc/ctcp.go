package irc

import "strings"

// CTCPDelim wraps client-to-client protocol payloads inside PRIVMSG and
// NOTICE bodies.
const CTCPDelim = '\x01'

// CTCPAction is the tag used for /me style messages.
const CTCPAction = "ACTION"

// IsCTCP reports whether a message body is a CTCP payload.
func IsCTCP(body string) bool {
	return len(body) >= 2 && body[0] == CTCPDelim && body[len(body)-1] == CTCPDelim
}

// CTCPpack packs a tag and data into a delimited CTCP body.
func CTCPpack(tag, data string) string {
	if len(data) == 0 {
		return string(CTCPDelim) + tag + string(CTCPDelim)
	}
	return string(CTCPDelim) + tag + " " + data + string(CTCPDelim)
}

// CTCPunpack splits a CTCP body into its tag and data. The tag comes
// back upper-cased; data is empty when the payload carried none.
func CTCPunpack(body string) (tag, data string) {
	if !IsCTCP(body) {
		return "", ""
	}
	body = body[1 : len(body)-1]
	if i := strings.IndexByte(body, ' '); i >= 0 {
		return strings.ToUpper(body[:i]), body[i+1:]
	}
	return strings.ToUpper(body), ""
}
