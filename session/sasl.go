package session

import (
	"encoding/base64"
	"strings"

	"github.com/ternet/tern/irc"
)

// saslChunkSize is the AUTHENTICATE payload frame size. A response
// landing exactly on the boundary needs an empty continuation frame.
const saslChunkSize = 400

// handleCap drives capability negotiation. We only ever request sasl;
// everything else the server advertises is recorded and passed through.
func (s *Session) handleCap(msg *irc.Message) {
	if len(msg.Args) < 2 {
		return
	}

	switch msg.Args[1] {
	case irc.CAP_LS:
		s.capLS = append(s.capLS, strings.Fields(msg.Trailing())...)
		// A multi-line LS marks continuation lines with a "*" before the
		// capability list; only the final line moves us on.
		if len(msg.Args) >= 4 && msg.Args[2] == "*" {
			return
		}
		s.setState(CapNegotiating)
		if s.spec.SASL != nil && s.capAdvertised("sasl") {
			s.sendTrailing(irc.CAP, irc.CAP_REQ, "sasl")
		} else {
			s.sendLine(irc.CAP, irc.CAP_END)
		}
	case irc.CAP_ACK:
		if s.spec.SASL != nil && capListHas(msg.Trailing(), "sasl") {
			s.setState(SaslAuthenticating)
			s.sendLine(irc.AUTHENTICATE, "PLAIN")
		} else {
			s.sendLine(irc.CAP, irc.CAP_END)
		}
	case irc.CAP_NAK:
		s.sendLine(irc.CAP, irc.CAP_END)
	}
}

// capAdvertised checks the accumulated LS list for a capability,
// ignoring any =value suffix.
func (s *Session) capAdvertised(name string) bool {
	for _, c := range s.capLS {
		if i := strings.IndexByte(c, '='); i >= 0 {
			c = c[:i]
		}
		if c == name {
			return true
		}
	}
	return false
}

func capListHas(list, name string) bool {
	for _, c := range strings.Fields(list) {
		if c == name {
			return true
		}
	}
	return false
}

// sendSaslPayload answers the server's AUTHENTICATE + challenge with
// the PLAIN response, framed into 400-byte chunks. A final chunk of
// exactly 400 bytes is followed by an empty "+" frame so the server
// knows we are done.
func (s *Session) sendSaslPayload() {
	auth := s.spec.SASL
	if auth == nil {
		s.log.Warn("server requested sasl payload without sasl configured")
		return
	}

	plain := "\x00" + auth.Username + "\x00" + auth.Password
	payload := base64.StdEncoding.EncodeToString([]byte(plain))

	for len(payload) >= saslChunkSize {
		s.sendLine(irc.AUTHENTICATE, payload[:saslChunkSize])
		payload = payload[saslChunkSize:]
	}
	if len(payload) > 0 {
		s.sendLine(irc.AUTHENTICATE, payload)
	} else {
		s.sendLine(irc.AUTHENTICATE, "+")
	}
}
