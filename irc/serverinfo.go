package irc

import (
	"strconv"
	"strings"
)

// Defaults used until the server reports its own limits. The prefix
// budget default is deliberately conservative; values for the name
// length limits follow modern ircd documentation.
const (
	defaultChantypes    = "#&+!"
	defaultNicklen      = 10
	defaultUserlen      = 18
	defaultHostlen      = 63
	defaultPrefixBudget = 100
)

// ServerInfo records what the server has told us about itself over the
// course of a connection: its name from the welcome numerics, the
// ISUPPORT limits that tighten the outgoing prefix budget, and our own
// hostmask once the server has echoed it back. It is owned by a single
// session loop and holds no locks.
type ServerInfo struct {
	name      string
	chantypes string
	nicklen   int
	userlen   int
	hostlen   int

	// selfMask is our full nick!user@host as last echoed by the server,
	// empty until seen.
	selfMask string

	// extras keeps unparsed ISUPPORT tokens for embedders that want them.
	extras map[string]string
}

// NewServerInfo initializes a ServerInfo with pre-welcome defaults.
func NewServerInfo() *ServerInfo {
	return &ServerInfo{
		chantypes: defaultChantypes,
		nicklen:   defaultNicklen,
		userlen:   defaultUserlen,
		hostlen:   defaultHostlen,
		extras:    make(map[string]string),
	}
}

// Update consumes a welcome or ISUPPORT numeric. Other messages are
// ignored so the session can feed it everything it receives.
func (s *ServerInfo) Update(msg *Message) {
	switch msg.Name {
	case RPL_WELCOME, RPL_YOURHOST:
		if len(s.name) == 0 && len(msg.Sender) > 0 {
			s.name = msg.Sender
		}
	case RPL_MYINFO:
		if len(msg.Args) >= 2 {
			s.name = msg.Args[1]
		}
	case RPL_ISUPPORT:
		s.updateISupport(msg.Args)
	}
}

func (s *ServerInfo) updateISupport(args []string) {
	// args[0] is our nick, the last arg is the "are supported" trailer.
	if len(args) < 2 {
		return
	}
	for _, token := range args[1 : len(args)-1] {
		key, value := token, ""
		if i := strings.IndexByte(token, '='); i >= 0 {
			key, value = token[:i], token[i+1:]
		}

		switch key {
		case "CHANTYPES":
			if len(value) > 0 {
				s.chantypes = value
			}
		case "NICKLEN":
			s.nicklen = atoiDefault(value, s.nicklen)
		case "USERLEN":
			s.userlen = atoiDefault(value, s.userlen)
		case "HOSTLEN":
			s.hostlen = atoiDefault(value, s.hostlen)
		default:
			s.extras[key] = value
		}
	}
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// SetSelfMask records our full hostmask as echoed by the server.
func (s *ServerInfo) SetSelfMask(mask string) {
	if strings.ContainsRune(mask, '!') && strings.ContainsRune(mask, '@') {
		s.selfMask = mask
	}
}

// Name returns the server's self-reported name, empty before welcome.
func (s *ServerInfo) Name() string {
	return s.name
}

// IsServer reports whether a bare message prefix names the server rather
// than a nick. Only exact ASCII case-insensitive matches count.
func (s *ServerInfo) IsServer(sender string) bool {
	if len(s.name) == 0 || len(sender) != len(s.name) {
		return false
	}
	for i := 0; i < len(sender); i++ {
		a, b := sender[i], s.name[i]
		if a >= 'A' && a <= 'Z' {
			a += 'a' - 'A'
		}
		if b >= 'A' && b <= 'Z' {
			b += 'a' - 'A'
		}
		if a != b {
			return false
		}
	}
	return true
}

// IsChannel checks a target against the server's channel sigils.
func (s *ServerInfo) IsChannel(target string) bool {
	return len(target) > 0 && strings.IndexByte(s.chantypes, target[0]) >= 0
}

// PrefixBudget returns the byte allowance to reserve for the ":" prefix
// the server will prepend when relaying our messages. The exact echoed
// hostmask wins. Otherwise, once the server has named itself, the
// NICKLEN/USERLEN/HOSTLEN limits bound it, taken from ISUPPORT or from
// the defaults above where the server sent none; before the server is
// named a conservative constant applies.
func (s *ServerInfo) PrefixBudget() int {
	if len(s.selfMask) > 0 {
		// ":" mask " "
		return 1 + len(s.selfMask) + 1
	}
	if len(s.name) == 0 {
		return defaultPrefixBudget
	}
	// ":" nick "!" user "@" host " "
	return 1 + s.nicklen + 1 + s.userlen + 1 + s.hostlen + 1
}

// Extra returns an unparsed ISUPPORT value.
func (s *ServerInfo) Extra(key string) (string, bool) {
	v, ok := s.extras[key]
	return v, ok
}
