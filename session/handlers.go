package session

import (
	"strings"
	"time"

	"github.com/ternet/tern/irc"
)

// joinRetryDelay spaces out repeat JOINs after a 477 refusal while
// services authentication catches up. A variable so tests can compress
// the schedule.
var joinRetryDelay = 10 * time.Second

// maxJoinFailures is how many 477 refusals a channel gets before we
// give up on it.
const maxJoinFailures = 3

// joinGroupBudget caps how many bytes of channel names share one JOIN.
const joinGroupBudget = 400

// versionReply answers CTCP VERSION queries.
const versionReply = "tern 0.1"

// handleCommand executes one embedder command against a live
// connection.
func (s *Session) handleCommand(cmd Command) {
	switch cmd := cmd.(type) {
	case Connect:
		// Already connected.
	case Reconnect:
		s.connDone = true
		s.connReason = ReasonRequested
	case Quit:
		s.handleQuit(cmd)
	case SendRaw:
		s.handleSendRaw(cmd)
	case Privmsg:
		for _, part := range splitBody(irc.PRIVMSG, cmd.Target, cmd.Text, s.info.PrefixBudget()) {
			s.sendLine(irc.PRIVMSG, cmd.Target, part)
		}
	case Notice:
		for _, part := range splitBody(irc.NOTICE, cmd.Target, cmd.Text, s.info.PrefixBudget()) {
			s.sendLine(irc.NOTICE, cmd.Target, part)
		}
	case Action:
		s.sendLine(irc.PRIVMSG, cmd.Target, irc.CTCPpack(irc.CTCPAction, cmd.Text))
	case Join:
		s.sendJoins(cmd.Channels)
	case Part:
		if len(cmd.Reason) > 0 {
			s.sendLine(irc.PART, cmd.Channel, cmd.Reason)
		} else {
			s.sendLine(irc.PART, cmd.Channel)
		}
	case Nick:
		s.pendingNick = cmd.Nick
		s.sendTrailing(irc.NICK, cmd.Nick)
	case Away:
		s.stashAway(cmd)
		if s.awayMsg != nil {
			s.sendTrailing(irc.AWAY, *s.awayMsg)
		} else {
			s.sendLine(irc.AWAY)
		}
	case Ping:
		s.sendLine(irc.PING, cmd.Token)
	}
}

// handleQuit says goodbye best-effort and ends the session. The socket
// closes once the queue drains or the drain timeout fires, whichever
// is first.
func (s *Session) handleQuit(cmd Quit) {
	s.quitting = true
	s.terminal = true

	if s.state != StateRegistered && s.state != PingSent {
		s.connDone = true
		return
	}

	if len(cmd.Msg) > 0 {
		s.sendTrailing(irc.QUIT, cmd.Msg)
	} else {
		s.sendLine(irc.QUIT)
	}
	armTimer(&s.quitTimer, &s.quitC, quitDrainTimeout)
	if s.queue.Len() == 0 && !s.writerBusy {
		s.connDone = true
	}
}

// handleSendRaw enqueues a caller-formed line after the same hygiene
// checks the serializer applies.
func (s *Session) handleSendRaw(cmd SendRaw) {
	line := strings.TrimRight(cmd.Line, "\r\n")
	if strings.ContainsAny(line, "\x00\r\n") {
		s.log.Warn("dropping raw line with embedded terminator")
		return
	}
	if len(line)+2 > irc.MaxLineLen {
		s.log.Warn("dropping overlong raw line", "len", len(line)+2)
		return
	}
	if len(line) == 0 {
		return
	}
	s.enqueue([]byte(line+"\r\n"), false)
}

// dispatch routes one parsed inbound message. The server record is
// updated first so the sender can be attributed; then the embedder gets
// the Message event, and the rest of the session bookkeeping follows.
func (s *Session) dispatch(msg *irc.Message) {
	s.info.Update(msg)

	fromServer := !msg.HasUserHost() && s.info.IsServer(msg.Sender)
	s.emit(Message{Raw: msg.Raw, Msg: msg, Tags: msg.Tags, FromServer: fromServer})

	switch msg.Name {
	case irc.PING:
		s.sendTrailing(irc.PONG, msg.Trailing())
	case irc.CAP:
		s.handleCap(msg)
	case irc.AUTHENTICATE:
		if len(msg.Args) > 0 && msg.Args[0] == "+" {
			s.sendSaslPayload()
		}
	case irc.RPL_SASLSUCCESS:
		s.sendLine(irc.CAP, irc.CAP_END)
	case irc.ERR_SASLFAIL, irc.ERR_SASLTOOLONG, irc.ERR_SASLABORTED, irc.ERR_SASLALREADY:
		s.emit(SaslFailed{Code: msg.Name})
		s.sendLine(irc.CAP, irc.CAP_END)
	case irc.RPL_LOGGEDIN:
		if len(msg.Args) >= 2 {
			s.info.SetSelfMask(msg.Args[1])
		}
	case irc.RPL_WELCOME:
		s.handleWelcome(msg)
	case irc.ERR_NONICKNAMEGIVEN, irc.ERR_ERRONEUSNICKNAME, irc.ERR_NICKNAMEINUSE,
		irc.ERR_NICKCOLLISION, irc.ERR_UNAVAILRESOURCE:
		s.handleNickRefused(msg)
	case irc.NICK:
		s.handleNickMessage(msg)
	case irc.JOIN:
		s.handleJoinMessage(msg)
	case irc.RPL_TOPIC:
		if len(msg.Args) >= 2 {
			s.addJoined(msg.Args[1])
		}
	case irc.RPL_NAMREPLY:
		if len(msg.Args) >= 3 {
			s.addJoined(msg.Args[2])
		}
	case irc.PART:
		if len(msg.Args) >= 1 && s.isSelf(msg.Nick()) {
			reason := ""
			if len(msg.Args) >= 2 {
				reason = msg.Args[1]
			}
			s.removeJoined(msg.Args[0], reason)
		}
	case irc.KICK:
		if len(msg.Args) >= 2 && s.isSelf(msg.Args[1]) {
			reason := ""
			if len(msg.Args) >= 3 {
				reason = msg.Args[2]
			}
			s.removeJoined(msg.Args[0], reason)
		}
	case irc.ERR_NEEDREGGEDNICK:
		s.handleJoinRefused(msg)
	case irc.ERROR:
		s.connDone = true
		s.connReason = ReasonServerError
		if t := msg.Trailing(); len(t) > 0 {
			s.connReason = ReasonServerError + ": " + t
		}
	case irc.PRIVMSG:
		s.handlePrivmsg(msg)
	}
}

// handleWelcome finishes registration on 001.
func (s *Session) handleWelcome(msg *irc.Message) {
	s.nickAccepted = true
	if len(msg.Args) >= 2 {
		s.currentNick = msg.Args[0]
		s.pendingNick = msg.Args[0]
	} else {
		s.currentNick = s.pendingNick
	}

	s.setState(Registering)
	if len(s.spec.NickServIdent) > 0 {
		s.identify()
	}
	s.sendJoins(s.spec.Join)
	if s.awayMsg != nil {
		s.sendTrailing(irc.AWAY, *s.awayMsg)
	}
	s.setState(StateRegistered)
	s.attempt = 0
	s.emit(Registered{ServerName: s.info.Name(), Nick: s.currentNick})
}

// handleNickRefused advances the nick cursor during registration. A
// refusal after our nick was accepted is the embedder's problem and
// only surfaces through the Message event.
func (s *Session) handleNickRefused(msg *irc.Message) {
	if s.nickAccepted {
		return
	}

	tried := s.pendingNick
	s.advanceNickCursor()
	next := s.nickFor()
	s.pendingNick = next
	s.sendLine(irc.NICK, next)
	s.emit(NickConflict{Tried: tried, Next: next})
}

// handleNickMessage tracks our own nick following the server's echo.
// Nicks of other users only surface through the Message event.
func (s *Session) handleNickMessage(msg *irc.Message) {
	if len(msg.Args) < 1 {
		return
	}
	who, user, host := msg.SplitHost()
	newNick := msg.Args[0]

	if !s.isSelf(who) {
		return
	}
	if !s.nickAccepted && irc.Fold(newNick) != irc.Fold(s.pendingNick) {
		return
	}

	old := s.currentNick
	s.currentNick = newNick
	s.pendingNick = newNick
	if len(user) > 0 && len(host) > 0 {
		s.info.SetSelfMask(newNick + "!" + user + "@" + host)
	}
	s.emit(NickChanged{Old: old, New: newNick})

	if s.nickAccepted && len(s.spec.NickServIdent) > 0 {
		s.identify()
	}
}

// handleJoinMessage confirms our own joins.
func (s *Session) handleJoinMessage(msg *irc.Message) {
	if len(msg.Args) < 1 || !s.isSelf(msg.Nick()) {
		return
	}
	if msg.HasUserHost() {
		s.info.SetSelfMask(msg.Sender)
	}
	s.addJoined(msg.Args[0])
}

// handleJoinRefused backs off and retries +R channels while services
// identification is still settling.
func (s *Session) handleJoinRefused(msg *irc.Message) {
	if len(msg.Args) < 2 {
		return
	}
	channel := msg.Args[1]
	reason := msg.Trailing()

	if len(s.spec.NickServIdent) == 0 {
		s.emit(JoinFailed{Channel: channel, Reason: reason})
		return
	}

	key := irc.ChanName(channel).Key()
	retry := s.joinRetries[key]
	if retry == nil {
		retry = &joinRetry{channel: channel}
		s.joinRetries[key] = retry
	}
	retry.failures++

	if retry.failures >= maxJoinFailures {
		delete(s.joinRetries, key)
		s.emit(JoinFailed{Channel: channel, Reason: reason})
		s.armJoinRetry()
		return
	}

	retry.due = time.Now().Add(joinRetryDelay)
	s.armJoinRetry()
}

// handlePrivmsg answers CTCP queries addressed to us and learns our
// own hostmask from echoed messages.
func (s *Session) handlePrivmsg(msg *irc.Message) {
	if len(msg.Args) < 2 {
		return
	}

	if s.isSelf(msg.Nick()) && msg.HasUserHost() {
		s.info.SetSelfMask(msg.Sender)
		return
	}

	if !s.isSelf(msg.Args[0]) || !irc.IsCTCP(msg.Args[1]) {
		return
	}

	tag, data := irc.CTCPunpack(msg.Args[1])
	from := msg.Nick()
	if len(from) == 0 {
		return
	}

	switch tag {
	case "VERSION":
		s.sendLine(irc.NOTICE, from, irc.CTCPpack("VERSION", versionReply))
	case "PING":
		s.sendLine(irc.NOTICE, from, irc.CTCPpack("PING", data))
	}
}

// sendJoins groups channel names into comma lists under a byte budget.
func (s *Session) sendJoins(channels []string) {
	group := ""
	for _, channel := range channels {
		if !irc.ChanName(channel).IsValid() {
			s.log.Warn("skipping invalid channel name", "channel", channel)
			continue
		}
		if len(group) > 0 && len(group)+1+len(channel) > joinGroupBudget {
			s.sendLine(irc.JOIN, group)
			group = ""
		}
		if len(group) > 0 {
			group += ","
		}
		group += channel
	}
	if len(group) > 0 {
		s.sendLine(irc.JOIN, group)
	}
}

// addJoined records confirmed membership once per channel.
func (s *Session) addJoined(channel string) {
	key := irc.ChanName(channel).Key()
	if _, ok := s.joined[key]; ok {
		return
	}
	s.joined[key] = channel
	delete(s.joinRetries, key)
	s.emit(ChannelJoined{Channel: channel})
}

// removeJoined drops membership and tells the embedder.
func (s *Session) removeJoined(channel, reason string) {
	key := irc.ChanName(channel).Key()
	if _, ok := s.joined[key]; !ok {
		return
	}
	delete(s.joined, key)
	s.emit(ChannelParted{Channel: channel, Reason: reason})
}

func (s *Session) identify() {
	s.sendLine(irc.PRIVMSG, "NickServ", "IDENTIFY "+s.spec.NickServIdent)
}

func (s *Session) isSelf(nick string) bool {
	return len(nick) > 0 && irc.Fold(nick) == irc.Fold(s.currentNick)
}

func cmdName(cmd Command) string {
	switch cmd.(type) {
	case Connect:
		return "connect"
	case Reconnect:
		return "reconnect"
	case Quit:
		return "quit"
	case SendRaw:
		return "sendraw"
	case Privmsg:
		return "privmsg"
	case Notice:
		return "notice"
	case Action:
		return "action"
	case Join:
		return "join"
	case Part:
		return "part"
	case Nick:
		return "nick"
	case Away:
		return "away"
	case Ping:
		return "ping"
	}
	return "unknown"
}
