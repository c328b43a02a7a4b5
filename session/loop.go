package session

import (
	"context"
	"math/rand"
	"net"
	"sync/atomic"
	"time"

	"github.com/ternet/tern/inet"
	"github.com/ternet/tern/irc"
)

// run is the session's single loop. All mutable session state is
// touched only here and in the handlers it calls.
func (s *Session) run() {
	defer s.finish()

	if !s.spec.AutoConnect {
		if !s.awaitConnect() {
			return
		}
	}

	for {
		s.runConnection()
		if s.terminal {
			return
		}
		if !s.awaitReconnect() {
			return
		}
	}
}

// finish ends the event stream. Exactly one Closed is emitted and it is
// the final event.
func (s *Session) finish() {
	stopTimer(&s.pingTimer, &s.pingC)
	stopTimer(&s.pongTimer, &s.pongC)
	stopTimer(&s.joinTimer, &s.joinC)
	stopTimer(&s.quitTimer, &s.quitC)

	atomic.StoreInt32(&s.closed, 1)
	s.cancel()
	s.events <- Closed{}
	close(s.events)
}

// awaitConnect idles in Disconnected until the embedder asks for a
// connection. Returns false when the session should end instead.
func (s *Session) awaitConnect() bool {
	s.setState(StateDisconnected)

	for {
		select {
		case cmd := <-s.cmds:
			switch cmd := cmd.(type) {
			case Connect, Reconnect:
				return true
			case Quit:
				s.terminal = true
				return false
			case Away:
				s.stashAway(cmd)
			default:
				s.log.Warn("dropping command while disconnected", "cmd", cmdName(cmd))
			}
		case <-s.ctx.Done():
			s.terminal = true
			return false
		}
	}
}

// awaitReconnect sleeps out the reconnect backoff. An explicit Connect
// or Reconnect command cuts it short; Quit ends the session.
func (s *Session) awaitReconnect() bool {
	s.setState(Reconnecting)

	delay := s.backoff()
	s.log.Info("reconnecting", "in", delay)
	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			return true
		case cmd := <-s.cmds:
			switch cmd := cmd.(type) {
			case Connect, Reconnect:
				return true
			case Quit:
				s.terminal = true
				return false
			case Away:
				s.stashAway(cmd)
			default:
				s.log.Warn("dropping command while disconnected", "cmd", cmdName(cmd))
			}
		case <-s.ctx.Done():
			s.terminal = true
			return false
		}
	}
}

// backoff is the reconnect delay: base times the consecutive failure
// count capped at 4, with a ±25% jitter so a dropped server is not
// hammered in lockstep.
func (s *Session) backoff() time.Duration {
	scale := s.attempt
	if scale < 1 {
		scale = 1
	}
	if scale > 4 {
		scale = 4
	}
	d := time.Duration(scale) * s.spec.ReconnectBase
	jitter := 0.75 + 0.5*rand.Float64()
	return time.Duration(float64(d) * jitter)
}

// runConnection performs one full connection cycle: dial, converse,
// tear down. On return the session is disconnected; s.terminal reports
// whether it should stay that way.
func (s *Session) runConnection() {
	s.attempt++
	s.setState(Resolving)
	s.emit(Connecting{Attempt: s.attempt})

	conn, err := s.dialInterruptible()
	if err != nil {
		if !s.terminal {
			s.log.Warn("connect failed", "err", err)
			s.emit(Disconnected{Reason: err.Error()})
		}
		return
	}

	s.startConn(conn)
	s.emit(Connected{})
	s.introduce()

	for !s.connDone {
		s.pump()

		select {
		case cmd := <-s.cmds:
			s.handleCommand(cmd)
		case chunk := <-s.readCh:
			s.handleRead(chunk)
		case err := <-s.readErrCh:
			s.connectionLost(err)
		case res := <-s.wres:
			s.handleWritten(res)
		case <-s.pingC:
			s.handlePingTimer()
		case <-s.pongC:
			s.connDone = true
			s.connReason = ReasonPingTimeout
		case <-s.joinC:
			s.handleJoinRetryTimer()
		case <-s.quitC:
			s.connDone = true
		case <-s.ctx.Done():
			s.terminal = true
			s.connDone = true
		}
	}

	s.teardownConn()
	if !s.terminal {
		s.emit(Disconnected{Reason: s.connReason})
	}
}

// dialInterruptible resolves and connects while staying responsive to
// embedder commands; a Quit aborts the attempt mid-resolution or
// mid-handshake.
func (s *Session) dialInterruptible() (net.Conn, error) {
	connCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	dialer := &inet.Dialer{
		TLS:     s.spec.TLS,
		RootCAs: s.spec.RootCAs,
		Proxy:   s.spec.Proxy,
		Dial:    s.spec.Dial,
	}

	type result struct {
		conn net.Conn
		err  error
	}
	resCh := make(chan result, 1)
	go func() {
		conn, err := dialer.Connect(connCtx, s.spec.Addr, s.spec.Port)
		resCh <- result{conn, err}
	}()
	s.setState(StateConnecting)

	for {
		select {
		case res := <-resCh:
			return res.conn, res.err
		case cmd := <-s.cmds:
			switch cmd := cmd.(type) {
			case Quit:
				s.terminal = true
				cancel()
				if res := <-resCh; res.conn != nil {
					res.conn.Close()
				}
				return nil, context.Canceled
			case Connect, Reconnect:
				// Already on it.
			case Away:
				s.stashAway(cmd)
			default:
				s.log.Warn("dropping command while connecting", "cmd", cmdName(cmd))
			}
		case <-s.ctx.Done():
			s.terminal = true
			if res := <-resCh; res.conn != nil {
				res.conn.Close()
			}
			return nil, context.Canceled
		}
	}
}

// startConn installs a fresh connection and spawns its reader and
// writer goroutines. The loop talks to them over channels only.
func (s *Session) startConn(conn net.Conn) {
	connCtx, cancel := context.WithCancel(s.ctx)

	s.conn = conn
	s.connCancel = cancel
	s.readCh = make(chan []byte)
	s.readErrCh = make(chan error, 1)
	s.wch = make(chan []byte)
	s.wres = make(chan writeResult, 1)
	s.writerBusy = false
	s.connDone = false
	s.connReason = ""

	go readConn(connCtx, conn, s.readCh, s.readErrCh)
	go writeConn(connCtx, conn, s.wch, s.wres)
}

func readConn(ctx context.Context, conn net.Conn, out chan<- []byte, errOut chan<- error) {
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			select {
			case errOut <- err:
			case <-ctx.Done():
			}
			return
		}
	}
}

func writeConn(ctx context.Context, conn net.Conn, in <-chan []byte, out chan<- writeResult) {
	for {
		select {
		case line := <-in:
			n, err := conn.Write(line)
			select {
			case out <- writeResult{n: n, err: err}:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// teardownConn closes the socket and detaches the connection goroutines.
func (s *Session) teardownConn() {
	if s.conn == nil {
		return
	}

	s.connCancel()
	s.conn.Close()
	s.conn = nil
	s.readCh = nil
	s.readErrCh = nil
	s.wch = nil
	s.wres = nil
	s.writerBusy = false

	stopTimer(&s.pingTimer, &s.pingC)
	stopTimer(&s.pongTimer, &s.pongC)
	stopTimer(&s.joinTimer, &s.joinC)
	stopTimer(&s.quitTimer, &s.quitC)

	// Queued messages die with the connection; they are not replayed.
	s.queue.Clear()
	atomic.StoreInt64(&s.queuedBytes, 0)
	s.asm.Reset()

	s.joined = make(map[string]string)
	s.joinRetries = make(map[string]*joinRetry)
	s.nickAccepted = false

	if !s.terminal {
		s.setState(StateDisconnected)
	}
}

// introduce starts the registration conversation on a new connection.
func (s *Session) introduce() {
	s.info = irc.NewServerInfo()
	s.capLS = nil
	s.nickIndex, s.nickSuffix = 0, 0
	s.nickAccepted = false

	s.lastRead = time.Now()
	armTimer(&s.pingTimer, &s.pingC, s.spec.PingInterval)

	s.setState(Introducing)
	s.sendLine(irc.CAP, irc.CAP_LS, "302")
	if len(s.spec.ServerPass) > 0 {
		s.sendLine(irc.PASS, s.spec.ServerPass)
	}
	nick := s.nickFor()
	s.pendingNick = nick
	s.currentNick = nick
	s.sendLine(irc.NICK, nick)
	s.sendTrailing(irc.USER, s.spec.Hostname, "0", "*", s.spec.Realname)
}

// handleRead feeds inbound bytes through the assembler and dispatches
// every completed line. Any inbound traffic counts as liveness.
func (s *Session) handleRead(chunk []byte) {
	s.lastRead = time.Now()
	if s.state == PingSent {
		s.setState(StateRegistered)
	}
	stopTimer(&s.pongTimer, &s.pongC)
	armTimer(&s.pingTimer, &s.pingC, s.spec.PingInterval)

	lines, reset := s.asm.Feed(chunk)
	if reset {
		s.log.Warn("input buffer overflow, resynchronizing")
	}
	for _, line := range lines {
		msg, err := irc.Parse(line)
		if err != nil {
			s.log.Warn("dropping unparsable line", "err", err, "line", string(line))
			continue
		}
		s.dispatch(msg)
	}
}

// connectionLost records a transport failure; the cycle ends and the
// reconnect policy takes over.
func (s *Session) connectionLost(err error) {
	if s.quitting {
		s.connDone = true
		return
	}
	s.connDone = true
	if err != nil {
		s.connReason = err.Error()
	} else {
		s.connReason = "connection closed"
	}
}

// handleWritten retires written bytes from the queue head.
func (s *Session) handleWritten(res writeResult) {
	s.writerBusy = false
	if res.n > 0 {
		s.queue.Consume(res.n)
		atomic.StoreInt64(&s.queuedBytes, int64(s.queue.Bytes()))
	}
	if res.err != nil {
		s.connectionLost(res.err)
		return
	}
	if s.quitting && s.queue.Len() == 0 {
		s.connDone = true
	}
}

// handlePingTimer probes a silent connection. The keepalive PING jumps
// the queue so a backed-up send buffer cannot mask a dead peer.
func (s *Session) handlePingTimer() {
	idle := time.Since(s.lastRead)
	if idle < s.spec.PingInterval {
		armTimer(&s.pingTimer, &s.pingC, s.spec.PingInterval-idle)
		return
	}

	token := s.info.Name()
	if len(token) == 0 {
		token = s.spec.Addr
	}
	line, _, err := irc.SerializeTrailing(irc.PING, token)
	if err == nil {
		s.enqueue(line, true)
	}
	if s.state == StateRegistered {
		s.setState(PingSent)
	}
	armTimer(&s.pongTimer, &s.pongC, s.spec.PingInterval)
}

// handleJoinRetryTimer re-sends joins whose backoff expired and re-arms
// for the next due retry.
func (s *Session) handleJoinRetryTimer() {
	now := time.Now()
	for _, retry := range s.joinRetries {
		if retry.due.IsZero() || retry.due.After(now) {
			continue
		}
		retry.due = time.Time{}
		s.sendLine(irc.JOIN, retry.channel)
	}
	s.armJoinRetry()
}

// armJoinRetry points the retry timer at the earliest pending retry.
func (s *Session) armJoinRetry() {
	var earliest time.Time
	for _, retry := range s.joinRetries {
		if retry.due.IsZero() {
			continue
		}
		if earliest.IsZero() || retry.due.Before(earliest) {
			earliest = retry.due
		}
	}
	if earliest.IsZero() {
		stopTimer(&s.joinTimer, &s.joinC)
		return
	}
	armTimer(&s.joinTimer, &s.joinC, time.Until(earliest))
}

func (s *Session) stashAway(cmd Away) {
	if cmd.Msg == nil {
		s.awayMsg = nil
		return
	}
	msg := *cmd.Msg
	s.awayMsg = &msg
}
