package session

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	log15 "gopkg.in/inconshreveable/log15.v2"

	"github.com/ternet/tern/inet"
	"github.com/ternet/tern/irc"
)

// State is where a session is in its lifecycle.
type State int

// Session states.
const (
	StateDisconnected State = iota
	Resolving
	StateConnecting
	Introducing
	CapNegotiating
	SaslAuthenticating
	Registering
	StateRegistered
	PingSent
	Reconnecting
)

var stateNames = [...]string{
	"disconnected", "resolving", "connecting", "introducing",
	"cap-negotiating", "sasl-authenticating", "registering", "registered",
	"ping-sent", "reconnecting",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Disconnect reasons surfaced in Disconnected events.
const (
	ReasonPingTimeout = "ping timeout"
	ReasonServerError = "server error"
	ReasonRequested   = "reconnect requested"
)

// quitDrainTimeout bounds how long a quitting session waits for its
// goodbye to flush before the socket is torn down regardless.
const quitDrainTimeout = 2 * time.Second

type writeResult struct {
	n   int
	err error
}

// Session is one logical conversation with one IRC server. Create it
// with New, drive it with Do, and consume Events until the stream ends.
// All session state is owned by a single internal loop; the exported
// methods are safe from any goroutine.
type Session struct {
	spec ServerSpec
	log  log15.Logger

	cmds   chan Command
	events chan Event

	ctx    context.Context
	cancel context.CancelFunc

	// closed flips once the event stream is ending; Do refuses past it.
	closed int32
	// queuedBytes mirrors queue.Bytes for the backpressure check in Do.
	queuedBytes int64

	// Everything below belongs to the run loop.
	state    State
	terminal bool

	info  *irc.ServerInfo
	asm   inet.Assembler
	queue inet.Queue

	conn       net.Conn
	connCancel context.CancelFunc
	readCh     chan []byte
	readErrCh  chan error
	wch        chan []byte
	wres       chan writeResult
	writerBusy bool

	connDone   bool
	connReason string

	attempt int

	nickIndex    int
	nickSuffix   int
	currentNick  string
	pendingNick  string
	nickAccepted bool

	joined  map[string]string
	awayMsg *string

	capLS []string

	joinRetries map[string]*joinRetry

	lastRead  time.Time
	pingTimer *time.Timer
	pongTimer *time.Timer
	joinTimer *time.Timer
	quitTimer *time.Timer
	pingC     <-chan time.Time
	pongC     <-chan time.Time
	joinC     <-chan time.Time
	quitC     <-chan time.Time

	quitting bool
}

type joinRetry struct {
	channel  string
	failures int
	due      time.Time
}

// New validates the spec, copies it, and starts the session loop. The
// session connects immediately when spec.AutoConnect is set, otherwise
// it waits for a Connect command.
func New(spec ServerSpec) (*Session, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}
	spec.normalize()

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		spec:        spec,
		log:         spec.Logger.New("server", spec.Name()),
		cmds:        make(chan Command, 16),
		events:      make(chan Event, 64),
		ctx:         ctx,
		cancel:      cancel,
		joined:      make(map[string]string),
		joinRetries: make(map[string]*joinRetry),
	}

	go s.run()
	return s, nil
}

// Events returns the session's event stream. It is finite: it yields
// Closed and then ends. The embedder must drain it.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Do submits a command. It returns ErrClosed once the event stream has
// ended and ErrBackpressure when the outgoing queue is over its bound
// and the command would add to it. Quit is always accepted while the
// session lives.
func (s *Session) Do(cmd Command) error {
	if atomic.LoadInt32(&s.closed) == 1 {
		return ErrClosed
	}

	switch cmd.(type) {
	case Privmsg, Notice, SendRaw:
		if atomic.LoadInt64(&s.queuedBytes) > MaxQueueBytes {
			return ErrBackpressure
		}
	}

	select {
	case s.cmds <- cmd:
		return nil
	case <-s.ctx.Done():
		return ErrClosed
	}
}

// emit delivers an event to the embedder, in loop order.
func (s *Session) emit(ev Event) {
	s.events <- ev
}

func (s *Session) setState(state State) {
	if s.state != state {
		s.log.Debug("state change", "from", s.state.String(), "to", state.String())
		s.state = state
	}
}

// sendLine serializes and enqueues one message. Encode failures are
// recoverable: logged and dropped without touching the connection.
func (s *Session) sendLine(name string, args ...string) {
	line, n, err := irc.Serialize(name, args...)
	s.enqueueSerialized(name, line, n, err)
}

// sendTrailing is sendLine with the final argument forced into
// trailing position.
func (s *Session) sendTrailing(name string, args ...string) {
	line, n, err := irc.SerializeTrailing(name, args...)
	s.enqueueSerialized(name, line, n, err)
}

func (s *Session) enqueueSerialized(name string, line []byte, n int, err error) {
	if err != nil {
		s.log.Warn("dropping unencodable message", "command", name, "err", err)
		return
	}
	if n > irc.MaxLineLen {
		s.log.Warn("dropping overlong line", "command", name, "len", n)
		return
	}
	s.enqueue(line, false)
}

// enqueue adds a serialized line to the outgoing queue, at the head for
// keepalive traffic.
func (s *Session) enqueue(line []byte, front bool) {
	if front {
		s.queue.EnqueueFront(line)
	} else {
		s.queue.Enqueue(line)
	}
	atomic.StoreInt64(&s.queuedBytes, int64(s.queue.Bytes()))
}

// pump hands the writer its next line when it is idle.
func (s *Session) pump() {
	if s.writerBusy || s.conn == nil {
		return
	}
	line := s.queue.Peek()
	if line == nil {
		return
	}
	s.writerBusy = true
	s.wch <- line
}

// armTimer replaces a timer and its select channel in place.
func armTimer(t **time.Timer, c *<-chan time.Time, d time.Duration) {
	stopTimer(t, c)
	*t = time.NewTimer(d)
	*c = (*t).C
}

func stopTimer(t **time.Timer, c *<-chan time.Time) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
	*c = nil
}

// nickFor renders the nick the cursor points at: a candidate from the
// list, then the last candidate grown by underscores.
func (s *Session) nickFor() string {
	nick := s.spec.Nicks[s.nickIndex]
	for i := 0; i < s.nickSuffix; i++ {
		nick += "_"
	}
	return nick
}

// advanceNickCursor moves to the next candidate after a refusal.
func (s *Session) advanceNickCursor() {
	if s.nickIndex+1 < len(s.spec.Nicks) {
		s.nickIndex++
		return
	}
	s.nickSuffix++
}
