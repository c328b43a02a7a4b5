package session

import "github.com/pkg/errors"

// Errors returned by Session.Do.
var (
	// ErrClosed is returned for commands submitted after the event
	// stream has ended.
	ErrClosed = errors.New("session: closed")
	// ErrBackpressure is returned when the outgoing queue is over its
	// byte bound and the command would grow it further.
	ErrBackpressure = errors.New("session: outgoing queue full")
)

// MaxQueueBytes bounds the unsent outgoing queue. Past it, message
// commands are refused with ErrBackpressure. Quit is always accepted.
const MaxQueueBytes = 64 * 1024

// Command is something the embedder asks the session to do. Commands
// are consumed in submission order.
type Command interface {
	command()
}

// Connect asks a disconnected session to establish its connection.
type Connect struct{}

// Reconnect tears down the current connection and dials again.
type Reconnect struct{}

// Quit ends the session permanently. The message is delivered
// best-effort when registered.
type Quit struct {
	Msg string
}

// SendRaw enqueues an already-formed protocol line. CRLF is appended
// when missing.
type SendRaw struct {
	Line string
}

// Privmsg sends a message, split as needed to honor the line limit.
type Privmsg struct {
	Target string
	Text   string
}

// Notice sends a notice, split as needed to honor the line limit.
type Notice struct {
	Target string
	Text   string
}

// Action sends a CTCP ACTION ("/me") to a target.
type Action struct {
	Target string
	Text   string
}

// Join asks for channel membership.
type Join struct {
	Channels []string
}

// Part leaves a channel.
type Part struct {
	Channel string
	Reason  string
}

// Nick requests a new nick.
type Nick struct {
	Nick string
}

// Away sets the away message, or clears it when Msg is nil.
type Away struct {
	Msg *string
}

// Ping sends a PING with the given token.
type Ping struct {
	Token string
}

func (Connect) command()   {}
func (Reconnect) command() {}
func (Quit) command()      {}
func (SendRaw) command()   {}
func (Privmsg) command()   {}
func (Notice) command()    {}
func (Action) command()    {}
func (Join) command()      {}
func (Part) command()      {}
func (Nick) command()      {}
func (Away) command()      {}
func (Ping) command()      {}
