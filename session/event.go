package session

import "github.com/ternet/tern/irc"

// Event is something that happened on the session. Events arrive on the
// stream strictly in the order the loop observed their causes; the
// stream is finite and ends right after Closed.
type Event interface {
	event()
}

// Connecting is emitted when a connection cycle starts. Attempt numbers
// the cycle among those since the last completed registration, starting
// at 1.
type Connecting struct {
	Attempt int
}

// Connected is emitted once the transport is established.
type Connected struct{}

// Registered is emitted when the server accepts our registration.
type Registered struct {
	ServerName string
	Nick       string
}

// NickChanged reports that the server confirmed a nick change of ours.
type NickChanged struct {
	Old string
	New string
}

// NickConflict reports that a nick was refused during registration and
// names the next candidate being tried.
type NickConflict struct {
	Tried string
	Next  string
}

// Message carries an inbound protocol line: the raw bytes for
// pass-through logging, the parsed form, and the opaque tag block.
// FromServer is the prefix disambiguation for bare senders.
type Message struct {
	Raw        []byte
	Msg        *irc.Message
	Tags       string
	FromServer bool
}

// ChannelJoined reports confirmed membership in a channel.
type ChannelJoined struct {
	Channel string
}

// ChannelParted reports that we left or were removed from a channel.
type ChannelParted struct {
	Channel string
	Reason  string
}

// JoinFailed reports that a channel could not be joined after retries.
type JoinFailed struct {
	Channel string
	Reason  string
}

// SaslFailed reports a SASL failure numeric. The session still ends
// capability negotiation; whether the connection survives is server
// policy.
type SaslFailed struct {
	Code string
}

// Disconnected reports a lost or failed connection. A reconnect cycle
// follows unless the session is quitting.
type Disconnected struct {
	Reason string
}

// Closed is the final event of every session.
type Closed struct{}

func (Connecting) event()    {}
func (Connected) event()     {}
func (Registered) event()    {}
func (NickChanged) event()   {}
func (NickConflict) event()  {}
func (Message) event()       {}
func (ChannelJoined) event() {}
func (ChannelParted) event() {}
func (JoinFailed) event()    {}
func (SaslFailed) event()    {}
func (Disconnected) event()  {}
func (Closed) event()        {}
