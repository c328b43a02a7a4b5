/*
Package session maintains one logical conversation with one IRC server.
A Session owns its transport, drives registration, capability and SASL
negotiation, nick selection, channel joins, keepalive and reconnection,
and exposes a command sink and a finite event stream to its embedder.
*/
package session

import (
	"crypto/x509"
	"time"

	"github.com/pkg/errors"
	log15 "gopkg.in/inconshreveable/log15.v2"

	"github.com/ternet/tern/inet"
)

// Defaults applied by ServerSpec.normalize.
const (
	// DefaultPingInterval is how long the connection may stay silent
	// before we probe it with a PING.
	DefaultPingInterval = 60 * time.Second
	// DefaultReconnectBase is the first reconnect delay; consecutive
	// failures scale it up to four times, with jitter.
	DefaultReconnectBase = 30 * time.Second
)

var (
	errNoNicks    = errors.New("session: at least one nick is required")
	errEmptyNick  = errors.New("session: nicks must be non-empty")
	errNoAddr     = errors.New("session: server address is required")
	errNoHostname = errors.New("session: hostname is required")
	errNoRealname = errors.New("session: realname is required")
)

// SASLAuth carries PLAIN mechanism credentials.
type SASLAuth struct {
	Username string
	Password string
}

// ServerSpec configures a session. It is copied at session creation and
// immutable afterwards.
type ServerSpec struct {
	// Addr is the server host name or address.
	Addr string
	// Port is the server port.
	Port uint16
	// TLS enables a TLS transport verified against the process trust
	// store.
	TLS bool
	// ServerPass is sent with PASS before registration when non-empty.
	ServerPass string

	// Nicks are the candidate nicks, tried in order. Once exhausted,
	// underscores are appended to the last one.
	Nicks []string
	// Hostname is sent in the USER command.
	Hostname string
	// Realname is sent in the USER command.
	Realname string

	// SASL enables SASL PLAIN authentication during capability
	// negotiation when non-nil.
	SASL *SASLAuth
	// NickServIdent, when non-empty, is sent to NickServ as an IDENTIFY
	// password after registration and after regaining our nick.
	NickServIdent string

	// Join lists channels joined automatically after registration.
	Join []string

	// Alias is an optional display name for the connection.
	Alias string

	// Proxy optionally routes the connection through a socks4:// or
	// socks5:// proxy.
	Proxy string

	// RootCAs is the trust store for TLS verification. The embedder
	// loads it once per process and shares it across its sessions; when
	// nil the transport falls back to the system roots.
	RootCAs *x509.CertPool

	// PingInterval overrides DefaultPingInterval when non-zero.
	PingInterval time.Duration
	// ReconnectBase overrides DefaultReconnectBase when non-zero.
	ReconnectBase time.Duration

	// AutoConnect starts connecting as soon as the session is created
	// instead of waiting for a Connect command.
	AutoConnect bool

	// Dial replaces the transport's whole connection setup: no
	// resolution, proxying or TLS happens around it. Tests inject
	// net.Pipe connections through it.
	Dial inet.DialFunc

	// Logger receives the session's log output; log15.Root() when nil.
	Logger log15.Logger
}

// Name returns the alias when set, the address otherwise.
func (s *ServerSpec) Name() string {
	if len(s.Alias) > 0 {
		return s.Alias
	}
	return s.Addr
}

// validate checks the spec for the fields a session cannot run without.
func (s *ServerSpec) validate() error {
	if len(s.Addr) == 0 {
		return errNoAddr
	}
	if len(s.Nicks) == 0 {
		return errNoNicks
	}
	for _, n := range s.Nicks {
		if len(n) == 0 {
			return errEmptyNick
		}
	}
	if len(s.Hostname) == 0 {
		return errNoHostname
	}
	if len(s.Realname) == 0 {
		return errNoRealname
	}
	return nil
}

// normalize fills defaults on a copied spec.
func (s *ServerSpec) normalize() {
	if s.PingInterval <= 0 {
		s.PingInterval = DefaultPingInterval
	}
	if s.ReconnectBase <= 0 {
		s.ReconnectBase = DefaultReconnectBase
	}
	if s.Logger == nil {
		s.Logger = log15.Root()
	}
}
