/*
Package inet handles the byte-oriented side of a server connection:
resolving and dialing endpoints, TLS, proxies, CRLF framing of the inbound
stream, and the outgoing line queue.
*/
package inet

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/proxy"
	"h12.io/socks"
)

// dialTimeout bounds a single endpoint's TCP connect attempt.
const dialTimeout = 15 * time.Second

// DialFunc produces a raw connection for an address. Injected in tests
// and by embedders that need custom transports.
type DialFunc func(network, addr string) (net.Conn, error)

// ResolveError reports a failed name resolution.
type ResolveError struct{ Err error }

// ConnectError reports that every candidate endpoint refused us.
type ConnectError struct{ Err error }

// TLSError reports a failed TLS handshake or certificate verification.
type TLSError struct{ Err error }

func (e ResolveError) Error() string { return e.Err.Error() }
func (e ConnectError) Error() string { return e.Err.Error() }
func (e TLSError) Error() string     { return e.Err.Error() }

func (e ResolveError) Unwrap() error { return e.Err }
func (e ConnectError) Unwrap() error { return e.Err }
func (e TLSError) Unwrap() error     { return e.Err }

var (
	rootPool     *x509.CertPool
	rootPoolErr  error
	rootPoolOnce sync.Once
)

// RootCAs returns the process-wide trust store, loaded from the system
// on first use and shared across all sessions and reconnects.
func RootCAs() (*x509.CertPool, error) {
	rootPoolOnce.Do(func() {
		rootPool, rootPoolErr = x509.SystemCertPool()
	})
	return rootPool, errors.Wrap(rootPoolErr, "inet: loading system roots")
}

// Dialer connects to one IRC server. The zero value dials plaintext TCP
// directly; fields opt in to TLS and proxying.
type Dialer struct {
	// TLS wraps the stream after TCP connect.
	TLS bool
	// RootCAs overrides the trust store for verification. When nil the
	// process-wide pool from RootCAs is used.
	RootCAs *x509.CertPool
	// Proxy is an optional socks4://host:port or socks5://host:port URL
	// to route the connection through.
	Proxy string
	// Dial, when set, replaces the whole connection setup: no
	// resolution, proxying or TLS happens around it. Tests and
	// embedders with bespoke transports use it.
	Dial DialFunc
}

// Connect produces a stream to host, completing the TLS handshake when
// TLS is on. Direct connections resolve the host and try every
// candidate address in order; proxied connections pass the hostname to
// the proxy unresolved. ctx cancels resolution, connect and handshake
// alike.
func (d *Dialer) Connect(ctx context.Context, host string, port uint16) (net.Conn, error) {
	if d.Dial != nil {
		conn, err := d.Dial("tcp", net.JoinHostPort(host, strconv.Itoa(int(port))))
		if err != nil {
			return nil, ConnectError{Err: err}
		}
		return conn, nil
	}

	// A configured proxy resolves the name on its side; socks4a and the
	// socks5 domain address form exist for exactly that, so hand the
	// hostname over untouched. Only direct connections resolve locally
	// and walk the candidate addresses.
	addrs := []string{host}
	if len(d.Proxy) == 0 {
		var err error
		if addrs, err = resolve(ctx, host); err != nil {
			return nil, ResolveError{Err: err}
		}
	}

	portStr := strconv.Itoa(int(port))
	var lastErr error
	for _, addr := range addrs {
		if ctx.Err() != nil {
			return nil, ConnectError{Err: ctx.Err()}
		}

		conn, err := d.dialOne(ctx, net.JoinHostPort(addr, portStr))
		if err != nil {
			lastErr = err
			continue
		}

		if !d.TLS {
			return conn, nil
		}

		tlsConn, err := d.handshake(ctx, conn, host)
		if err != nil {
			conn.Close()
			return nil, TLSError{Err: err}
		}
		return tlsConn, nil
	}

	if lastErr == nil {
		lastErr = errors.Errorf("inet: no addresses for %s", host)
	}
	return nil, ConnectError{Err: errors.Wrapf(lastErr, "inet: no reachable address for %s", host)}
}

// resolve returns the candidate addresses for a host in resolver order.
// A literal IP short-circuits the lookup.
func resolve(ctx context.Context, host string) ([]string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []string{host}, nil
	}

	ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, errors.Wrapf(err, "inet: resolving %s", host)
	}

	addrs := make([]string, 0, len(ips))
	for _, ip := range ips {
		addrs = append(addrs, ip.String())
	}
	return addrs, nil
}

func (d *Dialer) dialOne(ctx context.Context, addr string) (net.Conn, error) {
	dial, err := d.proxyDial()
	if err != nil {
		return nil, err
	}

	type result struct {
		conn net.Conn
		err  error
	}
	resCh := make(chan result, 1)
	go func() {
		conn, err := dial("tcp", addr)
		resCh <- result{conn, err}
	}()

	select {
	case res := <-resCh:
		return res.conn, res.err
	case <-ctx.Done():
		// The dial finishes on its own time; throw the socket away.
		go func() {
			if res := <-resCh; res.conn != nil {
				res.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// proxyDial picks the raw dial function: direct, socks5 via
// golang.org/x/net, or socks4/socks4a via h12.io/socks.
func (d *Dialer) proxyDial() (DialFunc, error) {
	if len(d.Proxy) == 0 {
		nd := &net.Dialer{Timeout: dialTimeout}
		return nd.Dial, nil
	}

	scheme, hostport := splitProxyURL(d.Proxy)
	switch scheme {
	case "socks5":
		p, err := proxy.SOCKS5("tcp", hostport, nil, &net.Dialer{Timeout: dialTimeout})
		if err != nil {
			return nil, errors.Wrap(err, "inet: socks5 proxy")
		}
		return p.Dial, nil
	case "socks4", "socks4a":
		return DialFunc(socks.Dial(d.Proxy)), nil
	}
	return nil, errors.Errorf("inet: unsupported proxy scheme %q", scheme)
}

func splitProxyURL(u string) (scheme, hostport string) {
	const sep = "://"
	if i := strings.Index(u, sep); i >= 0 {
		return u[:i], u[i+len(sep):]
	}
	return "", u
}

// handshake performs the TLS client handshake with verification against
// the configured roots, SNI set to the configured host name.
func (d *Dialer) handshake(ctx context.Context, conn net.Conn, serverName string) (net.Conn, error) {
	roots := d.RootCAs
	if roots == nil {
		var err error
		if roots, err = RootCAs(); err != nil {
			return nil, err
		}
	}

	tlsConn := tls.Client(conn, &tls.Config{
		ServerName: serverName,
		RootCAs:    roots,
	})
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, errors.Wrapf(err, "inet: tls handshake with %s", serverName)
	}
	return tlsConn, nil
}
